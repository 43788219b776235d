package segment

import (
	"regexp"
	"strings"
)

// blockSeparator matches one or more blank lines, in both bare and
// carriage-return-prefixed forms.
var blockSeparator = regexp.MustCompile(`(?:\r?\n)(?:[ \t]*\r?\n)+`)

// Structure detection patterns. Any single match classifies the whole text
// as structured (subtitle-like).
var (
	// timestampPattern matches HH:MM:SS,mmm and HH:MM:SS.mmm tokens.
	timestampPattern = regexp.MustCompile(`\d{1,2}:\d{2}:\d{2}[.,]\d{1,3}`)

	// sequenceLinePattern matches lines consisting solely of a number, as in
	// SRT cue indices.
	sequenceLinePattern = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]*\r?$`)

	// tagPattern matches angle-bracket markup such as <i> or <font color=...>.
	tagPattern = regexp.MustCompile(`</?[A-Za-z][^<>]*>`)

	// bracketPattern matches bracketed annotations such as [music] or
	// [inaudible].
	bracketPattern = regexp.MustCompile(`\[[^\[\]]+\]`)
)

// IsStructured reports whether text resembles subtitle or caption data:
// timestamp tokens, cue sequence-number lines, SRT arrow separators,
// angle-bracket tags, or bracketed annotations.
func IsStructured(text string) bool {
	if strings.Contains(text, "-->") {
		return true
	}
	if timestampPattern.MatchString(text) {
		return true
	}
	if sequenceLinePattern.MatchString(text) {
		return true
	}
	if tagPattern.MatchString(text) {
		return true
	}
	return bracketPattern.MatchString(text)
}

// SplitStructured segments subtitle-like text by atomic blocks: the input
// is split on blank-line separators, and whole blocks are accumulated into
// segments of at most Options.MaxChars. A block is never split mid-unit, so
// a single block larger than MaxChars becomes a segment that exceeds the
// bound on its own.
func SplitStructured(text string, opts Options) []Segment {
	opts = opts.withDefaults()
	originalLength := len([]rune(text))
	if originalLength == 0 {
		return nil
	}

	rawBlocks := blockSeparator.Split(text, -1)
	blocks := make([]string, 0, len(rawBlocks))
	for _, b := range rawBlocks {
		if strings.TrimSpace(b) == "" {
			continue
		}
		blocks = append(blocks, strings.Trim(b, "\r\n"))
	}
	if len(blocks) == 0 {
		return nil
	}

	var segs []Segment
	var buf strings.Builder
	bufChars := 0
	flush := func() {
		if bufChars == 0 {
			return
		}
		segs = append(segs, newSegment(buf.String(), len(segs)))
		buf.Reset()
		bufChars = 0
	}

	for _, block := range blocks {
		blockChars := len([]rune(block))
		appended := blockChars
		if bufChars > 0 {
			appended += 2 // joining blank line
		}
		if bufChars > 0 && bufChars+appended > opts.MaxChars {
			flush()
		}
		if bufChars > 0 {
			buf.WriteString("\n\n")
			bufChars += 2
		}
		buf.WriteString(block)
		bufChars += blockChars
	}
	flush()

	return finalize(segs, originalLength)
}
