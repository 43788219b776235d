// Package segment implements bounded, context-preserving segmentation of
// oversized translation input and the inverse reassembly of segment
// contents. Two strategies are provided: a plain-text strategy that scans
// fixed-size windows for nearby sentence boundaries, and a structured
// strategy for subtitle-like text that accumulates whole blocks and never
// splits a block mid-unit.
//
// Segmentation is stateless: all tuning lives in an explicit Options value,
// so concurrent requests and tests can use independent parameters.
package segment

import (
	"github.com/google/uuid"
)

// Default segmentation parameters.
const (
	DefaultPlainMaxChars      = 2000
	DefaultStructuredMaxChars = 1500
	DefaultOverlapChars       = 100
	DefaultLookaheadChars     = 200
	DefaultMinBreakRatio      = 0.7
)

// Options carries the tuning parameters for one segmentation run.
type Options struct {
	// MaxChars is the soft maximum segment size in characters. A segment
	// may exceed it by at most LookaheadChars when a sentence boundary is
	// found just past the nominal window edge, or without bound for a
	// single oversized structured block.
	MaxChars int

	// OverlapChars is the number of trailing characters repeated at the
	// start of the following segment. Used only by the plain strategy.
	OverlapChars int

	// LookaheadChars extends the boundary search past the nominal window
	// edge. Used only by the plain strategy.
	LookaheadChars int

	// MinBreakRatio is the fraction of MaxChars a candidate break must lie
	// beyond (measured from the window start) to be accepted. Candidates
	// closer to the window start fall back to a hard cut.
	MinBreakRatio float64
}

// PlainOptions returns the default options for plain-text segmentation.
func PlainOptions() Options {
	return Options{
		MaxChars:       DefaultPlainMaxChars,
		OverlapChars:   DefaultOverlapChars,
		LookaheadChars: DefaultLookaheadChars,
		MinBreakRatio:  DefaultMinBreakRatio,
	}
}

// StructuredOptions returns the default options for subtitle-like text.
func StructuredOptions() Options {
	return Options{
		MaxChars:      DefaultStructuredMaxChars,
		MinBreakRatio: DefaultMinBreakRatio,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultPlainMaxChars
	}
	if o.OverlapChars < 0 {
		o.OverlapChars = 0
	}
	if o.LookaheadChars <= 0 {
		o.LookaheadChars = DefaultLookaheadChars
	}
	if o.MinBreakRatio <= 0 || o.MinBreakRatio > 1 {
		o.MinBreakRatio = DefaultMinBreakRatio
	}
	return o
}

// Segment is one bounded slice of the original text.
type Segment struct {
	// ID uniquely identifies the segment within its run.
	ID string

	// Content is the slice text.
	Content string

	// Index is the zero-based position among sibling segments. Indices of a
	// run are contiguous 0..TotalSegments-1.
	Index int

	// TotalSegments is the segment count of the run, identical across every
	// segment of the run. It is filled in only after the full run is known.
	TotalSegments int

	// OriginalLength is the character length of the pre-segmentation text,
	// identical across the run. Reporting only, never control flow.
	OriginalLength int
}

// sentenceTerminators covers Latin and CJK sentence-ending characters plus
// newline.
var sentenceTerminators = map[rune]struct{}{
	'.': {}, '!': {}, '?': {}, ';': {},
	'。': {}, '！': {}, '？': {}, '；': {}, '…': {},
	'\n': {},
}

func isTerminator(r rune) bool {
	_, ok := sentenceTerminators[r]
	return ok
}

// Split segments text with the plain-text strategy: fixed windows of
// Options.MaxChars, each cut at the highest-scoring sentence terminator
// found within the lookahead region, with OverlapChars of trailing context
// repeated at the start of the next window.
//
// Text that fits in a single window is returned as exactly one segment.
// Empty text yields no segments.
func Split(text string, opts Options) []Segment {
	opts = opts.withDefaults()
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= opts.MaxChars {
		return finalize([]Segment{newSegment(text, 0)}, n)
	}

	var segs []Segment
	start := 0
	for start < n {
		if n-start <= opts.MaxChars {
			segs = append(segs, newSegment(string(runes[start:]), len(segs)))
			break
		}
		end := findBreak(runes, start, opts)
		segs = append(segs, newSegment(string(runes[start:end]), len(segs)))

		// Rewind by the overlap so the next segment carries trailing context,
		// but never move at or behind the current window start: that keeps
		// forward progress even on degenerate inputs.
		next := end - opts.OverlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return finalize(segs, n)
}

// findBreak returns the exclusive end of the window starting at start. It
// scans backward from the far edge of the lookahead region for the
// best-scoring sentence terminator; score decays linearly with distance
// from the nominal boundary, floored at zero. A candidate is only accepted
// at or beyond MinBreakRatio of the window size; otherwise the window is
// hard-cut at the nominal boundary.
func findBreak(runes []rune, start int, opts Options) int {
	n := len(runes)
	nominal := start + opts.MaxChars
	searchEnd := nominal + opts.LookaheadChars
	if searchEnd > n {
		searchEnd = n
	}
	minPos := start + int(float64(opts.MaxChars)*opts.MinBreakRatio)

	best := -1
	bestScore := -1.0
	for i := searchEnd - 1; i >= minPos; i-- {
		if !isTerminator(runes[i]) {
			continue
		}
		dist := i - (nominal - 1)
		if dist < 0 {
			dist = -dist
		}
		score := 1.0 - float64(dist)/float64(opts.LookaheadChars)
		if score < 0 {
			score = 0
		}
		// Strictly greater: on equal scores the first candidate found wins,
		// which is the latest position in the backward scan.
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return nominal
	}
	return best + 1
}

func newSegment(content string, index int) Segment {
	return Segment{
		ID:      uuid.NewString(),
		Content: content,
		Index:   index,
	}
}

// finalize rewrites the run-wide fields once the segment count is known.
func finalize(segs []Segment, originalLength int) []Segment {
	for i := range segs {
		segs[i].TotalSegments = len(segs)
		segs[i].OriginalLength = originalLength
	}
	return segs
}
