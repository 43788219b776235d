package segment

import (
	"fmt"
	"strings"
	"testing"
)

func sentenceText(minChars int) string {
	var b strings.Builder
	for i := 0; b.Len() < minChars; i++ {
		fmt.Fprintf(&b, "Sentence number %d ends right here. ", i)
	}
	return b.String()[:minChars]
}

func TestSplit_ShortTextSingleSegment(t *testing.T) {
	text := "A short sentence."
	segs := Split(text, PlainOptions())
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Content != text {
		t.Fatalf("content mismatch: %q", segs[0].Content)
	}
	if segs[0].Index != 0 || segs[0].TotalSegments != 1 {
		t.Fatalf("unexpected index/total: %d/%d", segs[0].Index, segs[0].TotalSegments)
	}
	if segs[0].OriginalLength != len([]rune(text)) {
		t.Fatalf("unexpected original length: %d", segs[0].OriginalLength)
	}
}

func TestSplit_EmptyTextNoSegments(t *testing.T) {
	if segs := Split("", PlainOptions()); len(segs) != 0 {
		t.Fatalf("expected no segments, got %d", len(segs))
	}
}

func TestSplit_FiveThousandCharsYieldsThreeSegments(t *testing.T) {
	text := sentenceText(5000)
	opts := PlainOptions() // max 2000, overlap 100, lookahead 200
	segs := Split(text, opts)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for _, s := range segs {
		if n := len([]rune(s.Content)); n == 0 || n > opts.MaxChars+opts.LookaheadChars {
			t.Fatalf("segment %d size %d out of bounds", s.Index, n)
		}
		if s.TotalSegments != 3 {
			t.Fatalf("segment %d totalSegments = %d, want 3", s.Index, s.TotalSegments)
		}
		if s.OriginalLength != 5000 {
			t.Fatalf("segment %d originalLength = %d, want 5000", s.Index, s.OriginalLength)
		}
	}
}

func TestSplit_IndicesContiguousAndIDsUnique(t *testing.T) {
	segs := Split(sentenceText(9000), PlainOptions())
	ids := make(map[string]struct{}, len(segs))
	for i, s := range segs {
		if s.Index != i {
			t.Fatalf("segment at position %d has index %d", i, s.Index)
		}
		if s.TotalSegments != len(segs) {
			t.Fatalf("segment %d totalSegments = %d, want %d", i, s.TotalSegments, len(segs))
		}
		if _, dup := ids[s.ID]; dup {
			t.Fatalf("duplicate segment id %q", s.ID)
		}
		if s.ID == "" {
			t.Fatalf("segment %d has empty id", i)
		}
		ids[s.ID] = struct{}{}
	}
}

func TestSplit_SegmentsEndAtSentenceBoundaries(t *testing.T) {
	segs := Split(sentenceText(5000), PlainOptions())
	for _, s := range segs[:len(segs)-1] {
		runes := []rune(s.Content)
		if !isTerminator(runes[len(runes)-1]) {
			t.Fatalf("segment %d does not end at a terminator: %q", s.Index, string(runes[len(runes)-20:]))
		}
	}
}

func TestSplit_ReassembleRestoresOriginal(t *testing.T) {
	text := sentenceText(5000)
	opts := PlainOptions()
	segs := Split(text, opts)
	if got := Reassemble(segs, opts.OverlapChars); got != text {
		t.Fatalf("reassembled text differs: len %d vs %d", len(got), len(text))
	}
}

func TestSplit_DegenerateInputTerminatesWithHardCuts(t *testing.T) {
	text := strings.Repeat("a", 4500)
	opts := PlainOptions()
	segs := Split(text, opts)
	if len(segs) == 0 {
		t.Fatal("expected segments")
	}
	total := 0
	for _, s := range segs {
		n := len([]rune(s.Content))
		if n == 0 || n > opts.MaxChars {
			t.Fatalf("segment %d size %d out of bounds for hard cuts", s.Index, n)
		}
		total += n
	}
	// Overlap duplicates characters, so the sum must cover the input.
	if total < len(text) {
		t.Fatalf("segments cover %d of %d chars", total, len(text))
	}
}

func TestSplit_CJKTerminators(t *testing.T) {
	var b strings.Builder
	for b.Len() < 3*2500 { // runes are 3 bytes each
		b.WriteString(strings.Repeat("文", 40))
		b.WriteString("。")
	}
	segs := Split(b.String(), PlainOptions())
	if len(segs) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segs))
	}
	runes := []rune(segs[0].Content)
	if runes[len(runes)-1] != '。' {
		t.Fatalf("expected CJK terminator break, got %q", runes[len(runes)-1])
	}
}

func TestReassemble_Empty(t *testing.T) {
	if got := Reassemble(nil, 100); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestReassemble_SingleSegmentVerbatim(t *testing.T) {
	seg := Segment{ID: "s", Content: "already merged", Index: 0, TotalSegments: 1}
	if got := Reassemble([]Segment{seg}, 100); got != "already merged" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestReassemble_RemovesOverlap(t *testing.T) {
	segs := []Segment{
		{Content: "The quick brown fox jumps over", Index: 0},
		{Content: "jumps over the lazy dog.", Index: 1},
	}
	got := Reassemble(segs, 20)
	if got != "The quick brown fox jumps over the lazy dog." {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestReassemble_NoOverlapAppendsUnchanged(t *testing.T) {
	segs := []Segment{
		{Content: "first part", Index: 0},
		{Content: "second part", Index: 1},
	}
	if got := Reassemble(segs, 5); got != "first partsecond part" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestReassemble_SortsByIndex(t *testing.T) {
	segs := []Segment{
		{Content: "tail", Index: 1},
		{Content: "head ", Index: 0},
	}
	if got := Reassemble(segs, 0); got != "head tail" {
		t.Fatalf("unexpected: %q", got)
	}
}
