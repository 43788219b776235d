package segment

import "sort"

// Reassemble merges ordered segments back into a single text, removing the
// overlap duplicated between adjacent segments. For each adjacent pair it
// finds the longest suffix of the assembled result that equals a prefix of
// the next segment's content, bounded by twice overlapChars (or the shorter
// operand), and appends only the unmatched remainder. When no overlap is
// provable the next segment is appended unchanged.
//
// This restores an original (untranslated) segmentation. Independently
// generated outputs, such as per-segment translations, are joined by the
// pipeline with a separator instead, because a backend rewrite need not
// preserve literal overlap text.
func Reassemble(segments []Segment, overlapChars int) string {
	if len(segments) == 0 {
		return ""
	}
	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	if len(sorted) == 1 {
		return sorted[0].Content
	}

	result := []rune(sorted[0].Content)
	for _, seg := range sorted[1:] {
		next := []rune(seg.Content)
		bound := 2 * overlapChars
		if bound > len(result) {
			bound = len(result)
		}
		if bound > len(next) {
			bound = len(next)
		}
		match := 0
		for l := bound; l > 0; l-- {
			if runesEqual(result[len(result)-l:], next[:l]) {
				match = l
				break
			}
		}
		result = append(result, next[match:]...)
	}
	return string(result)
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
