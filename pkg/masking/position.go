package masking

import (
	"cmp"
	"slices"
)

// ReplacementPosition is one match span inside a specific input string.
// Start and Length are byte offsets into that string.
type ReplacementPosition struct {
	Start  int
	Length int
}

// End returns the offset just past the span.
func (p ReplacementPosition) End() int {
	return p.Start + p.Length
}

// mergePositions sorts positions by start and folds every position that starts
// at or before the running end into the current span. The result is ordered and
// disjoint.
func mergePositions(positions []ReplacementPosition) []ReplacementPosition {
	if len(positions) < 2 {
		return positions
	}
	slices.SortFunc(positions, func(a, b ReplacementPosition) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := positions[:1]
	for _, p := range positions[1:] {
		last := &merged[len(merged)-1]
		if p.Start <= last.End() {
			if end := p.End(); end > last.End() {
				last.Length = end - last.Start
			}
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
