package domain

import (
	"fmt"
	"sort"
)

// DetectOverlaps validates that no two periods claim the same calendar day.
//
// An open period claims only its start date: where it ends is not known yet, and
// the close is checked against its neighbours when it happens.
//
// HOW IT WORKS:
//   - Sort a copy of the periods by StartDate
//   - Compare each period with every later one whose start is not past its end
//
// EXAMPLE:
//
//	errs := DetectOverlaps(periods)
//	for _, e := range errs {
//	    fmt.Println(e)
//	}
//
// EXPECTED OUTPUT (if an overlap exists):
//
//	"periods overlap: 01J0A (2024-06-11 → 2024-06-15) overlaps with 01J0B (2024-06-14 → 2024-06-18)"
func DetectOverlaps(periods []*Period) []error {
	list := make([]*Period, 0, len(periods))
	for _, p := range periods {
		if p != nil {
			list = append(list, p)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartDate.Before(list[j].StartDate)
	})

	var errs []error
	for i := 0; i < len(list); i++ {
		prevStart, prevEnd := list[i].span()
		for j := i + 1; j < len(list); j++ {
			currStart, currEnd := list[j].span()
			// Sorted by start: once a later period starts after prev ends, none of the rest can overlap.
			if currStart.After(prevEnd) {
				break
			}
			errs = append(errs, fmt.Errorf(
				"%w: %s (%s → %s) overlaps with %s (%s → %s)",
				ErrOverlappingPeriod,
				list[i].ID, prevStart, prevEnd,
				list[j].ID, currStart, currEnd,
			))
		}
	}

	return errs
}

// overlapping returns the first period in others (other than self) whose claimed
// days intersect [start, end].
func overlapping(others []*Period, selfID string, start, end Date) *Period {
	for _, o := range others {
		if o.ID == selfID {
			continue
		}
		oStart, oEnd := o.span()
		if start.Within(oStart, oEnd) || oStart.Within(start, end) {
			return o
		}
	}
	return nil
}
