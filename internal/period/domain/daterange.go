package domain

import "fmt"

// DaysBetweenExclusiveStartInclusiveEnd returns every calendar date strictly after
// start up to and including end, in chronological order.
//
// The start day itself is never part of the result: it is covered by the period's
// "start" event, which is emitted when the period is opened. This function only
// supplies the days that follow it.
//
// Example:
//
//	days, _ := DaysBetweenExclusiveStartInclusiveEnd(
//	    MustParseDate("2024-06-11"),
//	    MustParseDate("2024-06-15"),
//	)
//	// → [2024-06-12 2024-06-13 2024-06-14 2024-06-15]
//
// Edge cases:
//
//   - start == end returns an empty, non-nil slice.
//   - end before start returns ErrInvalidRange.
func DaysBetweenExclusiveStartInclusiveEnd(start, end Date) ([]Date, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: range needs both a start and an end date", ErrInvalidDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, end, start)
	}

	days := make([]Date, 0, end.DaysSince(start))
	for d := start.AddDays(1); !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days, nil
}

// CurrentPeriodDayNumber returns the 1-based "Day N" of a period that started on
// startDate, as seen on today. The value is derived for display and never stored.
//
// Example:
//
//	n, _ := CurrentPeriodDayNumber(MustParseDate("2024-06-11"), MustParseDate("2024-06-15")) // → 5
func CurrentPeriodDayNumber(startDate, today Date) (int, error) {
	if startDate.IsZero() || today.IsZero() {
		return 0, fmt.Errorf("%w: day number needs a start date and today", ErrInvalidDate)
	}
	if today.Before(startDate) {
		return 0, fmt.Errorf("%w: today %s is before start %s", ErrInvalidRange, today, startDate)
	}
	return today.DaysSince(startDate) + 1, nil
}
