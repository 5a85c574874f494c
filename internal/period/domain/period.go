package domain

import (
	"fmt"

	"github.com/nholding/cycle-book/internal/audit"
)

// PeriodStatus is the lifecycle state of a Period.
//
//	OPEN ──EndExistingPeriod──▶ CLOSED
//
// CLOSED is terminal; there is no reopen.
type PeriodStatus string

const (
	// PeriodOpen means the period has started and no end date has been recorded yet.
	PeriodOpen PeriodStatus = "OPEN"

	// PeriodClosed means the end date has been set. It is set exactly once.
	PeriodClosed PeriodStatus = "CLOSED"
)

// Period is one tracked, contiguous date range.
//
// ID and StartDate are immutable after creation. EndDate is nil while the period
// is open and is set exactly once when it is closed.
//
// Example:
//
//	end := MustParseDate("2024-06-15")
//	p := Period{
//	    ID:        "01J0ABCD...",
//	    StartDate: MustParseDate("2024-06-11"),
//	    EndDate:   &end,
//	}
//	p.Status() // → CLOSED
//	p.Days()   // → [2024-06-11 … 2024-06-15]
type Period struct {
	ID        string          `json:"id"`
	StartDate Date            `json:"startDate"`
	EndDate   *Date           `json:"endDate"`
	AuditInfo audit.AuditInfo `json:"audit"`
}

func (p *Period) Status() PeriodStatus {
	if p.EndDate == nil {
		return PeriodOpen
	}
	return PeriodClosed
}

func (p *Period) IsOpen() bool {
	return p.EndDate == nil
}

// Validate checks the period for consistency and returns an error if invalid.
func (p *Period) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("period ID cannot be empty")
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: period %s has no start date", ErrInvalidDate, p.ID)
	}
	if p.EndDate != nil {
		if p.EndDate.IsZero() {
			return fmt.Errorf("%w: period %s has an empty end date", ErrInvalidDate, p.ID)
		}
		if p.EndDate.Before(p.StartDate) {
			return fmt.Errorf("%w: period %s ends %s before it starts %s", ErrInvalidRange, p.ID, p.EndDate, p.StartDate)
		}
	}
	return nil
}

// Days returns the calendar days the period covers so far: the start date, then
// every day after it up to and including the end date. An open period covers
// only its start date until it is closed.
func (p *Period) Days() []Date {
	days := []Date{p.StartDate}
	if p.EndDate == nil {
		return days
	}
	rest, err := DaysBetweenExclusiveStartInclusiveEnd(p.StartDate, *p.EndDate)
	if err != nil {
		return days
	}
	return append(days, rest...)
}

// Length returns the number of days in the period. Open periods are counted up to
// and including today; a today before the start counts as a single day.
func (p *Period) Length(today Date) int {
	last := today
	if p.EndDate != nil {
		last = *p.EndDate
	}
	if last.Before(p.StartDate) {
		return 1
	}
	return last.DaysSince(p.StartDate) + 1
}

// span is the closed interval of days already claimed by the period.
func (p *Period) span() (Date, Date) {
	if p.EndDate == nil {
		return p.StartDate, p.StartDate
	}
	return p.StartDate, *p.EndDate
}

// Clone returns a deep copy, so callers never share the EndDate pointer with the store.
func (p *Period) Clone() *Period {
	c := *p
	if p.EndDate != nil {
		end := *p.EndDate
		c.EndDate = &end
	}
	return &c
}
