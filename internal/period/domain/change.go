package domain

import (
	"fmt"
	"sort"
	"time"
)

// ChangeKind identifies what happened to a period.
type ChangeKind string

const (
	ChangeStarted ChangeKind = "STARTED"
	ChangeClosed  ChangeKind = "CLOSED"
)

// PeriodChange is a "period-changed" fact recorded by the PeriodStore after a
// successful lifecycle operation. Persistence consumes these asynchronously, so the
// in-memory state never depends on storage being available.
//
// Dates holds the days newly derived by the operation: the start date for
// ChangeStarted, the days after the start up to the end for ChangeClosed.
type PeriodChange struct {
	Kind   ChangeKind
	Period Period
	Dates  []Date
	At     time.Time
}

// DailyEntry is one day inside a persisted PeriodEntry.
type DailyEntry struct {
	Date Date `json:"date"`
}

// PeriodEntry is the record handed to the persistence collaborator whenever new
// days are derived for a period.
//
// Example (period 2024-06-11 → 2024-06-15):
//
//	// after StartNewPeriod
//	{id, startDate: 2024-06-11, endDate: 2024-06-11, duration: 1, dailyEntries: [06-11], status: OPEN}
//	// after EndExistingPeriod
//	{id, startDate: 2024-06-11, endDate: 2024-06-15, duration: 4, dailyEntries: [06-12 … 06-15], status: CLOSED}
type PeriodEntry struct {
	ID           string       `json:"id"`
	StartDate    Date         `json:"startDate"`
	EndDate      Date         `json:"endDate"`
	Duration     int          `json:"duration"`
	DailyEntries []DailyEntry `json:"dailyEntries"`
	Status       PeriodStatus `json:"status"`
	RecordedBy   string       `json:"recordedBy,omitempty"`
	RecordedAt   time.Time    `json:"recordedAt"`
}

// Entry converts the change into its persistence record.
// A same-day close derives no new days and yields duration 0 with no daily entries.
func (c PeriodChange) Entry() PeriodEntry {
	entry := PeriodEntry{
		ID:           c.Period.ID,
		StartDate:    c.Period.StartDate,
		Duration:     len(c.Dates),
		DailyEntries: make([]DailyEntry, 0, len(c.Dates)),
		Status:       c.Period.Status(),
		RecordedAt:   c.At.UTC(),
	}
	for _, d := range c.Dates {
		entry.DailyEntries = append(entry.DailyEntries, DailyEntry{Date: d})
	}

	switch c.Kind {
	case ChangeClosed:
		entry.EndDate = *c.Period.EndDate
		entry.RecordedBy = c.Period.AuditInfo.UpdatedBy
	default:
		entry.EndDate = c.Period.StartDate
		entry.RecordedBy = c.Period.AuditInfo.CreatedBy
	}
	return entry
}

// FoldEntries rebuilds periods from their persisted entries, ordered by start date.
// Reloaders use it to seed a PeriodStore from an entry log.
//
// Rules:
//   - entries are grouped by ID; the earliest StartDate wins
//   - a CLOSED entry sets the EndDate; two CLOSED entries with different ends fail
//     with ErrDuplicateCloseAttempt
//   - every rebuilt period must pass Validate
func FoldEntries(entries []PeriodEntry) ([]*Period, error) {
	byID := make(map[string]*Period)
	var order []string

	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("period entry without id")
		}

		p, ok := byID[e.ID]
		if !ok {
			p = &Period{ID: e.ID, StartDate: e.StartDate}
			p.AuditInfo.CreatedBy = e.RecordedBy
			p.AuditInfo.CreatedAt = e.RecordedAt
			byID[e.ID] = p
			order = append(order, e.ID)
		}

		if e.StartDate.Before(p.StartDate) {
			p.StartDate = e.StartDate
		}
		if !e.RecordedAt.IsZero() && (p.AuditInfo.CreatedAt.IsZero() || e.RecordedAt.Before(p.AuditInfo.CreatedAt)) {
			p.AuditInfo.CreatedAt = e.RecordedAt
			if e.Status == PeriodOpen {
				p.AuditInfo.CreatedBy = e.RecordedBy
			}
		}

		if e.Status != PeriodClosed {
			continue
		}
		if p.EndDate != nil && !p.EndDate.Equal(e.EndDate) {
			return nil, fmt.Errorf("%w: period %s closed on both %s and %s", ErrDuplicateCloseAttempt, e.ID, p.EndDate, e.EndDate)
		}
		end := e.EndDate
		p.EndDate = &end
		p.AuditInfo.UpdatedBy = e.RecordedBy
		p.AuditInfo.UpdatedAt = e.RecordedAt
	}

	periods := make([]*Period, 0, len(order))
	for _, id := range order {
		p := byID[id]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}

	sort.SliceStable(periods, func(i, j int) bool {
		return periods[i].StartDate.Before(periods[j].StartDate)
	})
	return periods, nil
}
