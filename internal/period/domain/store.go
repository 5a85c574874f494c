package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nholding/cycle-book/internal/audit"
	"github.com/nholding/cycle-book/internal/utils"
)

// PeriodStore keeps one user's periods and their derived DayEvents in memory.
// All mutations go through the lifecycle operations below; periods are never removed.
//
// Every successful mutation also records a PeriodChange. Callers collect them with
// DrainChanges and hand them to persistence, which keeps storage out of the
// critical path.
//
// A PeriodStore is safe for concurrent use. Each store guards its own state, so
// a service handling several sessions keeps one store per session.
//
// Example usage:
//
//	ps, _ := NewPeriodStore(nil)
//	id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
//	_ = ps.EndExistingPeriod(id, MustParseDate("2024-06-15"))
//	ps.Events() // → start 06-11, then 06-12 … 06-15
type PeriodStore struct {
	mu      sync.RWMutex
	periods map[string]*Period // Lookup by ID
	order   []string           // Insertion order of IDs
	events  EventList
	changes []PeriodChange

	now      func() time.Time
	newID    func() string
	newLabel func() string
	actor    string
	maxDays  int
}

// DefaultMaxPeriodDays is the longest period, in calendar days including the
// start day, that EndExistingPeriod accepts unless WithMaxPeriodDays says otherwise.
const DefaultMaxPeriodDays = 366

// Option configures a PeriodStore.
type Option func(*PeriodStore)

// WithClock overrides the time source used for audit stamps and change facts.
func WithClock(now func() time.Time) Option {
	return func(ps *PeriodStore) { ps.now = now }
}

// WithIDGenerator overrides the period id generator (ULIDs by default).
func WithIDGenerator(fn func() string) Option {
	return func(ps *PeriodStore) { ps.newID = fn }
}

// WithLabelGenerator overrides the per-day event label generator.
func WithLabelGenerator(fn func() string) Option {
	return func(ps *PeriodStore) { ps.newLabel = fn }
}

// WithActor sets who is recorded in the audit info of created and closed periods.
func WithActor(actor string) Option {
	return func(ps *PeriodStore) { ps.actor = actor }
}

// WithMaxPeriodDays caps how many calendar days a closed period may span,
// counting the start day. Values below 1 keep DefaultMaxPeriodDays.
func WithMaxPeriodDays(n int) Option {
	return func(ps *PeriodStore) {
		if n > 0 {
			ps.maxDays = n
		}
	}
}

// NewPeriodStore initializes a PeriodStore, optionally seeded with existing periods.
//
// The event list is rebuilt from the seed: one "start" event per period and, for
// closed periods, one event per following day up to the end date.
//
// Seeding fails if a period is invalid, an id appears twice, more than one period
// is open, or two periods overlap.
//
// Example:
//
//	periods, _ := repo.LoadPeriods(ctx, owner)
//	store, err := NewPeriodStore(periods, WithActor(owner))
func NewPeriodStore(seed []*Period, opts ...Option) (*PeriodStore, error) {
	ps := &PeriodStore{
		periods:  make(map[string]*Period),
		now:      time.Now,
		newID:    utils.GenerateStableID,
		newLabel: NewDayLabel,
		maxDays:  DefaultMaxPeriodDays,
	}
	for _, opt := range opts {
		opt(ps)
	}

	var open *Period
	for _, p := range seed {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("seed period: %w", err)
		}
		if _, exists := ps.periods[p.ID]; exists {
			return nil, fmt.Errorf("seed period: duplicate id %s", p.ID)
		}
		if p.IsOpen() {
			if open != nil {
				return nil, fmt.Errorf("%w: seed has both %s and %s open", ErrPeriodAlreadyOpen, open.ID, p.ID)
			}
			open = p
		}

		c := p.Clone()
		ps.periods[c.ID] = c
		ps.order = append(ps.order, c.ID)
	}

	if errs := DetectOverlaps(ps.list()); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, id := range ps.order {
		p := ps.periods[id]
		ps.events.Append(NewStartEvent(p.ID, p.StartDate))
		if p.EndDate == nil {
			continue
		}
		days, err := DaysBetweenExclusiveStartInclusiveEnd(p.StartDate, *p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("seed period %s: %w", p.ID, err)
		}
		ps.events.Append(DeriveDayEvents(days, p.ID, ps.newLabel)...)
	}

	return ps, nil
}

// StartNewPeriod opens a new period on startDate and returns its id.
//
// It inserts an OPEN period, appends the single "start" DayEvent for startDate and
// records a ChangeStarted fact.
//
// Errors:
//   - ErrInvalidDate if startDate is the zero date
//   - ErrPeriodAlreadyOpen if another period has not been closed yet
//   - ErrOverlappingPeriod if startDate falls inside an existing period
func (ps *PeriodStore) StartNewPeriod(startDate Date) (string, error) {
	if startDate.IsZero() {
		return "", fmt.Errorf("%w: a period needs a start date", ErrInvalidDate)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if current := ps.current(); current != nil {
		return "", fmt.Errorf("%w: period %s started %s", ErrPeriodAlreadyOpen, current.ID, current.StartDate)
	}
	if o := overlapping(ps.list(), "", startDate, startDate); o != nil {
		return "", fmt.Errorf("%w: %s falls inside period %s", ErrOverlappingPeriod, startDate, o.ID)
	}

	now := ps.now()
	p := &Period{
		ID:        ps.newID(),
		StartDate: startDate,
		AuditInfo: *audit.NewAuditInfo(ps.actor, now),
	}
	ps.periods[p.ID] = p
	ps.order = append(ps.order, p.ID)

	ps.events.Append(NewStartEvent(p.ID, startDate))
	ps.changes = append(ps.changes, PeriodChange{
		Kind:   ChangeStarted,
		Period: *p.Clone(),
		Dates:  []Date{startDate},
		At:     now,
	})

	return p.ID, nil
}

// EndExistingPeriod closes periodID on endDate.
//
// It sets the end date, appends one DayEvent for every day after the start up to
// and including endDate and records a ChangeClosed fact. Nothing is changed when an
// error is returned.
//
// Errors:
//   - ErrPeriodNotFound if periodID is unknown
//   - ErrDuplicateCloseAttempt if the period is already CLOSED
//   - ErrInvalidRange if endDate is before the start date, or the period would
//     span more than the configured maximum number of days
//   - ErrOverlappingPeriod if the closed range would run into another period
func (ps *PeriodStore) EndExistingPeriod(periodID string, endDate Date) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.periods[periodID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPeriodNotFound, periodID)
	}
	if !p.IsOpen() {
		return fmt.Errorf("%w: period %s ended %s", ErrDuplicateCloseAttempt, p.ID, p.EndDate)
	}

	if !endDate.IsZero() && endDate.DaysSince(p.StartDate) >= ps.maxDays {
		return fmt.Errorf("end period %s: %w: %s to %s spans more than %d days",
			p.ID, ErrInvalidRange, p.StartDate, endDate, ps.maxDays)
	}
	days, err := DaysBetweenExclusiveStartInclusiveEnd(p.StartDate, endDate)
	if err != nil {
		return fmt.Errorf("end period %s: %w", p.ID, err)
	}
	if o := overlapping(ps.list(), p.ID, p.StartDate, endDate); o != nil {
		return fmt.Errorf("%w: closing %s on %s runs into period %s", ErrOverlappingPeriod, p.ID, endDate, o.ID)
	}

	now := ps.now()
	end := endDate
	p.EndDate = &end
	p.AuditInfo.UpdateAuditInfo(ps.actor, now)

	ps.events.Append(DeriveDayEvents(days, p.ID, ps.newLabel)...)
	ps.changes = append(ps.changes, PeriodChange{
		Kind:   ChangeClosed,
		Period: *p.Clone(),
		Dates:  days,
		At:     now,
	})

	return nil
}

// FindCurrentPeriod returns the period whose end date is not set yet.
//
// At most one period can be open, because StartNewPeriod and NewPeriodStore both
// refuse a second one. Should that ever be violated, the most recently inserted
// open period is returned.
func (ps *PeriodStore) FindCurrentPeriod() (*Period, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if p := ps.current(); p != nil {
		return p.Clone(), true
	}
	return nil, false
}

// FindPeriodByID retrieves a copy of the period with the given id.
func (ps *PeriodStore) FindPeriodByID(periodID string) (*Period, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.periods[periodID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeriodNotFound, periodID)
	}
	return p.Clone(), nil
}

// Periods returns copies of all periods in insertion order.
func (ps *PeriodStore) Periods() []*Period {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]*Period, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.periods[id].Clone())
	}
	return out
}

// Events returns the full event list in insertion order.
func (ps *PeriodStore) Events() []DayEvent {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.events.All()
}

// EventsForPeriod returns the events of a single period in insertion order.
func (ps *PeriodStore) EventsForPeriod(periodID string) ([]DayEvent, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if _, ok := ps.periods[periodID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeriodNotFound, periodID)
	}
	return ps.events.ForPeriod(periodID), nil
}

// DrainChanges returns the change facts recorded since the last call and clears them.
func (ps *PeriodStore) DrainChanges() []PeriodChange {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	out := ps.changes
	ps.changes = nil
	return out
}

// current scans newest first; callers must hold the lock.
func (ps *PeriodStore) current() *Period {
	for i := len(ps.order) - 1; i >= 0; i-- {
		if p := ps.periods[ps.order[i]]; p.IsOpen() {
			return p
		}
	}
	return nil
}

// list returns the stored pointers in insertion order; callers must hold the lock.
func (ps *PeriodStore) list() []*Period {
	out := make([]*Period, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.periods[id])
	}
	return out
}
