package domain

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 6, 11, 8, 0, 0, 0, time.UTC)

// newTestStore builds a store with predictable ids ("P1", "P2", ...) and labels.
func newTestStore(t *testing.T, seed []*Period) *PeriodStore {
	t.Helper()
	var ids, labels int
	ps, err := NewPeriodStore(seed,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { ids++; return fmt.Sprintf("P%d", ids) }),
		WithLabelGenerator(func() string { labels++; return fmt.Sprintf("day-%d", labels) }),
		WithActor("alice"),
	)
	if err != nil {
		t.Fatal(err)
	}
	return ps
}

func closedPeriod(id, start, end string) *Period {
	e := MustParseDate(end)
	return &Period{ID: id, StartDate: MustParseDate(start), EndDate: &e}
}

func TestStartNewPeriod(t *testing.T) {
	ps := newTestStore(t, nil)

	id, err := ps.StartNewPeriod(MustParseDate("2024-06-11"))
	if err != nil {
		t.Fatal(err)
	}

	periods := ps.Periods()
	if len(periods) != 1 {
		t.Fatalf("expected one period, got %d", len(periods))
	}
	p := periods[0]
	if p.ID != id || p.Status() != PeriodOpen || p.StartDate.String() != "2024-06-11" {
		t.Fatalf("unexpected period %+v", p)
	}
	if p.AuditInfo.CreatedBy != "alice" || !p.AuditInfo.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected audit %+v", p.AuditInfo)
	}

	events := ps.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", events)
	}
	if events[0].Date.String() != "2024-06-11" || events[0].Title != StartEventTitle || events[0].PeriodID != id {
		t.Fatalf("unexpected start event %+v", events[0])
	}

	changes := ps.DrainChanges()
	if len(changes) != 1 || changes[0].Kind != ChangeStarted || changes[0].Period.ID != id {
		t.Fatalf("unexpected changes %+v", changes)
	}
	if again := ps.DrainChanges(); len(again) != 0 {
		t.Fatalf("drain must clear the outbox, got %+v", again)
	}
}

func TestEndExistingPeriod(t *testing.T) {
	ps := newTestStore(t, nil)
	id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
	ps.DrainChanges()

	if err := ps.EndExistingPeriod(id, MustParseDate("2024-06-15")); err != nil {
		t.Fatal(err)
	}

	p, err := ps.FindPeriodByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status() != PeriodClosed || p.EndDate.String() != "2024-06-15" {
		t.Fatalf("expected CLOSED on 2024-06-15, got %+v", p)
	}
	if p.AuditInfo.UpdatedBy != "alice" {
		t.Fatalf("close must stamp the audit info, got %+v", p.AuditInfo)
	}

	events := ps.Events()
	if len(events) != 5 {
		t.Fatalf("expected start + 4 day events, got %d", len(events))
	}
	want := []string{"2024-06-12", "2024-06-13", "2024-06-14", "2024-06-15"}
	seenLabels := map[string]bool{}
	for i, e := range events[1:] {
		if e.Date.String() != want[i] || e.PeriodID != id {
			t.Fatalf("event %d: unexpected %+v", i, e)
		}
		if e.IsStart() || seenLabels[e.Title] {
			t.Fatalf("day events need fresh unique labels, got %q", e.Title)
		}
		seenLabels[e.Title] = true
	}

	changes := ps.DrainChanges()
	if len(changes) != 1 || changes[0].Kind != ChangeClosed || len(changes[0].Dates) != 4 {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestEndExistingPeriod_DayEventsMatchPeriodDays(t *testing.T) {
	ps := newTestStore(t, nil)
	id, _ := ps.StartNewPeriod(MustParseDate("2024-02-26"))
	if err := ps.EndExistingPeriod(id, MustParseDate("2024-03-03")); err != nil {
		t.Fatal(err)
	}

	p, _ := ps.FindPeriodByID(id)
	days := p.Days()
	events, err := ps.EventsForPeriod(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != len(events) {
		t.Fatalf("expected %d events, got %d", len(days), len(events))
	}
	for i := range days {
		if !events[i].Date.Equal(days[i]) {
			t.Fatalf("event %d dated %s, want %s", i, events[i].Date, days[i])
		}
	}
}

func TestEndExistingPeriod_Errors(t *testing.T) {
	t.Run("unknown_id", func(t *testing.T) {
		ps := newTestStore(t, nil)
		err := ps.EndExistingPeriod("nope", MustParseDate("2024-06-15"))
		if !errors.Is(err, ErrPeriodNotFound) {
			t.Fatalf("expected ErrPeriodNotFound, got %v", err)
		}
	})

	t.Run("reversed_range_leaves_state_untouched", func(t *testing.T) {
		ps := newTestStore(t, nil)
		id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
		ps.DrainChanges()

		err := ps.EndExistingPeriod(id, MustParseDate("2024-06-10"))
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
		p, _ := ps.FindPeriodByID(id)
		if !p.IsOpen() {
			t.Fatal("period must stay OPEN after a rejected close")
		}
		if n := len(ps.Events()); n != 1 {
			t.Fatalf("expected only the start event, got %d", n)
		}
		if c := ps.DrainChanges(); len(c) != 0 {
			t.Fatalf("rejected close must not record changes, got %+v", c)
		}
	})

	t.Run("second_close_is_rejected", func(t *testing.T) {
		ps := newTestStore(t, nil)
		id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-06-15")); err != nil {
			t.Fatal(err)
		}
		ps.DrainChanges()

		err := ps.EndExistingPeriod(id, MustParseDate("2024-06-15"))
		if !errors.Is(err, ErrDuplicateCloseAttempt) {
			t.Fatalf("expected ErrDuplicateCloseAttempt, got %v", err)
		}
		if n := len(ps.Events()); n != 5 {
			t.Fatalf("duplicate close must not append events, have %d", n)
		}
		if c := ps.DrainChanges(); len(c) != 0 {
			t.Fatalf("duplicate close must not record changes, got %+v", c)
		}
	})

	t.Run("close_into_later_period", func(t *testing.T) {
		ps := newTestStore(t, []*Period{closedPeriod("APR", "2024-04-05", "2024-04-09")})
		id, err := ps.StartNewPeriod(MustParseDate("2024-03-01"))
		if err != nil {
			t.Fatal(err)
		}
		err = ps.EndExistingPeriod(id, MustParseDate("2024-04-06"))
		if !errors.Is(err, ErrOverlappingPeriod) {
			t.Fatalf("expected ErrOverlappingPeriod, got %v", err)
		}
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-03-05")); err != nil {
			t.Fatalf("a close before the later period must succeed: %v", err)
		}
	})

	t.Run("range_longer_than_cap", func(t *testing.T) {
		ps := newTestStore(t, nil)
		id, _ := ps.StartNewPeriod(MustParseDate("0001-01-01"))
		ps.DrainChanges()

		err := ps.EndExistingPeriod(id, MustParseDate("9999-12-31"))
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
		if n := len(ps.Events()); n != 1 {
			t.Fatalf("rejected close must not derive days, have %d events", n)
		}
		if c := ps.DrainChanges(); len(c) != 0 {
			t.Fatalf("rejected close must not record changes, got %+v", c)
		}
	})

	t.Run("cap_counts_the_start_day", func(t *testing.T) {
		ps, err := NewPeriodStore(nil, WithMaxPeriodDays(5))
		if err != nil {
			t.Fatal(err)
		}
		id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-06-16")); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("a six day period must exceed a cap of five, got %v", err)
		}
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-06-15")); err != nil {
			t.Fatalf("a five day period must fit a cap of five: %v", err)
		}
	})

	t.Run("default_cap_is_a_leap_year", func(t *testing.T) {
		ps := newTestStore(t, nil)
		id, _ := ps.StartNewPeriod(MustParseDate("2024-01-01"))
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-12-31")); err != nil {
			t.Fatalf("a 366 day period must be accepted: %v", err)
		}
	})

	t.Run("same_day_close", func(t *testing.T) {
		ps := newTestStore(t, nil)
		id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
		if err := ps.EndExistingPeriod(id, MustParseDate("2024-06-11")); err != nil {
			t.Fatal(err)
		}
		if n := len(ps.Events()); n != 1 {
			t.Fatalf("same-day close derives no days, have %d events", n)
		}
	})
}

func TestStartNewPeriod_Errors(t *testing.T) {
	t.Run("already_open", func(t *testing.T) {
		ps := newTestStore(t, nil)
		first, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))

		_, err := ps.StartNewPeriod(MustParseDate("2024-07-09"))
		if !errors.Is(err, ErrPeriodAlreadyOpen) {
			t.Fatalf("expected ErrPeriodAlreadyOpen, got %v", err)
		}
		if n := len(ps.Periods()); n != 1 {
			t.Fatalf("rejected start must not insert, have %d periods", n)
		}

		if err := ps.EndExistingPeriod(first, MustParseDate("2024-06-15")); err != nil {
			t.Fatal(err)
		}
		if _, err := ps.StartNewPeriod(MustParseDate("2024-07-09")); err != nil {
			t.Fatalf("start after close must succeed: %v", err)
		}
	})

	t.Run("inside_closed_period", func(t *testing.T) {
		ps := newTestStore(t, []*Period{closedPeriod("JUN", "2024-06-11", "2024-06-15")})
		_, err := ps.StartNewPeriod(MustParseDate("2024-06-15"))
		if !errors.Is(err, ErrOverlappingPeriod) {
			t.Fatalf("expected ErrOverlappingPeriod, got %v", err)
		}
	})

	t.Run("zero_date", func(t *testing.T) {
		ps := newTestStore(t, nil)
		if _, err := ps.StartNewPeriod(Date{}); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("expected ErrInvalidDate, got %v", err)
		}
	})
}

func TestFindCurrentPeriod(t *testing.T) {
	ps := newTestStore(t, []*Period{closedPeriod("MAY", "2024-05-14", "2024-05-18")})

	if _, ok := ps.FindCurrentPeriod(); ok {
		t.Fatal("no period should be current when all are CLOSED")
	}

	id, _ := ps.StartNewPeriod(MustParseDate("2024-06-11"))
	cur, ok := ps.FindCurrentPeriod()
	if !ok || cur.ID != id {
		t.Fatalf("expected current %s, got %+v", id, cur)
	}

	// Mutating the returned copy must not leak into the store.
	end := MustParseDate("2024-06-12")
	cur.EndDate = &end
	if again, ok := ps.FindCurrentPeriod(); !ok || !again.IsOpen() {
		t.Fatal("store state changed through a returned copy")
	}
}

func TestFindPeriodByID_Unknown(t *testing.T) {
	ps := newTestStore(t, nil)
	if _, err := ps.FindPeriodByID("missing"); !errors.Is(err, ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
	if _, err := ps.EventsForPeriod("missing"); !errors.Is(err, ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
}

func TestNewPeriodStore_Seed(t *testing.T) {
	t.Run("rebuilds_events", func(t *testing.T) {
		open := &Period{ID: "JUN", StartDate: MustParseDate("2024-06-11")}
		ps := newTestStore(t, []*Period{closedPeriod("MAY", "2024-05-14", "2024-05-18"), open})

		events := ps.Events()
		if len(events) != 6 {
			t.Fatalf("expected 5 events for MAY and 1 for JUN, got %d", len(events))
		}
		if !events[0].IsStart() || events[0].PeriodID != "MAY" || !events[5].IsStart() || events[5].PeriodID != "JUN" {
			t.Fatalf("unexpected event order %+v", events)
		}
		if c := ps.DrainChanges(); len(c) != 0 {
			t.Fatalf("seeding must not record changes, got %+v", c)
		}
	})

	cases := map[string]struct {
		seed []*Period
		want error
	}{
		"two_open": {
			seed: []*Period{
				{ID: "A", StartDate: MustParseDate("2024-05-14")},
				{ID: "B", StartDate: MustParseDate("2024-06-11")},
			},
			want: ErrPeriodAlreadyOpen,
		},
		"overlap": {
			seed: []*Period{
				closedPeriod("A", "2024-06-11", "2024-06-15"),
				closedPeriod("B", "2024-06-14", "2024-06-18"),
			},
			want: ErrOverlappingPeriod,
		},
		"reversed": {
			seed: []*Period{closedPeriod("A", "2024-06-15", "2024-06-11")},
			want: ErrInvalidRange,
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPeriodStore(c.seed)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}

	t.Run("duplicate_id", func(t *testing.T) {
		_, err := NewPeriodStore([]*Period{
			closedPeriod("A", "2024-05-14", "2024-05-18"),
			closedPeriod("A", "2024-06-11", "2024-06-15"),
		})
		if err == nil {
			t.Fatal("expected duplicate id error")
		}
	})
}

func TestPeriodStore_ConcurrentStarts(t *testing.T) {
	ps, err := NewPeriodStore(nil)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ps.StartNewPeriod(MustParseDate("2024-06-11"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrPeriodAlreadyOpen):
				rejected++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || rejected != 49 {
		t.Fatalf("expected exactly one successful start, got ok=%d rejected=%d", ok, rejected)
	}
	if n := len(ps.Events()); n != 1 {
		t.Fatalf("expected a single start event, got %d", n)
	}
}
