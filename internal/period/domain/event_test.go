package domain

import (
	"strings"
	"testing"
)

func TestDeriveDayEvents(t *testing.T) {
	days, err := DaysBetweenExclusiveStartInclusiveEnd(MustParseDate("2024-06-11"), MustParseDate("2024-06-15"))
	if err != nil {
		t.Fatal(err)
	}

	events := DeriveDayEvents(days, "P1", nil)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	seen := map[string]bool{}
	for i, e := range events {
		if !e.Date.Equal(days[i]) || e.PeriodID != "P1" {
			t.Fatalf("event %d: unexpected %+v", i, e)
		}
		if !strings.HasPrefix(e.Title, "day-") || seen[e.Title] {
			t.Fatalf("event %d: expected a fresh day label, got %q", i, e.Title)
		}
		if e.IsStart() {
			t.Fatalf("event %d must not be a start event", i)
		}
		seen[e.Title] = true
	}

	if got := DeriveDayEvents(nil, "P1", nil); len(got) != 0 {
		t.Fatalf("no dates should derive no events, got %v", got)
	}
}

func TestEventList(t *testing.T) {
	var l EventList
	l.Append(NewStartEvent("A", MustParseDate("2024-05-14")))
	l.Append(NewStartEvent("B", MustParseDate("2024-06-11")))
	l.Append(DayEvent{Date: MustParseDate("2024-05-15"), Title: "day-x", PeriodID: "A"})

	if l.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", l.Len())
	}

	forA := l.ForPeriod("A")
	if len(forA) != 2 || !forA[0].IsStart() || forA[1].Title != "day-x" {
		t.Fatalf("unexpected events for A: %+v", forA)
	}

	all := l.All()
	all[0].Title = "changed"
	if l.All()[0].Title != StartEventTitle {
		t.Fatal("All must return a copy")
	}
}
