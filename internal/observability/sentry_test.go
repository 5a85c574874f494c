package observability

import (
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestCapturePeriodErr_Tags(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	err := sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	CapturePeriodErr("alice", "P1", errors.New("save failed"))
	CapturePeriodErr("bob", "", errors.New("list failed"))
	CapturePeriodErr("carol", "P2", nil)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	if events[0].Tags[TagOwner] != "alice" || events[0].Tags[TagPeriodID] != "P1" {
		t.Fatalf("unexpected tags %v", events[0].Tags)
	}
	if _, ok := events[1].Tags[TagPeriodID]; ok || events[1].Tags[TagOwner] != "bob" {
		t.Fatalf("unexpected tags %v", events[1].Tags)
	}
}

func TestInitSentry_EmptyDSN(t *testing.T) {
	flush, err := InitSentry("", "dev", "test")
	if err != nil {
		t.Fatal(err)
	}
	flush()
}
