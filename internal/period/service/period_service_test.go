package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nholding/cycle-book/internal/period/domain"
	"github.com/nholding/cycle-book/internal/period/repository"
)

// collectSink records enqueued changes in order.
type collectSink struct {
	mu      sync.Mutex
	owners  []string
	changes []domain.PeriodChange
}

func (c *collectSink) Enqueue(owner string, change domain.PeriodChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners = append(c.owners, owner)
	c.changes = append(c.changes, change)
	return true
}

type failingLoader struct{ calls int }

func (f *failingLoader) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	f.calls++
	return nil, errors.New("storage offline")
}

type staticLoader []*domain.Period

func (l staticLoader) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	return l, nil
}

// gatedLoader blocks loads of the "slow" owner until release is closed.
type gatedLoader struct {
	mu      sync.Mutex
	calls   map[string]int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLoader) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	g.mu.Lock()
	g.calls[owner]++
	g.mu.Unlock()
	if owner == "slow" {
		close(g.entered)
		<-g.release
	}
	return nil, nil
}

var june15 = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, loader repository.PeriodLoader, sink ChangeSink) *PeriodService {
	t.Helper()
	var n int
	return NewPeriodService(loader, sink, nil,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return june15 }),
		WithStoreOptions(domain.WithIDGenerator(func() string { n++; return fmt.Sprintf("P%d", n) })),
	)
}

func TestPeriodService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sink := &collectSink{}
	svc := newTestService(t, repository.NewMemoryPeriodRepository(), sink)

	p, err := svc.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-11"))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "P1" || !p.IsOpen() || p.AuditInfo.CreatedBy != "alice" {
		t.Fatalf("unexpected period %+v", p)
	}

	cur, err := svc.CurrentPeriod(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Period.ID != "P1" || cur.DayNumber != 5 {
		t.Fatalf("expected day 5 of P1, got %+v", cur)
	}

	closed, err := svc.EndPeriod(ctx, "alice", "P1", domain.MustParseDate("2024-06-15"))
	if err != nil {
		t.Fatal(err)
	}
	if closed.Status() != domain.PeriodClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status())
	}

	if _, err := svc.CurrentPeriod(ctx, "alice"); !errors.Is(err, domain.ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound once closed, got %v", err)
	}

	events, err := svc.Events(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}

	if len(sink.changes) != 2 || sink.changes[0].Kind != domain.ChangeStarted || sink.changes[1].Kind != domain.ChangeClosed {
		t.Fatalf("unexpected published changes %+v", sink.changes)
	}
	for _, o := range sink.owners {
		if o != "alice" {
			t.Fatalf("changes must be published for their owner, got %q", o)
		}
	}
}

func TestPeriodService_RejectionsPublishNothing(t *testing.T) {
	ctx := context.Background()
	sink := &collectSink{}
	svc := newTestService(t, repository.NewMemoryPeriodRepository(), sink)

	if _, err := svc.EndPeriod(ctx, "alice", "missing", svc.Today()); !errors.Is(err, domain.ErrPeriodNotFound) {
		t.Fatalf("expected ErrPeriodNotFound, got %v", err)
	}
	if _, err := svc.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-11")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-12")); !errors.Is(err, domain.ErrPeriodAlreadyOpen) {
		t.Fatalf("expected ErrPeriodAlreadyOpen, got %v", err)
	}
	if _, err := svc.EndPeriod(ctx, "alice", "P1", domain.MustParseDate("2024-06-01")); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}

	if len(sink.changes) != 1 {
		t.Fatalf("only the successful start should be published, got %d", len(sink.changes))
	}
}

func TestPeriodService_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := NewPeriodService(repository.NewMemoryPeriodRepository(), nil, nil)

	if _, err := svc.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-11")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartPeriod(ctx, "bob", domain.MustParseDate("2024-06-11")); err != nil {
		t.Fatalf("another owner must be able to open a period: %v", err)
	}

	periods, err := svc.Periods(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected bob to see only his own period, got %d", len(periods))
	}

	got := svc.Sessions()
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("unexpected sessions %v", got)
	}
}

func TestPeriodService_ReloadsFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryPeriodRepository()
	syncer := NewSyncer(repo, nil, 16, time.Second)
	go syncer.Run(ctx)

	first := NewPeriodService(repo, syncer, nil, WithClock(func() time.Time { return june15 }))
	p, err := first.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-11"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.EndPeriod(ctx, "alice", p.ID, domain.MustParseDate("2024-06-14")); err != nil {
		t.Fatal(err)
	}
	syncer.Close()

	second := NewPeriodService(repo, nil, nil)
	reloaded, err := second.PeriodByID(ctx, "alice", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.EndDate == nil || reloaded.EndDate.String() != "2024-06-14" {
		t.Fatalf("expected the closed period after reload, got %+v", reloaded)
	}
	events, _ := second.Events(ctx, "alice")
	if len(events) != 4 {
		t.Fatalf("expected events rebuilt on reload, got %d", len(events))
	}
}

func TestPeriodService_FailedLoadIsRetried(t *testing.T) {
	loader := &failingLoader{}
	svc := NewPeriodService(loader, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Periods(context.Background(), "alice"); err == nil {
			t.Fatal("expected the load error")
		}
	}
	if loader.calls != 2 {
		t.Fatalf("a failed load must not be cached, loader called %d times", loader.calls)
	}
	if n := len(svc.Sessions()); n != 0 {
		t.Fatalf("expected no sessions, got %d", n)
	}
}

func TestPeriodService_EmptyOwner(t *testing.T) {
	svc := NewPeriodService(repository.NewMemoryPeriodRepository(), nil, nil)
	if _, err := svc.Periods(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty owner")
	}
}

func TestRejectReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrPeriodNotFound, "not_found"},
		{fmt.Errorf("end: %w", domain.ErrDuplicateCloseAttempt), "duplicate_close"},
		{domain.ErrPeriodAlreadyOpen, "already_open"},
		{domain.ErrOverlappingPeriod, "overlap"},
		{domain.ErrInvalidRange, "invalid_range"},
		{domain.ErrInvalidDate, "invalid_date"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := RejectReason(tt.err); got != tt.want {
			t.Errorf("RejectReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPeriodService_StartAfterTodayIsRejected(t *testing.T) {
	ctx := context.Background()
	sink := &collectSink{}
	svc := newTestService(t, repository.NewMemoryPeriodRepository(), sink)

	if _, err := svc.StartPeriod(ctx, "alice", domain.MustParseDate("2024-06-20")); !errors.Is(err, domain.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if len(sink.changes) != 0 {
		t.Fatalf("a rejected start must not be published, got %d changes", len(sink.changes))
	}

	p, err := svc.StartPeriod(ctx, "alice", svc.Today())
	if err != nil {
		t.Fatalf("starting today must be allowed: %v", err)
	}
	cur, err := svc.CurrentPeriod(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if cur.Period.ID != p.ID || cur.DayNumber != 1 {
		t.Fatalf("expected day 1 of %s, got %+v", p.ID, cur)
	}
}

func TestPeriodService_StoredFutureStartHasDayZero(t *testing.T) {
	loader := staticLoader{{ID: "F", StartDate: domain.MustParseDate("2024-06-20")}}
	svc := newTestService(t, loader, nil)

	cur, err := svc.CurrentPeriod(context.Background(), "alice")
	if err != nil {
		t.Fatalf("a stored period starting after today must still be current: %v", err)
	}
	if cur.Period.ID != "F" || cur.DayNumber != 0 {
		t.Fatalf("expected F on day 0, got %+v", cur)
	}
}

func TestPeriodService_SlowLoadDoesNotBlockOtherOwners(t *testing.T) {
	ctx := context.Background()
	loader := &gatedLoader{
		calls:   make(map[string]int),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newTestService(t, loader, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Periods(ctx, "slow")
		done <- err
	}()
	<-loader.entered

	if _, err := svc.Periods(ctx, "fast"); err != nil {
		t.Fatal(err)
	}
	if got := svc.Sessions(); len(got) != 1 || got[0] != "fast" {
		t.Fatalf("expected only the fast session while slow loads, got %v", got)
	}

	close(loader.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Periods(ctx, "slow"); err != nil {
		t.Fatal(err)
	}
	if n := loader.calls["slow"]; n != 1 {
		t.Fatalf("expected one load of slow, got %d", n)
	}
}
