package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nholding/cycle-book/internal/metrics"
	"github.com/nholding/cycle-book/internal/period/domain"
	"github.com/nholding/cycle-book/internal/period/repository"
)

// CurrentPeriod is the open period together with its 1-based day number for today.
type CurrentPeriod struct {
	Period    *domain.Period `json:"period"`
	DayNumber int            `json:"dayNumber"`
}

// session is one owner's store. mu keeps drain and enqueue in mutation order.
type session struct {
	mu    sync.Mutex
	store *domain.PeriodStore
}

type PeriodService struct {
	loader repository.PeriodLoader
	sink   ChangeSink
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time

	storeOpts []domain.Option

	mu       sync.Mutex
	sessions map[string]*session
	loads    singleflight.Group
}

// Option configures a PeriodService.
type Option func(*PeriodService)

// WithLocation sets the timezone "today" is computed in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *PeriodService) { s.loc = loc }
}

// WithClock overrides the time source for "today" and for the session stores.
func WithClock(now func() time.Time) Option {
	return func(s *PeriodService) { s.now = now }
}

// WithStoreOptions appends options passed to every session store it creates.
func WithStoreOptions(opts ...domain.Option) Option {
	return func(s *PeriodService) { s.storeOpts = append(s.storeOpts, opts...) }
}

func NewPeriodService(loader repository.PeriodLoader, sink ChangeSink, logger *zap.Logger, opts ...Option) *PeriodService {
	s := &PeriodService{
		loader:   loader,
		sink:     sink,
		logger:   logger,
		loc:      time.Local,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// session returns the store of owner, loading it on first use.
//
// PURPOSE:
//
//	Every owner gets exactly one PeriodStore for the lifetime of the process.
//	The first request of an owner seeds the store from persistent storage; every
//	later request is served from memory only.
//
// RESPONSIBILITIES (IN ORDER):
//
//  1. Return the cached store when the owner already has one
//  2. Load the owner's periods through the PeriodLoader, outside the registry lock
//  3. Seed a new PeriodStore (which validates the loaded periods)
//  4. Cache it
//
// Concurrent first requests of one owner share a single load. A failed load is
// not cached, so the next request retries it.
func (s *PeriodService) session(ctx context.Context, owner string) (*session, error) {
	if owner == "" {
		return nil, fmt.Errorf("session owner cannot be empty")
	}

	// STEP 1: cached
	if sess := s.cached(owner); sess != nil {
		return sess, nil
	}

	v, err, _ := s.loads.Do(owner, func() (any, error) {
		if sess := s.cached(owner); sess != nil {
			return sess, nil
		}

		// STEP 2: load from storage
		periods, err := s.loader.LoadPeriods(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to load periods of %s: %w", owner, err)
		}

		// STEP 3: seed the in-memory store
		opts := []domain.Option{domain.WithActor(owner), domain.WithClock(s.now)}
		opts = append(opts, s.storeOpts...)
		store, err := domain.NewPeriodStore(periods, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to seed periods of %s: %w", owner, err)
		}

		// STEP 4: cache
		sess := &session{store: store}
		s.mu.Lock()
		s.sessions[owner] = sess
		metrics.Sessions.Set(float64(len(s.sessions)))
		s.mu.Unlock()

		s.logger.Info("session loaded", zap.String("owner", owner), zap.Int("periods", len(periods)))
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (s *PeriodService) cached(owner string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[owner]
}

// Today returns the current calendar date in the configured timezone.
func (s *PeriodService) Today() domain.Date {
	return domain.Today(s.now(), s.loc)
}

// Location returns the timezone used for "today".
func (s *PeriodService) Location() *time.Location {
	return s.loc
}

// StartPeriod opens a new period for owner and returns it.
// A start date after today fails with domain.ErrInvalidRange.
func (s *PeriodService) StartPeriod(ctx context.Context, owner string, start domain.Date) (*domain.Period, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}
	if today := s.Today(); start.After(today) {
		err := fmt.Errorf("%w: start %s is after today %s", domain.ErrInvalidRange, start, today)
		s.rejected(owner, "start", err)
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	id, err := sess.store.StartNewPeriod(start)
	if err != nil {
		s.rejected(owner, "start", err)
		return nil, err
	}
	s.publish(owner, sess.store)

	s.logger.Info("period started",
		zap.String("owner", owner),
		zap.String("period_id", id),
		zap.Stringer("start", start),
	)
	return sess.store.FindPeriodByID(id)
}

// EndPeriod closes periodID of owner on end and returns the closed period.
func (s *PeriodService) EndPeriod(ctx context.Context, owner, periodID string, end domain.Date) (*domain.Period, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.store.EndExistingPeriod(periodID, end); err != nil {
		s.rejected(owner, "end", err)
		return nil, err
	}
	s.publish(owner, sess.store)
	metrics.CurrentDayNumber.WithLabelValues(owner).Set(0)

	s.logger.Info("period closed",
		zap.String("owner", owner),
		zap.String("period_id", periodID),
		zap.Stringer("end", end),
	)
	return sess.store.FindPeriodByID(periodID)
}

// CurrentPeriod returns the open period of owner and its day number for today.
// It fails with domain.ErrPeriodNotFound when no period is open. A stored period
// that starts after today is returned with DayNumber 0.
func (s *PeriodService) CurrentPeriod(ctx context.Context, owner string) (*CurrentPeriod, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}

	p, ok := sess.store.FindCurrentPeriod()
	if !ok {
		metrics.CurrentDayNumber.WithLabelValues(owner).Set(0)
		return nil, fmt.Errorf("%w: no open period", domain.ErrPeriodNotFound)
	}

	today := s.Today()
	if p.StartDate.After(today) {
		metrics.CurrentDayNumber.WithLabelValues(owner).Set(0)
		return &CurrentPeriod{Period: p}, nil
	}
	day, err := domain.CurrentPeriodDayNumber(p.StartDate, today)
	if err != nil {
		return nil, fmt.Errorf("period %s: %w", p.ID, err)
	}
	metrics.CurrentDayNumber.WithLabelValues(owner).Set(float64(day))

	return &CurrentPeriod{Period: p, DayNumber: day}, nil
}

func (s *PeriodService) PeriodByID(ctx context.Context, owner, periodID string) (*domain.Period, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}
	return sess.store.FindPeriodByID(periodID)
}

// Periods returns all periods of owner in insertion order.
func (s *PeriodService) Periods(ctx context.Context, owner string) ([]*domain.Period, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}
	return sess.store.Periods(), nil
}

// Events returns the event list of owner in insertion order.
func (s *PeriodService) Events(ctx context.Context, owner string) ([]domain.DayEvent, error) {
	sess, err := s.session(ctx, owner)
	if err != nil {
		return nil, err
	}
	return sess.store.Events(), nil
}

// Sessions returns the owners that currently have a loaded store, sorted.
func (s *PeriodService) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	owners := make([]string, 0, len(s.sessions))
	for owner := range s.sessions {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// publish drains the store's changes into the sink; callers hold the session lock.
func (s *PeriodService) publish(owner string, store *domain.PeriodStore) {
	for _, change := range store.DrainChanges() {
		switch change.Kind {
		case domain.ChangeStarted:
			metrics.PeriodsStarted.Inc()
			metrics.DayEventsDerived.Inc()
		case domain.ChangeClosed:
			metrics.PeriodsClosed.Inc()
			metrics.DayEventsDerived.Add(float64(len(change.Dates)))
		}
		if s.sink != nil {
			s.sink.Enqueue(owner, change)
		}
	}
}

func (s *PeriodService) rejected(owner, op string, err error) {
	reason := RejectReason(err)
	metrics.LifecycleRejections.WithLabelValues(reason).Inc()
	s.logger.Debug("lifecycle request rejected",
		zap.String("owner", owner),
		zap.String("op", op),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// RejectReason maps a lifecycle error to a short metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPeriodNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateCloseAttempt):
		return "duplicate_close"
	case errors.Is(err, domain.ErrPeriodAlreadyOpen):
		return "already_open"
	case errors.Is(err, domain.ErrOverlappingPeriod):
		return "overlap"
	case errors.Is(err, domain.ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, domain.ErrInvalidDate):
		return "invalid_date"
	default:
		return "other"
	}
}
