package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nholding/cycle-book/internal/metrics"
	"github.com/nholding/cycle-book/internal/observability"
	"github.com/nholding/cycle-book/internal/period/domain"
	"github.com/nholding/cycle-book/internal/period/repository"
)

// ChangeSink accepts period changes for persistence without blocking the caller.
type ChangeSink interface {
	Enqueue(owner string, change domain.PeriodChange) bool
}

type queuedChange struct {
	owner  string
	change domain.PeriodChange
}

// Syncer persists period changes in the background, fire-and-forget.
//
// Enqueue never blocks: when the queue is full the change is dropped, logged and
// counted. A failed save is logged, counted and reported, and never retried. The
// in-memory state stays authoritative either way.
//
// Example:
//
//	syncer := NewSyncer(repo, logger, 256, 5*time.Second)
//	go syncer.Run(ctx)
//	defer syncer.Close()
type Syncer struct {
	writer  repository.PeriodEntryWriter
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan queuedChange
	done   chan struct{}
}

func NewSyncer(writer repository.PeriodEntryWriter, logger *zap.Logger, queueSize int, timeout time.Duration) *Syncer {
	if queueSize <= 0 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		writer:  writer,
		logger:  logger.Named("sync"),
		timeout: timeout,
		queue:   make(chan queuedChange, queueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue hands a change to the background worker and reports whether it was accepted.
func (s *Syncer) Enqueue(owner string, change domain.PeriodChange) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop(owner, change, "syncer closed")
		return false
	}
	select {
	case s.queue <- queuedChange{owner: owner, change: change}:
		return true
	default:
		s.drop(owner, change, "queue full")
		return false
	}
}

// Run saves queued changes until the syncer is closed or ctx is done, then drains
// whatever is still queued. Saves run with their own timeout and survive ctx cancellation.
func (s *Syncer) Run(ctx context.Context) {
	defer close(s.done)

	stop := context.AfterFunc(ctx, s.stopIntake)
	defer stop()

	base := context.WithoutCancel(ctx)
	for qc := range s.queue {
		s.save(base, qc)
	}
}

// Close stops accepting changes and waits until Run has drained the queue.
// Run must have been started.
func (s *Syncer) Close() {
	s.stopIntake()
	<-s.done
}

func (s *Syncer) stopIntake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
}

func (s *Syncer) save(ctx context.Context, qc queuedChange) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry := qc.change.Entry()
	if err := s.writer.SavePeriodEntry(ctx, qc.owner, entry); err != nil {
		metrics.SyncSaves.WithLabelValues("error").Inc()
		s.logger.Error("save period entry",
			zap.String("owner", qc.owner),
			zap.String("period_id", entry.ID),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
		observability.CapturePeriodErr(qc.owner, entry.ID, err)
		return
	}
	metrics.SyncSaves.WithLabelValues("ok").Inc()
	s.logger.Debug("saved period entry",
		zap.String("owner", qc.owner),
		zap.String("period_id", entry.ID),
		zap.Int("duration", entry.Duration),
	)
}

func (s *Syncer) drop(owner string, change domain.PeriodChange, reason string) {
	metrics.SyncDropped.Inc()
	s.logger.Warn("dropped period change",
		zap.String("owner", owner),
		zap.String("period_id", change.Period.ID),
		zap.String("kind", string(change.Kind)),
		zap.String("reason", reason),
	)
}
