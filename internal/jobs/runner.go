package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

// Runner schedules jobs on cron expressions and records run, error and duration
// metrics per job name.
type Runner struct {
	ctx    context.Context
	cron   *cron.Cron
	logger *zap.Logger
}

func New(ctx context.Context, loc *time.Location, logger *zap.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ctx:    ctx,
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.Named("jobs"),
	}
}

// Schedule registers fn under name on a standard 5-field cron spec or a descriptor like "@hourly".
func (r *Runner) Schedule(spec, name string, fn Job) error {
	if _, err := r.cron.AddFunc(spec, func() { _ = r.Run(name, fn) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	r.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Every schedules fn at a fixed interval.
func (r *Runner) Every(interval time.Duration, name string, fn Job) error {
	return r.Schedule("@every "+interval.String(), name, fn)
}

// Run executes fn once immediately, with metrics and logging.
func (r *Runner) Run(name string, fn Job) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn(r.ctx)
	if err != nil {
		jobErrors.WithLabelValues(name).Inc()
		r.logger.Error("job failed", zap.String("job", name), zap.Error(err))
	} else {
		jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

// Start runs the scheduler until ctx is done.
func (r *Runner) Start() {
	r.cron.Start()
	go func() {
		<-r.ctx.Done()
		r.Stop()
	}()
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}
