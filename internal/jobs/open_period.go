package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nholding/cycle-book/internal/period/domain"
	"github.com/nholding/cycle-book/internal/period/service"
)

// OpenPeriodCheckName is the metric/job label of OpenPeriodCheck.
const OpenPeriodCheckName = "open-period-check"

// SessionSource is the part of the PeriodService the check reads from.
type SessionSource interface {
	Sessions() []string
	CurrentPeriod(ctx context.Context, owner string) (*service.CurrentPeriod, error)
}

// OpenPeriodCheck refreshes the current-day gauge of every loaded session and
// warns about open periods whose day number exceeds maxOpenDays.
func OpenPeriodCheck(src SessionSource, maxOpenDays int, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		var (
			errs    []error
			overdue int
		)
		for _, owner := range src.Sessions() {
			cur, err := src.CurrentPeriod(ctx, owner)
			if errors.Is(err, domain.ErrPeriodNotFound) {
				continue
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", owner, err))
				continue
			}
			if cur.DayNumber > maxOpenDays {
				overdue++
				logger.Warn("period open too long",
					zap.String("owner", owner),
					zap.String("period_id", cur.Period.ID),
					zap.Stringer("start", cur.Period.StartDate),
					zap.Int("day_number", cur.DayNumber),
					zap.Int("max_open_days", maxOpenDays),
				)
			}
		}
		openPeriodsOverdue.Set(float64(overdue))
		return errors.Join(errs...)
	}
}
