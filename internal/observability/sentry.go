package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Tags set on reported events.
const (
	TagService  = "service"
	TagOwner    = "owner"
	TagPeriodID = "period_id"
)

// InitSentry configures error reporting. An empty dsn disables it and returns a no-op flush.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          "cycle-book@" + release,
		AttachStacktrace: true,
	}); err != nil {
		return func() {}, err
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag(TagService, "cycle-book")
	})
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr reports an error that belongs to no session, e.g. a failed startup.
func CaptureErr(err error) {
	if err != nil {
		sentry.CaptureException(err)
	}
}

// CapturePeriodErr reports err tagged with the session owner and, when known,
// the period it happened for.
func CapturePeriodErr(owner, periodID string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if owner != "" {
			scope.SetTag(TagOwner, owner)
		}
		if periodID != "" {
			scope.SetTag(TagPeriodID, periodID)
		}
		sentry.CaptureException(err)
	})
}
