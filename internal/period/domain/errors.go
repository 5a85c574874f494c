package domain

import "errors"

// Lifecycle errors. Operations wrap these with fmt.Errorf("%w: ...") so callers
// can match them with errors.Is while still getting the period id in the message.
var (
	// ErrPeriodNotFound is returned when an id is not present in the store.
	ErrPeriodNotFound = errors.New("period not found")

	// ErrInvalidRange is returned when an end date lies before its start date.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrDuplicateCloseAttempt is returned when a CLOSED period is ended again.
	ErrDuplicateCloseAttempt = errors.New("period already closed")

	// ErrPeriodAlreadyOpen is returned when a period is started while another is still open.
	ErrPeriodAlreadyOpen = errors.New("another period is still open")

	// ErrOverlappingPeriod is returned when two periods would share a calendar day.
	ErrOverlappingPeriod = errors.New("periods overlap")

	// ErrInvalidDate is returned for unparsable or missing calendar dates.
	ErrInvalidDate = errors.New("invalid date")
)
