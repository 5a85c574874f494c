package repository

import (
	"context"

	"github.com/nholding/cycle-book/internal/period/domain"
)

// PeriodEntryWriter persists the entry derived from a single period change.
// Saving the same entry twice must leave storage as if it had been saved once.
type PeriodEntryWriter interface {
	SavePeriodEntry(ctx context.Context, owner string, entry domain.PeriodEntry) error
}

// PeriodLoader reads back every period stored for owner, ordered by start date.
// This is called when a session is first used to populate its in-memory PeriodStore.
type PeriodLoader interface {
	LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error)
}

// PeriodRepository defines the interface for storing and retrieving Periods from a persistence layer.
type PeriodRepository interface {
	PeriodEntryWriter
	PeriodLoader
}
