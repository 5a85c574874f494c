package repository

import (
	"context"
	"sync"

	"github.com/nholding/cycle-book/internal/period/domain"
)

// MemoryPeriodRepository keeps every saved entry per owner in process memory.
// It backs the "memory" storage driver and the service tests.
type MemoryPeriodRepository struct {
	mu      sync.Mutex
	entries map[string][]domain.PeriodEntry
}

func NewMemoryPeriodRepository() *MemoryPeriodRepository {
	return &MemoryPeriodRepository{entries: make(map[string][]domain.PeriodEntry)}
}

func (m *MemoryPeriodRepository) SavePeriodEntry(ctx context.Context, owner string, entry domain.PeriodEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[owner] = append(m.entries[owner], entry)
	return nil
}

// LoadPeriods folds the stored entries of owner back into periods.
func (m *MemoryPeriodRepository) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	entries := append([]domain.PeriodEntry(nil), m.entries[owner]...)
	m.mu.Unlock()

	return domain.FoldEntries(entries)
}

// Entries returns a copy of the entries saved for owner, in save order.
func (m *MemoryPeriodRepository) Entries(owner string) []domain.PeriodEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PeriodEntry(nil), m.entries[owner]...)
}
