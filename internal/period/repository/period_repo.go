package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nholding/cycle-book/internal/period/domain"
	awsclient "github.com/nholding/cycle-book/internal/repository"
)

type RdsPeriodRepository struct {
	db *sql.DB
}

// NewRdsPeriodRepository connects to RDS with IAM authentication.
func NewRdsPeriodRepository(ctx context.Context, cfg *awsclient.Config) (*RdsPeriodRepository, error) {
	rdsClient, err := cfg.NewRDSClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed creating the AWS RDS Client: %w", err)
	}

	return &RdsPeriodRepository{db: rdsClient.Client}, nil
}

// NewSQLPeriodRepository wraps an already opened database, e.g. one from DATABASE_URL.
func NewSQLPeriodRepository(db *sql.DB) *RdsPeriodRepository {
	return &RdsPeriodRepository{db: db}
}

// DB exposes the underlying connection for migrations and health checks.
func (r *RdsPeriodRepository) DB() *sql.DB {
	return r.db
}

// SavePeriodEntry upserts the period row and inserts its daily entries in one transaction.
//
// The end date and update audit columns are only written by CLOSED entries, so an
// OPEN entry replayed after the close does not reopen the period. Daily rows that
// already exist are left untouched, which makes re-saving an entry a no-op.
//
// Example:
//
//	ctx := context.TODO()
//	for _, change := range store.DrainChanges() {
//	    err := repo.SavePeriodEntry(ctx, owner, change.Entry())
//	}
func (r *RdsPeriodRepository) SavePeriodEntry(ctx context.Context, owner string, entry domain.PeriodEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var (
		endDate   any
		updatedBy sql.NullString
		updatedAt sql.NullTime
	)
	if entry.Status == domain.PeriodClosed {
		endDate = entry.EndDate
		updatedBy = sql.NullString{String: entry.RecordedBy, Valid: true}
		updatedAt = sql.NullTime{Time: entry.RecordedAt, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO periods (
			id, owner, start_date, end_date,
			audit_created_by, audit_created_at, audit_updated_by, audit_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			end_date         = COALESCE(EXCLUDED.end_date, periods.end_date),
			audit_updated_by = COALESCE(EXCLUDED.audit_updated_by, periods.audit_updated_by),
			audit_updated_at = COALESCE(EXCLUDED.audit_updated_at, periods.audit_updated_at)
		WHERE periods.owner = EXCLUDED.owner
	`,
		entry.ID,
		owner,
		entry.StartDate,
		endDate,
		entry.RecordedBy,
		entry.RecordedAt,
		updatedBy,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert period %s: %w", entry.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("period %s belongs to another owner", entry.ID)
	}

	if len(entry.DailyEntries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO period_days (period_id, day) VALUES ($1, $2)
			ON CONFLICT (period_id, day) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, d := range entry.DailyEntries {
			if _, err := stmt.ExecContext(ctx, entry.ID, d.Date); err != nil {
				return fmt.Errorf("failed to insert day %s of period %s: %w", d.Date, entry.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadPeriods retrieves all periods of owner from the DB, oldest first.
func (r *RdsPeriodRepository) LoadPeriods(ctx context.Context, owner string) ([]*domain.Period, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, start_date, end_date, audit_created_by, audit_created_at, audit_updated_by, audit_updated_at
		FROM periods
		WHERE owner = $1
		ORDER BY start_date, audit_created_at
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []*domain.Period
	for rows.Next() {
		p := &domain.Period{}
		var (
			updatedBy sql.NullString
			updatedAt sql.NullTime
		)
		if err := rows.Scan(
			&p.ID,
			&p.StartDate,
			&p.EndDate,
			&p.AuditInfo.CreatedBy,
			&p.AuditInfo.CreatedAt,
			&updatedBy,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan period row: %w", err)
		}
		p.AuditInfo.UpdatedBy = updatedBy.String
		if updatedAt.Valid {
			p.AuditInfo.UpdatedAt = updatedAt.Time.UTC()
		}
		p.AuditInfo.CreatedAt = p.AuditInfo.CreatedAt.UTC()
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read period rows: %w", err)
	}
	return periods, nil
}

// CountDays returns how many daily rows are stored for a period.
func (r *RdsPeriodRepository) CountDays(ctx context.Context, periodID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM period_days WHERE period_id = $1`, periodID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count days of period %s: %w", periodID, err)
	}
	return n, nil
}
