package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// IntegrityRepository persists audit_integrity_log rows.
type IntegrityRepository struct {
	db *sqlx.DB
}

// NewIntegrityRepository builds an IntegrityRepository.
func NewIntegrityRepository(db *sqlx.DB) *IntegrityRepository {
	return &IntegrityRepository{db: db}
}

const selectIntegrityColumns = `
	SELECT id, run_at, range_start, range_end, events_checked,
	       tampered_count, broken_link_count, status, duration_ms`

func (r *IntegrityRepository) Insert(ctx context.Context, v *entities.IntegrityVerification) error {
	query := `
		INSERT INTO audit_integrity_log (
			run_at, range_start, range_end, events_checked,
			tampered_count, broken_link_count, status, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		v.RunAt, v.RangeStart, v.RangeEnd, v.EventsChecked,
		v.TamperedCount, v.BrokenLinkCount, v.Status, v.DurationMs,
	).Scan(&v.ID)
}

func (r *IntegrityRepository) List(ctx context.Context, limit int) ([]*entities.IntegrityVerification, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []*entities.IntegrityVerification
	query := selectIntegrityColumns + ` FROM audit_integrity_log ORDER BY id DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("repositories: list integrity runs: %w", err)
	}
	return runs, nil
}

func (r *IntegrityRepository) Latest(ctx context.Context) (*entities.IntegrityVerification, error) {
	var run entities.IntegrityVerification
	query := selectIntegrityColumns + ` FROM audit_integrity_log ORDER BY id DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &run, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repositories: latest integrity run: %w", err)
	}
	return &run, nil
}
