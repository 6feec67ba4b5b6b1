package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// RetentionPolicyRepository persists audit_retention_policy rows.
type RetentionPolicyRepository struct {
	db *sqlx.DB
}

// NewRetentionPolicyRepository builds a RetentionPolicyRepository.
func NewRetentionPolicyRepository(db *sqlx.DB) *RetentionPolicyRepository {
	return &RetentionPolicyRepository{db: db}
}

const selectRetentionColumns = `
	SELECT id, name, data_classification, action, retention_days,
	       archive_after_days, delete_after_days, is_active, created_at, updated_at`

func (r *RetentionPolicyRepository) List(ctx context.Context) ([]*entities.RetentionPolicy, error) {
	var policies []*entities.RetentionPolicy
	query := selectRetentionColumns + ` FROM audit_retention_policy ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("repositories: list retention policies: %w", err)
	}
	return policies, nil
}

func (r *RetentionPolicyRepository) ListActive(ctx context.Context) ([]*entities.RetentionPolicy, error) {
	var policies []*entities.RetentionPolicy
	query := selectRetentionColumns + ` FROM audit_retention_policy WHERE is_active = true ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("repositories: list active retention policies: %w", err)
	}
	return policies, nil
}

func (r *RetentionPolicyRepository) GetByID(ctx context.Context, id int64) (*entities.RetentionPolicy, error) {
	var policy entities.RetentionPolicy
	query := selectRetentionColumns + ` FROM audit_retention_policy WHERE id = $1`
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repositories: get retention policy %d: %w", id, err)
	}
	return &policy, nil
}

func (r *RetentionPolicyRepository) Upsert(ctx context.Context, policy *entities.RetentionPolicy) error {
	query := `
		INSERT INTO audit_retention_policy (
			name, data_classification, action, retention_days,
			archive_after_days, delete_after_days, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			data_classification = EXCLUDED.data_classification,
			action = EXCLUDED.action,
			retention_days = EXCLUDED.retention_days,
			archive_after_days = EXCLUDED.archive_after_days,
			delete_after_days = EXCLUDED.delete_after_days,
			is_active = EXCLUDED.is_active,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		policy.Name, policy.DataClassification, policy.Action, policy.RetentionDays,
		policy.ArchiveAfterDays, policy.DeleteAfterDays, policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}
