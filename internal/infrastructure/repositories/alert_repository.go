package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// AlertRepository persists operational and compliance alerts.
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository builds an AlertRepository.
func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *entities.Alert) error {
	query := `
		INSERT INTO audit_alert (organization_id, type, severity, source, title, description, timestamp, resolved)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		alert.OrganizationID, alert.Type, alert.Severity, alert.Source, alert.Title, alert.Description,
		alert.Timestamp, alert.Resolved,
	).Scan(&alert.ID)
}

// ListActive returns every unresolved alert scoped to organizationID. A nil
// organizationID matches infrastructure-level alerts that carry no tenant.
func (r *AlertRepository) ListActive(ctx context.Context, organizationID *string) ([]*entities.Alert, error) {
	query := `
		SELECT id, organization_id, type, severity, source, title, description, timestamp,
		       resolved, resolved_at, resolved_by, resolution_notes
		FROM audit_alert
		WHERE resolved = FALSE AND organization_id IS NOT DISTINCT FROM $1
		ORDER BY timestamp DESC`
	return r.scanAlerts(ctx, query, organizationID)
}

// ListAllActive returns every unresolved alert across every organization.
// This is an explicit administrative operation (operator dashboards, the
// audit-db CLI's verify-compliance verb) — every other read path scopes by
// organizationID.
func (r *AlertRepository) ListAllActive(ctx context.Context) ([]*entities.Alert, error) {
	query := `
		SELECT id, organization_id, type, severity, source, title, description, timestamp,
		       resolved, resolved_at, resolved_by, resolution_notes
		FROM audit_alert WHERE resolved = FALSE ORDER BY timestamp DESC`
	return r.scanAlerts(ctx, query)
}

func (r *AlertRepository) scanAlerts(ctx context.Context, query string, args ...interface{}) ([]*entities.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repositories: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*entities.Alert
	for rows.Next() {
		alert := &entities.Alert{}
		if err := rows.Scan(&alert.ID, &alert.OrganizationID, &alert.Type, &alert.Severity, &alert.Source,
			&alert.Title, &alert.Description, &alert.Timestamp, &alert.Resolved, &alert.ResolvedAt,
			&alert.ResolvedBy, &alert.ResolutionNotes); err != nil {
			return nil, fmt.Errorf("repositories: scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *AlertRepository) Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE audit_alert SET resolved = TRUE, resolved_at = $1, resolved_by = $2, resolution_notes = $3
		WHERE id = $4`, at, resolvedBy, nullIfEmpty(notes), id)
	if err != nil {
		return fmt.Errorf("repositories: resolve alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) Statistics(ctx context.Context, organizationID *string) (*entities.AlertStatistics, error) {
	stats := &entities.AlertStatistics{
		BySeverity: map[entities.AlertSeverity]int64{},
		ByType:     map[entities.AlertType]int64{},
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, type, resolved, count(*)
		FROM audit_alert
		WHERE organization_id IS NOT DISTINCT FROM $1
		GROUP BY severity, type, resolved`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("repositories: alert statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity entities.AlertSeverity
		var alertType entities.AlertType
		var resolved bool
		var count int64
		if err := rows.Scan(&severity, &alertType, &resolved, &count); err != nil {
			return nil, fmt.Errorf("repositories: scan alert statistics: %w", err)
		}
		stats.Total += count
		stats.BySeverity[severity] += count
		stats.ByType[alertType] += count
		if !resolved {
			stats.Active += count
		}
	}
	return stats, rows.Err()
}

// CleanupResolved permanently deletes resolved alerts older than olderThan,
// returning the number of rows removed.
func (r *AlertRepository) CleanupResolved(ctx context.Context, organizationID *string, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_alert
		WHERE resolved = TRUE AND resolved_at < $1 AND organization_id IS NOT DISTINCT FROM $2`,
		olderThan, organizationID)
	if err != nil {
		return 0, fmt.Errorf("repositories: cleanup resolved alerts: %w", err)
	}
	return result.RowsAffected()
}

// CleanupResolvedAll permanently deletes resolved alerts older than
// olderThan across every organization. This is an explicit administrative
// operation (background maintenance sweep), not a tenant-scoped read path.
func (r *AlertRepository) CleanupResolvedAll(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_alert WHERE resolved = TRUE AND resolved_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("repositories: cleanup resolved alerts (all orgs): %w", err)
	}
	return result.RowsAffected()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
