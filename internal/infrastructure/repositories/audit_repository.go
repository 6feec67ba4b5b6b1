package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
)

// AuditRepository persists AuditEvent rows against the audit_log table.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository builds an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends event to the log. Callers are responsible for having
// computed Hash against LastHash before calling Insert.
func (r *AuditRepository) Insert(ctx context.Context, event *entities.AuditEvent) error {
	sessionJSON, err := marshalNullable(event.SessionContext)
	if err != nil {
		return fmt.Errorf("repositories: marshal session context: %w", err)
	}
	detailsJSON, err := marshalNullable(event.Details)
	if err != nil {
		return fmt.Errorf("repositories: marshal details: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			timestamp, principal_id, organization_id, action, status,
			target_resource_type, target_resource_id, outcome_description,
			data_classification, retention_policy, correlation_id,
			session_context, details, hash, hash_algorithm, event_version,
			processing_latency_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		event.Timestamp, event.PrincipalID, event.OrganizationID, event.Action, event.Status,
		event.TargetResourceType, event.TargetResourceID, event.OutcomeDescription,
		event.DataClassification, event.RetentionPolicy, event.CorrelationID,
		sessionJSON, detailsJSON, event.Hash, event.HashAlgorithm, event.EventVersion,
		event.ProcessingLatencyMs,
	).Scan(&event.ID)
}

// GetByID fetches a single event by primary key.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*entities.AuditEvent, error) {
	row := auditRow{}
	query := selectAuditColumns + ` FROM audit_log WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repositories: get audit event %d: %w", id, err)
	}
	return row.toEntity()
}

// Query runs a filtered, paginated search over the audit log.
func (r *AuditRepository) Query(ctx context.Context, filter repositories.EventFilter) ([]*entities.AuditEvent, error) {
	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PrincipalID != "" {
		conditions = append(conditions, "principal_id = "+arg(filter.PrincipalID))
	}
	if filter.OrganizationID != "" {
		conditions = append(conditions, "organization_id = "+arg(filter.OrganizationID))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = "+arg(filter.Action))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(filter.Status))
	}
	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= "+arg(filter.StartTime))
	}
	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "timestamp < "+arg(filter.EndTime))
	}
	if filter.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = "+arg(filter.CorrelationID))
	}

	query := selectAuditColumns + ` FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("repositories: query audit events: %w", err)
	}
	return toEntities(rows)
}

// LastHash returns the Hash of the most recently inserted event.
func (r *AuditRepository) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx, `SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("repositories: last hash: %w", err)
	}
	return hash, nil
}

// RangeForVerification returns events ordered by id within [start, end).
func (r *AuditRepository) RangeForVerification(ctx context.Context, start, end time.Time) ([]*entities.AuditEvent, error) {
	query := selectAuditColumns + ` FROM audit_log WHERE timestamp >= $1 AND timestamp < $2 ORDER BY id ASC`
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, start, end); err != nil {
		return nil, fmt.Errorf("repositories: range for verification: %w", err)
	}
	return toEntities(rows)
}

// MarkArchived sets archived_at on the given event ids.
func (r *AuditRepository) MarkArchived(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE audit_log SET archived_at = $1 WHERE id = ANY($2)`, at, pqInt64Array(ids))
	if err != nil {
		return fmt.Errorf("repositories: mark archived: %w", err)
	}
	return nil
}

// DeleteBefore deletes already-archived events older than cutoff under
// policy, skipping compliance-critical actions, and returns the count
// deleted. An event that has not yet been archived is never deleted here,
// even if it is past cutoff, since archival must happen first.
func (r *AuditRepository) DeleteBefore(ctx context.Context, policy *entities.RetentionPolicy, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM audit_log
		WHERE data_classification = $1 AND timestamp < $2 AND archived_at IS NOT NULL
		  AND NOT (action = ANY($3))`
	if policy.Action != nil {
		query += ` AND action = $4`
	}

	criticalActions := make([]string, 0, len(entities.ComplianceCriticalActions))
	for action := range entities.ComplianceCriticalActions {
		criticalActions = append(criticalActions, action)
	}

	var result sql.Result
	var err error
	if policy.Action != nil {
		result, err = r.db.ExecContext(ctx, query, policy.DataClassification, cutoff, pqStringArray(criticalActions), *policy.Action)
	} else {
		result, err = r.db.ExecContext(ctx, query, policy.DataClassification, cutoff, pqStringArray(criticalActions))
	}
	if err != nil {
		return 0, fmt.Errorf("repositories: delete before cutoff: %w", err)
	}
	return result.RowsAffected()
}

// ReplaceDetails overwrites an event's Details blob in place, used by
// erasure/pseudonymization to strip identifying data without recomputing
// Hash (the hash attests to the event's original content).
func (r *AuditRepository) ReplaceDetails(ctx context.Context, id int64, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("repositories: marshal replacement details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE audit_log SET details = $1 WHERE id = $2`, detailsJSON, id)
	if err != nil {
		return fmt.Errorf("repositories: replace details: %w", err)
	}
	return nil
}

// ReplacePrincipalAndDetails rewrites an event's PrincipalID and Details in
// one statement, used when pseudonymizing a subject's records: the event
// keeps its original Hash since the hash attests to content at write time,
// not to the current row.
func (r *AuditRepository) ReplacePrincipalAndDetails(ctx context.Context, id int64, principalID string, details map[string]interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("repositories: marshal replacement details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `UPDATE audit_log SET principal_id = $1, details = $2 WHERE id = $3`, principalID, detailsJSON, id)
	if err != nil {
		return fmt.Errorf("repositories: replace principal and details: %w", err)
	}
	return nil
}

// Delete permanently removes a single event by id, used by right-to-erasure
// when a principal's non-compliance-critical events are purged outright.
func (r *AuditRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repositories: delete event %d: %w", id, err)
	}
	return nil
}

const selectAuditColumns = `
	SELECT id, timestamp, principal_id, organization_id, action, status,
	       target_resource_type, target_resource_id, outcome_description,
	       data_classification, retention_policy, correlation_id,
	       session_context, details, hash, hash_algorithm, event_version,
	       processing_latency_ms, archived_at`

// auditRow is the sqlx scan target; session_context and details arrive as
// raw JSON bytes and are decoded in toEntity.
type auditRow struct {
	ID                  int64               `db:"id"`
	Timestamp           time.Time           `db:"timestamp"`
	PrincipalID         sql.NullString       `db:"principal_id"`
	OrganizationID      sql.NullString       `db:"organization_id"`
	Action              string              `db:"action"`
	Status              string              `db:"status"`
	TargetResourceType  sql.NullString       `db:"target_resource_type"`
	TargetResourceID    sql.NullString       `db:"target_resource_id"`
	OutcomeDescription  sql.NullString       `db:"outcome_description"`
	DataClassification  string              `db:"data_classification"`
	RetentionPolicy     string              `db:"retention_policy"`
	CorrelationID       sql.NullString       `db:"correlation_id"`
	SessionContext      []byte              `db:"session_context"`
	Details             []byte              `db:"details"`
	Hash                string              `db:"hash"`
	HashAlgorithm       string              `db:"hash_algorithm"`
	EventVersion        int                 `db:"event_version"`
	ProcessingLatencyMs sql.NullInt64        `db:"processing_latency_ms"`
	ArchivedAt          sql.NullTime         `db:"archived_at"`
}

func (row *auditRow) toEntity() (*entities.AuditEvent, error) {
	event := &entities.AuditEvent{
		ID:                 row.ID,
		Timestamp:          row.Timestamp,
		Action:             row.Action,
		Status:             entities.EventStatus(row.Status),
		DataClassification: entities.DataClassification(row.DataClassification),
		RetentionPolicy:    row.RetentionPolicy,
		Hash:               row.Hash,
		HashAlgorithm:      row.HashAlgorithm,
		EventVersion:       row.EventVersion,
	}
	if row.PrincipalID.Valid {
		event.PrincipalID = &row.PrincipalID.String
	}
	if row.OrganizationID.Valid {
		event.OrganizationID = &row.OrganizationID.String
	}
	if row.TargetResourceType.Valid {
		event.TargetResourceType = &row.TargetResourceType.String
	}
	if row.TargetResourceID.Valid {
		event.TargetResourceID = &row.TargetResourceID.String
	}
	if row.OutcomeDescription.Valid {
		event.OutcomeDescription = &row.OutcomeDescription.String
	}
	if row.CorrelationID.Valid {
		event.CorrelationID = &row.CorrelationID.String
	}
	if row.ProcessingLatencyMs.Valid {
		event.ProcessingLatencyMs = &row.ProcessingLatencyMs.Int64
	}
	if row.ArchivedAt.Valid {
		event.ArchivedAt = &row.ArchivedAt.Time
	}
	if len(row.SessionContext) > 0 {
		var sc entities.SessionContext
		if err := json.Unmarshal(row.SessionContext, &sc); err != nil {
			return nil, fmt.Errorf("repositories: unmarshal session context: %w", err)
		}
		event.SessionContext = &sc
	}
	if len(row.Details) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(row.Details, &details); err != nil {
			return nil, fmt.Errorf("repositories: unmarshal details: %w", err)
		}
		event.Details = details
	}
	return event, nil
}

func toEntities(rows []auditRow) ([]*entities.AuditEvent, error) {
	out := make([]*entities.AuditEvent, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func marshalNullable(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
