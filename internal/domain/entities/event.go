// Package entities holds the persistence-shaped domain types shared across
// the audit pipeline: audit events, retention policies, pseudonym mappings,
// integrity verifications, alerts, and circuit-breaker stats.
package entities

import (
	"time"
)

// DataClassification drives retention and access rules for an AuditEvent.
type DataClassification string

const (
	ClassificationPublic       DataClassification = "PUBLIC"
	ClassificationInternal     DataClassification = "INTERNAL"
	ClassificationConfidential DataClassification = "CONFIDENTIAL"
	ClassificationPHI          DataClassification = "PHI"
)

// EventStatus is the outcome of the audited action.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusAttempt EventStatus = "attempt"
)

// DefaultHashAlgorithm is the canonical hash algorithm name recorded on
// every persisted event.
const DefaultHashAlgorithm = "SHA-256"

// SessionContext captures the request-time context of the principal that
// triggered the audited action.
type SessionContext struct {
	SessionID string `json:"sessionId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// AuditEvent is the immutable, hash-sealed record at the center of the
// system. Once Hash is computed and the row is persisted, no field may be
// mutated except ArchivedAt (set exactly once by retention application).
type AuditEvent struct {
	ID                  int64                  `json:"id" db:"id"`
	Timestamp           time.Time              `json:"timestamp" db:"timestamp"`
	PrincipalID         *string                `json:"principalId,omitempty" db:"principal_id"`
	OrganizationID      *string                `json:"organizationId,omitempty" db:"organization_id"`
	Action              string                 `json:"action" db:"action"`
	Status              EventStatus            `json:"status" db:"status"`
	TargetResourceType  *string                `json:"targetResourceType,omitempty" db:"target_resource_type"`
	TargetResourceID    *string                `json:"targetResourceId,omitempty" db:"target_resource_id"`
	OutcomeDescription  *string                `json:"outcomeDescription,omitempty" db:"outcome_description"`
	DataClassification  DataClassification     `json:"dataClassification" db:"data_classification"`
	RetentionPolicy     string                 `json:"retentionPolicy" db:"retention_policy"`
	CorrelationID       *string                `json:"correlationId,omitempty" db:"correlation_id"`
	SessionContext      *SessionContext        `json:"sessionContext,omitempty" db:"session_context"`
	Details             map[string]interface{} `json:"details,omitempty" db:"details"`
	Hash                string                 `json:"hash" db:"hash"`
	HashAlgorithm       string                 `json:"hashAlgorithm" db:"hash_algorithm"`
	EventVersion        int                    `json:"eventVersion" db:"event_version"`
	ProcessingLatencyMs *int64                 `json:"processingLatencyMs,omitempty" db:"processing_latency_ms"`
	ArchivedAt          *time.Time             `json:"archivedAt,omitempty" db:"archived_at"`
}

// IsArchived reports whether the event has become read-only.
func (e *AuditEvent) IsArchived() bool {
	return e.ArchivedAt != nil
}

// ComplianceCriticalActions is the default set of actions whose audit
// record survives a "right to be forgotten" erasure run with compliance
// preservation on (it is pseudonymized in place) and is never removed by
// retention deletes. An erasure run with preservation off deletes it.
var ComplianceCriticalActions = map[string]bool{
	"auth.login.success":        true,
	"auth.login.failure":        true,
	"data.access.unauthorized":  true,
	"gdpr.data.export":          true,
	"gdpr.data.pseudonymize":    true,
	"gdpr.data.delete":          true,
}

// IsComplianceCritical reports whether action is in the default
// compliance-critical set.
func IsComplianceCritical(action string) bool {
	return ComplianceCriticalActions[action]
}
