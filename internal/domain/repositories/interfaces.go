// Package repositories declares the persistence boundaries the domain
// services depend on, so infrastructure adapters (Postgres via sqlx,
// Redis) can be swapped without touching business logic.
package repositories

import (
	"context"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
)

// EventFilter narrows an audit event query. Zero-valued fields are
// treated as "no constraint".
type EventFilter struct {
	PrincipalID    string
	OrganizationID string
	Action         string
	Status         entities.EventStatus
	StartTime      time.Time
	EndTime        time.Time
	CorrelationID  string
	Limit          int
	Offset         int
}

// AuditRepository persists and queries the hash-sealed audit event log.
type AuditRepository interface {
	Insert(ctx context.Context, event *entities.AuditEvent) error
	GetByID(ctx context.Context, id int64) (*entities.AuditEvent, error)
	Query(ctx context.Context, filter EventFilter) ([]*entities.AuditEvent, error)
	// LastHash returns the Hash of the most recently inserted event, or
	// "" if the log is empty, establishing the chain anchor for the next
	// insert.
	LastHash(ctx context.Context) (string, error)
	// RangeForVerification streams events ordered by id within [start,end)
	// for integrity verification.
	RangeForVerification(ctx context.Context, start, end time.Time) ([]*entities.AuditEvent, error)
	// MarkArchived sets ArchivedAt on the events with the given ids.
	MarkArchived(ctx context.Context, ids []int64, at time.Time) error
	// DeleteBefore permanently removes non-compliance-critical events
	// older than cutoff under policy, returning the count deleted.
	DeleteBefore(ctx context.Context, policy *entities.RetentionPolicy, cutoff time.Time) (int64, error)
	// ReplaceDetails overwrites an event's mutable Details/OutcomeDescription
	// in place for erasure/pseudonymization without recomputing Hash
	// (the hash continues to attest to the original content).
	ReplaceDetails(ctx context.Context, id int64, details map[string]interface{}) error
	// ReplacePrincipalAndDetails rewrites both PrincipalID and Details in
	// one step, used when pseudonymizing a subject's records in place.
	ReplacePrincipalAndDetails(ctx context.Context, id int64, principalID string, details map[string]interface{}) error
	// Delete permanently removes a single event by id, used by
	// right-to-erasure for records that are not compliance-critical.
	Delete(ctx context.Context, id int64) error
}

// RetentionPolicyRepository persists retention policy configuration.
type RetentionPolicyRepository interface {
	List(ctx context.Context) ([]*entities.RetentionPolicy, error)
	ListActive(ctx context.Context) ([]*entities.RetentionPolicy, error)
	GetByID(ctx context.Context, id int64) (*entities.RetentionPolicy, error)
	Upsert(ctx context.Context, policy *entities.RetentionPolicy) error
}

// PseudonymRepository persists bi-directional subject <-> pseudonym
// mappings, durable across process restarts (unlike an in-memory map).
type PseudonymRepository interface {
	// FindByOriginal looks up an existing mapping by its blind index
	// (a deterministic HMAC digest of the original value, computed by
	// the caller) rather than the original value itself, since the
	// stored original_value_encrypted column is sealed with a random
	// nonce and can never be compared for equality.
	FindByOriginal(ctx context.Context, domain, originalHash string) (*entities.PseudonymMapping, error)
	// FindByPseudonym looks up the mapping owning a pseudonym value, for
	// re-identification under lawful access.
	FindByPseudonym(ctx context.Context, domain, pseudonym string) (*entities.PseudonymMapping, error)
	Create(ctx context.Context, mapping *entities.PseudonymMapping) error
}

// IntegrityRepository persists the outcomes of integrity verification
// sweeps (C6).
type IntegrityRepository interface {
	Insert(ctx context.Context, v *entities.IntegrityVerification) error
	List(ctx context.Context, limit int) ([]*entities.IntegrityVerification, error)
	Latest(ctx context.Context) (*entities.IntegrityVerification, error)
}

// AlertRepository persists operational and compliance alerts. Every read
// path except ListAllActive (an explicit administrative operation) scopes
// by organizationId.
type AlertRepository interface {
	Insert(ctx context.Context, alert *entities.Alert) error
	ListActive(ctx context.Context, organizationID *string) ([]*entities.Alert, error)
	ListAllActive(ctx context.Context) ([]*entities.Alert, error)
	Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) error
	Statistics(ctx context.Context, organizationID *string) (*entities.AlertStatistics, error)
	CleanupResolved(ctx context.Context, organizationID *string, olderThan time.Time) (int64, error)
	CleanupResolvedAll(ctx context.Context, olderThan time.Time) (int64, error)
}
