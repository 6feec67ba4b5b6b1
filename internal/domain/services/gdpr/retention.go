package gdpr

import (
	"context"
	"fmt"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	auditsvc "github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

// RetentionEngine applies retention policies in two independent phases:
// events that have crossed a policy's archive threshold are marked
// archived (read-only but still queryable), and already-archived events
// that have crossed the policy's delete threshold are permanently
// removed, unless the event's action is compliance-critical.
type RetentionEngine struct {
	audit    repositories.AuditRepository
	auditSvc *auditsvc.Service
	policies repositories.RetentionPolicyRepository
	log      *logger.Logger
}

// NewRetentionEngine builds a RetentionEngine.
func NewRetentionEngine(audit repositories.AuditRepository, auditSvc *auditsvc.Service, policies repositories.RetentionPolicyRepository, log *logger.Logger) *RetentionEngine {
	return &RetentionEngine{audit: audit, auditSvc: auditSvc, policies: policies, log: log}
}

// ApplyAll runs every active retention policy, returning one result per
// policy applied.
func (r *RetentionEngine) ApplyAll(ctx context.Context) ([]entities.RetentionApplyResult, error) {
	active, err := r.policies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("gdpr: list active retention policies: %w", err)
	}

	now := time.Now().UTC()
	results := make([]entities.RetentionApplyResult, 0, len(active))
	for _, policy := range active {
		result, err := r.apply(ctx, policy, now)
		if err != nil {
			return nil, fmt.Errorf("gdpr: apply retention policy %q: %w", policy.Name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *RetentionEngine) apply(ctx context.Context, policy *entities.RetentionPolicy, now time.Time) (entities.RetentionApplyResult, error) {
	result := entities.RetentionApplyResult{PolicyID: policy.ID}

	if archiveCutoff, ok := policy.ArchiveCutoffFor(now); ok {
		events, err := r.audit.Query(ctx, repositories.EventFilter{
			EndTime: archiveCutoff,
			Limit:   0,
		})
		if err != nil {
			return result, fmt.Errorf("query events for archival: %w", err)
		}
		ids := matchingIDs(events, policy)
		if len(ids) > 0 {
			if err := r.audit.MarkArchived(ctx, ids, now); err != nil {
				return result, fmt.Errorf("mark events archived: %w", err)
			}
			result.ArchivedCount = int64(len(ids))
		}
	}

	if deleteCutoff, ok := policy.DeleteCutoffFor(now); ok {
		deleted, err := r.audit.DeleteBefore(ctx, policy, deleteCutoff)
		if err != nil {
			return result, fmt.Errorf("delete expired events: %w", err)
		}
		result.DeletedCount = deleted
	}

	desc := fmt.Sprintf("policy %s archived=%d deleted=%d", policy.Name, result.ArchivedCount, result.DeletedCount)
	if err := r.auditSvc.Log(ctx, &entities.AuditEvent{
		Action:             "gdpr.retention.apply",
		Status:             entities.StatusSuccess,
		DataClassification: policy.DataClassification,
		OutcomeDescription: &desc,
	}); err != nil {
		r.log.Error("failed to record retention audit event", "policy", policy.Name, "error", err)
	}

	r.log.Info("retention policy applied", "policy", policy.Name,
		"archived", result.ArchivedCount, "deleted", result.DeletedCount)
	return result, nil
}

func matchingIDs(events []*entities.AuditEvent, policy *entities.RetentionPolicy) []int64 {
	var ids []int64
	for _, e := range events {
		if policy.Matches(e.DataClassification, e.Action) && !e.IsArchived() {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
