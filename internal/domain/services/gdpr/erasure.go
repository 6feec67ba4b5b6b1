package gdpr

import (
	"context"
	"fmt"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/pseudonym"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

// ErasureResult summarizes the outcome of an erasure request for one
// principal.
type ErasureResult struct {
	PrincipalID                string
	RecordsDeleted             int
	ComplianceRecordsPreserved int
}

// Eraser implements the "right to be forgotten". When preserveComplianceAudits
// is set, compliance-critical events survive, pseudonymized in place; every
// other event belonging to the subject is permanently deleted. When it is
// not set, every event belonging to the subject is deleted outright.
type Eraser struct {
	audit      repositories.AuditRepository
	auditSvc   *audit.Service
	pseudonyms *pseudonym.Registry
	log        *logger.Logger
}

// NewEraser builds an Eraser.
func NewEraser(auditRepo repositories.AuditRepository, auditSvc *audit.Service, pseudonyms *pseudonym.Registry, log *logger.Logger) *Eraser {
	return &Eraser{audit: auditRepo, auditSvc: auditSvc, pseudonyms: pseudonyms, log: log}
}

// Erase processes a right-to-erasure request for principalID. requestedBy
// identifies who submitted the request, recorded on the resulting
// gdpr.data.delete audit event.
func (e *Eraser) Erase(ctx context.Context, principalID, requestedBy string, preserveComplianceAudits bool) (*ErasureResult, error) {
	events, err := e.audit.Query(ctx, repositories.EventFilter{PrincipalID: principalID, Limit: 0})
	if err != nil {
		return nil, fmt.Errorf("gdpr: query events for erasure: %w", err)
	}

	mapping, err := e.pseudonyms.Pseudonymize(ctx, "principal", entities.StrategyHash, principalID)
	if err != nil {
		return nil, fmt.Errorf("gdpr: pseudonymize principal: %w", err)
	}

	result := &ErasureResult{PrincipalID: principalID}
	pseudonymizedAt := time.Now().UTC()
	for _, event := range events {
		if preserveComplianceAudits && entities.IsComplianceCritical(event.Action) {
			details := cloneDetails(event.Details)
			details["pseudonymized"] = true
			details["pseudonymizedAt"] = pseudonymizedAt
			if err := e.audit.ReplacePrincipalAndDetails(ctx, event.ID, mapping.PseudonymValue, details); err != nil {
				return nil, fmt.Errorf("gdpr: pseudonymize event %d: %w", event.ID, err)
			}
			result.ComplianceRecordsPreserved++
			continue
		}

		if err := e.audit.Delete(ctx, event.ID); err != nil {
			return nil, fmt.Errorf("gdpr: delete event %d: %w", event.ID, err)
		}
		result.RecordsDeleted++
	}

	desc := fmt.Sprintf("erased %d record(s), preserved %d compliance record(s)",
		result.RecordsDeleted, result.ComplianceRecordsPreserved)
	requester := requestedBy
	if err := e.auditSvc.Log(ctx, &entities.AuditEvent{
		PrincipalID:        &requester,
		Action:             "gdpr.data.delete",
		Status:             entities.StatusSuccess,
		DataClassification: entities.ClassificationConfidential,
		OutcomeDescription: &desc,
	}); err != nil {
		e.log.Error("failed to record erasure audit event", "error", err)
	}

	e.log.Info("erasure completed", "principal_pseudonym", mapping.PseudonymValue,
		"deleted", result.RecordsDeleted, "preserved", result.ComplianceRecordsPreserved)
	return result, nil
}
