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

// PseudonymizeResult is the outcome of bulk-pseudonymizing a subject's
// audit trail.
type PseudonymizeResult struct {
	PseudonymID     string
	RecordsAffected int
}

// Pseudonymizer resolves a subject's stable pseudonym and rewrites their
// existing audit trail to use it, independent of a full erasure request.
type Pseudonymizer struct {
	registry *pseudonym.Registry
	audit    repositories.AuditRepository
	auditSvc *audit.Service
	log      *logger.Logger
}

// NewPseudonymizer builds a Pseudonymizer.
func NewPseudonymizer(registry *pseudonym.Registry, auditRepo repositories.AuditRepository, auditSvc *audit.Service, log *logger.Logger) *Pseudonymizer {
	return &Pseudonymizer{registry: registry, audit: auditRepo, auditSvc: auditSvc, log: log}
}

// PseudonymFor resolves (or creates) the pseudonym for original under
// domain/strategy, then rewrites every audit event with principalId ==
// original to carry the pseudonym instead, marking each event's details
// with pseudonymized/pseudonymizedAt. requestedBy identifies who asked for
// the pseudonymization, recorded on the resulting gdpr.data.pseudonymize
// audit event.
func (p *Pseudonymizer) PseudonymFor(ctx context.Context, domain string, strategy entities.PseudonymStrategy, original, requestedBy string) (*PseudonymizeResult, error) {
	mapping, err := p.registry.Pseudonymize(ctx, domain, strategy, original)
	if err != nil {
		return nil, fmt.Errorf("gdpr: pseudonymize %s: %w", domain, err)
	}

	events, err := p.audit.Query(ctx, repositories.EventFilter{PrincipalID: original, Limit: 0})
	if err != nil {
		return nil, fmt.Errorf("gdpr: query events for pseudonymization: %w", err)
	}

	pseudonymizedAt := time.Now().UTC()
	affected := 0
	for _, event := range events {
		details := cloneDetails(event.Details)
		details["pseudonymized"] = true
		details["pseudonymizedAt"] = pseudonymizedAt
		if err := p.audit.ReplacePrincipalAndDetails(ctx, event.ID, mapping.PseudonymValue, details); err != nil {
			return nil, fmt.Errorf("gdpr: pseudonymize event %d: %w", event.ID, err)
		}
		affected++
	}

	desc := fmt.Sprintf("pseudonymized %d record(s) for subject under domain %s", affected, domain)
	requester := requestedBy
	if err := p.auditSvc.Log(ctx, &entities.AuditEvent{
		PrincipalID:        &requester,
		Action:             "gdpr.data.pseudonymize",
		Status:             entities.StatusSuccess,
		DataClassification: entities.ClassificationConfidential,
		OutcomeDescription: &desc,
	}); err != nil {
		p.log.Error("failed to record pseudonymize audit event", "error", err)
	}

	p.log.Info("subject pseudonymized", "domain", domain, "records_affected", affected)
	return &PseudonymizeResult{PseudonymID: mapping.PseudonymValue, RecordsAffected: affected}, nil
}

// Reidentify recovers the original plaintext for an existing pseudonym,
// for lawful re-identification requests.
func (p *Pseudonymizer) Reidentify(ctx context.Context, domain, pseudonymValue string) (string, error) {
	original, err := p.registry.Reidentify(ctx, domain, pseudonymValue)
	if err != nil {
		return "", fmt.Errorf("gdpr: reidentify %s: %w", domain, err)
	}
	p.log.Warn("subject re-identified", "domain", domain)
	return original, nil
}
