package gdpr

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

// NotifierConfig configures the compliance-report email sender.
type NotifierConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	Recipients []string
}

// Notifier emails the configured compliance recipients after a scheduled
// retention or integrity report runs.
type Notifier struct {
	client *sendgrid.Client
	cfg    NotifierConfig
	log    *logger.Logger
}

// NewNotifier builds a Notifier.
func NewNotifier(cfg NotifierConfig, log *logger.Logger) *Notifier {
	return &Notifier{client: sendgrid.NewSendClient(cfg.APIKey), cfg: cfg, log: log}
}

// NotifyRetentionReport emails the configured recipients a summary of a
// retention sweep.
func (n *Notifier) NotifyRetentionReport(ctx context.Context, results []entities.RetentionApplyResult) error {
	var body string
	var totalArchived, totalDeleted int64
	for _, r := range results {
		body += fmt.Sprintf("policy %d: archived=%d deleted=%d\n", r.PolicyID, r.ArchivedCount, r.DeletedCount)
		totalArchived += r.ArchivedCount
		totalDeleted += r.DeletedCount
	}
	subject := fmt.Sprintf("Audit retention report: %d archived, %d deleted", totalArchived, totalDeleted)
	return n.notifyAll(ctx, subject, body)
}

// NotifyIntegrityReport emails the configured recipients a summary of an
// integrity verification run.
func (n *Notifier) NotifyIntegrityReport(ctx context.Context, result *entities.IntegrityVerificationResult) error {
	subject := fmt.Sprintf("Audit integrity report: %d events checked, %d findings", result.EventsChecked, len(result.Findings))
	body := fmt.Sprintf("started=%s finished=%s findings=%d", result.StartedAt.Format(time.RFC3339), result.FinishedAt.Format(time.RFC3339), len(result.Findings))
	return n.notifyAll(ctx, subject, body)
}

func (n *Notifier) notifyAll(ctx context.Context, subject, body string) error {
	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromEmail)
	for _, recipient := range n.cfg.Recipients {
		to := mail.NewEmail("", recipient)
		message := mail.NewSingleEmail(from, subject, to, body, "")
		response, err := n.client.SendWithContext(ctx, message)
		if err != nil {
			n.log.Error("failed to send compliance report email", "recipient", recipient, "error", err)
			return fmt.Errorf("gdpr: send compliance report to %s: %w", recipient, err)
		}
		if response.StatusCode >= 400 {
			n.log.Error("compliance report email rejected", "recipient", recipient, "status", response.StatusCode)
			return fmt.Errorf("gdpr: compliance report email to %s rejected: status %d", recipient, response.StatusCode)
		}
	}
	return nil
}
