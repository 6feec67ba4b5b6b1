package config

import (
	"fmt"

	"github.com/healthaudit/audit-pipeline/pkg/apierrors"
	"github.com/healthaudit/audit-pipeline/pkg/validation"
)

// Validate runs struct-tag validation plus the cross-field rules that
// validator tags alone can't express.
func Validate(cfg *Config) error {
	v := validation.NewValidator()
	if err := v.Validate(cfg); err != nil {
		return apierrors.Wrap(apierrors.KindConfigValidation, "config schema", err)
	}
	return crossFieldChecks(cfg)
}

func crossFieldChecks(cfg *Config) error {
	if cfg.Environment == "production" {
		if len(cfg.Compliance.ReportRecipients) == 0 {
			return apierrors.New(apierrors.KindConfigValidation, "production requires at least one compliance.report_recipients entry")
		}
		if cfg.Compliance.SendgridAPIKey == "" {
			return apierrors.New(apierrors.KindConfigValidation, "production requires compliance.sendgrid_api_key")
		}
	}

	if cfg.Worker.QueueVisibility <= cfg.Worker.PollInterval {
		return apierrors.New(apierrors.KindConfigValidation,
			fmt.Sprintf("worker.queue_visibility (%s) must exceed worker.poll_interval (%s)", cfg.Worker.QueueVisibility, cfg.Worker.PollInterval))
	}

	if cfg.Integrity.SweepWindow <= 0 {
		return apierrors.New(apierrors.KindConfigValidation, "integrity.sweep_window must be positive")
	}

	return nil
}
