// Command audit-db runs schema and data-maintenance operations against the
// audit pipeline's database: rolling back the last migration, seeding
// standard retention policies, running an ad-hoc integrity verification
// over a lookback window (-window, one year by default), and reporting a read-only compliance summary. Exit
// codes follow the pipeline's convention: 0 success, 1 runtime error, 2
// config/validation error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/integrity"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/config"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/database"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/repositories"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: audit-db {rollback|seed-policies|seed-presets|verify|verify-compliance} [flags]")
		return 2
	}
	verb, rest := args[0], args[1:]

	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	window := fs.Duration("window", 24*365*time.Hour, "lookback window for verify")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Environment == "development", Service: "audit-db"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 2
	}

	ctx := context.Background()

	if verb == "rollback" {
		if err := database.Rollback(cfg.Database.DSN); err != nil {
			fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
			return 1
		}
		fmt.Println("rolled back one migration")
		return 0
	}

	db, err := repositories.NewDB(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		return 1
	}
	defer db.Close()

	policyRepo := repositories.NewRetentionPolicyRepository(db)

	switch verb {
	case "seed-policies":
		for _, p := range standardPolicies() {
			if err := policyRepo.Upsert(ctx, p); err != nil {
				fmt.Fprintf(os.Stderr, "seed policy %q failed: %v\n", p.Name, err)
				return 1
			}
			fmt.Printf("seeded policy %q (retention=%dd archiveAfter=%s deleteAfter=%s)\n",
				p.Name, p.RetentionDays, formatDays(p.ArchiveAfterDays), formatDays(p.DeleteAfterDays))
		}
		return 0

	case "seed-presets":
		for _, p := range presetPolicies() {
			if err := policyRepo.Upsert(ctx, p); err != nil {
				fmt.Fprintf(os.Stderr, "seed preset %q failed: %v\n", p.Name, err)
				return 1
			}
			fmt.Printf("seeded preset %q (retention=%dd archiveAfter=%s deleteAfter=%s)\n",
				p.Name, p.RetentionDays, formatDays(p.ArchiveAfterDays), formatDays(p.DeleteAfterDays))
		}
		return 0

	case "verify":
		auditRepo := repositories.NewAuditRepository(db)
		integrityRepo := repositories.NewIntegrityRepository(db)
		alertRepo := repositories.NewAlertRepository(db)
		auditSvc := audit.NewService(auditRepo, log)
		verifier := integrity.NewVerifier(auditSvc, integrityRepo, alertRepo, log)

		end := time.Now().UTC()
		start := end.Add(-*window)
		result, err := verifier.Run(ctx, start, end, "audit-db")
		if err != nil {
			fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
			return 1
		}
		fmt.Printf("checked=%d findings=%d ok=%v\n", result.EventsChecked, len(result.Findings), result.OK())
		return 0

	case "verify-compliance":
		policies, err := policyRepo.ListActive(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list policies failed: %v\n", err)
			return 1
		}
		alertRepo := repositories.NewAlertRepository(db)
		active, err := alertRepo.ListAllActive(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list alerts failed: %v\n", err)
			return 1
		}

		var invalid []string
		for _, p := range policies {
			if p.ArchiveAfterDays != nil && *p.ArchiveAfterDays > p.RetentionDays {
				invalid = append(invalid, p.Name)
				continue
			}
			if p.DeleteAfterDays != nil && *p.DeleteAfterDays > p.RetentionDays {
				invalid = append(invalid, p.Name)
				continue
			}
			if p.ArchiveAfterDays != nil && p.DeleteAfterDays != nil && *p.ArchiveAfterDays > *p.DeleteAfterDays {
				invalid = append(invalid, p.Name)
			}
		}

		summary := map[string]interface{}{
			"active_policy_count": len(policies),
			"invalid_policies":    invalid,
			"active_alert_count":  len(active),
		}
		enc, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(enc))
		if len(invalid) > 0 {
			return 1
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown verb %q\n", verb)
		return 2
	}
}

func days(n int) *int { return &n }

func formatDays(d *int) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%dd", *d)
}

func standardPolicies() []*entities.RetentionPolicy {
	return []*entities.RetentionPolicy{
		{Name: "public-90d", DataClassification: entities.ClassificationPublic, RetentionDays: 90, DeleteAfterDays: days(90), IsActive: true},
		{Name: "internal-1y", DataClassification: entities.ClassificationInternal, RetentionDays: 365, ArchiveAfterDays: days(180), IsActive: true},
		{Name: "confidential-3y", DataClassification: entities.ClassificationConfidential, RetentionDays: 3 * 365, ArchiveAfterDays: days(365), IsActive: true},
		{Name: "phi-6y", DataClassification: entities.ClassificationPHI, RetentionDays: 6 * 365, ArchiveAfterDays: days(365), IsActive: true},
	}
}

// presetPolicies seeds alternate, named policy variants (hipaa-phi-6y has
// the same thresholds as the standard phi-6y) for organizations opting into a named compliance preset rather than
// tuning retention_days by hand. HIPAA requires a minimum six-year
// retention for PHI records; GDPR's storage-limitation principle favors
// the shortest retention that still serves the original purpose, so the
// minimum preset keeps only what most jurisdictions require before an
// erasure request would apply regardless.
func presetPolicies() []*entities.RetentionPolicy {
	return []*entities.RetentionPolicy{
		{Name: "hipaa-phi-6y", DataClassification: entities.ClassificationPHI, RetentionDays: 6 * 365, ArchiveAfterDays: days(365), IsActive: true},
		{Name: "gdpr-minimum-internal", DataClassification: entities.ClassificationInternal, RetentionDays: 30, DeleteAfterDays: days(30), IsActive: true},
	}
}
