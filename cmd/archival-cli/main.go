// Command archival-cli runs ad-hoc retention and archival operations
// against the audit log: applying retention policies, force-deleting a
// single policy's expired rows or a single principal's records under
// right-to-erasure, pseudonymizing a principal's existing trail,
// retrieving events for offline review, and reporting backlog statistics.
// Exit codes follow the pipeline's convention: 0 success, 1 runtime error,
// 2 config/validation error.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	domainrepo "github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/gdpr"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/pseudonym"
	"github.com/healthaudit/audit-pipeline/internal/infrastructure/config"
	repos "github.com/healthaudit/audit-pipeline/internal/infrastructure/repositories"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: archival-cli {archive|cleanup|delete|pseudonymize|retrieve|stats|validate} [flags]")
		return 2
	}
	verb, rest := args[0], args[1:]

	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	policyName := fs.String("policy", "", "retention policy name (delete by policy)")
	principal := fs.String("principal", "", "principal id (delete/pseudonymize by subject)")
	requestedBy := fs.String("requested-by", "archival-cli", "operator or system account driving this request")
	preserveCompliance := fs.Bool("preserve-compliance", true, "preserve compliance-critical records, pseudonymized, instead of deleting them (delete --principal)")
	olderThan := fs.Duration("older-than", 0, "age filter, e.g. 720h (retrieve)")
	format := fs.String("format", "json", "export format for retrieve: json|csv|xml")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	if verb == "validate" {
		fmt.Println("config valid:", cfg.String())
		return 0
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.Environment == "development", Service: "archival-cli"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 2
	}

	db, err := repos.NewDB(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		return 1
	}
	defer db.Close()

	auditRepo := repos.NewAuditRepository(db)
	policyRepo := repos.NewRetentionPolicyRepository(db)
	auditSvc := audit.NewService(auditRepo, log)
	ctx := context.Background()

	switch verb {
	case "archive", "cleanup":
		engine := gdpr.NewRetentionEngine(auditRepo, auditSvc, policyRepo, log)
		results, err := engine.ApplyAll(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "retention apply failed: %v\n", err)
			return 1
		}
		for _, r := range results {
			fmt.Printf("policy=%d archived=%d deleted=%d\n", r.PolicyID, r.ArchivedCount, r.DeletedCount)
		}
		return 0

	case "delete":
		if *principal != "" {
			registry, err := newPseudonymRegistry(db, cfg, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "pseudonym registry error: %v\n", err)
				return 2
			}
			eraser := gdpr.NewEraser(auditRepo, auditSvc, registry, log)
			result, err := eraser.Erase(ctx, *principal, *requestedBy, *preserveCompliance)
			if err != nil {
				fmt.Fprintf(os.Stderr, "erasure failed: %v\n", err)
				return 1
			}
			fmt.Printf("principal=%s deleted=%d preserved=%d\n", result.PrincipalID, result.RecordsDeleted, result.ComplianceRecordsPreserved)
			return 0
		}

		if *policyName == "" {
			fmt.Fprintln(os.Stderr, "delete requires -policy or -principal")
			return 2
		}
		policies, err := policyRepo.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list policies failed: %v\n", err)
			return 1
		}
		found := false
		for _, p := range policies {
			if p.Name != *policyName {
				continue
			}
			found = true
			cutoff, ok := p.DeleteCutoffFor(time.Now().UTC())
			if !ok {
				fmt.Fprintf(os.Stderr, "policy %q has no delete threshold configured\n", p.Name)
				return 2
			}
			n, err := auditRepo.DeleteBefore(ctx, p, cutoff)
			if err != nil {
				fmt.Fprintf(os.Stderr, "delete failed: %v\n", err)
				return 1
			}
			fmt.Printf("deleted %d events under policy %q\n", n, p.Name)
			break
		}
		if !found {
			fmt.Fprintf(os.Stderr, "unknown policy %q\n", *policyName)
			return 2
		}
		return 0

	case "pseudonymize":
		if *principal == "" {
			fmt.Fprintln(os.Stderr, "pseudonymize requires -principal")
			return 2
		}
		registry, err := newPseudonymRegistry(db, cfg, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pseudonym registry error: %v\n", err)
			return 2
		}
		pseudonymizer := gdpr.NewPseudonymizer(registry, auditRepo, auditSvc, log)
		result, err := pseudonymizer.PseudonymFor(ctx, "principal", entities.StrategyHash, *principal, *requestedBy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pseudonymize failed: %v\n", err)
			return 1
		}
		fmt.Printf("pseudonym=%s recordsAffected=%d\n", result.PseudonymID, result.RecordsAffected)
		return 0

	case "retrieve":
		filter := domainrepo.EventFilter{Limit: 10000}
		if *olderThan > 0 {
			filter.EndTime = time.Now().UTC().Add(-*olderThan)
		}
		events, err := auditRepo.Query(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "retrieve failed: %v\n", err)
			return 1
		}
		exporter := gdpr.NewExporter(auditSvc, log)
		result, err := exporter.Export(ctx, events, gdpr.ExportFormat(*format), uuid.NewString(), *requestedBy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			return 1
		}
		os.Stdout.Write(result.Data)
		return 0

	case "stats":
		events, err := auditRepo.Query(ctx, domainrepo.EventFilter{Limit: 1})
		if err != nil {
			fmt.Fprintf(os.Stderr, "stats query failed: %v\n", err)
			return 1
		}
		policies, err := policyRepo.ListActive(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stats query failed: %v\n", err)
			return 1
		}
		summary := map[string]interface{}{
			"active_retention_policies": len(policies),
			"sample_event_present":      len(events) > 0,
		}
		enc, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(enc))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown verb %q\n", verb)
		return 2
	}
}

func newPseudonymRegistry(db *sqlx.DB, cfg *config.Config, log *logger.Logger) (*pseudonym.Registry, error) {
	pseudonymRepo := repos.NewPseudonymRepository(db)

	hmacKey, err := hex.DecodeString(cfg.Pseudonym.HMACKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode pseudonym.hmac_key_hex: %w", err)
	}
	encryptionKey, err := hex.DecodeString(cfg.Pseudonym.EncryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode pseudonym.encryption_key_hex: %w", err)
	}
	return pseudonym.NewRegistry(pseudonymRepo, log, hmacKey, encryptionKey)
}
