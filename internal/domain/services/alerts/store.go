// Package alerts persists operational and compliance alerts and monitors
// the rest of the pipeline for conditions worth raising one.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
	"github.com/healthaudit/audit-pipeline/pkg/metrics"
)

// defaultDedupWindow matches how long a {source, title, correlationKey}
// triple suppresses repeat alerts before a fresh one is allowed through.
const defaultDedupWindow = 15 * time.Minute

// Store raises and resolves alerts, deduplicating repeat raises of the
// same underlying condition within a time window.
type Store struct {
	repo        repositories.AlertRepository
	redis       *redis.Client
	dedupWindow time.Duration
	log         *logger.Logger
}

// NewStore builds a Store. redisClient backs the deduplication window; a
// nil client disables deduplication (every Raise call persists an alert).
func NewStore(repo repositories.AlertRepository, redisClient *redis.Client, log *logger.Logger) *Store {
	return &Store{repo: repo, redis: redisClient, dedupWindow: defaultDedupWindow, log: log}
}

// Raise persists a new alert unless an identical {source, title,
// correlationKey} alert was already raised within the dedup window, in
// which case it is silently suppressed — the existing alert is still
// open and an operator has not yet had the chance to act on it.
func (s *Store) Raise(ctx context.Context, organizationID *string, alertType entities.AlertType, severity entities.AlertSeverity, source, title, description, correlationKey string) error {
	dedupKey := fmt.Sprintf("alert:dedup:%s:%s:%s", source, title, correlationKey)

	if s.redis != nil {
		acquired, err := s.redis.SetNX(ctx, dedupKey, "1", s.dedupWindow).Result()
		if err != nil {
			return fmt.Errorf("alerts: dedup check: %w", err)
		}
		if !acquired {
			return nil
		}
	}

	alert := &entities.Alert{
		OrganizationID: organizationID,
		Type:           alertType,
		Severity:       severity,
		Source:         source,
		Title:          title,
		Description:    description,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, alert); err != nil {
		if s.redis != nil {
			s.redis.Del(ctx, dedupKey)
		}
		return fmt.Errorf("alerts: raise: %w", err)
	}
	s.log.Warn("alert raised", "type", alertType, "severity", severity, "source", source, "title", title)
	metrics.AlertsRaisedTotal.WithLabelValues(string(alertType)).Inc()
	return nil
}

// Active returns every unresolved alert for organizationID (nil for
// infrastructure-level alerts).
func (s *Store) Active(ctx context.Context, organizationID *string) ([]*entities.Alert, error) {
	active, err := s.repo.ListActive(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("alerts: list active: %w", err)
	}
	return active, nil
}

// ActiveAcrossOrganizations returns every unresolved alert regardless of
// tenant. This is the one explicitly administrative read path that does
// not scope by organizationID.
func (s *Store) ActiveAcrossOrganizations(ctx context.Context) ([]*entities.Alert, error) {
	active, err := s.repo.ListAllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerts: list all active: %w", err)
	}
	return active, nil
}

// Resolve marks an alert handled.
func (s *Store) Resolve(ctx context.Context, id int64, resolvedBy, notes string) error {
	if err := s.repo.Resolve(ctx, id, resolvedBy, notes, time.Now().UTC()); err != nil {
		return fmt.Errorf("alerts: resolve %d: %w", id, err)
	}
	return nil
}

// Statistics summarizes alert volume for organizationID.
func (s *Store) Statistics(ctx context.Context, organizationID *string) (*entities.AlertStatistics, error) {
	stats, err := s.repo.Statistics(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("alerts: statistics: %w", err)
	}
	return stats, nil
}

// CleanupResolved deletes resolved alerts older than olderThanDays for
// organizationID, returning the number removed.
func (s *Store) CleanupResolved(ctx context.Context, organizationID *string, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := s.repo.CleanupResolved(ctx, organizationID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("alerts: cleanup resolved: %w", err)
	}
	return removed, nil
}

// CleanupResolvedAll deletes resolved alerts older than olderThanDays
// across every organization, for the periodic background maintenance
// sweep rather than a single tenant's explicit request.
func (s *Store) CleanupResolvedAll(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	removed, err := s.repo.CleanupResolvedAll(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("alerts: cleanup resolved (all orgs): %w", err)
	}
	return removed, nil
}
