package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

type fakeAuditRepo struct {
	events   []*entities.AuditEvent
	lastHash string
}

func (f *fakeAuditRepo) Insert(ctx context.Context, event *entities.AuditEvent) error {
	event.ID = int64(len(f.events) + 1)
	f.events = append(f.events, event)
	f.lastHash = event.Hash
	return nil
}
func (f *fakeAuditRepo) GetByID(ctx context.Context, id int64) (*entities.AuditEvent, error) {
	return nil, nil
}
func (f *fakeAuditRepo) Query(ctx context.Context, filter repositories.EventFilter) ([]*entities.AuditEvent, error) {
	return f.events, nil
}
func (f *fakeAuditRepo) LastHash(ctx context.Context) (string, error) { return f.lastHash, nil }
func (f *fakeAuditRepo) RangeForVerification(ctx context.Context, start, end time.Time) ([]*entities.AuditEvent, error) {
	return f.events, nil
}
func (f *fakeAuditRepo) MarkArchived(ctx context.Context, ids []int64, at time.Time) error { return nil }
func (f *fakeAuditRepo) DeleteBefore(ctx context.Context, policy *entities.RetentionPolicy, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAuditRepo) ReplaceDetails(ctx context.Context, id int64, details map[string]interface{}) error {
	return nil
}
func (f *fakeAuditRepo) ReplacePrincipalAndDetails(ctx context.Context, id int64, principalID string, details map[string]interface{}) error {
	return nil
}
func (f *fakeAuditRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeIntegrityRepo struct {
	runs []*entities.IntegrityVerification
}

func (f *fakeIntegrityRepo) Insert(ctx context.Context, v *entities.IntegrityVerification) error {
	f.runs = append(f.runs, v)
	return nil
}
func (f *fakeIntegrityRepo) List(ctx context.Context, limit int) ([]*entities.IntegrityVerification, error) {
	return f.runs, nil
}
func (f *fakeIntegrityRepo) Latest(ctx context.Context) (*entities.IntegrityVerification, error) {
	if len(f.runs) == 0 {
		return nil, nil
	}
	return f.runs[len(f.runs)-1], nil
}

type fakeAlertRepo struct {
	alerts []*entities.Alert
}

func (f *fakeAlertRepo) Insert(ctx context.Context, alert *entities.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}
func (f *fakeAlertRepo) ListActive(ctx context.Context, organizationID *string) ([]*entities.Alert, error) {
	return f.alerts, nil
}
func (f *fakeAlertRepo) ListAllActive(ctx context.Context) ([]*entities.Alert, error) {
	return f.alerts, nil
}
func (f *fakeAlertRepo) Resolve(ctx context.Context, id int64, resolvedBy, notes string, at time.Time) error {
	return nil
}
func (f *fakeAlertRepo) Statistics(ctx context.Context, organizationID *string) (*entities.AlertStatistics, error) {
	return &entities.AlertStatistics{}, nil
}
func (f *fakeAlertRepo) CleanupResolved(ctx context.Context, organizationID *string, olderThan time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAlertRepo) CleanupResolvedAll(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	return &logger.Logger{SugaredLogger: zaptest.NewLogger(t).Sugar()}
}

func TestRunPersistsCleanVerification(t *testing.T) {
	auditRepo := &fakeAuditRepo{}
	auditSvc := audit.NewService(auditRepo, newTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, auditSvc.Log(ctx, &entities.AuditEvent{
			Action:             "data.access",
			Status:             entities.StatusSuccess,
			DataClassification: entities.ClassificationInternal,
		}))
	}

	integrityRepo := &fakeIntegrityRepo{}
	alertRepo := &fakeAlertRepo{}
	verifier := NewVerifier(auditSvc, integrityRepo, alertRepo, newTestLogger(t))

	result, err := verifier.Run(ctx, time.Time{}, time.Now().Add(time.Hour), "test-operator")
	require.NoError(t, err)
	assert.True(t, result.OK())
	require.Len(t, integrityRepo.runs, 1)
	assert.Equal(t, entities.IntegrityStatusVerified, integrityRepo.runs[0].Status)
	assert.Empty(t, alertRepo.alerts)
}

func TestRunRaisesAlertOnTampering(t *testing.T) {
	auditRepo := &fakeAuditRepo{}
	auditSvc := audit.NewService(auditRepo, newTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, auditSvc.Log(ctx, &entities.AuditEvent{
			Action:             "data.access",
			Status:             entities.StatusSuccess,
			DataClassification: entities.ClassificationInternal,
		}))
	}
	auditRepo.events[1].Hash = "tampered0000000000000000000000000000000000000000000000000000"

	integrityRepo := &fakeIntegrityRepo{}
	alertRepo := &fakeAlertRepo{}
	verifier := NewVerifier(auditSvc, integrityRepo, alertRepo, newTestLogger(t))

	result, err := verifier.Run(ctx, time.Time{}, time.Now().Add(time.Hour), "test-operator")
	require.NoError(t, err)
	assert.False(t, result.OK())
	require.Len(t, integrityRepo.runs, 1)
	assert.Equal(t, entities.IntegrityStatusTampered, integrityRepo.runs[0].Status)
	require.Len(t, alertRepo.alerts, 1)
	assert.Equal(t, entities.AlertTypeCompliance, alertRepo.alerts[0].Type)
}
