package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
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
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (f *fakeAuditRepo) Query(ctx context.Context, filter repositories.EventFilter) ([]*entities.AuditEvent, error) {
	return f.events, nil
}

func (f *fakeAuditRepo) LastHash(ctx context.Context) (string, error) {
	return f.lastHash, nil
}

func (f *fakeAuditRepo) RangeForVerification(ctx context.Context, start, end time.Time) ([]*entities.AuditEvent, error) {
	return f.events, nil
}

func (f *fakeAuditRepo) MarkArchived(ctx context.Context, ids []int64, at time.Time) error {
	return nil
}

func (f *fakeAuditRepo) DeleteBefore(ctx context.Context, policy *entities.RetentionPolicy, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAuditRepo) ReplaceDetails(ctx context.Context, id int64, details map[string]interface{}) error {
	for _, e := range f.events {
		if e.ID == id {
			e.Details = details
		}
	}
	return nil
}

func (f *fakeAuditRepo) ReplacePrincipalAndDetails(ctx context.Context, id int64, principalID string, details map[string]interface{}) error {
	for _, e := range f.events {
		if e.ID == id {
			e.PrincipalID = &principalID
			e.Details = details
		}
	}
	return nil
}

func (f *fakeAuditRepo) Delete(ctx context.Context, id int64) error {
	var kept []*entities.AuditEvent
	for _, e := range f.events {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	return &logger.Logger{SugaredLogger: zaptest.NewLogger(t).Sugar()}
}

func TestLogSealsHashChain(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewService(repo, newTestLogger(t))
	ctx := context.Background()

	principal := "user-1"
	err := svc.Log(ctx, &entities.AuditEvent{
		PrincipalID:        &principal,
		Action:             "auth.login.success",
		Status:             entities.StatusSuccess,
		DataClassification: entities.ClassificationInternal,
	})
	require.NoError(t, err)
	require.Len(t, repo.events, 1)
	assert.NotEmpty(t, repo.events[0].Hash)

	err = svc.Log(ctx, &entities.AuditEvent{
		PrincipalID:        &principal,
		Action:             "data.access",
		Status:             entities.StatusSuccess,
		DataClassification: entities.ClassificationInternal,
	})
	require.NoError(t, err)
	assert.NotEqual(t, repo.events[0].Hash, repo.events[1].Hash)
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	repo := &fakeAuditRepo{}
	svc := NewService(repo, newTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Log(ctx, &entities.AuditEvent{
			Action:             "data.access",
			Status:             entities.StatusSuccess,
			DataClassification: entities.ClassificationInternal,
		}))
	}

	result, err := svc.VerifyIntegrity(ctx, time.Time{}, time.Now().Add(time.Hour), "test-operator")
	require.NoError(t, err)
	assert.True(t, result.OK())

	repo.events[1].Hash = "tampered0000000000000000000000000000000000000000000000000000"
	result, err = svc.VerifyIntegrity(ctx, time.Time{}, time.Now().Add(time.Hour), "test-operator")
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.GreaterOrEqual(t, len(result.Findings), 1)
}
