package gdpr

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/healthaudit/audit-pipeline/internal/domain/entities"
	"github.com/healthaudit/audit-pipeline/internal/domain/repositories"
	auditsvc "github.com/healthaudit/audit-pipeline/internal/domain/services/audit"
	"github.com/healthaudit/audit-pipeline/internal/domain/services/pseudonym"
	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	return &logger.Logger{SugaredLogger: zaptest.NewLogger(t).Sugar()}
}

func ptr(s string) *string { return &s }

func days(n int) *int { return &n }

func sampleEvents() []*entities.AuditEvent {
	return []*entities.AuditEvent{
		{ID: 1, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PrincipalID: ptr("user-1"), Action: "data.access", Status: entities.StatusSuccess, DataClassification: entities.ClassificationInternal, Hash: "abc"},
		{ID: 2, Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), PrincipalID: ptr("user-1"), Action: "auth.login.success", Status: entities.StatusSuccess, DataClassification: entities.ClassificationInternal, Hash: "def"},
	}
}

func TestExportJSON(t *testing.T) {
	result, err := Export(sampleEvents(), ExportFormatJSON, "req-1", "operator-1")
	require.NoError(t, err)

	var decoded jsonExport
	require.NoError(t, json.Unmarshal(result.Data, &decoded))
	assert.Len(t, decoded.AuditLogs, 2)
	require.NotNil(t, decoded.ExportMetadata)
	assert.Equal(t, "req-1", decoded.ExportMetadata.RequestID)
	assert.Equal(t, 2, decoded.ExportMetadata.RecordCount)
	assert.Equal(t, result.Metadata.DataSize, decoded.ExportMetadata.DataSize)
}

func TestExportCSV(t *testing.T) {
	result, err := Export(sampleEvents(), ExportFormatCSV, "req-2", "operator-1")
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "data.access")
	assert.Contains(t, string(result.Data), "auth.login.success")
	assert.Equal(t, len(result.Data), result.Metadata.DataSize)

	reader := csv.NewReader(strings.NewReader(string(result.Data)))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "id", records[0][0])
}

func TestExportXML(t *testing.T) {
	result, err := Export(sampleEvents(), ExportFormatXML, "req-3", "operator-1")
	require.NoError(t, err)
	assert.Contains(t, string(result.Data), "<gdprExport>")
	assert.Contains(t, string(result.Data), "data.access")
	assert.Equal(t, len(result.Data), result.Metadata.DataSize)
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := Export(sampleEvents(), ExportFormat("yaml"), "req-4", "operator-1")
	assert.Error(t, err)
}

type fakeAuditRepo struct {
	events  []*entities.AuditEvent
	deleted int64
}

func (f *fakeAuditRepo) Insert(ctx context.Context, event *entities.AuditEvent) error { return nil }
func (f *fakeAuditRepo) GetByID(ctx context.Context, id int64) (*entities.AuditEvent, error) {
	return nil, nil
}
func (f *fakeAuditRepo) Query(ctx context.Context, filter repositories.EventFilter) ([]*entities.AuditEvent, error) {
	var out []*entities.AuditEvent
	for _, e := range f.events {
		if filter.PrincipalID != "" && (e.PrincipalID == nil || *e.PrincipalID != filter.PrincipalID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeAuditRepo) LastHash(ctx context.Context) (string, error) { return "", nil }
func (f *fakeAuditRepo) RangeForVerification(ctx context.Context, start, end time.Time) ([]*entities.AuditEvent, error) {
	return f.events, nil
}
func (f *fakeAuditRepo) MarkArchived(ctx context.Context, ids []int64, at time.Time) error {
	for _, e := range f.events {
		for _, id := range ids {
			if e.ID == id {
				e.ArchivedAt = &at
			}
		}
	}
	return nil
}
func (f *fakeAuditRepo) DeleteBefore(ctx context.Context, policy *entities.RetentionPolicy, cutoff time.Time) (int64, error) {
	var kept []*entities.AuditEvent
	var deleted int64
	for _, e := range f.events {
		if e.IsArchived() && e.Timestamp.Before(cutoff) && policy.Matches(e.DataClassification, e.Action) && !entities.IsComplianceCritical(e.Action) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	f.deleted += deleted
	return deleted, nil
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
		if e.ID == id {
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return nil
}

type fakePolicyRepo struct {
	policies []*entities.RetentionPolicy
}

func (f *fakePolicyRepo) List(ctx context.Context) ([]*entities.RetentionPolicy, error) {
	return f.policies, nil
}
func (f *fakePolicyRepo) ListActive(ctx context.Context) ([]*entities.RetentionPolicy, error) {
	var out []*entities.RetentionPolicy
	for _, p := range f.policies {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakePolicyRepo) GetByID(ctx context.Context, id int64) (*entities.RetentionPolicy, error) {
	for _, p := range f.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}
func (f *fakePolicyRepo) Upsert(ctx context.Context, policy *entities.RetentionPolicy) error {
	f.policies = append(f.policies, policy)
	return nil
}

type fakePseudonymRepo struct {
	byID map[int64]*entities.PseudonymMapping
	next int64
}

func newFakePseudonymRepo() *fakePseudonymRepo {
	return &fakePseudonymRepo{byID: map[int64]*entities.PseudonymMapping{}}
}
func (f *fakePseudonymRepo) FindByOriginal(ctx context.Context, domain, originalHash string) (*entities.PseudonymMapping, error) {
	for _, m := range f.byID {
		if m.Domain == domain && m.OriginalValueHash == originalHash {
			return m, nil
		}
	}
	return nil, nil
}
func (f *fakePseudonymRepo) FindByPseudonym(ctx context.Context, domain, pseudonym string) (*entities.PseudonymMapping, error) {
	for _, m := range f.byID {
		if m.Domain == domain && m.PseudonymValue == pseudonym {
			return m, nil
		}
	}
	return nil, nil
}
func (f *fakePseudonymRepo) Create(ctx context.Context, mapping *entities.PseudonymMapping) error {
	f.next++
	mapping.ID = f.next
	f.byID[mapping.ID] = mapping
	return nil
}

func newTestAuditSvc(t *testing.T, repo repositories.AuditRepository) *auditsvc.Service {
	t.Helper()
	return auditsvc.NewService(repo, newTestLogger(t))
}

func TestRetentionEngineDeletesArchivedEvents(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -400)
	archivedAt := time.Now().UTC().AddDate(0, 0, -200)
	repo := &fakeAuditRepo{events: []*entities.AuditEvent{
		{ID: 1, Timestamp: old, Action: "data.access", DataClassification: entities.ClassificationInternal, ArchivedAt: &archivedAt},
	}}
	policyRepo := &fakePolicyRepo{policies: []*entities.RetentionPolicy{
		{ID: 1, Name: "internal-1y", DataClassification: entities.ClassificationInternal, RetentionDays: 365, DeleteAfterDays: days(365), IsActive: true},
	}}

	engine := NewRetentionEngine(repo, newTestAuditSvc(t, repo), policyRepo, newTestLogger(t))
	results, err := engine.ApplyAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].DeletedCount)
	assert.Empty(t, repo.events)
}

func TestRetentionEngineNeverDeletesUnarchivedEvents(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -400)
	repo := &fakeAuditRepo{events: []*entities.AuditEvent{
		{ID: 1, Timestamp: old, Action: "data.access", DataClassification: entities.ClassificationInternal},
	}}
	policyRepo := &fakePolicyRepo{policies: []*entities.RetentionPolicy{
		{ID: 1, Name: "internal-1y", DataClassification: entities.ClassificationInternal, RetentionDays: 365, DeleteAfterDays: days(365), IsActive: true},
	}}

	engine := NewRetentionEngine(repo, newTestAuditSvc(t, repo), policyRepo, newTestLogger(t))
	results, err := engine.ApplyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), results[0].DeletedCount)
	assert.Len(t, repo.events, 1)
}

func TestRetentionEnginePreservesComplianceCriticalEvents(t *testing.T) {
	old := time.Now().UTC().AddDate(0, 0, -400)
	archivedAt := time.Now().UTC().AddDate(0, 0, -200)
	repo := &fakeAuditRepo{events: []*entities.AuditEvent{
		{ID: 1, Timestamp: old, Action: "auth.login.success", DataClassification: entities.ClassificationInternal, ArchivedAt: &archivedAt},
	}}
	policyRepo := &fakePolicyRepo{policies: []*entities.RetentionPolicy{
		{ID: 1, Name: "internal-1y", DataClassification: entities.ClassificationInternal, RetentionDays: 365, DeleteAfterDays: days(365), IsActive: true},
	}}

	engine := NewRetentionEngine(repo, newTestAuditSvc(t, repo), policyRepo, newTestLogger(t))
	results, err := engine.ApplyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), results[0].DeletedCount)
	assert.Len(t, repo.events, 1)
}

func newTestRegistry(t *testing.T) *pseudonym.Registry {
	t.Helper()
	reg, err := pseudonym.NewRegistry(newFakePseudonymRepo(), newTestLogger(t), []byte("hmac-key"), []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return reg
}

func TestEraserDeletesAndPreservesComplianceCriticalEvents(t *testing.T) {
	repo := &fakeAuditRepo{events: sampleEvents()}
	registry := newTestRegistry(t)
	eraser := NewEraser(repo, newTestAuditSvc(t, repo), registry, newTestLogger(t))

	result, err := eraser.Erase(context.Background(), "user-1", "dpo-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordsDeleted)
	assert.Equal(t, 1, result.ComplianceRecordsPreserved)
	require.Len(t, repo.events, 1)

	preserved := repo.events[0]
	assert.Equal(t, "auth.login.success", preserved.Action)
	assert.NotNil(t, preserved.PrincipalID)
	assert.NotEqual(t, "user-1", *preserved.PrincipalID)
	assert.Equal(t, true, preserved.Details["pseudonymized"])
}

func TestEraserDeletesEverythingWithoutPreservation(t *testing.T) {
	repo := &fakeAuditRepo{events: sampleEvents()}
	registry := newTestRegistry(t)
	eraser := NewEraser(repo, newTestAuditSvc(t, repo), registry, newTestLogger(t))

	result, err := eraser.Erase(context.Background(), "user-1", "dpo-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsDeleted)
	assert.Equal(t, 0, result.ComplianceRecordsPreserved)
	assert.Empty(t, repo.events)
}

func TestPseudonymizerRewritesMatchingEvents(t *testing.T) {
	repo := &fakeAuditRepo{events: sampleEvents()}
	registry := newTestRegistry(t)
	pseudonymizer := NewPseudonymizer(registry, repo, newTestAuditSvc(t, repo), newTestLogger(t))

	result, err := pseudonymizer.PseudonymFor(context.Background(), "principal", entities.StrategyHash, "user-1", "dpo-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordsAffected)
	for _, e := range repo.events {
		require.NotNil(t, e.PrincipalID)
		assert.Equal(t, result.PseudonymID, *e.PrincipalID)
		assert.Equal(t, true, e.Details["pseudonymized"])
	}
}
