package labels

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/LabelFox/internal/pkg/objectstore"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
	"github.com/ManuelReschke/LabelFox/internal/pkg/scan"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usage"
)

type fakeAnalyzer struct {
	mu     sync.Mutex
	result *scan.Result
	err    error
	urls   []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, fileURL string) (*scan.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, fileURL)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	store    *objectstore.Memory
	analyzer *fakeAnalyzer
	clock    *time.Time
}

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	clock := testNow
	now := func() time.Time { return clock }

	catalog := plans.NewCatalog(func(key, def string) string { return def })
	usageSvc := usage.NewService(db, catalog, "demo-ws").WithClock(now)
	store := objectstore.NewMemory()
	analyzer := &fakeAnalyzer{result: sampleResult()}
	svc := NewService(db, usageSvc, analyzer, store).WithClock(now)

	expires := testNow.Add(30 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.Workspace{ID: "ws", Name: "Acme", Plan: models.PlanLite, PlanExpiresAt: &expires}).Error)
	require.NoError(t, db.Create(&models.Workspace{ID: "demo-ws", Name: "Demo"}).Error)

	return &testEnv{svc: svc, db: db, store: store, analyzer: analyzer, clock: &clock}
}

func (e *testEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func sampleResult() *scan.Result {
	return &scan.Result{
		OCR: json.RawMessage(`{"text":"Net Wt 12 oz"}`),
		Violations: []scan.Violation{
			{Type: "allergen", Message: "Missing allergen statement", Severity: "HIGH", Category: "Allergens", Location: json.RawMessage(`"back panel"`)},
			{Type: "font", Message: "Font too small"},
		},
		Analysis: scan.Analysis{
			OverallScore:   72,
			CompliantItems: json.RawMessage(`["Net quantity"]`),
			NextSteps:      json.RawMessage(`["a","b","c","d","e","f","g","h"]`),
		},
	}
}

func pngUpload(name string) Upload {
	return Upload{Filename: name, ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG")}
}

func TestCreateLabel_StoresScannedVersion(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.svc.CreateLabel(context.Background(), "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	assert.Equal(t, "Front", out.Label.Name)
	assert.Equal(t, models.LabelStatusScanned, out.Version.Status)
	assert.Equal(t, 72, out.Analysis.OverallScore)
	assert.JSONEq(t, `{"text":"Net Wt 12 oz"}`, string(out.OCR))
	require.Len(t, out.Version.Violations, 2)
	assert.Equal(t, 1, e.store.Len())
	assert.Equal(t, []string{out.Label.FileURL}, e.analyzer.urls)

	var stored []models.Violation
	require.NoError(t, e.db.Order("type").Find(&stored).Error)
	require.Len(t, stored, 2)
	assert.Equal(t, models.SeverityHigh, stored[0].Severity)
	assert.Equal(t, "back panel", stored[0].Location)
	assert.Equal(t, models.SeverityMedium, stored[1].Severity)
	assert.Equal(t, "General", stored[1].Category)
}

func TestCreateLabel_AnalysisFailureStoresEmptyResult(t *testing.T) {
	e := newTestEnv(t)
	e.analyzer.err = errors.New("ml down")

	out, err := e.svc.CreateLabel(context.Background(), "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)
	assert.Equal(t, models.LabelStatusScanned, out.Version.Status)
	assert.Equal(t, 0, out.Analysis.OverallScore)
	assert.Empty(t, out.Version.Violations)
	assert.JSONEq(t, `[]`, string(out.Analysis.NextSteps))
}

func TestCreateLabel_PlanLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.svc.CreateLabel(ctx, "ws", "Label", pngUpload("l.png"))
		require.NoError(t, err)
	}

	_, err := e.svc.CreateLabel(ctx, "ws", "Third", pngUpload("l.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPlanLimit)
	assert.Equal(t, 2, e.store.Len())

	var labels int64
	require.NoError(t, e.db.Model(&models.Label{}).Count(&labels).Error)
	assert.EqualValues(t, 2, labels)
}

func TestCreateLabel_RequiresActiveSubscription(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.Model(&models.Workspace{}).Where("id = ?", "ws").Update("plan_expires_at", gorm.Expr("NULL")).Error)

	_, err := e.svc.CreateLabel(context.Background(), "ws", "Front", pngUpload("front.png"))
	assert.ErrorIs(t, err, apperr.ErrSubscriptionRequired)
	assert.Equal(t, 0, e.store.Len())
}

func TestCreateLabel_RejectsNonImage(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.CreateLabel(context.Background(), "ws", "Doc", Upload{Filename: "notes.txt", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateVersion_ListsNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	e.advance(time.Hour)
	e.analyzer.result = &scan.Result{Analysis: scan.Analysis{OverallScore: 91}}
	second, err := e.svc.CreateVersion(ctx, "ws", first.Label.ID, pngUpload("front-v2.png"))
	require.NoError(t, err)
	assert.Equal(t, first.Label.ID, second.Version.LabelID)

	versions, err := e.svc.ListVersions(ctx, "ws", first.Label.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.Version.ID, versions[0].ID)
	assert.Equal(t, 91, versions[0].OverallScore)

	sum, err := e.svc.GetLabel(ctx, "ws", first.Label.ID)
	require.NoError(t, err)
	require.NotNil(t, sum.Version)
	assert.Equal(t, second.Version.ID, sum.Version.ID)
}

func TestCreateVersion_UnknownLabel(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.CreateVersion(context.Background(), "ws", "missing", pngUpload("a.png"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListLabels_ExcludesDemoAndOtherWorkspaces(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)
	require.NoError(t, e.db.Create(&models.Label{WorkspaceID: "ws", Name: "demo", IsDemo: true}).Error)
	require.NoError(t, e.db.Create(&models.Label{WorkspaceID: "other", Name: "foreign"}).Error)

	list, err := e.svc.ListLabels(ctx, "ws")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Front", list[0].Label.Name)
	require.NotNil(t, list[0].Version)
	assert.Len(t, list[0].Version.Violations, 2)
}

func TestGetLabel_ScopedToWorkspace(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	out, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	_, err = e.svc.GetLabel(ctx, "other", out.Label.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReviewVersion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	out, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	_, err = e.svc.ReviewVersion(ctx, "ws", out.Label.ID, out.Version.ID, "maybe", "", "u1")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	v, err := e.svc.ReviewVersion(ctx, "ws", out.Label.ID, out.Version.ID, "approved", "looks good", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.LabelStatusApproved, v.Status)
	assert.Equal(t, "looks good", v.ReviewComment)
	assert.Equal(t, "u1", v.ApprovedBy)
	require.NotNil(t, v.ApprovedAt)
	assert.True(t, v.ApprovedAt.Equal(testNow))

	v, err = e.svc.ReviewVersion(ctx, "ws", out.Label.ID, out.Version.ID, "REJECTED", "font", "u2")
	require.NoError(t, err)
	assert.Equal(t, models.LabelStatusRejected, v.Status)
	assert.Equal(t, "u2", v.RejectedBy)
}

func TestReviewVersion_PendingConflict(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	label := &models.Label{WorkspaceID: "ws", Name: "L"}
	require.NoError(t, e.db.Create(label).Error)
	pending := &models.LabelVersion{LabelID: label.ID, Status: models.LabelStatusPending, AnalyzedAt: testNow}
	require.NoError(t, e.db.Create(pending).Error)

	_, err := e.svc.ReviewVersion(ctx, "ws", label.ID, pending.ID, "APPROVED", "", "u1")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRenameLabel(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	out, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	_, err = e.svc.RenameLabel(ctx, "ws", out.Label.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	l, err := e.svc.RenameLabel(ctx, "ws", out.Label.ID, "Back")
	require.NoError(t, err)
	assert.Equal(t, "Back", l.Name)
}

func TestDeleteLabel_RemovesRowsAndObjects(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	out, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)
	_, err = e.svc.CreateVersion(ctx, "ws", out.Label.ID, pngUpload("v2.png"))
	require.NoError(t, err)
	assert.Equal(t, 2, e.store.Len())

	require.NoError(t, e.svc.DeleteLabel(ctx, "ws", out.Label.ID))

	var labels, versions, violations int64
	e.db.Model(&models.Label{}).Count(&labels)
	e.db.Model(&models.LabelVersion{}).Count(&versions)
	e.db.Model(&models.Violation{}).Count(&violations)
	assert.Zero(t, labels)
	assert.Zero(t, versions)
	assert.Zero(t, violations)
	assert.Equal(t, 0, e.store.Len())

	assert.ErrorIs(t, e.svc.DeleteLabel(ctx, "ws", out.Label.ID), apperr.ErrNotFound)
}

func TestFileURL_PresignsLatestObject(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	out, err := e.svc.CreateLabel(ctx, "ws", "Front", pngUpload("front.png"))
	require.NoError(t, err)

	url, err := e.svc.FileURL(ctx, "ws", out.Label.ID, PreviewURLTTL)
	require.NoError(t, err)
	assert.Contains(t, url, out.Label.ObjectKey)
	assert.Contains(t, url, "expires=900")
}

func TestDemoScan_ReturnsPartialResult(t *testing.T) {
	e := newTestEnv(t)

	res, err := e.svc.DemoScan(context.Background(), "demo-ws", pngUpload("demo.png"))
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, DemoMessage, res.Message)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, res.Analysis.NextSteps)
	assert.Equal(t, 2, res.TotalViolations)
	assert.Equal(t, 72, res.Analysis.OverallScore)

	var label models.Label
	require.NoError(t, e.db.Where("workspace_id = ?", "demo-ws").First(&label).Error)
	assert.True(t, label.IsDemo)
	assert.Equal(t, "demo.png", label.Name)

	used, err := e.svc.usage.MonthlyUsage(context.Background(), "demo-ws")
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestDemoScan_NotConfigured(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.DemoScan(context.Background(), "", pngUpload("demo.png"))
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestDemoScan_AnalyzerFailure(t *testing.T) {
	e := newTestEnv(t)
	e.analyzer.err = errors.New("ml down")

	_, err := e.svc.DemoScan(context.Background(), "demo-ws", pngUpload("demo.png"))
	assert.ErrorIs(t, err, apperr.ErrExternalProvider)
}
