package usage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	catalog := plans.NewCatalog(func(key, def string) string { return def })
	svc := NewService(db, catalog, "demo-ws").WithClock(func() time.Time { return testNow })
	return svc, db
}

func createWorkspace(t *testing.T, db *gorm.DB, id, plan string, expires *time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Workspace{ID: id, Name: id, Plan: plan, PlanExpiresAt: expires}).Error)
}

func scanLabel(t *testing.T, db *gorm.DB, workspaceID string, demo bool, analyzedAt time.Time) string {
	t.Helper()
	label := &models.Label{WorkspaceID: workspaceID, Name: "label", IsDemo: demo}
	require.NoError(t, db.Create(label).Error)
	require.NoError(t, db.Create(&models.LabelVersion{
		LabelID:    label.ID,
		Status:     models.LabelStatusScanned,
		AnalyzedAt: analyzedAt,
	}).Error)
	return label.ID
}

func future() *time.Time {
	t := testNow.Add(30 * 24 * time.Hour)
	return &t
}

func TestMonthWindow(t *testing.T) {
	start, end := MonthWindow(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestAssertCanScan_WorkspaceNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AssertCanScan(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssertCanScan_DemoWorkspaceAlwaysAllowed(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "demo-ws", models.PlanLite, nil)
	for i := 0; i < 5; i++ {
		scanLabel(t, db, "demo-ws", false, testNow)
	}

	assert.NoError(t, svc.AssertCanScan(context.Background(), "demo-ws"))
}

func TestAssertCanScan_AllowsUnderLimit(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, future())
	scanLabel(t, db, "ws", false, testNow.Add(-time.Hour))

	assert.NoError(t, svc.AssertCanScan(context.Background(), "ws"))
}

func TestAssertCanScan_LimitReached(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, future())
	scanLabel(t, db, "ws", false, testNow.Add(-time.Hour))
	scanLabel(t, db, "ws", false, testNow.Add(-2*time.Hour))

	err := svc.AssertCanScan(context.Background(), "ws")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrPlanLimit)
	assert.Equal(t, MsgScanLimit, apperr.MessageOf(err, ""))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.ResourceScans, ae.Resource)
	assert.EqualValues(t, 2, ae.Current)
	assert.EqualValues(t, 2, ae.Limit)
}

func TestAssertCanScan_LimitCheckedBeforeSubscription(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, nil)
	scanLabel(t, db, "ws", false, testNow)
	scanLabel(t, db, "ws", false, testNow)

	err := svc.AssertCanScan(context.Background(), "ws")
	assert.ErrorIs(t, err, apperr.ErrPlanLimit)
}

func TestAssertCanScan_SubscriptionRequired(t *testing.T) {
	svc, db := newTestService(t)
	expired := testNow
	createWorkspace(t, db, "ws", models.PlanTeam, &expired)

	err := svc.AssertCanScan(context.Background(), "ws")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrSubscriptionRequired)
	assert.Equal(t, MsgSubscriptionRequired, apperr.MessageOf(err, ""))
}

func TestAssertCanScan_IgnoresDemoLabelsAndOtherMonths(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, future())
	scanLabel(t, db, "ws", true, testNow)
	scanLabel(t, db, "ws", true, testNow)
	scanLabel(t, db, "ws", false, time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC))
	scanLabel(t, db, "ws", false, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))

	count, err := svc.MonthlyUsage(context.Background(), "ws")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
	assert.NoError(t, svc.AssertCanScan(context.Background(), "ws"))
}

func TestMonthlyUsage_CountsDistinctLabels(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanTeam, future())
	labelID := scanLabel(t, db, "ws", false, testNow)
	require.NoError(t, db.Create(&models.LabelVersion{LabelID: labelID, Status: models.LabelStatusScanned, AnalyzedAt: testNow}).Error)
	scanLabel(t, db, "ws", false, testNow)

	count, err := svc.MonthlyUsage(context.Background(), "ws")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestReserveScan_ConsumesSlot(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, future())
	scanLabel(t, db, "ws", false, testNow)

	label := &models.Label{WorkspaceID: "ws", Name: "new"}
	require.NoError(t, db.Create(label).Error)

	v, err := svc.ReserveScan(context.Background(), "ws", label.ID, "https://files/x.png")
	require.NoError(t, err)
	assert.Equal(t, models.LabelStatusPending, v.Status)

	other := &models.Label{WorkspaceID: "ws", Name: "third"}
	require.NoError(t, db.Create(other).Error)
	_, err = svc.ReserveScan(context.Background(), "ws", other.ID, "")
	assert.ErrorIs(t, err, apperr.ErrPlanLimit)

	require.NoError(t, svc.ReleaseScan(context.Background(), v.ID))
	_, err = svc.ReserveScan(context.Background(), "ws", other.ID, "")
	assert.NoError(t, err)
}

func TestReleaseScan_KeepsCompletedVersions(t *testing.T) {
	svc, db := newTestService(t)
	createWorkspace(t, db, "ws", models.PlanLite, future())
	labelID := scanLabel(t, db, "ws", false, testNow)

	var v models.LabelVersion
	require.NoError(t, db.Where("label_id = ?", labelID).First(&v).Error)
	require.NoError(t, svc.ReleaseScan(context.Background(), v.ID))

	var n int64
	require.NoError(t, db.Model(&models.LabelVersion{}).Where("id = ?", v.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
