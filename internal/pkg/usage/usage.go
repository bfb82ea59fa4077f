// Package usage enforces the monthly scan allowance of a workspace.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/metrics"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
)

const (
	MsgScanLimit            = "Plan limit reached for monthly SKUs"
	MsgSubscriptionRequired = "Active subscription required to scan labels"
)

// Service answers "may this workspace scan another label now".
type Service struct {
	db              *gorm.DB
	catalog         *plans.Catalog
	demoWorkspaceID string
	now             func() time.Time
}

func NewService(db *gorm.DB, catalog *plans.Catalog, demoWorkspaceID string) *Service {
	return &Service{
		db:              db,
		catalog:         catalog,
		demoWorkspaceID: demoWorkspaceID,
		now:             time.Now,
	}
}

// NewServiceFromDB wires the gate with the process catalog and DEMO_WORKSPACE_ID.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(db, plans.Default(), env.GetEnv("DEMO_WORKSPACE_ID", ""))
}

// WithClock replaces the gate clock. The month window is computed in the
// location of the returned time.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// DemoWorkspaceID returns the workspace that bypasses all gates.
func (s *Service) DemoWorkspaceID() string {
	return s.demoWorkspaceID
}

// MonthWindow returns [first instant of t's month, first instant of the next month).
func MonthWindow(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// AssertCanScan returns nil when the workspace may scan another label.
func (s *Service) AssertCanScan(ctx context.Context, workspaceID string) error {
	ws, err := loadWorkspace(s.db.WithContext(ctx), workspaceID, false)
	if err != nil {
		return err
	}
	return s.check(s.db.WithContext(ctx), ws)
}

// ReserveScan checks the allowance and inserts a PENDING version for labelID
// while holding the workspace row lock, so concurrent scans cannot overshoot
// the limit. The returned version must be completed or released.
func (s *Service) ReserveScan(ctx context.Context, workspaceID, labelID, fileURL string) (*models.LabelVersion, error) {
	var version *models.LabelVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := loadWorkspace(tx, workspaceID, true)
		if err != nil {
			return err
		}
		if err := s.check(tx, ws); err != nil {
			return err
		}

		v := &models.LabelVersion{
			LabelID:    labelID,
			Status:     models.LabelStatusPending,
			FileURL:    fileURL,
			AnalyzedAt: s.now(),
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ReleaseScan drops a reservation whose scan could not be stored. Versions
// that already left PENDING are kept.
func (s *Service) ReleaseScan(ctx context.Context, versionID string) error {
	return s.db.WithContext(ctx).
		Where("id = ? AND status = ?", versionID, models.LabelStatusPending).
		Delete(&models.LabelVersion{}).Error
}

// MonthlyUsage counts the distinct labels scanned in the current month.
func (s *Service) MonthlyUsage(ctx context.Context, workspaceID string) (int64, error) {
	return countScans(s.db.WithContext(ctx), workspaceID, s.now())
}

func (s *Service) check(db *gorm.DB, ws *models.Workspace) error {
	const op = "usage.AssertCanScan"
	if s.demoWorkspaceID != "" && ws.ID == s.demoWorkspaceID {
		return nil
	}

	now := s.now()
	limit := s.catalog.LimitsFor(ws.Plan).ScansPerMonth
	count, err := countScans(db, ws.ID, now)
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		metrics.GateDenialsTotal.WithLabelValues("scan", "plan_limit").Inc()
		log.Infof("[Usage] Workspace %s reached scan limit (%d/%d)", ws.ID, count, limit)
		return apperr.PlanLimit(op, apperr.ResourceScans, MsgScanLimit, count, int64(limit))
	}
	if !ws.HasActivePeriod(now) {
		metrics.GateDenialsTotal.WithLabelValues("scan", "subscription_required").Inc()
		return apperr.SubscriptionRequired(op, MsgSubscriptionRequired)
	}
	return nil
}

func countScans(db *gorm.DB, workspaceID string, now time.Time) (int64, error) {
	start, end := MonthWindow(now)
	var count int64
	err := db.Model(&models.LabelVersion{}).
		Select("COUNT(DISTINCT label_versions.label_id)").
		Joins("JOIN labels ON labels.id = label_versions.label_id").
		Where("labels.workspace_id = ? AND labels.is_demo = ?", workspaceID, false).
		Where("label_versions.analyzed_at >= ? AND label_versions.analyzed_at < ?", start, end).
		Scan(&count).Error
	return count, err
}

func loadWorkspace(db *gorm.DB, id string, lock bool) (*models.Workspace, error) {
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ws models.Workspace
	if err := db.Where("id = ?", id).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("usage.AssertCanScan", "Workspace not found")
		}
		return nil, err
	}
	return &ws, nil
}
