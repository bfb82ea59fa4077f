// Package reports generates workspace compliance reports. Reports are queued
// as rows and rendered by the job queue workers through Process.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/objectstore"
)

const (
	DownloadURLTTL = 7 * 24 * time.Hour
	Retention      = 30 * 24 * time.Hour

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ErrNotRunning is returned by Process when the report left the running state
// while it was rendered, e.g. after the sweeper requeued it.
var ErrNotRunning = errors.New("report is no longer running")

const (
	ProgressLoaded   = 25
	ProgressSummary  = 50
	ProgressRendered = 75
	ProgressDone     = 100
)

// GenerateRequest is the body of a report request.
type GenerateRequest struct {
	Name       string     `json:"name" validate:"required,max=255"`
	Type       string     `json:"type" validate:"required,oneof=monthly quarterly custom"`
	Format     string     `json:"format" validate:"omitempty,oneof=pdf csv"`
	RangeStart *time.Time `json:"range_start"`
	RangeEnd   *time.Time `json:"range_end"`
}

// Page is one page of a report listing.
type Page struct {
	Reports []models.Report `json:"reports"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

// Detail is a report with the breakdown shown on its detail page.
type Detail struct {
	models.Report
	TopViolations    []TopViolation    `json:"top_violations,omitempty"`
	Recommendations  []Recommendation  `json:"recommendations,omitempty"`
	RejectedVersions []RejectedVersion `json:"rejected_versions,omitempty"`
	ApprovedVersions []ApprovedVersion `json:"approved_versions,omitempty"`
}

type Service struct {
	db       *gorm.DB
	store    objectstore.Store
	validate *validator.Validate
	notify   func()
	now      func() time.Time
}

func NewService(db *gorm.DB, store objectstore.Store) *Service {
	return &Service{
		db:       db,
		store:    store,
		validate: validator.New(),
		notify:   func() {},
		now:      time.Now,
	}
}

// WithNotifier registers a callback run after a report was queued.
func (s *Service) WithNotifier(fn func()) *Service {
	if fn != nil {
		s.notify = fn
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate queues a report and returns it immediately.
func (s *Service) Generate(ctx context.Context, workspaceID, userID string, req GenerateRequest) (*models.Report, error) {
	const op = "reports.Generate"
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Validation(op, "Invalid report request: "+err.Error())
	}
	if req.Format == "" {
		req.Format = models.ReportFormatPDF
	}

	start, end := DefaultRange(req.Type, s.now())
	switch {
	case req.RangeStart != nil && req.RangeEnd != nil:
		if req.RangeEnd.Before(*req.RangeStart) {
			return nil, apperr.Validation(op, "Range end must not be before range start")
		}
		start, end = *req.RangeStart, *req.RangeEnd
	case req.Type == models.ReportTypeCustom:
		return nil, apperr.Validation(op, "Custom reports require a date range")
	}

	report := &models.Report{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Type:        req.Type,
		Format:      req.Format,
		RangeStart:  &start,
		RangeEnd:    &end,
		Status:      models.ReportStatusQueued,
		CreatedBy:   userID,
	}
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return nil, err
	}
	log.Infof("[Reports] Queued %s report %s for workspace %s", report.Format, report.ID, workspaceID)
	s.notify()
	return report, nil
}

// List returns reports of a workspace, newest first.
func (s *Service) List(ctx context.Context, workspaceID string, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx).Model(&models.Report{}).Where("workspace_id = ?", workspaceID)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	reports := []models.Report{}
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, err
	}
	return &Page{
		Reports: reports,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	}, nil
}

// Get returns a report. Completed reports carry the live breakdown of the
// reported period.
func (s *Service) Get(ctx context.Context, workspaceID, reportID string) (*Detail, error) {
	db := s.db.WithContext(ctx)
	report, err := s.find(db, workspaceID, reportID)
	if err != nil {
		return nil, err
	}
	detail := &Detail{Report: *report}
	if report.Status != models.ReportStatusCompleted {
		return detail, nil
	}
	data, err := s.collect(db, report)
	if err != nil {
		return nil, err
	}
	detail.TopViolations = data.TopViolations
	detail.Recommendations = data.Recommendations
	detail.RejectedVersions = data.RejectedVersions
	detail.ApprovedVersions = data.ApprovedVersions
	return detail, nil
}

// DownloadURL signs a fresh download URL of a completed report.
func (s *Service) DownloadURL(ctx context.Context, workspaceID, reportID string) (string, error) {
	const op = "reports.DownloadURL"
	report, err := s.find(s.db.WithContext(ctx), workspaceID, reportID)
	if err != nil {
		return "", err
	}
	if report.Status != models.ReportStatusCompleted || report.ObjectKey == "" {
		return "", apperr.Conflict(op, "Report is not ready yet")
	}
	if report.ExpiresAt != nil && !report.ExpiresAt.After(s.now()) {
		return "", apperr.NotFound(op, "Report has expired")
	}
	url, err := s.store.PresignGet(ctx, report.ObjectKey, DownloadURLTTL)
	if err != nil {
		return "", apperr.ExternalProvider(op, "Could not sign download URL", err)
	}
	return url, nil
}

// Delete removes the report row and its rendered file.
func (s *Service) Delete(ctx context.Context, workspaceID, reportID string) error {
	db := s.db.WithContext(ctx)
	report, err := s.find(db, workspaceID, reportID)
	if err != nil {
		return err
	}
	if err := db.Delete(&models.Report{}, "id = ?", report.ID).Error; err != nil {
		return err
	}
	if report.ObjectKey != "" {
		if err := s.store.Delete(ctx, report.ObjectKey); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			log.Warnf("[Reports] Failed to delete file of report %s: %v", report.ID, err)
		}
	}
	log.Infof("[Reports] Deleted report %s", report.ID)
	return nil
}

// Process renders a claimed report and marks it completed. Errors leave the
// status to the caller.
func (s *Service) Process(ctx context.Context, report *models.Report) error {
	db := s.db.WithContext(ctx)

	labels, err := s.loadLabels(db, report.WorkspaceID)
	if err != nil {
		return err
	}
	if err := s.setProgress(db, report.ID, ProgressLoaded); err != nil {
		return err
	}

	start, end := reportRange(report)
	data := BuildData(report.Name, report.Type, s.now(), start, end, labels)
	if err := s.setProgress(db, report.ID, ProgressSummary); err != nil {
		return err
	}

	body, err := Render(report.Format, data)
	if err != nil {
		return err
	}
	if err := s.setProgress(db, report.ID, ProgressRendered); err != nil {
		return err
	}

	key := objectstore.ReportKey(report.WorkspaceID, report.ID, report.Format)
	contentType := objectstore.ContentType("report." + report.Format)
	if _, err := s.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return err
	}
	url, err := s.store.PresignGet(ctx, key, DownloadURLTTL)
	if err != nil {
		return err
	}

	summary, err := json.Marshal(data.Summary)
	if err != nil {
		return err
	}
	now := s.now()
	expires := now.Add(Retention)
	res := db.Model(&models.Report{}).
		Where("id = ? AND status = ?", report.ID, models.ReportStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.ReportStatusCompleted,
			"progress":     ProgressDone,
			"summary":      datatypes.JSON(summary),
			"object_key":   key,
			"download_url": url,
			"expires_at":   expires,
			"completed_at": now,
			"error":        "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Warnf("[Reports] Report %s is no longer running, dropping result", report.ID)
		return ErrNotRunning
	}
	log.Infof("[Reports] Completed report %s (%d products)", report.ID, data.Summary.TotalProducts)
	return nil
}

func (s *Service) collect(db *gorm.DB, report *models.Report) (*Data, error) {
	labels, err := s.loadLabels(db, report.WorkspaceID)
	if err != nil {
		return nil, err
	}
	start, end := reportRange(report)
	return BuildData(report.Name, report.Type, s.now(), start, end, labels), nil
}

func (s *Service) loadLabels(db *gorm.DB, workspaceID string) ([]models.Label, error) {
	var labels []models.Label
	err := db.
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Where("status <> ?", models.LabelStatusPending).Order("analyzed_at DESC")
		}).
		Preload("Versions.Violations").
		Where("workspace_id = ? AND is_demo = ?", workspaceID, false).
		Find(&labels).Error
	return labels, err
}

func (s *Service) setProgress(db *gorm.DB, id string, progress int) error {
	return db.Model(&models.Report{}).Where("id = ?", id).Update("progress", progress).Error
}

func (s *Service) find(db *gorm.DB, workspaceID, reportID string) (*models.Report, error) {
	var report models.Report
	if err := db.Where("id = ? AND workspace_id = ?", reportID, workspaceID).First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("reports.find", "Report not found")
		}
		return nil, err
	}
	return &report, nil
}

func reportRange(report *models.Report) (time.Time, time.Time) {
	start, end := DefaultRange(report.Type, report.CreatedAt)
	if report.RangeStart != nil {
		start = *report.RangeStart
	}
	if report.RangeEnd != nil {
		end = *report.RangeEnd
	}
	return start, end
}
