// Package labels stores label images and their scanned versions.
package labels

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/objectstore"
	"github.com/ManuelReschke/LabelFox/internal/pkg/scan"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usage"
)

const (
	DownloadURLTTL = time.Hour
	PreviewURLTTL  = 15 * time.Minute

	maxLocationLen = 255
)

// Upload is an image received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ScanOutcome is the stored result of a single scan.
type ScanOutcome struct {
	Label    *models.Label        `json:"label"`
	Version  *models.LabelVersion `json:"version"`
	Analysis Analysis             `json:"analysis"`
	OCR      datatypes.JSON       `json:"ocr"`
}

type Analysis struct {
	OverallScore   int            `json:"overall_score"`
	CompliantItems datatypes.JSON `json:"compliant_items"`
	NextSteps      datatypes.JSON `json:"next_steps"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
}

// Summary is a label with its latest reviewable version.
type Summary struct {
	Label   models.Label         `json:"label"`
	Version *models.LabelVersion `json:"version"`
}

type Service struct {
	db       *gorm.DB
	usage    *usage.Service
	analyzer scan.Analyzer
	store    objectstore.Store
	now      func() time.Time
}

func NewService(db *gorm.DB, usageSvc *usage.Service, analyzer scan.Analyzer, store objectstore.Store) *Service {
	return &Service{
		db:       db,
		usage:    usageSvc,
		analyzer: analyzer,
		store:    store,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateLabel uploads the image, creates the label and runs its first scan.
func (s *Service) CreateLabel(ctx context.Context, workspaceID, name string, up Upload) (*ScanOutcome, error) {
	const op = "labels.CreateLabel"
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(up.Filename)
	}
	if name == "" {
		return nil, apperr.Validation(op, "Label name is required")
	}
	if err := s.usage.AssertCanScan(ctx, workspaceID); err != nil {
		return nil, err
	}

	key, fileURL, err := s.upload(ctx, workspaceID, up)
	if err != nil {
		return nil, err
	}

	label := &models.Label{
		WorkspaceID: workspaceID,
		Name:        name,
		FileURL:     fileURL,
		ObjectKey:   key,
	}
	if err := s.db.WithContext(ctx).Create(label).Error; err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}

	out, err := s.scanInto(ctx, label, key, fileURL)
	if err != nil {
		if delErr := s.db.WithContext(ctx).Delete(&models.Label{}, "id = ?", label.ID).Error; delErr != nil {
			log.Errorf("[Labels] Failed to remove label %s after scan error: %v", label.ID, delErr)
		}
		s.discardObject(ctx, key)
		return nil, err
	}
	log.Infof("[Labels] Created label %s in workspace %s (score %d)", label.ID, workspaceID, out.Analysis.OverallScore)
	return out, nil
}

// CreateVersion scans a new image for an existing label.
func (s *Service) CreateVersion(ctx context.Context, workspaceID, labelID string, up Upload) (*ScanOutcome, error) {
	label, err := s.findLabel(s.db.WithContext(ctx), workspaceID, labelID)
	if err != nil {
		return nil, err
	}
	if err := s.usage.AssertCanScan(ctx, workspaceID); err != nil {
		return nil, err
	}

	key, fileURL, err := s.upload(ctx, workspaceID, up)
	if err != nil {
		return nil, err
	}
	out, err := s.scanInto(ctx, label, key, fileURL)
	if err != nil {
		s.discardObject(ctx, key)
		return nil, err
	}
	return out, nil
}

// scanInto reserves a scan slot, analyzes the image and stores the version.
// A failing ML service stores an empty analysis; a failing store releases
// the reservation.
func (s *Service) scanInto(ctx context.Context, label *models.Label, key, fileURL string) (*ScanOutcome, error) {
	version, err := s.usage.ReserveScan(ctx, label.WorkspaceID, label.ID, fileURL)
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.Analyze(ctx, fileURL)
	if err != nil {
		log.Warnf("[Labels] Analysis of label %s failed, storing empty result: %v", label.ID, err)
		result = scan.Empty()
	}

	if err := s.storeResult(ctx, version, key, result); err != nil {
		if relErr := s.usage.ReleaseScan(ctx, version.ID); relErr != nil {
			log.Errorf("[Labels] Failed to release scan reservation %s: %v", version.ID, relErr)
		}
		return nil, err
	}

	stored, err := s.loadVersion(s.db.WithContext(ctx), label.ID, version.ID)
	if err != nil {
		return nil, err
	}
	return &ScanOutcome{
		Label:   label,
		Version: stored,
		Analysis: Analysis{
			OverallScore:   stored.OverallScore,
			CompliantItems: stored.CompliantItems,
			NextSteps:      stored.NextSteps,
			AnalyzedAt:     stored.AnalyzedAt,
		},
		OCR: stored.Extraction,
	}, nil
}

func (s *Service) storeResult(ctx context.Context, version *models.LabelVersion, key string, result *scan.Result) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LabelVersion{}).
			Where("id = ? AND status = ?", version.ID, models.LabelStatusPending).
			Updates(map[string]interface{}{
				"status":          models.LabelStatusScanned,
				"object_key":      key,
				"overall_score":   result.Analysis.OverallScore,
				"extraction":      datatypes.JSON(result.OCRJSON()),
				"compliant_items": datatypes.JSON(result.CompliantItemsJSON()),
				"next_steps":      datatypes.JSON(result.NextStepsJSON()),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("labels.storeResult", "Scan reservation is no longer pending")
		}

		violations := make([]models.Violation, 0, len(result.Violations))
		for _, v := range result.Violations {
			violations = append(violations, models.Violation{
				LabelVersionID: version.ID,
				Type:           v.Type,
				Message:        v.Message,
				Suggestion:     v.Suggestion,
				Citation:       v.Citation,
				Severity:       strings.ToLower(strings.TrimSpace(v.Severity)),
				Category:       strings.TrimSpace(v.Category),
				Location:       truncate(v.LocationText(), maxLocationLen),
			})
		}
		if len(violations) == 0 {
			return nil
		}
		return tx.Create(&violations).Error
	})
}

// ListLabels returns the non-demo labels of a workspace with their latest
// scanned version, newest label first.
func (s *Service) ListLabels(ctx context.Context, workspaceID string) ([]Summary, error) {
	var labels []models.Label
	err := s.withVersions(s.db.WithContext(ctx)).
		Where("workspace_id = ? AND is_demo = ?", workspaceID, false).
		Order("created_at DESC").
		Find(&labels).Error
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(labels))
	for _, l := range labels {
		out = append(out, summarize(l))
	}
	return out, nil
}

func (s *Service) GetLabel(ctx context.Context, workspaceID, labelID string) (*Summary, error) {
	var label models.Label
	err := s.withVersions(s.db.WithContext(ctx)).
		Where("id = ? AND workspace_id = ?", labelID, workspaceID).
		First(&label).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("labels.GetLabel", "Label not found")
		}
		return nil, err
	}
	sum := summarize(label)
	return &sum, nil
}

// RenameLabel changes the display name of a label.
func (s *Service) RenameLabel(ctx context.Context, workspaceID, labelID, name string) (*models.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("labels.RenameLabel", "Label name is required")
	}
	db := s.db.WithContext(ctx)
	label, err := s.findLabel(db, workspaceID, labelID)
	if err != nil {
		return nil, err
	}
	if err := db.Model(label).Update("name", name).Error; err != nil {
		return nil, err
	}
	label.Name = name
	return label, nil
}

// ListVersions returns the scanned versions of a label, newest first.
func (s *Service) ListVersions(ctx context.Context, workspaceID, labelID string) ([]models.LabelVersion, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.findLabel(db, workspaceID, labelID); err != nil {
		return nil, err
	}
	var versions []models.LabelVersion
	err := db.Preload("Violations").
		Where("label_id = ? AND status <> ?", labelID, models.LabelStatusPending).
		Order("analyzed_at DESC").
		Find(&versions).Error
	return versions, err
}

func (s *Service) GetVersion(ctx context.Context, workspaceID, labelID, versionID string) (*models.LabelVersion, error) {
	db := s.db.WithContext(ctx)
	if _, err := s.findLabel(db, workspaceID, labelID); err != nil {
		return nil, err
	}
	return s.loadVersion(db, labelID, versionID)
}

// ReviewVersion approves or rejects a scanned version.
func (s *Service) ReviewVersion(ctx context.Context, workspaceID, labelID, versionID, status, comment, userID string) (*models.LabelVersion, error) {
	const op = "labels.ReviewVersion"
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != models.LabelStatusApproved && status != models.LabelStatusRejected {
		return nil, apperr.Validation(op, "Status must be APPROVED or REJECTED")
	}

	db := s.db.WithContext(ctx)
	if _, err := s.findLabel(db, workspaceID, labelID); err != nil {
		return nil, err
	}
	version, err := s.loadVersion(db, labelID, versionID)
	if err != nil {
		return nil, err
	}
	if version.Status == models.LabelStatusPending {
		return nil, apperr.Conflict(op, "Version is still being scanned")
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":         status,
		"review_comment": comment,
	}
	if status == models.LabelStatusApproved {
		updates["approved_by"] = userID
		updates["approved_at"] = now
	} else {
		updates["rejected_by"] = userID
		updates["rejected_at"] = now
	}
	if err := db.Model(&models.LabelVersion{}).Where("id = ?", version.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	log.Infof("[Labels] Version %s of label %s marked %s by %s", versionID, labelID, status, userID)
	return s.loadVersion(db, labelID, versionID)
}

// DeleteLabel removes a label with all versions, violations and stored images.
func (s *Service) DeleteLabel(ctx context.Context, workspaceID, labelID string) error {
	var keys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		label, err := s.findLabel(tx, workspaceID, labelID)
		if err != nil {
			return err
		}
		var versionKeys []string
		if err := tx.Model(&models.LabelVersion{}).
			Where("label_id = ? AND object_key <> ''", labelID).
			Pluck("object_key", &versionKeys).Error; err != nil {
			return err
		}
		keys = uniqueKeys(append(versionKeys, label.ObjectKey))

		versionIDs := tx.Model(&models.LabelVersion{}).Select("id").Where("label_id = ?", labelID)
		if err := tx.Where("label_version_id IN (?)", versionIDs).Delete(&models.Violation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("label_id = ?", labelID).Delete(&models.LabelVersion{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Label{}, "id = ?", labelID).Error
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.discardObject(ctx, key)
	}
	log.Infof("[Labels] Deleted label %s from workspace %s", labelID, workspaceID)
	return nil
}

// FileURL returns a presigned URL of the latest image of a label.
func (s *Service) FileURL(ctx context.Context, workspaceID, labelID string, ttl time.Duration) (string, error) {
	label, err := s.findLabel(s.db.WithContext(ctx), workspaceID, labelID)
	if err != nil {
		return "", err
	}
	key := label.ObjectKey
	var latest models.LabelVersion
	err = s.db.WithContext(ctx).
		Where("label_id = ? AND status <> ? AND object_key <> ''", labelID, models.LabelStatusPending).
		Order("analyzed_at DESC").
		First(&latest).Error
	if err == nil {
		key = latest.ObjectKey
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	if key == "" {
		return label.FileURL, nil
	}
	url, err := s.store.PresignGet(ctx, key, ttl)
	if err != nil {
		return "", apperr.ExternalProvider("labels.FileURL", "Could not sign file URL", err)
	}
	return url, nil
}

func (s *Service) upload(ctx context.Context, workspaceID string, up Upload) (string, string, error) {
	const op = "labels.upload"
	if up.Body == nil {
		return "", "", apperr.Validation(op, "File is required")
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = objectstore.ContentType(up.Filename)
	}
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		return "", "", apperr.Validation(op, "Only image files are supported")
	}
	key := objectstore.LabelKey(workspaceID, up.Filename)
	fileURL, err := s.store.Put(ctx, key, up.Body, up.Size, contentType)
	if err != nil {
		return "", "", apperr.ExternalProvider(op, "File upload failed", err)
	}
	return key, fileURL, nil
}

func (s *Service) discardObject(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		log.Warnf("[Labels] Failed to delete object %s: %v", key, err)
	}
}

func (s *Service) withVersions(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Where("status <> ?", models.LabelStatusPending).Order("analyzed_at DESC")
		}).
		Preload("Versions.Violations")
}

func (s *Service) findLabel(db *gorm.DB, workspaceID, labelID string) (*models.Label, error) {
	var label models.Label
	if err := db.Where("id = ? AND workspace_id = ?", labelID, workspaceID).First(&label).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("labels.findLabel", "Label not found")
		}
		return nil, err
	}
	return &label, nil
}

func (s *Service) loadVersion(db *gorm.DB, labelID, versionID string) (*models.LabelVersion, error) {
	var version models.LabelVersion
	err := db.Preload("Violations").
		Where("id = ? AND label_id = ?", versionID, labelID).
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("labels.loadVersion", "Version not found")
		}
		return nil, err
	}
	return &version, nil
}

func summarize(l models.Label) Summary {
	sum := Summary{Label: l}
	if len(l.Versions) > 0 {
		latest := l.Versions[0]
		sum.Version = &latest
	}
	sum.Label.Versions = nil
	return sum
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewServiceFromEnv wires the service with the ML client from ML_API_URL.
func NewServiceFromEnv(db *gorm.DB, usageSvc *usage.Service, store objectstore.Store) *Service {
	if env.GetEnv("ML_API_URL", "") == "" {
		log.Warn("[Labels] ML_API_URL is not set, scans will store empty results")
	}
	return NewService(db, usageSvc, scan.NewClientFromEnv(), store)
}
