package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ReportStatusQueued    = "queued"
	ReportStatusRunning   = "running"
	ReportStatusCompleted = "completed"
	ReportStatusFailed    = "failed"
)

const (
	ReportTypeMonthly   = "monthly"
	ReportTypeQuarterly = "quarterly"
	ReportTypeCustom    = "custom"
)

const (
	ReportFormatPDF = "pdf"
	ReportFormatCSV = "csv"
)

// Report is both the user facing report and the persisted job record the
// report workers pull from.
type Report struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	WorkspaceID string         `gorm:"type:varchar(36);not null;index" json:"workspace_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Type        string         `gorm:"type:varchar(16);not null" json:"type"`
	Format      string         `gorm:"type:varchar(8);not null;default:'pdf'" json:"format"`
	RangeStart  *time.Time     `gorm:"type:timestamp;default:null" json:"range_start,omitempty"`
	RangeEnd    *time.Time     `gorm:"type:timestamp;default:null" json:"range_end,omitempty"`
	Status      string         `gorm:"type:varchar(16);not null;default:'queued';index:idx_reports_status_updated,priority:1" json:"status"`
	Progress    int            `gorm:"default:0" json:"progress"`
	Attempts    int            `gorm:"default:0" json:"attempts"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	Summary     datatypes.JSON `json:"summary,omitempty"`
	ObjectKey   string         `gorm:"type:varchar(255)" json:"-"`
	DownloadURL string         `gorm:"type:text" json:"download_url,omitempty"`
	ExpiresAt   *time.Time     `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	StartedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedBy   string         `gorm:"type:varchar(36)" json:"created_by"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime;index:idx_reports_status_updated,priority:2" json:"updated_at"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReportStatusQueued
	}
	return nil
}
