package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	LabelStatusPending  = "PENDING"
	LabelStatusScanned  = "SCANNED"
	LabelStatusApproved = "APPROVED"
	LabelStatusRejected = "REJECTED"
)

const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

type Label struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	WorkspaceID string         `gorm:"type:varchar(36);not null;index" json:"workspace_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	FileURL     string         `gorm:"type:varchar(1024)" json:"file_url"`
	ObjectKey   string         `gorm:"type:varchar(255)" json:"-"`
	IsDemo      bool           `gorm:"default:false;index" json:"is_demo"`
	Versions    []LabelVersion `gorm:"foreignKey:LabelID" json:"versions,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *Label) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// LabelVersion is one scan of a label. A PENDING version reserves a scan
// slot until the analysis is stored.
type LabelVersion struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	LabelID        string         `gorm:"type:varchar(36);not null;index" json:"label_id"`
	Status         string         `gorm:"type:varchar(16);not null;default:'SCANNED';index" json:"status"`
	FileURL        string         `gorm:"type:varchar(1024)" json:"file_url"`
	ObjectKey      string         `gorm:"type:varchar(255)" json:"-"`
	AnalyzedAt     time.Time      `gorm:"type:timestamp;index" json:"analyzed_at"`
	OverallScore   int            `gorm:"default:0" json:"overall_score"`
	Extraction     datatypes.JSON `json:"extraction"`
	CompliantItems datatypes.JSON `json:"compliant_items"`
	NextSteps      datatypes.JSON `json:"next_steps"`
	ReviewComment  string         `gorm:"type:text" json:"review_comment,omitempty"`
	ApprovedBy     string         `gorm:"type:varchar(36)" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"approved_at,omitempty"`
	RejectedBy     string         `gorm:"type:varchar(36)" json:"rejected_by,omitempty"`
	RejectedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"rejected_at,omitempty"`
	Violations     []Violation    `gorm:"foreignKey:LabelVersionID" json:"violations,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (v *LabelVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

type Violation struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	LabelVersionID string    `gorm:"type:varchar(36);not null;index" json:"label_version_id"`
	Type           string    `gorm:"type:varchar(100)" json:"type"`
	Message        string    `gorm:"type:text" json:"message"`
	Suggestion     string    `gorm:"type:text" json:"suggestion"`
	Citation       string    `gorm:"type:varchar(255)" json:"citation"`
	Severity       string    `gorm:"type:varchar(16);not null;default:'medium'" json:"severity"`
	Category       string    `gorm:"type:varchar(100);not null;default:'General'" json:"category"`
	Location       string    `gorm:"type:varchar(255)" json:"location,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Severity == "" {
		v.Severity = SeverityMedium
	}
	if v.Category == "" {
		v.Category = "General"
	}
	return nil
}
