package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanLite  = "LITE"
	PlanTeam  = "TEAM"
	PlanScale = "SCALE"
)

const (
	BillingIntervalMonth = "MONTH"
	BillingIntervalYear  = "YEAR"
)

const (
	BillingStatusActive   = "ACTIVE"
	BillingStatusPastDue  = "PAST_DUE"
	BillingStatusCanceled = "CANCELED"
	BillingStatusNone     = "NONE"
)

// Workspace is the tenant boundary. Billing columns are written by the
// subscription reconciler only.
type Workspace struct {
	ID                   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name                 string     `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	Plan                 string     `gorm:"type:varchar(16);not null;default:'LITE'" json:"plan"`
	PlanExpiresAt        *time.Time `gorm:"type:timestamp;default:null" json:"plan_expires_at"`
	StripeCustomerID     string     `gorm:"type:varchar(191);index" json:"-"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);index" json:"-"`
	StripePriceID        string     `gorm:"type:varchar(191)" json:"-"`
	BillingInterval      *string    `gorm:"type:varchar(16);default:null" json:"billing_interval"`
	BillingStatus        string     `gorm:"type:varchar(16);not null;default:'NONE'" json:"billing_status"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Plan == "" {
		w.Plan = PlanLite
	}
	if w.BillingStatus == "" {
		w.BillingStatus = BillingStatusNone
	}
	return nil
}

// HasActivePeriod reports whether the paid period covers t.
func (w *Workspace) HasActivePeriod(t time.Time) bool {
	return w.PlanExpiresAt != nil && w.PlanExpiresAt.After(t)
}
