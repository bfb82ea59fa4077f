package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	InvitationStatusInvited   = "INVITED"
	InvitationStatusAccepted  = "ACCEPTED"
	InvitationStatusCancelled = "CANCELLED"
)

const InvitationTTL = 7 * 24 * time.Hour

// Invitation is a pending membership grant for an email address.
type Invitation struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email       string     `gorm:"type:varchar(200);not null;index:idx_invitations_email_workspace,priority:1" json:"email"`
	WorkspaceID string     `gorm:"type:varchar(36);not null;index:idx_invitations_email_workspace,priority:2;index" json:"workspace_id"`
	Role        string     `gorm:"type:varchar(16);not null;default:'VIEWER'" json:"role"`
	Token       string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Status      string     `gorm:"type:varchar(16);not null;default:'INVITED';index" json:"status"`
	InvitedBy   string     `gorm:"type:varchar(36)" json:"invited_by"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	ExpiresAt   time.Time  `gorm:"type:timestamp" json:"expires_at"`
	AcceptedAt  *time.Time `gorm:"type:timestamp;default:null" json:"accepted_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// IsExpired reports whether the invitation can no longer be accepted at t.
func (i *Invitation) IsExpired(t time.Time) bool {
	return !i.ExpiresAt.IsZero() && !i.ExpiresAt.After(t)
}

// GenerateInviteToken returns 32 random bytes hex encoded.
func GenerateInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
