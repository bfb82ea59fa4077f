package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleAdmin    = "ADMIN"
	RoleReviewer = "REVIEWER"
	RoleViewer   = "VIEWER"
)

// WorkspaceUser is a membership of a user in a workspace.
type WorkspaceUser struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID      string     `gorm:"type:varchar(36);not null;index:ux_workspace_users_user_workspace,unique,priority:1" json:"user_id"`
	WorkspaceID string     `gorm:"type:varchar(36);not null;index:ux_workspace_users_user_workspace,unique,priority:2;index" json:"workspace_id"`
	Role        string     `gorm:"type:varchar(16);not null;default:'VIEWER'" json:"role"`
	User        *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Workspace   *Workspace `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *WorkspaceUser) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// IsValidRole checks a role name against the known workspace roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleReviewer, RoleViewer:
		return true
	default:
		return false
	}
}
