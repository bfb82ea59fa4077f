// Package workspace manages workspaces, memberships and invitations.
package workspace

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/mail"
	"github.com/ManuelReschke/LabelFox/internal/pkg/membership"
)

// Actor is the authenticated caller as forwarded by the gateway.
type Actor struct {
	ID    string
	Email string
	Name  string
}

// DisplayName falls back to the email address.
func (a Actor) DisplayName() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	if a.Email != "" {
		return a.Email
	}
	return "a LabelFox user"
}

// Member is either an active membership or a pending invitation.
type Member struct {
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	InviteID  string     `json:"invite_id,omitempty"`
	InvitedAt *time.Time `json:"invited_at,omitempty"`
}

const (
	MemberStatusActive  = "active"
	MemberStatusInvited = "invited"
)

// InviteResult describes the outcome of an invite call. UserID is set when an
// existing account was added directly.
type InviteResult struct {
	InviteID  string     `json:"invite_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	InvitedAt *time.Time `json:"invited_at,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// InviteValidation is returned for a valid pending invitation.
type InviteValidation struct {
	Valid         bool      `json:"valid"`
	InviteID      string    `json:"invite_id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	ExpiresAt     time.Time `json:"expires_at"`
	WorkspaceID   string    `json:"workspace_id"`
	WorkspaceName string    `json:"workspace_name"`
}

// UserWorkspace is a workspace together with the caller's role in it.
type UserWorkspace struct {
	models.Workspace
	Role string `json:"role"`
}

type Service struct {
	db       *gorm.DB
	gate     *membership.Gate
	mailer   mail.Mailer
	baseURL  string
	validate *validator.Validate
	now      func() time.Time
}

func NewService(db *gorm.DB, gate *membership.Gate, mailer mail.Mailer, baseURL string) *Service {
	return &Service{
		db:       db,
		gate:     gate,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		validate: validator.New(),
		now:      time.Now,
	}
}

func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(db, membership.NewGateFromDB(db), mail.NewSMTPMailerFromEnv(), env.GetEnv("APP_BASE_URL", "http://localhost:3000"))
}

// ParseRole accepts any casing of admin, reviewer or viewer.
func ParseRole(role string) (string, error) {
	r := strings.ToUpper(strings.TrimSpace(role))
	if !models.IsValidRole(r) {
		return "", apperr.Validation("workspace.ParseRole", "Invalid role. Only admin, reviewer, or viewer are allowed.")
	}
	return r, nil
}

// EnsureUser records the gateway identity locally so invitations can find it.
func (s *Service) EnsureUser(ctx context.Context, actor Actor) (*models.User, error) {
	u := &models.User{ID: actor.ID, Email: actor.Email, Name: actor.Name}
	if err := u.Validate(); err != nil {
		return nil, apperr.Validation("workspace.EnsureUser", "Invalid user identity")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateWorkspace creates a workspace with the caller as its first admin.
func (s *Service) CreateWorkspace(ctx context.Context, actor Actor, name string) (*models.Workspace, error) {
	const op = "workspace.CreateWorkspace"
	ws := &models.Workspace{Name: strings.TrimSpace(name)}
	if err := s.validate.Struct(ws); err != nil {
		return nil, apperr.Validation(op, "Workspace name must be between 1 and 150 characters")
	}

	err := s.gate.WithUserLock(ctx, actor.ID, func(tx *gorm.DB) error {
		if err := s.gate.InTx(tx).AssertWorkspaceCreatable(ctx, actor.ID); err != nil {
			return err
		}
		if err := tx.Create(ws).Error; err != nil {
			return err
		}
		return tx.Create(&models.WorkspaceUser{
			UserID:      actor.ID,
			WorkspaceID: ws.ID,
			Role:        models.RoleAdmin,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Workspace] User %s created workspace %s", actor.ID, ws.ID)
	return ws, nil
}

// ListUserWorkspaces returns the workspaces the user is a member of.
func (s *Service) ListUserWorkspaces(ctx context.Context, userID string) ([]UserWorkspace, error) {
	var memberships []models.WorkspaceUser
	err := s.db.WithContext(ctx).
		Preload("Workspace").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}
	out := make([]UserWorkspace, 0, len(memberships))
	for _, m := range memberships {
		if m.Workspace == nil {
			continue
		}
		out = append(out, UserWorkspace{Workspace: *m.Workspace, Role: m.Role})
	}
	return out, nil
}

func (s *Service) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	return findWorkspace(s.db.WithContext(ctx), "workspace.GetWorkspace", id)
}

// MemberRole returns the user's role in the workspace, or NotFound.
func (s *Service) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	m, err := findMembership(s.db.WithContext(ctx), workspaceID, userID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", apperr.NotFound("workspace.MemberRole", "You are not a member of this workspace")
	}
	return m.Role, nil
}

// ListMembers returns active members followed by pending invitations.
func (s *Service) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	db := s.db.WithContext(ctx)
	var memberships []models.WorkspaceUser
	if err := db.Preload("User").Where("workspace_id = ?", workspaceID).Order("created_at ASC").Find(&memberships).Error; err != nil {
		return nil, err
	}
	var invites []models.Invitation
	if err := db.Where("workspace_id = ? AND status = ?", workspaceID, models.InvitationStatusInvited).Order("created_at ASC").Find(&invites).Error; err != nil {
		return nil, err
	}

	out := make([]Member, 0, len(memberships)+len(invites))
	for _, m := range memberships {
		member := Member{UserID: m.UserID, Role: strings.ToLower(m.Role), Status: MemberStatusActive}
		if m.User != nil {
			member.Email = m.User.Email
			member.Name = m.User.Name
			if member.Name == "" {
				member.Name = m.User.Email
			}
		}
		out = append(out, member)
	}
	for _, inv := range invites {
		invitedAt := inv.CreatedAt
		out = append(out, Member{
			Email:     inv.Email,
			Name:      inv.Email,
			Role:      strings.ToLower(inv.Role),
			Status:    MemberStatusInvited,
			InviteID:  inv.ID,
			InvitedAt: &invitedAt,
		})
	}
	return out, nil
}

// InviteMember adds an existing account directly or creates a token
// invitation. A mail that cannot be sent rolls the write back.
func (s *Service) InviteMember(ctx context.Context, workspaceID string, inviter Actor, email, role string) (*InviteResult, error) {
	const op = "workspace.InviteMember"
	email = models.NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email,max=200"); err != nil {
		return nil, apperr.Validation(op, "A valid email address is required")
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}

	var result *InviteResult
	err = s.gate.WithWorkspaceLock(ctx, workspaceID, func(tx *gorm.DB, ws *models.Workspace) error {
		if err := s.gate.InTx(tx).AssertMemberInvitable(ctx, ws.ID); err != nil {
			return err
		}

		existing, err := models.FindUserByEmail(tx, email)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			result, err = s.addExistingUser(tx, ws, inviter, existing, r)
			return err
		}
		result, err = s.createInvitation(tx, ws, inviter, email, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) addExistingUser(tx *gorm.DB, ws *models.Workspace, inviter Actor, user *models.User, role string) (*InviteResult, error) {
	const op = "workspace.InviteMember"
	m, err := findMembership(tx, ws.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return nil, apperr.Conflict(op, "User is already a member of this workspace")
	}
	if err := tx.Create(&models.WorkspaceUser{UserID: user.ID, WorkspaceID: ws.ID, Role: role}).Error; err != nil {
		return nil, err
	}

	subject, body := mail.AddedToWorkspaceMail(ws.Name, inviter.DisplayName(), strings.ToLower(role), s.workspaceURL(ws.ID))
	if err := s.mailer.Send(user.Email, subject, body); err != nil {
		return nil, apperr.ExternalProvider(op, "Failed to send invite email", err)
	}
	log.Infof("[Workspace] User %s added to workspace %s by %s", user.ID, ws.ID, inviter.ID)
	return &InviteResult{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    strings.ToLower(role),
		Status:  MemberStatusActive,
		Message: "User added to workspace and notified",
	}, nil
}

func (s *Service) createInvitation(tx *gorm.DB, ws *models.Workspace, inviter Actor, email, role string) (*InviteResult, error) {
	const op = "workspace.InviteMember"
	var pending int64
	if err := tx.Model(&models.Invitation{}).
		Where("workspace_id = ? AND email = ? AND status = ?", ws.ID, email, models.InvitationStatusInvited).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, apperr.Conflict(op, "User already invited")
	}

	token, err := models.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}
	now := s.now()
	inv := &models.Invitation{
		Email:       email,
		WorkspaceID: ws.ID,
		Role:        role,
		Token:       token,
		Status:      models.InvitationStatusInvited,
		InvitedBy:   inviter.ID,
		ExpiresAt:   now.Add(models.InvitationTTL),
	}
	if err := tx.Create(inv).Error; err != nil {
		return nil, err
	}

	subject, body := mail.InvitationMail(ws.Name, inviter.DisplayName(), strings.ToLower(role), s.acceptURL(inv))
	if err := s.mailer.Send(email, subject, body); err != nil {
		return nil, apperr.ExternalProvider(op, "Failed to send invitation email", err)
	}
	log.Infof("[Workspace] Invitation %s sent for workspace %s", inv.ID, ws.ID)
	return &InviteResult{
		InviteID:  inv.ID,
		Email:     inv.Email,
		Role:      strings.ToLower(role),
		Status:    MemberStatusInvited,
		InvitedAt: &now,
	}, nil
}

// ResendInvite mails a pending invitation again and renews its expiry.
func (s *Service) ResendInvite(ctx context.Context, workspaceID, inviteID string, inviter Actor) (*InviteResult, error) {
	const op = "workspace.ResendInvite"
	db := s.db.WithContext(ctx)
	inv, err := findInvite(db, op, workspaceID, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationStatusInvited {
		return nil, apperr.Validation(op, "Cannot resend: invite is not pending")
	}
	ws, err := findWorkspace(db, op, workspaceID)
	if err != nil {
		return nil, err
	}

	subject, body := mail.InvitationMail(ws.Name, inviter.DisplayName(), strings.ToLower(inv.Role), s.acceptURL(inv))
	if err := s.mailer.Send(inv.Email, subject, body); err != nil {
		return nil, apperr.ExternalProvider(op, "Failed to resend invitation", err)
	}

	now := s.now()
	if err := db.Model(inv).Update("expires_at", now.Add(models.InvitationTTL)).Error; err != nil {
		return nil, err
	}
	return &InviteResult{
		InviteID:  inv.ID,
		Email:     inv.Email,
		Role:      strings.ToLower(inv.Role),
		Status:    MemberStatusInvited,
		InvitedAt: &now,
		Message:   "Invitation resent",
	}, nil
}

// CancelInvite marks a pending invitation CANCELLED, freeing its seat.
func (s *Service) CancelInvite(ctx context.Context, workspaceID, inviteID string) (*InviteResult, error) {
	const op = "workspace.CancelInvite"
	db := s.db.WithContext(ctx)
	inv, err := findInvite(db, op, workspaceID, inviteID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationStatusInvited {
		return nil, apperr.Validation(op, "Cannot cancel: invite is not pending")
	}
	if err := db.Model(inv).Update("status", models.InvitationStatusCancelled).Error; err != nil {
		return nil, err
	}
	return &InviteResult{
		InviteID: inv.ID,
		Email:    inv.Email,
		Role:     strings.ToLower(inv.Role),
		Status:   strings.ToLower(models.InvitationStatusCancelled),
		Message:  "Invitation cancelled",
	}, nil
}

// ValidateInvite checks an invitation link without accepting it.
func (s *Service) ValidateInvite(ctx context.Context, workspaceID, inviteID, token string) (*InviteValidation, error) {
	const op = "workspace.ValidateInvite"
	db := s.db.WithContext(ctx)
	inv, err := findInvite(db, op, workspaceID, inviteID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPending(op, inv, token); err != nil {
		return nil, err
	}
	ws, err := findWorkspace(db, op, workspaceID)
	if err != nil {
		return nil, err
	}
	return &InviteValidation{
		Valid:         true,
		InviteID:      inv.ID,
		Email:         inv.Email,
		Role:          strings.ToLower(inv.Role),
		ExpiresAt:     inv.ExpiresAt,
		WorkspaceID:   ws.ID,
		WorkspaceName: ws.Name,
	}, nil
}

// AcceptInvite turns a pending invitation into a membership of the caller.
func (s *Service) AcceptInvite(ctx context.Context, workspaceID, inviteID, token string, actor Actor) (*models.WorkspaceUser, error) {
	const op = "workspace.AcceptInvite"
	var created *models.WorkspaceUser
	err := s.gate.WithWorkspaceLock(ctx, workspaceID, func(tx *gorm.DB, ws *models.Workspace) error {
		inv, err := findInvite(tx, op, workspaceID, inviteID)
		if err != nil {
			return err
		}
		if err := s.checkPending(op, inv, token); err != nil {
			return err
		}
		if models.NormalizeEmail(actor.Email) != models.NormalizeEmail(inv.Email) {
			return apperr.Forbidden(op, "You can only accept invitations sent to your email address")
		}
		existing, err := findMembership(tx, ws.ID, actor.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict(op, "User is already a member")
		}
		if err := s.gate.InTx(tx).AssertMemberAddable(ctx, ws.ID); err != nil {
			return err
		}

		now := s.now()
		if err := tx.Model(inv).Updates(map[string]interface{}{
			"status":      models.InvitationStatusAccepted,
			"accepted_at": now,
		}).Error; err != nil {
			return err
		}
		created = &models.WorkspaceUser{UserID: actor.ID, WorkspaceID: ws.ID, Role: inv.Role}
		return tx.Create(created).Error
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Workspace] User %s accepted invitation %s", actor.ID, inviteID)
	return created, nil
}

func (s *Service) checkPending(op string, inv *models.Invitation, token string) error {
	if inv.Status != models.InvitationStatusInvited {
		return apperr.Validation(op, "Invite is not pending")
	}
	if subtle.ConstantTimeCompare([]byte(inv.Token), []byte(token)) != 1 {
		return apperr.Validation(op, "Invalid invite token")
	}
	if inv.IsExpired(s.now()) {
		return apperr.Validation(op, "Invite has expired")
	}
	return nil
}

// RemoveMember removes another member. Admin only, never the last admin.
func (s *Service) RemoveMember(ctx context.Context, workspaceID, userID string, actor Actor) error {
	const op = "workspace.RemoveMember"
	if actor.ID == userID {
		return apperr.Validation(op, "Use leave workspace to remove yourself")
	}
	return s.gate.WithWorkspaceLock(ctx, workspaceID, func(tx *gorm.DB, ws *models.Workspace) error {
		if err := requireAdmin(tx, op, ws.ID, actor.ID, "Only admins can remove members"); err != nil {
			return err
		}
		target, err := findMembership(tx, ws.ID, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound(op, "User is not a member")
		}
		if target.Role == models.RoleAdmin {
			if err := ensureOtherAdmin(tx, op, ws.ID, "Cannot remove the last admin from the workspace"); err != nil {
				return err
			}
		}
		return tx.Delete(target).Error
	})
}

// ChangeRole changes another member's role. The last admin cannot be demoted.
func (s *Service) ChangeRole(ctx context.Context, workspaceID, userID, role string, actor Actor) error {
	const op = "workspace.ChangeRole"
	if actor.ID == userID {
		return apperr.Validation(op, "Cannot change your own role")
	}
	newRole, err := ParseRole(role)
	if err != nil {
		return err
	}
	return s.gate.WithWorkspaceLock(ctx, workspaceID, func(tx *gorm.DB, ws *models.Workspace) error {
		if err := requireAdmin(tx, op, ws.ID, actor.ID, "Only admins can change roles"); err != nil {
			return err
		}
		target, err := findMembership(tx, ws.ID, userID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.NotFound(op, "User is not a member")
		}
		if target.Role == models.RoleAdmin && newRole != models.RoleAdmin {
			if err := ensureOtherAdmin(tx, op, ws.ID, "Cannot demote the last admin in the workspace"); err != nil {
				return err
			}
		}
		return tx.Model(target).Update("role", newRole).Error
	})
}

// LeaveWorkspace removes the caller's own membership.
func (s *Service) LeaveWorkspace(ctx context.Context, workspaceID string, actor Actor) error {
	const op = "workspace.LeaveWorkspace"
	return s.gate.WithWorkspaceLock(ctx, workspaceID, func(tx *gorm.DB, ws *models.Workspace) error {
		m, err := findMembership(tx, ws.ID, actor.ID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound(op, "You are not a member of this workspace")
		}
		if m.Role == models.RoleAdmin {
			if err := ensureOtherAdmin(tx, op, ws.ID, "Cannot leave as the last admin in the workspace"); err != nil {
				return err
			}
		}
		return tx.Delete(m).Error
	})
}

func (s *Service) acceptURL(inv *models.Invitation) string {
	q := url.Values{}
	q.Set("workspaceId", inv.WorkspaceID)
	q.Set("inviteId", inv.ID)
	q.Set("token", inv.Token)
	return s.baseURL + "/accept-invite?" + q.Encode()
}

func (s *Service) workspaceURL(workspaceID string) string {
	return s.baseURL + "/dashboard?" + url.Values{"workspaceId": {workspaceID}}.Encode()
}

func findWorkspace(db *gorm.DB, op, id string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := db.Where("id = ?", id).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "Workspace not found")
		}
		return nil, err
	}
	return &ws, nil
}

func findInvite(db *gorm.DB, op, workspaceID, inviteID string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := db.Where("id = ? AND workspace_id = ?", inviteID, workspaceID).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "Invite not found")
		}
		return nil, err
	}
	return &inv, nil
}

// findMembership returns nil without error when the user is not a member.
func findMembership(db *gorm.DB, workspaceID, userID string) (*models.WorkspaceUser, error) {
	var m models.WorkspaceUser
	if err := db.Where("workspace_id = ? AND user_id = ?", workspaceID, userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func requireAdmin(db *gorm.DB, op, workspaceID, userID, msg string) error {
	m, err := findMembership(db, workspaceID, userID)
	if err != nil {
		return err
	}
	if m == nil || m.Role != models.RoleAdmin {
		return apperr.Forbidden(op, msg)
	}
	return nil
}

func ensureOtherAdmin(db *gorm.DB, op, workspaceID, msg string) error {
	var admins int64
	if err := db.Model(&models.WorkspaceUser{}).
		Where("workspace_id = ? AND role = ?", workspaceID, models.RoleAdmin).
		Count(&admins).Error; err != nil {
		return err
	}
	if admins <= 1 {
		return apperr.Conflict(op, msg)
	}
	return nil
}
