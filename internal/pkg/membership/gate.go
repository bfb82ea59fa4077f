// Package membership enforces the workspace and seat ceilings of the plans.
package membership

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/metrics"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
)

const (
	MsgWorkspaceLimit       = "Workspace limit reached for current plan"
	MsgUserLimit            = "User limit reached for current plan"
	MsgSubscriptionRequired = "Active subscription required"
)

// Gate checks plan ceilings before memberships or workspaces are written.
// Run a check and its write on the same transaction, see WithWorkspaceLock.
type Gate struct {
	db              *gorm.DB
	catalog         *plans.Catalog
	demoWorkspaceID string
	now             func() time.Time
}

func NewGate(db *gorm.DB, catalog *plans.Catalog, demoWorkspaceID string) *Gate {
	return &Gate{
		db:              db,
		catalog:         catalog,
		demoWorkspaceID: demoWorkspaceID,
		now:             time.Now,
	}
}

func NewGateFromDB(db *gorm.DB) *Gate {
	return NewGate(db, plans.Default(), env.GetEnv("DEMO_WORKSPACE_ID", ""))
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// InTx returns a gate that runs its queries on tx.
func (g *Gate) InTx(tx *gorm.DB) *Gate {
	cp := *g
	cp.db = tx
	return &cp
}

// WithWorkspaceLock runs fn in a transaction that holds the workspace row
// lock. Concurrent gated writes on one workspace serialize here.
func (g *Gate) WithWorkspaceLock(ctx context.Context, workspaceID string, fn func(tx *gorm.DB, ws *models.Workspace) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ws models.Workspace
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", workspaceID).First(&ws).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("membership.WithWorkspaceLock", "Workspace not found")
			}
			return err
		}
		return fn(tx, &ws)
	})
}

// WithUserLock runs fn in a transaction that holds the user row lock, which
// serializes workspace creation per account.
func (g *Gate) WithUserLock(ctx context.Context, userID string, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID).First(&u).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fn(tx)
	})
}

// BestActivePlan returns the highest tier among the workspaces the user
// belongs to whose paid period is still running. No such workspace means LITE.
func (g *Gate) BestActivePlan(ctx context.Context, userID string) (string, error) {
	var active []string
	err := g.db.WithContext(ctx).
		Model(&models.WorkspaceUser{}).
		Joins("JOIN workspaces ON workspaces.id = workspace_users.workspace_id").
		Where("workspace_users.user_id = ? AND workspaces.plan_expires_at > ?", userID, g.now()).
		Pluck("workspaces.plan", &active).Error
	if err != nil {
		return "", err
	}

	best := models.PlanLite
	for _, p := range active {
		if plans.Rank(p) > plans.Rank(best) {
			best = plans.Normalize(p)
		}
	}
	return best, nil
}

// AssertWorkspaceCreatable denies a new workspace when the user already
// belongs to as many workspaces as their best active plan allows.
func (g *Gate) AssertWorkspaceCreatable(ctx context.Context, userID string) error {
	const op = "membership.AssertWorkspaceCreatable"
	best, err := g.BestActivePlan(ctx, userID)
	if err != nil {
		return err
	}
	limit := g.catalog.LimitsFor(best).WorkspacesPerAccount

	var count int64
	err = g.db.WithContext(ctx).
		Model(&models.WorkspaceUser{}).
		Where("user_id = ?", userID).
		Distinct("workspace_id").
		Count(&count).Error
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		metrics.GateDenialsTotal.WithLabelValues("workspace", "plan_limit").Inc()
		return apperr.PlanLimit(op, apperr.ResourceWorkspaces, MsgWorkspaceLimit, count, int64(limit))
	}
	return nil
}

// AssertMemberInvitable counts members and pending invitations against the
// seat ceiling, then requires an active subscription.
func (g *Gate) AssertMemberInvitable(ctx context.Context, workspaceID string) error {
	return g.assertSeat(ctx, "membership.AssertMemberInvitable", workspaceID, true)
}

// AssertMemberAddable is the accept-time check. The invitation being accepted
// already holds its seat, so only members are counted.
func (g *Gate) AssertMemberAddable(ctx context.Context, workspaceID string) error {
	return g.assertSeat(ctx, "membership.AssertMemberAddable", workspaceID, false)
}

func (g *Gate) assertSeat(ctx context.Context, op, workspaceID string, countPending bool) error {
	db := g.db.WithContext(ctx)
	var ws models.Workspace
	if err := db.Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound(op, "Workspace not found")
		}
		return err
	}
	if g.demoWorkspaceID != "" && ws.ID == g.demoWorkspaceID {
		return nil
	}

	limit := g.catalog.LimitsFor(ws.Plan).UsersPerWorkspace
	var members, pending int64
	if err := db.Model(&models.WorkspaceUser{}).Where("workspace_id = ?", ws.ID).Count(&members).Error; err != nil {
		return err
	}
	if countPending {
		if err := db.Model(&models.Invitation{}).
			Where("workspace_id = ? AND status = ?", ws.ID, models.InvitationStatusInvited).
			Count(&pending).Error; err != nil {
			return err
		}
	}
	if members+pending >= int64(limit) {
		metrics.GateDenialsTotal.WithLabelValues("seat", "plan_limit").Inc()
		return apperr.PlanLimit(op, apperr.ResourceUsers, MsgUserLimit, members+pending, int64(limit))
	}
	if !ws.HasActivePeriod(g.now()) {
		metrics.GateDenialsTotal.WithLabelValues("seat", "subscription_required").Inc()
		return apperr.SubscriptionRequired(op, MsgSubscriptionRequired)
	}
	return nil
}
