package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/cache"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usage"
)

const priceCacheTTL = time.Hour

// Service exposes workspace billing to the API: status, checkout, portal and
// cancellation. Webhook driven state changes live in Reconciler.
type Service struct {
	db          *gorm.DB
	provider    Provider
	catalog     *plans.Catalog
	usage       *usage.Service
	cachePrices bool
	now         func() time.Time
}

// NewService creates a billing service. Price lookups are not cached.
func NewService(db *gorm.DB, provider Provider, catalog *plans.Catalog, usageSvc *usage.Service) *Service {
	return &Service{
		db:       db,
		provider: provider,
		catalog:  catalog,
		usage:    usageSvc,
		now:      time.Now,
	}
}

// NewServiceFromDB creates a billing service talking to Stripe with prices
// cached in Redis.
func NewServiceFromDB(db *gorm.DB) *Service {
	s := NewService(db, NewStripeProviderFromEnv(), plans.Default(), usage.NewServiceFromDB(db))
	s.cachePrices = true
	return s
}

// WithPriceCache toggles caching of price details in the shared cache.
func (s *Service) WithPriceCache(enabled bool) *Service {
	s.cachePrices = enabled
	return s
}

func (s *Service) findWorkspace(ctx context.Context, op, workspaceID string) (*models.Workspace, error) {
	var ws models.Workspace
	if err := s.db.WithContext(ctx).Where("id = ?", workspaceID).First(&ws).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "Workspace not found")
		}
		return nil, err
	}
	return &ws, nil
}

// GetBillingStatus returns plan, limits, usage and subscription details of a workspace.
func (s *Service) GetBillingStatus(ctx context.Context, workspaceID string) (*Status, error) {
	ws, err := s.findWorkspace(ctx, "billing.GetBillingStatus", workspaceID)
	if err != nil {
		return nil, err
	}

	count, err := s.usage.MonthlyUsage(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("monthly usage of %s: %w", ws.ID, err)
	}
	limits := s.catalog.LimitsFor(ws.Plan)

	status := &Status{
		Plan:                 plans.Normalize(ws.Plan),
		PlanExpiresAt:        ws.PlanExpiresAt,
		BillingStatus:        ws.BillingStatus,
		BillingInterval:      ws.BillingInterval,
		StripeCustomerID:     ws.StripeCustomerID,
		StripeSubscriptionID: ws.StripeSubscriptionID,
		StripePriceID:        ws.StripePriceID,
		UsageCount:           count,
		UsageLimit:           limits.ScansPerMonth,
		UserLimit:            limits.UsersPerWorkspace,
		WorkspaceLimit:       limits.WorkspacesPerAccount,
		SubscriptionActive:   ws.HasActivePeriod(s.now()),
	}

	if ws.StripePriceID != "" {
		price, err := s.priceInfo(ctx, ws.StripePriceID)
		if err != nil {
			log.Warnf("[Billing] Could not load price %s: %v", ws.StripePriceID, err)
		} else {
			status.Price = price
		}
	}
	return status, nil
}

func priceCacheKey(priceID string) string {
	return "billing:price:" + priceID
}

func (s *Service) priceInfo(ctx context.Context, priceID string) (*PriceInfo, error) {
	if s.cachePrices {
		var cached PriceInfo
		err := cache.GetJSON(priceCacheKey(priceID), &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsMiss(err) {
			log.Warnf("[Billing] Price cache read failed: %v", err)
		}
	}

	info, err := s.provider.GetPrice(ctx, priceID)
	if err != nil {
		return nil, err
	}
	if s.cachePrices {
		if err := cache.SetJSON(priceCacheKey(priceID), info, priceCacheTTL); err != nil {
			log.Warnf("[Billing] Price cache write failed: %v", err)
		}
	}
	return info, nil
}

// CheckoutRequest describes a plan purchase for a workspace.
type CheckoutRequest struct {
	WorkspaceID   string
	UserID        string
	CustomerEmail string
	Plan          string
	SuccessURL    string
	CancelURL     string
}

// CreateCheckoutSession starts a subscription checkout. Workspaces with a
// live subscription are sent to the billing portal instead, with no session id.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	const op = "billing.CreateCheckoutSession"
	plan := strings.ToUpper(strings.TrimSpace(req.Plan))
	if plans.Rank(plan) == 0 {
		return nil, apperr.Validation(op, "Invalid plan")
	}
	priceID, ok := s.catalog.PriceIDFor(plan)
	if !ok {
		return nil, apperr.Configuration(op, fmt.Sprintf("No Stripe price configured for plan %s", plan))
	}

	ws, err := s.findWorkspace(ctx, op, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if ws.StripeSubscriptionID != "" && ws.StripeCustomerID != "" {
		sub, err := s.provider.GetSubscription(ctx, ws.StripeSubscriptionID)
		if err != nil {
			return nil, apperr.ExternalProvider(op, "Failed to retrieve subscription from Stripe", err)
		}
		if sub != nil && !isCanceledStatus(sub.Status) {
			url, err := s.provider.CreatePortalSession(ctx, ws.StripeCustomerID, req.SuccessURL)
			if err != nil {
				return nil, apperr.ExternalProvider(op, "Failed to create billing portal session", err)
			}
			return &CheckoutResult{URL: url}, nil
		}
	}

	result, err := s.provider.CreateCheckoutSession(ctx, CheckoutInput{
		WorkspaceID:   ws.ID,
		UserID:        req.UserID,
		PriceID:       priceID,
		CustomerEmail: req.CustomerEmail,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		return nil, apperr.ExternalProvider(op, "Failed to create checkout session", err)
	}
	log.Infof("[Billing] Checkout session %s created for workspace %s (%s)", result.ID, ws.ID, plan)
	return result, nil
}

// CreateBillingPortalSession returns a Stripe customer portal URL.
func (s *Service) CreateBillingPortalSession(ctx context.Context, workspaceID, returnURL string) (string, error) {
	const op = "billing.CreateBillingPortalSession"
	ws, err := s.findWorkspace(ctx, op, workspaceID)
	if err != nil {
		return "", err
	}
	if ws.StripeCustomerID == "" {
		return "", apperr.NotFound(op, "No Stripe customer found for this workspace")
	}
	url, err := s.provider.CreatePortalSession(ctx, ws.StripeCustomerID, returnURL)
	if err != nil {
		return "", apperr.ExternalProvider(op, "Failed to create billing portal session", err)
	}
	return url, nil
}

// CancelSubscription cancels now or at the end of the paid period. The
// workspace keeps access until the returned end date.
func (s *Service) CancelSubscription(ctx context.Context, workspaceID string, immediately bool) (*CancelResult, error) {
	const op = "billing.CancelSubscription"
	ws, err := s.findWorkspace(ctx, op, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws.StripeSubscriptionID == "" {
		return nil, apperr.NotFound(op, "No active subscription found")
	}

	sub, err := s.provider.CancelSubscription(ctx, ws.StripeSubscriptionID, immediately)
	if err != nil {
		return nil, apperr.ExternalProvider(op, "Failed to cancel subscription", err)
	}

	var end *time.Time
	if sub != nil && sub.CurrentPeriodEnd != nil {
		end = sub.CurrentPeriodEnd
	} else if immediately {
		now := s.now()
		end = &now
	}

	if err := NewRepository(s.db.WithContext(ctx)).UpdateWorkspaceBilling(ws.ID, map[string]interface{}{
		"plan_expires_at": nullableTime(end),
		"billing_status":  models.BillingStatusCanceled,
	}); err != nil {
		return nil, fmt.Errorf("update workspace %s after cancel: %w", ws.ID, err)
	}
	log.Infof("[Billing] Subscription %s of workspace %s canceled (immediately=%t)", ws.StripeSubscriptionID, ws.ID, immediately)
	return &CancelResult{Canceled: true, EndDate: end}, nil
}
