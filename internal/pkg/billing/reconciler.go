package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/metrics"
	"github.com/ManuelReschke/LabelFox/internal/pkg/plans"
)

const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// Reconciler applies Stripe webhook events to workspace billing state.
type Reconciler struct {
	db       *gorm.DB
	provider Provider
	catalog  *plans.Catalog
	secret   string
	now      func() time.Time
}

func NewReconciler(db *gorm.DB, provider Provider, catalog *plans.Catalog, secret string) *Reconciler {
	return &Reconciler{
		db:       db,
		provider: provider,
		catalog:  catalog,
		secret:   strings.TrimSpace(secret),
		now:      time.Now,
	}
}

// NewReconcilerFromEnv reads STRIPE_WEBHOOK_SECRET and STRIPE_SECRET_KEY.
func NewReconcilerFromEnv(db *gorm.DB) *Reconciler {
	return NewReconciler(db, NewStripeProviderFromEnv(), plans.Default(), env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))
}

// applyFunc runs inside the event transaction against a tx scoped repository.
type applyFunc func(repo Repository) error

// HandleEvent verifies and applies one webhook delivery. Marking the event
// processed and applying its effect commit together, so a failed delivery is
// retried in full on redelivery.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) (*Result, error) {
	const op = "billing.HandleEvent"
	if r.secret == "" {
		return nil, apperr.Configuration(op, "Stripe webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		log.Warnf("[Billing] Rejected webhook with invalid signature: %v", err)
		return nil, apperr.Authentication(op, "Invalid Stripe signature", err)
	}
	eventType := string(event.Type)

	// Duplicate check before any provider round trip. The insert below is
	// authoritative.
	seen, err := NewRepository(r.db.WithContext(ctx)).EventProcessed(event.ID)
	if err != nil {
		return nil, fmt.Errorf("check processed event %s: %w", event.ID, err)
	}
	if seen {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "skipped").Inc()
		return &Result{Received: true, Skipped: true}, nil
	}

	apply, err := r.prepare(ctx, eventType, event.Data.Raw)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "failed").Inc()
		return nil, err
	}

	skipped := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		created, err := repo.MarkEventProcessed(event.ID, eventType)
		if err != nil {
			return fmt.Errorf("mark event %s processed: %w", event.ID, err)
		}
		if !created {
			skipped = true
			return nil
		}
		if apply == nil {
			return nil
		}
		return apply(repo)
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "failed").Inc()
		log.Errorf("[Billing] Failed to apply %s (%s): %v", eventType, event.ID, err)
		return nil, err
	}

	if skipped {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "skipped").Inc()
	} else {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "applied").Inc()
	}
	return &Result{Received: true, Skipped: skipped}, nil
}

// prepare decodes the event object and fetches provider data. It never
// touches the database so the transaction stays short.
func (r *Reconciler) prepare(ctx context.Context, eventType string, raw json.RawMessage) (applyFunc, error) {
	switch eventType {
	case EventCheckoutCompleted:
		var session checkoutSessionPayload
		if err := json.Unmarshal(raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		subID := strings.TrimSpace(string(session.Subscription))
		if subID == "" {
			log.Infof("[Billing] Checkout session %s has no subscription, ignoring", session.ID)
			return nil, nil
		}
		sub, err := r.fetchSubscription(ctx, subID)
		if err != nil {
			return nil, err
		}
		customerID := firstNonEmpty(sub.CustomerID, string(session.Customer))
		candidates := []string{
			metadataWorkspaceID(session.Metadata),
			sub.WorkspaceID(),
			session.ClientReferenceID,
		}
		return func(repo Repository) error {
			return r.syncSubscription(repo, sub, customerID, candidates...)
		}, nil

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		return func(repo Repository) error {
			return r.syncSubscription(repo, sub, sub.CustomerID, sub.WorkspaceID())
		}, nil

	case EventSubscriptionDeleted:
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		return func(repo Repository) error {
			return r.cancelSubscription(repo, sub)
		}, nil

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var invoice invoicePayload
		if err := json.Unmarshal(raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		subID := invoice.subscriptionID()
		if subID == "" {
			log.Infof("[Billing] Invoice %s has no subscription, ignoring", invoice.ID)
			return nil, nil
		}
		sub, err := r.fetchSubscription(ctx, subID)
		if err != nil {
			return nil, err
		}
		customerID := firstNonEmpty(sub.CustomerID, string(invoice.Customer))
		if eventType == EventInvoicePaymentFailed {
			return func(repo Repository) error {
				return r.markPastDue(repo, sub, customerID)
			}, nil
		}
		return func(repo Repository) error {
			return r.syncSubscription(repo, sub, customerID, sub.WorkspaceID())
		}, nil

	default:
		log.Infof("[Billing] Ignoring webhook event type %s", eventType)
		return nil, nil
	}
}

func (r *Reconciler) fetchSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := r.provider.GetSubscription(ctx, id)
	if err != nil {
		return nil, apperr.ExternalProvider("billing.HandleEvent", "Failed to retrieve subscription from Stripe", err)
	}
	if sub == nil {
		return nil, apperr.ExternalProvider("billing.HandleEvent", "Stripe returned no subscription", nil)
	}
	return sub, nil
}

func decodeSubscription(raw json.RawMessage) (*Subscription, error) {
	var p subscriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return p.normalize(), nil
}

// resolveWorkspace tries the metadata candidates in order, then the stored
// subscription id, then the stored customer id. Candidates naming a workspace
// that does not exist are skipped. An empty result means "unresolved".
func resolveWorkspace(repo Repository, subscriptionID, customerID string, candidates ...string) (string, error) {
	for _, c := range candidates {
		ws, err := repo.FindWorkspace(c)
		if err != nil {
			return "", err
		}
		if ws != nil {
			return ws.ID, nil
		}
	}
	id, err := repo.FindWorkspaceIDBySubscription(subscriptionID)
	if err != nil || id != "" {
		return id, err
	}
	return repo.FindWorkspaceIDByCustomer(customerID)
}

func (r *Reconciler) syncSubscription(repo Repository, sub *Subscription, customerID string, candidates ...string) error {
	workspaceID, err := resolveWorkspace(repo, sub.ID, customerID, candidates...)
	if err != nil {
		return err
	}
	if workspaceID == "" {
		log.Warnf("[Billing] No workspace found for subscription %s", sub.ID)
		return nil
	}

	plan, ok := r.catalog.PlanForPriceID(sub.PriceID)
	if !ok {
		plan = models.PlanLite
	}
	updates := map[string]interface{}{
		"plan":                   plan,
		"plan_expires_at":        nullableTime(sub.CurrentPeriodEnd),
		"stripe_subscription_id": sub.ID,
		"stripe_price_id":        sub.PriceID,
		"billing_interval":       nullableString(normalizeInterval(sub.Interval)),
		"billing_status":         models.BillingStatusActive,
	}
	if customerID != "" {
		updates["stripe_customer_id"] = customerID
	}
	if err := repo.UpdateWorkspaceBilling(workspaceID, updates); err != nil {
		return fmt.Errorf("update workspace %s billing: %w", workspaceID, err)
	}
	log.Infof("[Billing] Workspace %s synced to plan %s (subscription %s)", workspaceID, plan, sub.ID)
	return nil
}

// cancelSubscription keeps the plan tier. Access ends with the paid period.
func (r *Reconciler) cancelSubscription(repo Repository, sub *Subscription) error {
	workspaceID, err := resolveWorkspace(repo, sub.ID, sub.CustomerID, sub.WorkspaceID())
	if err != nil {
		return err
	}
	if workspaceID == "" {
		log.Warnf("[Billing] No workspace found for deleted subscription %s", sub.ID)
		return nil
	}

	end := r.now()
	if sub.CurrentPeriodEnd != nil {
		end = *sub.CurrentPeriodEnd
	}
	updates := map[string]interface{}{
		"plan_expires_at":        end,
		"stripe_subscription_id": sub.ID,
		"billing_status":         models.BillingStatusCanceled,
	}
	if sub.CustomerID != "" {
		updates["stripe_customer_id"] = sub.CustomerID
	}
	if err := repo.UpdateWorkspaceBilling(workspaceID, updates); err != nil {
		return fmt.Errorf("cancel workspace %s billing: %w", workspaceID, err)
	}
	log.Infof("[Billing] Workspace %s subscription %s canceled, access until %s", workspaceID, sub.ID, end.Format(time.RFC3339))
	return nil
}

func (r *Reconciler) markPastDue(repo Repository, sub *Subscription, customerID string) error {
	workspaceID, err := resolveWorkspace(repo, sub.ID, customerID, sub.WorkspaceID())
	if err != nil {
		return err
	}
	if workspaceID == "" {
		log.Warnf("[Billing] No workspace found for failed invoice of subscription %s", sub.ID)
		return nil
	}
	if err := repo.UpdateWorkspaceBilling(workspaceID, map[string]interface{}{
		"billing_status": models.BillingStatusPastDue,
	}); err != nil {
		return fmt.Errorf("mark workspace %s past due: %w", workspaceID, err)
	}
	log.Warnf("[Billing] Workspace %s payment failed, marked past due", workspaceID)
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return gorm.Expr("NULL")
	}
	return *t
}

func nullableString(s *string) interface{} {
	if s == nil {
		return gorm.Expr("NULL")
	}
	return *s
}
