package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

// Provider is the subset of the payment provider API the billing package uses.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelSubscription(ctx context.Context, id string, immediately bool) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetPrice(ctx context.Context, id string) (*PriceInfo, error)
}

// ErrProviderNotConfigured is returned when no Stripe secret key is set.
var ErrProviderNotConfigured = errors.New("stripe is not configured")

// StripeProvider talks to the Stripe API.
type StripeProvider struct {
	SecretKey string
	Timeout   time.Duration
}

func NewStripeProviderFromEnv() *StripeProvider {
	return &StripeProvider{
		SecretKey: strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		Timeout:   15 * time.Second,
	}
}

func (p *StripeProvider) configure(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if p.SecretKey == "" {
		return nil, nil, ErrProviderNotConfigured
	}
	stripe.Key = p.SecretKey
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	return ctx, cancel, nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, cancel, err := p.configure(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, id string, immediately bool) (*Subscription, error) {
	ctx, cancel, err := p.configure(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var sub *stripe.Subscription
	if immediately {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		sub, err = subscription.Cancel(id, params)
	} else {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		sub, err = subscription.Update(id, params)
	}
	if err != nil {
		return nil, err
	}
	return fromStripeSubscription(sub), nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	ctx, cancel, err := p.configure(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	metadata := map[string]string{
		"workspaceId": in.WorkspaceID,
		"userId":      in.UserID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if ref := firstNonEmpty(in.WorkspaceID, in.UserID); ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	ctx, cancel, err := p.configure(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return s.URL, nil
}

func (p *StripeProvider) GetPrice(ctx context.Context, id string) (*PriceInfo, error) {
	ctx, cancel, err := p.configure(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	params := &stripe.PriceParams{}
	params.Context = ctx
	pr, err := price.Get(id, params)
	if err != nil {
		return nil, err
	}
	info := &PriceInfo{
		ID:       pr.ID,
		Currency: string(pr.Currency),
		Nickname: pr.Nickname,
	}
	if pr.UnitAmount != 0 {
		amount := pr.UnitAmount
		info.Amount = &amount
	}
	if pr.Recurring != nil {
		info.Interval = string(pr.Recurring.Interval)
	}
	return info, nil
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	if sub == nil {
		return nil
	}
	out := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
		out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}
