package billing

import "time"

// Subscription is the provider-agnostic shape of a payment provider
// subscription used when syncing workspace billing state.
type Subscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Interval          string // provider interval, "month" or "year"
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

// WorkspaceID returns the workspace id carried in the subscription metadata.
func (s *Subscription) WorkspaceID() string {
	if s == nil {
		return ""
	}
	return metadataWorkspaceID(s.Metadata)
}

// PriceInfo describes a recurring price for display.
type PriceInfo struct {
	ID       string `json:"id"`
	Amount   *int64 `json:"amount"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
	Nickname string `json:"nickname"`
}

// CheckoutInput carries the parameters of a subscription checkout.
type CheckoutInput struct {
	WorkspaceID   string
	UserID        string
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Result is returned for every accepted webhook delivery.
type Result struct {
	Received bool `json:"received"`
	Skipped  bool `json:"skipped"`
}

// Status is the billing overview of a workspace.
type Status struct {
	Plan                 string     `json:"plan"`
	PlanExpiresAt        *time.Time `json:"plan_expires_at"`
	BillingStatus        string     `json:"billing_status"`
	BillingInterval      *string    `json:"billing_interval"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	StripePriceID        string     `json:"stripe_price_id,omitempty"`
	UsageCount           int64      `json:"usage_count"`
	UsageLimit           int        `json:"usage_limit"`
	UserLimit            int        `json:"user_limit"`
	WorkspaceLimit       int        `json:"workspace_limit"`
	SubscriptionActive   bool       `json:"subscription_active"`
	Price                *PriceInfo `json:"price,omitempty"`
}

// CheckoutResult is the redirect target of a checkout request. ID is empty
// when an existing subscription was sent to the billing portal instead.
type CheckoutResult struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// CancelResult reports the end of the paid period after cancellation.
type CancelResult struct {
	Canceled bool       `json:"canceled"`
	EndDate  *time.Time `json:"end_date"`
}
