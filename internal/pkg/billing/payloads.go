package billing

import (
	"encoding/json"
	"strings"
	"time"
)

// stripeRef decodes a Stripe reference that is either an id string or an
// expanded object with an id.
type stripeRef string

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = stripeRef(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = stripeRef(obj.ID)
	return nil
}

// checkoutSessionPayload is a minimal representation of a checkout.session object.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          stripeRef         `json:"customer"`
	Subscription      stripeRef         `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionPayload is a minimal representation of a subscription object.
// Newer API versions carry the period end on the items only.
type subscriptionPayload struct {
	ID                string    `json:"id"`
	Customer          stripeRef `json:"customer"`
	Status            string    `json:"status"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64     `json:"current_period_end"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID        string `json:"id"`
				Recurring *struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (p *subscriptionPayload) normalize() *Subscription {
	sub := &Subscription{
		ID:                strings.TrimSpace(p.ID),
		CustomerID:        strings.TrimSpace(string(p.Customer)),
		Status:            p.Status,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		Metadata:          p.Metadata,
	}
	periodEnd := p.CurrentPeriodEnd
	if len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		sub.PriceID = strings.TrimSpace(item.Price.ID)
		if item.Price.Recurring != nil {
			sub.Interval = item.Price.Recurring.Interval
		}
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	sub.CurrentPeriodEnd = unixTime(periodEnd)
	return sub
}

// invoicePayload is a minimal representation of an invoice object. The
// subscription moved under parent.subscription_details in newer API versions.
type invoicePayload struct {
	ID           string    `json:"id"`
	Customer     stripeRef `json:"customer"`
	Subscription stripeRef `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription stripeRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if id := strings.TrimSpace(string(p.Subscription)); id != "" {
		return id
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return strings.TrimSpace(string(p.Parent.SubscriptionDetails.Subscription))
	}
	return ""
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
