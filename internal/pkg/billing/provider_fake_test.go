package billing

import (
	"context"
	"errors"
	"sync"
)

type cancelCall struct {
	id          string
	immediately bool
}

// fakeProvider is an in-memory Provider used by the package tests.
type fakeProvider struct {
	mu sync.Mutex

	subs         map[string]*Subscription
	getErr       error
	onGet        func(id string)
	getCalls     []string
	prices       map[string]*PriceInfo
	priceCalls   int
	portalURL    string
	portalCalls  []string
	checkout     *CheckoutResult
	checkoutReqs []CheckoutInput
	cancelCalls  []cancelCall
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      map[string]*Subscription{},
		prices:    map[string]*PriceInfo{},
		portalURL: "https://billing.stripe.test/portal",
		checkout:  &CheckoutResult{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"},
	}
}

func (f *fakeProvider) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if f.onGet != nil {
		f.onGet(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, id string, immediately bool) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, cancelCall{id: id, immediately: immediately})
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New("no such subscription: " + id)
	}
	copied := *sub
	if immediately {
		copied.Status = "canceled"
	} else {
		copied.CancelAtPeriodEnd = true
	}
	return &copied, nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutReqs = append(f.checkoutReqs, in)
	return f.checkout, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portalCalls = append(f.portalCalls, customerID+"|"+returnURL)
	return f.portalURL, nil
}

func (f *fakeProvider) GetPrice(ctx context.Context, id string) (*PriceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	p, ok := f.prices[id]
	if !ok {
		return nil, errors.New("no such price: " + id)
	}
	return p, nil
}
