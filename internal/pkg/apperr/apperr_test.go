package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	err := PlanLimit("usage.AssertCanScan", ResourceScans, "Plan limit reached for monthly SKUs", 2, 2)

	assert.True(t, errors.Is(err, ErrPlanLimit))
	assert.False(t, errors.Is(err, ErrSubscriptionRequired))
	assert.Equal(t, KindPlanLimit, KindOf(err))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	inner := SubscriptionRequired("usage.AssertCanScan", "Active subscription required to scan labels")
	wrapped := fmt.Errorf("scan label: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrSubscriptionRequired))
	assert.Equal(t, "Active subscription required to scan labels", MessageOf(wrapped, "x"))

	var ae *Error
	if assert.True(t, errors.As(wrapped, &ae)) {
		assert.Equal(t, KindSubscriptionRequired, ae.Kind)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := ExternalProvider("billing.fetchSubscription", "stripe request failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrExternalProvider))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindOfAndMessageOfPlainError(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, "fallback", MessageOf(err, "fallback"))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "workspace.Get: Workspace not found", NotFound("workspace.Get", "Workspace not found").Error())
	assert.Equal(t, "not_found", (&Error{Kind: KindNotFound}).Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{Validation("op", "bad"), 400, "validation_error"},
		{Authentication("op", "sig", nil), 401, "unauthorized"},
		{Configuration("op", "unset"), 500, "configuration_error"},
		{Forbidden("op", "no"), 403, "forbidden"},
		{NotFound("op", "gone"), 404, "not_found"},
		{Conflict("op", "dup"), 409, "conflict"},
		{PlanLimit("op", ResourceScans, "limit", 2, 2), 402, "plan_limit_reached"},
		{SubscriptionRequired("op", "pay"), 402, "subscription_required"},
		{ExternalProvider("op", "stripe", nil), 502, "external_provider_error"},
		{fmt.Errorf("wrapped: %w", NotFound("op", "gone")), 404, "not_found"},
		{errors.New("boom"), 500, "internal_server_error"},
	}
	for _, tt := range tests {
		status, code := HTTPStatus(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("HTTPStatus(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
