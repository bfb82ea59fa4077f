package controllers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/LabelFox/internal/pkg/apperr"
	"github.com/ManuelReschke/LabelFox/internal/pkg/billing"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
)

type checkoutRequest struct {
	Plan       string `json:"plan"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

type cancelRequest struct {
	Immediately bool `json:"immediately"`
}

// HandleBillingStatus returns plan, usage and subscription state of a workspace.
func HandleBillingStatus(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	status, err := GetServices().Billing.GetBillingStatus(ctx, c.Params("workspaceId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}

// HandleCreateCheckout starts a Stripe checkout or returns the billing portal
// for workspaces that already subscribe.
func HandleCreateCheckout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if strings.TrimSpace(req.Plan) == "" {
		return badRequest(c, "plan is required")
	}

	workspaceID := c.Params("workspaceId")
	user := usercontext.GetUserContext(c)
	if req.SuccessURL == "" {
		req.SuccessURL = billingURL(workspaceID, "success=true")
	}
	if req.CancelURL == "" {
		req.CancelURL = billingURL(workspaceID, "canceled=true")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Billing.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		WorkspaceID:   workspaceID,
		UserID:        user.UserID,
		CustomerEmail: user.Email,
		Plan:          req.Plan,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleBillingPortal returns a Stripe customer portal URL.
func HandleBillingPortal(c *fiber.Ctx) error {
	var req portalRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}
	workspaceID := c.Params("workspaceId")
	if req.ReturnURL == "" {
		req.ReturnURL = billingURL(workspaceID, "")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	url, err := GetServices().Billing.CreateBillingPortalSession(ctx, workspaceID, req.ReturnURL)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCancelSubscription cancels at period end unless immediately is set.
func HandleCancelSubscription(c *fiber.Ctx) error {
	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Billing.CancelSubscription(ctx, c.Params("workspaceId"), req.Immediately)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleStripeWebhook verifies and applies a Stripe event. Signature failures
// and a missing webhook secret answer 400.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ctx, cancel := requestContext(c)
	defer cancel()

	result, err := GetServices().Reconciler.HandleEvent(ctx, rawBody, signature)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindAuthentication:
			fiberlog.Warnf("[Billing] Rejected webhook: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_signature",
				"message": apperr.MessageOf(err, "Invalid webhook signature"),
			})
		case apperr.KindConfiguration:
			fiberlog.Errorf("[Billing] Webhook received but not configured: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "configuration_error",
				"message": apperr.MessageOf(err, "Webhook is not configured"),
			})
		}
		return respondError(c, err)
	}
	return c.JSON(result)
}

func billingURL(workspaceID, query string) string {
	base := strings.TrimRight(env.GetEnv("APP_BASE_URL", "http://localhost:3000"), "/")
	u := fmt.Sprintf("%s/workspaces/%s/billing", base, workspaceID)
	if query != "" {
		u += "?" + query
	}
	return u
}
