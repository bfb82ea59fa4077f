package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/LabelFox/app/controllers"
	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
	"github.com/ManuelReschke/LabelFox/internal/pkg/middleware"
	"github.com/ManuelReschke/LabelFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	// DemoStorage keeps demo limiter counters. Nil keeps them in memory.
	DemoStorage fiber.Storage
	GatewayKey  string
	// GeneralLimit caps requests per client and minute on the API group.
	GeneralLimit int
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	svcs := controllers.GetServices()

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Stripe calls the webhook directly, without gateway identity.
	v1.Post("/billing/webhook", controllers.HandleStripeWebhook)
	v1.Post("/demo/scan", ratelimit.Demo(h.DemoStorage), controllers.HandleDemoScan)

	authed := v1.Group("",
		limiter.New(limiter.Config{Max: h.GeneralLimit, KeyGenerator: ratelimit.ClientIP}),
		middleware.GatewayKeyMiddleware(h.GatewayKey),
		middleware.UserContextMiddleware(svcs.Workspaces),
		middleware.RequireAPIAuth,
	)

	anyMember := middleware.RequireWorkspaceRole(svcs.Workspaces)
	reviewer := middleware.RequireWorkspaceRole(svcs.Workspaces, models.RoleAdmin, models.RoleReviewer)
	admin := middleware.RequireWorkspaceRole(svcs.Workspaces, models.RoleAdmin)

	// Workspaces and membership
	authed.Post("/workspaces", controllers.HandleCreateWorkspace)
	authed.Get("/workspaces", controllers.HandleListWorkspaces)
	authed.Get("/workspaces/:workspaceId/invites/:inviteId", controllers.HandleValidateInvite)
	authed.Post("/workspaces/:workspaceId/invites/:inviteId/accept", controllers.HandleAcceptInvite)

	ws := authed.Group("/workspaces/:workspaceId")
	ws.Get("/", anyMember, controllers.HandleGetWorkspace)
	ws.Get("/members", anyMember, controllers.HandleListMembers)
	ws.Post("/invites", admin, controllers.HandleInviteMember)
	ws.Post("/invites/:inviteId/resend", admin, controllers.HandleResendInvite)
	ws.Delete("/invites/:inviteId", admin, controllers.HandleCancelInvite)
	ws.Patch("/members/:userId", admin, controllers.HandleChangeRole)
	ws.Delete("/members/:userId", admin, controllers.HandleRemoveMember)
	ws.Post("/leave", anyMember, controllers.HandleLeaveWorkspace)

	// Billing
	ws.Get("/billing", anyMember, controllers.HandleBillingStatus)
	ws.Post("/billing/checkout", admin, controllers.HandleCreateCheckout)
	ws.Post("/billing/portal", admin, controllers.HandleBillingPortal)
	ws.Post("/billing/cancel", admin, controllers.HandleCancelSubscription)

	// Labels
	ws.Get("/labels", anyMember, controllers.HandleListLabels)
	ws.Post("/labels", reviewer, controllers.HandleCreateLabel)
	ws.Get("/labels/:labelId", anyMember, controllers.HandleGetLabel)
	ws.Patch("/labels/:labelId", reviewer, controllers.HandleRenameLabel)
	ws.Delete("/labels/:labelId", admin, controllers.HandleDeleteLabel)
	ws.Get("/labels/:labelId/file", anyMember, controllers.HandleLabelFile)
	ws.Get("/labels/:labelId/versions", anyMember, controllers.HandleListVersions)
	ws.Post("/labels/:labelId/versions", reviewer, controllers.HandleCreateVersion)
	ws.Get("/labels/:labelId/versions/:versionId", anyMember, controllers.HandleGetVersion)
	ws.Post("/labels/:labelId/versions/:versionId/approve", reviewer, controllers.HandleApproveVersion)
	ws.Post("/labels/:labelId/versions/:versionId/reject", reviewer, controllers.HandleRejectVersion)

	// Reports
	ws.Get("/reports", anyMember, controllers.HandleListReports)
	ws.Post("/reports", reviewer, controllers.HandleGenerateReport)
	ws.Get("/reports/:reportId", anyMember, controllers.HandleGetReport)
	ws.Get("/reports/:reportId/download", anyMember, controllers.HandleDownloadReport)
	ws.Delete("/reports/:reportId", admin, controllers.HandleDeleteReport)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{
		DemoStorage:  ratelimit.NewRedisStorage(),
		GatewayKey:   env.GetEnv("GATEWAY_API_KEY", ""),
		GeneralLimit: env.GetInt("API_RATE_LIMIT", 120),
	}
}
