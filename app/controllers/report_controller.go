package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LabelFox/internal/pkg/reports"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
)

// HandleGenerateReport queues a report and answers 202 with the job row.
func HandleGenerateReport(c *fiber.Ctx) error {
	var req reports.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := GetServices().Reports.Generate(ctx, c.Params("workspaceId"), usercontext.GetUserID(c), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(report)
}

func HandleListReports(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, err := GetServices().Reports.List(ctx, c.Params("workspaceId"),
		c.QueryInt("limit", reports.DefaultPageSize), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

func HandleGetReport(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	detail, err := GetServices().Reports.Get(ctx, c.Params("workspaceId"), c.Params("reportId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

func HandleDownloadReport(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	url, err := GetServices().Reports.DownloadURL(ctx, c.Params("workspaceId"), c.Params("reportId"))
	if err != nil {
		return respondError(c, err)
	}
	if c.QueryBool("redirect") {
		return c.Redirect(url, fiber.StatusFound)
	}
	return c.JSON(fiber.Map{"url": url})
}

func HandleDeleteReport(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := GetServices().Reports.Delete(ctx, c.Params("workspaceId"), c.Params("reportId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
