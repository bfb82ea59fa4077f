package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/LabelFox/app/models"
	"github.com/ManuelReschke/LabelFox/internal/pkg/labels"
	"github.com/ManuelReschke/LabelFox/internal/pkg/usercontext"
)

type renameLabelRequest struct {
	Name string `json:"name"`
}

type reviewRequest struct {
	Comment string `json:"comment"`
}

// HandleCreateLabel uploads a label image and scans it.
// Request: multipart form with "file" and optional "name".
func HandleCreateLabel(c *fiber.Ctx) error {
	up, closeFn, err := readUpload(c, "file")
	if err != nil {
		return respondError(c, err)
	}
	defer closeFn()

	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := GetServices().Labels.CreateLabel(ctx, c.Params("workspaceId"), c.FormValue("name"), up)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(outcome)
}

// HandleCreateVersion re-scans an existing label with a new image.
func HandleCreateVersion(c *fiber.Ctx) error {
	up, closeFn, err := readUpload(c, "file")
	if err != nil {
		return respondError(c, err)
	}
	defer closeFn()

	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := GetServices().Labels.CreateVersion(ctx, c.Params("workspaceId"), c.Params("labelId"), up)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(outcome)
}

func HandleListLabels(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := GetServices().Labels.ListLabels(ctx, c.Params("workspaceId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"labels": list})
}

func HandleGetLabel(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	label, err := GetServices().Labels.GetLabel(ctx, c.Params("workspaceId"), c.Params("labelId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(label)
}

func HandleRenameLabel(c *fiber.Ctx) error {
	var req renameLabelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	label, err := GetServices().Labels.RenameLabel(ctx, c.Params("workspaceId"), c.Params("labelId"), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(label)
}

func HandleDeleteLabel(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := GetServices().Labels.DeleteLabel(ctx, c.Params("workspaceId"), c.Params("labelId")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func HandleListVersions(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	versions, err := GetServices().Labels.ListVersions(ctx, c.Params("workspaceId"), c.Params("labelId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"versions": versions})
}

func HandleGetVersion(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	version, err := GetServices().Labels.GetVersion(ctx, c.Params("workspaceId"), c.Params("labelId"), c.Params("versionId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(version)
}

// HandleApproveVersion and HandleRejectVersion record a review decision.
func HandleApproveVersion(c *fiber.Ctx) error {
	return reviewVersion(c, models.LabelStatusApproved)
}

func HandleRejectVersion(c *fiber.Ctx) error {
	return reviewVersion(c, models.LabelStatusRejected)
}

func reviewVersion(c *fiber.Ctx, status string) error {
	var req reviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request")
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	version, err := GetServices().Labels.ReviewVersion(ctx,
		c.Params("workspaceId"), c.Params("labelId"), c.Params("versionId"),
		status, strings.TrimSpace(req.Comment), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(version)
}

// HandleLabelFile returns a short lived URL of the latest label image.
// ?download=1 signs for an hour, previews for fifteen minutes.
func HandleLabelFile(c *fiber.Ctx) error {
	ttl := labels.PreviewURLTTL
	if c.QueryBool("download") {
		ttl = labels.DownloadURLTTL
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	url, err := GetServices().Labels.FileURL(ctx, c.Params("workspaceId"), c.Params("labelId"), ttl)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": int(ttl.Seconds())})
}

// HandleDemoScan runs an anonymous partial scan in the demo workspace.
func HandleDemoScan(c *fiber.Ctx) error {
	up, closeFn, err := readUpload(c, "file")
	if err != nil {
		return respondError(c, err)
	}
	defer closeFn()

	ctx, cancel := requestContext(c)
	defer cancel()

	svcs := GetServices()
	result, err := svcs.Labels.DemoScan(ctx, svcs.Usage.DemoWorkspaceID(), up)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
