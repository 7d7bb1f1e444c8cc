// handlers/reward_routes.go
package handlers

import (
	"errors"
	"fmt"
	"log"

	"rewards-engine/middleware"
	"rewards-engine/services"
	"rewards-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// respondError maps the service error taxonomy onto the shared envelope:
// ValidationError → 400 with itemized errors, NotFound → 404,
// InvalidState → 409 (a conflict, not a server fault), anything else → 500.
func respondError(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "validation failed",
			"errors":  verr.Items,
		})
	}
	var nferr *services.NotFoundError
	if errors.As(err, &nferr) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": nferr.Error(),
		})
	}
	var iserr *services.InvalidStateError
	if errors.As(err, &iserr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": iserr.Error(),
		})
	}
	log.Printf("❌ [HTTP] internal error: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": "internal error",
	})
}

func respondData(c *fiber.Ctx, status int, data interface{}, warning string) error {
	body := fiber.Map{"success": true, "data": data}
	if warning != "" {
		body["warning"] = warning
	}
	return c.Status(status).JSON(body)
}

func SetupRewardRoutes(
	app *fiber.App,
	catalog *services.CatalogService,
	ingest *services.IngestService,
	progress *services.ProgressService,
	verification *services.VerificationService,
	awards *services.AwardService,
) {
	// Activity events are pushed by collaborating services, not end users —
	// they carry the acting user inside the payload and are covered by the
	// global gateway token, not the user-context headers.
	app.Post("/rewards/activity", func(c *fiber.Ctx) error {
		var event services.ActivityEvent
		if err := c.BodyParser(&event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "invalid request body",
			})
		}

		results, err := ingest.Ingest(event)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, results, "")
	})

	secured := app.Group("/rewards", middleware.UserContextMiddleware())

	// Staff queue — registered before /:id so "verifications" never binds as an id
	secured.Get("/verifications", middleware.StaffOnly(), func(c *fiber.Ctx) error {
		page, limit := c.QueryInt("page", 1), c.QueryInt("limit", 20)
		result, err := verification.ListVerifications(services.VerificationQuery{
			Status: c.Query("status"),
			Search: c.Query("search"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, result, "")
	})

	secured.Post("/verifications/:id/verify", middleware.StaffOnly(), func(c *fiber.Ctx) error {
		staffID := c.Locals("user_id").(string)
		recordID := c.Params("id")

		var req struct {
			Action string `json:"action"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "invalid request body",
			})
		}

		switch req.Action {
		case "approve":
			record, warning, err := verification.Approve(recordID, staffID)
			if err != nil {
				return respondError(c, err)
			}
			return respondData(c, fiber.StatusOK, record, warning)
		case "reject":
			record, err := verification.Reject(recordID, staffID, req.Reason)
			if err != nil {
				return respondError(c, err)
			}
			return respondData(c, fiber.StatusOK, record, "")
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "action must be approve or reject",
			})
		}
	})

	secured.Get("/users/balance", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		total, grants, err := awards.Balance(userID)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, fiber.Map{
			"user_id": userID,
			"points":  total,
			"grants":  grants,
		}, "")
	})

	// Catalog
	secured.Get("/", func(c *fiber.Ctx) error {
		scope := c.Query("scope")
		if scope == "admin" && !middleware.HasStaffRole(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "staff role required for admin scope",
			})
		}
		templates, err := catalog.ListTemplates(scope)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, templates, "")
	})

	secured.Post("/", middleware.StaffOnly(), func(c *fiber.Ctx) error {
		var spec services.TemplateSpec
		if err := c.BodyParser(&spec); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "invalid request body",
			})
		}
		template, err := catalog.CreateTemplate(spec)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusCreated, template, "")
	})

	secured.Put("/:id", middleware.StaffOnly(), func(c *fiber.Ctx) error {
		var spec services.TemplateSpec
		if err := c.BodyParser(&spec); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "invalid request body",
			})
		}
		template, err := catalog.UpdateTemplate(c.Params("id"), spec)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, template, "")
	})

	secured.Delete("/:id", middleware.StaffOnly(), func(c *fiber.Ctx) error {
		if err := catalog.DeleteTemplate(c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"success": true, "message": "reward template deleted"})
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		template, err := catalog.GetTemplate(c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, template, "")
	})

	// Manual claim for non-automated tasks, with optional evidence upload
	secured.Post("/:id/tasks/:taskId/claim", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		rewardID := c.Params("id")
		taskID := c.Params("taskId")

		evidence := map[string]interface{}{}
		if note := c.FormValue("note"); note != "" {
			evidence["note"] = note
		}
		if fileHeader, err := c.FormFile("evidence"); err == nil {
			key := fmt.Sprintf("evidence/%s/%s-%s", taskID, uuid.NewString(), fileHeader.Filename)
			url, uploadErr := utils.StoreEvidence(fileHeader, key)
			if uploadErr != nil {
				log.Printf("❌ [CLAIM] evidence upload failed: %v", uploadErr)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"success": false,
					"message": "failed to store evidence file",
				})
			}
			evidence["evidence_url"] = url
		}

		record, err := progress.ClaimManual(userID, rewardID, taskID, evidence)
		if err != nil {
			return respondError(c, err)
		}
		return respondData(c, fiber.StatusOK, record, "")
	})
}
