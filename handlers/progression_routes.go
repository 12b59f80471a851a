package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/middleware"
	"eco-challenge-engine/services"
)

func SetupProgressionRoutes(app *fiber.App, ledgerService *services.LedgerService, badgeService *services.BadgeService, orgService *services.OrganizationService) {
	// The gateway forwards /api/v1/rewards/s/user/points -> /s/user/points
	app.Get("/s/user/points", func(c *fiber.Ctx) error {
		userID := middleware.CallerFrom(c).UserID
		total, err := ledgerService.GetUserTotalPoints(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		badges, err := badgeService.GetUserBadges(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"user_id":      userID,
			"total_points": total,
			"badge_count":  len(badges),
		})
	})

	app.Get("/s/user/points/history", func(c *fiber.Ctx) error {
		rows, err := ledgerService.ListEntries(c.UserContext(), middleware.CallerFrom(c).UserID, queryInt(c, "limit", 50))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	app.Get("/s/user/badges", func(c *fiber.Ctx) error {
		rows, err := badgeService.GetUserBadges(c.UserContext(), middleware.CallerFrom(c).UserID)
		if err != nil {
			return respondError(c, err)
		}

		response := make([]fiber.Map, 0, len(rows))
		for _, ub := range rows {
			item := fiber.Map{
				"id":         ub.ID,
				"badge_id":   ub.BadgeID,
				"awarded_at": ub.AwardedAt,
			}
			if ub.Badge != nil {
				item["code"] = ub.Badge.Code
				item["name"] = ub.Badge.Name
				item["description"] = ub.Badge.Description
				item["artwork_ref"] = ub.Badge.ArtworkRef
				item["category"] = ub.Badge.Category
			}
			response = append(response, item)
		}
		return c.JSON(response)
	})

	app.Get("/badges", func(c *fiber.Ctx) error {
		rows, err := badgeService.Catalog(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.RequireRole(services.RoleAdmin))

	adminGroup.Post("/points/grant", func(c *fiber.Ctx) error {
		var req services.PointsGrant
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}

		result, err := ledgerService.AwardActivity(c.UserContext(), req)
		if errors.Is(err, services.ErrDuplicateGrant) {
			return c.JSON(fiber.Map{"duplicate": true, "idempotency_key": req.IdempotencyKey})
		}
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	adminGroup.Post("/badges/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			Code   string `json:"code"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if req.UserID == "" || req.Code == "" {
			return badRequest(c, "user_id and code are required", nil)
		}

		outcome, badge, err := badgeService.GrantBadgeByCode(c.UserContext(), nil, req.UserID, req.Code)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"user_id": req.UserID,
			"badge":   badge,
			"outcome": outcome.String(),
		})
	})

	app.Post("/s/organizations/:id/members", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		m, err := orgService.AddMember(c.UserContext(), middleware.CallerFrom(c), c.Params("id"), req.UserID, req.Role)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})
}
