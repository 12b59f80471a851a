package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/middleware"
	"eco-challenge-engine/services"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService) {
	// Public catalog
	app.Get("/challenges", func(c *fiber.Ctx) error {
		rows, err := challengeService.ListActiveChallenges(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	app.Get("/challenges/:id", func(c *fiber.Ctx) error {
		ch, err := challengeService.GetChallenge(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	// Organization-owned management
	app.Post("/s/challenges", func(c *fiber.Ctx) error {
		var in services.ChallengeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		ch, err := challengeService.CreateChallenge(c.UserContext(), middleware.CallerFrom(c), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(ch)
	})

	app.Put("/s/challenges/:id", func(c *fiber.Ctx) error {
		var in services.ChallengeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		ch, err := challengeService.UpdateChallenge(c.UserContext(), middleware.CallerFrom(c), c.Params("id"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	app.Post("/s/challenges/:id/deactivate", func(c *fiber.Ctx) error {
		ch, err := challengeService.DeactivateChallenge(c.UserContext(), middleware.CallerFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(ch)
	})

	app.Post("/s/challenges/:id/enroll", func(c *fiber.Ctx) error {
		e, err := challengeService.Enroll(c.UserContext(), middleware.CallerFrom(c), c.Params("id"))
		switch {
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return c.JSON(fiber.Map{"enrollment": e, "already_enrolled": true})
		case err != nil:
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"enrollment": e, "already_enrolled": false})
	})

	app.Get("/s/user/enrollments", func(c *fiber.Ctx) error {
		rows, err := challengeService.ListEnrollments(c.UserContext(), middleware.CallerFrom(c).UserID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})
}
