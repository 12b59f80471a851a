package handlers

import (
	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/middleware"
	"eco-challenge-engine/services"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService) {
	// GET /leaderboard?scope=global|school&period=all|month|week&limit=10
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		scope, err := services.ParseScope(c.Query("scope"))
		if err != nil {
			return respondError(c, err)
		}
		period, err := services.ParsePeriod(c.Query("period"))
		if err != nil {
			return respondError(c, err)
		}
		board, err := leaderboardService.Rank(c.UserContext(), scope, period, queryInt(c, "limit", services.DefaultLeaderboardLimit))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(board)
	})

	app.Get("/s/leaderboard/position", func(c *fiber.Ctx) error {
		scope, err := services.ParseScope(c.Query("scope"))
		if err != nil {
			return respondError(c, err)
		}
		period, err := services.ParsePeriod(c.Query("period"))
		if err != nil {
			return respondError(c, err)
		}
		pos, err := leaderboardService.PositionOf(c.UserContext(), middleware.CallerFrom(c).UserID, scope, period)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(pos)
	})

	app.Get("/schools/:id/leaderboard", func(c *fiber.Ctx) error {
		period, err := services.ParsePeriod(c.Query("period"))
		if err != nil {
			return respondError(c, err)
		}
		board, err := leaderboardService.RankSchoolStudents(c.UserContext(), c.Params("id"), period, queryInt(c, "limit", services.DefaultLeaderboardLimit))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(board)
	})
}
