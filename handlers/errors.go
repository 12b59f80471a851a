package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/services"
)

// errorStatus maps service error kinds onto HTTP.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrNotEnrolled):
		return fiber.StatusNotFound, "not_enrolled"
	case errors.Is(err, services.ErrValidation):
		return fiber.StatusBadRequest, "validation_failed"
	case errors.Is(err, services.ErrChallengeInactive):
		return fiber.StatusUnprocessableEntity, "challenge_inactive"
	case errors.Is(err, services.ErrInvalidArtifact):
		return fiber.StatusUnprocessableEntity, "invalid_artifact"
	case errors.Is(err, services.ErrIllegalTransition):
		return fiber.StatusConflict, "illegal_transition"
	case errors.Is(err, services.ErrAlreadyDecided):
		return fiber.StatusConflict, "already_decided"
	case errors.Is(err, services.ErrDuplicateGrant):
		return fiber.StatusConflict, "duplicate_grant"
	case errors.Is(err, services.ErrAlreadyEnrolled):
		return fiber.StatusOK, "already_enrolled"
	case errors.Is(err, services.ErrStorage):
		return fiber.StatusServiceUnavailable, "storage_unavailable"
	}
	return fiber.StatusInternalServerError, "internal_error"
}

func respondError(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	body := fiber.Map{"error": code}
	if status == fiber.StatusServiceUnavailable || status == fiber.StatusInternalServerError {
		// Driver messages stay in the logs.
		c.Set(fiber.HeaderRetryAfter, "1")
	} else {
		body["cause"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string, err error) error {
	body := fiber.Map{"error": msg}
	if err != nil {
		body["cause"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return n
}
