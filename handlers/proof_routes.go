package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"eco-challenge-engine/middleware"
	"eco-challenge-engine/models"
	"eco-challenge-engine/services"
	"eco-challenge-engine/storage"
)

// ProofVerifier is the part of the verification service the routes use.
type ProofVerifier interface {
	VerifyProof(ctx context.Context, caller services.Caller, proofID string, verdict models.Verdict, note string) (*services.VerificationResult, error)
	RecordedDecision(ctx context.Context, caller services.Caller, proofID string, verdict models.Verdict) (*services.VerificationResult, error)
}

func SetupProofRoutes(app *fiber.App, proofService *services.ProofService, verificationService ProofVerifier, retry services.RetryPolicy) {
	// Multipart upload (field "file") or JSON with an artifact_ref that was
	// uploaded out of band.
	app.Post("/s/enrollments/:id/proofs", func(c *fiber.Ctx) error {
		caller := middleware.CallerFrom(c)
		enrollmentID := c.Params("id")

		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			fh, err := c.FormFile("file")
			if err != nil {
				return badRequest(c, "file is required", err)
			}
			f, err := fh.Open()
			if err != nil {
				return badRequest(c, "failed to open file", err)
			}
			defer f.Close()

			proof, err := proofService.SubmitUpload(c.UserContext(), caller, enrollmentID, services.Upload{
				Upload: storage.Upload{
					Reader:   f,
					Filename: fh.Filename,
					Size:     fh.Size,
				},
				Description: c.FormValue("description"),
			})
			if err != nil {
				return respondError(c, err)
			}
			return c.Status(fiber.StatusCreated).JSON(proof)
		}

		var in services.ProofInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		proof, err := proofService.SubmitProof(c.UserContext(), caller, enrollmentID, in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(proof)
	})

	app.Get("/s/enrollments/:id/proofs", func(c *fiber.Ctx) error {
		rows, err := proofService.ListProofs(c.UserContext(), middleware.CallerFrom(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	app.Post("/s/proofs/:id/verify", func(c *fiber.Ctx) error {
		type Req struct {
			Verdict models.Verdict `json:"verdict"`
			Note    string         `json:"note"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}

		ctx := c.UserContext()
		caller := middleware.CallerFrom(c)
		proofID := c.Params("id")

		var result *services.VerificationResult
		attempt := 0
		err := retry.Retry(ctx, func() error {
			var err error
			attempt++
			result, err = verificationService.VerifyProof(ctx, caller, proofID, req.Verdict, req.Note)
			return err
		})
		if err != nil {
			// A retry after an ambiguous commit lands here as already decided.
			// Only the caller's own matching verdict counts as success.
			if attempt > 1 && errors.Is(err, services.ErrAlreadyDecided) {
				recorded, rerr := verificationService.RecordedDecision(ctx, caller, proofID, req.Verdict)
				if rerr != nil {
					return respondError(c, rerr)
				}
				if recorded != nil {
					return c.JSON(recorded)
				}
			}
			return respondError(c, err)
		}
		return c.JSON(result)
	})
}
