package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"loan-rag/internal/models"
)

// Asker is the part of the query pipeline the HTTP API needs.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.QueryResponse, error)
	Count(ctx context.Context) (int, error)
	TopK() int
}

// AskHandler serves questions over HTTP.
type AskHandler struct {
	pipeline Asker
}

func NewAskHandler(pipeline Asker) *AskHandler {
	return &AskHandler{pipeline: pipeline}
}

// Register sets up the API routes.
func (h *AskHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	api.Post("/ask", h.Ask)
	api.Get("/health", h.Health)
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask answers one question. Blank questions are a 400, an unreachable index a 503.
func (h *AskHandler) Ask(c fiber.Ctx) error {
	var body askRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, err := h.pipeline.Ask(c.Context(), body.Question)
	switch {
	case err == nil:
		return c.JSON(resp)
	case errors.Is(err, models.ErrInvalidArgument):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrIndexUnavailable):
		log.Error().Err(err).Msg("Index unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Str("question", body.Question).Msg("Failed to answer question")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func (h *AskHandler) Health(c fiber.Ctx) error {
	n, err := h.pipeline.Count(c.Context())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"fragments": n,
		"top_k":     h.pipeline.TopK(),
	})
}
