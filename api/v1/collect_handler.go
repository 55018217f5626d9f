// Package v1 exposes the public ingestion and read API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/events"
)

const errInvalidRequest = "Invalid request"

// CollectEventHandler accepts one {type, data} envelope per request. The
// caller's IP and user agent come from transport headers, never the body.
func CollectEventHandler(ctx *cartridge.Context) error {
	var envelope events.Envelope
	if err := ctx.Ctx.BodyParser(&envelope); err != nil {
		ctx.Logger.Debug("Failed to parse ingestion body", slog.Any("error", err))
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	userAgent := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	err := events.Ingest(ctx.DBManager, ctx.Logger, envelope, getClientIP(ctx.Ctx), userAgent)
	if err != nil {
		if errors.Is(err, events.ErrInvalidEventType) || errors.Is(err, events.ErrValidation) {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		ctx.Logger.Error("Failed to ingest event", slog.Any("error", err))
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
			return ctx.Status(599).JSON(fiber.Map{})
		}
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest event",
		})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}
