package v1

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/presence"
	"sitepulse/internal/stats"
	"sitepulse/internal/timeframe"
)

// StatsHandler returns the full dashboard report for the requested range.
// Query params: range (7d, 30d, 90d, all, custom), start, end.
func StatsHandler(ctx *cartridge.Context) error {
	parser := timeframe.NewParser()
	tf, err := parser.Parse(
		timeframe.RangeLabel(ctx.Ctx.Query("range")),
		ctx.Ctx.Query("start"),
		ctx.Ctx.Query("end"),
	)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	report := stats.BuildReport(ctx.DBManager, ctx.Logger, tf)
	return ctx.Status(http.StatusOK).JSON(report)
}

// RealtimeHandler returns only the live presence slice of the report.
func RealtimeHandler(ctx *cartridge.Context) error {
	count, err := presence.OnlineCount(ctx.DBManager)
	if err != nil {
		ctx.Logger.Error("Failed to count online visitors", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load realtime stats",
		})
	}
	visitors, err := presence.OnlineVisitors(ctx.DBManager)
	if err != nil {
		ctx.Logger.Error("Failed to list online visitors", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load realtime stats",
		})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"online":   count,
		"visitors": visitors,
	})
}
