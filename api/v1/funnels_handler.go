package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/funnels"
	"sitepulse/internal/timeframe"
)

// CreateFunnelParams is the request body for funnel creation.
type CreateFunnelParams struct {
	Name  string         `json:"name"`
	Steps []funnels.Step `json:"steps"`
}

// ListFunnelsHandler returns every stored funnel definition with its parsed
// steps.
func ListFunnelsHandler(ctx *cartridge.Context) error {
	list, err := funnels.List(ctx.DBManager)
	if err != nil {
		ctx.Logger.Error("Failed to list funnels", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list funnels",
		})
	}

	type funnelView struct {
		ID    uint           `json:"id"`
		Name  string         `json:"name"`
		Steps []funnels.Step `json:"steps"`
	}
	views := make([]funnelView, 0, len(list))
	for i := range list {
		steps, err := list[i].ParsedSteps()
		if err != nil {
			ctx.Logger.Error("Skipping funnel with undecodable steps",
				slog.Uint64("funnel_id", uint64(list[i].ID)),
				slog.Any("error", err))
			continue
		}
		views = append(views, funnelView{ID: list[i].ID, Name: list[i].Name, Steps: steps})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"funnels": views})
}

// GetFunnelHandler analyzes one funnel over the requested range.
func GetFunnelHandler(ctx *cartridge.Context) error {
	id, err := strconv.ParseUint(ctx.Ctx.Params("id"), 10, 32)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid funnel id"})
	}

	funnel, err := funnels.FindByID(ctx.DBManager, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ctx.Status(http.StatusNotFound).JSON(fiber.Map{"error": "Funnel not found"})
		}
		ctx.Logger.Error("Failed to load funnel", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load funnel",
		})
	}

	tf, err := timeframe.NewParser().Parse(
		timeframe.RangeLabel(ctx.Ctx.Query("range")),
		ctx.Ctx.Query("start"),
		ctx.Ctx.Query("end"),
	)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	analysis, err := funnels.Analyze(ctx.DBManager, funnel, tf.From)
	if err != nil {
		ctx.Logger.Error("Failed to analyze funnel",
			slog.Uint64("funnel_id", id),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze funnel",
		})
	}

	return ctx.Status(http.StatusOK).JSON(analysis)
}

// CreateFunnelHandler persists a new funnel definition.
func CreateFunnelHandler(ctx *cartridge.Context) error {
	var params CreateFunnelParams
	if err := ctx.Ctx.BodyParser(&params); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	funnel, err := funnels.Create(ctx.DBManager, ctx.Logger, params.Name, params.Steps)
	if err != nil {
		if errors.Is(err, funnels.ErrMissingName) || errors.Is(err, funnels.ErrTooFewSteps) {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		ctx.Logger.Error("Failed to create funnel", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create funnel",
		})
	}

	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"id":   funnel.ID,
		"name": funnel.Name,
	})
}

// DeleteFunnelHandler removes a funnel definition. Facts are unaffected.
func DeleteFunnelHandler(ctx *cartridge.Context) error {
	id, err := strconv.ParseUint(ctx.Ctx.Params("id"), 10, 32)
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "Invalid funnel id"})
	}

	if err := funnels.Delete(ctx.DBManager, ctx.Logger, uint(id)); err != nil {
		ctx.Logger.Error("Failed to delete funnel", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete funnel",
		})
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"success": true})
}
