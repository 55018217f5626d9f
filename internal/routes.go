package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "sitepulse/api/v1"
	"sitepulse/internal/config"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for public collection API (70 requests per minute per IP)
	// 70/min = ~1.2 req/sec - handles legitimate analytics traffic while preventing abuse
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public API config (event ingestion)
	// Rate limiting + CORS + Sec-Fetch-Site (global middleware handles validation)
	// CORS runs first ensuring 403 responses have CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Read-only query endpoints: rate limited, no CORS (served same-origin)
	queryAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
	}

	// Health check endpoint
	srv.Get("/_health", HealthIndexAction)
	srv.Head("/_health", HealthIndexAction)

	// === COLLECTION API ===
	srv.Post("/api/v1/collect", v1.CollectEventHandler, publicAPIConfig)
	srv.Options("/api/v1/collect", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === QUERY API ===
	srv.Get("/api/v1/stats", v1.StatsHandler, queryAPIConfig)
	srv.Get("/api/v1/realtime", v1.RealtimeHandler, queryAPIConfig)

	srv.Get("/api/v1/funnels", v1.ListFunnelsHandler, queryAPIConfig)
	srv.Post("/api/v1/funnels", v1.CreateFunnelHandler, queryAPIConfig)
	srv.Get("/api/v1/funnels/:id", v1.GetFunnelHandler, queryAPIConfig)
	srv.Delete("/api/v1/funnels/:id", v1.DeleteFunnelHandler, queryAPIConfig)
}
