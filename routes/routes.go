package routes

import (
	controller "leadpilot/controllers"
	"leadpilot/middleware"
	"leadpilot/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
)

// Deps carries what the HTTP surface needs. LimiterStorage may be nil to
// keep rate limit counters in memory.
type Deps struct {
	Scrape         *controller.ScrapeController
	Ledger         *controller.LedgerController
	Followups      *controller.FollowupController
	JWTSecret      string
	RateLimit      int
	CORSOrigins    []string
	LimiterStorage fiber.Storage
}

func SetupAPIRoutes(app *fiber.App, d Deps) {
	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(d.JWTSecret), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Scrape job routes
	scrape := api.Group("/scrape")
	scrape.Post("/start", middleware.ScrapeRateLimiter(d.RateLimit, d.LimiterStorage), d.Scrape.StartScrape)
	scrape.Get("/stream/:id", d.Scrape.StreamEvents)
	scrape.Get("/result/:id", d.Scrape.GetResult)
	scrape.Get("/result/:id/csv", d.Scrape.ExportCSV)
	scrape.Get("/result/:id/json", d.Scrape.ExportJSON)

	// WebSocket route for job progress
	scrape.Use("/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	scrape.Get("/progress", websocket.New(d.Scrape.Progress))

	// Ledger routes
	ledger := api.Group("/ledger")
	ledger.Get("/stats", d.Ledger.GetStats)
	ledger.Get("/contacted/:phone", d.Ledger.CheckContacted)

	// Follow-up routes
	followups := api.Group("/followups")
	followups.Post("/run", d.Followups.RunFollowups)

	utils.Logger("routes").Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, d Deps) {
	app.Use(middleware.CORSWithOrigins(d.CORSOrigins))

	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup API routes
	SetupAPIRoutes(app, d)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
