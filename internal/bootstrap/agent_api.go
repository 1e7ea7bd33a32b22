package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	adminhttp "github.com/legb78/mail-classification-agent/adapter/in/http"
	"github.com/legb78/mail-classification-agent/config"
	"github.com/legb78/mail-classification-agent/infra/middleware"
)

// NewAPI assembles the admin fiber app on top of an already wired
// dependency graph.
func NewAPI(cfg *config.Config, deps *Dependencies, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mail-classification-agent",
		ErrorHandler:          middleware.ErrorHandler(log),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(log))
	app.Use(compress.New())
	app.Use(cors.New())

	adminhttp.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB).Register(app)

	api := app.Group("/api/v1", middleware.JWTAuth(cfg.AdminJWTSecret))
	adminhttp.NewAdminHandler(deps.Scheduler, deps.TicketRepo, deps.ReportRepo, deps.LedgerReader, deps.Pipeline).
		Register(api)

	return app
}
