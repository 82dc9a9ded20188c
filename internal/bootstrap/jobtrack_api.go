package bootstrap

import (
	"strings"
	"time"

	"jobtrack_server/adapter/in/http"
	"jobtrack_server/config"
	"jobtrack_server/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	bodyLimit    = 1 * 1024 * 1024
	maxJSONBody  = 64 * 1024
	readTimeout  = 30 * time.Second
	writeTimeout = 6 * time.Minute // manual sync runs inside the request
)

// NewAPI builds the HTTP server. The returned cleanup stops background
// middleware state.
func NewAPI(cfg *config.Config, deps *Dependencies) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		AppName:               "jobtrack-api",
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: bodyLimit,
	})

	// =============================================================================
	// Global Middleware
	// =============================================================================

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	// =============================================================================
	// Health
	// =============================================================================

	checks := map[string]http.HealthChecker{}
	if deps.DB != nil {
		checks["postgres"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = http.RedisChecker(deps.Redis)
	}
	if deps.Mongo != nil {
		checks["mongo"] = http.MongoChecker(deps.Mongo)
	}
	health := http.NewHealthHandler(checks)
	health.Register(app)

	// =============================================================================
	// API v1
	// =============================================================================

	api := app.Group("/api/v1", middleware.MaxBodySize(maxJSONBody))
	health.Register(api)

	auth := middleware.JWTAuth(cfg.JWTSecret)
	syncLimiter := middleware.NewRateLimiter(cfg.SyncRateLimit, time.Minute)

	http.NewOAuthHandler(deps.AccountService, cfg.FrontendURL).Register(api)
	http.NewAccountHandler(deps.AccountService).Register(api, auth, syncLimiter.Handler())
	http.NewApplicationHandler(deps.AccountService).Register(api, auth)

	return app, syncLimiter.Close
}
