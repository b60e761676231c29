package bootstrap

import (
	"strings"
	"time"

	"mailbrief/adapter/in/http"
	"mailbrief/config"
	"mailbrief/infra/middleware"
	"mailbrief/pkg/cache"
	"mailbrief/pkg/logger"
	"mailbrief/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		// go-json is a drop-in replacement for encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout() + 30*time.Second,
		ServerHeader: "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.RequestID())       // 1. Request ID
	app.Use(middleware.HTTPMetrics())     // 2. Metrics, sees the final status
	app.Use(middleware.RequestLogger())   // 3. Request logging
	app.Use(middleware.Recover())         // 4. Panic recovery
	app.Use(middleware.SecurityHeaders()) // 5. Security headers

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// AllowCredentials requires explicit origins (not "*")
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		allowOrigins = "*"
		allowCredentials = false
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	app.Use(middleware.RequireJSON())

	// Health check (no session required)
	health := http.NewHealthHandler().
		WithCheck("database", http.PingFunc(deps.DB.PingContext))
	if rc, ok := deps.SessionCache.(*cache.RedisCache); ok {
		health.WithCheck("redis", rc)
	}
	health.Register(app)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// OAuth login flow
	http.NewOAuthHandler(deps.OAuth, deps.Sessions, cfg.FrontendURL).Register(app)

	// Model calls are limited per session; mailbox actions are not
	limiter := middleware.NewRateLimiter(cfg.SummarizeRPM, time.Minute)
	if deps.Redis != nil {
		store := ratelimit.NewFallbackStore(
			ratelimit.NewRedisStore(deps.Redis, "mailbrief:ratelimit:"),
			ratelimit.NewMemoryStore(nil),
			func(err error) { logger.WithError(err).Warn("Redis rate limit store failed, using local counters") },
		)
		limiter = middleware.NewRateLimiterWithStore(store, cfg.SummarizeRPM, time.Minute)
	}
	app.Use("/summarize", limiter.Handler())

	http.NewTriageHandler(deps.Triage, deps.Mailboxes, deps.Sessions).
		Register(app, middleware.RequireSession(deps.Sessions))

	// Usage accounting
	http.NewUsageHandler(deps.Usage).Register(app)

	logger.WithFields(map[string]any{
		"provider": deps.Mailboxes.Provider(),
		"origins":  allowOrigins,
	}).Info("API initialized")

	return app, cleanup, nil
}
