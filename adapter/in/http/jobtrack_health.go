package http

import (
	"context"
	"time"

	"jobtrack_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// RedisChecker pings a redis client.
func RedisChecker(client *redis.Client) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// MongoChecker pings the primary.
func MongoChecker(client *mongo.Client) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
}

var _ HealthChecker = (*pgxpool.Pool)(nil)

type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler takes named dependency checks; nil entries are skipped.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	live := make(map[string]HealthChecker, len(checks))
	for name, chk := range checks {
		if chk != nil {
			live[name] = chk
		}
	}
	return &HealthHandler{checks: live}
}

func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/metrics", h.Metrics)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings every dependency and answers 503 if any is down.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, chk := range h.checks {
		if err := chk.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Metrics reports route and job latencies and connection pool usage.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	latency := make(map[string]any)
	for name, stats := range metrics.GlobalRegistry().AllStats() {
		latency[name] = stats.ToMap()
	}
	return c.JSON(fiber.Map{
		"latency":   latency,
		"pools":     metrics.GlobalPoolMonitor().Snapshot(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
