package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"shape-annotator/internal/common/config"
	"shape-annotator/internal/common/health"
	"shape-annotator/internal/common/middleware"
	"shape-annotator/internal/gateway/proxy"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// API Gateway
// ============================================================

func main() {
	cfg := config.Load()
	cfg.Port = cfg.PortOr("8000")

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		AppName:      "API Gateway",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger("gateway"))
	app.Use(middleware.CORS(cfg.AllowedOrigins))

	// ============================================================
	// Health Check Routes
	// ============================================================

	health.Register(app, upstreamLive(cfg.ShapesURL))

	// ============================================================
	// Service Routes (Proxy)
	// ============================================================

	app.All("/api/*", proxy.ProxyTo(cfg.ShapesURL))

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting API Gateway on %s (env: %s)", addr, cfg.Environment)
	log.Printf("Proxying /api to %s", cfg.ShapesURL)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// upstreamLive: readiness гейтвея зависит от liveness shapes-сервиса.
func upstreamLive(baseURL string) health.Check {
	target := strings.TrimRight(baseURL, "/") + "/health/live"
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("shapes service: status %d", resp.StatusCode)
		}
		return nil
	}
}
