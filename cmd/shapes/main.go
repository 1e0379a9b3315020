package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"shape-annotator/internal/common/config"
	"shape-annotator/internal/common/health"
	"shape-annotator/internal/common/middleware"
	"shape-annotator/internal/shapes/handlers"
	"shape-annotator/internal/shapes/repository"
	"shape-annotator/internal/shapes/service"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ============================================================
// Shapes Service
// ============================================================

func main() {
	cfg := config.Load()
	cfg.Port = cfg.PortOr("3002")

	db, err := repository.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	repo := repository.New(db)
	adminEmail := cfg.AdminEmail
	if cfg.IsProduction() && cfg.AdminPassword == "admin" {
		log.Printf("[SHAPES] default admin password refused in production, admin not seeded")
		adminEmail = ""
	}
	if err := repo.Init(context.Background(), adminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("init db: %v", err)
	}

	shapesHandler := handlers.NewShapesHandler(repo, service.NewSessionManager(), cfg.IsProduction())

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		AppName:      "Shapes Service",
	})

	// ============================================================
	// Global Middleware
	// ============================================================

	app.Use(recover.New())
	app.Use(middleware.Logger("shapes"))

	// ============================================================
	// Health Check Routes
	// ============================================================

	health.Register(app, repo.Ping)

	// ============================================================
	// Shapes Routes
	// ============================================================

	shapesHandler.Register(app.Group("/api"))

	// ============================================================
	// Server Start
	// ============================================================

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting Shapes Service on %s (env: %s, db: %s)", addr, cfg.Environment, cfg.DBPath)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
