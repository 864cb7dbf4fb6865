package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/routerdiscovery/engine/internal/api"
	"github.com/routerdiscovery/engine/internal/registry"
	"github.com/routerdiscovery/engine/internal/repository"
	"github.com/routerdiscovery/engine/internal/scheduler"
	"github.com/routerdiscovery/engine/internal/vault"
)

// openRepository chooses the Repository implementation from DATABASE_URL
// (spec section "Environment"): a postgres:// URL selects the raw-SQL
// Postgres repository, anything else (including unset) falls back to the
// embedded SQLite repository.
func openRepository(ctx context.Context) (repository.Repository, error) {
	dsn := os.Getenv("DATABASE_URL")
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		log.Printf("[Bootstrap] opening Postgres repository")
		return repository.OpenPostgres(ctx, dsn)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./router-discovery.db"
	}
	log.Printf("[Bootstrap] opening SQLite repository at %s", dbPath)
	return repository.OpenSQLite(dbPath)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[Bootstrap] no .env file found or error loading it: %v", err)
	}

	ctx := context.Background()

	repo, err := openRepository(ctx)
	if err != nil {
		log.Fatalf("Failed to open repository: %v", err)
	}

	credVault, err := vault.New()
	if err != nil {
		log.Fatalf("Failed to open credential vault: %v", err)
	}
	log.Printf("[Bootstrap] credential vault initialized")

	jobRegistry := registry.New()
	log.Printf("[Bootstrap] job registry initialized")

	sched := scheduler.New(repo, credVault)
	startInterval := scheduler.DefaultInterval
	if v := os.Getenv("METRICS_COLLECTION_INTERVAL"); v != "" {
		if label, _, ok := scheduler.ResolveInterval(v); ok {
			startInterval = label
		} else {
			log.Printf("[Bootstrap] unrecognised METRICS_COLLECTION_INTERVAL %q, using default", v)
		}
	}
	if err := sched.Start(startInterval); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Printf("[Bootstrap] scheduler started, interval=%s", startInterval)

	app := fiber.New(fiber.Config{
		AppName: "Router Discovery Engine",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	api.RegisterRoutes(app, repo, credVault, jobRegistry, sched)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	log.Printf("[Bootstrap] server starting on port %s", port)
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("[Bootstrap] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.Printf("[Bootstrap] received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Printf("[Bootstrap] stopping scheduler...")
	sched.Stop(shutdownCtx)

	log.Printf("[Bootstrap] stopping job registry...")
	jobRegistry.Shutdown()

	log.Printf("[Bootstrap] shutting down HTTP server...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("[Bootstrap] error during HTTP server shutdown: %v", err)
	}

	log.Printf("[Bootstrap] closing repository...")
	if err := repo.Close(); err != nil {
		log.Printf("[Bootstrap] error closing repository: %v", err)
	}

	log.Printf("[Bootstrap] graceful shutdown complete")
}
