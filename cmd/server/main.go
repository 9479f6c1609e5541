package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"coach-backend/internal/admin"
	"coach-backend/internal/api"
	"coach-backend/internal/cache"
	"coach-backend/internal/config"
	"coach-backend/internal/crud"
	"coach-backend/internal/document"
	"coach-backend/internal/domain"
	"coach-backend/internal/engine"
	"coach-backend/internal/instrument"
	"coach-backend/internal/metadata"
	"coach-backend/internal/remote"
	"coach-backend/internal/response"
	"coach-backend/internal/storage"
	"coach-backend/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s, collaborator: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Collaborator.Mode)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connected (%s)", db.Dialect.Name())

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Pick the collaborator. Local mode provisions the entity tables.
	var src domain.Source
	if cfg.Collaborator.IsRemote() {
		src.Client = remote.NewClient(cfg.Collaborator)
		log.Printf("Forwarding entity traffic to %s", cfg.Collaborator.BaseURL)
	} else {
		reg := metadata.NewRegistry()
		if err := db.Provision(ctx, reg, domain.Entities()...); err != nil {
			log.Fatalf("Failed to provision entities: %v", err)
		}
		src.Actions = crud.NewActions(db, reg)
		log.Printf("Provisioned %d entities", len(reg.AllEntities()))
	}

	// 5. Event buffer for instrumentation
	events := instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
	defer events.Stop()

	// 6. Cache and list filter storage
	entityCache := cache.New(cache.Options{StaleTime: cfg.Cache.StaleTime, GCTime: cfg.Cache.GCTime})
	defer entityCache.Close()
	filters := storage.NewLocalStorage(cfg.Storage.LocalPath)

	// 7. Entity hooks
	module, err := domain.New(src, engine.Deps{
		Cache:      entityCache,
		Storage:    filters,
		Normalizer: response.New(document.New(document.ParseTimeFormat(cfg.Cache.TimeFormat))),
	}, domain.Options{StaleTime: cfg.Cache.StaleTime})
	if err != nil {
		log.Fatalf("Failed to configure entities: %v", err)
	}

	// 8. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, events))

	// 9. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "cached": entityCache.Len()})
	})

	// 10. Admin routes, before /api/:entity/:id can claim them
	services := module.Services()
	admin.RegisterAdminRoutes(app, admin.NewHandler(db, entityCache, services))

	// 11. Entity routes
	api.RegisterRoutes(app, api.NewHandler(services))

	// 12. Instrumentation events
	instrument.NewEventHandler(db.DB, db.Dialect).RegisterRoutes(app)
	instrument.StartCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays)

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: %v", err)
	}
}
