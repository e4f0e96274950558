package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"erpnext-bridge/internal/auth"
	"erpnext-bridge/internal/config"
	"erpnext-bridge/internal/engine"
	"erpnext-bridge/internal/frappe"
	"erpnext-bridge/internal/instrument"
	"erpnext-bridge/internal/logging"
	"erpnext-bridge/internal/metadata"
	"erpnext-bridge/internal/resolver"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	lg, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg.Info("config loaded", zap.Int("port", cfg.Server.Port), zap.String("backend", cfg.Backend.BaseURL))

	// 3. Instrumentation buffer
	var buffer *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		buffer = instrument.NewEventBuffer(&instrument.LogSink{Logger: lg.Named("trace")},
			cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buffer.Stop()
	}

	// 4. Backend client and field resolution
	client := frappe.NewClient(cfg.Backend.BaseURL,
		frappe.WithTimeout(cfg.Backend.Timeout()),
		frappe.WithLogger(lg.Named("frappe")))
	schemas := metadata.NewSchemaFetcher(client)
	registry, err := resolver.NewDefaultRegistry(schemas, client)
	if err != nil {
		lg.Fatal("failed to load enrichments", zap.Error(err))
	}
	lg.Info("enrichments loaded", zap.Strings("doctypes", registry.DocTypes()))

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(lg),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, buffer))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Auth routes (before the bearer-protected /api group)
	bearer := auth.BearerToken()
	provider, err := auth.NewProvider(client, cfg.OAuth, lg.Named("oauth"))
	if err != nil {
		lg.Warn("oauth flow disabled", zap.Error(err))
	} else {
		auth.RegisterAuthRoutes(app, auth.NewAuthHandler(provider), bearer)
	}

	// 8. Operation routes (bearer token required)
	catalog := engine.NewCatalog(schemas, registry)
	handler := engine.NewHandler(
		engine.NewDocuments(client),
		engine.NewHooks(client, lg.Named("hooks")),
		engine.NewDocTypes(client),
		catalog,
	)
	engine.RegisterRoutes(app, handler, bearer)

	// 9. Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		lg.Info("shutting down")
		if err := app.Shutdown(); err != nil {
			lg.Error("shutdown failed", zap.Error(err))
		}
	}()

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	lg.Info("starting server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		lg.Error("server stopped", zap.Error(err))
	}
}
