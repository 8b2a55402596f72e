// Kido - Conversational Tutoring Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/kido-tutor/internal/api"
	"github.com/ashureev/kido-tutor/internal/config"
	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/images"
	"github.com/ashureev/kido-tutor/internal/lesson"
	"github.com/ashureev/kido-tutor/internal/middleware"
	"github.com/ashureev/kido-tutor/internal/persist"
	"github.com/ashureev/kido-tutor/internal/store"
	"github.com/ashureev/kido-tutor/internal/tutor"
	"github.com/ashureev/kido-tutor/internal/ws"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	gateway := persist.NewGateway(repo, cfg.AppName, cfg.Persist.QueueSize, logger)
	go persist.DrainResults(gateway.Results(), logger)
	defer func() {
		if closeErr := gateway.Close(); closeErr != nil {
			slog.Error("Failed to close persistence gateway", "error", closeErr)
		}
	}()

	eng, err := engine.NewGemini(context.Background(), engine.GeminiConfig{
		APIKey:      cfg.Gemini.APIKey,
		LiveModel:   cfg.Gemini.LiveModelID,
		LessonModel: cfg.Gemini.LessonModelID,
		ImageModel:  cfg.Gemini.ImageModelID,
		VoiceName:   cfg.Gemini.VoiceName,
	})
	if err != nil {
		slog.Error("Failed to initialize Gemini engine", "error", err)
		os.Exit(1)
	}
	slog.Info("Gemini engine initialized", "live_model", cfg.Gemini.LiveModelID)

	imageStore, err := images.NewStore(cfg.ImageDir, "/images")
	if err != nil {
		slog.Error("Failed to initialize image store", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	pipeline := lesson.NewPipeline(eng, tutor.NewProfileSource(gateway), logger)
	sessions := tutor.NewManager(gateway, logger)
	registry := ws.NewRegistry()

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	historyHandler := api.NewHistoryHandler(gateway)
	wsHandler := ws.NewHandler(eng, sessions, pipeline, gateway, imageStore, registry, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)
	historyHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws", wsHandler.ServeHTTP)

	// Generated lesson images.
	r.Handle("/images/*", imageStore.Handler())

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	registry.CloseAll()

	slog.Info("Server stopped successfully")
}
