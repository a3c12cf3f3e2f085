// Development answer server: a sqlite-backed stand-in for the clinical
// results backend, speaking the same session/answers wire contract.
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

	"github.com/joho/godotenv"

	"github.com/mquintela/falatest/internal/apiserver"
	"github.com/mquintela/falatest/internal/config"
	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/middleware"
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

	slog.Info("Starting answer server", "port", cfg.Server.Port, "db", cfg.Server.DBPath)

	st, err := apiserver.OpenStore(cfg.Server.DBPath, defaultCategories())
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()

	if err := st.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	handler := middleware.CORS(cfg.Server.AllowedOrigins)(
		middleware.BearerAuth(cfg.Server.Token)(
			apiserver.NewHandler(st).Router()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// defaultCategories seeds the battery's test categories on first run.
func defaultCategories() []domain.Category {
	return []domain.Category{
		{ID: 1, Name: "marketplace", QuestionCount: 20},
		{ID: 2, Name: "mountains", QuestionCount: 16},
		{ID: 3, Name: "kitchen", QuestionCount: 18},
		{ID: 4, Name: "farm", QuestionCount: 14},
	}
}
