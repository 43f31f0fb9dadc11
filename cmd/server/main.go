// opsbridge - DevOps chat assistant with human-triggered remote actions.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/opsbridge/opsbridge/internal/api"
	"github.com/opsbridge/opsbridge/internal/auth"
	"github.com/opsbridge/opsbridge/internal/chat"
	"github.com/opsbridge/opsbridge/internal/config"
	"github.com/opsbridge/opsbridge/internal/llm"
	"github.com/opsbridge/opsbridge/internal/middleware"
	"github.com/opsbridge/opsbridge/internal/sshagent"
	"github.com/opsbridge/opsbridge/internal/store"
	"github.com/opsbridge/opsbridge/web"
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

	slog.Info("Starting server", "port", cfg.Port)

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

	loader := config.NewLoader(cfg)

	// Provision configured users before accepting logins.
	appCfg := loader.Config()
	bootstrapUsers := make([]auth.BootstrapUserSpec, 0, len(appCfg.BootstrapUsers))
	for _, u := range appCfg.BootstrapUsers {
		bootstrapUsers = append(bootstrapUsers, auth.BootstrapUserSpec{Login: u.Login, Password: u.Password})
	}
	auth.Bootstrap(context.Background(), repo, appCfg.BootstrapUsersMode, bootstrapUsers)

	backend := sshagent.NewFromConfig(loader)
	slog.Info("Execution backend ready", "mode", appCfg.SSHAgent.Mode)

	factory := llm.NewFactory(loader, repo)
	composer := chat.NewComposer(loader, repo)
	hub := chat.NewHub()
	chatService := chat.NewService(repo, composer, factory, hub)
	executor := chat.NewExecutor(backend, repo)

	sessions := auth.NewSessions()
	authHandler := auth.NewHandler(sessions, repo)
	chatHandler := chat.NewHandler(chatService, executor, hub)
	userHandler := api.NewUserHandler(repo, loader, backend)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	r.Post("/api/login", authHandler.HandleLogin)
	r.Post("/api/logout", authHandler.HandleLogout)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		chatHandler.RegisterRoutes(r)
		userHandler.RegisterRoutes(r)
	})

	// Embedded frontend (catch-all).
	r.Handle("/*", web.Handler())

	// Model calls can take minutes; no write timeout, long idle.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
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
