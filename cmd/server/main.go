// 10x Development Agency - landing page and AI scoping assistant server
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
	"golang.org/x/sync/errgroup"

	"github.com/niranjanbala/agency-10x/internal/api"
	"github.com/niranjanbala/agency-10x/internal/chat"
	"github.com/niranjanbala/agency-10x/internal/config"
	"github.com/niranjanbala/agency-10x/internal/identity"
	"github.com/niranjanbala/agency-10x/internal/middleware"
	"github.com/niranjanbala/agency-10x/internal/ops"
	"github.com/niranjanbala/agency-10x/internal/scoping"
	"github.com/niranjanbala/agency-10x/internal/store"
	"github.com/niranjanbala/agency-10x/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if !config.IsContainer() {
		if err := godotenv.Load(); err != nil {
			slog.Info("No .env file found, using environment variables")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}

	mgr := chat.NewManager(chat.ManagerConfig{
		Script:        scoping.ScriptFor(cfg.Scoping.ExhaustQuestions),
		ThinkingDelay: cfg.Scoping.ThinkingDelay,
		Logger:        logger,
	})
	chatHandler := chat.NewHandler(mgr, repo, conversationLogger, chat.HandlerConfig{
		SchedulingURL:      cfg.Scoping.SchedulingURL,
		MaxRequestBodySize: cfg.SSE.MaxRequestBodySize,
		RateLimitRequests:  cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:    cfg.RateLimit.WindowDuration,
		AllowedOrigins:     cfg.AllowedOrigins(),
		IsDev:              cfg.IsDevelopment(),
	})
	defer chatHandler.Close()

	apiHandler := api.NewHandler(repo, cfg)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	apiHandler.RegisterRoutes(r)
	chatHandler.RegisterRoutes(r)
	r.Handle("/*", web.LandingHandler())

	// SSE replies outlive any fixed write deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return chatHandler.RunSweeper(gctx, cfg.Chat.SweepInterval, cfg.Chat.SessionTTL)
	})

	if cfg.GRPCPort != "" {
		opsServer := ops.NewServer(repo, logger)
		g.Go(func() error {
			return opsServer.ListenAndServe(gctx, ":"+cfg.GRPCPort)
		})
	} else {
		slog.Info("gRPC health server disabled (GRPC_PORT not set)")
	}

	return g.Wait()
}
