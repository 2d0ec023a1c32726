package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/CaseForge/internal/adapter/http"
	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/adapter/ws"
	"github.com/Strob0t/CaseForge/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API and the MCP HTTP transport",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"storage", cfg.Storage.Backend,
	)

	shutdownTelemetry, err := otel.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// --- Infrastructure and services ---

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	hub := ws.NewHub(originPattern(cfg.Server.CORSOrigin))
	defer hub.Close()
	a.hierarchy.SetNotifier(hub)

	cancelFragments, err := a.importer.SubscribeFragments(ctx, a.queue)
	if err != nil {
		return fmt.Errorf("fragment subscriber: %w", err)
	}
	defer cancelFragments()

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Hierarchy:  a.hierarchy,
		Importer:   a.importer,
		Generation: a.generation,
		Push:       a.push,
		BodyLimit:  cfg.Server.BodyLimit,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdle)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.Logger)
	r.Use(cfhttp.SecurityHeaders)
	r.Use(chimw.Recoverer)
	r.Use(limiter.Handler)

	if cfg.MCP.Enabled {
		srv := a.mcpServer()
		handlers.Tools = srv.ToolNames()
		r.Handle(cfg.MCP.Path, srv.Handler(cfg.MCP.APIKey))
		slog.Info("mcp http transport enabled", "path", cfg.MCP.Path, "tools", len(handlers.Tools))
	}

	r.Get("/api/v1/events", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		r.Use(middleware.Idempotency(a.cache, cfg.Server.IdempotencyTTL))
		cfhttp.MountRoutes(r, handlers)
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// originPattern reduces a CORS origin URL to the host pattern the WebSocket
// origin check expects.
func originPattern(origin string) string {
	if origin == "*" {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}
