package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Strob0t/CaseForge/internal/adapter/agentsapi"
	"github.com/Strob0t/CaseForge/internal/adapter/jira"
	cfmcp "github.com/Strob0t/CaseForge/internal/adapter/mcp"
	cfnats "github.com/Strob0t/CaseForge/internal/adapter/nats"
	"github.com/Strob0t/CaseForge/internal/adapter/natskv"
	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/adapter/ristretto"
	"github.com/Strob0t/CaseForge/internal/adapter/tiered"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/port/cache"
	"github.com/Strob0t/CaseForge/internal/port/database"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
	"github.com/Strob0t/CaseForge/internal/resilience"
	"github.com/Strob0t/CaseForge/internal/service"
)

// app holds the wired services shared by the serve and mcp commands.
type app struct {
	cfg        *config.Config
	store      database.Store
	cache      cache.Cache
	queue      messagequeue.Queue
	sessions   *service.SessionRegistry
	hierarchy  *service.HierarchyService
	importer   *service.Importer
	generation *service.GenerationService
	push       *service.PushService
	closers    []func()
}

// newApp connects infrastructure and builds the services. Call close when done.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	metrics, err := otel.NewMetrics()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	local, err := ristretto.New(cfg.Cache.MaxSizeMB)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.cache = local
	a.closers = append(a.closers, local.Close)

	a.queue = cfnats.Noop{}
	if cfg.NATS.URL != "" {
		q, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, func() { _ = q.Close() })

		kv, err := q.KeyValue(ctx, cfg.Cache.Bucket, cfg.Cache.BucketTTL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("cache bucket: %w", err)
		}
		a.cache = tiered.New(local, natskv.New(kv), cfg.Cache.L1TTL)
		slog.Info("shared cache enabled", "bucket", cfg.Cache.Bucket)
	}

	a.hierarchy = service.NewHierarchyService(store, cfg.Storage)
	a.hierarchy.SetQueue(a.queue)
	a.hierarchy.SetCache(a.cache, cfg.Cache.StatsTTL)
	a.hierarchy.SetMetrics(metrics)
	a.importer = service.NewImporter(a.hierarchy)

	a.sessions = service.NewSessionRegistry(cfg.Sessions, func(ctx context.Context, s *service.Session) error {
		slog.DebugContext(ctx, "agent session created", "session_id", s.ID, "user_id", s.UserID)
		return nil
	})
	a.closers = append(a.closers, a.sessions.Close)

	if cfg.Agents.URL != "" {
		runner := agentsapi.NewClient(cfg.Agents.URL, cfg.Agents.Timeout)
		runner.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		a.generation = service.NewGenerationService(runner, a.sessions, a.importer, cfg.Agents.UserID)
	}

	if cfg.Jira.BaseURL != "" {
		tr := jira.NewClient(cfg.Jira)
		tr.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		a.push = service.NewPushService(a.hierarchy, tr, cfg.Jira.ProjectKey)
	}

	return a, nil
}

// mcpServer builds the tool server over the app's services.
func (a *app) mcpServer() *cfmcp.Server {
	return cfmcp.NewServer(cfmcp.ServerConfig{Name: a.cfg.MCP.Name, Version: version}, cfmcp.ServerDeps{
		Hierarchy: a.hierarchy,
		Importer:  a.importer,
	})
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
