package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/samvad-hq/daily-digest/internal/config"
	"github.com/samvad-hq/daily-digest/internal/crawler"
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/samvad-hq/daily-digest/internal/notebook"
	"github.com/samvad-hq/daily-digest/internal/routine"
	"github.com/samvad-hq/daily-digest/internal/server"
	"github.com/samvad-hq/daily-digest/internal/session"
	"github.com/samvad-hq/daily-digest/internal/sources"
	"github.com/samvad-hq/daily-digest/internal/storage"
	"github.com/samvad-hq/daily-digest/pkg/publishers"
	"github.com/samvad-hq/daily-digest/pkg/scrapers"
)

// Runtime wires the pipeline from process configuration. It owns the storage handle.
type Runtime struct {
	cfg      *config.Config
	log      logger.Logger
	store    storage.Store
	registry *sources.Store
	sessions *session.Manager
	fanout   *publishers.Fanout

	Routine *routine.Orchestrator
}

// NewRuntime builds every collaborator of the routine.
func NewRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	registry := sources.NewStore(cfg.AppConfigFile)
	if _, err := registry.Read(); err != nil {
		return nil, fmt.Errorf("load source registry: %w", err)
	}
	log.InfoObj("source registry loaded", "registry_meta", map[string]any{"path": registry.Path()})

	storePath := cfg.BBoltPath
	if t := strings.ToLower(cfg.StorageType); t == "file" || t == "json" {
		storePath = cfg.DataDir
	}
	store, err := storage.NewStore(cfg.StorageType, storePath, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": storePath,
	})

	fanout, err := publishers.FromFile(ctx, cfg.PublishersFile, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	log.InfoObj("publishers loaded", "publishers_meta", map[string]any{"count": fanout.Size()})

	sessions := session.NewManager(cfg.SessionsDir)
	client := scrapers.DefaultHTTPClient(cfg.ScrapeTimeout)

	coordinator := crawler.NewCoordinator(registry, scrapers.DefaultRegistry(client, log), store,
		crawler.WithLogger(log),
		crawler.WithScrapeTimeout(cfg.ScrapeTimeout),
	)
	enrich := crawler.NewEnrichStage(scrapers.NewBilibiliEnricher(client, log), registry, log, cfg.EnrichConcurrency, cfg.EnrichRPS)

	rt := &Runtime{
		cfg:      cfg,
		log:      log,
		store:    store,
		registry: registry,
		sessions: sessions,
		fanout:   fanout,
	}
	rt.Routine = routine.New(coordinator, enrich, store, store, rt.newSyncer, routine.Options{
		Events: fanout,
		Logger: log,
	})
	return rt, nil
}

// newSyncer returns a notebook client over a fresh Chrome driver. The browser path is read per run.
func (r *Runtime) newSyncer() routine.Syncer {
	browserPath := ""
	if cfg, err := r.registry.Read(); err == nil {
		browserPath = cfg.BrowserPath
	}
	return notebook.NewClient(notebook.NewChromeDriver(r.log), r.sessions, notebook.Options{
		BrowserPath:  browserPath,
		ReadyTimeout: r.cfg.SyncReadyTimeout,
		ReadyPoll:    r.cfg.SyncReadyPoll,
		Settle:       r.cfg.SyncSettle,
		Logger:       r.log,
	})
}

// Server returns the HTTP API over this runtime.
func (r *Runtime) Server() *server.Server {
	return server.New(r.Routine, r.registry, r.store, r.sessions, r.log)
}

// Status reports per-platform session availability.
func (r *Runtime) Status() (map[domain.Platform]bool, error) {
	cfg, err := r.registry.Read()
	if err != nil {
		return nil, err
	}
	return r.sessions.Status(cfg.BilibiliSessData), nil
}

// History returns the remembered URLs, oldest first.
func (r *Runtime) History() ([]string, error) { return r.store.ReadHistory() }

// Runs returns the run log, newest first.
func (r *Runtime) Runs() ([]domain.RunLogEntry, error) { return r.store.ReadRuns() }

// Close releases the storage backend.
func (r *Runtime) Close() {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.log.ErrorObj("storage close failed", "error", err)
	}
}
