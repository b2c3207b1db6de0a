package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/samvad-hq/daily-digest/internal/sources"
	"github.com/samvad-hq/daily-digest/internal/storage"
	"github.com/samvad-hq/daily-digest/pkg/scrapers"
	"golang.org/x/sync/errgroup"
)

// Coordinator fans out to the platform scrapers, merges their results and drops already-synced items.
type Coordinator struct {
	registry SourceRegistry
	scrapers ScraperResolver
	history  storage.HistoryStore
	log      logger.Logger
	timeout  time.Duration
}

// CoordinatorOption customises a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log logger.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = logger.Ensure(log) }
}

// WithScrapeTimeout bounds each platform scrape.
func WithScrapeTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// NewCoordinator wires a coordinator.
func NewCoordinator(reg SourceRegistry, resolver ScraperResolver, history storage.HistoryStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry: reg,
		scrapers: resolver,
		history:  history,
		log:      logger.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type scrapeJob struct {
	platform domain.Platform
	req      scrapers.Request
}

// ScrapeAll runs every platform with enabled sources and returns the items not yet in history.
// A platform failure yields zero items for that platform; only a registry read failure is returned.
// The merged order is platform order then scraper order, independent of completion order.
func (c *Coordinator) ScrapeAll(ctx context.Context, progress ProgressFunc) ([]domain.ScrapedItem, error) {
	if c == nil || c.registry == nil || c.scrapers == nil || c.history == nil {
		return nil, fmt.Errorf("coordinator is not initialized")
	}

	cfg, err := c.registry.Read()
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}

	jobs := planJobs(cfg)
	for _, job := range jobs {
		progress.emit(fmt.Sprintf("Starting %s scrape...", job.platform))
	}

	results := make([][]domain.ScrapedItem, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = c.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	var merged []domain.ScrapedItem
	for _, r := range results {
		merged = append(merged, r...)
	}
	merged = uniqueByURL(merged)

	c.backfill(&cfg, merged)

	history, err := c.history.ReadHistory()
	if err != nil {
		c.log.WarnObj("history unreadable, treating as empty", "history_error", map[string]any{"error": err.Error()})
		history = nil
	}
	fresh := FilterNew(merged, history)

	c.log.InfoObj("scrape completed", "scrape_result", map[string]any{
		"platforms": len(jobs),
		"scraped":   len(merged),
		"new":       len(fresh),
	})
	progress.emit(fmt.Sprintf("Scrape finished: %d new of %d items", len(fresh), len(merged)))
	return fresh, nil
}

// planJobs lists platform scrapes in a fixed order: identifier platforms, then feeds.
func planJobs(cfg sources.AppConfig) []scrapeJob {
	var jobs []scrapeJob
	for _, p := range sources.ScrapedPlatforms {
		ids := cfg.EnabledIDs(p)
		if len(ids) == 0 {
			continue
		}
		req := scrapers.Request{IDs: ids}
		if p == domain.PlatformBilibili {
			req.Credential = cfg.BilibiliSessData
		}
		jobs = append(jobs, scrapeJob{platform: p, req: req})
	}
	if feeds := cfg.Feeds(); len(feeds) > 0 {
		jobs = append(jobs, scrapeJob{platform: domain.PlatformRSS, req: scrapers.Request{IDs: feeds}})
	}
	return jobs
}

func (c *Coordinator) runJob(ctx context.Context, job scrapeJob) (items []domain.ScrapedItem) {
	defer func() {
		if r := recover(); r != nil {
			c.log.ErrorObj("platform scrape panicked", "scrape_error", map[string]any{
				"platform": job.platform,
				"panic":    fmt.Sprint(r),
			})
			items = nil
		}
	}()

	s, err := c.scrapers.For(job.platform)
	if err != nil {
		c.log.ErrorObj("no scraper for platform", "scrape_error", map[string]any{
			"platform": job.platform,
			"error":    err.Error(),
		})
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout*time.Duration(max(1, len(job.req.IDs))))
		defer cancel()
	}

	found, err := s.Scrape(ctx, job.req)
	if err != nil {
		c.log.ErrorObj("platform scrape failed", "scrape_error", map[string]any{
			"platform": job.platform,
			"sources":  len(job.req.IDs),
			"error":    err.Error(),
		})
		return nil
	}
	c.log.InfoObj("platform scrape completed", "scrape_platform", map[string]any{
		"platform": job.platform,
		"items":    len(found),
	})
	return found
}

// backfill copies display metadata from scraped items into the registry and persists it once.
func (c *Coordinator) backfill(cfg *sources.AppConfig, items []domain.ScrapedItem) {
	changed := false
	for _, it := range items {
		if cfg.Backfill(it.Platform, []string{it.AuthorID, it.Author}, it.Author, it.AuthorAvatar) {
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := c.registry.Write(*cfg); err != nil {
		c.log.WarnObj("registry backfill not persisted", "registry_error", map[string]any{"error": err.Error()})
	}
}
