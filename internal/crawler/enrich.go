package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RequiresEnrichment reports whether items of p are only useful with a transcript attached.
func RequiresEnrichment(p domain.Platform) bool {
	return p == domain.PlatformBilibili
}

// Eligible keeps items that can be synced as they are: platforms without enrichment,
// or enriched items that actually carry a transcript.
func Eligible(items []domain.ScrapedItem) []domain.ScrapedItem {
	out := make([]domain.ScrapedItem, 0, len(items))
	for _, it := range items {
		if RequiresEnrichment(it.Platform) && strings.TrimSpace(it.Transcript) == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}

// EnrichStage attaches transcripts to items whose platform requires them.
type EnrichStage struct {
	enricher    ContentEnricher
	registry    SourceRegistry
	log         logger.Logger
	concurrency int
	limiter     *rate.Limiter
}

// NewEnrichStage builds an EnrichStage. Requests are capped at concurrency in flight and rps per second.
func NewEnrichStage(enricher ContentEnricher, registry SourceRegistry, log logger.Logger, concurrency int, rps float64) *EnrichStage {
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &EnrichStage{
		enricher:    enricher,
		registry:    registry,
		log:         logger.Ensure(log),
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// Run enriches every item that requires it and returns the batch in input order.
// Failed or skipped items are returned unchanged; Eligible decides what survives.
func (s *EnrichStage) Run(ctx context.Context, items []domain.ScrapedItem, progress ProgressFunc) []domain.ScrapedItem {
	out := append([]domain.ScrapedItem(nil), items...)

	var pending []int
	for i, it := range out {
		if RequiresEnrichment(it.Platform) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 || s == nil || s.enricher == nil {
		return out
	}

	cfg, err := s.registry.Read()
	if err != nil {
		s.log.WarnObj("registry unreadable, skipping enrichment", "enrich_error", map[string]any{"error": err.Error()})
		return out
	}
	credential := strings.TrimSpace(cfg.BilibiliSessData)
	if credential == "" {
		s.log.WarnObj("no bilibili credential, transcripts unavailable", "enrich_skip", map[string]any{"items": len(pending)})
		progress.emit(fmt.Sprintf("Skipping transcript fetch for %d items: not logged in", len(pending)))
		return out
	}

	progress.emit(fmt.Sprintf("Fetching transcripts for %d items...", len(pending)))

	var (
		mu      sync.Mutex
		changed bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, idx := range pending {
		item := out[idx]
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return nil
			}
			content, err := s.enricher.Enrich(gctx, item, credential)
			if err != nil {
				s.log.WarnObj("enrichment failed", "enrich_error", map[string]any{
					"platform": item.Platform,
					"title":    item.Title,
					"url":      item.URL,
					"error":    err.Error(),
				})
				return nil
			}
			if content == nil {
				return nil
			}
			enriched := content.Apply(item)

			mu.Lock()
			out[idx] = enriched
			if cfg.Backfill(enriched.Platform, []string{enriched.AuthorID, content.UploaderID}, content.Uploader, content.UploaderAvatar) {
				changed = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if changed {
		if err := s.registry.Write(cfg); err != nil {
			s.log.WarnObj("registry backfill not persisted", "registry_error", map[string]any{"error": err.Error()})
		}
	}
	return out
}
