package crawler

import (
	"context"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/sources"
	"github.com/samvad-hq/daily-digest/pkg/scrapers"
)

// SourceRegistry reads and persists the source registry.
type SourceRegistry interface {
	Read() (sources.AppConfig, error)
	Write(cfg sources.AppConfig) error
}

// ScraperResolver resolves the scraper for a platform.
type ScraperResolver interface {
	For(p domain.Platform) (scrapers.Scraper, error)
}

// ContentEnricher performs the secondary per-item fetch for platforms that require it.
type ContentEnricher interface {
	Enrich(ctx context.Context, item domain.ScrapedItem, credential string) (*scrapers.VideoContent, error)
}

// ProgressFunc receives phase-boundary messages. It may be nil; a panicking callback is ignored.
type ProgressFunc func(msg string)

func (p ProgressFunc) emit(msg string) {
	if p == nil {
		return
	}
	defer func() { _ = recover() }()
	p(msg)
}
