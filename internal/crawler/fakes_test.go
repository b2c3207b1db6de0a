package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/sources"
	"github.com/samvad-hq/daily-digest/pkg/scrapers"
)

type fakeRegistry struct {
	mu      sync.Mutex
	cfg     sources.AppConfig
	readErr error
	writes  int
}

func (f *fakeRegistry) Read() (sources.AppConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return sources.AppConfig{}, f.readErr
	}
	return f.cfg.Clone(), nil
}

func (f *fakeRegistry) Write(cfg sources.AppConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg.Clone()
	f.writes++
	return nil
}

type fakeScraper struct {
	platform domain.Platform
	items    []domain.ScrapedItem
	err      error
	delay    time.Duration

	mu       sync.Mutex
	requests []scrapers.Request
}

func (f *fakeScraper) Platform() domain.Platform { return f.platform }

func (f *fakeScraper) Scrape(ctx context.Context, req scrapers.Request) ([]domain.ScrapedItem, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func (f *fakeScraper) calls() []scrapers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scrapers.Request(nil), f.requests...)
}

type fakeEnricher struct {
	mu       sync.Mutex
	contents map[string]*scrapers.VideoContent
	failURLs map[string]bool
	seen     []string
}

func (f *fakeEnricher) Enrich(_ context.Context, item domain.ScrapedItem, credential string) (*scrapers.VideoContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, item.URL+"|"+credential)
	if f.failURLs[item.URL] {
		return nil, errors.New("view api unavailable")
	}
	return f.contents[item.URL], nil
}

func registryWith(yt, bili []domain.SourceItem, feeds []string, credential string) *fakeRegistry {
	cfg := sources.Default()
	cfg.Platforms[domain.PlatformYouTube] = sources.PlatformConfig{Sources: yt}
	cfg.Platforms[domain.PlatformBilibili] = sources.PlatformConfig{Sources: bili}
	cfg.FeedURLs = feeds
	cfg.BilibiliSessData = credential
	return &fakeRegistry{cfg: cfg}
}

func item(p domain.Platform, url string) domain.ScrapedItem {
	return domain.ScrapedItem{Title: "t " + url, URL: url, Author: "author", Platform: p}
}
