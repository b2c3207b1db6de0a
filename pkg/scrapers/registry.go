package scrapers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
	"github.com/samvad-hq/daily-digest/pkg/httpclient"
)

// Registry resolves the scraper implementation for a platform.
type Registry struct {
	mu         sync.RWMutex
	byPlatform map[domain.Platform]Scraper
}

// NewRegistry builds a registry keyed by each scraper's platform. Later entries win.
func NewRegistry(scrapers ...Scraper) *Registry {
	reg := &Registry{byPlatform: make(map[domain.Platform]Scraper)}
	for _, s := range scrapers {
		reg.Register(s)
	}
	return reg
}

// Register adds or replaces the scraper for its platform.
func (r *Registry) Register(s Scraper) {
	if s == nil {
		return
	}
	key := domain.Platform(strings.ToLower(strings.TrimSpace(string(s.Platform()))))
	if key == "" {
		return
	}
	r.mu.Lock()
	r.byPlatform[key] = s
	r.mu.Unlock()
}

// For returns the scraper registered for p.
func (r *Registry) For(p domain.Platform) (Scraper, error) {
	if r == nil {
		return nil, fmt.Errorf("scraper registry is nil")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byPlatform[p]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for platform %q", p)
	}
	return s, nil
}

// DefaultHTTPClient returns the resty-backed client used by scrapers.
func DefaultHTTPClient(timeout time.Duration) HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return httpclient.NewRestyClient(timeout, httpclient.WithRetries(2, 500*time.Millisecond))
}

// DefaultRegistry wires up the YouTube, Bilibili and RSS scrapers.
func DefaultRegistry(client HTTPClient, log logger.Logger) *Registry {
	if client == nil {
		client = DefaultHTTPClient(0)
	}
	return NewRegistry(
		NewYouTubeScraper(client, log),
		NewBilibiliScraper(client, log),
		NewRSSScraper(client, log),
	)
}
