package scrapers

import (
	"context"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/pkg/httpclient"
)

// Request is the input of one platform scrape.
type Request struct {
	// IDs are source identifiers (handles, uids) or, for feed scrapers, feed URLs.
	IDs []string
	// Credential is the optional platform credential (e.g. a session cookie value).
	Credential string
}

// Scraper returns recent items for the given sources of one platform.
// Per-source failures are logged and skipped; an error means the platform produced nothing usable.
type Scraper interface {
	Platform() domain.Platform
	Scrape(ctx context.Context, req Request) ([]domain.ScrapedItem, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within scrapers.
type HTTPClient = httpclient.Client
