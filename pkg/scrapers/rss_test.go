package scrapers

import (
	"context"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Example Blog</title>
  <item><title>Fresh</title><link>https://blog.example.com/fresh</link><pubDate>Sat, 01 Mar 2025 08:00:00 GMT</pubDate></item>
  <item><title>No link</title><pubDate>Sat, 01 Mar 2025 07:00:00 GMT</pubDate></item>
  <item><title>Stale</title><link>https://blog.example.com/stale</link><pubDate>Sat, 01 Feb 2025 08:00:00 GMT</pubDate></item>
</channel></rss>`

const sampleStaleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>Quiet Blog</title>
  <item><title>Latest</title><link>https://quiet.example.com/latest</link><pubDate>Sat, 01 Feb 2025 08:00:00 GMT</pubDate></item>
  <item><title>Older</title><link>https://quiet.example.com/older</link><pubDate>Sat, 25 Jan 2025 08:00:00 GMT</pubDate></item>
</channel></rss>`

func newTestRSS(client HTTPClient) *RSSScraper {
	s := NewRSSScraper(client, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRSSScraperKeepsLast24Hours(t *testing.T) {
	client := newRouteClient(t, map[string]route{"https://blog.example.com/feed": {body: sampleRSS}})

	items, err := newTestRSS(client).Scrape(context.Background(), Request{IDs: []string{"https://blog.example.com/feed"}})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://blog.example.com/fresh" {
		t.Fatalf("expected only the fresh item, got %#v", items)
	}
	if items[0].Author != "Example Blog" || items[0].Source != "RSS" {
		t.Fatalf("unexpected item %#v", items[0])
	}
}

func TestRSSScraperFallsBackToLatest(t *testing.T) {
	client := newRouteClient(t, map[string]route{"https://quiet.example.com/rss": {body: sampleStaleRSS}})

	items, err := newTestRSS(client).Scrape(context.Background(), Request{IDs: []string{"https://quiet.example.com/rss"}})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(items) != 1 || items[0].URL != "https://quiet.example.com/latest" {
		t.Fatalf("expected the latest item as fallback, got %#v", items)
	}
}

func TestRSSScraperIsolatesBrokenFeeds(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://blog.example.com/feed": {body: sampleRSS},
		"https://broken.example.com/":   {body: "<html>not a feed"},
	})

	items, err := newTestRSS(client).Scrape(context.Background(), Request{IDs: []string{"https://broken.example.com/rss", "https://blog.example.com/feed"}})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected items from the healthy feed, got %d", len(items))
	}
}
