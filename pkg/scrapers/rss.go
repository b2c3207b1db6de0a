package scrapers

import (
	"context"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

const rssWindow = 24 * time.Hour

// RSSScraper reads generic RSS/Atom feeds. Its Request.IDs are feed URLs.
type RSSScraper struct {
	client HTTPClient
	log    logger.Logger
	now    func() time.Time
}

// NewRSSScraper builds an RSSScraper.
func NewRSSScraper(client HTTPClient, log logger.Logger) *RSSScraper {
	return &RSSScraper{client: client, log: logger.Ensure(log), now: time.Now}
}

func (r *RSSScraper) Platform() domain.Platform { return domain.PlatformRSS }

// Scrape returns, per feed, every item from the last 24 hours, or the newest item when none is that recent.
func (r *RSSScraper) Scrape(ctx context.Context, req Request) ([]domain.ScrapedItem, error) {
	var (
		items []domain.ScrapedItem
		errs  sourceErrors
	)
	for _, feedURL := range req.IDs {
		if feedURL == "" {
			continue
		}
		found, err := r.feed(ctx, feedURL)
		errs.add(err)
		if err != nil {
			r.log.WarnObj("rss feed scrape failed", "rss_scrape_error", map[string]any{
				"feed":  feedURL,
				"error": err.Error(),
			})
			continue
		}
		items = append(items, found...)
	}
	if err := errs.platformErr(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *RSSScraper) feed(ctx context.Context, feedURL string) ([]domain.ScrapedItem, error) {
	body, err := fetchBody(ctx, r.client, feedURL, "rss feed", nil)
	if err != nil {
		return nil, err
	}
	feed, err := parseFeed(ctx, body)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	cutoff := now.Add(-rssWindow)
	author := firstNonEmpty(feed.Title, "Unknown Author")

	var (
		recent   []domain.ScrapedItem
		fallback *domain.ScrapedItem
	)
	for _, entry := range feed.Items {
		link := itemLink(entry)
		if link == "" {
			continue
		}
		item := domain.ScrapedItem{
			Title:       firstNonEmpty(entry.Title, "No Title"),
			URL:         link,
			Author:      author,
			AuthorID:    feedURL,
			PublishedAt: itemPublished(entry, now),
			Platform:    domain.PlatformRSS,
			Source:      "RSS",
		}
		if fallback == nil {
			first := item
			fallback = &first
		}
		if item.PublishedAt.After(cutoff) {
			recent = append(recent, item)
		}
	}
	if len(recent) == 0 && fallback != nil {
		return []domain.ScrapedItem{*fallback}, nil
	}
	return recent, nil
}
