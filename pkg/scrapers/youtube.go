package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

const youtubeBaseURL = "https://www.youtube.com"

var (
	channelIDPattern = regexp.MustCompile(`"(?:channelId|externalId)":"(UC[^"]+)"`)
	avatarPattern    = regexp.MustCompile(`https://yt3\.googleusercontent\.com/[^"\\]+`)
)

type channelInfo struct {
	ID     string
	Name   string
	Avatar string
}

// YouTubeScraper returns the latest upload of each followed channel.
// Channel ids are resolved from the channel page once per process.
type YouTubeScraper struct {
	client  HTTPClient
	log     logger.Logger
	baseURL string
	now     func() time.Time

	mu       sync.Mutex
	channels map[string]channelInfo
}

// NewYouTubeScraper builds a YouTubeScraper.
func NewYouTubeScraper(client HTTPClient, log logger.Logger) *YouTubeScraper {
	return &YouTubeScraper{
		client:   client,
		log:      logger.Ensure(log),
		baseURL:  youtubeBaseURL,
		now:      time.Now,
		channels: make(map[string]channelInfo),
	}
}

func (y *YouTubeScraper) Platform() domain.Platform { return domain.PlatformYouTube }

// Scrape resolves each handle and reads its uploads feed.
func (y *YouTubeScraper) Scrape(ctx context.Context, req Request) ([]domain.ScrapedItem, error) {
	var (
		items []domain.ScrapedItem
		errs  sourceErrors
	)
	for _, raw := range req.IDs {
		handle := normalizeHandle(raw)
		if handle == "" {
			continue
		}
		item, ok, err := y.latest(ctx, handle)
		errs.add(err)
		if err != nil {
			y.log.WarnObj("youtube channel scrape failed", "youtube_scrape_error", map[string]any{
				"handle": handle,
				"error":  err.Error(),
			})
			continue
		}
		if ok {
			items = append(items, item)
		}
	}
	if err := errs.platformErr(); err != nil {
		return nil, err
	}
	return items, nil
}

func (y *YouTubeScraper) latest(ctx context.Context, handle string) (domain.ScrapedItem, bool, error) {
	info, err := y.channel(ctx, handle)
	if err != nil {
		return domain.ScrapedItem{}, false, err
	}

	feedURL := y.baseURL + "/feeds/videos.xml?channel_id=" + url.QueryEscape(info.ID)
	body, err := fetchBody(ctx, y.client, feedURL, "youtube feed "+handle, nil)
	if err != nil {
		return domain.ScrapedItem{}, false, err
	}
	feed, err := parseFeed(ctx, body)
	if err != nil {
		return domain.ScrapedItem{}, false, err
	}
	if len(feed.Items) == 0 {
		return domain.ScrapedItem{}, false, nil
	}

	entry := feed.Items[0]
	link := itemLink(entry)
	if link == "" {
		return domain.ScrapedItem{}, false, nil
	}
	return domain.ScrapedItem{
		Title:        firstNonEmpty(entry.Title, "Unknown Title"),
		URL:          link,
		Author:       firstNonEmpty(feed.Title, info.Name, strings.TrimPrefix(handle, "@")),
		AuthorID:     handle,
		AuthorAvatar: info.Avatar,
		PublishedAt:  itemPublished(entry, y.now().UTC()),
		Platform:     domain.PlatformYouTube,
		Source:       "YouTube",
	}, true, nil
}

// channel returns cached channel info or resolves it from the channel page.
func (y *YouTubeScraper) channel(ctx context.Context, handle string) (channelInfo, error) {
	y.mu.Lock()
	info, ok := y.channels[handle]
	y.mu.Unlock()
	if ok {
		return info, nil
	}

	headers := map[string]string{
		"Accept-Language": "en-US,en",
		"Cookie":          "CONSENT=YES+",
	}
	body, err := fetchBody(ctx, y.client, y.baseURL+"/"+handle, "youtube channel page "+handle, headers)
	if err != nil {
		return channelInfo{}, err
	}
	info, err = parseChannelPage(body)
	if err != nil {
		return channelInfo{}, fmt.Errorf("%s: %w", handle, err)
	}

	y.mu.Lock()
	y.channels[handle] = info
	y.mu.Unlock()
	return info, nil
}

// parseChannelPage extracts the channel id, title and avatar from a channel page.
// Structured meta tags are preferred; the embedded initial data is the fallback.
func parseChannelPage(body []byte) (channelInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return channelInfo{}, fmt.Errorf("parse channel page: %w", err)
	}

	var info channelInfo
	if id, ok := doc.Find(`meta[itemprop="identifier"]`).Attr("content"); ok && strings.HasPrefix(id, "UC") {
		info.ID = id
	}
	if info.ID == "" {
		if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
			if i := strings.Index(href, "/channel/UC"); i >= 0 {
				info.ID = strings.Trim(href[i+len("/channel/"):], "/")
			}
		}
	}
	if info.ID == "" {
		if m := channelIDPattern.FindSubmatch(body); m != nil {
			info.ID = string(m[1])
		}
	}
	if info.ID == "" {
		return channelInfo{}, fmt.Errorf("channel id not found")
	}

	info.Name, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	info.Name = strings.TrimSpace(info.Name)
	if avatar, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && strings.Contains(avatar, "yt3.") {
		info.Avatar = avatar
	} else if m := avatarPattern.Find(body); m != nil {
		info.Avatar = string(m)
	}
	return info, nil
}

// normalizeHandle trims and ensures the "@" prefix.
func normalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return h
}
