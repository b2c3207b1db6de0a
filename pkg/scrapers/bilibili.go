package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/logger"
)

const (
	bilibiliAPIBase   = "https://api.bilibili.com"
	bilibiliWebBase   = "https://www.bilibili.com"
	bilibiliPageSize  = 5
	bilibiliMinLength = 10 * time.Minute
	bilibiliDelay     = 500 * time.Millisecond
)

// BilibiliScraper lists recent uploads of followed spaces through the signed search API.
type BilibiliScraper struct {
	client    HTTPClient
	log       logger.Logger
	apiBase   string
	minLength time.Duration
	delay     time.Duration
	signer    *wbiSigner
}

// NewBilibiliScraper builds a BilibiliScraper.
func NewBilibiliScraper(client HTTPClient, log logger.Logger) *BilibiliScraper {
	b := &BilibiliScraper{
		client:    client,
		log:       logger.Ensure(log),
		minLength: bilibiliMinLength,
		delay:     bilibiliDelay,
	}
	b.setAPIBase(bilibiliAPIBase)
	return b
}

func (b *BilibiliScraper) setAPIBase(base string) {
	b.apiBase = strings.TrimRight(base, "/")
	b.signer = &wbiSigner{client: b.client, navURL: b.apiBase + "/x/web-interface/nav", now: time.Now}
}

func (b *BilibiliScraper) Platform() domain.Platform { return domain.PlatformBilibili }

type spaceSearchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		List struct {
			VList []spaceVideo `json:"vlist"`
		} `json:"list"`
	} `json:"data"`
}

type spaceVideo struct {
	Title   string      `json:"title"`
	BVID    string      `json:"bvid"`
	Author  string      `json:"author"`
	Mid     json.Number `json:"mid"`
	Created int64       `json:"created"`
	Length  string      `json:"length"`
}

// Scrape reads the newest page of each space and keeps uploads of at least the minimum length.
// Spaces are scanned sequentially with a pause between requests.
func (b *BilibiliScraper) Scrape(ctx context.Context, req Request) ([]domain.ScrapedItem, error) {
	if len(req.IDs) == 0 {
		return nil, nil
	}
	keys, err := b.signer.currentKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("bilibili wbi keys: %w", err)
	}

	var (
		items []domain.ScrapedItem
		errs  sourceErrors
	)
	for i, raw := range req.IDs {
		mid := strings.TrimSpace(raw)
		if mid == "" {
			continue
		}
		if i > 0 {
			if err := sleepCtx(ctx, b.delay); err != nil {
				return nil, err
			}
		}
		found, err := b.space(ctx, mid, keys, req.Credential)
		errs.add(err)
		if err != nil {
			b.log.WarnObj("bilibili space scrape failed", "bilibili_scrape_error", map[string]any{
				"mid":   mid,
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

func (b *BilibiliScraper) space(ctx context.Context, mid string, keys wbiKeys, credential string) ([]domain.ScrapedItem, error) {
	query := b.signer.sign(map[string]string{
		"mid":          mid,
		"ps":           strconv.Itoa(bilibiliPageSize),
		"pn":           "1",
		"platform":     "web",
		"web_location": "1550101",
		"order":        "pubdate",
	}, keys)

	var resp spaceSearchResponse
	headers := refererHeaders("https://space.bilibili.com/"+mid+"/video", credential)
	if err := fetchJSON(ctx, b.client, b.apiBase+"/x/space/wbi/arc/search?"+query, "bilibili space "+mid, headers, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("bilibili space %s: api code %d: %s", mid, resp.Code, resp.Message)
	}

	var out []domain.ScrapedItem
	for _, v := range resp.Data.List.VList {
		if v.BVID == "" {
			continue
		}
		if length := parseClock(v.Length); length < b.minLength {
			b.log.DebugObj("bilibili short video skipped", "bilibili_skip", map[string]any{
				"title":  v.Title,
				"length": v.Length,
			})
			continue
		}
		out = append(out, domain.ScrapedItem{
			Title:       v.Title,
			URL:         bilibiliWebBase + "/video/" + v.BVID + "/",
			Author:      firstNonEmpty(v.Author, mid),
			AuthorID:    firstNonEmpty(v.Mid.String(), mid),
			PublishedAt: time.Unix(v.Created, 0).UTC(),
			Platform:    domain.PlatformBilibili,
			Source:      "Bilibili",
		})
	}
	return out, nil
}

// parseClock parses "MM:SS" or "HH:MM:SS"; anything else is zero.
func parseClock(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

func refererHeaders(referer, credential string) map[string]string {
	h := map[string]string{"Referer": referer}
	if c := strings.TrimSpace(credential); c != "" {
		h["Cookie"] = "SESSDATA=" + c
	}
	return h
}
