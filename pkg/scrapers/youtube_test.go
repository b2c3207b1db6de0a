package scrapers

import (
	"context"
	"testing"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

const sampleChannelPage = `<!doctype html><html><head>
<meta property="og:title" content="Veritasium">
<meta property="og:image" content="https://yt3.googleusercontent.com/abc=s900">
<meta itemprop="identifier" content="UCHnyfMqiRRG1u-2MsSQLbXA">
</head><body></body></html>`

const sampleScriptOnlyPage = `<html><body><script>var ytInitialData = {"metadata":{"externalId":"UCscriptid"}};</script>
<img src="https://yt3.googleusercontent.com/avatar-script=s88"></body></html>`

const sampleChannelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Veritasium</title>
  <entry>
    <title>Newest video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=new"/>
    <published>2025-03-01T10:00:00+00:00</published>
  </entry>
  <entry>
    <title>Older video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=old"/>
    <published>2025-02-01T10:00:00+00:00</published>
  </entry>
</feed>`

func TestYouTubeScraperReturnsLatestUpload(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://www.youtube.com/@veritasium": {body: sampleChannelPage},
		"https://www.youtube.com/feeds/videos.xml?channel_id=UCHnyfMqiRRG1u-2MsSQLbXA": {body: sampleChannelFeed},
	})
	s := NewYouTubeScraper(client, nil)

	items, err := s.Scrape(context.Background(), Request{IDs: []string{"veritasium"}})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected only the latest upload, got %d", len(items))
	}
	got := items[0]
	if got.URL != "https://www.youtube.com/watch?v=new" || got.Title != "Newest video" {
		t.Fatalf("unexpected item %#v", got)
	}
	if got.AuthorID != "@veritasium" || got.Author != "Veritasium" {
		t.Fatalf("unexpected author fields %#v", got)
	}
	if got.AuthorAvatar != "https://yt3.googleusercontent.com/abc=s900" {
		t.Fatalf("unexpected avatar %q", got.AuthorAvatar)
	}
	if got.Platform != domain.PlatformYouTube || !got.PublishedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected platform/published %#v", got)
	}
	if hdr := client.headers[0]["Cookie"]; hdr != "CONSENT=YES+" {
		t.Fatalf("channel page should send consent cookie, got %q", hdr)
	}
}

func TestYouTubeScraperCachesChannelResolution(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://www.youtube.com/@veritasium": {body: sampleChannelPage},
		"https://www.youtube.com/feeds/":      {body: sampleChannelFeed},
	})
	s := NewYouTubeScraper(client, nil)

	for i := 0; i < 2; i++ {
		if _, err := s.Scrape(context.Background(), Request{IDs: []string{"@veritasium"}}); err != nil {
			t.Fatalf("Scrape: %v", err)
		}
	}
	if n := client.callsWithPrefix("https://www.youtube.com/@veritasium"); n != 1 {
		t.Fatalf("expected channel page fetched once, got %d", n)
	}
}

func TestYouTubeScraperIsolatesChannelFailures(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://www.youtube.com/@veritasium": {body: sampleChannelPage},
		"https://www.youtube.com/@gone":       {status: 404, body: "not found"},
		"https://www.youtube.com/feeds/":      {body: sampleChannelFeed},
	})
	s := NewYouTubeScraper(client, nil)

	items, err := s.Scrape(context.Background(), Request{IDs: []string{"@gone", "@veritasium"}})
	if err != nil {
		t.Fatalf("one failing channel should not fail the platform: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the healthy channel's item, got %d", len(items))
	}
}

func TestYouTubeScraperFailsWhenEveryChannelFails(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://www.youtube.com/": {status: 500, body: "boom"},
	})
	s := NewYouTubeScraper(client, nil)

	if _, err := s.Scrape(context.Background(), Request{IDs: []string{"@a", "@b"}}); err == nil {
		t.Fatalf("expected platform error")
	}
}

func TestParseChannelPageFallsBackToInitialData(t *testing.T) {
	info, err := parseChannelPage([]byte(sampleScriptOnlyPage))
	if err != nil {
		t.Fatalf("parseChannelPage: %v", err)
	}
	if info.ID != "UCscriptid" {
		t.Fatalf("unexpected id %q", info.ID)
	}
	if info.Avatar != "https://yt3.googleusercontent.com/avatar-script=s88" {
		t.Fatalf("unexpected avatar %q", info.Avatar)
	}
}

func TestNormalizeHandle(t *testing.T) {
	cases := map[string]string{" name ": "@name", "@name": "@name", "": ""}
	for in, want := range cases {
		if got := normalizeHandle(in); got != want {
			t.Fatalf("normalizeHandle(%q) = %q want %q", in, got, want)
		}
	}
}
