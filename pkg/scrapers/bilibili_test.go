package scrapers

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

const sampleNav = `{"code":-101,"message":"not logged in","data":{"wbi_img":{
  "img_url":"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png",
  "sub_url":"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"}}}`

const sampleSpace = `{"code":0,"message":"0","data":{"list":{"vlist":[
  {"title":"Long talk","bvid":"BV1long","author":"Speaker","mid":946974,"created":1700000000,"length":"25:10"},
  {"title":"Short clip","bvid":"BV1short","author":"Speaker","mid":946974,"created":1700000100,"length":"03:00"},
  {"title":"Lecture","bvid":"BV1hour","author":"Speaker","mid":946974,"created":1700000200,"length":"1:02:03"}
]}}}`

func newTestBilibili(client HTTPClient) *BilibiliScraper {
	s := NewBilibiliScraper(client, nil)
	s.delay = 0
	return s
}

func TestBilibiliScraperFiltersShortVideos(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://api.bilibili.com/x/web-interface/nav":  {body: sampleNav},
		"https://api.bilibili.com/x/space/wbi/arc/search": {body: sampleSpace},
	})
	s := newTestBilibili(client)

	items, err := s.Scrape(context.Background(), Request{IDs: []string{"946974"}, Credential: "sess-value"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 long videos, got %d: %#v", len(items), items)
	}
	if items[0].URL != "https://www.bilibili.com/video/BV1long/" || items[1].URL != "https://www.bilibili.com/video/BV1hour/" {
		t.Fatalf("unexpected urls %s %s", items[0].URL, items[1].URL)
	}
	if items[0].AuthorID != "946974" || items[0].Platform != domain.PlatformBilibili {
		t.Fatalf("unexpected item %#v", items[0])
	}
	if !items[0].PublishedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected published time %v", items[0].PublishedAt)
	}

	search := ""
	var searchHeaders map[string]string
	for i, u := range client.calls {
		if strings.Contains(u, "/arc/search") {
			search = u
			searchHeaders = client.headers[i]
		}
	}
	for _, want := range []string{"mid=946974", "order=pubdate", "ps=5", "web_location=1550101", "w_rid=", "wts="} {
		if !strings.Contains(search, want) {
			t.Fatalf("search url %q missing %q", search, want)
		}
	}
	if searchHeaders["Cookie"] != "SESSDATA=sess-value" {
		t.Fatalf("expected credential cookie, got %q", searchHeaders["Cookie"])
	}
}

func TestBilibiliScraperCachesWbiKeys(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://api.bilibili.com/x/web-interface/nav":  {body: sampleNav},
		"https://api.bilibili.com/x/space/wbi/arc/search": {body: sampleSpace},
	})
	s := newTestBilibili(client)

	for i := 0; i < 2; i++ {
		if _, err := s.Scrape(context.Background(), Request{IDs: []string{"1", "2"}}); err != nil {
			t.Fatalf("Scrape: %v", err)
		}
	}
	if n := client.callsWithPrefix("https://api.bilibili.com/x/web-interface/nav"); n != 1 {
		t.Fatalf("expected nav fetched once, got %d", n)
	}
	if n := client.callsWithPrefix("https://api.bilibili.com/x/space/wbi/arc/search"); n != 4 {
		t.Fatalf("expected 4 space searches, got %d", n)
	}
}

func TestBilibiliScraperNavFailureIsPlatformError(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://api.bilibili.com/x/web-interface/nav": {err: errors.New("dial tcp: timeout")},
	})
	if _, err := newTestBilibili(client).Scrape(context.Background(), Request{IDs: []string{"1"}}); err == nil {
		t.Fatalf("expected error when keys cannot be fetched")
	}
}

func TestBilibiliScraperApiErrorCode(t *testing.T) {
	client := newRouteClient(t, map[string]route{
		"https://api.bilibili.com/x/web-interface/nav":  {body: sampleNav},
		"https://api.bilibili.com/x/space/wbi/arc/search": {body: `{"code":-352,"message":"risk control"}`},
	})
	if _, err := newTestBilibili(client).Scrape(context.Background(), Request{IDs: []string{"1"}}); err == nil {
		t.Fatalf("expected error for rejected search")
	}
}

func TestSignWbiMatchesReferenceVector(t *testing.T) {
	keys := wbiKeys{img: "7cd084941338484aae1ad9425b84077c", sub: "4932caff0ff746eab6f01bf08b70ac45"}
	if got := mixinKey(keys.img + keys.sub); got != "ea1db124af3c7062474693fa704f4ff8" {
		t.Fatalf("mixinKey = %s", got)
	}

	got := signWbi(map[string]string{"foo": "114", "bar": "514", "zab": "1919810"}, keys, time.Unix(1702204169, 0))
	want := "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4"
	if got != want {
		t.Fatalf("signWbi = %s", got)
	}
}

func TestSignWbiStripsReservedCharacters(t *testing.T) {
	keys := wbiKeys{img: "7cd084941338484aae1ad9425b84077c", sub: "4932caff0ff746eab6f01bf08b70ac45"}
	got := signWbi(map[string]string{"q": "a b!(c)*'"}, keys, time.Unix(1, 0))

	query := "q=a%20bc&wts=1"
	sum := md5.Sum([]byte(query + mixinKey(keys.img+keys.sub))) //nolint:gosec
	if got != query+"&w_rid="+hex.EncodeToString(sum[:]) {
		t.Fatalf("signWbi = %s", got)
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]time.Duration{
		"10:00":   10 * time.Minute,
		"1:02:03": time.Hour + 2*time.Minute + 3*time.Second,
		"":        0,
		"abc":     0,
		"1:2:3:4": 0,
	}
	for in, want := range cases {
		if got := parseClock(in); got != want {
			t.Fatalf("parseClock(%q) = %v want %v", in, got, want)
		}
	}
}

func TestKeyFromURL(t *testing.T) {
	if got := keyFromURL("https://i0.hdslb.com/bfs/wbi/abc123.png"); got != "abc123" {
		t.Fatalf("keyFromURL = %q", got)
	}
	if got := keyFromURL(""); got != "" {
		t.Fatalf("keyFromURL(empty) = %q", got)
	}
}
