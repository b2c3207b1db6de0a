// Package sources owns the user-curated source registry: followed channels per
// platform, feed URLs, the browser path and the platform credential.
package sources

import (
	"strings"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

// CurrentVersion is the shape written by this build.
const CurrentVersion = 2

// PlatformConfig lists the followed sources of one platform.
type PlatformConfig struct {
	Sources []domain.SourceItem `json:"sources" yaml:"sources"`
}

// AppConfig is the persisted source registry.
type AppConfig struct {
	Version          int                                `json:"version" yaml:"version"`
	Platforms        map[domain.Platform]PlatformConfig `json:"platforms" yaml:"platforms"`
	FeedURLs         []string                           `json:"rss_feeds" yaml:"rss_feeds"`
	BrowserPath      string                             `json:"chrome_exe_path" yaml:"chrome_exe_path"`
	BilibiliSessData string                             `json:"bilibili_sessdata,omitempty" yaml:"bilibili_sessdata,omitempty"`
}

// Default is written when no registry exists yet. An empty browser path lets the driver locate Chrome.
func Default() AppConfig {
	return AppConfig{
		Version: CurrentVersion,
		Platforms: map[domain.Platform]PlatformConfig{
			domain.PlatformYouTube:  {Sources: []domain.SourceItem{}},
			domain.PlatformBilibili: {Sources: []domain.SourceItem{}},
		},
		FeedURLs: []string{},
	}
}

// ScrapedPlatforms is the fixed iteration order for identifier-based platforms.
var ScrapedPlatforms = []domain.Platform{domain.PlatformYouTube, domain.PlatformBilibili}

// EnabledIDs returns the trimmed identifiers of enabled sources for p, in registry order.
func (c AppConfig) EnabledIDs(p domain.Platform) []string {
	pc, ok := c.Platforms[p]
	if !ok {
		return nil
	}
	var ids []string
	for _, s := range pc.Sources {
		id := strings.TrimSpace(s.ID)
		if !s.Enabled || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Feeds returns the non-empty feed URLs.
func (c AppConfig) Feeds() []string {
	var out []string
	for _, u := range c.FeedURLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Backfill fills the cached name and avatar of every source on p whose id equals one of keys.
// A cached field is only written while it is unset or still holds the raw id.
// It reports whether anything changed.
func (c *AppConfig) Backfill(p domain.Platform, keys []string, name, avatar string) bool {
	pc, ok := c.Platforms[p]
	if !ok {
		return false
	}
	changed := false
	for i := range pc.Sources {
		src := &pc.Sources[i]
		if !matchesAny(src.ID, keys) {
			continue
		}
		if name != "" && name != src.ID && (src.Name == "" || src.Name == src.ID) {
			src.Name = name
			changed = true
		}
		if avatar != "" && (src.Avatar == "" || src.Avatar == src.ID) {
			src.Avatar = avatar
			changed = true
		}
	}
	return changed
}

// Clone returns a deep copy.
func (c AppConfig) Clone() AppConfig {
	out := c
	out.FeedURLs = append([]string(nil), c.FeedURLs...)
	out.Platforms = make(map[domain.Platform]PlatformConfig, len(c.Platforms))
	for p, pc := range c.Platforms {
		out.Platforms[p] = PlatformConfig{Sources: append([]domain.SourceItem(nil), pc.Sources...)}
	}
	return out
}

func matchesAny(id string, keys []string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if k == id || strings.TrimPrefix(k, "@") == strings.TrimPrefix(id, "@") {
			return true
		}
	}
	return false
}
