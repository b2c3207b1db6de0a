package sources

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

// document is the untyped decoded form of a registry file of any version.
type document map[string]any

// upgrader moves a document from version i to i+1.
type upgrader func(document) document

// upgraders[i] upgrades version i to i+1.
var upgraders = []upgrader{
	upgradeFlatWhitelists,
	upgradeWhitelistsToSources,
}

// detectVersion is the only place that inspects the shape of a raw document.
//
//	v0: top-level youtube_whitelist / bilibili_whitelist arrays
//	v1: platforms.<p>.whitelist arrays
//	v2: platforms.<p>.sources objects, explicit version
func detectVersion(doc document) int {
	if v, ok := intValue(doc["version"]); ok {
		return v
	}
	platforms, ok := doc["platforms"].(map[string]any)
	if !ok {
		return 0
	}
	for _, raw := range platforms {
		pc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := pc["whitelist"]; ok {
			return 1
		}
	}
	return CurrentVersion
}

// migrate upgrades doc to CurrentVersion and decodes it.
// The returned bool reports whether any upgrade ran.
func migrate(doc document) (AppConfig, bool, error) {
	version := detectVersion(doc)
	if version > CurrentVersion {
		return AppConfig{}, false, fmt.Errorf("registry version %d is newer than supported %d", version, CurrentVersion)
	}
	if version < 0 {
		return AppConfig{}, false, fmt.Errorf("invalid registry version %d", version)
	}

	upgraded := version < CurrentVersion
	for v := version; v < CurrentVersion; v++ {
		doc = upgraders[v](doc)
	}
	doc["version"] = CurrentVersion

	// normalise through JSON so both decoders share one typed mapping
	raw, err := json.Marshal(doc)
	if err != nil {
		return AppConfig{}, false, fmt.Errorf("encode registry: %w", err)
	}
	var cfg AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, false, fmt.Errorf("decode registry: %w", err)
	}
	return normalize(cfg), upgraded, nil
}

// upgradeFlatWhitelists: v0 -> v1. hn_config is no longer supported and is dropped.
func upgradeFlatWhitelists(doc document) document {
	platforms := map[string]any{}
	for _, p := range ScrapedPlatforms {
		key := string(p) + "_whitelist"
		if list, ok := doc[key]; ok {
			platforms[string(p)] = map[string]any{"whitelist": list}
			delete(doc, key)
		}
	}
	delete(doc, "hn_config")
	doc["platforms"] = platforms
	return doc
}

// upgradeWhitelistsToSources: v1 -> v2. Every listed id becomes an enabled source.
func upgradeWhitelistsToSources(doc document) document {
	platforms, _ := doc["platforms"].(map[string]any)
	for name, raw := range platforms {
		pc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		list, ok := pc["whitelist"].([]any)
		if !ok {
			continue
		}
		srcs := make([]any, 0, len(list))
		for _, item := range list {
			id := stringValue(item)
			if id == "" {
				continue
			}
			srcs = append(srcs, map[string]any{"id": id, "enabled": true})
		}
		delete(pc, "whitelist")
		pc["sources"] = srcs
		platforms[name] = pc
	}
	return doc
}

func normalize(cfg AppConfig) AppConfig {
	if cfg.Platforms == nil {
		cfg.Platforms = map[domain.Platform]PlatformConfig{}
	}
	for _, p := range ScrapedPlatforms {
		if _, ok := cfg.Platforms[p]; !ok {
			cfg.Platforms[p] = PlatformConfig{Sources: []domain.SourceItem{}}
		}
	}
	for p, pc := range cfg.Platforms {
		if pc.Sources == nil {
			pc.Sources = []domain.SourceItem{}
		}
		for i := range pc.Sources {
			pc.Sources[i].ID = strings.TrimSpace(pc.Sources[i].ID)
		}
		cfg.Platforms[p] = pc
	}
	if cfg.FeedURLs == nil {
		cfg.FeedURLs = []string{}
	}
	return cfg
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

// stringValue accepts string ids and numeric ids (JSON numbers, YAML ints).
func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case uint64:
		return strconv.FormatUint(s, 10)
	default:
		return ""
	}
}
