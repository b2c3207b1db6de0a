package crawler

import (
	"github.com/samvad-hq/daily-digest/internal/domain"
	"github.com/samvad-hq/daily-digest/internal/storage"
)

// FilterNew returns the items whose URL is not in history, preserving order.
func FilterNew(items []domain.ScrapedItem, history []string) []domain.ScrapedItem {
	seen := make(map[string]struct{}, len(history))
	for _, u := range history {
		seen[u] = struct{}{}
	}
	out := make([]domain.ScrapedItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.URL]; ok {
			continue
		}
		out = append(out, it)
	}
	return out
}

// RecordSynced appends urls to the history. Empty input is a no-op.
func RecordSynced(history storage.HistoryStore, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return history.AppendHistory(urls)
}

// uniqueByURL drops repeated URLs within one batch; the first occurrence wins.
func uniqueByURL(items []domain.ScrapedItem) []domain.ScrapedItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.ScrapedItem, 0, len(items))
	for _, it := range items {
		if it.URL == "" {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}
