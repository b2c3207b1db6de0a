package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain contains core models shared by scrapers, the coordinator, storage and the routine.

// Platform identifies a content platform or an external session owner.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformBilibili Platform = "bilibili"
	PlatformRSS      Platform = "rss"
	PlatformNotebook Platform = "notebooklm"
)

// SourceItem is one followed creator/channel on a platform.
type SourceItem struct {
	ID      string `json:"id" yaml:"id"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Avatar  string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

type sourceItemFields SourceItem

// UnmarshalJSON accepts numeric ids, as Bilibili UIDs are often written unquoted.
func (s *SourceItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		sourceItemFields
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SourceItem(raw.sourceItemFields)

	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		s.ID = ""
	case id[0] == '"':
		if err := json.Unmarshal(id, &s.ID); err != nil {
			return fmt.Errorf("source id: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("source id %s: %w", id, err)
		}
		s.ID = n.String()
	}
	return nil
}

// ScrapedItem is a piece of content discovered by a scraper. URL is the dedupe key.
type ScrapedItem struct {
	Title            string    `json:"title"`
	URL              string    `json:"url"`
	Author           string    `json:"author"`
	AuthorID         string    `json:"author_id,omitempty"`
	AuthorAvatar     string    `json:"author_avatar,omitempty"`
	PublishedAt      time.Time `json:"published_at"`
	Platform         Platform  `json:"platform"`
	Source           string    `json:"source"`
	Transcript       string    `json:"transcript,omitempty"`
	Description      string    `json:"description,omitempty"`
	FormattedContent string    `json:"formatted_content,omitempty"`
}

// Detail returns the short form recorded in run logs and results.
func (s ScrapedItem) Detail() Detail {
	return Detail{Title: s.Title, URL: s.URL, Source: s.Source}
}

// Details maps items to their log details, preserving order.
func Details(items []ScrapedItem) []Detail {
	out := make([]Detail, 0, len(items))
	for _, it := range items {
		out = append(out, it.Detail())
	}
	return out
}

// URLs returns the dedupe keys of items, preserving order.
func URLs(items []ScrapedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.URL)
	}
	return out
}

// Detail is the per-item record kept in a run log entry.
type Detail struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Item rebuilds a minimal item from a log detail. The platform is inferred from the source label.
func (d Detail) Item() ScrapedItem {
	return ScrapedItem{Title: d.Title, URL: d.URL, Source: d.Source, Platform: platformForSource(d.Source)}
}

func platformForSource(source string) Platform {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case string(PlatformYouTube):
		return PlatformYouTube
	case string(PlatformBilibili):
		return PlatformBilibili
	default:
		return PlatformRSS
	}
}

// RunStatus is the scrape-level outcome of a run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
	RunNone    RunStatus = "none"
	RunRunning RunStatus = "running"
)

// SyncStatus is the notebook sync outcome of a run.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
)

// ErrSyncRegression is returned when a patch would move a settled sync status back to pending.
var ErrSyncRegression = errors.New("sync status cannot return to pending")

// CanTransition reports whether the sync status may move to next.
// Unset and pending may move anywhere; settled states never move back to pending.
func (s SyncStatus) CanTransition(next SyncStatus) bool {
	if next == "" || s == "" || s == SyncPending {
		return true
	}
	return next != SyncPending
}

// RunLogEntry records one routine execution.
type RunLogEntry struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	Status      RunStatus  `json:"status"`
	Message     string     `json:"message"`
	ItemCount   int        `json:"item_count"`
	NotebookURL string     `json:"notebook_url,omitempty"`
	SyncStatus  SyncStatus `json:"sync_status,omitempty"`
	SyncError   string     `json:"sync_error,omitempty"`
	Details     []Detail   `json:"details,omitempty"`
}

// RunPatch carries the fields to update on an existing run log entry; nil fields are left untouched.
type RunPatch struct {
	Status      *RunStatus
	Message     *string
	NotebookURL *string
	SyncStatus  *SyncStatus
	SyncError   *string
}

// Apply returns entry with the patch applied.
func (p RunPatch) Apply(entry RunLogEntry) (RunLogEntry, error) {
	if p.SyncStatus != nil {
		if !entry.SyncStatus.CanTransition(*p.SyncStatus) {
			return entry, fmt.Errorf("run %s: %w (%s -> %s)", entry.ID, ErrSyncRegression, entry.SyncStatus, *p.SyncStatus)
		}
		entry.SyncStatus = *p.SyncStatus
	}
	if p.Status != nil {
		entry.Status = *p.Status
	}
	if p.Message != nil {
		entry.Message = *p.Message
	}
	if p.NotebookURL != nil {
		entry.NotebookURL = *p.NotebookURL
	}
	if p.SyncError != nil {
		entry.SyncError = *p.SyncError
	}
	return entry, nil
}

// Ptr is a small helper for building patches.
func Ptr[T any](v T) *T { return &v }
