// Package storage persists the dedupe history and the run log.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

const (
	// HistoryLimit bounds the number of remembered URLs; oldest are evicted first.
	HistoryLimit = 1000
	// RunLogLimit bounds the number of retained run log entries; oldest are evicted first.
	RunLogLimit = 50
)

// ErrRunNotFound is returned when updating a run log entry that does not exist.
var ErrRunNotFound = errors.New("run log entry not found")

// HistoryStore is the append-only, bounded set of previously synced URLs.
type HistoryStore interface {
	// ReadHistory returns remembered URLs, oldest first.
	ReadHistory() ([]string, error)
	// AppendHistory unions urls into the history and truncates it to the most recent HistoryLimit.
	AppendHistory(urls []string) error
}

// RunLogStore keeps the most recent run log entries, newest first.
type RunLogStore interface {
	AppendRun(entry domain.RunLogEntry) error
	UpdateRun(id string, patch domain.RunPatch) error
	ReadRuns() ([]domain.RunLogEntry, error)
	GetRun(id string) (domain.RunLogEntry, bool, error)
}

// Store bundles both persisted collaborators behind one backend.
type Store interface {
	HistoryStore
	RunLogStore
	Close() error
}

// Options controls retention for concrete store implementations.
type Options struct {
	HistoryLimit int
	RunLogLimit  int
}

// NewStore creates the configured storage backend.
// "bbolt" expects a database file path, "file" a directory for history.json and logs.json.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "memory":
		return NewMemoryStore(opts), nil
	case "", "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	case "file", "json":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("file storage requires a directory")
		}
		return openFileStore(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = HistoryLimit
	}
	if opts.RunLogLimit <= 0 {
		opts.RunLogLimit = RunLogLimit
	}
	return opts
}

// mergeHistory unions urls into existing (existing positions win), then keeps the newest limit entries.
func mergeHistory(existing, urls []string, limit int) []string {
	seen := make(map[string]struct{}, len(existing)+len(urls))
	out := make([]string, 0, len(existing)+len(urls))
	for _, list := range [][]string{existing, urls} {
		for _, u := range list {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// prependRun puts entry first and keeps at most limit entries.
func prependRun(runs []domain.RunLogEntry, entry domain.RunLogEntry, limit int) []domain.RunLogEntry {
	out := make([]domain.RunLogEntry, 0, len(runs)+1)
	out = append(out, entry)
	for _, r := range runs {
		if r.ID == entry.ID {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// patchRun applies patch to the entry with id inside runs.
func patchRun(runs []domain.RunLogEntry, id string, patch domain.RunPatch) error {
	for i := range runs {
		if runs[i].ID != id {
			continue
		}
		updated, err := patch.Apply(runs[i])
		if err != nil {
			return err
		}
		runs[i] = updated
		return nil
	}
	return fmt.Errorf("update run %s: %w", id, ErrRunNotFound)
}
