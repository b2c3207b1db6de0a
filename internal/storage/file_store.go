package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

const (
	historyFileName = "history.json"
	runLogFileName  = "logs.json"
)

// fileStore keeps history and the run log as whole-file JSON documents.
// Unreadable or malformed files are treated as empty.
type fileStore struct {
	mu           sync.Mutex
	historyPath  string
	runLogPath   string
	historyLimit int
	runLimit     int
}

func openFileStore(dir string, opts Options) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &fileStore{
		historyPath:  filepath.Join(dir, historyFileName),
		runLogPath:   filepath.Join(dir, runLogFileName),
		historyLimit: opts.HistoryLimit,
		runLimit:     opts.RunLogLimit,
	}, nil
}

func (f *fileStore) Close() error { return nil }

func (f *fileStore) ReadHistory() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readHistory(), nil
}

func (f *fileStore) AppendHistory(urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := mergeHistory(f.readHistory(), urls, f.historyLimit)
	return writeJSONFile(f.historyPath, merged)
}

func (f *fileStore) AppendRun(entry domain.RunLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs := prependRun(f.readRuns(), entry, f.runLimit)
	return writeJSONFile(f.runLogPath, runs)
}

func (f *fileStore) UpdateRun(id string, patch domain.RunPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	runs := f.readRuns()
	if err := patchRun(runs, id, patch); err != nil {
		return err
	}
	return writeJSONFile(f.runLogPath, runs)
}

func (f *fileStore) ReadRuns() ([]domain.RunLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readRuns(), nil
}

func (f *fileStore) GetRun(id string) (domain.RunLogEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.readRuns() {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.RunLogEntry{}, false, nil
}

func (f *fileStore) readHistory() []string {
	var urls []string
	if !readJSONFile(f.historyPath, &urls) {
		return nil
	}
	return urls
}

func (f *fileStore) readRuns() []domain.RunLogEntry {
	var runs []domain.RunLogEntry
	if !readJSONFile(f.runLogPath, &runs) {
		return nil
	}
	return runs
}

// readJSONFile decodes path into dst and reports whether it succeeded.
func readJSONFile(path string, dst any) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// writeJSONFile replaces path atomically with the indented JSON encoding of v.
func writeJSONFile(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
