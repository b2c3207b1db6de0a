package sources

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store reads and writes the registry file. JSON and YAML are chosen by extension.
// Writes are whole-file replacements; concurrent external edits are last-writer-wins.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store bound to path.
func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

// Path returns the registry file location.
func (s *Store) Path() string { return s.path }

// Read loads the registry. A missing file is replaced by Default; a legacy shape is
// upgraded and persisted back once; an undecodable file is an error.
func (s *Store) Read() (AppConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return AppConfig{}, errors.New("registry path is empty")
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := s.write(cfg); err != nil {
			return AppConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return AppConfig{}, fmt.Errorf("read registry: %w", err)
	}

	doc, err := parseDocument(raw, filepath.Ext(s.path))
	if err != nil {
		return AppConfig{}, err
	}
	cfg, upgraded, err := migrate(doc)
	if err != nil {
		return AppConfig{}, err
	}
	if upgraded {
		if err := s.write(cfg); err != nil {
			return AppConfig{}, fmt.Errorf("persist upgraded registry: %w", err)
		}
	}
	return cfg, nil
}

// Write replaces the registry file with cfg.
func (s *Store) Write(cfg AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.New("registry path is empty")
	}
	cfg.Version = CurrentVersion
	return s.write(normalize(cfg.Clone()))
}

func (s *Store) write(cfg AppConfig) error {
	payload, err := encodeDocument(cfg, filepath.Ext(s.path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

type unmarshalFn func([]byte, any) error

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func parseDocument(data []byte, ext string) (document, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "json", ext: ".json", fn: decodeJSON},
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
	}

	var errs []error
	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var doc document
		if err := d.fn(data, &doc); err != nil {
			errs = append(errs, fmt.Errorf("decode %s registry: %w", d.name, err))
			continue
		}
		if doc == nil {
			errs = append(errs, fmt.Errorf("decode %s registry: empty document", d.name))
			continue
		}
		return doc, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("registry format %q not recognized (expected YAML or JSON)", ext)
	}
	return nil, errors.Join(errs...)
}

func encodeDocument(cfg AppConfig, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode yaml registry: %w", err)
		}
		return out, nil
	default:
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json registry: %w", err)
		}
		return out, nil
	}
}
