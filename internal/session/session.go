// Package session manages persistent per-platform browser profile directories.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samvad-hq/daily-digest/internal/domain"
)

const (
	// MinArtifactBytes is the smallest profile file that counts as a usable session.
	MinArtifactBytes = 1024
	// MinCredentialLength is the shortest configured credential that counts as usable.
	MinCredentialLength = 10
)

// lock files left behind by a browser that did not shut down cleanly
var staleLockFiles = []string{"SingletonLock", "SingletonCookie", "SingletonSocket", "lockfile"}

// StatusPlatforms is the order reported by Status.
var StatusPlatforms = []domain.Platform{domain.PlatformBilibili, domain.PlatformYouTube, domain.PlatformNotebook}

// Manager owns the sessions root directory.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{root: dir}
}

// Dir returns the profile directory for p, creating it when needed.
func (m *Manager) Dir(p domain.Platform) (string, error) {
	name := strings.TrimSpace(string(p))
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid session platform %q", p)
	}
	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// Exists reports whether the profile for p holds at least one non-trivial artifact.
func (m *Manager) Exists(p domain.Platform) bool {
	dir, err := m.Dir(p)
	if err != nil {
		return false
	}
	found := false
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err == nil && info.Size() >= MinArtifactBytes {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// ClearStaleLock removes browser singleton locks from the profile for p.
func (m *Manager) ClearStaleLock(p domain.Platform) error {
	dir, err := m.Dir(p)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range staleLockFiles {
		// Lstat: SingletonLock is usually a dangling symlink
		path := filepath.Join(dir, name)
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Status reports per platform whether a usable session or credential exists.
// Bilibili also counts a configured credential.
func (m *Manager) Status(bilibiliCredential string) map[domain.Platform]bool {
	out := make(map[domain.Platform]bool, len(StatusPlatforms))
	for _, p := range StatusPlatforms {
		ok := m.Exists(p)
		if p == domain.PlatformBilibili && len(strings.TrimSpace(bilibiliCredential)) >= MinCredentialLength {
			ok = true
		}
		out[p] = ok
	}
	return out
}
