// Package artifact owns the per-run output directory.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampFormat names run directories.
const TimestampFormat = "2006-01-02-15-04-05"

// Store hands out unique file paths inside one run directory. It is safe for
// concurrent use.
type Store struct {
	dir  string
	mu   sync.Mutex
	used map[string]int
}

// NewStore creates a fresh run directory <base>/<timestamp>/ for a run
// started at now. A run that starts within the same second as an earlier one
// gets <timestamp>-2, <timestamp>-3 and so on, so runs never share a directory.
func NewStore(base string, now time.Time) (*Store, error) {
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir %s: %w", base, err)
	}
	stamp := now.Format(TimestampFormat)
	for n := 1; ; n++ {
		name := stamp
		if n > 1 {
			name = fmt.Sprintf("%s-%d", stamp, n)
		}
		dir := filepath.Join(base, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return &Store{dir: dir, used: make(map[string]int)}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create run dir %s: %w", dir, err)
		}
	}
}

// Open uses dir as the run directory, creating it when needed. Unlike
// NewStore it reuses an existing directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir %s: %w", dir, err)
	}
	return &Store{dir: dir, used: make(map[string]int)}, nil
}

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

// Screenshot returns a unique PNG path for name, appending ".png" when
// missing.
func (s *Store) Screenshot(name string) string {
	name = sanitize(name)
	if !strings.EqualFold(filepath.Ext(name), ".png") {
		name += ".png"
	}
	return filepath.Join(s.dir, s.reserve(name))
}

// reserve returns name, or name with a -N suffix before the extension when
// name was already handed out.
func (s *Store) reserve(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(name)
	n := s.used[key]
	s.used[key] = n + 1
	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		ck := strings.ToLower(candidate)
		if s.used[ck] == 0 {
			s.used[ck] = 1
			s.used[key] = n
			return candidate
		}
	}
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" || name == "." || name == ".." {
		name = "artifact"
	}
	return name
}
