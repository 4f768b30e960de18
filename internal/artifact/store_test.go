package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewStore_TimestampedDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	s, err := NewStore(base, now)
	if err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(base, "2026-03-04-05-06-07")
	if s.Dir() != want {
		t.Errorf("expected %s, got %s", want, s.Dir())
	}
	if info, err := os.Stat(want); err != nil || !info.IsDir() {
		t.Errorf("run dir should exist: %v", err)
	}
}

func TestNewStore_SameSecondRunsGetSeparateDirs(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 10, 14, 4, 0, 0, 0, time.UTC)

	first, err := NewStore(base, now)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewStore(base, now.Add(600*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	third, err := NewStore(base, now)
	if err != nil {
		t.Fatal(err)
	}

	if first.Dir() == second.Dir() || second.Dir() == third.Dir() {
		t.Fatalf("runs share a directory: %s %s %s", first.Dir(), second.Dir(), third.Dir())
	}
	if got := filepath.Base(second.Dir()); got != "2026-10-14-04-00-00-2" {
		t.Errorf("unexpected second run dir %s", got)
	}
	if got := filepath.Base(third.Dir()); got != "2026-10-14-04-00-00-3" {
		t.Errorf("unexpected third run dir %s", got)
	}
	if first.Screenshot("profile_page") == second.Screenshot("profile_page") {
		t.Error("two runs reuse the same artifact path")
	}
}

func TestScreenshot_AppendsExtension(t *testing.T) {
	s, _ := Open(t.TempDir())

	tests := []struct{ in, want string }{
		{"profile", "profile.png"},
		{"login.png", "login.png"},
		{"Modal.PNG", "Modal.PNG"},
		{"meal library", "meal_library.png"},
		{"a/b", "a_b.png"},
		{"", "artifact.png"},
	}
	for _, tt := range tests {
		if got := filepath.Base(s.Screenshot(tt.in)); got != tt.want {
			t.Errorf("Screenshot(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestScreenshot_UniquePerRun(t *testing.T) {
	s, _ := Open(t.TempDir())

	got := []string{
		filepath.Base(s.Screenshot("modal")),
		filepath.Base(s.Screenshot("modal.png")),
		filepath.Base(s.Screenshot("modal")),
		filepath.Base(s.Screenshot("modal-2")),
	}
	want := []string{"modal.png", "modal-2.png", "modal-3.png", "modal-2-2.png"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScreenshot_SkipsReservedSuffix(t *testing.T) {
	s, _ := Open(t.TempDir())

	s.Screenshot("x-2")
	s.Screenshot("x")
	if got := filepath.Base(s.Screenshot("x")); got != "x-3.png" {
		t.Errorf("expected x-3.png, got %s", got)
	}
}

func TestPath_Concurrent(t *testing.T) {
	s, _ := Open(t.TempDir())

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := s.Screenshot("shot")
			mu.Lock()
			defer mu.Unlock()
			if seen[p] {
				t.Errorf("duplicate path %s", p)
			}
			seen[p] = true
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("expected 50 unique paths, got %d", len(seen))
	}
	for i := 2; i <= 50; i++ {
		if !seen[filepath.Join(s.Dir(), fmt.Sprintf("shot-%d.png", i))] {
			t.Errorf("missing shot-%d.png", i)
		}
	}
}
