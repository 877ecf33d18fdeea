package seen

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreMarkSeenAndPrune(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "seen.db")
	store, err := Open(path, 24*time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if store.Seen("https://example.org/a") {
		t.Fatal("empty store should not report links as seen")
	}

	if err := store.MarkAll([]string{"https://example.org/a", ""}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("MarkAll: %v", err)
	}
	if err := store.MarkAll([]string{"https://example.org/old"}, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("MarkAll: %v", err)
	}

	if !store.Seen("https://example.org/a") {
		t.Fatal("expected recent link to be seen")
	}
	if store.Seen("https://example.org/old") {
		t.Fatal("expired link should not be seen")
	}

	removed, err := store.Prune(now)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seen.db")
	first, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := first.MarkAll([]string{"https://example.org/kept"}, time.Now()); err != nil {
		t.Fatalf("MarkAll: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if !second.Seen("https://example.org/kept") {
		t.Fatal("expected link to survive reopen")
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("", 0); err == nil {
		t.Fatal("expected error for empty path")
	}
}
