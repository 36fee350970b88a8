package reconciler

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/metastore"
)

func setupIntents(t *testing.T) (*Intents, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := metastore.Open(path)
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	intents, err := NewIntents(db)
	if err != nil {
		t.Fatalf("NewIntents failed: %v", err)
	}
	return intents, func() { db.Close() }
}

func TestIntents_CreateAndGet(t *testing.T) {
	intents, cleanup := setupIntents(t)
	defer cleanup()

	intent, err := intents.Create("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if intent.Status != domain.IntentPending {
		t.Errorf("Expected status pending, got %s", intent.Status)
	}

	got, err := intents.Get(intent.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserEmail != "u@example.com" || got.AssetName != "song.flac" {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", got.Attempts)
	}

	if _, err := intents.Get("nope"); !errors.Is(err, ErrIntentNotFound) {
		t.Errorf("Expected ErrIntentNotFound, got: %v", err)
	}
}

func TestIntents_StatusAndAttempts(t *testing.T) {
	intents, cleanup := setupIntents(t)
	defer cleanup()

	intent, err := intents.Create("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := intents.SetStatus(intent.ID, domain.IntentDownloading, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := intents.SetLocalPath(intent.ID, "/music/song.flac"); err != nil {
		t.Fatalf("SetLocalPath failed: %v", err)
	}

	n, err := intents.IncrementAttempts(intent.ID)
	if err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 attempt, got %d", n)
	}

	got, err := intents.Get(intent.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.IntentDownloading {
		t.Errorf("Expected downloading, got %s", got.Status)
	}
	if got.LocalPath != "/music/song.flac" {
		t.Errorf("Expected local path to persist, got %q", got.LocalPath)
	}
	if got.Attempts != 1 {
		t.Errorf("Expected 1 attempt persisted, got %d", got.Attempts)
	}
}

func TestIntents_ActiveExcludesTerminal(t *testing.T) {
	intents, cleanup := setupIntents(t)
	defer cleanup()

	a, _ := intents.Create("u@example.com", "a.flac")
	b, _ := intents.Create("u@example.com", "b.flac")
	c, _ := intents.Create("u@example.com", "c.flac")

	if err := intents.SetStatus(b.ID, domain.IntentDone, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := intents.SetStatus(c.ID, domain.IntentFailed, "boom"); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	active, err := intents.Active()
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("Expected only the pending intent to be active, got %+v", active)
	}

	all, err := intents.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 intents listed, got %d", len(all))
	}
}

func TestIntents_FindActive(t *testing.T) {
	intents, cleanup := setupIntents(t)
	defer cleanup()

	done, _ := intents.Create("u@example.com", "song.flac")
	if err := intents.SetStatus(done.ID, domain.IntentDone, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	got, err := intents.FindActive("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no active intent when only a done one exists, got %+v", got)
	}

	fresh, _ := intents.Create("u@example.com", "song.flac")
	got, err = intents.FindActive("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if got == nil || got.ID != fresh.ID {
		t.Errorf("Expected the fresh pending intent, got %+v", got)
	}

	got, err = intents.FindActive("other@example.com", "song.flac")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected no intent for a different user, got %+v", got)
	}
}

func TestIntents_ResetStuck(t *testing.T) {
	intents, cleanup := setupIntents(t)
	defer cleanup()

	stuck, _ := intents.Create("u@example.com", "a.flac")
	if err := intents.SetStatus(stuck.ID, domain.IntentDownloading, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	recording, _ := intents.Create("u@example.com", "b.flac")
	if err := intents.SetStatus(recording.ID, domain.IntentRecording, ""); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	n, err := intents.ResetStuck()
	if err != nil {
		t.Fatalf("ResetStuck failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 stuck intent reset, got %d", n)
	}

	got, _ := intents.Get(stuck.ID)
	if got.Status != domain.IntentPending {
		t.Errorf("Expected downloading intent back to pending, got %s", got.Status)
	}

	// Recording intents keep their place; only the remote write remains.
	got, _ = intents.Get(recording.ID)
	if got.Status != domain.IntentRecording {
		t.Errorf("Expected recording intent untouched, got %s", got.Status)
	}
}
