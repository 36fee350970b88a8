package reconciler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/musicvault/musicvault/internal/cache"
	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/filesystem"
	"github.com/musicvault/musicvault/internal/httpclient"
	"github.com/musicvault/musicvault/internal/logger"
	"github.com/musicvault/musicvault/internal/metastore"
	"github.com/musicvault/musicvault/internal/remote"
)

type fixture struct {
	rec      *Reconciler
	records  *remote.FakeRecords
	blobs    *remote.FakeBlobs
	library  *dao.Library
	musicDir string
	server   *httptest.Server
}

// setupReconciler wires a reconciler against in-memory remotes and a file
// server standing in for resolved blob URLs.
func setupReconciler(t *testing.T) (*fixture, func()) {
	t.Helper()

	dir := t.TempDir()
	db, err := metastore.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	intents, err := NewIntents(db)
	if err != nil {
		t.Fatalf("NewIntents failed: %v", err)
	}
	library, err := dao.NewLibrary(db)
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blob/song.flac":
			_, _ = w.Write([]byte("not really flac bytes"))
		default:
			http.NotFound(w, r)
		}
	}))

	records := remote.NewFakeRecords()
	blobs := remote.NewFakeBlobs()
	blobs.URLs[constants.BlobNamespace+"song.flac"] = server.URL + "/blob/song.flac"
	blobs.URLs[constants.BlobNamespace+"missing.flac"] = server.URL + "/blob/missing.flac"

	musicDir := filepath.Join(dir, "music")
	client := httpclient.New(server.Client(), 0)
	urls := cache.NewURLCache(8, 0)
	rec := New(musicDir, records, blobs, client, intents, library, urls, logger.Default())

	f := &fixture{
		rec:      rec,
		records:  records,
		blobs:    blobs,
		library:  library,
		musicDir: musicDir,
		server:   server,
	}
	return f, func() {
		server.Close()
		db.Close()
	}
}

func TestReconciler_DownloadSaga(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if intent.Status != domain.IntentDone {
		t.Errorf("Expected intent done, got %s", intent.Status)
	}
	if !filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected downloaded file on disk")
	}
	if len(f.records.Docs) != 1 {
		t.Fatalf("Expected 1 remote record, got %d", len(f.records.Docs))
	}
	doc := f.records.Docs[0]
	if doc.UserEmail != "u@example.com" || doc.MusicName != "song.flac" {
		t.Errorf("Unexpected record identity: %+v", doc)
	}
	if doc.FilePath != constants.BlobNamespace+"song.flac" {
		t.Errorf("Expected namespaced file path, got %q", doc.FilePath)
	}
	if doc.Size == 0 {
		t.Error("Expected record to carry the downloaded size")
	}

	names, err := f.library.Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	if len(names) != 1 || names[0] != "song.flac" {
		t.Errorf("Expected library mirror of song.flac, got %v", names)
	}
	if p := f.rec.Progress(); p != 1 {
		t.Errorf("Expected progress 1 after completion, got %f", p)
	}
}

func TestReconciler_EnqueueReusesActiveIntent(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	first, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Expected same intent for duplicate enqueue, got %s vs %s", first.ID, second.ID)
	}
}

func TestReconciler_RecordFailureKeepsFile(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.records.AddErr = errors.New("record service down")

	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := f.rec.Run(ctx, intent); err == nil {
		t.Fatal("Expected Run to fail while record service is down")
	}

	// File stays for the redrive; the intent parks in recording.
	if intent.Status != domain.IntentRecording {
		t.Errorf("Expected intent in recording, got %s", intent.Status)
	}
	if !filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected file kept on disk while retries remain")
	}

	// The record view does not claim the asset until the record lands.
	states, err := f.rec.RefreshDownloaded(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("RefreshDownloaded failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("Expected no downloaded assets without a record, got %+v", states)
	}

	// Remote recovers; a redrive from recording finishes without a second
	// transfer.
	f.records.AddErr = nil
	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Redrive failed: %v", err)
	}
	if intent.Status != domain.IntentDone {
		t.Errorf("Expected intent done after redrive, got %s", intent.Status)
	}
	if len(f.records.Docs) != 1 {
		t.Errorf("Expected 1 record after redrive, got %d", len(f.records.Docs))
	}
}

func TestReconciler_RecordRetriesExhaustedCompensates(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.records.AddErr = errors.New("record service down")

	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for i := 0; i < constants.MaxIntentAttempts; i++ {
		if err := f.rec.Run(ctx, intent); err == nil {
			t.Fatalf("Expected Run %d to fail", i+1)
		}
	}

	if intent.Status != domain.IntentFailed {
		t.Errorf("Expected intent failed after exhausted retries, got %s", intent.Status)
	}
	// The orphan file is removed so disk never claims what the records deny.
	if filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected local file removed after compensation")
	}
}

func TestReconciler_TransferFailureRetriesThenFails(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	intent, err := f.rec.Enqueue("u@example.com", "missing.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for i := 0; i < constants.MaxIntentAttempts; i++ {
		if err := f.rec.Run(ctx, intent); err == nil {
			t.Fatalf("Expected Run %d to fail for missing blob", i+1)
		}
		if i < constants.MaxIntentAttempts-1 && intent.Status != domain.IntentPending {
			t.Errorf("Expected intent back to pending after attempt %d, got %s", i+1, intent.Status)
		}
	}

	if intent.Status != domain.IntentFailed {
		t.Errorf("Expected intent failed, got %s", intent.Status)
	}
	if f.rec.LastError() == "" {
		t.Error("Expected last error to be recorded")
	}
}

func TestReconciler_NoDuplicateRemoteRecord(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.records.Docs = append(f.records.Docs, domain.AssetRecord{
		UserEmail: "u@example.com",
		MusicName: "song.flac",
	})

	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(f.records.Docs) != 1 {
		t.Errorf("Expected no second record for the same (user, asset), got %d", len(f.records.Docs))
	}
	if intent.Status != domain.IntentDone {
		t.Errorf("Expected intent done, got %s", intent.Status)
	}
}

func TestReconciler_RefreshDownloadedHealsMissingFiles(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	fav := true
	f.records.Docs = append(f.records.Docs,
		domain.AssetRecord{UserEmail: "u@example.com", MusicName: "song.flac", IsFavorite: &fav},
		domain.AssetRecord{UserEmail: "other@example.com", MusicName: "theirs.flac"},
	)

	states, err := f.rec.RefreshDownloaded(ctx, "u@example.com")
	if err != nil {
		t.Fatalf("RefreshDownloaded failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("Expected 1 state for the user, got %d", len(states))
	}
	if states[0].Name != "song.flac" || states[0].OnDisk || !states[0].Recorded {
		t.Errorf("Unexpected state: %+v", states[0])
	}
	if !states[0].IsFavorite {
		t.Error("Expected favorite flag carried through")
	}

	// The missing file got a heal intent scheduled.
	intent, err := f.rec.Intents().FindActive("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("FindActive failed: %v", err)
	}
	if intent == nil {
		t.Fatal("Expected heal intent for missing local file")
	}

	// Running the heal puts the file back and records nothing new.
	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Heal run failed: %v", err)
	}
	if !filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected healed file on disk")
	}
	if len(f.records.Docs) != 2 {
		t.Errorf("Expected record count unchanged by heal, got %d", len(f.records.Docs))
	}
}

func TestReconciler_RefreshAvailable(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.blobs.Names = []string{"a.flac", "b.mp3"}

	names, err := f.rec.RefreshAvailable(ctx)
	if err != nil {
		t.Fatalf("RefreshAvailable failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("Expected 2 names, got %d", len(names))
	}

	// A failed refresh keeps the previous list and surfaces the error.
	f.blobs.ListErr = errors.New("blob service down")
	if _, err := f.rec.RefreshAvailable(ctx); err == nil {
		t.Fatal("Expected refresh error")
	}
	if got := f.rec.Available(); len(got) != 2 {
		t.Errorf("Expected previous list kept on failure, got %v", got)
	}
	if f.rec.LastError() == "" {
		t.Error("Expected last error set on failure")
	}
}

func TestReconciler_Delete(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := f.rec.Delete(ctx, "u@example.com", "song.flac"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected local file removed")
	}
	if len(f.records.Docs) != 0 {
		t.Errorf("Expected remote record removed, got %d", len(f.records.Docs))
	}
	names, _ := f.library.Names()
	if len(names) != 0 {
		t.Errorf("Expected library row removed, got %v", names)
	}
}

func TestReconciler_DeleteBranchesAreIndependent(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	intent, err := f.rec.Enqueue("u@example.com", "song.flac")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := f.rec.Run(ctx, intent); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Remote delete fails; local cleanup still happens and the failure is
	// reported.
	f.records.DeleteErr = errors.New("record service down")
	err = f.rec.Delete(ctx, "u@example.com", "song.flac")
	if err == nil {
		t.Fatal("Expected delete error from remote branch")
	}
	if filesystem.Exists(filepath.Join(f.musicDir, "song.flac")) {
		t.Error("Expected local file removed despite remote failure")
	}
	names, _ := f.library.Names()
	if len(names) != 0 {
		t.Errorf("Expected library row removed despite remote failure, got %v", names)
	}
	if len(f.records.Docs) != 1 {
		t.Errorf("Expected remote record to survive the failed branch, got %d", len(f.records.Docs))
	}
}

func TestReconciler_SetFavorite(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.records.Docs = append(f.records.Docs, domain.AssetRecord{
		UserEmail: "u@example.com",
		MusicName: "song.flac",
	})

	if err := f.rec.SetFavorite(ctx, "u@example.com", "song.flac", true); err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}
	if f.records.Docs[0].IsFavorite == nil || !*f.records.Docs[0].IsFavorite {
		t.Error("Expected favorite flag set on remote record")
	}
}

func TestReconciler_Rename(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	ctx := context.Background()
	f.records.Docs = append(f.records.Docs, domain.AssetRecord{
		UserEmail: "u@example.com",
		MusicName: "song.flac",
	})

	if err := f.rec.Rename(ctx, "u@example.com", "song.flac", "renamed.flac"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if f.records.Docs[0].MusicName != "renamed.flac" {
		t.Errorf("Expected renamed record, got %q", f.records.Docs[0].MusicName)
	}
}

func TestReconciler_ListLocal(t *testing.T) {
	f, cleanup := setupReconciler(t)
	defer cleanup()

	names, err := f.rec.ListLocal()
	if err != nil {
		t.Fatalf("ListLocal failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Expected empty dir to list nothing, got %v", names)
	}

	if err := os.MkdirAll(f.musicDir, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(f.musicDir, "here.flac"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	names, err = f.rec.ListLocal()
	if err != nil {
		t.Fatalf("ListLocal failed: %v", err)
	}
	if len(names) != 1 || names[0] != "here.flac" {
		t.Errorf("Expected here.flac, got %v", names)
	}
}
