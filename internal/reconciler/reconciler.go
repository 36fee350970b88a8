// Package reconciler keeps the three views of "what music the user owns"
// consistent: files in the local music directory, documents in the remote
// record collection, and blobs in the remote namespace. The record
// collection is the source of truth; local disk is a cache validated against
// it, and downloads run as persisted sagas with compensation on exhausted
// retries.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/musicvault/musicvault/internal/cache"
	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/dao"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/filesystem"
	"github.com/musicvault/musicvault/internal/httpclient"
	"github.com/musicvault/musicvault/internal/logger"
	"github.com/musicvault/musicvault/internal/remote"
	"github.com/musicvault/musicvault/internal/tagging"
)

// ErrDuplicateRecord reports a remote record that already exists for the
// (user, asset) pair. Identity in the collection is only that pair, so the
// reconciler refuses to stack a second copy.
var ErrDuplicateRecord = errors.New("remote record already exists")

// Reconciler drives downloads and keeps local and remote state aligned.
type Reconciler struct {
	musicDir string
	records  remote.Records
	blobs    remote.Blobs
	client   *httpclient.Client
	intents  *Intents
	library  *dao.Library
	urls     *cache.URLCache
	log      *logger.Logger

	mu        sync.Mutex
	available []string
	progress  float64
	lastError string
}

func New(musicDir string, records remote.Records, blobs remote.Blobs, client *httpclient.Client,
	intents *Intents, library *dao.Library, urls *cache.URLCache, log *logger.Logger) *Reconciler {
	return &Reconciler{
		musicDir: musicDir,
		records:  records,
		blobs:    blobs,
		client:   client,
		intents:  intents,
		library:  library,
		urls:     urls,
		log:      log.WithComponent("reconciler"),
	}
}

// MusicDir returns the local directory downloads land in.
func (r *Reconciler) MusicDir() string {
	return r.musicDir
}

// Intents exposes the intent store for the worker and the API.
func (r *Reconciler) Intents() *Intents {
	return r.intents
}

// RefreshAvailable lists the blob namespace and replaces the available list
// wholesale. On failure the previous list stays and lastError is set.
func (r *Reconciler) RefreshAvailable(ctx context.Context) ([]string, error) {
	names, err := r.blobs.List(ctx, constants.BlobNamespace)
	if err != nil {
		r.setLastError(fmt.Sprintf("listing remote music: %v", err))
		return nil, err
	}

	r.mu.Lock()
	r.available = names
	r.mu.Unlock()
	return names, nil
}

// Available returns the last refreshed list of remote asset names.
func (r *Reconciler) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.available...)
}

// ListLocal enumerates the local music directory. This is cache inspection,
// not ownership truth; RefreshDownloaded is the authoritative view.
func (r *Reconciler) ListLocal() ([]string, error) {
	return filesystem.ListNames(r.musicDir)
}

// RefreshDownloaded queries the remote record collection for the user and
// validates each record against local disk. Records whose file is missing
// locally get a heal intent scheduled so the worker re-downloads them.
func (r *Reconciler) RefreshDownloaded(ctx context.Context, userEmail string) ([]domain.AssetState, error) {
	docs, err := r.records.Query(ctx, map[string]string{constants.FieldUserEmail: userEmail})
	if err != nil {
		r.setLastError(fmt.Sprintf("loading download records: %v", err))
		return nil, err
	}

	states := make([]domain.AssetState, 0, len(docs))
	for _, doc := range docs {
		state := domain.AssetState{
			Name:     doc.MusicName,
			Recorded: true,
			OnDisk:   filesystem.Exists(filepath.Join(r.musicDir, filesystem.Sanitize(doc.MusicName))),
		}
		if doc.IsFavorite != nil {
			state.IsFavorite = *doc.IsFavorite
		}

		if !state.OnDisk {
			if _, err := r.Enqueue(userEmail, doc.MusicName); err != nil {
				r.log.Warn("failed to schedule heal download", "asset", doc.MusicName, "error", err)
			} else {
				r.log.Info("scheduled re-download of missing file", "asset", doc.MusicName)
			}
		}
		states = append(states, state)
	}
	return states, nil
}

// Enqueue persists a pending download intent for the asset, reusing any
// active intent for the same (user, asset) pair.
func (r *Reconciler) Enqueue(userEmail, assetName string) (*domain.DownloadIntent, error) {
	existing, err := r.intents.FindActive(userEmail, assetName)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing intent: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	return r.intents.Create(userEmail, assetName)
}

// Run drives one intent through its saga: resolve URL, stream to disk,
// record metadata remotely. Where it resumes depends on how far the intent
// got before.
func (r *Reconciler) Run(ctx context.Context, intent *domain.DownloadIntent) error {
	log := r.log.WithIntent(intent.ID, intent.AssetName)

	switch intent.Status {
	case domain.IntentPending, domain.IntentDownloading:
		if err := r.transfer(ctx, intent, log); err != nil {
			return err
		}
		return r.record(ctx, intent, log)
	case domain.IntentRecording:
		// File already on disk from a previous attempt.
		return r.record(ctx, intent, log)
	case domain.IntentDone:
		return nil
	default:
		return fmt.Errorf("intent %s is %s and cannot run", intent.ID, intent.Status)
	}
}

// transfer streams the blob to the local music directory.
func (r *Reconciler) transfer(ctx context.Context, intent *domain.DownloadIntent, log *logger.Logger) error {
	if err := r.intents.SetStatus(intent.ID, domain.IntentDownloading, ""); err != nil {
		return err
	}
	intent.Status = domain.IntentDownloading
	r.setProgress(0)

	url, err := r.resolveURL(ctx, intent.AssetName)
	if err != nil {
		return r.transferFailed(intent, fmt.Errorf("resolving download URL: %w", err))
	}

	resp, err := r.client.Get(ctx, url)
	if err != nil {
		r.urls.Remove(intent.AssetName)
		return r.transferFailed(intent, fmt.Errorf("fetching %s: %w", intent.AssetName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		r.urls.Remove(intent.AssetName)
		return r.transferFailed(intent, fmt.Errorf("fetching %s: status %d", intent.AssetName, resp.StatusCode))
	}

	total := resp.ContentLength
	path, written, err := filesystem.WriteStream(r.musicDir, intent.AssetName, resp.Body, total, func(written, total int64) {
		if total > 0 {
			r.setProgress(float64(written) / float64(total))
		}
	})
	if err != nil {
		return r.transferFailed(intent, fmt.Errorf("writing %s: %w", intent.AssetName, err))
	}
	r.setProgress(1)

	if err := r.intents.SetLocalPath(intent.ID, path); err != nil {
		return err
	}
	if err := r.intents.SetStatus(intent.ID, domain.IntentRecording, ""); err != nil {
		return err
	}
	intent.LocalPath = path
	intent.Status = domain.IntentRecording

	log.Info("download complete", "size", humanize.Bytes(uint64(written)), "path", path)
	return nil
}

// record appends the remote metadata record and mirrors the asset into the
// local library. On remote failure the intent stays in recording until the
// retry budget runs out, then the local file is removed (compensation).
func (r *Reconciler) record(ctx context.Context, intent *domain.DownloadIntent, log *logger.Logger) error {
	rec, err := r.buildRecord(intent)
	if err != nil {
		return r.recordFailed(intent, log, err)
	}

	existing, err := r.records.Query(ctx, map[string]string{
		constants.FieldUserEmail: intent.UserEmail,
		constants.FieldMusicName: intent.AssetName,
	})
	if err != nil {
		return r.recordFailed(intent, log, err)
	}

	if len(existing) > 0 {
		log.Info("remote record already present, not duplicating")
	} else if err := r.records.Add(ctx, rec); err != nil {
		return r.recordFailed(intent, log, err)
	}

	r.mirrorToLibrary(intent.AssetName, log)

	if err := r.intents.SetStatus(intent.ID, domain.IntentDone, ""); err != nil {
		return err
	}
	intent.Status = domain.IntentDone
	log.Info("metadata recorded")
	return nil
}

func (r *Reconciler) buildRecord(intent *domain.DownloadIntent) (domain.AssetRecord, error) {
	rec := domain.AssetRecord{
		UserEmail:    intent.UserEmail,
		MusicName:    intent.AssetName,
		FilePath:     constants.BlobNamespace + intent.AssetName,
		DownloadDate: time.Now().UTC(),
		LocalPath:    intent.LocalPath,
	}

	probe, err := tagging.ProbeFile(intent.LocalPath)
	if err != nil {
		// A file we cannot parse is still a valid download.
		rec.ContentType = constants.MimeTypeBinary
	} else {
		rec.ContentType = probe.ContentType
	}

	info, err := filesystem.Stat(intent.LocalPath)
	if err != nil {
		return rec, fmt.Errorf("stat %s: %w", intent.LocalPath, err)
	}
	rec.Size = info.Size()
	return rec, nil
}

// mirrorToLibrary inserts the Musics row once per asset name.
func (r *Reconciler) mirrorToLibrary(assetName string, log *logger.Logger) {
	names, err := r.library.Names()
	if err == nil {
		for _, n := range names {
			if n == assetName {
				return
			}
		}
	}

	author := ""
	if probe, err := tagging.ProbeFile(filepath.Join(r.musicDir, filesystem.Sanitize(assetName))); err == nil {
		author = probe.Artist
	}
	if err := r.library.Insert(assetName, author); err != nil {
		log.Warn("failed to mirror asset into library", "error", err)
	}
}

// Delete removes the user's record remotely and the file locally. The two
// branches are independent; both are attempted and their failures reported
// together. The remote blob itself stays: it is the shared catalog.
func (r *Reconciler) Delete(ctx context.Context, userEmail, assetName string) error {
	var errs []error

	if _, err := r.records.BatchDelete(ctx, userEmail, assetName); err != nil {
		errs = append(errs, fmt.Errorf("remote delete: %w", err))
	}

	localPath := filepath.Join(r.musicDir, filesystem.Sanitize(assetName))
	if err := filesystem.Remove(localPath); err != nil {
		errs = append(errs, fmt.Errorf("local delete: %w", err))
	}

	if _, err := r.library.Remove(assetName); err != nil {
		errs = append(errs, fmt.Errorf("library delete: %w", err))
	}
	r.urls.Remove(assetName)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		r.setLastError(fmt.Sprintf("deleting %s: %v", assetName, err))
		return err
	}

	r.log.Info("asset deleted", "asset", assetName, "user", userEmail)
	return nil
}

// SetFavorite flips the favorite flag on the user's remote record.
func (r *Reconciler) SetFavorite(ctx context.Context, userEmail, assetName string, favorite bool) error {
	return r.records.Update(ctx, userEmail, assetName, map[string]any{
		constants.FieldIsFavorite: favorite,
	})
}

// Rename updates the display name on the user's remote record. Local files
// keep their original name; the record is authoritative.
func (r *Reconciler) Rename(ctx context.Context, userEmail, assetName, newName string) error {
	return r.records.Update(ctx, userEmail, assetName, map[string]any{
		constants.FieldMusicName: newName,
	})
}

// Progress returns the fractional progress of the most recent transfer.
func (r *Reconciler) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// LastError returns the most recent human-readable failure, or "".
func (r *Reconciler) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

func (r *Reconciler) resolveURL(ctx context.Context, assetName string) (string, error) {
	if url, ok := r.urls.Get(assetName); ok {
		return url, nil
	}
	url, err := r.blobs.DownloadURL(ctx, constants.BlobNamespace+assetName)
	if err != nil {
		return "", err
	}
	r.urls.Set(assetName, url)
	return url, nil
}

// transferFailed applies the retry budget to a failed transfer: back to
// pending while attempts remain, terminal failed after that.
func (r *Reconciler) transferFailed(intent *domain.DownloadIntent, cause error) error {
	r.setLastError(cause.Error())

	attempts, err := r.intents.IncrementAttempts(intent.ID)
	if err != nil {
		return errors.Join(cause, err)
	}

	status := domain.IntentPending
	if attempts >= constants.MaxIntentAttempts {
		status = domain.IntentFailed
	}
	if err := r.intents.SetStatus(intent.ID, status, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	intent.Status = status
	return cause
}

// recordFailed handles a failed metadata write. While attempts remain the
// intent stays in recording for the worker to redrive; once exhausted the
// local file is removed so disk and records do not silently diverge.
func (r *Reconciler) recordFailed(intent *domain.DownloadIntent, log *logger.Logger, cause error) error {
	r.setLastError(fmt.Sprintf("recording %s: %v", intent.AssetName, cause))

	attempts, err := r.intents.IncrementAttempts(intent.ID)
	if err != nil {
		return errors.Join(cause, err)
	}

	if attempts < constants.MaxIntentAttempts {
		if err := r.intents.SetStatus(intent.ID, domain.IntentRecording, cause.Error()); err != nil {
			return errors.Join(cause, err)
		}
		return cause
	}

	log.Warn("metadata write retries exhausted, removing local file", "error", cause)
	if intent.LocalPath != "" {
		if err := filesystem.Remove(intent.LocalPath); err != nil {
			log.Warn("compensation failed", "path", intent.LocalPath, "error", err)
		}
	}
	if err := r.intents.SetStatus(intent.ID, domain.IntentFailed, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	intent.Status = domain.IntentFailed
	return cause
}

func (r *Reconciler) setProgress(p float64) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
}

func (r *Reconciler) setLastError(msg string) {
	r.mu.Lock()
	r.lastError = msg
	r.mu.Unlock()
}
