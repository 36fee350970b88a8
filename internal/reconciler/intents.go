package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/metastore"
)

// ErrIntentNotFound is returned when no intent matches the given id.
var ErrIntentNotFound = errors.New("download intent not found")

// Intents persists download sagas in the metastore so an interrupted
// download can be resumed or compensated after a restart.
type Intents struct {
	db *metastore.DB
}

// NewIntents creates the intents table if needed and returns the store.
func NewIntents(db *metastore.DB) (*Intents, error) {
	err := db.CreateTable(constants.IntentsTable, []metastore.Column{
		{Name: "Id", Type: "TEXT PRIMARY KEY"},
		{Name: "UserEmail", Type: "TEXT"},
		{Name: "AssetName", Type: "TEXT"},
		{Name: "Status", Type: "TEXT"},
		{Name: "Attempts", Type: "INTEGER"},
		{Name: "LastError", Type: "TEXT"},
		{Name: "LocalPath", Type: "TEXT"},
		{Name: "CreatedAt", Type: "TEXT"},
		{Name: "UpdatedAt", Type: "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure intents table: %w", err)
	}
	return &Intents{db: db}, nil
}

// Create persists a fresh pending intent for one (user, asset) download.
func (s *Intents) Create(userEmail, assetName string) (*domain.DownloadIntent, error) {
	now := time.Now().UTC()
	intent := &domain.DownloadIntent{
		ID:        uuid.New().String(),
		UserEmail: userEmail,
		AssetName: assetName,
		Status:    domain.IntentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.Insert(constants.IntentsTable, metastore.Record{
		"Id":        intent.ID,
		"UserEmail": intent.UserEmail,
		"AssetName": intent.AssetName,
		"Status":    string(intent.Status),
		"Attempts":  int64(0),
		"LastError": "",
		"LocalPath": "",
		"CreatedAt": now.Format(time.RFC3339Nano),
		"UpdatedAt": now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// Get loads one intent by id.
func (s *Intents) Get(id string) (*domain.DownloadIntent, error) {
	rows, err := s.db.Query(constants.IntentsTable, metastore.Eq("Id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return intentFromRecord(rows[0]), nil
}

// SetStatus moves an intent to a new status, recording the error message for
// failed transitions and the local path once the file landed.
func (s *Intents) SetStatus(id string, status domain.IntentStatus, lastError string) error {
	_, err := s.db.Update(constants.IntentsTable, metastore.Record{
		"Status":    string(status),
		"LastError": lastError,
		"UpdatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, metastore.Eq("Id", id))
	return err
}

// SetLocalPath records where the downloaded file ended up.
func (s *Intents) SetLocalPath(id, path string) error {
	_, err := s.db.Update(constants.IntentsTable, metastore.Record{
		"LocalPath": path,
		"UpdatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, metastore.Eq("Id", id))
	return err
}

// IncrementAttempts bumps the retry counter and returns the new value.
func (s *Intents) IncrementAttempts(id string) (int64, error) {
	intent, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	attempts := intent.Attempts + 1
	_, err = s.db.Update(constants.IntentsTable, metastore.Record{
		"Attempts":  attempts,
		"UpdatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, metastore.Eq("Id", id))
	return attempts, err
}

// Active returns every intent that has not reached a terminal state.
func (s *Intents) Active() ([]*domain.DownloadIntent, error) {
	rows, err := s.db.Query(constants.IntentsTable)
	if err != nil {
		return nil, err
	}
	var out []*domain.DownloadIntent
	for _, rec := range rows {
		intent := intentFromRecord(rec)
		if !intent.Status.Terminal() {
			out = append(out, intent)
		}
	}
	return out, nil
}

// List returns every intent.
func (s *Intents) List() ([]*domain.DownloadIntent, error) {
	rows, err := s.db.Query(constants.IntentsTable)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.DownloadIntent, 0, len(rows))
	for _, rec := range rows {
		out = append(out, intentFromRecord(rec))
	}
	return out, nil
}

// FindActive returns the non-terminal intent for (user, asset), if any.
// Used to avoid stacking duplicate downloads of the same asset.
func (s *Intents) FindActive(userEmail, assetName string) (*domain.DownloadIntent, error) {
	rows, err := s.db.Query(constants.IntentsTable,
		metastore.Eq("UserEmail", userEmail),
		metastore.Eq("AssetName", assetName))
	if err != nil {
		return nil, err
	}
	for _, rec := range rows {
		intent := intentFromRecord(rec)
		if !intent.Status.Terminal() {
			return intent, nil
		}
	}
	return nil, nil
}

// ResetStuck moves intents left mid-transfer by a crash back to pending so
// the worker picks them up again. Recording intents stay put; their file is
// already on disk and only the remote write needs redriving.
func (s *Intents) ResetStuck() (int64, error) {
	return s.db.Update(constants.IntentsTable, metastore.Record{
		"Status":    string(domain.IntentPending),
		"UpdatedAt": time.Now().UTC().Format(time.RFC3339Nano),
	}, metastore.Eq("Status", string(domain.IntentDownloading)))
}

func intentFromRecord(rec metastore.Record) *domain.DownloadIntent {
	createdAt, _ := time.Parse(time.RFC3339Nano, rec.String("CreatedAt"))
	updatedAt, _ := time.Parse(time.RFC3339Nano, rec.String("UpdatedAt"))
	return &domain.DownloadIntent{
		ID:        rec.String("Id"),
		UserEmail: rec.String("UserEmail"),
		AssetName: rec.String("AssetName"),
		Status:    domain.IntentStatus(rec.String("Status")),
		Attempts:  rec.Int("Attempts"),
		LastError: rec.String("LastError"),
		LocalPath: rec.String("LocalPath"),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}
