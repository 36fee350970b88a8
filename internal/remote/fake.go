package remote

import (
	"context"
	"sync"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
)

// FakeRecords is an in-memory Records implementation for tests. Error fields
// let a test force one operation to fail.
type FakeRecords struct {
	mu   sync.Mutex
	Docs []domain.AssetRecord

	QueryErr  error
	AddErr    error
	UpdateErr error
	DeleteErr error
}

func NewFakeRecords() *FakeRecords {
	return &FakeRecords{}
}

func (f *FakeRecords) Query(ctx context.Context, filters map[string]string) ([]domain.AssetRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}

	var out []domain.AssetRecord
	for _, doc := range f.Docs {
		if matches(doc, filters) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *FakeRecords) Add(ctx context.Context, rec domain.AssetRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return f.AddErr
	}
	f.Docs = append(f.Docs, rec)
	return nil
}

func (f *FakeRecords) Update(ctx context.Context, userEmail, musicName string, updates map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}

	for i := range f.Docs {
		if f.Docs[i].UserEmail != userEmail || f.Docs[i].MusicName != musicName {
			continue
		}
		if fav, ok := updates[constants.FieldIsFavorite].(bool); ok {
			f.Docs[i].IsFavorite = &fav
		}
		if name, ok := updates[constants.FieldMusicName].(string); ok {
			f.Docs[i].MusicName = name
		}
		if local, ok := updates[constants.FieldLocalPath].(string); ok {
			f.Docs[i].LocalPath = local
		}
		return nil
	}
	return nil
}

func (f *FakeRecords) BatchDelete(ctx context.Context, userEmail, musicName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return 0, f.DeleteErr
	}

	kept := f.Docs[:0]
	deleted := 0
	for _, doc := range f.Docs {
		if doc.UserEmail == userEmail && doc.MusicName == musicName {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	f.Docs = kept
	return deleted, nil
}

func matches(doc domain.AssetRecord, filters map[string]string) bool {
	for k, v := range filters {
		switch k {
		case constants.FieldUserEmail:
			if doc.UserEmail != v {
				return false
			}
		case constants.FieldMusicName:
			if doc.MusicName != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// FakeBlobs is an in-memory Blobs implementation for tests.
type FakeBlobs struct {
	mu    sync.Mutex
	Names []string
	URLs  map[string]string

	ListErr error
	URLErr  error
}

func NewFakeBlobs() *FakeBlobs {
	return &FakeBlobs{URLs: map[string]string{}}
}

func (f *FakeBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]string(nil), f.Names...), nil
}

func (f *FakeBlobs) DownloadURL(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.URLErr != nil {
		return "", f.URLErr
	}
	u, ok := f.URLs[name]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	return u, nil
}

// NotFoundError reports a blob missing from the namespace.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "blob not found: " + e.Name
}
