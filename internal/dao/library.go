package dao

import (
	"fmt"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/metastore"
)

// Library persists the local Musics table: one row per known piece of music
// with its author, mirrored from completed downloads.
type Library struct {
	db *metastore.DB
}

// NewLibrary creates the Musics table if needed and returns the DAO.
func NewLibrary(db *metastore.DB) (*Library, error) {
	err := db.CreateTable(constants.LibraryTable, []metastore.Column{
		{Name: "MusicName", Type: "TEXT"},
		{Name: "Author", Type: "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure library table: %w", err)
	}
	return &Library{db: db}, nil
}

// Insert adds one entry.
func (l *Library) Insert(name, author string) error {
	return l.db.Insert(constants.LibraryTable, metastore.Record{
		"MusicName": name,
		"Author":    author,
	})
}

// Names returns every known music name in scan order.
func (l *Library) Names() ([]string, error) {
	rows, err := l.db.Query(constants.LibraryTable)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, rec := range rows {
		if name := rec.String("MusicName"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Entries returns every row as a domain entry.
func (l *Library) Entries() ([]domain.LibraryEntry, error) {
	rows, err := l.db.Query(constants.LibraryTable)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LibraryEntry, 0, len(rows))
	for _, rec := range rows {
		entries = append(entries, domain.LibraryEntry{
			MusicName: rec.String("MusicName"),
			Author:    rec.String("Author"),
		})
	}
	return entries, nil
}

// Remove deletes every entry with the given name and returns how many rows
// went away.
func (l *Library) Remove(name string) (int64, error) {
	return l.db.Delete(constants.LibraryTable, metastore.Eq("MusicName", name))
}
