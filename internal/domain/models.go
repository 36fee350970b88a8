package domain

import (
	"time"
)

// User is the local mirror of an account. Rows are created at sign-up and
// read at login; the password and birthday are stored only as salted hashes.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	BirthdayHash string `json:"-"`
}

// AssetRecord is one document in the remote record collection. Identity is
// the (UserEmail, MusicName) pair; there is no content-addressed id.
type AssetRecord struct {
	UserEmail    string    `json:"userEmail"`
	MusicName    string    `json:"musicName"`
	FilePath     string    `json:"filePath"`
	DownloadDate time.Time `json:"downloadDate"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	IsFavorite   *bool     `json:"isFavorite,omitempty"`
	LocalPath    string    `json:"localPath,omitempty"`
}

// LibraryEntry is one row of the local Musics table.
type LibraryEntry struct {
	MusicName string `json:"music_name"`
	Author    string `json:"author"`
}

// IntentStatus tracks a download saga through its stages.
type IntentStatus string

const (
	IntentPending     IntentStatus = "pending"
	IntentDownloading IntentStatus = "downloading"
	IntentRecording   IntentStatus = "recording"
	IntentDone        IntentStatus = "done"
	IntentFailed      IntentStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s IntentStatus) Terminal() bool {
	return s == IntentDone || s == IntentFailed
}

// DownloadIntent is the persisted record of one download saga. It survives
// restarts so a crash between "file on disk" and "record appended remotely"
// can be resumed or compensated instead of silently diverging.
type DownloadIntent struct {
	ID        string       `json:"id"`
	UserEmail string       `json:"user_email"`
	AssetName string       `json:"asset_name"`
	Status    IntentStatus `json:"status"`
	Attempts  int64        `json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	LocalPath string       `json:"local_path,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// AssetState classifies one asset from the reconciler's point of view.
type AssetState struct {
	Name       string `json:"name"`
	Recorded   bool   `json:"recorded"`    // present in the remote record collection
	OnDisk     bool   `json:"on_disk"`     // present in the local music directory
	IsFavorite bool   `json:"is_favorite"`
}
