// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort         = "8080"
	DefaultDBPath       = "musicvault.db"
	DefaultMusicDir     = "music"
	DefaultRecordsURL   = "http://127.0.0.1:8000"
	DefaultBlobsURL     = "http://127.0.0.1:8000"
	DefaultConcurrency  = 2
	DefaultPollInterval = 2 * time.Second
	DefaultHTTPTimeout  = 5 * time.Minute
	DefaultRetryCount   = 3
	DefaultRetryBase    = 1 * time.Second
	DefaultURLCacheTTL  = 10 * time.Minute
	DefaultURLCacheSize = 256
)

// Remote namespaces and collections
const (
	BlobNamespace     = "music/"
	RecordsCollection = "user_musics"
)

// Record field names in the remote collection
const (
	FieldUserEmail    = "userEmail"
	FieldMusicName    = "musicName"
	FieldFilePath     = "filePath"
	FieldDownloadDate = "downloadDate"
	FieldSize         = "size"
	FieldContentType  = "contentType"
	FieldIsFavorite   = "isFavorite"
	FieldLocalPath    = "localPath"
)

// Local tables
const (
	UsersTable   = "Users"
	LibraryTable = "Musics"
	IntentsTable = "download_intents"
)

// MIME Types
const (
	MimeTypeFLAC   = "audio/flac"
	MimeTypeMP3    = "audio/mpeg"
	MimeTypeMP4    = "audio/mp4"
	MimeTypeJPEG   = "image/jpeg"
	MimeTypeBinary = "application/octet-stream"
)

// File Extensions
const (
	ExtFLAC = ".flac"
	ExtMP3  = ".mp3"
	ExtMP4  = ".mp4"
	ExtM4A  = ".m4a"
	ExtM4P  = ".m4p"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Download tuning
const (
	MaxIntentAttempts   = 3
	ProgressUpdateBytes = 256 * 1024
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"
