// Package storage defines the contract for the cloud storage that re-hosts
// slide decks. Implementations exist for Google Drive, Google Cloud Storage
// and an in-memory backend used for dry runs and tests.
package storage

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
)

// ErrNotFound is returned when a file id is unknown to the backend.
var ErrNotFound = errors.New("storage: file not found")

// Folder is an upload destination visible to the configured credentials.
type Folder struct {
	ID   string
	Name string
}

// File describes an uploaded object.
type File struct {
	ID         string
	Name       string
	WebViewURL string
}

// FileMetadata carries backend-reported attributes of an uploaded file.
type FileMetadata struct {
	MimeType      string
	ThumbnailLink string
}

// Uploader is implemented by every storage backend.
type Uploader interface {
	// RootFolders lists folders the credentials can write into. The list is
	// derived on every call; callers must not cache folder ids.
	RootFolders(ctx context.Context) ([]Folder, error)
	// Upload stores the local file under parentID.
	Upload(ctx context.Context, localPath, parentID string) (File, error)
	// SetPublicRead grants anonymous read access to the file.
	SetPublicRead(ctx context.Context, id string) error
	// Metadata returns the backend's view of the file.
	Metadata(ctx context.Context, id string) (FileMetadata, error)
}

// ContentType guesses the MIME type of a local file from its extension.
func ContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
