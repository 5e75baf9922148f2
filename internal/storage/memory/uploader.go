// Package memory keeps uploaded files in-memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/talkmigrate/internal/storage"
)

// DefaultViewURL mimics Drive's share link layout.
const DefaultViewURL = "https://drive.google.com/file/d/%s/view"

// Object is a stored upload.
type Object struct {
	Parent string
	Name   string
	Data   []byte
	Public bool
}

// Uploader implements storage.Uploader against a map.
type Uploader struct {
	mu      sync.RWMutex
	folders []storage.Folder
	viewURL string
	objects map[string]*Object
	seq     int
}

// New creates an uploader exposing the given folders. viewURL is a format
// string receiving the file id; empty selects DefaultViewURL.
func New(viewURL string, folders ...storage.Folder) *Uploader {
	if viewURL == "" {
		viewURL = DefaultViewURL
	}
	return &Uploader{
		folders: append([]storage.Folder(nil), folders...),
		viewURL: viewURL,
		objects: make(map[string]*Object),
	}
}

// RootFolders returns the configured folders.
func (u *Uploader) RootFolders(_ context.Context) ([]storage.Folder, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]storage.Folder(nil), u.folders...), nil
}

// Upload reads the local file into memory.
func (u *Uploader) Upload(_ context.Context, localPath, parentID string) (storage.File, error) {
	data, err := os.ReadFile(localPath) // #nosec G304 -- staging path is built by the caller
	if err != nil {
		return storage.File{}, fmt.Errorf("read %s: %w", localPath, err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++
	id := fmt.Sprintf("mem-%d", u.seq)
	name := filepath.Base(localPath)
	u.objects[id] = &Object{Parent: parentID, Name: name, Data: data}
	return storage.File{ID: id, Name: name, WebViewURL: fmt.Sprintf(u.viewURL, id)}, nil
}

// SetPublicRead marks the object public.
func (u *Uploader) SetPublicRead(_ context.Context, id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	obj, ok := u.objects[id]
	if !ok {
		return storage.ErrNotFound
	}
	obj.Public = true
	return nil
}

// Metadata reports the content type inferred from the stored name.
func (u *Uploader) Metadata(_ context.Context, id string) (storage.FileMetadata, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	obj, ok := u.objects[id]
	if !ok {
		return storage.FileMetadata{}, storage.ErrNotFound
	}
	return storage.FileMetadata{MimeType: storage.ContentType(obj.Name)}, nil
}

// Object returns a copy of the stored object.
func (u *Uploader) Object(id string) (Object, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	obj, ok := u.objects[id]
	if !ok {
		return Object{}, false
	}
	cp := *obj
	cp.Data = append([]byte(nil), obj.Data...)
	return cp, true
}

// Len reports how many objects were uploaded.
func (u *Uploader) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.objects)
}
