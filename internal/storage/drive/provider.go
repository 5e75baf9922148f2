// Package drive re-hosts slide decks in Google Drive folders shared with the
// service account.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/JakeFAU/talkmigrate/internal/storage"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"
	// Folders a service account can see are either owned by it or shared with it.
	rootFolderQuery = "mimeType='" + folderMimeType + "' and trashed=false and ('root' in parents or sharedWithMe)"
)

// Provider implements storage.Uploader with the Drive v3 API.
type Provider struct {
	svc    *drivev3.Service
	logger *zap.Logger
}

// New builds a Drive service from the supplied client options, typically a
// credentials file.
func New(ctx context.Context, logger *zap.Logger, opts ...option.ClientOption) (*Provider, error) {
	opts = append([]option.ClientOption{option.WithScopes(drivev3.DriveScope)}, opts...)
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return NewWithService(svc, logger), nil
}

// NewWithService wraps an existing Drive service.
func NewWithService(svc *drivev3.Service, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{svc: svc, logger: logger}
}

// RootFolders lists top-level folders visible to the credentials.
func (p *Provider) RootFolders(ctx context.Context) ([]storage.Folder, error) {
	var folders []storage.Folder
	err := p.svc.Files.List().
		Q(rootFolderQuery).
		Fields("nextPageToken, files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(list *drivev3.FileList) error {
			for _, f := range list.Files {
				folders = append(folders, storage.Folder{ID: f.Id, Name: f.Name})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list drive folders: %w", err)
	}
	p.logger.Debug("drive folders listed", zap.Int("count", len(folders)))
	return folders, nil
}

// Upload creates a new Drive file under parentID.
func (p *Provider) Upload(ctx context.Context, localPath, parentID string) (storage.File, error) {
	f, err := os.Open(localPath) // #nosec G304 -- staging path is built by the caller
	if err != nil {
		return storage.File{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	contentType := storage.ContentType(localPath)
	meta := &drivev3.File{
		Name:     filepath.Base(localPath),
		MimeType: contentType,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := p.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(contentType)).
		Fields("id, name, webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return storage.File{}, fmt.Errorf("upload to drive: %w", err)
	}
	p.logger.Debug("drive file created", zap.String("id", created.Id), zap.String("name", created.Name))
	return storage.File{ID: created.Id, Name: created.Name, WebViewURL: created.WebViewLink}, nil
}

// SetPublicRead grants "anyone with the link" reader access.
func (p *Provider) SetPublicRead(ctx context.Context, id string) error {
	perm := &drivev3.Permission{Type: "anyone", Role: "reader"}
	if _, err := p.svc.Permissions.Create(id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("share drive file %s: %w", id, err)
	}
	return nil
}

// Metadata returns the MIME type and thumbnail link Drive reports.
func (p *Provider) Metadata(ctx context.Context, id string) (storage.FileMetadata, error) {
	f, err := p.svc.Files.Get(id).
		Fields("mimeType, thumbnailLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return storage.FileMetadata{}, storage.ErrNotFound
		}
		return storage.FileMetadata{}, fmt.Errorf("get drive file %s: %w", id, err)
	}
	return storage.FileMetadata{MimeType: f.MimeType, ThumbnailLink: f.ThumbnailLink}, nil
}
