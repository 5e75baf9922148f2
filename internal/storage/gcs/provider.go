// Package gcs re-hosts slide decks in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/storage"
)

const publicHost = "https://storage.googleapis.com"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket string
	// Prefix is the object prefix acting as the single upload folder.
	Prefix string
}

// Provider implements storage.Uploader on top of a GCS bucket.
type Provider struct {
	client *gcs.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a GCS-backed uploader.
func New(client *gcs.Client, cfg Config, logger *zap.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Provider{client: client, cfg: cfg, logger: logger}, nil
}

// RootFolders verifies the bucket is reachable and returns the configured
// prefix as the only folder.
func (p *Provider) RootFolders(ctx context.Context) ([]storage.Folder, error) {
	attrs, err := p.client.Bucket(p.cfg.Bucket).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("bucket attrs: %w", err)
	}
	return []storage.Folder{{ID: p.cfg.Prefix, Name: attrs.Name}}, nil
}

// Upload copies the local file into the bucket under parentID.
func (p *Provider) Upload(ctx context.Context, localPath, parentID string) (storage.File, error) {
	f, err := os.Open(localPath) // #nosec G304 -- staging path is built by the caller
	if err != nil {
		return storage.File{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(localPath)
	object := name
	if parentID != "" {
		object = path.Join(parentID, name)
	}
	writer := p.client.Bucket(p.cfg.Bucket).Object(object).NewWriter(ctx)
	writer.ContentType = storage.ContentType(localPath)
	if _, err := io.Copy(writer, f); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return storage.File{}, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return storage.File{}, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return storage.File{}, fmt.Errorf("close writer: %w", err)
	}
	p.logger.Debug("object uploaded", zap.String("bucket", p.cfg.Bucket), zap.String("object", object))
	return storage.File{
		ID:         object,
		Name:       name,
		WebViewURL: fmt.Sprintf("%s/%s/%s", publicHost, p.cfg.Bucket, object),
	}, nil
}

// SetPublicRead adds an allUsers reader ACL entry to the object.
func (p *Provider) SetPublicRead(ctx context.Context, id string) error {
	acl := p.client.Bucket(p.cfg.Bucket).Object(id).ACL()
	if err := acl.Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
		return fmt.Errorf("set public acl on %s: %w", id, err)
	}
	return nil
}

// Metadata reports the object's content type. GCS has no thumbnail concept.
func (p *Provider) Metadata(ctx context.Context, id string) (storage.FileMetadata, error) {
	attrs, err := p.client.Bucket(p.cfg.Bucket).Object(id).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return storage.FileMetadata{}, storage.ErrNotFound
		}
		return storage.FileMetadata{}, fmt.Errorf("object attrs: %w", err)
	}
	return storage.FileMetadata{MimeType: attrs.ContentType}, nil
}
