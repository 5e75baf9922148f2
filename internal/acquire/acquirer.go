// Package acquire re-hosts a talk's PDF deck: it downloads the file the page
// offers, uploads it to cloud storage, shares it publicly, and stores the
// platform's preview image as the talk thumbnail.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/hash/sha256"
	"github.com/JakeFAU/talkmigrate/internal/metrics"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/storage"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// Downloader saves a remote file to a local path.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string) (int64, error)
}

// Assets exposes the page probes the acquirer needs.
type Assets interface {
	PDFCandidate(page *talk.Page) string
	SlidesEmbedded(page *talk.Page) bool
	Thumbnail(page *talk.Page) string
}

// Config holds the local directories the acquirer writes to.
type Config struct {
	StagingDir   string
	ThumbnailDir string
	// ThumbnailPath is the path recorded on the talk, relative to the site.
	// The slug and extension are appended.
	ThumbnailPath string
}

// Outcome describes what was acquired. A zero Outcome means the page offers no
// PDF, which is not an error.
type Outcome struct {
	Slides        *talk.Resource
	PDFPath       string
	PDFDigest     string // SHA-256 of the downloaded deck
	ThumbnailFile string
	ThumbnailPath string
}

// Acquirer implements PDF acquisition against a storage.Uploader.
type Acquirer struct {
	cfg      Config
	assets   Assets
	download Downloader
	uploader storage.Uploader
	platform platform.Platform
	logger   *zap.Logger
}

// New wires an Acquirer.
func New(cfg Config, assets Assets, download Downloader, uploader storage.Uploader, p platform.Platform, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ThumbnailPath == "" {
		cfg.ThumbnailPath = "/assets/images/thumbnails"
	}
	return &Acquirer{
		cfg:      cfg,
		assets:   assets,
		download: download,
		uploader: uploader,
		platform: p,
		logger:   logger,
	}
}

// Acquire runs the acquisition for one page. base is the record filename
// without extension and names every local artifact.
func (a *Acquirer) Acquire(ctx context.Context, page *talk.Page, base string) (Outcome, error) {
	candidate := a.assets.PDFCandidate(page)
	if candidate == "" {
		if a.assets.SlidesEmbedded(page) {
			return Outcome{}, talk.NewAcquisitionError(fmt.Sprintf(
				"slides are shown on %s but no PDF can be downloaded; enable download for this deck on %s and re-run",
				page.URL, a.platform.Name), nil)
		}
		a.logger.Info("No PDF offered", zap.String("url", page.URL))
		return Outcome{}, nil
	}

	pdfPath := filepath.Join(a.cfg.StagingDir, base+".pdf")
	n, err := a.download.Download(ctx, candidate, pdfPath)
	if err != nil {
		return Outcome{}, talk.NewAcquisitionError("download PDF "+candidate, err)
	}
	digest, err := sha256.New().File(pdfPath)
	if err != nil {
		return Outcome{}, talk.NewAcquisitionError("fingerprint PDF", err)
	}
	a.logger.Info("PDF downloaded",
		zap.String("url", candidate),
		zap.Int64("bytes", n),
		zap.String("sha256", digest))

	file, err := a.upload(ctx, pdfPath)
	if err != nil {
		return Outcome{}, err
	}
	metrics.ObserveUpload(n)

	thumbFile, err := a.thumbnail(ctx, page, base)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Slides: &talk.Resource{
			URL:         file.WebViewURL,
			Title:       "Slides (PDF)",
			Type:        talk.ResourceSlides,
			Description: "Presentation slides",
		},
		PDFPath:       pdfPath,
		PDFDigest:     digest,
		ThumbnailFile: thumbFile,
		ThumbnailPath: path.Join(a.cfg.ThumbnailPath, filepath.Base(thumbFile)),
	}, nil
}

func (a *Acquirer) upload(ctx context.Context, pdfPath string) (storage.File, error) {
	// Folder ids are looked up per run; a cached id goes stale when folders are re-shared.
	folders, err := a.uploader.RootFolders(ctx)
	if err != nil {
		return storage.File{}, talk.NewAcquisitionError("list storage folders", err)
	}
	if len(folders) == 0 {
		return storage.File{}, talk.NewAcquisitionError(
			"no storage folder is accessible to the configured credentials; share an upload folder with them", nil)
	}
	folder := folders[0]

	file, err := a.uploader.Upload(ctx, pdfPath, folder.ID)
	if err != nil {
		return storage.File{}, talk.NewAcquisitionError("upload PDF", err)
	}
	if err := a.uploader.SetPublicRead(ctx, file.ID); err != nil {
		return storage.File{}, talk.NewAcquisitionError("set public read permission on "+file.ID, err)
	}
	if file.WebViewURL == "" {
		return storage.File{}, talk.NewAcquisitionError("storage returned no shareable link for "+file.ID, nil)
	}

	meta, err := a.uploader.Metadata(ctx, file.ID)
	switch {
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		a.logger.Warn("Could not read uploaded file metadata", zap.String("id", file.ID), zap.Error(err))
	case meta.MimeType != "" && meta.MimeType != "application/pdf":
		a.logger.Warn("Uploaded file is not reported as PDF", zap.String("id", file.ID), zap.String("mime", meta.MimeType))
	}
	a.logger.Info("PDF uploaded",
		zap.String("folder", folder.Name),
		zap.String("id", file.ID),
		zap.String("url", file.WebViewURL))
	return file, nil
}

func (a *Acquirer) thumbnail(ctx context.Context, page *talk.Page, base string) (string, error) {
	src := a.assets.Thumbnail(page)
	if src == "" {
		return "", talk.NewAcquisitionError("page has no preview image for the thumbnail", nil)
	}
	if !a.platform.AcceptedThumbnail(src) {
		return "", talk.NewAcquisitionError(fmt.Sprintf(
			"preview image %s is not served from %s", src, a.platform.ThumbnailPrefix), nil)
	}
	dest := filepath.Join(a.cfg.ThumbnailDir, base+".png")
	n, err := a.download.Download(ctx, src, dest)
	if err != nil {
		return "", talk.NewAcquisitionError("download thumbnail "+src, err)
	}
	if n == 0 {
		return "", talk.NewAcquisitionError("thumbnail "+src+" is empty", nil)
	}
	a.logger.Info("Thumbnail saved", zap.String("path", dest), zap.Int64("bytes", n))
	return dest, nil
}
