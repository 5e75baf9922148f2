// Package video locates a talk's recording, following intermediary embeds to the canonical
// YouTube or Vimeo URL where possible.
package video

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/talkmigrate/internal/logging"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

var (
	youtubePattern = regexp.MustCompile(
		`(?:youtube(?:-nocookie)?\.com/(?:watch\?v=|embed/)|youtu\.be/)([A-Za-z0-9_-]{11})`)
	vimeoPattern = regexp.MustCompile(`(?:player\.)?vimeo\.com/(?:video/)?(\d{6,})`)
)

// PageFetcher fetches the secondary embed page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*talk.Page, error)
}

// EmbedSource exposes the parser hook for the video iframe.
type EmbedSource interface {
	VideoEmbed(page *talk.Page) string
}

// Resolver finds the video resource for a talk page.
type Resolver struct {
	fetcher  PageFetcher
	source   EmbedSource
	platform platform.Platform
	logger   *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(fetcher PageFetcher, source EmbedSource, p platform.Platform, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		source:   source,
		platform: p,
		logger:   logging.Named(logger, "video"),
	}
}

// Resolve returns the video resource and resulting status. Finding nothing is not an error; it
// yields StatusVideoPending.
func (r *Resolver) Resolve(ctx context.Context, page *talk.Page) (*talk.Resource, talk.Status) {
	if embed := r.source.VideoEmbed(page); embed != "" {
		res := r.followEmbed(ctx, embed)
		return &res, talk.StatusCompleted
	}
	if canonical := Mine(page.Text()); canonical != "" {
		r.logger.Debug("Found video link in page text", zap.String("url", canonical))
		return &talk.Resource{URL: canonical, Title: "Video", Type: talk.ResourceVideo,
			Description: "Recording of the talk"}, talk.StatusCompleted
	}
	if pattern := r.platform.EmbedPattern(); pattern != nil {
		if embed := pattern.FindString(page.Text()); embed != "" {
			res := r.followEmbed(ctx, embed)
			return &res, talk.StatusCompleted
		}
	}
	return nil, talk.StatusVideoPending
}

// followEmbed fetches the intermediary page and mines it for a canonical video URL, falling back
// to the intermediary URL itself.
func (r *Resolver) followEmbed(ctx context.Context, embed string) talk.Resource {
	page, err := r.fetcher.Fetch(ctx, embed)
	if err != nil {
		r.logger.Warn("Embed fetch failed; keeping embed URL", zap.String("url", embed), zap.Error(err))
		return embedResource(embed)
	}
	if canonical := Mine(page.Text()); canonical != "" {
		r.logger.Debug("Resolved embed", zap.String("embed", embed), zap.String("url", canonical))
		return talk.Resource{URL: canonical, Title: "Video", Type: talk.ResourceVideo,
			Description: "Recording of the talk"}
	}
	r.logger.Info("Embed page has no canonical video; keeping embed URL", zap.String("url", embed))
	return embedResource(embed)
}

func embedResource(embed string) talk.Resource {
	return talk.Resource{URL: embed, Title: "Video", Type: talk.ResourceVideo, Description: "Embedded video player"}
}

// Mine returns the first YouTube or Vimeo video in text as a canonical URL, or "".
func Mine(text string) string {
	if ids := YouTubeIDs(text); len(ids) > 0 {
		return "https://www.youtube.com/watch?v=" + ids[0]
	}
	if m := vimeoPattern.FindStringSubmatch(text); m != nil {
		return "https://vimeo.com/" + m[1]
	}
	return ""
}

// YouTubeIDs returns the distinct video IDs of every YouTube URL shape in text, in order.
func YouTubeIDs(text string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, m := range youtubePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}
