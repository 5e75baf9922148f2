// Package talk defines the record, resource, and error types shared by every stage of the
// migration pipeline.
package talk

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ResourceType classifies a supplementary link attached to a record.
type ResourceType string

// Resource types recognised by the pipeline.
const (
	ResourceSlides ResourceType = "slides"
	ResourceVideo  ResourceType = "video"
	ResourceCode   ResourceType = "code"
	ResourceLink   ResourceType = "link"
)

// Status is the terminal state recorded for a migrated talk.
type Status string

// Status values written to records.
const (
	StatusCompleted    Status = "completed"
	StatusVideoPending Status = "video-pending"
)

// DateLayout is the ISO calendar date format used in filenames and records.
const DateLayout = "2006-01-02"

// Resource is a single supplementary artifact.
type Resource struct {
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Type        ResourceType `json:"type"`
	Description string       `json:"description,omitempty"`
}

// Metadata holds the fields scraped from the presentation page.
type Metadata struct {
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Conference string    `json:"conference"`
	Location   string    `json:"location,omitempty"`
	Speaker    string    `json:"speaker,omitempty"`
	Abstract   string    `json:"abstract,omitempty"`
}

// DateString renders the talk date in ISO form.
func (m Metadata) DateString() string {
	if m.Date.IsZero() {
		return ""
	}
	return m.Date.Format(DateLayout)
}

// Record is the central artifact produced by one migration. Stages receive a Record by value
// and return an updated copy, so nothing is shared between stages or invocations.
type Record struct {
	Metadata
	Status    Status     `json:"status"`
	SourceURL string     `json:"source_url"`
	Resources []Resource `json:"resources"`
	// Filename is the record's base name, set once the slug is derived.
	Filename string `json:"filename,omitempty"`
	// ThumbnailPath is the local preview image written by the PDF stage.
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}

// NewRecord starts a record for the given source URL.
func NewRecord(sourceURL string) Record {
	return Record{
		SourceURL: strings.TrimSpace(sourceURL),
		Status:    StatusVideoPending,
	}
}

// WithResources returns a copy of r holding a copy of resources. The first slides entry moves to
// the front and the first video entry follows it; any further slides or video entries become
// plain links.
func (r Record) WithResources(resources []Resource) Record {
	var slides, video *Resource
	rest := make([]Resource, 0, len(resources))
	for _, res := range resources {
		switch {
		case res.Type == ResourceSlides && slides == nil:
			slides = &res
			continue
		case res.Type == ResourceVideo && video == nil:
			video = &res
			continue
		case res.Type == ResourceSlides, res.Type == ResourceVideo:
			res.Type = ResourceLink
		}
		rest = append(rest, res)
	}
	out := make([]Resource, 0, len(resources))
	if slides != nil {
		out = append(out, *slides)
	}
	if video != nil {
		out = append(out, *video)
	}
	r.Resources = append(out, rest...)
	return r
}

// WithSlides places res at the front of the resource list. Any other slides entry is kept as a
// plain link so that at most one slides resource exists.
func (r Record) WithSlides(res Resource) Record {
	res.Type = ResourceSlides
	out := make([]Resource, 0, len(r.Resources)+1)
	out = append(out, res)
	for _, existing := range r.Resources {
		if existing.Type == ResourceSlides {
			existing.Type = ResourceLink
		}
		out = append(out, existing)
	}
	r.Resources = out
	return r
}

// WithVideo inserts res directly after the slides resource, or at the front when there is none.
// Existing non-slides entries pointing at the same URL are dropped; other video entries become
// links.
func (r Record) WithVideo(res Resource) Record {
	res.Type = ResourceVideo
	rest := make([]Resource, 0, len(r.Resources))
	var slides *Resource
	for i := range r.Resources {
		existing := r.Resources[i]
		switch {
		case existing.Type == ResourceSlides && slides == nil:
			slides = &r.Resources[i]
			continue
		case existing.Type != ResourceSlides && existing.URL == res.URL:
			continue
		case existing.Type == ResourceVideo:
			existing.Type = ResourceLink
		}
		rest = append(rest, existing)
	}
	out := make([]Resource, 0, len(rest)+2)
	if slides != nil {
		out = append(out, *slides)
	}
	out = append(out, res)
	out = append(out, rest...)
	r.Resources = out
	r.Status = StatusCompleted
	return r
}

// Slides returns the slides resource, if any.
func (r Record) Slides() (Resource, bool) {
	return r.first(ResourceSlides)
}

// Video returns the video resource, if any.
func (r Record) Video() (Resource, bool) {
	return r.first(ResourceVideo)
}

// Extras returns the resources that are neither slides nor video, in order.
func (r Record) Extras() []Resource {
	return Extras(r.Resources)
}

// Count returns how many resources have type t.
func (r Record) Count(t ResourceType) int {
	n := 0
	for _, res := range r.Resources {
		if res.Type == t {
			n++
		}
	}
	return n
}

func (r Record) first(t ResourceType) (Resource, bool) {
	for _, res := range r.Resources {
		if res.Type == t {
			return res, true
		}
	}
	return Resource{}, false
}

// Extras filters resources down to those rendered in the resources section.
func Extras(resources []Resource) []Resource {
	var out []Resource
	for _, res := range resources {
		if res.Type == ResourceSlides || res.Type == ResourceVideo {
			continue
		}
		out = append(out, res)
	}
	return out
}

// Page is a fetched and parsed HTML document.
type Page struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Body       []byte
	Doc        *goquery.Document
}

// Text returns the raw page markup, used for pattern searches over the whole page.
func (p *Page) Text() string {
	if p == nil {
		return ""
	}
	return string(p.Body)
}
