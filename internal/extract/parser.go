// Package extract turns a fetched presentation page into talk metadata, resources, and asset
// pointers. All markup knowledge sits behind the Parser interface so a change on the source
// platform only touches its adapter.
package extract

import (
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// Parser reads one source platform's presentation pages.
type Parser interface {
	// Metadata extracts title, date, conference, location, speaker, and abstract. A missing
	// title, date, or conference is an extraction error.
	Metadata(page *talk.Page) (talk.Metadata, error)
	// Resources lists the supplementary links in page order. No resource section is not an error.
	Resources(page *talk.Page) []talk.Resource
	// VideoEmbed returns the src of an intermediary video iframe, or "".
	VideoEmbed(page *talk.Page) string
	// PDFCandidate returns the best downloadable deck URL, or "".
	PDFCandidate(page *talk.Page) string
	// SlidesEmbedded reports whether slide images are rendered on the page.
	SlidesEmbedded(page *talk.Page) bool
	// Thumbnail returns the social-preview image URL, or "".
	Thumbnail(page *talk.Page) string
}

// Selectors are the CSS paths an HTMLParser reads.
type Selectors struct {
	Title        []string
	DateTime     string
	Subhead      string
	Conference   string
	Description  string
	ResourceList string
	ResourceLink string
	VideoFrame   string
	DownloadLink string
	PDFLink      string
	SlideImages  string
	Preview      string
	StructData   string
}

// NotistSelectors returns the selectors for noti.st presentation pages.
func NotistSelectors() Selectors {
	return Selectors{
		Title:        []string{".presentation-header h1 a", ".presentation-header h1"},
		DateTime:     "time[datetime]",
		Subhead:      ".presentation-header .subhead",
		Conference:   ".presentation-header .subhead a",
		Description:  ".presentation-description",
		ResourceList: "#resources .resource-list li",
		ResourceLink: "h3 a[href]",
		VideoFrame:   "#video iframe[src]",
		DownloadLink: "a[download][href]",
		PDFLink:      "a[href]",
		SlideImages:  ".deck .slide img, .slide-deck img, [data-deck-id]",
		Preview:      `meta[property="og:image"]`,
		StructData:   `script[type="application/ld+json"]`,
	}
}

// HTMLParser is a selector-driven Parser.
type HTMLParser struct {
	sel      Selectors
	platform platform.Platform
}

var _ Parser = (*HTMLParser)(nil)

// NewHTMLParser builds a parser from selectors and a compiled platform policy.
func NewHTMLParser(sel Selectors, p platform.Platform) *HTMLParser {
	return &HTMLParser{sel: sel, platform: p}
}

// NewNotist builds the noti.st adapter.
func NewNotist(p platform.Platform) *HTMLParser {
	return NewHTMLParser(NotistSelectors(), p)
}
