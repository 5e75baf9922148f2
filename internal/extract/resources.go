package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/talkmigrate/internal/talk"
	"github.com/JakeFAU/talkmigrate/internal/urlnorm"
)

// Classify maps a resource URL to its type. The first matching rule wins.
func Classify(raw string) talk.ResourceType {
	u := strings.ToLower(raw)
	switch {
	case strings.Contains(u, "github.com"):
		return talk.ResourceCode
	case strings.Contains(u, "docs.google.com/presentation"):
		return talk.ResourceSlides
	case strings.Contains(u, "drive.google.com") && strings.Contains(u, ".pdf"):
		return talk.ResourceSlides
	case strings.Contains(u, "youtube.com"), strings.Contains(u, "youtu.be"):
		return talk.ResourceVideo
	default:
		return talk.ResourceLink
	}
}

// IsWebURL reports whether raw starts with an http or https scheme.
func IsWebURL(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Resources lists the entries of the resource section in page order. Entries without an anchor
// or with a non-web href are skipped; duplicates are kept as found.
func (p *HTMLParser) Resources(page *talk.Page) []talk.Resource {
	if page == nil || page.Doc == nil {
		return nil
	}
	var out []talk.Resource
	page.Doc.Find(p.sel.ResourceList).Each(func(_ int, item *goquery.Selection) {
		anchor := item.Find(p.sel.ResourceLink).First()
		if anchor.Length() == 0 {
			return
		}
		href := strings.TrimSpace(anchor.AttrOr("href", ""))
		if !IsWebURL(href) {
			return
		}
		title := clean(anchor.Text())
		if title == "" {
			title = urlnorm.Host(href)
		}
		if title == "" {
			return
		}
		out = append(out, talk.Resource{
			URL:   href,
			Title: title,
			Type:  Classify(href),
		})
	})
	return out
}
