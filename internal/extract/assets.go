package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// VideoEmbed returns the src of the video iframe when it points at the intermediary embed domain.
func (p *HTMLParser) VideoEmbed(page *talk.Page) string {
	if page == nil || page.Doc == nil {
		return ""
	}
	var src string
	page.Doc.Find(p.sel.VideoFrame).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		candidate := absolute(page.URL, s.AttrOr("src", ""))
		if p.platform.IsEmbed(candidate) {
			src = candidate
			return false
		}
		return true
	})
	return src
}

// PDFCandidate picks the deck URL: a download-attributed link, then a direct .pdf link, then a
// CDN deck URL anywhere in the raw page. Links inside the resource section are not considered.
func (p *HTMLParser) PDFCandidate(page *talk.Page) string {
	if page == nil || page.Doc == nil {
		return ""
	}
	if href := p.firstLink(page, p.sel.DownloadLink, func(string) bool { return true }); href != "" {
		return href
	}
	if href := p.firstLink(page, p.sel.PDFLink, isPDFURL); href != "" {
		return href
	}
	if pattern := p.platform.PDFPattern(); pattern != nil {
		return pattern.FindString(page.Text())
	}
	return ""
}

// SlidesEmbedded reports whether slide images are rendered on the page.
func (p *HTMLParser) SlidesEmbedded(page *talk.Page) bool {
	if page == nil || page.Doc == nil || p.sel.SlideImages == "" {
		return false
	}
	return page.Doc.Find(p.sel.SlideImages).Length() > 0
}

// Thumbnail returns the og:image URL.
func (p *HTMLParser) Thumbnail(page *talk.Page) string {
	if page == nil || page.Doc == nil {
		return ""
	}
	return strings.TrimSpace(page.Doc.Find(p.sel.Preview).First().AttrOr("content", ""))
}

func (p *HTMLParser) firstLink(page *talk.Page, selector string, accept func(string) bool) string {
	var found string
	page.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Closest("#resources").Length() > 0 {
			return true
		}
		href := absolute(page.URL, s.AttrOr("href", ""))
		if IsWebURL(href) && accept(href) {
			found = href
			return false
		}
		return true
	})
	return found
}

func isPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// absolute resolves href against the page URL.
func absolute(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || b.Scheme == "" {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
