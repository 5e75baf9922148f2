package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/talkmigrate/internal/talk"
)

const (
	// minContainerAbstract is the length a description container's raw text must exceed to be
	// used when it has no paragraphs; shorter text is usually a one-line context sentence.
	minContainerAbstract = 200
	minParagraphAbstract = 100
)

var (
	locationPattern = regexp.MustCompile(`in [A-Z][a-z]+ \d{4} in (.+?) by\b`)
	spacePattern    = regexp.MustCompile(`\s+`)
	dateLayouts     = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		talk.DateLayout,
	}
)

// Metadata extracts the talk's descriptive fields.
func (p *HTMLParser) Metadata(page *talk.Page) (talk.Metadata, error) {
	if page == nil || page.Doc == nil {
		return talk.Metadata{}, talk.NewExtractionError("no document to extract from")
	}
	doc := page.Doc
	ld := structuredData(doc, p.sel.StructData)

	var meta talk.Metadata
	meta.Title = p.title(doc)
	if meta.Title == "" {
		return meta, talk.NewExtractionError("missing title (presentation header not found)")
	}

	date, ok := p.date(doc, ld)
	if !ok {
		return meta, talk.NewExtractionError("missing date (no datetime attribute or structured publish date)")
	}
	meta.Date = date

	meta.Conference = clean(doc.Find(p.sel.Conference).First().Text())
	if meta.Conference == "" {
		meta.Conference = ld.nestedName("publication", "event", "isPartOf")
	}
	if meta.Conference == "" {
		return meta, talk.NewExtractionError("missing conference (no subhead link or structured publication)")
	}

	meta.Speaker = p.platform.Speaker(page.URL)
	meta.Location = p.location(doc, ld)
	meta.Abstract = p.abstract(doc)
	return meta, nil
}

func (p *HTMLParser) title(doc *goquery.Document) string {
	for _, sel := range p.sel.Title {
		if t := clean(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func (p *HTMLParser) date(doc *goquery.Document, ld structured) (time.Time, bool) {
	if raw, ok := doc.Find(p.sel.DateTime).First().Attr("datetime"); ok {
		if d, ok := parseDate(raw); ok {
			return d, true
		}
	}
	for _, key := range []string{"datePublished", "dateCreated", "uploadDate"} {
		if raw := ld.str(key); raw != "" {
			if d, ok := parseDate(raw); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func (p *HTMLParser) location(doc *goquery.Document, ld structured) string {
	subhead := clean(doc.Find(p.sel.Subhead).First().Text())
	if m := locationPattern.FindStringSubmatch(subhead); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ld.address()
}

func (p *HTMLParser) abstract(doc *goquery.Document) string {
	container := doc.Find(p.sel.Description).First()
	if container.Length() > 0 {
		var paragraphs []string
		container.Find("p").Each(func(_ int, s *goquery.Selection) {
			if t := clean(s.Text()); t != "" {
				paragraphs = append(paragraphs, t)
			}
		})
		if len(paragraphs) > 0 {
			return strings.Join(paragraphs, "\n\n")
		}
		if t := clean(container.Text()); len(t) > minContainerAbstract {
			return t
		}
	}
	var abstract string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := clean(s.Text()); len(t) > minParagraphAbstract {
			abstract = t
			return false
		}
		return true
	})
	return abstract
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	// Some pages carry a full timestamp with fractional seconds or odd zones; the date prefix is enough.
	if len(raw) >= len(talk.DateLayout) {
		if d, err := time.Parse(talk.DateLayout, raw[:len(talk.DateLayout)]); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func clean(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// structured is the decoded set of JSON-LD blocks on a page.
type structured []any

func structuredData(doc *goquery.Document, selector string) structured {
	var out structured
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err == nil {
			out = append(out, v)
		}
	})
	return out
}

// str returns the first string value stored under key anywhere in the blocks.
func (s structured) str(key string) string {
	for _, v := range s {
		if found, ok := findKey(v, key); ok {
			if str, ok := found.(string); ok && strings.TrimSpace(str) != "" {
				return strings.TrimSpace(str)
			}
		}
	}
	return ""
}

// nestedName returns the "name" of the first object stored under any of keys.
func (s structured) nestedName(keys ...string) string {
	for _, key := range keys {
		for _, v := range s {
			found, ok := findKey(v, key)
			if !ok {
				continue
			}
			switch t := found.(type) {
			case map[string]any:
				if name, ok := t["name"].(string); ok && strings.TrimSpace(name) != "" {
					return strings.TrimSpace(name)
				}
			case string:
				if strings.TrimSpace(t) != "" {
					return strings.TrimSpace(t)
				}
			}
		}
	}
	return ""
}

func (s structured) address() string {
	for _, v := range s {
		found, ok := findKey(v, "address")
		if !ok {
			continue
		}
		switch t := found.(type) {
		case string:
			return strings.TrimSpace(t)
		case map[string]any:
			var parts []string
			for _, k := range []string{"addressLocality", "addressRegion", "addressCountry"} {
				if part, ok := t[k].(string); ok && strings.TrimSpace(part) != "" {
					parts = append(parts, strings.TrimSpace(part))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// findKey walks v depth-first and returns the first value stored under key.
func findKey(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if found, ok := t[key]; ok {
			return found, true
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := findKey(t[k], key); ok {
				return found, true
			}
		}
	case []any:
		for _, child := range t {
			if found, ok := findKey(child, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}
