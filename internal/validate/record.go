package validate

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/talkmigrate/internal/record"
	"github.com/JakeFAU/talkmigrate/internal/talk"
	"github.com/JakeFAU/talkmigrate/internal/urlnorm"
)

var (
	isoDateLine  = regexp.MustCompile(`^` + regexp.QuoteMeta(record.DatePrefix) + `\d{4}-\d{2}-\d{2}$`)
	markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
)

// Record runs structural checks over a rendered record. Every check runs, so
// the result lists all problems at once.
func Record(doc []byte, resources []talk.Resource) talk.ValidationResult {
	res := talk.Valid()

	fm, body, err := record.SplitFrontMatter(doc)
	switch {
	case err != nil:
		res.Fail("front matter: %v", err)
	case fm == nil:
		res.Fail("document has no front matter block")
	default:
		var meta record.FrontMatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			res.Fail("front matter is not valid YAML: %v", err)
		} else if meta.Layout == "" {
			res.Fail("front matter has no layout")
		}
	}

	lines := scanLines(body)
	if n := countPrefix(lines, "# "); n != 1 {
		res.Fail("expected exactly one top-level heading, found %d", n)
	}
	if line, ok := findPrefix(lines, record.ConferencePrefix); !ok || strings.TrimSpace(strings.TrimPrefix(line, record.ConferencePrefix)) == "" {
		res.Fail("missing conference line")
	}
	if line, ok := findPrefix(lines, record.DatePrefix); !ok {
		res.Fail("missing date line")
	} else if !isoDateLine.MatchString(line) {
		res.Fail("date line is not an ISO date: %q", line)
	}

	slides, hasSlides := firstOfType(resources, talk.ResourceSlides)
	line, hasSlidesLine := findPrefix(lines, record.SlidesPrefix)
	switch {
	case hasSlides && !hasSlidesLine:
		res.Fail("missing slides line")
	case hasSlides && !linksTo(line, slides.URL):
		res.Fail("slides line does not link %s", slides.URL)
	case !hasSlides && hasSlidesLine:
		res.Fail("slides line present without a slides resource")
	}

	extras := talk.Extras(resources)
	_, hasSection := findPrefix(lines, record.ResourcesHeading)
	switch {
	case len(extras) > 0 && !hasSection:
		res.Fail("missing resources section for %d resources", len(extras))
	case len(extras) == 0 && hasSection:
		res.Fail("resources section present without resources")
	case hasSection:
		rendered := sectionLinks(lines, record.ResourcesHeading)
		for _, r := range extras {
			if !anyAcceptable(rendered, r.URL) {
				res.Fail("resource %q (%s) is not listed in the resources section", r.Title, r.URL)
			}
		}
	}
	return res
}

func scanLines(body []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r "))
	}
	return lines
}

func countPrefix(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func findPrefix(lines []string, prefix string) (string, bool) {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return l, true
		}
	}
	return "", false
}

func firstOfType(resources []talk.Resource, t talk.ResourceType) (talk.Resource, bool) {
	for _, r := range resources {
		if r.Type == t {
			return r, true
		}
	}
	return talk.Resource{}, false
}

func linksTo(line, want string) bool {
	for _, m := range markdownLink.FindAllStringSubmatch(line, -1) {
		if m[2] == want {
			return true
		}
	}
	return false
}

// sectionLinks returns the link targets of list items under heading.
func sectionLinks(lines []string, heading string) []string {
	var out []string
	in := false
	for _, l := range lines {
		switch {
		case l == heading:
			in = true
		case in && strings.HasPrefix(l, "## "):
			return out
		case in && strings.HasPrefix(l, "- "):
			if m := markdownLink.FindStringSubmatch(l); m != nil {
				out = append(out, m[2])
			}
		}
	}
	return out
}

func anyAcceptable(rendered []string, want string) bool {
	for _, got := range rendered {
		if urlnorm.AcceptableTransform(want, got) {
			return true
		}
	}
	return false
}
