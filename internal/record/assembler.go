// Package record renders talk records as markdown and manages the directory
// they live in.
package record

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// Layout is the site template every record uses.
const Layout = "talk"

// Line prefixes shared by the assembler and the validator.
const (
	ConferencePrefix = "**Conference:** "
	DatePrefix       = "**Date:** "
	SlidesPrefix     = "**Slides:** "
	VideoPrefix      = "**Video:** "
	AbstractHeading  = "## Abstract"
	ResourcesHeading = "## Resources"
)

// FrontMatter is the YAML header of a record. SourceURL is only read, from
// records written before the inline marker existed.
type FrontMatter struct {
	Layout     string `yaml:"layout"`
	Title      string `yaml:"title,omitempty"`
	Date       string `yaml:"date,omitempty"`
	Conference string `yaml:"conference,omitempty"`
	Status     string `yaml:"status,omitempty"`
	Thumbnail  string `yaml:"thumbnail,omitempty"`
	SourceURL  string `yaml:"source_url,omitempty"`
}

// Assemble renders rec as markdown.
func Assemble(rec talk.Record) ([]byte, error) {
	fm, err := yaml.Marshal(FrontMatter{
		Layout:     Layout,
		Title:      rec.Title,
		Date:       rec.DateString(),
		Conference: rec.Conference,
		Status:     string(rec.Status),
		Thumbnail:  rec.ThumbnailPath,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n")
	fmt.Fprintf(&b, "%s%s -->\n\n", markerPrefix, rec.SourceURL)
	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	fmt.Fprintf(&b, "%s%s\n\n", ConferencePrefix, rec.Conference)
	fmt.Fprintf(&b, "%s%s\n\n", DatePrefix, rec.DateString())
	if slides, ok := rec.Slides(); ok {
		fmt.Fprintf(&b, "%s[%s](%s)\n\n", SlidesPrefix, linkText(slides.Title, "View slides"), slides.URL)
	}
	if video, ok := rec.Video(); ok {
		fmt.Fprintf(&b, "%s[%s](%s)\n\n", VideoPrefix, linkText(video.Title, "Watch video"), video.URL)
	}
	b.WriteString(contextLine(rec.Metadata))
	b.WriteString("\n")

	if abstract := strings.TrimSpace(rec.Abstract); abstract != "" {
		fmt.Fprintf(&b, "\n%s\n\n%s\n", AbstractHeading, abstract)
	}
	if extras := rec.Extras(); len(extras) > 0 {
		fmt.Fprintf(&b, "\n%s\n\n", ResourcesHeading)
		for _, res := range extras {
			b.WriteString(ResourceLine(res))
			b.WriteString("\n")
		}
	}
	return b.Bytes(), nil
}

// ResourceLine renders one entry of the resources section.
func ResourceLine(res talk.Resource) string {
	line := fmt.Sprintf("- [%s](%s)", linkText(res.Title, res.URL), res.URL)
	if d := strings.TrimSpace(res.Description); d != "" && d != res.Title {
		line += " - " + d
	}
	return line
}

// contextLine reads "A presentation at {conference} in {Month Year} in {location} by {speaker}."
func contextLine(m talk.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A presentation at %s", m.Conference)
	if !m.Date.IsZero() {
		fmt.Fprintf(&b, " in %s", m.Date.Format("January 2006"))
	}
	if m.Location != "" {
		fmt.Fprintf(&b, " in %s", m.Location)
	}
	if m.Speaker != "" {
		fmt.Fprintf(&b, " by %s", m.Speaker)
	}
	b.WriteString(".\n")
	return b.String()
}

func linkText(title, fallback string) string {
	title = strings.NewReplacer("[", "(", "]", ")").Replace(strings.TrimSpace(title))
	if title == "" {
		return fallback
	}
	return title
}
