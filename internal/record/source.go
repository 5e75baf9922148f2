package record

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/talkmigrate/internal/urlnorm"
)

const markerPrefix = "<!-- source_url: "

var markerPattern = regexp.MustCompile(`<!--\s*source_url:\s*(\S+)\s*-->`)

// SourceURL returns the source URL recorded in a markdown record. The inline
// marker wins; the front-matter field is accepted for older records. A record
// with neither yields "". Malformed front matter is an error.
func SourceURL(content []byte) (string, error) {
	if m := markerPattern.FindSubmatch(content); m != nil {
		return string(m[1]), nil
	}
	fm, _, err := SplitFrontMatter(content)
	if err != nil {
		return "", err
	}
	if fm == nil {
		return "", nil
	}
	var meta FrontMatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return "", fmt.Errorf("parse front matter: %w", err)
	}
	return strings.TrimSpace(meta.SourceURL), nil
}

// SplitFrontMatter separates the YAML header from the body. Content without a
// leading "---" line has no front matter; an unterminated header is an error.
func SplitFrontMatter(content []byte) (frontMatter, body []byte, err error) {
	content = bytes.TrimPrefix(content, []byte("\ufeff"))
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return nil, content, nil
	}
	rest := content[bytes.IndexByte(content, '\n')+1:]
	for offset := 0; offset < len(rest); {
		end := bytes.IndexByte(rest[offset:], '\n')
		var line []byte
		if end < 0 {
			line = rest[offset:]
			end = len(rest) - offset
		} else {
			line = rest[offset : offset+end]
		}
		if string(bytes.TrimRight(line, "\r")) == "---" {
			next := offset + end + 1
			if next > len(rest) {
				next = len(rest)
			}
			return rest[:offset], rest[next:], nil
		}
		offset += end + 1
	}
	return nil, nil, fmt.Errorf("front matter is not terminated")
}

// Entry is an existing record on disk.
type Entry struct {
	Path      string
	SourceURL string
}

// AlreadyMigrated reports whether any existing record came from sourceURL.
// URLs are compared after normalization.
func AlreadyMigrated(sourceURL string, existing []Entry) (Entry, bool) {
	for _, e := range existing {
		if e.SourceURL != "" && urlnorm.Equal(e.SourceURL, sourceURL) {
			return e, true
		}
	}
	return Entry{}, false
}
