// Package platform holds the per-platform assumptions the pipeline makes about a scraped
// presentation host: which domains are its own, where its slide CDN lives, which hosts are
// acceptable homes for migrated slides and videos, and how its talk URLs look.
package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/talkmigrate/internal/urlnorm"
)

// Platform describes a scraped presentation host and the hosting policy around it.
type Platform struct {
	Name string `mapstructure:"name"`
	// Domain is the platform's public site, e.g. noti.st.
	Domain string `mapstructure:"domain"`
	// CDNDomain serves slide images, decks, and previews.
	CDNDomain string `mapstructure:"cdn_domain"`
	// ThumbnailPrefix is the URL prefix a trusted og:image must start with.
	ThumbnailPrefix string `mapstructure:"thumbnail_prefix"`
	// EmbedDomain is the intermediary video-embed host.
	EmbedDomain    string   `mapstructure:"embed_domain"`
	StorageDomains []string `mapstructure:"storage_domains"`
	VideoDomains   []string `mapstructure:"video_domains"`
	// NonTalkPaths are path fragments that never identify a talk.
	NonTalkPaths []string `mapstructure:"non_talk_paths"`
	// TalkPath matches the path of an individual talk page.
	TalkPath string `mapstructure:"talk_path"`
	// Speakers maps a URL handle to a display name.
	Speakers map[string]string `mapstructure:"speakers"`

	talkPath   *regexp.Regexp
	pdfPattern *regexp.Regexp
	embedURL   *regexp.Regexp
}

// Notist returns the policy for noti.st-hosted presentations with slides re-hosted on Google Drive.
func Notist() Platform {
	return Platform{
		Name:            "notist",
		Domain:          "noti.st",
		CDNDomain:       "on.notist.cloud",
		ThumbnailPrefix: "https://on.notist.cloud/slides/",
		EmbedDomain:     "notist.ninja",
		StorageDomains:  []string{"drive.google.com", "docs.google.com", "storage.googleapis.com"},
		VideoDomains:    []string{"youtube.com", "youtu.be", "vimeo.com"},
		NonTalkPaths:    []string{"/videos/", "/events/", "/settings/", "/about/"},
		TalkPath:        `^/[^/]+/[A-Za-z0-9]{4,8}/[A-Za-z0-9-]+/?$`,
		Speakers:        map[string]string{},
	}
}

// Compile validates the policy and prepares its patterns.
func (p Platform) Compile() (Platform, error) {
	if strings.TrimSpace(p.Domain) == "" {
		return p, fmt.Errorf("platform domain is required")
	}
	if strings.TrimSpace(p.CDNDomain) == "" {
		return p, fmt.Errorf("platform cdn_domain is required")
	}
	if len(p.StorageDomains) == 0 {
		return p, fmt.Errorf("platform storage_domains must not be empty")
	}
	talkPath, err := regexp.Compile(p.TalkPath)
	if err != nil {
		return p, fmt.Errorf("compile talk_path: %w", err)
	}
	p.talkPath = talkPath
	p.pdfPattern = regexp.MustCompile(`https?://[^\s"'<>]*` + regexp.QuoteMeta(p.CDNDomain) + `/[^\s"'<>]+?\.pdf`)
	if p.EmbedDomain != "" {
		p.embedURL = regexp.MustCompile(`https?://(?:[a-z0-9-]+\.)*` + regexp.QuoteMeta(p.EmbedDomain) + `/[^\s"'<>]+`)
	}
	return p, nil
}

// MustCompile is Compile for policies known to be valid.
func (p Platform) MustCompile() Platform {
	compiled, err := p.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}

// IsScraped reports whether raw points at the platform's own site or CDN.
func (p Platform) IsScraped(raw string) bool {
	return urlnorm.HostMatches(raw, p.Domain) || p.IsCDN(raw)
}

// IsCDN reports whether raw points at the platform's asset CDN.
func (p Platform) IsCDN(raw string) bool {
	return urlnorm.HostMatches(raw, p.CDNDomain)
}

// IsEmbed reports whether raw is hosted on the intermediary video-embed domain.
func (p Platform) IsEmbed(raw string) bool {
	return p.EmbedDomain != "" && urlnorm.HostMatches(raw, p.EmbedDomain)
}

// AcceptedSlideHost reports whether raw lives on the storage provider.
func (p Platform) AcceptedSlideHost(raw string) bool {
	return matchesAny(raw, p.StorageDomains)
}

// AcceptedVideoHost reports whether raw lives on an accepted video platform or the embed domain.
func (p Platform) AcceptedVideoHost(raw string) bool {
	return matchesAny(raw, p.VideoDomains) || p.IsEmbed(raw)
}

// AcceptedThumbnail reports whether raw comes from the platform's own slide-deck CDN path.
func (p Platform) AcceptedThumbnail(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if p.ThumbnailPrefix != "" {
		return strings.HasPrefix(raw, p.ThumbnailPrefix)
	}
	return p.IsCDN(raw)
}

// PDFPattern matches deck URLs on the platform CDN inside raw page text.
func (p Platform) PDFPattern() *regexp.Regexp {
	return p.pdfPattern
}

// EmbedPattern matches intermediary embed URLs inside raw page text. Nil when no embed domain is set.
func (p Platform) EmbedPattern() *regexp.Regexp {
	return p.embedURL
}

// IsTalkURL reports whether raw is an individual talk page on the platform, excluding index
// and known non-talk paths.
func (p Platform) IsTalkURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !urlnorm.HostMatches(raw, p.Domain) {
		return false
	}
	path := u.EscapedPath()
	for _, skip := range p.NonTalkPaths {
		if skip != "" && strings.Contains(path+"/", skip) {
			return false
		}
	}
	return p.talkPath != nil && p.talkPath.MatchString(path)
}

// Speaker derives the speaker name from the talk URL's first path segment.
func (p Platform) Speaker(raw string) string {
	if !urlnorm.HostMatches(raw, p.Domain) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	handle, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if handle == "" {
		return ""
	}
	if name, ok := p.Speakers[strings.ToLower(handle)]; ok {
		return name
	}
	words := strings.FieldsFunc(handle, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func matchesAny(raw string, domains []string) bool {
	for _, d := range domains {
		if urlnorm.HostMatches(raw, d) {
			return true
		}
	}
	return false
}
