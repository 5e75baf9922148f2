// Package validate holds the checks a record must pass before it is accepted.
package validate

import (
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// Provenance enforces where slides and video resources may be hosted.
type Provenance struct {
	platform platform.Platform
}

// NewProvenance builds a validator for the given platform policy.
func NewProvenance(p platform.Platform) *Provenance {
	return &Provenance{platform: p}
}

// Validate stops at the first offending resource. Code and link resources
// are never rejected.
func (v *Provenance) Validate(resources []talk.Resource) talk.ValidationResult {
	res := talk.Valid()
	p := v.platform
	for _, r := range resources {
		switch r.Type {
		case talk.ResourceSlides:
			switch {
			case p.IsCDN(r.URL):
				res.Fail("slides resource %q still points at the %s CDN (%s); upload the PDF to storage and re-run",
					r.Title, p.Name, r.URL)
			case p.IsScraped(r.URL):
				res.Fail("slides resource %q points at %s (%s); slides must be re-hosted on storage",
					r.Title, p.Domain, r.URL)
			case !p.AcceptedSlideHost(r.URL):
				res.Fail("slides resource %q is not hosted on an accepted storage domain: %s", r.Title, r.URL)
			}
		case talk.ResourceVideo:
			switch {
			case p.IsScraped(r.URL):
				res.Fail("video resource %q points at %s hosting (%s); link the original video platform instead",
					r.Title, p.Name, r.URL)
			case !p.AcceptedVideoHost(r.URL):
				res.Fail("video resource %q is not hosted on an accepted video platform: %s", r.Title, r.URL)
			}
		}
		if !res.OK {
			return res
		}
	}
	return res
}
