package extract

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

const talkURL = "https://noti.st/jdoe/Ab12Cd/scaling-go-services"

func pageFromHTML(t *testing.T, pageURL, html string) *talk.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	require.NoError(t, err)
	return &talk.Page{URL: pageURL, StatusCode: 200, Body: []byte(html), Doc: doc}
}

func fixture(t *testing.T) *talk.Page {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "talk.html"))
	require.NoError(t, err)
	return pageFromHTML(t, talkURL, string(data))
}

func newParser() *HTMLParser {
	p := platform.Notist()
	p.Speakers = map[string]string{"jdoe": "Jane Doe"}
	return NewNotist(p.MustCompile())
}

func TestMetadataFromStructuralSelectors(t *testing.T) {
	t.Parallel()

	meta, err := newParser().Metadata(fixture(t))
	require.NoError(t, err)
	assert.Equal(t, "Scaling Go Services", meta.Title)
	assert.Equal(t, time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), meta.Date)
	assert.Equal(t, "GopherCon EU 2024", meta.Conference)
	assert.Equal(t, "Berlin, Germany", meta.Location)
	assert.Equal(t, "Jane Doe", meta.Speaker)
	assert.Equal(t, "Services grow. This talk covers how we scaled ours.\n\nWe look at queues, back-pressure, and profiling.",
		meta.Abstract)
}

func TestMetadataFallsBackToStructuredData(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	[{"@type":"WebPage"},{"datePublished":"2023-11-02T10:00:00Z",
	  "publication":{"name":"DevFest Nantes"},
	  "location":{"address":{"addressLocality":"Nantes","addressCountry":"France"}}}]
	</script></head><body>
	<div class="presentation-header"><h1>Fallback Talk</h1><time datetime="not a date"></time></div>
	<p>short</p>
	<p>This paragraph is long enough to count as an abstract because it runs past the one hundred character mark easily.</p>
	</body></html>`
	meta, err := newParser().Metadata(pageFromHTML(t, "https://noti.st/max-power/Zz99Yy/fallback", html))
	require.NoError(t, err)
	assert.Equal(t, "Fallback Talk", meta.Title)
	assert.Equal(t, "2023-11-02", meta.DateString())
	assert.Equal(t, "DevFest Nantes", meta.Conference)
	assert.Equal(t, "Nantes, France", meta.Location)
	assert.Equal(t, "Max Power", meta.Speaker)
	assert.Contains(t, meta.Abstract, "long enough to count")
}

func TestMetadataRequiredFields(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		html string
		want string
	}{
		"title": {
			html: `<html><body><time datetime="2024-01-01"></time></body></html>`,
			want: "missing title",
		},
		"date": {
			html: `<html><body><div class="presentation-header"><h1>T</h1>
				<p class="subhead"><a>Conf</a></p></div></body></html>`,
			want: "missing date",
		},
		"conference": {
			html: `<html><body><div class="presentation-header"><h1>T</h1></div>
				<time datetime="2024-01-01"></time></body></html>`,
			want: "missing conference",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := newParser().Metadata(pageFromHTML(t, talkURL, tc.html))
			require.Error(t, err)
			assert.True(t, errors.Is(err, talk.ErrExtraction))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestAbstractUsesLongContainerText(t *testing.T) {
	t.Parallel()

	long := "Container text without paragraphs that still goes on and on. "
	for len(long) <= 200 {
		long += "More words about the talk. "
	}
	html := `<html><body><div class="presentation-description">` + long + `</div></body></html>`
	page := pageFromHTML(t, talkURL, html)
	assert.Equal(t, clean(long), newParser().abstract(page.Doc))

	short := `<html><body><div class="presentation-description">A presentation at X.</div></body></html>`
	assert.Equal(t, "", newParser().abstract(pageFromHTML(t, talkURL, short).Doc))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, talk.ResourceCode, Classify("https://github.com/x/y"))
	assert.Equal(t, talk.ResourceSlides, Classify("https://docs.google.com/presentation/d/ID/edit"))
	assert.Equal(t, talk.ResourceSlides, Classify("https://drive.google.com/file/d/1/deck.pdf"))
	assert.Equal(t, talk.ResourceLink, Classify("https://drive.google.com/file/d/1/view"))
	assert.Equal(t, talk.ResourceVideo, Classify("https://youtu.be/ID"))
	assert.Equal(t, talk.ResourceVideo, Classify("https://www.youtube.com/watch?v=ID"))
	assert.Equal(t, talk.ResourceLink, Classify("https://example.com/post"))
}

func TestResources(t *testing.T) {
	t.Parallel()

	res := newParser().Resources(fixture(t))
	require.Len(t, res, 4)
	assert.Equal(t, talk.Resource{URL: "https://github.com/jdoe/scaling-demo", Title: "Demo code", Type: talk.ResourceCode}, res[0])
	assert.Equal(t, talk.ResourceSlides, res[1].Type)
	assert.Equal(t, "blog.example.com", res[2].Title)
	assert.Equal(t, talk.ResourceLink, res[2].Type)
	assert.Equal(t, talk.ResourceVideo, res[3].Type)
	for _, r := range res {
		assert.Empty(t, r.Description)
	}
}

func TestResourcesAbsentSection(t *testing.T) {
	t.Parallel()

	res := newParser().Resources(pageFromHTML(t, talkURL, `<html><body><p>nothing</p></body></html>`))
	assert.Empty(t, res)
}

func TestAssets(t *testing.T) {
	t.Parallel()

	p := newParser()
	page := fixture(t)
	assert.Equal(t, "https://notist.ninja/embed/vid123", p.VideoEmbed(page))
	assert.Equal(t, "https://on.notist.cloud/pdf/deck4f2a.pdf", p.PDFCandidate(page))
	assert.True(t, p.SlidesEmbedded(page))
	assert.Equal(t, "https://on.notist.cloud/slides/deck4f2a/large-0.png", p.Thumbnail(page))
}

func TestPDFCandidatePriority(t *testing.T) {
	t.Parallel()

	p := newParser()
	direct := `<html><body><a href="/files/deck.PDF">deck</a>
		<section id="resources"><a download href="https://drive.google.com/x.pdf">r</a></section></body></html>`
	assert.Equal(t, "https://noti.st/files/deck.PDF", p.PDFCandidate(pageFromHTML(t, talkURL, direct)))

	pattern := `<html><body><script>window.deck = {"pdf":"https://on.notist.cloud/pdf/hidden.pdf"}</script></body></html>`
	assert.Equal(t, "https://on.notist.cloud/pdf/hidden.pdf", p.PDFCandidate(pageFromHTML(t, talkURL, pattern)))

	none := `<html><body><section id="resources"><ul class="resource-list">
		<li><h3><a href="https://example.com/paper.pdf">Paper</a></h3></li></ul></section></body></html>`
	assert.Equal(t, "", p.PDFCandidate(pageFromHTML(t, talkURL, none)))
}

func TestVideoEmbedIgnoresOtherFrames(t *testing.T) {
	t.Parallel()

	html := `<html><body><div id="video"><iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe></div></body></html>`
	assert.Equal(t, "", newParser().VideoEmbed(pageFromHTML(t, talkURL, html)))
}
