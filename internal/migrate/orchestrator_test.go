package migrate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talkmigrate/internal/acquire"
	"github.com/JakeFAU/talkmigrate/internal/extract"
	"github.com/JakeFAU/talkmigrate/internal/notify/memory"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/record"
	"github.com/JakeFAU/talkmigrate/internal/storage"
	memstore "github.com/JakeFAU/talkmigrate/internal/storage/memory"
	"github.com/JakeFAU/talkmigrate/internal/talk"
	"github.com/JakeFAU/talkmigrate/internal/validate"
	"github.com/JakeFAU/talkmigrate/internal/video"
)

const (
	talkURL  = "https://noti.st/jdoe/Ab12Cd/scaling-go-services"
	embedURL = "https://notist.ninja/embed/vid123"
	pdfURL   = "https://on.notist.cloud/pdf/deck4f2a.pdf"
	thumbURL = "https://on.notist.cloud/slides/deck4f2a/large-0.png"
)

// fakeWeb serves canned pages and files by URL.
type fakeWeb struct {
	mu      sync.Mutex
	pages   map[string]string
	files   map[string][]byte
	fetched []string
}

func newFakeWeb() *fakeWeb {
	return &fakeWeb{pages: map[string]string{}, files: map[string][]byte{}}
}

func (w *fakeWeb) Fetch(_ context.Context, rawURL string) (*talk.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fetched = append(w.fetched, rawURL)
	html, ok := w.pages[rawURL]
	if !ok {
		return nil, talk.NewFetchError(rawURL, 404, "unexpected status", nil)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	return &talk.Page{URL: rawURL, StatusCode: 200, Body: []byte(html), Doc: doc}, nil
}

func (w *fakeWeb) Download(_ context.Context, rawURL, dest string) (int64, error) {
	w.mu.Lock()
	data, ok := w.files[rawURL]
	w.mu.Unlock()
	if !ok {
		return 0, talk.NewFetchError(rawURL, 404, "unexpected status", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

type pageOpts struct {
	pdf       bool
	slides    bool
	video     bool
	resources []link
}

type link struct{ href, title string }

var demoResources = []link{
	{"https://github.com/jdoe/scaling-demo", "Demo code"},
	{"https://blog.example.com/scaling", "Write-up"},
}

func talkPage(o pageOpts) string {
	var b bytes.Buffer
	b.WriteString(`<html><head><meta property="og:image" content="` + thumbURL + `"></head><body>
<header class="presentation-header">
  <h1><a href="/jdoe/Ab12Cd/scaling-go-services">Scaling Go Services</a></h1>
  <p class="subhead">A presentation at <a href="https://gophercon.eu">GopherCon EU 2024</a>
    in June 2024 in Berlin, Germany by <a href="/jdoe">Jane Doe</a></p>
  <time datetime="2024-06-13T09:30:00+02:00">June 13, 2024</time>
</header>
<div class="presentation-description"><p>Services grow. This talk covers how we scaled ours.</p></div>
`)
	if o.slides {
		b.WriteString(`<div class="deck"><div class="slide"><img src="` + thumbURL + `"></div></div>` + "\n")
	}
	if o.pdf {
		b.WriteString(`<a class="download" download href="` + pdfURL + `">Download PDF</a>` + "\n")
	}
	if o.video {
		b.WriteString(`<section id="video"><iframe src="` + embedURL + `"></iframe></section>` + "\n")
	}
	if len(o.resources) > 0 {
		b.WriteString(`<section id="resources"><ul class="resource-list">` + "\n")
		for _, l := range o.resources {
			b.WriteString(`  <li><h3><a href="` + l.href + `">` + l.title + `</a></h3></li>` + "\n")
		}
		b.WriteString("</ul></section>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

type harness struct {
	web       *fakeWeb
	uploader  *memstore.Uploader
	publisher *memory.Publisher
	store     *record.Store
	dir       string
	thumbs    string
	orch      *Orchestrator
}

func newHarness(t *testing.T, page pageOpts, hooks ...Hook) *harness {
	t.Helper()
	p := platform.Notist()
	p.Speakers = map[string]string{"jdoe": "Jane Doe"}
	p = p.MustCompile()

	root := t.TempDir()
	h := &harness{
		web:       newFakeWeb(),
		uploader:  memstore.New("", storage.Folder{ID: "talks", Name: "Talks"}),
		publisher: memory.New(),
		dir:       filepath.Join(root, "_talks"),
		thumbs:    filepath.Join(root, "thumbs"),
	}
	h.web.pages[talkURL] = talkPage(page)
	h.web.pages[embedURL] = `<html><body><iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe></body></html>`
	h.web.files[pdfURL] = []byte("%PDF-1.7 deck")
	h.web.files[thumbURL] = []byte("\x89PNG preview")

	store, err := record.NewStore(h.dir, nil)
	require.NoError(t, err)
	h.store = store

	parser := extract.NewNotist(p)
	h.orch = New(Deps{
		Fetcher:  h.web,
		Parser:   parser,
		Resolver: video.NewResolver(h.web, parser, p, nil),
		Acquirer: acquire.New(acquire.Config{
			StagingDir:   filepath.Join(root, "staging"),
			ThumbnailDir: h.thumbs,
		}, parser, h.web, h.uploader, p, nil),
		Store:      store,
		Provenance: validate.NewProvenance(p),
		Hooks:      hooks,
		Publisher:  h.publisher,
		Clock:      fixedClock{},
		IDs:        fixedIDs("run-1"),
	})
	return h
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

type fixedIDs string

func (f fixedIDs) RunID() string { return string(f) }

func readRecord(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestMigrateCompleteTalk(t *testing.T) {
	h := newHarness(t, pageOpts{pdf: true, slides: true, video: true, resources: demoResources})

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, OutcomeMigrated, res.Outcome())
	assert.Equal(t, "run-1", res.RunID)

	rec := res.Record
	assert.Equal(t, talk.StatusCompleted, rec.Status)
	slides, ok := rec.Slides()
	require.True(t, ok)
	assert.Equal(t, "https://drive.google.com/file/d/mem-1/view", slides.URL)
	vid, ok := rec.Video()
	require.True(t, ok)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", vid.URL)
	assert.Equal(t, talk.ResourceSlides, rec.Resources[0].Type)
	assert.Equal(t, talk.ResourceVideo, rec.Resources[1].Type)

	obj, ok := h.uploader.Object("mem-1")
	require.True(t, ok)
	assert.True(t, obj.Public)
	assert.Equal(t, "talks", obj.Parent)

	require.NotEmpty(t, res.Path)
	assert.True(t, strings.HasPrefix(filepath.Base(res.Path), "2024-06-13-"))
	content := readRecord(t, res.Path)
	assert.Contains(t, content, "# Scaling Go Services")
	assert.Contains(t, content, "**Slides:** [Slides (PDF)](https://drive.google.com/file/d/mem-1/view)")
	assert.Contains(t, content, "## Resources")
	assert.Contains(t, content, "https://github.com/jdoe/scaling-demo")
	assert.NotContains(t, content, "on.notist.cloud/pdf")
	assert.True(t, validate.Record([]byte(content), rec.Resources).OK)

	base := strings.TrimSuffix(filepath.Base(res.Path), ".md")
	assert.FileExists(t, filepath.Join(h.thumbs, base+".png"))
	assert.Equal(t, "/assets/images/thumbnails/"+base+".png", rec.ThumbnailPath)

	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, OutcomeMigrated, events[0].Result)
	assert.Equal(t, res.Path, events[0].File)
	assert.Contains(t, res.Summary(), "Migrated "+talkURL)
}

func TestMigrateWithoutVideoIsPending(t *testing.T) {
	h := newHarness(t, pageOpts{pdf: true, slides: true})

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, talk.StatusVideoPending, res.Record.Status)
	_, ok := res.Record.Video()
	assert.False(t, ok)
	assert.Contains(t, readRecord(t, res.Path), "status: video-pending")
	assert.NotContains(t, readRecord(t, res.Path), "## Resources")
	assert.Contains(t, res.Summary(), "video:     pending")
}

func TestMigrateWithoutPDF(t *testing.T) {
	h := newHarness(t, pageOpts{video: true})

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	_, ok := res.Record.Slides()
	assert.False(t, ok)
	assert.Empty(t, res.Record.ThumbnailPath)
	assert.Equal(t, 0, h.uploader.Len())

	content := readRecord(t, res.Path)
	assert.NotContains(t, content, "**Slides:**")
	assert.Contains(t, content, "youtube.com/watch?v=dQw4w9WgXcQ")
}

func TestMigrateSkipsAlreadyMigrated(t *testing.T) {
	h := newHarness(t, pageOpts{pdf: true, slides: true, video: true})
	ctx := context.Background()

	first := h.orch.Migrate(ctx, talkURL, Options{})
	require.True(t, first.OK(), first.Errors)
	fetches := len(h.web.fetched)

	second := h.orch.Migrate(ctx, talkURL+"/", Options{})
	assert.True(t, second.OK())
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, fetches, len(h.web.fetched), "no network access on a skip")
	assert.Equal(t, 1, h.uploader.Len())
	assert.Contains(t, second.Summary(), "Already migrated")

	entries, err := h.store.Scan()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMigrateSlidesWithoutDownload(t *testing.T) {
	h := newHarness(t, pageOpts{slides: true, video: true, resources: []link{
		{"https://github.com/jdoe/scaling-demo", "Demo code"},
		{"https://example.org/handout.pdf", "Handout (PDF)"},
		{"https://blog.example.com/scaling", "Write-up"},
	}})

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	assert.False(t, res.OK())
	assert.Equal(t, StateAcquirePDF, res.State)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "enable download")
	assertNoRecords(t, h.store)
	require.Len(t, h.publisher.Events(), 1)
	assert.Equal(t, OutcomeFailed, h.publisher.Events()[0].Result)
}

func TestMigrateResourceListSlides(t *testing.T) {
	h := newHarness(t, pageOpts{resources: []link{
		{"https://github.com/jdoe/scaling-demo", "Demo code"},
		{"https://docs.google.com/presentation/d/A", "Deck A"},
		{"https://docs.google.com/presentation/d/B", "Deck B"},
	}})

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	rec := res.Record
	require.Len(t, rec.Resources, 3)
	assert.Equal(t, 1, rec.Count(talk.ResourceSlides))
	assert.Equal(t, talk.ResourceSlides, rec.Resources[0].Type)
	assert.Equal(t, "https://docs.google.com/presentation/d/A", rec.Resources[0].URL)
	assert.Equal(t, talk.ResourceCode, rec.Resources[1].Type)
	assert.Equal(t, talk.ResourceLink, rec.Resources[2].Type)
	assert.Equal(t, talk.StatusVideoPending, rec.Status)
	assert.Equal(t, 0, h.uploader.Len())

	content := readRecord(t, res.Path)
	assert.Contains(t, content, "**Slides:** [Deck A](https://docs.google.com/presentation/d/A)")
	resources := content[strings.Index(content, "## Resources"):]
	assert.Contains(t, resources, "- [Demo code](https://github.com/jdoe/scaling-demo)")
	assert.Contains(t, resources, "- [Deck B](https://docs.google.com/presentation/d/B)")
	assert.NotContains(t, resources, "/d/A")
}

// noVideo finds nothing, leaving the resource list as the only video source.
type noVideo struct{}

func (noVideo) Resolve(context.Context, *talk.Page) (*talk.Resource, talk.Status) {
	return nil, talk.StatusVideoPending
}

func TestMigrateResourceListVideo(t *testing.T) {
	h := newHarness(t, pageOpts{pdf: true, slides: true, resources: []link{
		{"https://blog.example.com/scaling", "Write-up"},
		{"https://www.youtube.com/watch?v=AAAAAAAAAAA", "Recording"},
		{"https://www.youtube.com/watch?v=BBBBBBBBBBB", "Teaser"},
	}})
	h.orch.deps.Resolver = noVideo{}

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	rec := res.Record
	require.Len(t, rec.Resources, 4)
	assert.Equal(t, talk.ResourceSlides, rec.Resources[0].Type)
	assert.Equal(t, talk.ResourceVideo, rec.Resources[1].Type)
	assert.Equal(t, "https://www.youtube.com/watch?v=AAAAAAAAAAA", rec.Resources[1].URL)
	assert.Equal(t, 1, rec.Count(talk.ResourceVideo))
	assert.Equal(t, talk.StatusCompleted, rec.Status)

	content := readRecord(t, res.Path)
	assert.Contains(t, content, "**Video:** [Recording](https://www.youtube.com/watch?v=AAAAAAAAAAA)")
	resources := content[strings.Index(content, "## Resources"):]
	assert.Contains(t, resources, "- [Write-up](https://blog.example.com/scaling)")
	assert.Contains(t, resources, "- [Teaser](https://www.youtube.com/watch?v=BBBBBBBBBBB)")
	assert.NotContains(t, resources, "AAAAAAAAAAA")
}

func TestMigrateFetchFailure(t *testing.T) {
	h := newHarness(t, pageOpts{})

	res := h.orch.Migrate(context.Background(), "https://noti.st/jdoe/Zz99Yy/missing", Options{})
	assert.False(t, res.OK())
	assert.Equal(t, StateFetch, res.State)
	assert.Contains(t, res.Summary(), "failed at fetch")
	assertNoRecords(t, h.store)
}

// cdnAcquirer pretends acquisition produced an un-migrated CDN link.
type cdnAcquirer struct{}

func (cdnAcquirer) Acquire(context.Context, *talk.Page, string) (acquire.Outcome, error) {
	return acquire.Outcome{Slides: &talk.Resource{URL: pdfURL, Title: "Slides", Type: talk.ResourceSlides}}, nil
}

func TestMigrateRejectsScrapedSlides(t *testing.T) {
	h := newHarness(t, pageOpts{pdf: true, video: true})
	h.orch.deps.Acquirer = cdnAcquirer{}

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	assert.False(t, res.OK())
	assert.Equal(t, StateValidateProvenance, res.State)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "CDN")
	assertNoRecords(t, h.store)

	leftovers, err := filepath.Glob(filepath.Join(h.dir, ".stage-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

type recordingHook struct {
	name  string
	stage HookStage
	err   error
	runs  int
}

func (h *recordingHook) Name() string     { return h.name }
func (h *recordingHook) Stage() HookStage { return h.stage }
func (h *recordingHook) Run(context.Context) error {
	h.runs++
	return h.err
}

func TestMigrateRunsHooks(t *testing.T) {
	build := &recordingHook{name: "build", stage: HookBuild}
	tests := &recordingHook{name: "tests", stage: HookTest, err: fmt.Errorf("2 failures")}
	h := newHarness(t, pageOpts{video: true}, build, tests)

	res := h.orch.Migrate(context.Background(), talkURL, Options{})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, 1, build.runs)
	assert.Equal(t, 1, tests.runs)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "tests: 2 failures")
	assert.Contains(t, res.Summary(), "warning: tests")
}

func TestMigrateSkipTests(t *testing.T) {
	build := &recordingHook{name: "build", stage: HookBuild}
	tests := &recordingHook{name: "tests", stage: HookTest}
	h := newHarness(t, pageOpts{video: true}, build, tests)

	res := h.orch.Migrate(context.Background(), talkURL, Options{SkipTests: true})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, 1, build.runs)
	assert.Equal(t, 0, tests.runs)
}

func TestMigrateDryRunSkipsSideChannels(t *testing.T) {
	build := &recordingHook{name: "build", stage: HookBuild}
	h := newHarness(t, pageOpts{video: true}, build)

	res := h.orch.Migrate(context.Background(), talkURL, Options{DryRun: true})
	require.True(t, res.OK(), res.Errors)
	assert.Equal(t, 0, build.runs)
	assert.Empty(t, h.publisher.Events())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "check-existing", StateCheckExisting.String())
	assert.Equal(t, "validate-record", StateValidateRecord.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func assertNoRecords(t *testing.T, store *record.Store) {
	t.Helper()
	entries, err := store.Scan()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
