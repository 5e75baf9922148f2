package video

import (
	"bytes"
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talkmigrate/internal/extract"
	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
	"github.com/JakeFAU/talkmigrate/internal/talk"
)

// MockFetcher is a mock implementation of the PageFetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (*talk.Page, error) {
	args := m.Called(ctx, rawURL)
	page, _ := args.Get(0).(*talk.Page)
	return page, args.Error(1)
}

func page(t *testing.T, html string) *talk.Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	require.NoError(t, err)
	return &talk.Page{URL: "https://noti.st/jdoe/Ab12Cd/talk", Body: []byte(html), Doc: doc}
}

func newResolver(f PageFetcher) *Resolver {
	p := platform.Notist().MustCompile()
	return NewResolver(f, extract.NewNotist(p), p, nil)
}

func TestMineNormalizesYouTubeShapes(t *testing.T) {
	t.Parallel()

	text := `<a href="https://youtu.be/dQw4w9WgXcQ">a</a>
		<iframe src="https://www.youtube.com/embed/aaaaaaaaaaa?rel=0"></iframe>
		https://www.youtube.com/watch?v=dQw4w9WgXcQ&amp;t=10`
	assert.Equal(t, []string{"dQw4w9WgXcQ", "aaaaaaaaaaa"}, YouTubeIDs(text))
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Mine(text))
	assert.Equal(t, "https://vimeo.com/123456789", Mine(`<iframe src="https://player.vimeo.com/video/123456789"></iframe>`))
	assert.Equal(t, "", Mine("no video here"))
}

func TestResolveEmbedIframe(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://notist.ninja/embed/vid123").
		Return(page(t, `<iframe src="https://www.youtube-nocookie.com/embed/bbbbbbbbbbb"></iframe>`), nil)

	res, status := newResolver(fetcher).Resolve(context.Background(),
		page(t, `<div id="video"><iframe src="https://notist.ninja/embed/vid123"></iframe></div>`))
	require.NotNil(t, res)
	assert.Equal(t, talk.StatusCompleted, status)
	assert.Equal(t, "https://www.youtube.com/watch?v=bbbbbbbbbbb", res.URL)
	assert.Equal(t, talk.ResourceVideo, res.Type)
	fetcher.AssertExpectations(t)
}

func TestResolveEmbedFallsBackToIntermediaryURL(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://notist.ninja/embed/vid123").
		Return(nil, talk.NewFetchError("https://notist.ninja/embed/vid123", 500, "unexpected status", nil))

	res, status := newResolver(fetcher).Resolve(context.Background(),
		page(t, `<div id="video"><iframe src="https://notist.ninja/embed/vid123"></iframe></div>`))
	require.NotNil(t, res)
	assert.Equal(t, talk.StatusCompleted, status)
	assert.Equal(t, "https://notist.ninja/embed/vid123", res.URL)

	empty := new(MockFetcher)
	empty.On("Fetch", mock.Anything, mock.Anything).Return(page(t, "<html>nothing</html>"), nil)
	res, _ = newResolver(empty).Resolve(context.Background(),
		page(t, `<div id="video"><iframe src="https://notist.ninja/embed/vid123"></iframe></div>`))
	require.NotNil(t, res)
	assert.Equal(t, "https://notist.ninja/embed/vid123", res.URL)
}

func TestResolveDirectPatternSkipsFetch(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	res, status := newResolver(fetcher).Resolve(context.Background(),
		page(t, `<p>Watch at https://youtu.be/ccccccccccc</p>`))
	require.NotNil(t, res)
	assert.Equal(t, talk.StatusCompleted, status)
	assert.Equal(t, "https://www.youtube.com/watch?v=ccccccccccc", res.URL)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestResolveEmbedPatternInText(t *testing.T) {
	t.Parallel()

	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://notist.ninja/embed/zzz").
		Return(page(t, `<iframe src="https://player.vimeo.com/video/987654321"></iframe>`), nil)

	res, _ := newResolver(fetcher).Resolve(context.Background(),
		page(t, `<script>var v = "https://notist.ninja/embed/zzz";</script>`))
	require.NotNil(t, res)
	assert.Equal(t, "https://vimeo.com/987654321", res.URL)
}

func TestResolveNothingIsPending(t *testing.T) {
	t.Parallel()

	res, status := newResolver(new(MockFetcher)).Resolve(context.Background(), page(t, `<p>No recording yet.</p>`))
	assert.Nil(t, res)
	assert.Equal(t, talk.StatusVideoPending, status)
}
