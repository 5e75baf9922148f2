package record

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/talkmigrate/internal/talk"
)

const source = "https://noti.st/jdoe/Ab12Cd/go-tips"

func sampleRecord() talk.Record {
	rec := talk.NewRecord(source)
	rec.Metadata = talk.Metadata{
		Title:      "Go Tips [Revised]",
		Date:       time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		Conference: "DevConf 2024",
		Location:   "Brno, Czechia",
		Speaker:    "Jane Doe",
		Abstract:   "First paragraph.\n\nSecond paragraph.",
	}
	rec = rec.WithResources([]talk.Resource{
		{URL: "https://github.com/jdoe/go-tips", Title: "Code", Type: talk.ResourceCode},
		{URL: "https://go.dev/blog", Title: "Go blog", Type: talk.ResourceLink, Description: "Further reading"},
	})
	rec = rec.WithSlides(talk.Resource{URL: "https://drive.google.com/file/d/abc/view", Title: "Slides (PDF)"})
	return rec.WithVideo(talk.Resource{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", Title: "Video"})
}

func TestAssembleLayout(t *testing.T) {
	content, err := Assemble(sampleRecord())
	require.NoError(t, err)
	doc := string(content)

	assert.True(t, strings.HasPrefix(doc, "---\nlayout: talk\n"))
	assert.Contains(t, doc, "status: completed\n")
	assert.Contains(t, doc, "<!-- source_url: "+source+" -->")
	assert.Contains(t, doc, "\n# Go Tips [Revised]\n")
	assert.Contains(t, doc, "**Conference:** DevConf 2024\n")
	assert.Contains(t, doc, "**Date:** 2024-03-14\n")
	assert.Contains(t, doc, "**Slides:** [Slides (PDF)](https://drive.google.com/file/d/abc/view)\n")
	assert.Contains(t, doc, "**Video:** [Video](https://www.youtube.com/watch?v=dQw4w9WgXcQ)\n")
	assert.Contains(t, doc, "A presentation at DevConf 2024 in March 2024 in Brno, Czechia by Jane Doe.\n")
	assert.Contains(t, doc, "## Abstract\n\nFirst paragraph.\n\nSecond paragraph.\n")
	assert.Contains(t, doc, "## Resources\n\n- [Code](https://github.com/jdoe/go-tips)\n- [Go blog](https://go.dev/blog) - Further reading\n")

	order := []string{"layout: talk", "<!-- source_url", "# Go Tips", "**Conference:**", "**Date:**",
		"**Slides:**", "**Video:**", "A presentation at", "## Abstract", "## Resources"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(doc, marker)
		require.Greater(t, idx, last, marker)
		last = idx
	}
}

func TestAssembleMinimal(t *testing.T) {
	rec := talk.NewRecord(source)
	rec.Metadata = talk.Metadata{
		Title:      "Bare",
		Date:       time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Conference: "Meetup",
	}
	content, err := Assemble(rec)
	require.NoError(t, err)
	doc := string(content)

	assert.Contains(t, doc, "status: video-pending\n")
	assert.NotContains(t, doc, SlidesPrefix)
	assert.NotContains(t, doc, VideoPrefix)
	assert.NotContains(t, doc, AbstractHeading)
	assert.NotContains(t, doc, ResourcesHeading)
	assert.Contains(t, doc, "A presentation at Meetup in January 2023.\n")
}

func TestSourceURL(t *testing.T) {
	content, err := Assemble(sampleRecord())
	require.NoError(t, err)
	got, err := SourceURL(content)
	require.NoError(t, err)
	assert.Equal(t, source, got)

	legacy := "---\nlayout: talk\nsource_url: https://noti.st/old/Zz99/legacy\n---\n# Old\n"
	got, err = SourceURL([]byte(legacy))
	require.NoError(t, err)
	assert.Equal(t, "https://noti.st/old/Zz99/legacy", got)

	got, err = SourceURL([]byte("# no front matter\n"))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = SourceURL([]byte("---\nlayout: [unclosed\n---\n"))
	assert.Error(t, err)

	_, err = SourceURL([]byte("---\nlayout: talk\n"))
	assert.Error(t, err)
}

func TestSplitFrontMatter(t *testing.T) {
	fm, body, err := SplitFrontMatter([]byte("---\nlayout: talk\n---\n# Title\n"))
	require.NoError(t, err)
	assert.Equal(t, "layout: talk\n", string(fm))
	assert.Equal(t, "# Title\n", string(body))
}

func TestAlreadyMigratedNormalizes(t *testing.T) {
	existing := []Entry{
		{Path: "a.md"},
		{Path: "b.md", SourceURL: "http://noti.st/jdoe/Ab12Cd/go-tips"},
	}
	e, ok := AlreadyMigrated(source+"/", existing)
	assert.True(t, ok)
	assert.Equal(t, "b.md", e.Path)

	_, ok = AlreadyMigrated("https://noti.st/jdoe/Other1/x", existing)
	assert.False(t, ok)
}

func TestStoreScanSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	good, err := Assemble(sampleRecord())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.md"), good, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.md"), []byte("---\ntitle: [oops\n---\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	entries, err := store.Scan()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, source, entries[0].SourceURL)

	e, ok, err := store.Find("http://noti.st/jdoe/Ab12Cd/go-tips/")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "good.md"), e.Path)
}

func TestIndexIsReadOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "_talks")
	idx := NewIndex(dir, nil)

	entries, err := idx.Scan()
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "index must not create the directory")

	require.NoError(t, os.MkdirAll(dir, 0o750))
	good, err := Assemble(sampleRecord())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.md"), good, 0o600))

	e, ok, err := idx.Find(source + "/")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "good.md"), e.Path)
	_, err = os.Stat(filepath.Join(dir, lockFile))
	assert.True(t, os.IsNotExist(err), "index must not take the lock")
}

func TestStageCommit(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)
	content, err := Assemble(sampleRecord())
	require.NoError(t, err)

	staged, err := store.Stage(context.Background(), "2024-03-14-devconf-go-tips.md", source, content)
	require.NoError(t, err)

	_, statErr := os.Stat(staged.Path())
	assert.True(t, os.IsNotExist(statErr), "record must not be visible before commit")

	read, err := staged.Content()
	require.NoError(t, err)
	assert.Equal(t, content, read)

	path, err := staged.Commit()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-03-14-devconf-go-tips.md"), path)
	staged.Discard()

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	_, err = store.Stage(context.Background(), "another-name.md", source, content)
	assert.ErrorIs(t, err, ErrAlreadyMigrated)
}

func TestStageDiscardLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)

	staged, err := store.Stage(context.Background(), "x.md", source, []byte("draft"))
	require.NoError(t, err)
	staged.Discard()

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	_, err = os.Stat(filepath.Join(dir, "x.md"))
	assert.True(t, os.IsNotExist(err))

	// The lock is released, so a second stage succeeds.
	staged, err = store.Stage(context.Background(), "x.md", source, []byte("draft"))
	require.NoError(t, err)
	staged.Discard()
}

func TestStageRejectsCollisionAndBadNames(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken.md"), []byte("# other\n"), 0o600))

	_, err = store.Stage(context.Background(), "taken.md", source, []byte("x"))
	assert.ErrorIs(t, err, ErrExists)

	_, err = store.Stage(context.Background(), "../escape.md", source, []byte("x"))
	assert.Error(t, err)
	_, err = store.Stage(context.Background(), "no-extension", source, []byte("x"))
	assert.Error(t, err)
}
