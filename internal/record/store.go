package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const lockFile = ".talkmigrate.lock"

// ErrAlreadyMigrated is returned by Stage when a record for the source URL
// appeared since the run started.
var ErrAlreadyMigrated = errors.New("record: source already migrated")

// ErrExists is returned by Stage when the target filename is taken by a
// record from a different source.
var ErrExists = errors.New("record: file already exists")

// Store manages the records directory. Writes are serialized across processes
// through an advisory file lock.
type Store struct {
	dir    string
	lock   *flock.Flock
	logger *zap.Logger
}

// NewStore opens dir, creating it when absent.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("records directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create records dir %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFile)),
		logger: logger,
	}, nil
}

// Dir returns the records directory.
func (s *Store) Dir() string {
	return s.dir
}

// Scan reads every record in the directory. Records whose source cannot be
// parsed are logged and skipped.
func (s *Store) Scan() ([]Entry, error) {
	return scan(s.dir, s.logger)
}

func scan(dir string, logger *zap.Logger) ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	sort.Strings(matches)
	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		content, err := os.ReadFile(path) // #nosec G304 -- path comes from globbing the records dir
		if err != nil {
			logger.Warn("Skipping unreadable record", zap.String("path", path), zap.Error(err))
			continue
		}
		src, err := SourceURL(content)
		if err != nil {
			logger.Warn("Skipping record with malformed front matter", zap.String("path", path), zap.Error(err))
			continue
		}
		entries = append(entries, Entry{Path: path, SourceURL: src})
	}
	return entries, nil
}

// Find returns the record migrated from sourceURL, if any.
func (s *Store) Find(sourceURL string) (Entry, bool, error) {
	return find(s, sourceURL)
}

// Index is a read-only view of a records directory. It neither creates nor
// locks the directory; a missing directory holds no records.
type Index struct {
	dir    string
	logger *zap.Logger
}

// NewIndex opens a read-only view of dir.
func NewIndex(dir string, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{dir: dir, logger: logger}
}

// Dir returns the indexed directory.
func (i *Index) Dir() string {
	return i.dir
}

// Scan reads every record in the directory.
func (i *Index) Scan() ([]Entry, error) {
	return scan(i.dir, i.logger)
}

// Find returns the record migrated from sourceURL, if any.
func (i *Index) Find(sourceURL string) (Entry, bool, error) {
	return find(i, sourceURL)
}

func find(s interface{ Scan() ([]Entry, error) }, sourceURL string) (Entry, bool, error) {
	entries, err := s.Scan()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := AlreadyMigrated(sourceURL, entries)
	return e, ok, nil
}

// Staged is a record written to a temporary file that is not yet visible
// under its final name. The store stays locked until Commit or Discard.
type Staged struct {
	store *Store
	tmp   string
	dest  string
	done  bool
}

// Stage takes the directory lock, re-checks idempotency, and writes content to
// a temporary file next to its destination.
func (s *Store) Stage(ctx context.Context, filename, sourceURL string, content []byte) (*Staged, error) {
	if filepath.Base(filename) != filename || !strings.HasSuffix(filename, ".md") {
		return nil, fmt.Errorf("invalid record filename %q", filename)
	}
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock records dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock records dir: not acquired")
	}
	staged, err := s.stage(filename, sourceURL, content)
	if err != nil {
		s.unlock()
		return nil, err
	}
	return staged, nil
}

func (s *Store) stage(filename, sourceURL string, content []byte) (*Staged, error) {
	if e, ok, err := s.Find(sourceURL); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMigrated, e.Path)
	}
	dest := filepath.Join(s.dir, filename)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", dest, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".stage-*.md.tmp")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	_, writeErr := tmp.Write(content)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("write staging file: %w", errors.Join(writeErr, closeErr))
	}
	return &Staged{store: s, tmp: tmp.Name(), dest: dest}, nil
}

// Path is the final location of the record.
func (st *Staged) Path() string {
	return st.dest
}

// Content reads the staged bytes back from disk.
func (st *Staged) Content() ([]byte, error) {
	data, err := os.ReadFile(st.tmp)
	if err != nil {
		return nil, fmt.Errorf("read staged record: %w", err)
	}
	return data, nil
}

// Commit moves the staged file to its final name and releases the lock.
func (st *Staged) Commit() (string, error) {
	if st.done {
		return "", fmt.Errorf("staged record already finalized")
	}
	st.done = true
	defer st.store.unlock()
	if err := os.Rename(st.tmp, st.dest); err != nil {
		_ = os.Remove(st.tmp)
		return "", fmt.Errorf("commit record %s: %w", st.dest, err)
	}
	st.store.logger.Info("Record written", zap.String("path", st.dest))
	return st.dest, nil
}

// Discard deletes the staged file and releases the lock. It is safe to call
// after Commit.
func (st *Staged) Discard() {
	if st.done {
		return
	}
	st.done = true
	defer st.store.unlock()
	if err := os.Remove(st.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		st.store.logger.Warn("Could not remove staged record", zap.String("path", st.tmp), zap.Error(err))
	}
}

func (s *Store) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("Could not release records lock", zap.Error(err))
	}
}
