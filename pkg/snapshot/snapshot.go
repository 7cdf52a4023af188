// Package snapshot persists the last fetched population observations as a
// JSON file, so a deck can be rebuilt without calling the API.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/japaniel/unpops/pkg/unapi"
)

var (
	// ErrNotFound means no snapshot has been saved yet.
	ErrNotFound = errors.New("snapshot: no local copy")
	// ErrCorrupt means the snapshot file exists but cannot be decoded.
	ErrCorrupt = errors.New("snapshot: file is corrupt")
)

const (
	// DefaultDir and DefaultDataset give data/countries.json.
	DefaultDir     = "data"
	DefaultDataset = "countries"

	// LockTimeout bounds the wait for another process's save to finish.
	LockTimeout = 5 * time.Second
)

// Snapshot is the persisted observation list. ModTime is filled on Load and
// is not part of the file.
type Snapshot struct {
	Observations []unapi.Observation
	ModTime      time.Time
}

// Years returns the distinct observation years in ascending order.
func (s *Snapshot) Years() []int {
	seen := map[int]bool{}
	var years []int
	for _, o := range s.Observations {
		if !seen[o.Year] {
			seen[o.Year] = true
			years = append(years, o.Year)
		}
	}
	sort.Ints(years)
	return years
}

// Store reads and writes one dataset file under a directory.
type Store struct {
	dir     string
	dataset string
}

// NewStore returns a Store for <dir>/<dataset>.json. Empty arguments fall
// back to the defaults.
func NewStore(dir, dataset string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &Store{dir: dir, dataset: dataset}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.dataset+".json")
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, "."+s.dataset+".lock")
}

// Exists reports whether a snapshot file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// LastModified returns the snapshot file's modification time.
func (s *Store) LastModified() (time.Time, error) {
	info, err := os.Stat(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("stat snapshot: %w", err)
	}
	return info.ModTime(), nil
}

// Load reads and validates the snapshot.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, s.Path())
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var obs []unapi.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path(), err)
	}
	for i, o := range obs {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %v", ErrCorrupt, s.Path(), i, err)
		}
	}

	mod, err := s.LastModified()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Observations: obs, ModTime: mod}, nil
}

// Save replaces the snapshot file with obs. The file is written to a
// temporary name and renamed into place while holding an exclusive lock, so
// readers see either the old or the new file and concurrent saves do not
// interleave.
func (s *Store) Save(ctx context.Context, obs []unapi.Observation) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := Encode(obs)
	if err != nil {
		return err
	}

	fl := flock.New(s.lockPath())
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock snapshot: %s is held by another process", s.lockPath())
	}
	defer func() { _ = fl.Unlock() }()

	tmp := fmt.Sprintf("%s.%d.tmp", s.Path(), os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Encode renders observations in the snapshot file format: a JSON array
// with sorted keys, four-space indent and a trailing newline.
func Encode(obs []unapi.Observation) ([]byte, error) {
	if obs == nil {
		obs = []unapi.Observation{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(obs); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
