// Package store persists model records as one JSON file per model.
//
// Every access goes through an advisory lock on the record file: reads take
// a shared lock, mutations an exclusive one held across read, decision and
// write. Locks only coordinate cooperating processes.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ucmodeler/modelstore/internal/lock"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/fsutil"
	"github.com/ucmodeler/modelstore/pkg/jsonutil"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/model"
	"github.com/ucmodeler/modelstore/pkg/naming"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultPollAttempts = 4
	filePerm            = 0644
)

// Store is a directory of model records.
type Store struct {
	dir          string
	logger       *logging.Logger
	pollInterval time.Duration
	pollAttempts int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for lock tracing.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPoll sets how WaitExists polls for a record.
func WithPoll(interval time.Duration, attempts int) Option {
	return func(s *Store) {
		s.pollInterval = interval
		s.pollAttempts = attempts
	}
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve models dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	s := &Store{
		dir:          abs,
		logger:       logging.WithFields(map[string]any{"component": "store"}),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute models directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing name. Names that would resolve outside the
// models directory are rejected.
func (s *Store) Path(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || name == "." || name == ".." {
		return "", errclass.ErrPathEscape.WithMessagef("invalid record name: %q", name)
	}
	p := filepath.Join(s.dir, name+model.FileExt)
	if err := naming.ValidatePathSafety(s.dir, p); err != nil {
		return "", err
	}
	return p, nil
}

// Read returns the record for name under a shared lock.
func (s *Store) Read(name string) (*model.Record, error) {
	f, err := s.lock(name, lock.Shared)
	if err != nil {
		return nil, err
	}
	defer s.release(name, f)

	return decode(name, f)
}

// Exists reports whether a record file for name is present.
func (s *Store) Exists(name string) bool {
	p, err := s.Path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// WaitExists polls for name a bounded number of times. It covers the window in
// which a concurrent rename has removed one name and not yet created the other.
func (s *Store) WaitExists(ctx context.Context, name string) bool {
	for i := 0; i < s.pollAttempts; i++ {
		if s.Exists(name) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.pollInterval):
		}
	}
	return s.Exists(name)
}

// Names lists the record names in the directory, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || fsutil.IsTemp(e.Name()) || !strings.HasSuffix(e.Name(), model.FileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), model.FileExt)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Create publishes rec under name. Fails with ErrAlreadyExists if the name is taken.
func (s *Store) Create(name string, rec *model.Record) error {
	p, err := s.Path(name)
	if err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	if err := fsutil.AtomicCreate(p, data, filePerm); err != nil {
		if errors.Is(err, fsutil.ErrExists) {
			return errclass.ErrAlreadyExists.WithMessagef("model %s already exists", name)
		}
		return fmt.Errorf("create %s: %w", name, err)
	}
	s.logger.Debug("record created", map[string]any{"model": name})
	return nil
}

// Write replaces the record for name under an exclusive lock.
func (s *Store) Write(name string, rec *model.Record) error {
	_, err := s.Update(name, func(cur *model.Record) (bool, error) {
		*cur = *rec
		return true, nil
	})
	return err
}

// Update runs fn on the current record while holding the exclusive lock for
// the whole read-decide-write cycle. The record is persisted when fn returns
// true. Corrupted records never reach fn.
func (s *Store) Update(name string, fn func(*model.Record) (bool, error)) (*model.Record, error) {
	f, err := s.lock(name, lock.Exclusive)
	if err != nil {
		return nil, err
	}
	defer s.release(name, f)

	rec, err := decode(name, f)
	if err != nil {
		return nil, err
	}
	save, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if !save {
		return rec, nil
	}
	data, err := encode(rec)
	if err != nil {
		return nil, err
	}
	if err := fsutil.AtomicWrite(f.Path(), data, filePerm); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return rec, nil
}

// Rename moves the record at oldName to newName while holding the lock on
// oldName. fn mutates the record before it is published under the new name.
// If newName is taken the original stays untouched and ErrNameConflict is returned.
func (s *Store) Rename(oldName, newName string, fn func(*model.Record) error) (*model.Record, error) {
	newPath, err := s.Path(newName)
	if err != nil {
		return nil, err
	}
	f, err := s.lock(oldName, lock.Exclusive)
	if err != nil {
		return nil, err
	}
	defer s.release(oldName, f)

	rec, err := decode(oldName, f)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	data, err := encode(rec)
	if err != nil {
		return nil, err
	}
	if err := fsutil.AtomicCreate(newPath, data, filePerm); err != nil {
		if errors.Is(err, fsutil.ErrExists) {
			return nil, errclass.ErrNameConflict.WithMessagef("model %s already exists", newName)
		}
		return nil, fmt.Errorf("rename %s: %w", oldName, err)
	}
	if err := fsutil.RemoveAndSync(f.Path()); err != nil {
		return nil, fmt.Errorf("rename %s: %w", oldName, err)
	}
	s.logger.Debug("record renamed", map[string]any{"model": oldName, "to": newName})
	return rec, nil
}

// RemoveIf deletes the record for name when check accepts it. The check and
// the unlink happen under one exclusive lock.
func (s *Store) RemoveIf(name string, check func(*model.Record) error) error {
	f, err := s.lock(name, lock.Exclusive)
	if err != nil {
		return err
	}
	defer s.release(name, f)

	rec, err := decode(name, f)
	if err != nil {
		return err
	}
	if err := check(rec); err != nil {
		return err
	}
	if err := fsutil.RemoveAndSync(f.Path()); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	s.logger.Debug("record removed", map[string]any{"model": name})
	return nil
}

func (s *Store) lock(name string, mode lock.Mode) (*lock.File, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := lock.Open(p, mode)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errclass.ErrNotFound.WithMessagef("model %s not found", name)
		}
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	s.logger.Debug("lock acquired", map[string]any{"model": name, "mode": mode.String()})
	return f, nil
}

func (s *Store) release(name string, f *lock.File) {
	if err := f.Release(); err != nil {
		s.logger.ErrorErr("lock release failed", err, map[string]any{"model": name})
		return
	}
	s.logger.Debug("lock released", map[string]any{"model": name})
}

func decode(name string, r io.Reader) (*model.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var rec model.Record
	if err := jsonutil.Decode(data, &rec); err != nil {
		return nil, errclass.ErrCorrupted.WithMessagef("model %s: %v", name, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, errclass.ErrCorrupted.WithMessagef("model %s: %v", name, err)
	}
	return &rec, nil
}

func encode(rec *model.Record) ([]byte, error) {
	data, err := jsonutil.CanonicalMarshalIndent(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}
