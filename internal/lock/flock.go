// Package lock provides advisory file locks on model records.
//
// Locks are taken with flock(2) on the record file itself. Writers replace
// records by rename, so a lock may end up held on an inode that is no longer
// linked at the path; Open detects this and retries against the new file.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// Mode selects shared or exclusive locking.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// maxReopen bounds how often Open chases a path that keeps being replaced.
const maxReopen = 64

// ErrUnstable is returned when the file under a path keeps changing while Open waits.
var ErrUnstable = errors.New("lock: file replaced repeatedly while acquiring lock")

// File is an open record file holding an advisory lock.
type File struct {
	*os.File
	path string
	mode Mode
}

// Open opens path and blocks until the lock is granted. If the path no longer
// exists once the lock is held, the returned error matches fs.ErrNotExist.
func Open(path string, mode Mode) (*File, error) {
	how := unix.LOCK_SH
	if mode == Exclusive {
		how = unix.LOCK_EX
	}

	for range maxReopen {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		if err := flock(f, how); err != nil {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}

		linked, err := stillLinked(f, path)
		if err != nil {
			unlock(f)
			f.Close()
			return nil, err
		}
		if linked {
			return &File{File: f, path: path, mode: mode}, nil
		}
		unlock(f)
		f.Close()
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnstable)
}

// Path returns the path the lock was requested for.
func (f *File) Path() string {
	return f.path
}

// Mode returns the lock mode.
func (f *File) Mode() Mode {
	return f.mode
}

// Release drops the lock and closes the file. It is safe to call more than once.
func (f *File) Release() error {
	if f == nil || f.File == nil {
		return nil
	}
	unlock(f.File)
	err := f.File.Close()
	f.File = nil
	return err
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// stillLinked reports whether path still names the locked file. A missing path
// is reported as fs.ErrNotExist; a replaced one as false.
func stillLinked(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat locked file: %w", err)
	}
	current, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return os.SameFile(held, current), nil
}
