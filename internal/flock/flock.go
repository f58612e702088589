// Package flock provides OS-level exclusive file locking for the
// manifest store (C4), generalized from the teacher's internal/lockfile
// daemon-lock primitives to a simple acquire/release handle.
package flock

import (
	"errors"
	"os"
)

// ErrBusy is returned by TryAcquire when another process already holds
// the lock.
var ErrBusy = errors.New("flock: held by another process")

// Lock is an acquired exclusive lock on a file path. The file itself is
// never the payload being protected -- callers write their real content
// elsewhere (or to this same path) while holding the Lock.
type Lock struct {
	f    *os.File
	path string
}

// Acquire blocks until an exclusive lock on path is available.
func Acquire(path string) (*Lock, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := lockExclusiveBlocking(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// TryAcquire attempts a non-blocking exclusive lock, returning ErrBusy
// immediately if another process holds it.
func TryAcquire(path string) (*Lock, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	if err := lockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrBusy) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Release unlocks and closes the underlying file handle.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	return closeErr
}

func open(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
}
