// Package lock provides non-blocking mutual exclusion for deployment
// cycles. Nothing here ever waits: if the lock is held, the caller is
// told so and is expected to give up rather than queue.
package lock

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Locker is acquired once per cycle. TryLock returns ok == false if
// someone else holds the lock; release must be called exactly once
// when ok is true.
type Locker interface {
	TryLock() (release func(), ok bool, err error)
}

// Chan is an in-process lock, for when all triggers share a process.
type Chan chan struct{}

func NewChan() Chan {
	return make(Chan, 1)
}

func (c Chan) TryLock() (func(), bool, error) {
	select {
	case c <- struct{}{}:
		return func() { <-c }, true, nil
	default:
		return nil, false, nil
	}
}

// File is an advisory lock (flock(2)) on a file, for when triggers
// may run in separate processes, e.g., the daemon and a one-shot
// `fhdeployctl run`.
type File struct {
	Path string
}

func (f File) TryLock() (func(), bool, error) {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return nil, false, errors.Wrap(err, "creating lock directory")
	}
	file, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, errors.Wrap(err, "opening lock file")
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "locking "+f.Path)
	}
	return func() {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		file.Close()
	}, true, nil
}

// All acquires each of the given lockers in order, releasing any
// already acquired if a later one is held or fails.
type All []Locker

func (all All) TryLock() (func(), bool, error) {
	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range all {
		release, ok, err := l.TryLock()
		if err != nil || !ok {
			releaseAll()
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return releaseAll, true, nil
}
