// Package fstime reads the file timestamp used to age orphaned segments.
//
// Access times are what a client fetch updates, but many filesystems mount
// with noatime or relatime, so the source is configurable.
package fstime

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// ErrUnsupported is returned when the platform does not expose the
// requested timestamp.
var ErrUnsupported = errors.New("file timestamp not supported on this platform")

// Source selects which file timestamp is read.
type Source string

const (
	// Atime is the last access time.
	Atime Source = "atime"
	// Mtime is the last modification time.
	Mtime Source = "mtime"
	// Ctime is the last inode change time.
	Ctime Source = "ctime"
	// Newest is the later of atime and mtime.
	Newest Source = "newest"
)

// ParseSource converts a configuration string to a Source.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case Atime, Mtime, Ctime, Newest:
		return src, nil
	default:
		return "", fmt.Errorf("unknown time source %q (want atime, mtime, ctime or newest)", s)
	}
}

// Time extracts the timestamp selected by s from info.
func (s Source) Time(info fs.FileInfo) (time.Time, error) {
	switch s {
	case Atime:
		return accessTime(info)
	case Mtime:
		return info.ModTime(), nil
	case Ctime:
		return changeTime(info)
	case Newest:
		mt := info.ModTime()
		at, err := accessTime(info)
		if errors.Is(err, ErrUnsupported) {
			return mt, nil
		}
		if err != nil {
			return time.Time{}, err
		}
		if mt.After(at) {
			return mt, nil
		}
		return at, nil
	default:
		return time.Time{}, fmt.Errorf("unknown time source %q", string(s))
	}
}

// Clock supplies the current time and the configured timestamp of files.
type Clock struct {
	source Source
	now    func() time.Time
}

// NewClock returns a Clock reading src. A nil now uses time.Now.
func NewClock(src Source, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{source: src, now: now}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// LastAccess returns the configured timestamp of the file at path.
func (c *Clock) LastAccess(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}

	t, err := c.source.Time(info)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s of %s: %w", c.source, path, err)
	}
	return t, nil
}
