//go:build !linux && !darwin && !freebsd && !netbsd

package fstime

import (
	"io/fs"
	"time"
)

func accessTime(fs.FileInfo) (time.Time, error) {
	return time.Time{}, ErrUnsupported
}

func changeTime(fs.FileInfo) (time.Time, error) {
	return time.Time{}, ErrUnsupported
}
