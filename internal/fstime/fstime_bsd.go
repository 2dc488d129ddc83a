//go:build darwin || freebsd || netbsd

package fstime

import (
	"io/fs"
	"syscall"
	"time"
)

func accessTime(info fs.FileInfo) (time.Time, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, ErrUnsupported
	}
	return time.Unix(int64(st.Atimespec.Sec), int64(st.Atimespec.Nsec)), nil
}

func changeTime(info fs.FileInfo) (time.Time, error) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, ErrUnsupported
	}
	return time.Unix(int64(st.Ctimespec.Sec), int64(st.Ctimespec.Nsec)), nil
}
