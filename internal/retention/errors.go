package retention

import (
	"errors"
	"fmt"
)

// Kind classifies an error local to one segment.
type Kind string

const (
	// KindParse is a malformed segment file name.
	KindParse Kind = "parse"
	// KindRead is an unreadable, malformed or empty playlist.
	KindRead Kind = "read"
	// KindMetadata is an unreadable file timestamp.
	KindMetadata Kind = "metadata"
	// KindDelete is a failed removal.
	KindDelete Kind = "delete"
)

// Error wraps a segment-local failure with its kind and the path involved.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error on %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
