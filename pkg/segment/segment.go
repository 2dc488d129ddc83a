// Package segment implements the naming convention shared by HLS segments and
// their playlists: <stream-base>-<sequence>.ts next to <stream-base>.m3u8.
package segment

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Ext is the extension of segment files.
	Ext = ".ts"

	// PlaylistExt is the extension of playlist files.
	PlaylistExt = ".m3u8"
)

// ErrInvalidName is wrapped by every ParseError.
var ErrInvalidName = errors.New("invalid segment name")

// Segment identifies a single HLS segment file.
type Segment struct {
	// StreamBase is the name shared by the segment and its playlist
	StreamBase string

	// Sequence is the numeric suffix after the last '-' in the stem
	Sequence uint64

	// Path is the file path (or playlist URI) the segment was parsed from
	Path string
}

// ParseError reports a name that does not follow <stream-base>-<sequence>.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid segment name %q: %s", e.Name, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidName
}

// Parse parses a segment file path. The base name must carry the .ts extension.
func Parse(filename string) (Segment, error) {
	name := filepath.Base(filename)
	if !strings.HasSuffix(name, Ext) {
		return Segment{}, &ParseError{Name: name, Reason: "missing " + Ext + " extension"}
	}

	base, seq, err := splitStem(name, strings.TrimSuffix(name, Ext))
	if err != nil {
		return Segment{}, err
	}

	return Segment{StreamBase: base, Sequence: seq, Path: filename}, nil
}

// ParseURI parses a segment URI as listed in a playlist. Absolute URLs, query
// strings and directories are allowed; the extension is not checked.
func ParseURI(uri string) (Segment, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Segment{}, &ParseError{Name: uri, Reason: err.Error()}
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return Segment{}, &ParseError{Name: uri, Reason: "no file name"}
	}

	base, seq, err := splitStem(uri, strings.TrimSuffix(name, path.Ext(name)))
	if err != nil {
		return Segment{}, err
	}

	return Segment{StreamBase: base, Sequence: seq, Path: uri}, nil
}

// splitStem splits a stem on its last '-'.
func splitStem(name, stem string) (string, uint64, error) {
	if !utf8.ValidString(stem) {
		return "", 0, &ParseError{Name: name, Reason: "stem is not valid UTF-8"}
	}

	i := strings.LastIndexByte(stem, '-')
	if i < 0 {
		return "", 0, &ParseError{Name: name, Reason: "no '-' separator"}
	}

	base, num := stem[:i], stem[i+1:]
	if base == "" {
		return "", 0, &ParseError{Name: name, Reason: "empty stream base"}
	}

	seq, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return "", 0, &ParseError{Name: name, Reason: fmt.Sprintf("invalid sequence number %q", num)}
	}

	return base, seq, nil
}

// Name formats the file name of a segment.
func Name(streamBase string, sequence uint64) string {
	return fmt.Sprintf("%s-%d%s", streamBase, sequence, Ext)
}

// PlaylistName returns the playlist file name for a stream.
func PlaylistName(streamBase string) string {
	return streamBase + PlaylistExt
}

// PlaylistPath returns the path of the playlist that should list seg,
// located in the same directory as the segment.
func PlaylistPath(seg Segment) string {
	return filepath.Join(filepath.Dir(seg.Path), PlaylistName(seg.StreamBase))
}
