// Package playlist reads HLS media playlists into the set of segment
// sequence numbers they currently reference.
package playlist

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/agleyzer/tsreaper/pkg/segment"
	"github.com/grafov/m3u8"
)

var (
	// ErrRead is wrapped by every error returned from Read and Decode.
	ErrRead = errors.New("playlist read error")

	// ErrNoSegments reports a playlist that references no segments.
	ErrNoSegments = errors.New("playlist contains no segments")
)

// Snapshot is the state of one playlist at the time it was read.
type Snapshot struct {
	// StreamBase is derived from the playlist file name (empty for Decode)
	StreamBase string

	// Path is the playlist file path (empty for Decode)
	Path string

	// Sequences lists referenced sequence numbers in playlist order
	Sequences []uint64

	// MinSequence is the smallest referenced sequence number
	MinSequence uint64

	// MediaSequence is the EXT-X-MEDIA-SEQUENCE value
	MediaSequence uint64

	// TargetDuration is the EXT-X-TARGETDURATION value in seconds
	TargetDuration float64
}

// Read opens and decodes the playlist at path.
func Read(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: failed to open playlist: %w", ErrRead, err)
	}
	defer f.Close()

	snap, err := Decode(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}

	snap.Path = path
	snap.StreamBase = strings.TrimSuffix(filepath.Base(path), segment.PlaylistExt)
	return snap, nil
}

// Decode parses a media playlist. Every segment URI must follow the segment
// naming convention; master playlists are rejected.
func Decode(r io.Reader) (Snapshot, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: failed to parse playlist: %w", ErrRead, err)
	}

	if listType != m3u8.MEDIA {
		return Snapshot{}, fmt.Errorf("%w: expected media playlist, got master playlist", ErrRead)
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: unexpected playlist type", ErrRead)
	}

	snap := Snapshot{
		MediaSequence:  mediaPlaylist.SeqNo,
		TargetDuration: mediaPlaylist.TargetDuration,
	}

	for _, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}

		ref, err := segment.ParseURI(seg.URI)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrRead, err)
		}

		if len(snap.Sequences) == 0 || ref.Sequence < snap.MinSequence {
			snap.MinSequence = ref.Sequence
		}
		snap.Sequences = append(snap.Sequences, ref.Sequence)
	}

	if len(snap.Sequences) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrRead, ErrNoSegments)
	}

	return snap, nil
}

// FileLookup finds playlists on the local filesystem.
type FileLookup struct{}

// Lookup reads the playlist for streamBase in dir. found is false only when
// the playlist file does not exist; any other failure is returned as an error.
func (FileLookup) Lookup(dir, streamBase string) (Snapshot, bool, error) {
	path := filepath.Join(dir, segment.PlaylistName(streamBase))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, true, fmt.Errorf("%w: failed to stat playlist: %w", ErrRead, err)
	}

	snap, err := Read(path)
	if err != nil {
		return Snapshot{}, true, err
	}

	return snap, true, nil
}
