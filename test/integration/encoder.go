package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agleyzer/tsreaper/pkg/segment"
	"github.com/grafov/m3u8"
)

// Encoder simulates a live streaming server: it writes one segment file per
// tick into a directory and keeps a sliding media playlist next to them.
type Encoder struct {
	dir            string
	streamBase     string
	windowSize     uint
	targetDuration float64

	mu       sync.Mutex
	playlist *m3u8.MediaPlaylist
	next     uint64
}

// NewEncoder creates an encoder for streamBase in dir.
func NewEncoder(dir, streamBase string, windowSize uint, targetDuration float64) (*Encoder, error) {
	if windowSize == 0 {
		return nil, fmt.Errorf("window size must be positive")
	}

	// Capacity is only the ring buffer size; Slide keeps the window bounded.
	p, err := m3u8.NewMediaPlaylist(windowSize, windowSize+1)
	if err != nil {
		return nil, fmt.Errorf("failed to create media playlist: %w", err)
	}
	p.TargetDuration = targetDuration

	return &Encoder{
		dir:            dir,
		streamBase:     streamBase,
		windowSize:     windowSize,
		targetDuration: targetDuration,
		playlist:       p,
		next:           1,
	}, nil
}

// Advance writes the next segment and slides the playlist window over it.
// It returns the sequence number written.
func (e *Encoder) Advance() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.next
	name := segment.Name(e.streamBase, seq)
	if err := os.WriteFile(filepath.Join(e.dir, name), []byte(fmt.Sprintf("segment %d", seq)), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write segment: %w", err)
	}

	if e.playlist.Count() < e.windowSize {
		if err := e.playlist.Append(name, e.targetDuration, ""); err != nil {
			return 0, fmt.Errorf("failed to append segment: %w", err)
		}
	} else {
		e.playlist.Slide(name, e.targetDuration, "")
	}
	e.next++

	if err := e.writePlaylist(); err != nil {
		return 0, err
	}
	return seq, nil
}

// writePlaylist replaces the playlist file atomically so a reader never sees
// a partial write.
func (e *Encoder) writePlaylist() error {
	path := filepath.Join(e.dir, segment.PlaylistName(e.streamBase))
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, e.playlist.Encode().Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace playlist: %w", err)
	}
	return nil
}

// Window returns the sequence numbers currently listed in the playlist.
func (e *Encoder) Window() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	count := uint64(e.playlist.Count())
	out := make([]uint64, 0, count)
	for seq := e.next - count; seq < e.next; seq++ {
		out = append(out, seq)
	}
	return out
}

// Run advances the encoder once per interval until ctx is canceled.
func (e *Encoder) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.Advance(); err != nil {
				return err
			}
		}
	}
}

// Stop removes the playlist, as a streaming server does when a stream ends.
// The segments stay behind as orphans.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := os.Remove(filepath.Join(e.dir, segment.PlaylistName(e.streamBase)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove playlist: %w", err)
	}
	return nil
}
