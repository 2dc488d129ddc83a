// Package retention decides whether an HLS segment file is safe to delete.
//
// Two independent rules apply. When the segment's playlist exists, the
// segment is stale once its sequence number falls below the smallest
// sequence the playlist still references. When no playlist exists, the
// segment is an orphan and is deleted once its file timestamp is older than
// the orphan age. Anything that cannot be determined is kept.
package retention

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/agleyzer/tsreaper/internal/playlist"
	"github.com/agleyzer/tsreaper/pkg/segment"
)

// DefaultOrphanAge is how long a segment without a playlist is kept.
const DefaultOrphanAge = 30 * time.Minute

// Verdict is the outcome of evaluating one segment.
type Verdict int

const (
	// Undetermined means the evaluation failed; the segment is kept.
	Undetermined Verdict = iota
	// Keep means the segment may still be served.
	Keep
	// Delete means the segment is provably unreachable.
	Delete
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case Delete:
		return "delete"
	default:
		return "undetermined"
	}
}

// Reason explains a verdict.
type Reason string

const (
	ReasonBelowWindow   Reason = "below-window"
	ReasonInWindow      Reason = "in-window"
	ReasonOrphanExpired Reason = "orphan-expired"
	ReasonOrphanRecent  Reason = "orphan-recent"
	ReasonError         Reason = "error"
)

// Decision is a verdict together with the data that produced it.
type Decision struct {
	Segment segment.Segment
	Verdict Verdict
	Reason  Reason

	// MinSequence is the playlist window start (playlist rule only)
	MinSequence uint64

	// Playlist is the snapshot the verdict was based on (playlist rule only)
	Playlist playlist.Snapshot

	// Age is the time since the file timestamp (orphan rule only)
	Age time.Duration

	// Err is set when Verdict is Undetermined
	Err error
}

// Playlists looks up the playlist of a stream.
type Playlists interface {
	// Lookup returns found=false only when no playlist file exists.
	Lookup(dir, streamBase string) (snap playlist.Snapshot, found bool, err error)
}

// Clock supplies the current time and file timestamps.
type Clock interface {
	Now() time.Time
	LastAccess(path string) (time.Time, error)
}

// Evaluator renders retention verdicts. It holds no state between calls.
type Evaluator struct {
	playlists Playlists
	clock     Clock
	orphanAge time.Duration
}

// New creates an Evaluator. A non-positive orphanAge uses DefaultOrphanAge.
func New(playlists Playlists, clock Clock, orphanAge time.Duration) *Evaluator {
	if orphanAge <= 0 {
		orphanAge = DefaultOrphanAge
	}
	return &Evaluator{
		playlists: playlists,
		clock:     clock,
		orphanAge: orphanAge,
	}
}

// OrphanAge returns the configured orphan age.
func (e *Evaluator) OrphanAge() time.Duration {
	return e.orphanAge
}

// EvaluatePath parses a segment file name and evaluates it. Names that do
// not parse are never deleted.
func (e *Evaluator) EvaluatePath(path string) Decision {
	seg, err := segment.Parse(path)
	if err != nil {
		return Decision{
			Segment: segment.Segment{Path: path},
			Verdict: Undetermined,
			Reason:  ReasonError,
			Err:     &Error{Kind: KindParse, Path: path, Err: err},
		}
	}
	return e.Evaluate(seg)
}

// Evaluate decides the fate of seg.
func (e *Evaluator) Evaluate(seg segment.Segment) Decision {
	snap, found, err := e.playlists.Lookup(filepath.Dir(seg.Path), seg.StreamBase)
	if err != nil {
		return undetermined(seg, KindRead, segment.PlaylistPath(seg), err)
	}

	if found {
		return e.evaluateListed(seg, snap)
	}
	return e.evaluateOrphan(seg)
}

// evaluateListed applies the playlist window rule. Sequence numbers grow
// monotonically per stream, so anything below the window start is gone for
// every client following the playlist.
func (e *Evaluator) evaluateListed(seg segment.Segment, snap playlist.Snapshot) Decision {
	d := Decision{
		Segment:     seg,
		Verdict:     Keep,
		Reason:      ReasonInWindow,
		MinSequence: snap.MinSequence,
		Playlist:    snap,
	}
	if seg.Sequence < snap.MinSequence {
		d.Verdict = Delete
		d.Reason = ReasonBelowWindow
	}
	return d
}

// evaluateOrphan applies the age rule to a segment without a playlist.
func (e *Evaluator) evaluateOrphan(seg segment.Segment) Decision {
	last, err := e.clock.LastAccess(seg.Path)
	if err != nil {
		return undetermined(seg, KindMetadata, seg.Path, err)
	}

	age := e.clock.Now().Sub(last)
	d := Decision{
		Segment: seg,
		Verdict: Keep,
		Reason:  ReasonOrphanRecent,
		Age:     age,
	}
	if age > e.orphanAge {
		d.Verdict = Delete
		d.Reason = ReasonOrphanExpired
	}
	return d
}

func undetermined(seg segment.Segment, kind Kind, path string, err error) Decision {
	return Decision{
		Segment: seg,
		Verdict: Undetermined,
		Reason:  ReasonError,
		Err:     &Error{Kind: kind, Path: path, Err: err},
	}
}

// String formats a decision for logs.
func (d Decision) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", d.Segment.Path, d.Verdict, d.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Segment.Path, d.Verdict, d.Reason)
}
