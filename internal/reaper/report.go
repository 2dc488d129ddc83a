package reaper

import (
	"time"

	"github.com/agleyzer/tsreaper/internal/metrics"
	"github.com/agleyzer/tsreaper/internal/retention"
)

// Report summarizes one cleanup cycle.
type Report struct {
	ID             string        `json:"id"`
	Dir            string        `json:"dir"`
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration_ns"`
	DryRun         bool          `json:"dry_run"`
	Scanned        int           `json:"scanned"`
	Deleted        int           `json:"deleted"`
	WouldDelete    int           `json:"would_delete,omitempty"`
	Kept           int           `json:"kept"`
	Undetermined   int           `json:"undetermined"`
	DeleteFailures int           `json:"delete_failures"`
	BytesReclaimed int64         `json:"bytes_reclaimed"`

	DeletedByReason map[retention.Reason]int `json:"deleted_by_reason,omitempty"`
	Errors          map[retention.Kind]int   `json:"errors,omitempty"`
}

func newReport(id, dir string, started time.Time, dryRun bool) Report {
	return Report{
		ID:              id,
		Dir:             dir,
		Started:         started,
		DryRun:          dryRun,
		DeletedByReason: make(map[retention.Reason]int),
		Errors:          make(map[retention.Kind]int),
	}
}

// outcome is the result of processing one candidate.
type outcome struct {
	decision retention.Decision
	size     int64
	removed  bool
	err      error
}

func (r *Report) add(o outcome) {
	r.Scanned++

	if kind := retention.KindOf(o.decision.Err); kind != "" {
		r.Errors[kind]++
	}

	switch o.decision.Verdict {
	case retention.Keep:
		r.Kept++
	case retention.Undetermined:
		r.Undetermined++
	case retention.Delete:
		switch {
		case o.err != nil:
			r.DeleteFailures++
			r.Errors[retention.KindDelete]++
		case o.removed:
			r.Deleted++
			r.BytesReclaimed += o.size
			r.DeletedByReason[o.decision.Reason]++
		default:
			r.WouldDelete++
		}
	}
}

// noisy reports whether the cycle did anything worth an info log.
func (r Report) noisy() bool {
	return r.Deleted+r.WouldDelete+r.Undetermined+r.DeleteFailures > 0
}

func (r Report) totals() metrics.CycleTotals {
	t := metrics.CycleTotals{
		Duration:        r.Duration,
		Finished:        r.Started.Add(r.Duration),
		Scanned:         r.Scanned,
		Kept:            r.Kept,
		Undetermined:    r.Undetermined,
		BytesReclaimed:  r.BytesReclaimed,
		DeletedByReason: make(map[string]int, len(r.DeletedByReason)),
		Errors:          make(map[string]int, len(r.Errors)),
	}
	for reason, n := range r.DeletedByReason {
		t.DeletedByReason[string(reason)] = n
	}
	for kind, n := range r.Errors {
		t.Errors[string(kind)] = n
	}
	return t
}
