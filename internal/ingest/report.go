package ingest

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind names the input being loaded.
type Kind string

const (
	KindItems   Kind = "items"
	KindReviews Kind = "reviews"
)

// SkipReason says why a line was skipped.
type SkipReason string

const (
	SkipDecode    SkipReason = "decode"
	SkipTransform SkipReason = "transform"
	SkipWrite     SkipReason = "write"
	SkipPanic     SkipReason = "panic"
)

// Report summarizes one ingestion run. When DrainTimedOut is set it is a
// snapshot: lines still in flight at the deadline are in neither Succeeded nor
// Skipped.
type Report struct {
	RunID         string               `json:"run_id"`
	Kind          Kind                 `json:"kind"`
	Path          string               `json:"path"`
	LinesRead     int64                `json:"lines_read"`
	Succeeded     int64                `json:"succeeded"`
	Skipped       map[SkipReason]int64 `json:"skipped"`
	RowsWritten   int64                `json:"rows_written"`
	Failures      []Failure            `json:"failures,omitempty"`
	DrainTimedOut bool                 `json:"drain_timed_out"`
	ReaderErr     error                `json:"-"`
	StartedAt     time.Time            `json:"started_at"`
	Duration      time.Duration        `json:"duration"`
	PeakInFlight  int                  `json:"peak_in_flight"`
}

// TotalSkipped returns the number of skipped lines of every reason.
func (r *Report) TotalSkipped() int64 {
	var total int64
	for _, n := range r.Skipped {
		total += n
	}
	return total
}

// Pending returns the number of lines read but not finished when the report
// was taken.
func (r *Report) Pending() int64 {
	return r.LinesRead - r.Succeeded - r.TotalSkipped()
}

// String renders a human readable summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: loaded %s from %s\n", r.RunID, r.Kind, r.Path)
	fmt.Fprintf(&b, "  lines read:    %d\n", r.LinesRead)
	fmt.Fprintf(&b, "  succeeded:     %d\n", r.Succeeded)
	fmt.Fprintf(&b, "  rows written:  %d\n", r.RowsWritten)
	fmt.Fprintf(&b, "  skipped:       %d", r.TotalSkipped())
	for _, reason := range []SkipReason{SkipDecode, SkipTransform, SkipWrite, SkipPanic} {
		if n := r.Skipped[reason]; n > 0 {
			fmt.Fprintf(&b, " %s=%d", reason, n)
		}
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  peak in flight: %d\n", r.PeakInFlight)
	fmt.Fprintf(&b, "  duration:      %s\n", r.Duration.Round(time.Millisecond))
	if r.DrainTimedOut {
		fmt.Fprintf(&b, "  drain timed out with %d lines pending\n", r.Pending())
	}
	if r.ReaderErr != nil {
		fmt.Fprintf(&b, "  reading stopped early: %v\n", r.ReaderErr)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  line %d (%s): %s\n", f.Line, f.Reason, f.Error)
	}
	return b.String()
}

// Fields returns the report as structured log fields.
func (r *Report) Fields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("kind", string(r.Kind)),
		zap.String("path", r.Path),
		zap.Int64("lines_read", r.LinesRead),
		zap.Int64("succeeded", r.Succeeded),
		zap.Int64("skipped", r.TotalSkipped()),
		zap.Int64("rows_written", r.RowsWritten),
		zap.Int("peak_in_flight", r.PeakInFlight),
		zap.Duration("duration", r.Duration),
		zap.Bool("drain_timed_out", r.DrainTimedOut),
	}
	if r.ReaderErr != nil {
		fields = append(fields, zap.NamedError("reader_error", r.ReaderErr))
	}
	return fields
}
