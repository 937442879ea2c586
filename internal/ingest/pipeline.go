// Package ingest loads line-delimited JSON files into the store.
//
// Every line becomes one task on a fixed-size worker pool. A task decodes and
// transforms its line, takes one permit from the admission gate, writes the
// resulting rows and releases the permit. Failures are isolated per line:
// they are counted, sampled and logged, and never stop the run.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/logging"
)

const (
	DefaultMaxLineBytes   = 16 << 20
	DefaultFailureSamples = 20
	DefaultDrainTimeout   = time.Hour
)

// Observer receives per-line outcomes, e.g. for metrics.
type Observer interface {
	LineSucceeded(kind Kind, rows int)
	LineSkipped(kind Kind, reason SkipReason)
	AdmissionInFlight(kind Kind, n int64)
}

// Options configure one run.
type Options struct {
	Kind           Kind
	Concurrency    int
	AdmissionLimit int
	QueueSize      int
	DrainTimeout   time.Duration
	MaxLineBytes   int
	FailureSamples int
	Logger         *zap.Logger
	Observer       Observer
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.AdmissionLimit <= 0 {
		o.AdmissionLimit = o.Concurrency
	}
	if o.QueueSize <= 0 {
		o.QueueSize = o.Concurrency * 4
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.FailureSamples <= 0 {
		o.FailureSamples = DefaultFailureSamples
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Produce turns one line into the rows to write. Decode errors are counted as
// decode failures, every other error as a transform failure.
type Produce[R any] func(line []byte) ([]R, error)

// Write stores one row.
type Write[R any] func(ctx context.Context, row R) error

type run[R any] struct {
	opts      Options
	logger    *zap.Logger
	produce   Produce[R]
	write     Write[R]
	gate      *Gate
	failures  *FailureCollector
	succeeded atomic.Int64
	rows      atomic.Int64
}

// Run loads the file at path. Only a failure to open the file is returned as
// an error; everything after that is reported in the Report.
//
// Cancelling ctx stops reading new lines. Lines already submitted are never
// cancelled; Run waits for them up to DrainTimeout.
func Run[R any](ctx context.Context, path string, produce Produce[R], write Write[R], opts Options) (*Report, error) {
	opts = opts.withDefaults()
	runID := uuid.NewString()
	logger := opts.Logger.With(
		zap.String("run_id", runID),
		zap.String("kind", string(opts.Kind)),
		zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IO("OPEN_FAILED", "cannot open input file").
			WithOperation("Load").
			WithResource(path).
			WithCause(err).
			Build()
	}
	defer f.Close()

	r := &run[R]{
		opts:     opts,
		logger:   logger,
		produce:  produce,
		write:    write,
		failures: NewFailureCollector(opts.FailureSamples),
	}
	r.gate = NewGate(opts.AdmissionLimit, func(n int64) {
		if opts.Observer != nil {
			opts.Observer.AdmissionInFlight(opts.Kind, n)
		}
	})

	pool := NewWorkerPool(PoolConfig{Workers: opts.Concurrency, QueueSize: opts.QueueSize}, logger,
		func(line int64, value any) {
			r.fail(line, SkipPanic, fmt.Errorf("panic: %v", value))
		})

	report := &Report{
		RunID:     runID,
		Kind:      opts.Kind,
		Path:      path,
		StartedAt: time.Now(),
	}

	// in-flight work outlives ctx; only the drain timeout bounds it
	taskCtx := context.WithoutCancel(ctx)
	if err := pool.Start(taskCtx); err != nil {
		return nil, err
	}

	logger.Info("ingestion started",
		zap.Int("concurrency", opts.Concurrency),
		zap.Int("admission_limit", opts.AdmissionLimit),
		zap.Int("queue_size", opts.QueueSize))

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, min(64*1024, opts.MaxLineBytes)), opts.MaxLineBytes)

	var lineNo int64
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		line := make([]byte, len(raw))
		copy(line, raw)

		n := lineNo
		task := Task{Line: n, Execute: func(ctx context.Context) { r.process(ctx, n, line) }}
		if err := pool.Submit(ctx, task); err != nil {
			report.ReaderErr = err
			break
		}
		report.LinesRead++
	}
	if err := scanner.Err(); err != nil && report.ReaderErr == nil {
		report.ReaderErr = apperrors.IO("READ_FAILED", "reading input stopped early").
			WithOperation("Load").
			WithResource(path).
			WithDetails(fmt.Sprintf("after line %d", lineNo)).
			WithCause(err).
			Build()
	}
	if report.ReaderErr != nil {
		logger.Warn("stopped reading input, draining submitted lines",
			append(logging.ErrorFields(report.ReaderErr), zap.Int64("lines_read", report.LinesRead))...)
	}

	if !pool.Drain(opts.DrainTimeout) {
		report.DrainTimedOut = true
	}

	report.Succeeded = r.succeeded.Load()
	report.RowsWritten = r.rows.Load()
	report.Skipped = r.failures.Counts()
	report.Failures = r.failures.Samples()
	report.PeakInFlight = r.gate.Peak()
	report.Duration = time.Since(report.StartedAt)

	if report.DrainTimedOut {
		logger.Warn("drain timed out, returning partial report",
			zap.Duration("drain_timeout", opts.DrainTimeout),
			zap.Int64("pending", report.Pending()))
	}
	logger.Info("ingestion finished", report.Fields()...)
	return report, nil
}

func (r *run[R]) process(ctx context.Context, line int64, raw []byte) {
	rows, err := r.produce(raw)
	if err != nil {
		reason := SkipTransform
		if apperrors.IsDecode(err) {
			reason = SkipDecode
		}
		r.fail(line, reason, err)
		return
	}

	release, err := r.gate.Acquire(ctx)
	if err != nil {
		r.fail(line, SkipWrite, err)
		return
	}
	defer release()

	for _, row := range rows {
		if err := r.write(ctx, row); err != nil {
			r.fail(line, SkipWrite, err)
			return
		}
		r.rows.Add(1)
	}
	r.succeeded.Add(1)
	if r.opts.Observer != nil {
		r.opts.Observer.LineSucceeded(r.opts.Kind, len(rows))
	}
}

func (r *run[R]) fail(line int64, reason SkipReason, err error) {
	r.failures.Add(line, reason, err)
	if r.opts.Observer != nil {
		r.opts.Observer.LineSkipped(r.opts.Kind, reason)
	}
	r.logger.Warn("line skipped",
		append(logging.ErrorFields(err),
			zap.Int64("line", line),
			zap.String("reason", string(reason)))...)
}
