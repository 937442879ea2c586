package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Failure is one sampled per-line failure.
type Failure struct {
	Line   int64      `json:"line"`
	Reason SkipReason `json:"reason"`
	Error  string     `json:"error"`
}

// FailureCollector safely counts per-line failures from concurrent workers
// and keeps the first few as samples.
type FailureCollector struct {
	mu         sync.Mutex
	counts     map[SkipReason]int64
	samples    []Failure
	maxSamples int
}

// NewFailureCollector creates a collector keeping at most maxSamples samples.
// A non-positive maxSamples keeps none.
func NewFailureCollector(maxSamples int) *FailureCollector {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &FailureCollector{
		counts:     make(map[SkipReason]int64),
		maxSamples: maxSamples,
	}
}

// Add records a failure of line.
func (c *FailureCollector) Add(line int64, reason SkipReason, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[reason]++
	if len(c.samples) >= c.maxSamples {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.samples = append(c.samples, Failure{Line: line, Reason: reason, Error: msg})
}

// Total returns the number of failures of every reason.
func (c *FailureCollector) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the failure counts by reason.
func (c *FailureCollector) Counts() map[SkipReason]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[SkipReason]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Samples returns the sampled failures ordered by line.
func (c *FailureCollector) Samples() []Failure {
	c.mu.Lock()
	out := make([]Failure, len(c.samples))
	copy(out, c.samples)
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Summary renders the counts and the first samples.
func (c *FailureCollector) Summary() string {
	counts := c.Counts()
	if len(counts) == 0 {
		return ""
	}

	reasons := make([]string, 0, len(counts))
	for reason, n := range counts {
		reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(reasons)

	var b strings.Builder
	b.WriteString(strings.Join(reasons, " "))

	const maxDisplay = 5
	samples := c.Samples()
	for i, s := range samples {
		if i == maxDisplay {
			fmt.Fprintf(&b, "\n  ... and %d more samples", len(samples)-maxDisplay)
			break
		}
		fmt.Fprintf(&b, "\n  line %d (%s): %s", s.Line, s.Reason, s.Error)
	}
	return b.String()
}
