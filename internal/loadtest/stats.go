// Package loadtest drives the moderation worker with check requests over NATS
// and reports latency percentiles and verdict distributions.
package loadtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/whisper/comment-moderator/internal/protocol"
)

// Collector aggregates results from concurrent requesters. All methods are
// goroutine-safe.
type Collector struct {
	mu         sync.Mutex
	latencies  []time.Duration
	stages     map[string]int
	errorCodes map[string]int
	rejected   int
	degraded   int
	failures   int
	startTime  time.Time
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		stages:     make(map[string]int),
		errorCodes: make(map[string]int),
		startTime:  time.Now(),
	}
}

// AddResult records a verdict and its round-trip latency.
func (c *Collector) AddResult(res protocol.CheckResult, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, d)
	c.stages[res.Stage]++
	if !res.IsAppropriate {
		c.rejected++
	}
	if res.Degraded {
		c.degraded++
	}
}

// AddErrorResponse records a request the worker refused, such as a rate
// limit.
func (c *Collector) AddErrorResponse(resp protocol.ErrorResponse, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, d)
	c.errorCodes[resp.Code]++
}

// AddFailure records a request that got no reply (timeout, no responders).
func (c *Collector) AddFailure() {
	c.mu.Lock()
	c.failures++
	c.mu.Unlock()
}

// Completed returns the number of requests that got any reply.
func (c *Collector) Completed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.latencies)
}

// Failures returns the number of requests without a reply.
func (c *Collector) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// StageCount returns how many verdicts the given stage produced.
func (c *Collector) StageCount(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stages[stage]
}

// Summary is a latency distribution.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Latency summarizes the recorded round-trip latencies.
func (c *Collector) Latency() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return summarize(c.latencies)
}

func summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: sorted[n/2],
		P95: sorted[int(math.Ceil(float64(n)*0.95))-1],
		P99: sorted[int(math.Ceil(float64(n)*0.99))-1],
		Max: sorted[n-1],
	}
}

// Report writes a summary of everything collected to w.
func (c *Collector) Report(w io.Writer) {
	lat := c.Latency()

	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)
	total := len(c.latencies) + c.failures

	fmt.Fprintln(w, "\n=== Load Test Results ===")
	fmt.Fprintf(w, "Duration:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests:     %d\n", total)
	fmt.Fprintf(w, "No reply:     %d\n", c.failures)
	if elapsed > 0 {
		fmt.Fprintf(w, "Throughput:   %.1f req/s\n", float64(len(c.latencies))/elapsed.Seconds())
	}
	fmt.Fprintf(w, "Rejected:     %d\n", c.rejected)
	fmt.Fprintf(w, "Degraded:     %d\n", c.degraded)

	if len(c.stages) > 0 {
		fmt.Fprintln(w, "\n--- Verdicts by stage ---")
		for _, stage := range sortedKeys(c.stages) {
			fmt.Fprintf(w, "  %-12s %d\n", stage, c.stages[stage])
		}
	}
	if len(c.errorCodes) > 0 {
		fmt.Fprintln(w, "\n--- Error replies ---")
		for _, code := range sortedKeys(c.errorCodes) {
			fmt.Fprintf(w, "  %-12s %d\n", code, c.errorCodes[code])
		}
	}
	if lat.N > 0 {
		fmt.Fprintln(w, "\n--- Round-trip latency ---")
		fmt.Fprintf(w, "  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
			lat.Avg.Round(time.Microsecond),
			lat.P50.Round(time.Microsecond),
			lat.P95.Round(time.Microsecond),
			lat.P99.Round(time.Microsecond),
			lat.Max.Round(time.Microsecond),
			lat.N,
		)
	}
	fmt.Fprintln(w)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
