package gateway

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of end-to-end delivery
// latencies (source timestamp to broadcast) and reports nearest-rank
// percentiles for the metrics stream. Samples are stored as integer
// microseconds; sub-microsecond precision is noise at network scale.
type LatencyTracker struct {
	mu     sync.Mutex
	window []int64 // microseconds
	next   int
	filled int
}

// NewLatencyTracker creates a tracker over the last `window` samples.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = 10000
	}
	return &LatencyTracker{window: make([]int64, window)}
}

// Record adds one latency sample. Negative durations (skewed source
// clocks) are dropped.
func (lt *LatencyTracker) Record(d time.Duration) {
	if d < 0 {
		return
	}
	lt.mu.Lock()
	lt.window[lt.next] = d.Microseconds()
	lt.next = (lt.next + 1) % len(lt.window)
	if lt.filled < len(lt.window) {
		lt.filled++
	}
	lt.mu.Unlock()
}

// Percentiles returns p50, p95 and p99 latency in milliseconds, or
// zeros when nothing has been recorded yet.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	n := lt.filled
	if n == 0 {
		lt.mu.Unlock()
		return 0, 0, 0
	}
	sorted := make([]int64, n)
	copy(sorted, lt.window[:n])
	lt.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return rankMs(sorted, 50), rankMs(sorted, 95), rankMs(sorted, 99)
}

// Count returns the number of samples currently in the window.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.filled
}

// rankMs returns the nearest-rank pth percentile of a sorted
// microsecond slice, in milliseconds.
func rankMs(sorted []int64, p int) float64 {
	rank := (p*len(sorted) + 99) / 100 // ceil(p*n/100)
	if rank < 1 {
		rank = 1
	}
	return float64(sorted[rank-1]) / 1000.0
}
