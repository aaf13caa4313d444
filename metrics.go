package reactor

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time copy of the loop's runtime statistics, see
// [WithMetrics] and [Loop.Metrics].
//
// Example:
//
//	loop, _ := New[struct{}](1024, WithMetrics(true))
//	_ = loop.Run(ctx)
//	stats := loop.Metrics()
//	fmt.Printf("cycles: %d, P99 dispatch: %v\n",
//		stats.Cycles, stats.Latency.P99)
type Metrics struct {
	// Latency is the distribution of per-cycle dispatch time.
	Latency LatencyMetrics

	// Cycles counts RunOnce calls that completed a wait.
	Cycles uint64
	// Dispatched counts handler invocations.
	Dispatched uint64
	// Stale counts ready entries skipped because their registration was
	// absent by the time they were reached.
	Stale uint64
	// Cancelled counts cycles that returned ErrCancelled.
	Cancelled uint64
}

// LatencyMetrics summarises a latency distribution.
type LatencyMetrics struct {
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
	Mean  time.Duration
	Count int
}

// sampleSize is the maximum number of latency samples to retain.
// We keep a rolling buffer of 1000 samples to compute percentiles.
const sampleSize = 1000

// latencyRecorder keeps a rolling window of samples.
type latencyRecorder struct {
	mu          sync.Mutex
	samples     [sampleSize]time.Duration
	sum         time.Duration
	sampleIdx   int
	sampleCount int
}

// Record records a latency sample.
func (r *latencyRecorder) Record(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// If buffer is full, subtract the old sample that we're replacing
	if r.sampleCount >= sampleSize {
		r.sum -= r.samples[r.sampleIdx]
	}

	r.samples[r.sampleIdx] = duration
	r.sum += duration
	r.sampleIdx++
	if r.sampleIdx >= sampleSize {
		r.sampleIdx = 0
	}
	if r.sampleCount < sampleSize {
		r.sampleCount++
	}
}

// Sample computes percentiles from the retained samples.
func (r *latencyRecorder) Sample() LatencyMetrics {
	r.mu.Lock()
	count := r.sampleCount
	sorted := make([]time.Duration, count)
	copy(sorted, r.samples[:count])
	sum := r.sum
	r.mu.Unlock()

	if count == 0 {
		return LatencyMetrics{}
	}

	slices.Sort(sorted)

	return LatencyMetrics{
		P50:   sorted[percentileIndex(count, 50)],
		P90:   sorted[percentileIndex(count, 90)],
		P95:   sorted[percentileIndex(count, 95)],
		P99:   sorted[percentileIndex(count, 99)],
		Max:   sorted[count-1],
		Mean:  sum / time.Duration(count),
		Count: count,
	}
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// loopMetrics is the live, concurrently readable counterpart of Metrics.
// All methods are nil-safe, so the loop calls them unconditionally.
type loopMetrics struct {
	latency    latencyRecorder
	cycles     atomic.Uint64
	dispatched atomic.Uint64
	stale      atomic.Uint64
	cancelled  atomic.Uint64
}

func (m *loopMetrics) recordCycle(dispatched, stale int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Add(1)
	m.dispatched.Add(uint64(dispatched))
	m.stale.Add(uint64(stale))
	m.latency.Record(elapsed)
}

func (m *loopMetrics) recordCancelled() {
	if m == nil {
		return
	}
	m.cycles.Add(1)
	m.cancelled.Add(1)
}

func (m *loopMetrics) snapshot() *Metrics {
	if m == nil {
		return nil
	}
	return &Metrics{
		Latency:    m.latency.Sample(),
		Cycles:     m.cycles.Load(),
		Dispatched: m.dispatched.Load(),
		Stale:      m.stale.Load(),
		Cancelled:  m.cancelled.Load(),
	}
}
