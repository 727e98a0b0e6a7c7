package gateway

import "sync/atomic"

// LatencyStats is a running min/max/mean/count accumulator over per-message
// processing latency (FixMessage.ProcessingLatencyNanos), the Go
// counterpart of the original's global PerformanceStats table collapsed to
// the single "message processing" operation this gateway tracks.
//
// Grounded on original_source/src/utils/performance_timer.cpp's
// PerformanceStats::record/getStats (count, min, max, running sum — variance
// is dropped here since nothing in spec.md or SPEC_FULL.md consumes it).
type LatencyStats struct {
	count   atomic.Uint64
	sumNs   atomic.Uint64
	minNs   atomic.Uint64
	maxNs   atomic.Uint64
}

// LatencySnapshot is a point-in-time read of LatencyStats.
type LatencySnapshot struct {
	Count    uint64
	MinNanos uint64
	MaxNanos uint64
	MeanNanos float64
}

// record folds one latency sample (nanoseconds) into the accumulator.
func (s *LatencyStats) record(ns int64) {
	if ns <= 0 {
		return
	}
	n := uint64(ns)
	s.count.Add(1)
	s.sumNs.Add(n)

	for {
		cur := s.minNs.Load()
		if cur != 0 && cur <= n {
			break
		}
		if s.minNs.CompareAndSwap(cur, n) {
			break
		}
	}
	for {
		cur := s.maxNs.Load()
		if cur >= n {
			break
		}
		if s.maxNs.CompareAndSwap(cur, n) {
			break
		}
	}
}

// Snapshot returns a consistent-enough point-in-time read; count/sum/min/max
// are each read atomically but not as a single transaction, matching the
// original's lock-per-record-not-per-report tradeoff.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	count := s.count.Load()
	sum := s.sumNs.Load()
	snap := LatencySnapshot{
		Count:    count,
		MinNanos: s.minNs.Load(),
		MaxNanos: s.maxNs.Load(),
	}
	if count > 0 {
		snap.MeanNanos = float64(sum) / float64(count)
	}
	return snap
}

// Reset zeroes every counter, mirroring ParserStats/PoolStats' reset knobs.
func (s *LatencyStats) Reset() {
	s.count.Store(0)
	s.sumNs.Store(0)
	s.minNs.Store(0)
	s.maxNs.Store(0)
}
