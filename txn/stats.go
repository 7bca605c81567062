package txn

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the transaction manager's lifetime counters.
type Stats struct {
	Begun          uint64
	Committed      uint64
	Aborted        uint64
	Active         int
	Completed      int
	AverageLatency time.Duration
}

// statsTracker accumulates atomic lifetime counters plus a running sum of
// completed-transaction durations, from which snapshot derives an average.
type statsTracker struct {
	begun          atomic.Uint64
	committed      atomic.Uint64
	aborted        atomic.Uint64
	totalLatencyNs atomic.Int64
	latencyCount   atomic.Uint64
}

func (s *statsTracker) recordBegin() {
	s.begun.Add(1)
}

func (s *statsTracker) recordCommit(d time.Duration) {
	s.committed.Add(1)
	s.totalLatencyNs.Add(d.Nanoseconds())
	s.latencyCount.Add(1)
}

func (s *statsTracker) recordAbort(d time.Duration) {
	s.aborted.Add(1)
	s.totalLatencyNs.Add(d.Nanoseconds())
	s.latencyCount.Add(1)
}

func (s *statsTracker) snapshot(active, completed int) Stats {
	count := s.latencyCount.Load()
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(s.totalLatencyNs.Load() / int64(count))
	}
	return Stats{
		Begun:          s.begun.Load(),
		Committed:      s.committed.Load(),
		Aborted:        s.aborted.Load(),
		Active:         active,
		Completed:      completed,
		AverageLatency: avg,
	}
}
