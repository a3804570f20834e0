package network

import "sync"

// SequenceTracker tallies packets lost from gaps in the sender's sequence
// numbers. A sequence number lower than the previous one means the sender
// restarted, which clears the tally.
type SequenceTracker struct {
	mu      sync.Mutex
	started bool
	last    uint32
	lost    uint64
	resets  uint64
}

// Observe records seq and reports whether it revealed a sender restart.
func (s *SequenceTracker) Observe(seq uint32) (reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.started = true
		s.last = seq
		return false
	}
	switch {
	case seq < s.last:
		s.lost = 0
		s.resets++
		reset = true
	case seq > s.last:
		s.lost += uint64(seq - s.last - 1)
	}
	// seq == last is a duplicate and leaves the tally alone.
	s.last = seq
	return reset
}

// Lost returns the running tally and its share of the last sequence number
// as a percentage.
func (s *SequenceTracker) Lost() (lost uint64, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == 0 {
		return s.lost, 0
	}
	return s.lost, 100 * float64(s.lost) / float64(s.last)
}

// Resets returns how many sender restarts have been seen.
func (s *SequenceTracker) Resets() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
