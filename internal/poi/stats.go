package poi

// Stats is a consistent copy of the table's counters.
type Stats struct {
	Packets      int64    `json:"packets"`
	FirstSeq     uint32   `json:"first_seq"`
	LastSeq      uint32   `json:"last_seq"`
	LossPercent  float64  `json:"loss_percent"`
	ExpiredBins  int64    `json:"expired_bins"`
	LastDecision Decision `json:"last_decision"`
}

// Packets returns the number of Set calls since the last reset.
func (t *BinTable) Packets() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.packets
}

// Loss returns the percentage of packets lost, estimating packets sent as
// lastSeq - firstSeq. It returns 0 until at least two distinct sequence
// numbers have been seen, or when the sequence went backwards.
func (t *BinTable) Loss() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lossLocked()
}

func (t *BinTable) lossLocked() float64 {
	sent := int64(t.lastSeq) - int64(t.firstSeq)
	if sent <= 0 {
		return 0
	}
	lost := sent - t.packets
	return 100 * float64(lost) / float64(sent)
}

// Stats returns all counters in one read.
func (t *BinTable) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Packets:      t.packets,
		FirstSeq:     t.firstSeq,
		LastSeq:      t.lastSeq,
		LossPercent:  t.lossLocked(),
		ExpiredBins:  t.expired,
		LastDecision: t.lastDecision,
	}
}

// ResetStats restarts packet and sequence accounting. Callers use it when
// they detect that the sender restarted its sequence numbering.
func (t *BinTable) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetStatsLocked()
}

func (t *BinTable) resetStatsLocked() {
	t.seqStarted = false
	t.packets = 0
	t.firstSeq = 0
	t.lastSeq = 0
}
