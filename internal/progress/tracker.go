package progress

import "sync"

// Tracker holds the last snapshot of one attempt and clamps the reported
// percentage to the highest value seen in that epoch. Each attempt gets a
// fresh Tracker, so a restart starts again from 0.
type Tracker struct {
	mu    sync.Mutex
	epoch int
	max   float64
	last  Snapshot
	seen  bool
}

// NewTracker starts tracking at the given epoch.
func NewTracker(epoch int) *Tracker {
	return &Tracker{epoch: epoch}
}

// Observe records a snapshot and returns it stamped with the tracker's epoch
// and clamped to the epoch maximum. advanced is true when the percentage
// moved forward (or on the first observation of an epoch).
func (t *Tracker) Observe(s Snapshot) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s.Epoch = t.epoch
	s.Percent = clampPercent(s.Percent)
	advanced := !t.seen || s.Percent > t.max
	if s.Percent < t.max {
		s.Percent = t.max
	}
	t.max = s.Percent
	t.last = s
	t.seen = true
	return s, advanced
}

// Last returns the most recent snapshot, if any.
func (t *Tracker) Last() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.seen
}
