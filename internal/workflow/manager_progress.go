package workflow

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/logging"
)

// progressPersister coalesces progress writes for one attempt: the store sees
// at most one write per interval, plus forced writes at operation
// boundaries. Progress held back by the interval is flushed by a timer, so
// the stored value never lags a quiet worker by more than one interval.
// Writes are epoch guarded in SQL, so a late write from a superseded attempt
// is a no-op.
type progressPersister struct {
	m        *Manager
	entry    *activeJob
	interval time.Duration

	mu             sync.Mutex
	lastWrite      time.Time
	lastPercent    float64
	pending        bool
	pendingPercent float64
	timer          *time.Timer
	stopped        bool
}

func newProgressPersister(m *Manager, entry *activeJob, interval time.Duration) *progressPersister {
	return &progressPersister{m: m, entry: entry, interval: interval, lastPercent: -1}
}

func (p *progressPersister) offer(percent float64, advanced, force bool) {
	p.mu.Lock()
	if advanced && percent > p.pendingPercent {
		p.pendingPercent = percent
	}
	if advanced {
		p.pending = true
	}
	now := p.m.now()
	due := force || p.lastWrite.IsZero() || now.Sub(p.lastWrite) >= p.interval
	if !due {
		p.armLocked(now)
		p.mu.Unlock()
		return
	}
	value, ok := p.takeLocked(now)
	p.mu.Unlock()
	if ok {
		p.write(value, now)
	}
}

// flush writes any held-back progress immediately.
func (p *progressPersister) flush() {
	p.mu.Lock()
	p.timer = nil
	if p.stopped {
		p.mu.Unlock()
		return
	}
	now := p.m.now()
	value, ok := p.takeLocked(now)
	p.mu.Unlock()
	if ok {
		p.write(value, now)
	}
}

// stop cancels a pending flush. Call it once the attempt has ended.
func (p *progressPersister) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *progressPersister) armLocked(now time.Time) {
	if !p.pending || p.stopped || p.timer != nil {
		return
	}
	delay := max(p.interval-now.Sub(p.lastWrite), 0)
	p.timer = time.AfterFunc(delay, p.flush)
}

func (p *progressPersister) takeLocked(now time.Time) (float64, bool) {
	if !p.pending || p.pendingPercent <= p.lastPercent {
		return 0, false
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.lastWrite = now
	p.lastPercent = p.pendingPercent
	p.pending = false
	return p.pendingPercent, true
}

func (p *progressPersister) write(percent float64, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	ok, err := p.m.store.UpdateProgress(ctx, p.entry.sessionID, p.entry.epoch, percent, now.UTC())
	if err != nil {
		logging.WarnWithContext(p.m.logger, "progress persist failed", "progress_persist_failed",
			logging.String(logging.FieldSessionID, p.entry.sessionID),
			logging.Int(logging.FieldEpoch, p.entry.epoch),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.String(logging.FieldImpact, "stored progress lags live progress"),
		)
		return
	}
	if !ok {
		p.m.logger.Debug("progress write ignored; job left this epoch",
			logging.String(logging.FieldSessionID, p.entry.sessionID),
			logging.Int(logging.FieldEpoch, p.entry.epoch),
		)
	}
}
