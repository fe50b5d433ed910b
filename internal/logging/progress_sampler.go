package logging

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the run epoch or percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastEpoch  int
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when a restart starts a new epoch.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastEpoch: -1, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged.
func (s *ProgressSampler) ShouldLog(epoch int, percent float64) bool {
	if s == nil {
		return true
	}
	emit := false
	if epoch != s.lastEpoch {
		s.lastEpoch = epoch
		s.lastBucket = -1
		emit = true
	}
	if percent < 0 {
		return emit
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastEpoch = -1
	s.lastBucket = -1
}
