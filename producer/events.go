package producer

import "time"

// CycleSkipReason explains why RunCycle returned without touching any
// state. Modelled as a type with a String method, not a bare constant,
// so new reasons can be added later without breaking callers that switch
// on it (SPEC_FULL §3.4, grounded on HollowProducerListeners.java's
// CycleListener.CycleSkipReason).
type CycleSkipReason int

const (
	// NotPrimaryProducer is fired when the orchestrator's
	// IsPrimaryProducer predicate returns false at cycle entry.
	NotPrimaryProducer CycleSkipReason = iota
)

func (r CycleSkipReason) String() string {
	switch r {
	case NotPrimaryProducer:
		return "NOT_PRIMARY_PRODUCER"
	default:
		return "UNKNOWN"
	}
}

// status is the elapsed-time builder every *Start event returns,
// mirroring the Java ProducerStatus.Builder/PublishStatus.Builder
// pattern (SPEC_FULL §3.5): capture a start instant, report elapsed at
// the matching *Complete event.
type status struct{ start time.Time }

func newStatus(now func() time.Time) status {
	if now == nil {
		now = time.Now
	}
	return status{start: now()}
}

func (s status) elapsed(now func() time.Time) time.Duration {
	if now == nil {
		now = time.Now
	}
	return now().Sub(s.start)
}

// CycleStatus is the terminal outcome of one RunCycle call, delivered to
// CycleListener.OnCycleComplete and returned to the caller.
type CycleStatus struct {
	Version    int64
	Skipped    bool
	SkipReason CycleSkipReason
	NoDelta    bool
	Success    bool
	// Stage names the stage that failed ("mint", "populate",
	// "compute-delta", "publish", "integrity", "validate", "announce"),
	// empty on success or skip.
	Stage      string
	Err        error
	Validation ValidationStatus
	Elapsed    time.Duration
}
