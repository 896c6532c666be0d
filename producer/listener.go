// Listener roles and dispatch fabric (§4.G). One listener instance may
// implement any subset of the role interfaces below; Fabric stores them
// in a single set and, for each event, type-asserts to the roles that
// event's firer needs. Grounded on ListenerSupport.java's fan-out, whose
// Java instanceof chains become Go type switches/assertions, and whose
// per-listener try/catch isolation becomes safeCall's recover-and-log.
package producer

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshollow/hollow/schema"
)

type DataModelInitListener interface {
	OnDataModelInit(schemas *schema.Set)
}

type RestoreListener interface {
	OnRestoreStart(version int64)
	OnRestoreComplete(version int64, success bool, elapsed time.Duration)
}

type CycleListener interface {
	OnCycleSkip(reason CycleSkipReason)
	OnNewDeltaChain(version int64)
	OnCycleStart(version int64)
	OnCycleComplete(version int64, status CycleStatus)
}

type PopulateListener interface {
	OnPopulateStart(version int64)
	OnPopulateComplete(version int64, elapsed time.Duration, err error)
}

type PublishListener interface {
	OnNoDeltaAvailable(version int64)
	OnPublishStart(version int64)
	OnArtifactPublish(version int64, kind string)
	OnPublishComplete(version int64, elapsed time.Duration, err error)
}

type IntegrityCheckListener interface {
	OnIntegrityCheckStart(version int64)
	OnIntegrityCheckComplete(version int64, elapsed time.Duration, err error)
}

type AnnouncementListener interface {
	OnAnnouncementStart(version int64)
	OnAnnouncementComplete(version int64, elapsed time.Duration, err error)
}

type ValidationStatusListener interface {
	OnValidationStatus(version int64, status ValidationStatus)
}

// Fabric is the copy-on-write listener set: Add/Remove copy the backing
// slice so dispatch never observes a half-updated set and never needs to
// hold a lock while calling out to listener code (§5 shared-resources
// model).
type Fabric struct {
	mu        sync.Mutex
	listeners atomic.Pointer[[]any]
	logger    *slog.Logger
}

func NewFabric(logger *slog.Logger) *Fabric {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fabric{logger: logger}
	empty := []any{}
	f.listeners.Store(&empty)
	return f
}

func (f *Fabric) Add(l any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := *f.listeners.Load()
	next := make([]any, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, l)
	f.listeners.Store(&next)
}

func (f *Fabric) Remove(l any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := *f.listeners.Load()
	next := make([]any, 0, len(cur))
	for _, e := range cur {
		if e != l {
			next = append(next, e)
		}
	}
	f.listeners.Store(&next)
}

func (f *Fabric) snapshot() []any {
	return *f.listeners.Load()
}

// safeCall isolates one listener's callback: a panic is logged and
// swallowed so dispatch continues to the remaining listeners and the
// panicking listener keeps receiving future events (§8 invariant 6).
func (f *Fabric) safeCall(role, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("listener panicked", "role", role, "event", event, "panic", r)
		}
	}()
	fn()
}

func (f *Fabric) fireDataModelInit(schemas *schema.Set) {
	for _, l := range f.snapshot() {
		if dl, ok := l.(DataModelInitListener); ok {
			f.safeCall("DataModelInit", "init", func() { dl.OnDataModelInit(schemas) })
		}
	}
}

func (f *Fabric) fireRestoreStart(version int64) {
	for _, l := range f.snapshot() {
		if rl, ok := l.(RestoreListener); ok {
			f.safeCall("Restore", "start", func() { rl.OnRestoreStart(version) })
		}
	}
}

func (f *Fabric) fireRestoreComplete(version int64, success bool, elapsed time.Duration) {
	for _, l := range f.snapshot() {
		if rl, ok := l.(RestoreListener); ok {
			f.safeCall("Restore", "complete", func() { rl.OnRestoreComplete(version, success, elapsed) })
		}
	}
}

func (f *Fabric) fireCycleSkip(reason CycleSkipReason) {
	for _, l := range f.snapshot() {
		if cl, ok := l.(CycleListener); ok {
			f.safeCall("Cycle", "skip", func() { cl.OnCycleSkip(reason) })
		}
	}
}

func (f *Fabric) fireNewDeltaChain(version int64) {
	for _, l := range f.snapshot() {
		if cl, ok := l.(CycleListener); ok {
			f.safeCall("Cycle", "newDeltaChain", func() { cl.OnNewDeltaChain(version) })
		}
	}
}

func (f *Fabric) fireCycleStart(version int64) {
	for _, l := range f.snapshot() {
		if cl, ok := l.(CycleListener); ok {
			f.safeCall("Cycle", "start", func() { cl.OnCycleStart(version) })
		}
	}
}

func (f *Fabric) fireCycleComplete(version int64, s CycleStatus) {
	for _, l := range f.snapshot() {
		if cl, ok := l.(CycleListener); ok {
			f.safeCall("Cycle", "complete", func() { cl.OnCycleComplete(version, s) })
		}
	}
}

func (f *Fabric) firePopulateStart(version int64) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PopulateListener); ok {
			f.safeCall("Populate", "start", func() { pl.OnPopulateStart(version) })
		}
	}
}

func (f *Fabric) firePopulateComplete(version int64, elapsed time.Duration, err error) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PopulateListener); ok {
			f.safeCall("Populate", "complete", func() { pl.OnPopulateComplete(version, elapsed, err) })
		}
	}
}

func (f *Fabric) fireNoDeltaAvailable(version int64) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PublishListener); ok {
			f.safeCall("Publish", "noDelta", func() { pl.OnNoDeltaAvailable(version) })
		}
	}
}

func (f *Fabric) firePublishStart(version int64) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PublishListener); ok {
			f.safeCall("Publish", "start", func() { pl.OnPublishStart(version) })
		}
	}
}

func (f *Fabric) fireArtifactPublish(version int64, kind string) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PublishListener); ok {
			f.safeCall("Publish", "artifact", func() { pl.OnArtifactPublish(version, kind) })
		}
	}
}

func (f *Fabric) firePublishComplete(version int64, elapsed time.Duration, err error) {
	for _, l := range f.snapshot() {
		if pl, ok := l.(PublishListener); ok {
			f.safeCall("Publish", "complete", func() { pl.OnPublishComplete(version, elapsed, err) })
		}
	}
}

func (f *Fabric) fireIntegrityCheckStart(version int64) {
	for _, l := range f.snapshot() {
		if il, ok := l.(IntegrityCheckListener); ok {
			f.safeCall("IntegrityCheck", "start", func() { il.OnIntegrityCheckStart(version) })
		}
	}
}

func (f *Fabric) fireIntegrityCheckComplete(version int64, elapsed time.Duration, err error) {
	for _, l := range f.snapshot() {
		if il, ok := l.(IntegrityCheckListener); ok {
			f.safeCall("IntegrityCheck", "complete", func() { il.OnIntegrityCheckComplete(version, elapsed, err) })
		}
	}
}

func (f *Fabric) fireAnnouncementStart(version int64) {
	for _, l := range f.snapshot() {
		if al, ok := l.(AnnouncementListener); ok {
			f.safeCall("Announcement", "start", func() { al.OnAnnouncementStart(version) })
		}
	}
}

func (f *Fabric) fireAnnouncementComplete(version int64, elapsed time.Duration, err error) {
	for _, l := range f.snapshot() {
		if al, ok := l.(AnnouncementListener); ok {
			f.safeCall("Announcement", "complete", func() { al.OnAnnouncementComplete(version, elapsed, err) })
		}
	}
}

func (f *Fabric) fireValidationStatus(version int64, vs ValidationStatus) {
	for _, l := range f.snapshot() {
		if vl, ok := l.(ValidationStatusListener); ok {
			f.safeCall("ValidationStatus", "status", func() { vl.OnValidationStatus(version, vs) })
		}
	}
}
