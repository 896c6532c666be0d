// Package producer implements the cycle orchestrator (§4.F) and its
// listener/validator fabric (§4.G): populate, publish, integrity-check,
// validate, announce, one cycle at a time. Grounded on edb/tx.go's
// single-in-flight-transaction shape — a mutex-guarded struct exposing one
// blocking entry point that walks a fixed stage sequence and recovers from
// populate-stage panics the way edb's safelyCall recovers from callback
// panics.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshollow/hollow/blob"
	"github.com/dshollow/hollow/delta"
	"github.com/dshollow/hollow/rstate"
	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

// VersionMinter mints the monotonic version identifier for one cycle.
type VersionMinter interface {
	MintVersion(ctx context.Context) (int64, error)
}

// timeVersionMinter mints versions from wall-clock milliseconds, the same
// scheme Hollow's default producer uses: safe as long as cycles don't run
// more than once per millisecond.
type timeVersionMinter struct{ now func() time.Time }

func (m timeVersionMinter) MintVersion(ctx context.Context) (int64, error) {
	return m.now().UnixMilli(), nil
}

// Publisher stages one blob kind for one version (§6). A real
// implementation writes to durable, shared storage a BlobRetriever can
// later read back from any process.
type Publisher interface {
	Publish(ctx context.Context, version int64, kind blob.Kind, payload []byte) error
}

// Announcer makes a published version visible to consumers (§6).
type Announcer interface {
	Announce(ctx context.Context, version int64) error
}

// BlobRetriever fetches a previously published blob, used at restore time
// to reconstruct rPrev without replaying every PopulateTask (§6).
type BlobRetriever interface {
	Retrieve(ctx context.Context, version int64, kind blob.Kind) ([]byte, error)
}

// PopulateContext exposes the mutable write state a PopulateTask fills in
// for one cycle.
type PopulateContext struct {
	WriteState *wstate.WriteState
}

// PopulateTask is application code: read upstream data and stage it into
// the write state via WriteState.Add.
type PopulateTask interface {
	Populate(ctx context.Context, pc *PopulateContext) error
}

type PopulateFunc func(ctx context.Context, pc *PopulateContext) error

func (f PopulateFunc) Populate(ctx context.Context, pc *PopulateContext) error { return f(ctx, pc) }

// Options configures a Producer. Schemas, Publisher, and Announcer are
// required; the rest have usable defaults.
type Options struct {
	Schemas *schema.Set

	Publisher Publisher
	Announcer Announcer
	Retriever BlobRetriever

	Minter VersionMinter

	// IsPrimaryProducer gates every cycle; a nil predicate always permits
	// the cycle to run. Mirrors the single-writer leadership check a
	// multi-instance deployment needs before minting a version.
	IsPrimaryProducer func() bool

	Now    func() time.Time
	Logger *slog.Logger
}

// Producer runs cycles one at a time against a single write state,
// promoting a previous read state (rPrev) on each success.
type Producer struct {
	mu sync.Mutex

	schemas   *schema.Set
	publisher Publisher
	announcer Announcer
	retriever BlobRetriever
	minter    VersionMinter
	isPrimary func() bool
	now       func() time.Time

	fabric     *Fabric
	validators []Validator

	ws            *wstate.WriteState
	rPrev         *rstate.ReadState
	firstRun      bool
	lastAnnounced int64 // last version actually announced; reused on a no-delta cycle (§4.F/S3 "version unchanged")
}

func New(opts Options) *Producer {
	if opts.Schemas == nil {
		panic("producer: Options.Schemas is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	minter := opts.Minter
	if minter == nil {
		minter = timeVersionMinter{now: now}
	}
	p := &Producer{
		schemas:   opts.Schemas,
		publisher: opts.Publisher,
		announcer: opts.Announcer,
		retriever: opts.Retriever,
		minter:    minter,
		isPrimary: opts.IsPrimaryProducer,
		now:       now,
		fabric:    NewFabric(opts.Logger),
		ws:        wstate.New(opts.Schemas),
		firstRun:  true,
	}
	p.fabric.fireDataModelInit(opts.Schemas)
	return p
}

func (p *Producer) AddListener(l any) { p.fabric.Add(l) }

func (p *Producer) AddValidator(v Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators = append(p.validators, v)
}

// Restore seeds rPrev from a previously announced version without running
// a cycle, so the first RunCycle after a process restart can compute a
// delta against real prior state instead of an empty one (§4.F restore).
func (p *Producer) Restore(ctx context.Context, version int64) error {
	if p.retriever == nil {
		return fmt.Errorf("producer: Restore requires a BlobRetriever")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fabric.fireRestoreStart(version)
	st := newStatus(p.now)
	payload, err := p.retriever.Retrieve(ctx, version, blob.Snapshot)
	if err != nil {
		p.fabric.fireRestoreComplete(version, false, st.elapsed(p.now))
		return err
	}
	b, err := blob.Read(payload)
	if err != nil {
		p.fabric.fireRestoreComplete(version, false, st.elapsed(p.now))
		return err
	}
	rs, err := delta.DecodeSnapshot(p.schemas, b.Sections)
	if err != nil {
		p.fabric.fireRestoreComplete(version, false, st.elapsed(p.now))
		return err
	}
	p.rPrev = rs
	p.firstRun = false
	p.lastAnnounced = version
	p.fabric.fireRestoreComplete(version, true, st.elapsed(p.now))
	return nil
}

// RunCycle executes one full populate/publish/integrity/validate/announce
// pass. Only one cycle runs at a time per Producer.
func (p *Producer) RunCycle(ctx context.Context, task PopulateTask) CycleStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isPrimary != nil && !p.isPrimary() {
		p.fabric.fireCycleSkip(NotPrimaryProducer)
		return CycleStatus{Skipped: true, SkipReason: NotPrimaryProducer}
	}

	version, err := p.minter.MintVersion(ctx)
	if err != nil {
		return CycleStatus{Success: false, Stage: "mint", Err: err}
	}

	if p.firstRun {
		p.fabric.fireNewDeltaChain(version)
		p.firstRun = false
	} else {
		p.ws.ResetForNextCycle()
	}
	p.fabric.fireCycleStart(version)
	cycleStatus := newStatus(p.now)

	if err := p.populate(ctx, task, version); err != nil {
		status := CycleStatus{Version: version, Stage: "populate", Err: err, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}
	p.ws.CloseForCycle()

	if !p.ws.HasChanges() && p.rPrev != nil {
		// §4.F/S3: nothing changed, so the announced version stays
		// whatever it already was — report that, not the version just
		// minted for this empty cycle.
		unchangedVersion := p.lastAnnounced
		p.fabric.fireNoDeltaAvailable(unchangedVersion)
		status := CycleStatus{Version: unchangedVersion, NoDelta: true, Success: true, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(unchangedVersion, status)
		return status
	}

	result, err := delta.Compute(p.schemas, p.rPrev, p.ws)
	if err != nil {
		status := CycleStatus{Version: version, Stage: "compute-delta", Err: err, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}

	if err := p.publish(ctx, version, result); err != nil {
		status := CycleStatus{Version: version, Stage: "publish", Err: err, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}

	rNew, err := p.integrityCheck(ctx, version, result)
	if err != nil {
		status := CycleStatus{Version: version, Stage: "integrity", Err: err, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}

	valStatus := runValidators(ctx, p.validators, ValidationContext{Version: version, State: rNew}, p.now)
	p.fabric.fireValidationStatus(version, valStatus)
	if !valStatus.Passed() {
		status := CycleStatus{Version: version, Stage: "validate", Validation: valStatus, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}

	if err := p.announce(ctx, version); err != nil {
		status := CycleStatus{Version: version, Stage: "announce", Validation: valStatus, Err: err, Elapsed: cycleStatus.elapsed(p.now)}
		p.fabric.fireCycleComplete(version, status)
		return status
	}

	p.rPrev = rNew
	p.lastAnnounced = version
	status := CycleStatus{Version: version, Success: true, Validation: valStatus, Elapsed: cycleStatus.elapsed(p.now)}
	p.fabric.fireCycleComplete(version, status)
	return status
}

func (p *Producer) populate(ctx context.Context, task PopulateTask, version int64) (err error) {
	p.fabric.firePopulateStart(version)
	st := newStatus(p.now)
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("producer: populate panicked: %v", r)
			}
		}
		p.fabric.firePopulateComplete(version, st.elapsed(p.now), err)
	}()
	return task.Populate(ctx, &PopulateContext{WriteState: p.ws})
}

func (p *Producer) publish(ctx context.Context, version int64, result *delta.Result) (err error) {
	p.fabric.firePublishStart(version)
	st := newStatus(p.now)
	defer func() { p.fabric.firePublishComplete(version, st.elapsed(p.now), err) }()

	kinds := []struct {
		kind     blob.Kind
		name     string
		sections []blob.Section
	}{
		{blob.Snapshot, "snapshot", result.Snapshot},
		{blob.Delta, "forward-delta", result.Forward},
		{blob.ReverseDelta, "reverse-delta", result.ReverseDelta},
	}
	for _, k := range kinds {
		payload := blob.Encode(p.schemas, k.sections)
		if err = p.publisher.Publish(ctx, version, k.kind, payload); err != nil {
			return err
		}
		p.fabric.fireArtifactPublish(version, k.name)
	}
	return nil
}

// integrityCheck verifies the closure invariant the delta package promises
// (§4.D, §8 invariant 2): decoding the snapshot directly must equal,
// field-by-field, the state reached by applying the forward delta to
// rPrev, and applying the reverse delta to the new state must
// symmetrically reconstruct rPrev. The three reconstructions run
// concurrently via errgroup since none depends on another.
func (p *Producer) integrityCheck(ctx context.Context, version int64, result *delta.Result) (*rstate.ReadState, error) {
	p.fabric.fireIntegrityCheckStart(version)
	st := newStatus(p.now)
	var err error
	defer func() { p.fabric.fireIntegrityCheckComplete(version, st.elapsed(p.now), err) }()

	var viaSnapshot, viaForward, viaReverse *rstate.ReadState
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var e error
		viaSnapshot, e = delta.DecodeSnapshot(p.schemas, result.Snapshot)
		return e
	})
	g.Go(func() error {
		var e error
		viaForward, e = delta.ApplyForward(p.schemas, p.rPrev, result.Forward)
		return e
	})
	g.Go(func() error {
		snapshot, e := delta.DecodeSnapshot(p.schemas, result.Snapshot)
		if e != nil {
			return e
		}
		viaReverse, e = delta.ApplyReverse(p.schemas, snapshot, result.ReverseDelta)
		return e
	})
	if err = g.Wait(); err != nil {
		return nil, err
	}

	if err = delta.Equal(p.schemas, viaSnapshot, viaForward); err != nil {
		err = fmt.Errorf("producer: integrity check: forward delta: %w", err)
		return nil, err
	}
	if err = delta.Equal(p.schemas, viaReverse, p.rPrev); err != nil {
		err = fmt.Errorf("producer: integrity check: reverse delta: %w", err)
		return nil, err
	}
	return viaSnapshot, nil
}

func (p *Producer) announce(ctx context.Context, version int64) (err error) {
	p.fabric.fireAnnouncementStart(version)
	st := newStatus(p.now)
	defer func() { p.fabric.fireAnnouncementComplete(version, st.elapsed(p.now), err) }()
	err = p.announcer.Announce(ctx, version)
	return err
}
