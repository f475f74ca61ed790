// Package s3fifo implements the Small/Main/Ghost FIFO composite policy:
// new objects are admitted into a small probationary ring; objects that
// earn a second hit there promote to a main ring; objects evicted from
// small demote into a zero-byte ghost ring whose re-request is itself an
// admission signal (promote straight to main, skipping probation
// entirely). Each ring reuses the teacher's fifo/fifo.go container/list
// + map shape internally rather than importing policy/fifo, since these
// are byte-budgeted sub-rings sharing one Object Store rather than
// independent policies.
package s3fifo

import (
	"container/list"

	"github.com/go-cachesim/cachesim/paramconfig"
	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("s3fifo", func() policy.Policy { return &S3FIFO{} })
}

const (
	defaultSmallRatio       = 0.10
	defaultGhostRatio       = 0.90
	defaultPromoteThreshold = 2
	maxFreq                 = 3
)

// Params holds the policy_params S3FIFO understands.
type Params struct {
	SmallSizeRatio      float64
	GhostSizeRatio      float64
	MoveToMainThreshold uint8
}

// ring is a plain FIFO of obj_ids, used for small and main.
type ring struct {
	order *list.List
	elems map[uint64]*list.Element
}

func newRing() *ring {
	return &ring{order: list.New(), elems: make(map[uint64]*list.Element)}
}

func (r *ring) pushBack(objID uint64) {
	r.elems[objID] = r.order.PushBack(objID)
}

func (r *ring) has(objID uint64) bool {
	_, ok := r.elems[objID]
	return ok
}

func (r *ring) remove(objID uint64) bool {
	elem, ok := r.elems[objID]
	if !ok {
		return false
	}
	r.order.Remove(elem)
	delete(r.elems, objID)
	return true
}

func (r *ring) front() (uint64, bool) {
	elem := r.order.Front()
	if elem == nil {
		return 0, false
	}
	return elem.Value.(uint64), true //nolint:forcetypeassert
}

func (r *ring) popFront() (uint64, bool) {
	objID, ok := r.front()
	if !ok {
		return 0, false
	}
	r.remove(objID)
	return objID, true
}

func (r *ring) empty() bool { return r.order.Len() == 0 }

// ghostEntry tracks the size of a demoted object so the ghost ring can
// honor its own byte budget without charging occupied_bytes (ghost
// entries are not resident, per spec §3).
type ghostEntry struct {
	objID uint64
	size  uint64
}

type ghostRing struct {
	order    *list.List
	elems    map[uint64]*list.Element
	occupied uint64
	capacity uint64
}

func newGhostRing(capacity uint64) *ghostRing {
	return &ghostRing{order: list.New(), elems: make(map[uint64]*list.Element), capacity: capacity}
}

func (g *ghostRing) add(objID, size uint64) {
	for g.occupied+size > g.capacity && g.order.Len() > 0 {
		g.evictOldest()
	}
	g.elems[objID] = g.order.PushBack(ghostEntry{objID: objID, size: size})
	g.occupied += size
}

func (g *ghostRing) evictOldest() {
	elem := g.order.Front()
	if elem == nil {
		return
	}
	entry := elem.Value.(ghostEntry) //nolint:forcetypeassert
	g.order.Remove(elem)
	delete(g.elems, entry.objID)
	g.occupied -= entry.size
}

func (g *ghostRing) remove(objID uint64) (uint64, bool) {
	elem, ok := g.elems[objID]
	if !ok {
		return 0, false
	}
	entry := elem.Value.(ghostEntry) //nolint:forcetypeassert
	g.order.Remove(elem)
	delete(g.elems, objID)
	g.occupied -= entry.size
	return entry.size, true
}

func (g *ghostRing) has(objID uint64) bool {
	_, ok := g.elems[objID]
	return ok
}

// S3FIFO is the Policy implementation.
type S3FIFO struct {
	store *store.ObjectStore

	small *ring
	main  *ring
	ghost *ghostRing

	freq map[uint64]uint8

	smallCapacityBytes uint64
	mainCapacityBytes  uint64
	params             Params

	// pendingHitOnGhost records, between the Find that consults ghost and
	// the Insert that follows it, whether the just-missed object was
	// found in ghost: if so it is admitted straight to main.
	pendingHitOnGhost bool

	metrics policyMetrics
}

// policyMetrics holds the instrumentation counters spec §4.4 names. A nil
// Recorder (the default) makes every call a no-op.
type policyMetrics struct {
	Recorder func(op string)
}

func (m policyMetrics) record(op string) {
	if m.Recorder != nil {
		m.Recorder(op)
	}
}

// SetOpRecorder lets cachecore wire a metrics.CacheMetrics.RecordPolicyOp
// into the admit/promote counters without s3fifo importing metrics.
func (p *S3FIFO) SetOpRecorder(fn func(op string)) {
	p.metrics.Recorder = fn
}

func (p *S3FIFO) Init(s *store.ObjectStore, common store.CommonParams, paramStr string) error {
	params, err := paramconfig.ParseParams(paramStr)
	if err != nil {
		return &policy.ConfigError{Key: "policy_params", Reason: err.Error()}
	}

	p.params = Params{
		SmallSizeRatio:      defaultSmallRatio,
		GhostSizeRatio:      defaultGhostRatio,
		MoveToMainThreshold: defaultPromoteThreshold,
	}
	if v, ok := params["fifo-size-ratio"]; ok {
		params["small-size-ratio"] = v
	}
	if v, ok := params["small-size-ratio"]; ok {
		f, err := parseFloat(v)
		if err != nil {
			return &policy.ConfigError{Key: "small-size-ratio", Reason: err.Error()}
		}
		p.params.SmallSizeRatio = f
	}
	if v, ok := params["ghost-size-ratio"]; ok {
		f, err := parseFloat(v)
		if err != nil {
			return &policy.ConfigError{Key: "ghost-size-ratio", Reason: err.Error()}
		}
		p.params.GhostSizeRatio = f
	}
	if v, ok := params["move-to-main-threshold"]; ok {
		n, err := parseUint8(v)
		if err != nil {
			return &policy.ConfigError{Key: "move-to-main-threshold", Reason: err.Error()}
		}
		p.params.MoveToMainThreshold = n
	}

	p.store = s
	p.small = newRing()
	p.main = newRing()
	p.smallCapacityBytes = uint64(p.params.SmallSizeRatio * float64(common.CapacityBytes))
	p.mainCapacityBytes = common.CapacityBytes - p.smallCapacityBytes
	p.ghost = newGhostRing(uint64(p.params.GhostSizeRatio * float64(common.CapacityBytes)))
	p.freq = make(map[uint64]uint8)

	s.OnRemove(func(rec *store.Record, _ uint64) {
		p.small.remove(rec.ObjID)
		p.main.remove(rec.ObjID)
		delete(p.freq, rec.ObjID)
	})

	s.CanInsert = func(req request.Request, st *store.ObjectStore) bool {
		if !st.DefaultCanInsert(req) {
			return false
		}
		if p.pendingHitOnGhost {
			return true
		}
		return req.Size <= p.smallCapacityBytes
	}
	return nil
}

func (p *S3FIFO) Free() {
	p.small = nil
	p.main = nil
	p.ghost = nil
	p.freq = nil
}

func (p *S3FIFO) Find(req request.Request, update bool) (*store.Record, bool) {
	rec, ok := p.store.Find(req, update)
	if ok {
		if update {
			if p.small.has(req.ObjID) || p.main.has(req.ObjID) {
				p.bumpFreq(req.ObjID)
			}
		}
		return rec, true
	}

	if update {
		p.pendingHitOnGhost = p.ghost.has(req.ObjID)
		if p.pendingHitOnGhost {
			p.ghost.remove(req.ObjID)
		}
	}
	return nil, false
}

func (p *S3FIFO) bumpFreq(objID uint64) {
	if p.freq[objID] < maxFreq {
		p.freq[objID]++
	}
}

func (p *S3FIFO) Insert(req request.Request) (*store.Record, bool) {
	rec := p.store.Insert(req)
	p.freq[req.ObjID] = 0

	if p.pendingHitOnGhost {
		p.main.pushBack(req.ObjID)
		p.pendingHitOnGhost = false
		p.metrics.record("admit_to_main")
	} else {
		p.small.pushBack(req.ObjID)
		p.metrics.record("admit_to_small")
	}
	return rec, true
}

func (p *S3FIFO) Evict(_ request.Request) error {
	mainOccupied := p.ringBytes(p.main)
	if mainOccupied > p.mainCapacityBytes || p.small.empty() {
		return p.evictFromMain()
	}
	return p.evictFromSmall()
}

func (p *S3FIFO) ringBytes(r *ring) uint64 {
	var total uint64
	for objID := range r.elems {
		if rec, ok := p.store.Peek(objID); ok {
			total += rec.Size
		}
	}
	return total
}

func (p *S3FIFO) evictFromSmall() error {
	for {
		objID, ok := p.small.popFront()
		if !ok {
			return &policy.InvariantViolation{Detail: "s3fifo: small empty during evictFromSmall"}
		}
		rec, _ := p.store.Peek(objID)

		if p.freq[objID] >= p.params.MoveToMainThreshold {
			p.main.pushBack(objID)
			p.metrics.record("move_to_main")
			continue
		}

		size := rec.Size
		p.store.Remove(objID)
		p.ghost.add(objID, size)
		return nil
	}
}

func (p *S3FIFO) evictFromMain() error {
	for {
		objID, ok := p.main.popFront()
		if !ok {
			return &policy.InvariantViolation{Detail: "s3fifo: main empty during evictFromMain"}
		}

		if p.freq[objID] >= 1 {
			p.freq[objID]-- // freq is always <= maxFreq already, so min(freq,3)-1 == freq-1
			p.main.pushBack(objID)
			continue
		}

		p.store.Remove(objID)
		return nil
	}
}

func (p *S3FIFO) ToEvict(_ request.Request) (*store.Record, bool, error) {
	return nil, false, policy.ErrNotSupported
}

func (p *S3FIFO) Remove(objID uint64) bool {
	return p.store.Remove(objID)
}

func (p *S3FIFO) CanInsert(req request.Request) bool {
	return p.store.Admits(req)
}

func (p *S3FIFO) Name() string { return "s3fifo" }
