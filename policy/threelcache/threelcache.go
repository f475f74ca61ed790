// Package threelcache implements 3L-Cache: a learned eviction policy that
// samples inter-access history from both resident (in_cache) and recently
// evicted (out_cache, a bounded ghost queue) objects, periodically trains
// a small gradient-boosted regressor (package gbdt) to predict each
// object's next reuse distance, and evicts the sampled candidate with the
// largest predicted reuse distance (spec §4.5). Before the first training
// round completes it has no model to score candidates with: eviction then
// takes the oldest recently admitted object through the quick-demotion
// path when new objects exceed their reserved share, and otherwise the
// head of the in_cache circular list, the same FIFO-ish baseline as
// policy/fifo.
package threelcache

import (
	"container/heap"
	"math"
	"sort"

	"github.com/go-cachesim/cachesim/logging"
	"github.com/go-cachesim/cachesim/paramconfig"
	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/policy/threelcache/gbdt"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("threelcache", func() policy.Policy { return &ThreeLCache{} })
}

// keyLoc records where a key currently lives. pos is only meaningful
// when list == listInCache (the dense-array slot); an out_cache record
// is looked up by key directly in outCacheTable's own map, so pos is
// left zero there.
type keyLoc struct {
	list listIdx
	pos  int32
}

// ThreeLCache is the Policy implementation.
type ThreeLCache struct {
	store  *store.ObjectStore
	keyMap map[uint64]keyLoc

	inCache  *inCacheTable
	outCache *outCacheTable

	params Params

	model   *gbdt.Model
	trained bool
	buffer  *csrBuilder

	predHeap predHeap
	predMap  map[uint64]float64 // key -> reuseTime currently live in predHeap, for lazy deletion

	scanPtr        int32
	sampleBoundary uint16 // freq ceiling (spec §4.5.6): only candidates with freq <= this are scored
	samplingLRU    int    // number of scan steps per Evict call
	reservedSpace  int    // percent of capacity new objects may occupy before quick-demotion kicks in

	newObjQueue []uint64
	newObjSize  uint64

	sampleCounter float64
	rng           uint64

	maxEvictionBoundary [2]float64 // [this round's running max age, last round's max age]

	evictionFreqSamples []uint16
	evictionSampleCap   int
	sweepEvictions      int
	sweepHeadEvictions  int
	quickDemotions      int

	hasPendingGhost  bool
	pendingGhostMeta meta

	metrics policyMetrics
	logger  *logging.Logger
}

type policyMetrics struct {
	Recorder func(op string)
}

func (m policyMetrics) record(op string) {
	if m.Recorder != nil {
		m.Recorder(op)
	}
}

// SetOpRecorder lets cachecore wire a metrics.CacheMetrics.RecordPolicyOp
// into the quick-demotion and train counters.
func (p *ThreeLCache) SetOpRecorder(fn func(op string)) {
	p.metrics.Recorder = fn
}

const (
	defaultSamplingLRU       = 32
	defaultReservedPercent   = 1
	defaultEvictionSampleCap = 4096
)

func (p *ThreeLCache) Init(s *store.ObjectStore, common store.CommonParams, paramStr string) error {
	raw, err := paramconfig.ParseParams(paramStr)
	if err != nil {
		return &policy.ConfigError{Key: "policy_params", Reason: err.Error()}
	}

	p.params = defaultParams()
	if v, ok := raw["num-iterations"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return &policy.ConfigError{Key: "num-iterations", Reason: err.Error()}
		}
		p.params.NumIterations = n
	}
	if v, ok := raw["learning-rate"]; ok {
		f, err := parseFloat(v)
		if err != nil {
			return &policy.ConfigError{Key: "learning-rate", Reason: err.Error()}
		}
		p.params.LearningRate = f
	}
	if v, ok := raw["num-threads"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return &policy.ConfigError{Key: "num-threads", Reason: err.Error()}
		}
		p.params.NumThreads = n
	}
	if v, ok := raw["num-leaves"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return &policy.ConfigError{Key: "num-leaves", Reason: err.Error()}
		}
		p.params.NumLeaves = n
	}
	if v, ok := raw["byte-million-req"]; ok {
		f, err := parseFloat(v)
		if err != nil {
			return &policy.ConfigError{Key: "byte-million-req", Reason: err.Error()}
		}
		p.params.ByteMillionReq = f
	}
	if v, ok := raw["sample-rate"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return &policy.ConfigError{Key: "sample-rate", Reason: err.Error()}
		}
		p.params.SampleRate = n
	}
	if v, ok := raw["objective"]; ok {
		if v != objectiveByteMissRatio && v != objectiveObjectMissRatio {
			return &policy.ConfigError{Key: "objective", Reason: "must be byte-miss-ratio or object-miss-ratio"}
		}
		p.params.Objective = v
	}

	p.store = s
	p.keyMap = make(map[uint64]keyLoc)
	p.inCache = newInCacheTable()

	// max_out_cache_size bounds the ghost queue by object count (spec's
	// in_cache.size means object count, not bytes). The Object Store holds
	// no admitted objects yet at Init time, so the in_cache object count
	// is estimated as capacity / min-obj-size, an explicit param since
	// there is no other way to know the workload's object-size floor up
	// front; it defaults to 1, which recovers the previous byte-sized
	// bound as the degenerate all-1-byte-object case and shrinks correctly
	// for anything larger.
	minObjSize := 1
	if v, ok := raw["min-obj-size"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return &policy.ConfigError{Key: "min-obj-size", Reason: err.Error()}
		}
		if n <= 0 {
			return &policy.ConfigError{Key: "min-obj-size", Reason: "must be positive"}
		}
		minObjSize = n
	}
	estInCacheObjs := int(common.CapacityBytes) / minObjSize
	maxOutCacheSize := estInCacheObjs*(historySpanWindow-1) + 2
	p.outCache = newOutCacheTable(maxOutCacheSize)

	p.buffer = newCSRBuilder()
	p.predMap = make(map[uint64]float64)
	p.samplingLRU = defaultSamplingLRU
	p.reservedSpace = defaultReservedPercent
	p.rng = 0xa5a5a5a5a5a5a5a5
	p.logger = logging.Default

	p.evictionSampleCap = defaultEvictionSampleCap
	if p.params.ByteMillionReq > 0 {
		p.evictionSampleCap = int(p.params.ByteMillionReq)
	}

	s.OnRemove(func(rec *store.Record, _ uint64) {
		loc, ok := p.keyMap[rec.ObjID]
		if !ok || loc.list != listInCache {
			return
		}
		removed, movedKey, movedTo, moved := p.inCache.removeSwap(loc.pos)
		if moved {
			p.keyMap[movedKey] = keyLoc{list: listInCache, pos: movedTo}
		}
		delete(p.keyMap, removed.key)
	})

	return nil
}

func (p *ThreeLCache) Free() {
	p.inCache = nil
	p.outCache = nil
	p.keyMap = nil
	p.model = nil
	p.buffer = nil
	p.predHeap = nil
	p.predMap = nil
}

// next is a xorshift64 step used for sampling draws, kept private to
// this policy instance rather than touching math/rand's global state.
func (p *ThreeLCache) next() uint64 {
	p.rng ^= p.rng << 13
	p.rng ^= p.rng >> 7
	p.rng ^= p.rng << 17
	return p.rng
}

func (p *ThreeLCache) Find(req request.Request, update bool) (*store.Record, bool) {
	rec, ok := p.store.Find(req, update)
	if ok {
		if update {
			p.onHit(req.ObjID)
		}
		return rec, true
	}

	if update {
		if gm, found := p.outCache.remove(req.ObjID); found {
			delete(p.keyMap, req.ObjID)
			p.hasPendingGhost = true
			p.pendingGhostMeta = gm
		} else {
			p.hasPendingGhost = false
		}
		p.trySample()
	}
	return nil, false
}

// onHit runs the spec §4.5.4 hit-path bookkeeping: distance-ring update,
// freq bump, in_cache promotion, and training-row emission for objects
// that were previously sampled.
func (p *ThreeLCache) onHit(objID uint64) {
	loc := p.keyMap[objID]
	m := p.inCache.get(loc.pos)
	now := int64(p.store.NReq())

	if m.lastAccess != 0 {
		if m.extra == nil {
			m.extra = &distRing{}
		}
		m.extra.push(float64(now - m.lastAccess))
	}
	m.bumpFreq()

	if m.sampleTime != 0 && p.shouldEmitTrainingRow() {
		label := math.Log1p(float64(now - m.sampleTime))
		feat := extractFeatures(m, now)
		p.buffer.addRow(feat, label)
		m.sampleTime = 0
	}

	m.lastAccess = now
	p.inCache.moveToTail(loc.pos)

	p.trySample()
	p.maybeTrain()
}

func (p *ThreeLCache) shouldEmitTrainingRow() bool {
	if !p.trained {
		return true
	}
	return p.next()%4 == 0
}

// trySample draws amortized random samples across in_cache ∪ out_cache,
// stamping sample_times on whichever record a draw lands on (spec
// §4.5.3). sample_rate is requests-per-sample; a running fractional
// counter keeps the long-run rate correct without needing floating draws
// every single request.
func (p *ThreeLCache) trySample() {
	rate := p.params.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	p.sampleCounter += 1.0 / float64(rate)
	for p.sampleCounter >= 1 {
		p.sampleCounter--
		p.drawSample()
	}
}

func (p *ThreeLCache) drawSample() {
	total := p.inCache.len() + p.outCache.len()
	if total == 0 {
		return
	}
	now := int64(p.store.NReq())
	idx := int(p.next() % uint64(total))

	if idx < p.inCache.len() {
		m := p.inCache.get(int32(idx))
		if m.sampleTime == 0 {
			m.sampleTime = now
		}
		return
	}

	key, ok := p.outCache.keyAt(idx - p.inCache.len())
	if !ok {
		return
	}
	if gm, ok := p.outCache.get(key); ok && gm.sampleTime == 0 {
		p.outCache.setSampleTime(key, now)
	}
}

func (p *ThreeLCache) Insert(req request.Request) (*store.Record, bool) {
	rec := p.store.Insert(req)
	now := int64(p.store.NReq())

	var m meta
	if p.hasPendingGhost {
		m = p.pendingGhostMeta
		m.size = req.Size
		p.hasPendingGhost = false
	} else {
		m = meta{key: req.ObjID, size: req.Size}
		p.newObjQueue = append(p.newObjQueue, req.ObjID)
		p.newObjSize += req.Size
	}
	m.lastAccess = now

	idx := p.inCache.pushTail(m)
	p.keyMap[req.ObjID] = keyLoc{list: listInCache, pos: idx}
	return rec, true
}

func (p *ThreeLCache) Evict(_ request.Request) error {
	if p.inCache.len() == 0 {
		return &policy.InvariantViolation{Detail: "threelcache: in_cache empty during Evict"}
	}

	capacity := p.store.Capacity()
	reserved := capacity * uint64(p.reservedSpace) / 100
	if reserved == 0 {
		reserved = 1
	}

	victimIdx, ok := int32(-1), false
	if p.newObjSize > reserved {
		victimIdx, ok = p.popQuickDemotionCandidate()
	}
	if !ok {
		victimIdx, ok = p.selectVictimByScore()
	}
	if !ok {
		victimIdx = p.inCache.head
	}

	return p.demote(victimIdx)
}

// popQuickDemotionCandidate drains newObjQueue for the oldest still-
// resident recently-admitted object, per spec §4.5.6's "new objects are
// outgrowing their reserved share" fast path.
func (p *ThreeLCache) popQuickDemotionCandidate() (int32, bool) {
	for len(p.newObjQueue) > 0 {
		key := p.newObjQueue[0]
		p.newObjQueue = p.newObjQueue[1:]
		loc, ok := p.keyMap[key]
		if !ok || loc.list != listInCache {
			continue
		}
		p.newObjSize -= p.inCache.get(loc.pos).size
		p.quickDemotions++
		p.metrics.record("quick_demotion")
		return loc.pos, true
	}
	return 0, false
}

// selectVictimByScore runs one round of general sampling over the scan
// pointer and, if the model is trained, scores candidates and pops the
// largest predicted reuse distance off the prediction heap (spec
// §4.5.6). With no trained model yet it scores nothing and reports no
// candidate, so Evict falls back to the in_cache head.
func (p *ThreeLCache) selectVictimByScore() (int32, bool) {
	p.generalSample()

	for len(p.predHeap) > 0 {
		top := heap.Pop(&p.predHeap).(*predEntry) //nolint:forcetypeassert
		if cur, ok := p.predMap[top.key]; !ok || cur != top.reuseTime {
			continue // stale entry: object already left in_cache or was re-scored
		}
		delete(p.predMap, top.key)

		loc, ok := p.keyMap[top.key]
		if !ok || loc.list != listInCache {
			continue
		}
		return loc.pos, true
	}
	return 0, false
}

func (p *ThreeLCache) generalSample() {
	n := p.inCache.len()
	if n == 0 {
		return
	}
	steps := p.samplingLRU
	if steps > n {
		steps = n
	}

	for i := 0; i < steps; i++ {
		if int(p.scanPtr) >= p.inCache.len() {
			p.scanPtr = 0
			p.onFullSweep()
		}
		m := p.inCache.get(p.scanPtr)
		if m.freq <= p.sampleBoundary {
			p.scoreCandidate(m)
		}
		p.scanPtr++
	}
}

func (p *ThreeLCache) scoreCandidate(m *meta) {
	if !p.trained {
		return
	}
	now := int64(p.store.NReq())
	feat := extractFeatures(m, now)
	score := p.model.Predict([][]float64{feat[:]})[0]

	var reuseTime float64
	switch p.params.Objective {
	case objectiveObjectMissRatio:
		reuseTime = math.Exp(score)
	default:
		reuseTime = float64(m.size) * math.Exp(score)
	}

	heap.Push(&p.predHeap, &predEntry{reuseTime: reuseTime, key: m.key})
	p.predMap[m.key] = reuseTime
}

// onFullSweep runs each time the scan pointer wraps, recomputing
// sample_boundary as the 99th-percentile eviction freq observed since the
// last sweep and nudging samplingLRU/reservedSpace in the direction the
// last sweep's outcomes suggest (spec §4.5.9, simplified: a single
// percentile-plus-directional-step adjustment rather than the original's
// fuller self-tuning search).
func (p *ThreeLCache) onFullSweep() {
	if len(p.evictionFreqSamples) > 0 {
		sorted := append([]uint16(nil), p.evictionFreqSamples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		idx := int(0.99 * float64(len(sorted)-1))
		p.sampleBoundary = sorted[idx]
	}
	p.evictionFreqSamples = p.evictionFreqSamples[:0]

	if p.sweepEvictions > 0 {
		if p.sweepHeadEvictions*2 > p.sweepEvictions && p.samplingLRU > 1 {
			p.samplingLRU--
		} else if p.sweepHeadEvictions*2 <= p.sweepEvictions {
			p.samplingLRU++
		}
	}
	if p.quickDemotions > p.sweepEvictions/4+1 {
		if p.reservedSpace < 100 {
			p.reservedSpace *= 2
			if p.reservedSpace > 100 {
				p.reservedSpace = 100
			}
		}
	} else if p.reservedSpace > defaultReservedPercent {
		p.reservedSpace--
	}

	p.sweepEvictions = 0
	p.sweepHeadEvictions = 0
	p.quickDemotions = 0
}

func (p *ThreeLCache) recordEvictionFreq(freq uint16, wasHead bool) {
	if len(p.evictionFreqSamples) < p.evictionSampleCap {
		p.evictionFreqSamples = append(p.evictionFreqSamples, freq)
	}
	p.sweepEvictions++
	if wasHead {
		p.sweepHeadEvictions++
	}
}

// demote swap-removes victimIdx from in_cache, fixes up the key-map for
// any relocated record, drops the Object Store record, and pushes the
// victim into out_cache as a ghost (spec §4.5.7). If that push overflows
// the ghost queue's own capacity, the record it displaces emits a
// synthetic training row when it had been sampled but never hit again.
func (p *ThreeLCache) demote(victimIdx int32) error {
	wasHead := victimIdx == p.inCache.head

	removed, movedKey, movedTo, moved := p.inCache.removeSwap(victimIdx)
	if moved {
		p.keyMap[movedKey] = keyLoc{list: listInCache, pos: movedTo}
	}
	delete(p.keyMap, removed.key)

	p.store.Remove(removed.key)
	p.recordEvictionFreq(removed.freq, wasHead)

	now := int64(p.store.NReq())
	if removed.lastAccess != 0 {
		age := float64(now - removed.lastAccess)
		if age > p.maxEvictionBoundary[0] {
			p.maxEvictionBoundary[0] = age
		}
	}

	ghostEvicted, hadGhostEviction := p.outCache.pushBack(removed)
	p.keyMap[removed.key] = keyLoc{list: listOutCache}

	if hadGhostEviction {
		delete(p.keyMap, ghostEvicted.key)
		if ghostEvicted.sampleTime != 0 {
			label := math.Log1p(p.maxEvictionBoundary[1] + float64(now-ghostEvicted.sampleTime))
			feat := extractFeatures(&ghostEvicted, now)
			p.buffer.addRow(feat, label)
		}
	}

	p.maybeTrain()
	return nil
}

// maybeTrain trains a fresh learner once the CSR buffer has accumulated a
// full batch (spec §4.5.8). A failed fit degrades to the model-less
// fallback path rather than propagating an error: losing the learned
// ranking for one batch is recoverable, an Evict that returns an error is
// not (per policy.LearnerError's contract).
func (p *ThreeLCache) maybeTrain() {
	if p.buffer.nRows() < trainingBatchSize {
		return
	}

	rows := p.buffer.denseRows()
	labels := append([]float64(nil), p.buffer.Labels...)

	m := gbdt.New(gbdt.Params{
		NumLeaves:    p.params.NumLeaves,
		LearningRate: p.params.LearningRate,
	})
	iterations := p.params.NumIterations
	if iterations <= 0 {
		iterations = defaultNumIterations
	}

	if err := m.Train(rows, labels, iterations); err != nil {
		lerr := &policy.LearnerError{Reason: err.Error()}
		p.logger.Warn("threelcache: training round failed, falling back to untrained scoring", lerr)
		p.trained = false
		p.buffer.reset()
		return
	}

	p.model = m
	p.trained = true
	p.metrics.record("train")
	p.buffer.reset()

	p.predHeap = p.predHeap[:0]
	for k := range p.predMap {
		delete(p.predMap, k)
	}

	p.maxEvictionBoundary[1] = p.maxEvictionBoundary[0]
	p.maxEvictionBoundary[0] = 0
}

func (p *ThreeLCache) ToEvict(_ request.Request) (*store.Record, bool, error) {
	return nil, false, policy.ErrNotSupported
}

// Remove purges objID from whichever of in_cache/out_cache holds it.
// Ghost-only removal reports false: an out_cache entry is not resident,
// so removing one is not "removing an object from the cache" in the
// sense store.Remove's bool return documents, even though the ghost
// bookkeeping is cleaned up either way.
func (p *ThreeLCache) Remove(objID uint64) bool {
	if p.store.Remove(objID) {
		return true
	}
	if _, ok := p.outCache.remove(objID); ok {
		delete(p.keyMap, objID)
	}
	return false
}

func (p *ThreeLCache) CanInsert(req request.Request) bool {
	return p.store.Admits(req)
}

func (p *ThreeLCache) Name() string { return "threelcache" }

// ThreeLCacheStats exposes read-only introspection into the learned
// policy's internal state, for diagnostics and tests.
type ThreeLCacheStats struct {
	Trained bool
	// EvictionBoundaries holds [current round's running max eviction age,
	// prior round's max]. demote's ghost-eviction label adds the prior
	// round's value ([1]) to the time elapsed since the record was sampled
	// (spec §4.5.7/§9).
	EvictionBoundaries [2]float64
}

// Stats reports a snapshot of the policy's current internal state.
func (p *ThreeLCache) Stats() ThreeLCacheStats {
	return ThreeLCacheStats{
		Trained:            p.trained,
		EvictionBoundaries: p.maxEvictionBoundary,
	}
}
