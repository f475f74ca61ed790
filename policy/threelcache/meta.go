package threelcache

const (
	maxPastDistances = 3
	// nFeature is age (1) + up to 3 past inter-access distances + size
	// (1) + freq (1), matching spec §4.5.1/4.5.2's fixed 6-wide row.
	nFeature = 1 + maxPastDistances + 2
)

// distRing is a small cyclic buffer of the most recent inter-access
// distances for one object, newest write overwriting the oldest slot.
// Allocated lazily on an object's second access (spec §4.5.1).
type distRing struct {
	vals [maxPastDistances]float64
	pos  int
	n    int
}

func (d *distRing) push(v float64) {
	d.vals[d.pos] = v
	d.pos = (d.pos + 1) % maxPastDistances
	if d.n < maxPastDistances {
		d.n++
	}
}

// features fills dst (len >= maxPastDistances) with the stored distances
// newest-first, zero-padding entries never written.
func (d *distRing) features(dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	if d == nil {
		return
	}
	for i := 0; i < d.n; i++ {
		idx := (d.pos - 1 - i + maxPastDistances) % maxPastDistances
		dst[i] = d.vals[idx]
	}
}

// meta is the per-object record shared by in_cache and out_cache (spec
// §4.5.1). prev/next thread the intrusive circular list in in_cache only;
// they are unused while the record lives in out_cache.
type meta struct {
	key        uint64
	size       uint64
	lastAccess int64
	freq       uint16
	extra      *distRing
	sampleTime int64

	prev, next int32
}

func (m *meta) bumpFreq() {
	if m.freq < ^uint16(0) {
		m.freq++
	}
}

// listIdx distinguishes where a key currently lives: in_cache (a
// dense-array slot threaded through the circular list) or out_cache (a
// ghost-queue slot), per spec §4.5.1's key-map. threelcache.go's keyLoc
// pairs this with the position.
type listIdx uint8

const (
	listInCache listIdx = iota
	listOutCache
)

// Params holds the policy_params 3L-Cache understands (spec §6).
type Params struct {
	NumIterations  int
	LearningRate   float64
	NumThreads     int
	NumLeaves      int
	ByteMillionReq float64
	SampleRate     int
	Objective      string
}

const (
	objectiveByteMissRatio   = "byte-miss-ratio"
	objectiveObjectMissRatio = "object-miss-ratio"

	defaultNumIterations = 16
	defaultLearningRate  = 0.1
	defaultNumLeaves     = 32
	defaultSampleRate    = 64
	trainingBatchSize    = 65536
	historySpanWindow    = 2 // hsw in [2,6]; 2 is the conservative default
)

func defaultParams() Params {
	return Params{
		NumIterations: defaultNumIterations,
		LearningRate:  defaultLearningRate,
		NumThreads:    1,
		NumLeaves:     defaultNumLeaves,
		SampleRate:    defaultSampleRate,
		Objective:     objectiveByteMissRatio,
	}
}
