// Package gdsf implements Greedy-Dual-Size-Frequency: a priority-queue
// policy where the evicted object is always the one with the smallest
// (frequency, size)-weighted priority, aged by a monotonically
// non-decreasing floor so that newly admitted objects cannot leapfrog
// ahead of objects that survived the previous sweep. Grounded on the
// teacher's lfu.lfuHeap (container/heap with an index field for O(1)
// removal-by-key), generalized from integer counts to floating-point
// priorities.
package gdsf

import (
	"container/heap"

	"github.com/go-cachesim/cachesim/paramconfig"
	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("gdsf", func() policy.Policy { return &GDSF{} })
}

// Params holds the policy_params GDSF understands.
type Params struct {
	// AdmissionCheck gates the speculative admission test: before
	// inserting an object that would require an eviction, compare its
	// predicted priority against the current minimum. Disabled by
	// default since it tends to hurt miss ratio on large-object
	// workloads.
	AdmissionCheck bool
}

// node is one priority-queue entry: one per resident object.
type node struct {
	priority float64
	seq      uint64
	objID    uint64
	freq     uint64
	index    int
}

type priQueue []*node

func (q priQueue) Len() int { return len(q) }

func (q priQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q priQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *priQueue) Push(x any) {
	n := x.(*node) //nolint:forcetypeassert
	n.index = len(*q)
	*q = append(*q, n)
}

func (q *priQueue) Pop() any {
	old := *q
	n := len(old)
	n0 := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return n0
}

// GDSF is the Policy implementation.
type GDSF struct {
	store        *store.ObjectStore
	queue        priQueue
	nodes        map[uint64]*node
	priLastEvict float64
	seq          uint64
	params       Params
}

func (g *GDSF) Init(s *store.ObjectStore, _ store.CommonParams, paramStr string) error {
	params, err := paramconfig.ParseParams(paramStr)
	if err != nil {
		return &policy.ConfigError{Key: "policy_params", Reason: err.Error()}
	}
	if v, ok := params["admission-check"]; ok {
		g.params.AdmissionCheck = v == "true" || v == "1"
	}

	g.store = s
	g.queue = priQueue{}
	heap.Init(&g.queue)
	g.nodes = make(map[uint64]*node)

	s.OnRemove(func(rec *store.Record, _ uint64) {
		if n, ok := g.nodes[rec.ObjID]; ok {
			heap.Remove(&g.queue, n.index)
			delete(g.nodes, rec.ObjID)
		}
	})

	s.CanInsert = func(req request.Request, st *store.ObjectStore) bool {
		if !st.DefaultCanInsert(req) {
			return false
		}
		if !g.params.AdmissionCheck {
			return true
		}
		if st.OccupiedBytes()+req.Size <= st.Capacity() {
			return true
		}
		if len(g.queue) == 0 {
			return true
		}
		predicted := g.priLastEvict + 1e6/float64(req.Size)
		return predicted > g.queue[0].priority
	}
	return nil
}

func (g *GDSF) Free() {
	g.queue = nil
	g.nodes = nil
}

func (g *GDSF) Find(req request.Request, update bool) (*store.Record, bool) {
	rec, ok := g.store.Find(req, update)
	if ok && update {
		if n, exists := g.nodes[req.ObjID]; exists {
			n.freq++
			n.seq = g.nextSeq()
			n.priority = g.priLastEvict + float64(n.freq)*1e6/float64(rec.Size)
			heap.Fix(&g.queue, n.index)
		}
	}
	return rec, ok
}

func (g *GDSF) Insert(req request.Request) (*store.Record, bool) {
	rec := g.store.Insert(req)
	n := &node{
		priority: g.priLastEvict + 1e6/float64(req.Size),
		seq:      g.nextSeq(),
		objID:    req.ObjID,
		freq:     1,
	}
	heap.Push(&g.queue, n)
	g.nodes[req.ObjID] = n
	return rec, true
}

func (g *GDSF) Evict(_ request.Request) error {
	if len(g.queue) == 0 {
		return &policy.InvariantViolation{Detail: "gdsf: no evictable object but occupied_bytes > 0"}
	}
	victim := g.queue[0]
	g.priLastEvict = victim.priority
	g.store.Remove(victim.objID)
	return nil
}

func (g *GDSF) ToEvict(_ request.Request) (*store.Record, bool, error) {
	if len(g.queue) == 0 {
		return nil, false, nil
	}
	rec, ok := g.store.Peek(g.queue[0].objID)
	return rec, ok, nil
}

func (g *GDSF) Remove(objID uint64) bool {
	return g.store.Remove(objID)
}

func (g *GDSF) CanInsert(req request.Request) bool {
	return g.store.Admits(req)
}

func (g *GDSF) Name() string { return "gdsf" }

func (g *GDSF) nextSeq() uint64 {
	g.seq++
	return g.seq
}
