// Package fifo implements the FIFO eviction policy (spec §2 "simple
// policies"): the oldest admitted object is evicted first, regardless of
// access pattern. Adapted directly from the teacher's fifo/fifo.go
// (container/list + map), generalized from item-count capacity and a
// private map to byte capacity and the shared store.ObjectStore. It also
// backs S3FIFO's three sub-queues (policy/s3fifo), which reuse the same
// ring shape internally rather than importing this package, since their
// rings are byte-accounted sub-budgets of one shared Object Store rather
// than policies in their own right.
package fifo

import (
	"container/list"

	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("fifo", func() policy.Policy { return &FIFO{} })
}

// FIFO is the Policy implementation: insertion order only, no recency or
// frequency bookkeeping.
type FIFO struct {
	store *store.ObjectStore
	order *list.List
	elems map[uint64]*list.Element
}

// Init constructs the eviction ring. FIFO takes no policy_params.
func (f *FIFO) Init(s *store.ObjectStore, _ store.CommonParams, _ string) error {
	f.store = s
	f.order = list.New()
	f.elems = make(map[uint64]*list.Element)

	// The store may remove a record out from under us (TTL expiry inside
	// Find); this hook keeps the ring consistent no matter which path
	// removed the record, idempotently since Evict/Remove below also
	// route their removals through store.Remove.
	s.OnRemove(func(rec *store.Record, _ uint64) {
		if elem, ok := f.elems[rec.ObjID]; ok {
			f.order.Remove(elem)
			delete(f.elems, rec.ObjID)
		}
	})
	return nil
}

func (f *FIFO) Free() {
	f.order = nil
	f.elems = nil
}

func (f *FIFO) Find(req request.Request, update bool) (*store.Record, bool) {
	return f.store.Find(req, update)
}

func (f *FIFO) Insert(req request.Request) (*store.Record, bool) {
	rec := f.store.Insert(req)
	elem := f.order.PushBack(req.ObjID)
	f.elems[req.ObjID] = elem
	return rec, true
}

func (f *FIFO) Evict(_ request.Request) error {
	elem := f.order.Front()
	if elem == nil {
		return &policy.InvariantViolation{Detail: "fifo: no evictable object but occupied_bytes > 0"}
	}
	objID := elem.Value.(uint64) //nolint:forcetypeassert // order only ever holds uint64
	f.store.Remove(objID)
	return nil
}

func (f *FIFO) ToEvict(_ request.Request) (*store.Record, bool, error) {
	elem := f.order.Front()
	if elem == nil {
		return nil, false, nil
	}
	objID := elem.Value.(uint64) //nolint:forcetypeassert
	rec, ok := f.store.Peek(objID)
	return rec, ok, nil
}

func (f *FIFO) Remove(objID uint64) bool {
	return f.store.Remove(objID)
}

func (f *FIFO) CanInsert(req request.Request) bool {
	return f.store.DefaultCanInsert(req)
}

func (f *FIFO) Name() string { return "fifo" }
