// Package lru implements the LRU eviction policy (spec §2 "simple
// policies"): the least recently accessed object is evicted first.
// Adapted directly from the teacher's lru/lru.go (MoveToFront on hit,
// evict from Back), generalized to byte capacity and the shared
// store.ObjectStore.
package lru

import (
	"container/list"

	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

func init() {
	policy.Register("lru", func() policy.Policy { return &LRU{} })
}

// LRU tracks recency via a doubly linked list: Front is most recently
// used, Back is least recently used (the next victim).
type LRU struct {
	store *store.ObjectStore
	order *list.List
	elems map[uint64]*list.Element
}

func (l *LRU) Init(s *store.ObjectStore, _ store.CommonParams, _ string) error {
	l.store = s
	l.order = list.New()
	l.elems = make(map[uint64]*list.Element)

	s.OnRemove(func(rec *store.Record, _ uint64) {
		if elem, ok := l.elems[rec.ObjID]; ok {
			l.order.Remove(elem)
			delete(l.elems, rec.ObjID)
		}
	})
	return nil
}

func (l *LRU) Free() {
	l.order = nil
	l.elems = nil
}

func (l *LRU) Find(req request.Request, update bool) (*store.Record, bool) {
	rec, ok := l.store.Find(req, update)
	if ok && update {
		if elem, exists := l.elems[req.ObjID]; exists {
			l.order.MoveToFront(elem)
		}
	}
	return rec, ok
}

func (l *LRU) Insert(req request.Request) (*store.Record, bool) {
	rec := l.store.Insert(req)
	elem := l.order.PushFront(req.ObjID)
	l.elems[req.ObjID] = elem
	return rec, true
}

func (l *LRU) Evict(_ request.Request) error {
	elem := l.order.Back()
	if elem == nil {
		return &policy.InvariantViolation{Detail: "lru: no evictable object but occupied_bytes > 0"}
	}
	objID := elem.Value.(uint64) //nolint:forcetypeassert
	l.store.Remove(objID)
	return nil
}

func (l *LRU) ToEvict(_ request.Request) (*store.Record, bool, error) {
	elem := l.order.Back()
	if elem == nil {
		return nil, false, nil
	}
	objID := elem.Value.(uint64) //nolint:forcetypeassert
	rec, ok := l.store.Peek(objID)
	return rec, ok, nil
}

func (l *LRU) Remove(objID uint64) bool {
	return l.store.Remove(objID)
}

func (l *LRU) CanInsert(req request.Request) bool {
	return l.store.DefaultCanInsert(req)
}

func (l *LRU) Name() string { return "lru" }
