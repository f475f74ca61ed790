// Package store implements the Object Store: the hash-indexed table of
// resident objects shared by every eviction policy, plus the bookkeeping
// (occupied bytes, object count, monotonic request counter) every policy
// reads and the Cache Core drives.
package store

import "github.com/go-cachesim/cachesim/request"

// CommonParams configures the shared, policy-independent behavior of a
// cache instance.
type CommonParams struct {
	CapacityBytes uint64
	// DefaultTTL, if non-zero, is added to a request's logical time on
	// insert to produce Record.ExpiresAt. Zero disables TTL expiry.
	DefaultTTL int64
	// ConsiderObjMetadata is read by policies that size-cost metadata
	// alongside object bytes; the Object Store itself only tracks Size.
	ConsiderObjMetadata bool
}

// Record is the canonical, shared metadata for one resident object.
// PolicyState is an opaque slot for policy-specific state; the policies in
// this module leave it nil and keep their per-object state (S3FIFO's freq
// counter, GDSF's heap node, 3L-Cache's meta) in their own structures.
type Record struct {
	ObjID       uint64
	Size        uint64
	CreateTime  int64
	ExpiresAt   int64 // zero means "no TTL"
	PolicyState any

	// insertSeq is the request counter value at admission, used to derive
	// eviction age in logical-time units (requests), independent of
	// whatever Request.Time unit the driver feeds in.
	insertSeq uint64
}

// CanInsertFunc overrides the default admission check. Policies that need
// a stricter rule (S3FIFO additionally requires size <= small.capacity)
// set this during their own Init.
type CanInsertFunc func(req request.Request, s *ObjectStore) bool

// ObjectStore is the hash index shared by the Cache Core and the active
// policy. It owns occupied-byte accounting and the monotonic request
// counter that every policy uses as logical time (spec §5).
type ObjectStore struct {
	common  CommonParams
	records map[uint64]*Record

	occupiedBytes uint64
	nReq          uint64

	// CanInsert overrides the default size-based admission check. Left
	// nil, DefaultCanInsert is used.
	CanInsert CanInsertFunc

	removeHooks []func(rec *Record, ageReqs uint64)
}

// OnRemove registers fn to be called whenever a record leaves the store
// (explicit remove, policy eviction, or TTL expiry), with its age in
// requests since admission. The owning policy subscribes to clean up its
// own parallel structures (queue nodes, heap entries) when the store
// removes a record out from under it, e.g. on TTL expiry inside Find;
// cachecore separately subscribes to feed the eviction-age histogram.
func (s *ObjectStore) OnRemove(fn func(rec *Record, ageReqs uint64)) {
	s.removeHooks = append(s.removeHooks, fn)
}

// New creates an empty Object Store for the given common parameters.
func New(common CommonParams) *ObjectStore {
	return &ObjectStore{
		common:  common,
		records: make(map[uint64]*Record),
	}
}

// Find looks up obj_id. When update is true it increments the request
// counter (the source of truth for logical time) and, if the record has
// expired, removes it and reports a miss instead of a stale hit.
func (s *ObjectStore) Find(req request.Request, update bool) (*Record, bool) {
	rec, ok := s.records[req.ObjID]
	if !ok {
		if update {
			s.nReq++
		}
		return nil, false
	}

	if update {
		s.nReq++
	}

	if rec.ExpiresAt != 0 && req.Time >= rec.ExpiresAt {
		s.removeRecord(rec)
		return nil, false
	}

	return rec, true
}

// Peek looks up obj_id without touching the request counter or expiry
// bookkeeping, for callers that need read-only visibility (ToEvict).
func (s *ObjectStore) Peek(objID uint64) (*Record, bool) {
	rec, ok := s.records[objID]
	return rec, ok
}

// Insert allocates a new record, adds it to the Object Store, and
// increases occupied_bytes by size. The caller (policy or Cache Core) is
// responsible for ensuring capacity is (eventually) satisfied by evicting
// afterward; Insert itself never evicts.
func (s *ObjectStore) Insert(req request.Request) *Record {
	var expiresAt int64
	if s.common.DefaultTTL != 0 {
		expiresAt = req.Time + s.common.DefaultTTL
	}

	rec := &Record{
		ObjID:      req.ObjID,
		Size:       req.Size,
		CreateTime: req.Time,
		ExpiresAt:  expiresAt,
		insertSeq:  s.nReq,
	}
	s.records[req.ObjID] = rec
	s.occupiedBytes += req.Size
	return rec
}

// Remove deletes obj_id if present, adjusting occupied_bytes. Reports
// whether the object was resident.
func (s *ObjectStore) Remove(objID uint64) bool {
	rec, ok := s.records[objID]
	if !ok {
		return false
	}
	s.removeRecord(rec)
	return true
}

func (s *ObjectStore) removeRecord(rec *Record) {
	delete(s.records, rec.ObjID)
	s.occupiedBytes -= rec.Size
	if len(s.removeHooks) == 0 {
		return
	}
	age := s.nReq - rec.insertSeq
	for _, fn := range s.removeHooks {
		fn(rec, age)
	}
}

// DefaultCanInsert is size <= capacity && size > 0, the policy-agnostic
// admission rule from spec §4.1.
func (s *ObjectStore) DefaultCanInsert(req request.Request) bool {
	return req.Size > 0 && req.Size <= s.common.CapacityBytes
}

// Admits reports whether req may be inserted, honoring a policy override.
func (s *ObjectStore) Admits(req request.Request) bool {
	if s.CanInsert != nil {
		return s.CanInsert(req, s)
	}
	return s.DefaultCanInsert(req)
}

// OccupiedBytes returns the current byte occupancy.
func (s *ObjectStore) OccupiedBytes() uint64 { return s.occupiedBytes }

// NObj returns the current resident object count.
func (s *ObjectStore) NObj() int { return len(s.records) }

// NReq returns the monotonic request counter (logical time source).
func (s *ObjectStore) NReq() uint64 { return s.nReq }

// Capacity returns the configured byte capacity.
func (s *ObjectStore) Capacity() uint64 { return s.common.CapacityBytes }

// Common returns the store's configured common parameters.
func (s *ObjectStore) Common() CommonParams { return s.common }
