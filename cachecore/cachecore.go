// Package cachecore implements the Cache Core (spec §4.1): the per-instance
// orchestrator wrapping a shared Object Store and an active eviction
// policy. Directly grounded on the teacher's cache.Cache (cache/cache.go):
// a struct holding config + metrics + the active engine, with New
// dispatching construction and Get/Set/Delete/Has/Len/Evict/Metrics as its
// public surface — generalized here from "one of four built-in engines,
// string keys, unbounded item count" to "any registered byte-budgeted
// policy, uint64 object IDs, byte capacity".
package cachecore

import (
	"fmt"

	"github.com/go-cachesim/cachesim/logging"
	"github.com/go-cachesim/cachesim/metrics"
	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

// Cache is one simulated cache instance: a shared Object Store driven by
// a single active Policy. It is single-threaded internally (spec §5): Get
// never starts a goroutine and must not be called concurrently on the
// same instance.
type Cache struct {
	store   *store.ObjectStore
	pol     policy.Policy
	metrics *metrics.CacheMetrics
	logger  *logging.Logger

	nHit     uint64
	evicting bool
}

// opRecorder is implemented by policies that expose per-policy operation
// counters (S3FIFO admit/promote, 3L-Cache quick-demotion, ...); New wires
// it to the attached metrics set's RecordPolicyOp when both are present.
type opRecorder interface {
	SetOpRecorder(fn func(op string))
}

// Option configures optional Cache behavior.
type Option func(*Cache)

// WithMetrics attaches a Prometheus metric set (package metrics).
func WithMetrics(m *metrics.CacheMetrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger overrides the default logger used for fatal diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New constructs a Cache running the named policy (must have been
// registered via policy.Register, typically by importing the policy's
// subpackage for its init() side effect). policyParams is the raw
// key=value,key=value configuration string (spec §6).
func New(policyName string, common store.CommonParams, policyParams string, opts ...Option) (*Cache, error) {
	pol, ok := policy.New(policyName)
	if !ok {
		return nil, &policy.ConfigError{Key: "policy", Reason: fmt.Sprintf("unknown policy %q", policyName)}
	}

	s := store.New(common)
	if err := pol.Init(s, common, policyParams); err != nil {
		return nil, err
	}

	c := &Cache{
		store:  s,
		pol:    pol,
		logger: logging.Default,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics != nil {
		if op, ok := pol.(opRecorder); ok {
			op.SetOpRecorder(c.metrics.RecordPolicyOp)
		}
	}
	s.OnRemove(func(rec *store.Record, ageReqs uint64) {
		if c.metrics != nil && c.evicting {
			c.metrics.ObserveEvictionAge(float64(ageReqs))
		}
	})
	return c, nil
}

// Get is the hot path (spec §4.1 step 1-4): find-or-insert-and-evict.
func (c *Cache) Get(req request.Request) bool {
	rec, hit := c.pol.Find(req, true)
	if hit {
		c.nHit++
		if c.metrics != nil {
			c.metrics.RecordHit()
			c.metrics.SetOccupancy(c.store.OccupiedBytes(), c.store.NObj())
		}
		_ = rec
		return true
	}

	if c.metrics != nil {
		c.metrics.RecordMiss()
	}

	if c.store.Admits(req) {
		c.pol.Insert(req)
		for c.store.OccupiedBytes() > c.store.Capacity() {
			before := c.store.NObj()
			c.evicting = true
			err := c.pol.Evict(req)
			c.evicting = false
			if err != nil {
				c.fatal("evict failed", err)
			}
			if c.metrics != nil && c.store.NObj() < before {
				c.metrics.RecordEviction()
			}
		}
	}

	if c.metrics != nil {
		c.metrics.SetOccupancy(c.store.OccupiedBytes(), c.store.NObj())
	}
	return false
}

// Find looks up obj_id without the admit/evict side effects of Get.
func (c *Cache) Find(req request.Request, update bool) (*store.Record, bool) {
	return c.pol.Find(req, update)
}

// Insert admits req directly, bypassing the eviction loop. Callers that
// need capacity guaranteed afterward should follow with Evict in a loop,
// exactly as Get does.
func (c *Cache) Insert(req request.Request) (*store.Record, bool) {
	if !c.store.Admits(req) {
		return nil, false
	}
	return c.pol.Insert(req)
}

// Evict delegates one eviction to the active policy.
func (c *Cache) Evict(req request.Request) {
	before := c.store.NObj()
	c.evicting = true
	err := c.pol.Evict(req)
	c.evicting = false
	if err != nil {
		c.fatal("evict failed", err)
	}
	if c.metrics != nil && c.store.NObj() < before {
		c.metrics.RecordEviction()
	}
}

// Remove explicitly removes obj_id, reporting prior residency.
func (c *Cache) Remove(objID uint64) bool {
	return c.pol.Remove(objID)
}

// OccupiedBytes returns current byte occupancy.
func (c *Cache) OccupiedBytes() uint64 { return c.store.OccupiedBytes() }

// NObj returns the current resident object count.
func (c *Cache) NObj() uint64 { return uint64(c.store.NObj()) }

// NReq returns the monotonic request counter.
func (c *Cache) NReq() uint64 { return c.store.NReq() }

// NHit returns the cumulative hit count.
func (c *Cache) NHit() uint64 { return c.nHit }

// Free releases policy state (and, for the plugin policy, drops the
// module handle after the plugin's free hook has run).
func (c *Cache) Free() {
	c.pol.Free()
}

func (c *Cache) fatal(msg string, err error) {
	c.logger.Fatal(msg, err)
	panic(fmt.Sprintf("cachecore: %s: %v", msg, err))
}
