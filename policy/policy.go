// Package policy defines the shared eviction-policy contract, the error
// taxonomy every policy reports through, and a constructor registry the
// Cache Core uses to instantiate a named policy without a compile-time
// switch (generalizing the teacher's cache.New dispatch so a
// dynamically-loaded plugin policy can register itself too).
package policy

import (
	"errors"

	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
)

// ErrNotSupported is returned by ToEvict when a policy cannot peek the
// next victim without side effects.
var ErrNotSupported = errors.New("policy: operation not supported")

// Policy is the contract every concrete eviction policy implements.
type Policy interface {
	// Init constructs policy state against the shared Object Store,
	// parsing the raw policy_params string (key=value,key=value).
	Init(s *store.ObjectStore, common store.CommonParams, params string) error

	// Free releases policy state, including any nested policies, heap
	// storage, or native handles (e.g. a loaded plugin module).
	Free()

	Find(req request.Request, update bool) (*store.Record, bool)

	// Insert admits req. It may reject oversized objects by returning
	// (nil, false) instead of failing silently.
	Insert(req request.Request) (*store.Record, bool)

	// Evict must make at least one object non-resident.
	Evict(req request.Request) error

	// ToEvict peeks the next victim without removing it. Policies that
	// cannot support this return ErrNotSupported.
	ToEvict(req request.Request) (*store.Record, bool, error)

	Remove(objID uint64) bool

	// CanInsert optionally overrides store.ObjectStore.DefaultCanInsert.
	CanInsert(req request.Request) bool

	// Name identifies the policy, e.g. for metrics labeling.
	Name() string
}

// Constructor builds a fresh, uninitialized Policy instance.
type Constructor func() Policy

var registry = make(map[string]Constructor)

// Register adds a named policy constructor to the registry. Intended to
// be called from an init() in each policy subpackage.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New looks up name in the registry and constructs a fresh Policy.
func New(name string) (Policy, bool) {
	ctor, ok := registry[name]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Registered reports whether name has a registered constructor.
func Registered(name string) bool {
	_, ok := registry[name]
	return ok
}
