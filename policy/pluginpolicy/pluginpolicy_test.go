package pluginpolicy

import (
	"container/list"
	"testing"

	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// Go plugins require a separately built .so, and this exercise never runs
// the Go toolchain, so there is no way to produce one. These tests
// instead wire an in-process fake satisfying the same hook-function-type
// shape directly onto PluginCache's unexported fields (this file is in
// package pluginpolicy, not pluginpolicy_test, for exactly that access),
// exercising the hook-dispatch logic in Find/Insert/Evict/Free —
// not plugin.Open/Lookup themselves, which have no interesting logic of
// their own beyond the symbol-name/type-assertion wrapped in lookupHook.

// lruFakePlugin is an LRU-behavior plugin implemented in Go directly
// rather than loaded from a .so: an order list plus a map of elements,
// used as the PolicyData every hook receives back.
type lruFakePlugin struct {
	order *list.List
	elems map[uint64]*list.Element
	freed bool
}

func newLRUFakePlugin() *lruFakePlugin {
	return &lruFakePlugin{order: list.New(), elems: make(map[uint64]*list.Element)}
}

func (f *lruFakePlugin) touch(objID uint64) {
	if elem, ok := f.elems[objID]; ok {
		f.order.MoveToBack(elem)
		return
	}
	f.elems[objID] = f.order.PushBack(objID)
}

func wireLRUHooks(s *store.ObjectStore) (*PluginCache, *lruFakePlugin) {
	fake := newLRUFakePlugin()
	p := &PluginCache{
		store: s,
		hit: func(data PolicyData, req Request) {
			data.(*lruFakePlugin).touch(req.ObjID) //nolint:forcetypeassert
		},
		miss: func(data PolicyData, req Request) {
			data.(*lruFakePlugin).touch(req.ObjID) //nolint:forcetypeassert
		},
		eviction: func(data PolicyData, _ Request) uint64 {
			f := data.(*lruFakePlugin) //nolint:forcetypeassert
			front := f.order.Front()
			victim := front.Value.(uint64) //nolint:forcetypeassert
			f.order.Remove(front)
			delete(f.elems, victim)
			return victim
		},
		remove: func(data PolicyData, objID uint64) {
			f := data.(*lruFakePlugin) //nolint:forcetypeassert
			if elem, ok := f.elems[objID]; ok {
				f.order.Remove(elem)
				delete(f.elems, objID)
			}
		},
		free: func(data PolicyData) {
			data.(*lruFakePlugin).freed = true //nolint:forcetypeassert
		},
	}
	p.data = fake
	return p, fake
}

// driveGet replicates cachecore.Cache.Get's find/insert/evict loop
// directly against the policy, since a real cachecore.New requires an
// actual plugin-path and loadable module.
func driveGet(p *PluginCache, s *store.ObjectStore, req request.Request) bool {
	if _, ok := p.Find(req, true); ok {
		return true
	}
	if p.CanInsert(req) {
		p.Insert(req)
		for s.OccupiedBytes() > s.Capacity() {
			if err := p.Evict(req); err != nil {
				panic(err)
			}
		}
	}
	return false
}

type PluginPolicyTestSuite struct {
	suite.Suite
}

func (suite *PluginPolicyTestSuite) TestMissingPluginPathIsFatal() {
	p := &PluginCache{}
	err := p.Init(store.New(store.CommonParams{CapacityBytes: 3}), store.CommonParams{CapacityBytes: 3}, "")
	suite.Require().Error(err)
	assert.IsType(suite.T(), &policy.PluginError{}, err)
	assert.Contains(suite.T(), err.Error(), "plugin-path")
}

// S6: with an LRU-behavior plugin, trace A B C A D produces the same
// residency an LRU reference would: the hit on A at position 3 promotes
// it, so D's arrival evicts B, leaving {A, C, D}.
func (suite *PluginPolicyTestSuite) TestLRUBehaviorParity() {
	s := store.New(store.CommonParams{CapacityBytes: 3})
	p, _ := wireLRUHooks(s)

	trace := []uint64{1, 2, 3, 1, 4} // A B C A D
	var hits int
	for i, id := range trace {
		if driveGet(p, s, request.Request{ObjID: id, Size: 1, Time: int64(i)}) {
			hits++
		}
	}

	assert.Equal(suite.T(), 1, hits)
	_, hasA := s.Peek(1)
	_, hasB := s.Peek(2)
	_, hasC := s.Peek(3)
	_, hasD := s.Peek(4)
	assert.True(suite.T(), hasA)
	assert.False(suite.T(), hasB)
	assert.True(suite.T(), hasC)
	assert.True(suite.T(), hasD)
}

func (suite *PluginPolicyTestSuite) TestEvictionHookNonResidentVictimIsFatal() {
	s := store.New(store.CommonParams{CapacityBytes: 3})
	p := &PluginCache{
		store: s,
		eviction: func(PolicyData, Request) uint64 {
			return 999 // never inserted
		},
	}

	err := p.Evict(request.Request{ObjID: 1, Size: 1, Time: 0})
	suite.Require().Error(err)
	assert.IsType(suite.T(), &policy.InvariantViolation{}, err)
}

func (suite *PluginPolicyTestSuite) TestFreeCallsHookBeforeDroppingHandle() {
	s := store.New(store.CommonParams{CapacityBytes: 3})
	p, fake := wireLRUHooks(s)

	p.Free()
	assert.True(suite.T(), fake.freed)
	assert.Nil(suite.T(), p.data)
	assert.Nil(suite.T(), p.handle)
}

func TestPluginPolicyTestSuite(t *testing.T) {
	suite.Run(t, new(PluginPolicyTestSuite))
}
