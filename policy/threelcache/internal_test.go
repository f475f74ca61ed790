package threelcache

import (
	"container/heap"
	"testing"

	"github.com/go-cachesim/cachesim/policy"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// White-box tests against this package's unexported types: the
// swap-remove key-map fix-up lives partly in inCacheTable.removeSwap and
// partly in ThreeLCache's own keyMap bookkeeping, the ghost bound lives
// in outCacheTable plus Init's sizing formula, and predHeap's lazy
// stale-entry detection lives in selectVictimByScore's pop loop — none
// of which is reachable from the exported Policy surface alone.

// Removing the circular list's head forces the dense array's last slot
// to swap into the freed index; removeSwap must report that relocation
// so the caller's key-map stays in sync with the moved record.
func TestInCacheTableRemoveSwapRelocatesLastRecord(t *testing.T) {
	tbl := newInCacheTable()
	idx1 := tbl.pushTail(meta{key: 1})
	tbl.pushTail(meta{key: 2})
	tbl.pushTail(meta{key: 3})
	tbl.pushTail(meta{key: 4})

	removed, movedKey, movedTo, moved := tbl.removeSwap(idx1)

	assert.Equal(t, uint64(1), removed.key)
	assert.True(t, moved)
	assert.Equal(t, uint64(4), movedKey)
	assert.Equal(t, idx1, movedTo)
	assert.Equal(t, uint64(4), tbl.rows[idx1].key)

	seen := map[uint64]bool{}
	cur := tbl.head
	for i := 0; i < tbl.len(); i++ {
		seen[tbl.rows[cur].key] = true
		cur = tbl.rows[cur].next
	}
	assert.Len(t, seen, 3)
	assert.True(t, seen[2])
	assert.True(t, seen[3])
	assert.True(t, seen[4])
	assert.Equal(t, tbl.head, cur, "circular list must close back on itself")
}

// ThreeLCache.demote drives the same removeSwap path through a full
// Evict/Find cycle; after relocating a live record mid-list, the
// record must still resolve through keyMap/Find rather than silently
// pointing at a stale index.
func TestDemoteKeepsKeyMapConsistentAfterRelocation(t *testing.T) {
	s := store.New(store.CommonParams{CapacityBytes: 100})
	p := &ThreeLCache{}
	require.NoError(t, p.Init(s, store.CommonParams{CapacityBytes: 100}, "sample-rate=1000000"))

	for _, id := range []uint64{1, 2, 3, 4} {
		p.Insert(request.Request{ObjID: id, Size: 1, Time: 0})
	}

	// Evict the head (object 1); object 4, the dense array's last row,
	// must be relocated into slot 0 and its key-map entry updated.
	require.NoError(t, p.Evict(request.Request{ObjID: 99, Size: 1, Time: 1}))

	loc, ok := p.keyMap[4]
	require.True(t, ok)
	assert.Equal(t, listInCache, loc.list)
	assert.Equal(t, uint64(4), p.inCache.get(loc.pos).key)

	rec, found := p.Find(request.Request{ObjID: 4, Time: 2}, true)
	assert.True(t, found)
	assert.Equal(t, uint64(4), rec.ObjID)
}

// The ghost queue evicts its own oldest entry once pushBack would put it
// over capacity, independent of anything in_cache is doing.
func TestOutCacheTableEnforcesCapacityBound(t *testing.T) {
	tbl := newOutCacheTable(2)

	_, hadEviction := tbl.pushBack(meta{key: 1})
	assert.False(t, hadEviction)
	_, hadEviction = tbl.pushBack(meta{key: 2})
	assert.False(t, hadEviction)

	evicted, hadEviction := tbl.pushBack(meta{key: 3})
	assert.True(t, hadEviction)
	assert.Equal(t, uint64(1), evicted.key)

	assert.Equal(t, 2, tbl.len())
	assert.True(t, tbl.has(2))
	assert.True(t, tbl.has(3))
	assert.False(t, tbl.has(1))
}

// max_out_cache_size is sized from an object-count estimate
// (capacity_bytes / min-obj-size), not raw byte capacity.
func TestMaxOutCacheSizeEstimatedFromMinObjSize(t *testing.T) {
	p := &ThreeLCache{}
	require.NoError(t, p.Init(
		store.New(store.CommonParams{CapacityBytes: 100}),
		store.CommonParams{CapacityBytes: 100},
		"min-obj-size=10",
	))
	// estInCacheObjs = 100/10 = 10; hsw = 2, so bound = 10*(2-1)+2 = 12.
	assert.Equal(t, 12, p.outCache.capacity)
}

func TestMaxOutCacheSizeDefaultsToByteBoundWhenMinObjSizeUnset(t *testing.T) {
	p := &ThreeLCache{}
	require.NoError(t, p.Init(
		store.New(store.CommonParams{CapacityBytes: 100}),
		store.CommonParams{CapacityBytes: 100},
		"",
	))
	assert.Equal(t, 100*(historySpanWindow-1)+2, p.outCache.capacity)
}

func TestMinObjSizeMustBePositive(t *testing.T) {
	p := &ThreeLCache{}
	err := p.Init(
		store.New(store.CommonParams{CapacityBytes: 100}),
		store.CommonParams{CapacityBytes: 100},
		"min-obj-size=0",
	)
	require.Error(t, err)
	assert.IsType(t, &policy.ConfigError{}, err)
}

// selectVictimByScore's pop loop must skip a stale predHeap entry (one
// whose reuseTime no longer matches predMap's current value for that
// key, because a later draw re-scored the same object) rather than
// evicting on outdated information.
func TestStaleHeapEntrySkippedForFreshScore(t *testing.T) {
	s := store.New(store.CommonParams{CapacityBytes: 100})
	p := &ThreeLCache{}
	require.NoError(t, p.Init(s, store.CommonParams{CapacityBytes: 100}, "sample-rate=1000000"))

	p.Insert(request.Request{ObjID: 10, Size: 1, Time: 0})
	p.Insert(request.Request{ObjID: 20, Size: 1, Time: 1})

	// Object 10 was scored twice: an older entry (reuseTime 15) still
	// sitting in the heap, and the current one predMap actually reflects
	// (reuseTime 9). The stale entry sorts first in this max-heap.
	heap.Push(&p.predHeap, &predEntry{reuseTime: 15.0, key: 10})
	heap.Push(&p.predHeap, &predEntry{reuseTime: 9.0, key: 10})
	p.predMap[10] = 9.0

	pos, ok := p.selectVictimByScore()
	require.True(t, ok)
	assert.Equal(t, p.keyMap[10].pos, pos)
	_, stillLive := p.predMap[10]
	assert.False(t, stillLive, "the matched entry must be consumed from predMap")
}
