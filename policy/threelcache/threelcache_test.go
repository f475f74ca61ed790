package threelcache_test

import (
	"testing"

	"github.com/go-cachesim/cachesim/cachecore"
	_ "github.com/go-cachesim/cachesim/policy/threelcache"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ThreeLCacheTestSuite struct {
	suite.Suite
	c *cachecore.Cache
}

func (suite *ThreeLCacheTestSuite) SetupTest() {
	c, err := cachecore.New("threelcache", store.CommonParams{CapacityBytes: 3}, "sample-rate=1000000")
	suite.Require().NoError(err)
	suite.c = c
}

func has(c *cachecore.Cache, objID uint64) bool {
	_, ok := c.Find(request.Request{ObjID: objID}, false)
	return ok
}

// S5: with no trained model yet (the training buffer is nowhere near its
// 65536-row batch size in these short traces), eviction falls back to the
// in_cache head, exactly the FIFO baseline, as long as nothing is
// re-requested to move it off the head.
func (suite *ThreeLCacheTestSuite) TestNoModelFallbackIsFIFOOrder() {
	for i, id := range []uint64{1, 2, 3, 4, 5} {
		suite.c.Get(request.Request{ObjID: id, Size: 1, Time: int64(i)})
	}

	assert.False(suite.T(), has(suite.c, 1))
	assert.False(suite.T(), has(suite.c, 2))
	assert.True(suite.T(), has(suite.c, 3))
	assert.True(suite.T(), has(suite.c, 4))
	assert.True(suite.T(), has(suite.c, 5))
}

func (suite *ThreeLCacheTestSuite) TestByteConservation() {
	for i := uint64(1); i <= 50; i++ {
		suite.c.Get(request.Request{ObjID: i, Size: 1, Time: int64(i)})
	}
	assert.LessOrEqual(suite.T(), suite.c.OccupiedBytes(), uint64(3))
	assert.LessOrEqual(suite.T(), suite.c.NObj(), uint64(3))
}

// An object evicted into out_cache and re-requested before falling off
// the ghost queue is re-admitted (a ghost hit), not treated as a cold
// miss crashing on missing Meta state.
func (suite *ThreeLCacheTestSuite) TestGhostHitReadmitsObject() {
	trace := []uint64{1, 2, 3, 4, 1} // 1 evicted by 4, then re-requested
	for i, id := range trace {
		suite.c.Get(request.Request{ObjID: id, Size: 1, Time: int64(i)})
	}
	assert.True(suite.T(), has(suite.c, 1))
	assert.LessOrEqual(suite.T(), suite.c.OccupiedBytes(), uint64(3))
}

func (suite *ThreeLCacheTestSuite) TestRemoveIdempotence() {
	suite.c.Get(request.Request{ObjID: 1, Size: 1, Time: 0})
	assert.True(suite.T(), suite.c.Remove(1))
	assert.False(suite.T(), suite.c.Remove(1))
}

// A ghost-queue entry can be explicitly removed too; it reports not
// resident (spec §3: out_cache objects are not "in the cache") even
// though its bookkeeping is cleaned up.
func (suite *ThreeLCacheTestSuite) TestRemoveGhostEntryReportsNotResident() {
	trace := []uint64{1, 2, 3, 4} // 1 evicted by 4
	for i, id := range trace {
		suite.c.Get(request.Request{ObjID: id, Size: 1, Time: int64(i)})
	}
	assert.False(suite.T(), suite.c.Remove(1))
}

func (suite *ThreeLCacheTestSuite) TestOversizedObjectRejected() {
	ok := suite.c.Get(request.Request{ObjID: 1, Size: 10, Time: 0})
	assert.False(suite.T(), ok)
	assert.Equal(suite.T(), uint64(0), suite.c.OccupiedBytes())
}

func TestThreeLCacheTestSuite(t *testing.T) {
	suite.Run(t, new(ThreeLCacheTestSuite))
}
