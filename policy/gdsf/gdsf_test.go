package gdsf_test

import (
	"testing"

	"github.com/go-cachesim/cachesim/cachecore"
	_ "github.com/go-cachesim/cachesim/policy/gdsf"
	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type GDSFTestSuite struct {
	suite.Suite
	c *cachecore.Cache
}

func (suite *GDSFTestSuite) SetupTest() {
	c, err := cachecore.New("gdsf", store.CommonParams{CapacityBytes: 3}, "")
	suite.Require().NoError(err)
	suite.c = c
}

func has(c *cachecore.Cache, objID uint64) bool {
	_, ok := c.Find(request.Request{ObjID: objID}, false)
	return ok
}

// S2 from spec.md §8: trace A B C A A D E, capacity 3. A is re-requested
// twice, accumulating freq 3, so its priority stays far above the
// admission floor and it survives the whole trace.
func (suite *GDSFTestSuite) TestS2Scenario() {
	trace := []uint64{1, 2, 3, 1, 1, 4, 5} // A B C A A D E
	for i, id := range trace {
		suite.c.Get(request.Request{ObjID: id, Size: 1, Time: int64(i)})
	}

	assert.True(suite.T(), has(suite.c, 1)) // A survives
	assert.LessOrEqual(suite.T(), suite.c.OccupiedBytes(), uint64(3))
}

// A longer trace with repeated hits on A and a run of cold misses keeps
// occupancy within capacity across many evictions.
func (suite *GDSFTestSuite) TestLongTraceStaysWithinCapacity() {
	trace := []uint64{1, 2, 3, 1, 1, 4, 5, 6, 7, 8}
	for i, id := range trace {
		suite.c.Get(request.Request{ObjID: id, Size: 1, Time: int64(i)})
	}
	assert.LessOrEqual(suite.T(), suite.c.OccupiedBytes(), uint64(3))
}

func (suite *GDSFTestSuite) TestByteConservation() {
	for i := uint64(1); i <= 10; i++ {
		suite.c.Get(request.Request{ObjID: i, Size: 1, Time: int64(i)})
	}
	assert.LessOrEqual(suite.T(), suite.c.OccupiedBytes(), uint64(3))
	assert.LessOrEqual(suite.T(), suite.c.NObj(), uint64(3))
}

func (suite *GDSFTestSuite) TestRemoveIdempotence() {
	suite.c.Get(request.Request{ObjID: 1, Size: 1, Time: 0})
	assert.True(suite.T(), suite.c.Remove(1))
	assert.False(suite.T(), suite.c.Remove(1))
}

func TestGDSFTestSuite(t *testing.T) {
	suite.Run(t, new(GDSFTestSuite))
}
