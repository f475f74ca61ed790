package store_test

import (
	"testing"

	"github.com/go-cachesim/cachesim/request"
	"github.com/go-cachesim/cachesim/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// StoreTestSuite mirrors the teacher's per-policy suite layout, applied to
// the shared Object Store instead of one concrete engine.
type StoreTestSuite struct {
	suite.Suite
	s *store.ObjectStore
}

func (suite *StoreTestSuite) SetupTest() {
	suite.s = store.New(store.CommonParams{CapacityBytes: 10})
}

func (suite *StoreTestSuite) TestInsertFindByteConservation() {
	suite.s.Insert(request.Request{ObjID: 1, Size: 3, Time: 0})
	suite.s.Insert(request.Request{ObjID: 2, Size: 4, Time: 1})

	assert.EqualValues(suite.T(), 7, suite.s.OccupiedBytes())
	assert.Equal(suite.T(), 2, suite.s.NObj())

	rec, ok := suite.s.Find(request.Request{ObjID: 1, Time: 2}, true)
	assert.True(suite.T(), ok)
	assert.EqualValues(suite.T(), 3, rec.Size)
}

func (suite *StoreTestSuite) TestFindMissIncrementsRequestCounter() {
	before := suite.s.NReq()
	_, ok := suite.s.Find(request.Request{ObjID: 99, Time: 0}, true)
	assert.False(suite.T(), ok)
	assert.Equal(suite.T(), before+1, suite.s.NReq())
}

func (suite *StoreTestSuite) TestRemoveIdempotence() {
	suite.s.Insert(request.Request{ObjID: 1, Size: 1, Time: 0})

	first := suite.s.Remove(1)
	second := suite.s.Remove(1)

	assert.True(suite.T(), first)
	assert.False(suite.T(), second)
	assert.EqualValues(suite.T(), 0, suite.s.OccupiedBytes())
}

func (suite *StoreTestSuite) TestTTLExpiry() {
	s := store.New(store.CommonParams{CapacityBytes: 10, DefaultTTL: 5})
	s.Insert(request.Request{ObjID: 1, Size: 1, Time: 0})

	_, hit := s.Find(request.Request{ObjID: 1, Time: 4}, true)
	assert.True(suite.T(), hit)

	_, hit = s.Find(request.Request{ObjID: 1, Time: 5}, true)
	assert.False(suite.T(), hit)
	assert.Equal(suite.T(), 0, s.NObj())
}

func (suite *StoreTestSuite) TestDefaultCanInsert() {
	assert.True(suite.T(), suite.s.DefaultCanInsert(request.Request{ObjID: 1, Size: 5}))
	assert.False(suite.T(), suite.s.DefaultCanInsert(request.Request{ObjID: 1, Size: 11}))
	assert.False(suite.T(), suite.s.DefaultCanInsert(request.Request{ObjID: 1, Size: 0}))
}

func (suite *StoreTestSuite) TestAdmitsOverride() {
	suite.s.CanInsert = func(req request.Request, s *store.ObjectStore) bool {
		return req.Size <= 2
	}
	assert.True(suite.T(), suite.s.Admits(request.Request{ObjID: 1, Size: 2}))
	assert.False(suite.T(), suite.s.Admits(request.Request{ObjID: 1, Size: 3}))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
