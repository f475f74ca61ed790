package gbdt_test

import (
	"testing"

	"github.com/go-cachesim/cachesim/policy/threelcache/gbdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type GBDTTestSuite struct {
	suite.Suite
}

// TestFitsLinearSignal checks the ensemble can reduce training error on
// an easy, perfectly-separable single-feature signal; it is not expected
// to be exact, only to clearly beat predicting the mean.
func (suite *GBDTTestSuite) TestFitsLinearSignal() {
	var rows [][]float64
	var labels []float64
	for i := 0; i < 200; i++ {
		x := float64(i)
		rows = append(rows, []float64{x, 0, 0, 0, 0, 0})
		labels = append(labels, x*2)
	}

	m := gbdt.New(gbdt.Params{NumLeaves: 16, FeatureFraction: 1, BaggingFraction: 1, BaggingFreq: 1, LearningRate: 0.3})
	err := m.Train(rows, labels, 30)
	suite.Require().NoError(err)

	preds := m.Predict(rows)

	meanErr := sumSquaredError(labels, meanPredictions(labels))
	modelErr := sumSquaredError(labels, preds)
	assert.Less(suite.T(), modelErr, meanErr)
}

func (suite *GBDTTestSuite) TestTrainRejectsMismatchedLengths() {
	m := gbdt.New(gbdt.DefaultParams())
	err := m.Train([][]float64{{1, 2}}, []float64{1, 2}, 5)
	assert.Error(suite.T(), err)
}

func (suite *GBDTTestSuite) TestTrainRejectsEmptyInput() {
	m := gbdt.New(gbdt.DefaultParams())
	err := m.Train(nil, nil, 5)
	assert.Error(suite.T(), err)
}

func (suite *GBDTTestSuite) TestPredictBeforeTrainReturnsBaseScore() {
	m := gbdt.New(gbdt.DefaultParams())
	preds := m.Predict([][]float64{{1, 2, 3, 4, 5, 6}})
	assert.Equal(suite.T(), []float64{0}, preds)
}

func sumSquaredError(labels, preds []float64) float64 {
	var sum float64
	for i := range labels {
		d := labels[i] - preds[i]
		sum += d * d
	}
	return sum
}

func meanPredictions(labels []float64) []float64 {
	var total float64
	for _, l := range labels {
		total += l
	}
	mean := total / float64(len(labels))
	out := make([]float64, len(labels))
	for i := range out {
		out[i] = mean
	}
	return out
}

func TestGBDTTestSuite(t *testing.T) {
	suite.Run(t, new(GBDTTestSuite))
}
