// Package gbdt is a small, dependency-free gradient-boosted regression
// tree learner: exactly the surface 3L-Cache needs (train on a dense
// feature matrix, predict a score per row) and nothing else. No GBDT
// binding exists anywhere in the example pack (see DESIGN.md), so this
// is a hand-rolled stdlib implementation, grounded on the teacher's
// general "small dependency-free statistical model" idiom as seen in
// the pack's other hand-rolled predictive model
// (scttfrdmn-objectfs/internal/cache/predictive.go).
package gbdt

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Params are the boosting hyperparameters 3L-Cache configures statically
// (spec §4.5.8): num_leaves=32, feature_fraction=0.8, bagging_freq=5,
// bagging_fraction=0.8, learning_rate=0.1.
type Params struct {
	NumLeaves       int
	FeatureFraction float64
	BaggingFreq     int
	BaggingFraction float64
	LearningRate    float64
}

// DefaultParams matches spec §4.5.8's static training configuration.
func DefaultParams() Params {
	return Params{
		NumLeaves:       32,
		FeatureFraction: 0.8,
		BaggingFreq:     5,
		BaggingFraction: 0.8,
		LearningRate:    0.1,
	}
}

type node struct {
	leaf       bool
	value      float64
	featureIdx int
	threshold  float64
	left       *node
	right      *node
}

func (n *node) predict(row []float64) float64 {
	for !n.leaf {
		if row[n.featureIdx] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

type tree struct {
	root *node
}

// Model is a boosted ensemble of shallow regression trees predicting a
// single score (3L-Cache uses it as log-reuse-distance, spec §4.5.2).
type Model struct {
	params    Params
	baseScore float64
	trees     []*tree
	rng       uint64
}

// New constructs an untrained model. Zero-valued fields in params fall
// back to DefaultParams' values.
func New(params Params) *Model {
	d := DefaultParams()
	if params.NumLeaves > 0 {
		d.NumLeaves = params.NumLeaves
	}
	if params.FeatureFraction > 0 {
		d.FeatureFraction = params.FeatureFraction
	}
	if params.BaggingFreq > 0 {
		d.BaggingFreq = params.BaggingFreq
	}
	if params.BaggingFraction > 0 {
		d.BaggingFraction = params.BaggingFraction
	}
	if params.LearningRate > 0 {
		d.LearningRate = params.LearningRate
	}
	return &Model{params: d, rng: 0x9e3779b97f4a7c15}
}

// next is a xorshift64 step, used instead of math/rand so training is
// reproducible from one call to the next without touching global state.
func (m *Model) next() uint64 {
	m.rng ^= m.rng << 13
	m.rng ^= m.rng >> 7
	m.rng ^= m.rng << 17
	return m.rng
}

// Train fits iterations boosting rounds of residual-correcting trees
// against rows/labels. rows must be rectangular (every row the same
// length) and non-empty.
func (m *Model) Train(rows [][]float64, labels []float64, iterations int) error {
	if len(rows) == 0 {
		return errors.New("gbdt: no training rows")
	}
	if len(rows) != len(labels) {
		return fmt.Errorf("gbdt: %d rows but %d labels", len(rows), len(labels))
	}

	n := len(rows)
	nFeature := len(rows[0])
	preds := make([]float64, n)
	m.baseScore = mean(labels)
	for i := range preds {
		preds[i] = m.baseScore
	}

	maxDepth := depthForLeaves(m.params.NumLeaves)
	m.trees = make([]*tree, 0, iterations)

	for iter := 0; iter < iterations; iter++ {
		residuals := make([]float64, n)
		for i := range residuals {
			residuals[i] = labels[i] - preds[i]
		}

		rowIdx := m.sampleRows(n, iter)
		featIdx := m.sampleFeatures(nFeature)

		t := &tree{root: m.buildNode(rows, residuals, rowIdx, featIdx, maxDepth)}
		m.trees = append(m.trees, t)

		for i := 0; i < n; i++ {
			preds[i] += m.params.LearningRate * t.root.predict(rows[i])
		}
	}
	return nil
}

// Predict scores each row as baseScore plus the shrinkage-weighted sum
// of every tree's leaf value.
func (m *Model) Predict(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		score := m.baseScore
		for _, t := range m.trees {
			score += m.params.LearningRate * t.root.predict(row)
		}
		out[i] = score
	}
	return out
}

func (m *Model) sampleRows(n, iter int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if m.params.BaggingFreq <= 0 || iter%m.params.BaggingFreq != 0 {
		return idx
	}
	keep := int(float64(n) * m.params.BaggingFraction)
	if keep < 1 {
		keep = 1
	}
	m.shuffle(idx)
	return idx[:keep]
}

func (m *Model) sampleFeatures(nFeature int) []int {
	idx := make([]int, nFeature)
	for i := range idx {
		idx[i] = i
	}
	keep := int(float64(nFeature) * m.params.FeatureFraction)
	if keep < 1 {
		keep = 1
	}
	if keep >= nFeature {
		return idx
	}
	m.shuffle(idx)
	return idx[:keep]
}

func (m *Model) shuffle(idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := int(m.next() % uint64(i+1))
		idx[i], idx[j] = idx[j], idx[i]
	}
}

// buildNode grows one regression tree depth-first, to at most depth
// levels of splits, choosing at each node the (feature, threshold) that most reduces the
// sum of squared residuals across the two children.
func (m *Model) buildNode(rows [][]float64, residuals []float64, rowIdx, featIdx []int, depth int) *node {
	if depth == 0 || len(rowIdx) < 2 {
		return &node{leaf: true, value: meanAt(residuals, rowIdx)}
	}

	parentSSE := varianceAt(residuals, rowIdx) * float64(len(rowIdx))

	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	var bestLeft, bestRight []int

	for _, f := range featIdx {
		for _, thr := range candidateThresholds(rows, rowIdx, f) {
			var left, right []int
			for _, r := range rowIdx {
				if rows[r][f] <= thr {
					left = append(left, r)
				} else {
					right = append(right, r)
				}
			}
			if len(left) == 0 || len(right) == 0 {
				continue
			}
			childSSE := varianceAt(residuals, left)*float64(len(left)) +
				varianceAt(residuals, right)*float64(len(right))
			gain := parentSSE - childSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = thr
				bestLeft = left
				bestRight = right
			}
		}
	}

	if bestFeature == -1 {
		return &node{leaf: true, value: meanAt(residuals, rowIdx)}
	}

	return &node{
		featureIdx: bestFeature,
		threshold:  bestThreshold,
		left:       m.buildNode(rows, residuals, bestLeft, featIdx, depth-1),
		right:      m.buildNode(rows, residuals, bestRight, featIdx, depth-1),
	}
}

// candidateThresholds returns the midpoints between consecutive distinct
// sorted values of feature f among rowIdx, the usual CART split grid.
func candidateThresholds(rows [][]float64, rowIdx []int, f int) []float64 {
	vals := make([]float64, len(rowIdx))
	for i, r := range rowIdx {
		vals[i] = rows[r][f]
	}
	sort.Float64s(vals)

	thresholds := make([]float64, 0, len(vals))
	for i := 0; i+1 < len(vals); i++ {
		if vals[i] != vals[i+1] {
			thresholds = append(thresholds, (vals[i]+vals[i+1])/2)
		}
	}
	return thresholds
}

func meanAt(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += values[i]
	}
	return sum / float64(len(idx))
}

func varianceAt(values []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	m := meanAt(values, idx)
	var sum float64
	for _, i := range idx {
		d := values[i] - m
		sum += d * d
	}
	return sum / float64(len(idx))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func depthForLeaves(numLeaves int) int {
	if numLeaves < 2 {
		return 1
	}
	depth := int(math.Ceil(math.Log2(float64(numLeaves))))
	if depth < 1 {
		depth = 1
	}
	return depth
}
