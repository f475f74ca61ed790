package threelcache

// csrBuilder accumulates training rows in CSR (compressed sparse row)
// form, per spec §4.5.1: indptr marks each row's slice into
// indices/data, and labels runs parallel to the row count. Feature
// values that are exactly zero (an object's unfilled distance slots, or
// a freshly-sampled object with no freq yet) are omitted, the usual CSR
// sparsity saving.
type csrBuilder struct {
	IndPtr  []int32
	Indices []int32
	Data    []float64
	Labels  []float64
}

func newCSRBuilder() *csrBuilder {
	return &csrBuilder{IndPtr: []int32{0}}
}

func (b *csrBuilder) addRow(features [nFeature]float64, label float64) {
	for i, v := range features {
		if v == 0 {
			continue
		}
		b.Indices = append(b.Indices, int32(i))
		b.Data = append(b.Data, v)
	}
	b.IndPtr = append(b.IndPtr, int32(len(b.Indices)))
	b.Labels = append(b.Labels, label)
}

func (b *csrBuilder) nRows() int { return len(b.Labels) }

func (b *csrBuilder) reset() {
	b.IndPtr = b.IndPtr[:1]
	b.Indices = b.Indices[:0]
	b.Data = b.Data[:0]
	b.Labels = b.Labels[:0]
}

// denseRows expands the CSR buffer back into the dense [][]float64
// shape gbdt.Model trains on; the learner's surface is dense because the
// feature count here is small and fixed (spec §4.5.8 calls it "a minimal
// surface: create a sparse dataset from CSR, train, predict, free" — the
// sparse-to-dense expansion happens at that boundary).
func (b *csrBuilder) denseRows() [][]float64 {
	rows := make([][]float64, b.nRows())
	for r := 0; r < b.nRows(); r++ {
		row := make([]float64, nFeature)
		start, end := b.IndPtr[r], b.IndPtr[r+1]
		for i := start; i < end; i++ {
			row[b.Indices[i]] = b.Data[i]
		}
		rows[r] = row
	}
	return rows
}

// extractFeatures builds the spec §4.5.2 feature vector for m as of
// logical time now: age, up to 3 past inter-access distances
// newest-first, size, freq.
func extractFeatures(m *meta, now int64) [nFeature]float64 {
	var feat [nFeature]float64
	feat[0] = float64(now - m.lastAccess)

	dists := make([]float64, maxPastDistances)
	m.extra.features(dists)
	copy(feat[1:1+maxPastDistances], dists)

	feat[1+maxPastDistances] = float64(m.size)
	feat[2+maxPastDistances] = float64(m.freq)
	return feat
}
