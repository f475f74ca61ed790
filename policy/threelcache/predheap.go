package threelcache

import "container/heap"

// predEntry is one pending prediction: key's predicted reuse time, per
// spec §4.5.6. predHeap is a max-heap so the eviction victim (largest
// predicted reuse time) is always the root.
type predEntry struct {
	reuseTime float64
	key       uint64
}

type predHeap []*predEntry

func (h predHeap) Len() int            { return len(h) }
func (h predHeap) Less(i, j int) bool  { return h[i].reuseTime > h[j].reuseTime }
func (h predHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *predHeap) Push(x any)         { *h = append(*h, x.(*predEntry)) } //nolint:forcetypeassert
func (h *predHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

var _ = heap.Interface(&predHeap{})
