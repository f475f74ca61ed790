package threelcache

import "container/list"

// inCacheTable is the dense array of resident Meta records threaded by
// an intrusive circular doubly-linked list (prev/next indices), per spec
// §4.5.1. Keeping records contiguous lets eviction swap the victim with
// the last slot instead of leaving a hole, at the cost of having to fix
// up the moved record's neighbors and the key-map entry pointing at it.
type inCacheTable struct {
	rows       []meta
	head, tail int32 // -1 when empty
}

func newInCacheTable() *inCacheTable {
	return &inCacheTable{head: -1, tail: -1}
}

func (t *inCacheTable) len() int { return len(t.rows) }

func (t *inCacheTable) get(idx int32) *meta { return &t.rows[idx] }

// pushTail appends m as a new resident record at the tail of the
// circular list, returning its dense-array index.
func (t *inCacheTable) pushTail(m meta) int32 {
	idx := int32(len(t.rows))
	if t.head == -1 {
		m.prev, m.next = idx, idx
		t.rows = append(t.rows, m)
		t.head, t.tail = idx, idx
		return idx
	}
	m.prev = t.tail
	m.next = t.head
	t.rows = append(t.rows, m)
	t.rows[t.tail].next = idx
	t.rows[t.head].prev = idx
	t.tail = idx
	return idx
}

// moveToTail re-requests idx: detach and reattach at the tail, the O(1)
// promotion step on every in_cache hit (spec §4.5.4).
func (t *inCacheTable) moveToTail(idx int32) {
	if idx == t.tail {
		return
	}
	node := &t.rows[idx]
	prevI, nextI := node.prev, node.next
	t.rows[prevI].next = nextI
	t.rows[nextI].prev = prevI
	if t.head == idx {
		t.head = nextI
	}

	node.prev = t.tail
	node.next = t.head
	t.rows[t.tail].next = idx
	t.rows[t.head].prev = idx
	t.tail = idx
}

// removeSwap detaches idx from the circular list and removes it from
// the dense array via swap-with-last (spec §4.5.7). It returns the
// removed record and, if a different record had to be relocated to fill
// the gap, that record's key and its new index so the caller can fix up
// the key-map.
func (t *inCacheTable) removeSwap(idx int32) (removed meta, movedKey uint64, movedTo int32, moved bool) {
	victim := t.rows[idx]

	if victim.prev == idx { // sole remaining node: self-loop
		t.head, t.tail = -1, -1
	} else {
		t.rows[victim.prev].next = victim.next
		t.rows[victim.next].prev = victim.prev
		if t.head == idx {
			t.head = victim.next
		}
		if t.tail == idx {
			t.tail = victim.prev
		}
	}

	last := int32(len(t.rows) - 1)
	if idx != last {
		movedRec := t.rows[last]
		t.rows[idx] = movedRec

		if movedRec.prev == last {
			t.rows[idx].prev = idx
		} else {
			t.rows[movedRec.prev].next = idx
		}
		if movedRec.next == last {
			t.rows[idx].next = idx
		} else {
			t.rows[movedRec.next].prev = idx
		}
		if t.head == last {
			t.head = idx
		}
		if t.tail == last {
			t.tail = idx
		}

		movedKey, movedTo, moved = movedRec.key, idx, true
	}

	t.rows = t.rows[:last]
	return victim, movedKey, movedTo, moved
}

// outCacheTable is the ghost queue of recently evicted Meta records kept
// around as training-label candidates (spec §4.5.1/4.5.7). A bounded
// container/list in place of the spec's array-plus-front-index scheme:
// it gives the same O(1) pop-front and O(1) promote-by-key behavior
// without index arithmetic, consistent with every other FIFO ring in
// this codebase (policy/fifo, policy/s3fifo's ghost).
type outCacheTable struct {
	order    *list.List
	elems    map[uint64]*list.Element
	capacity int
}

func newOutCacheTable(capacity int) *outCacheTable {
	return &outCacheTable{order: list.New(), elems: make(map[uint64]*list.Element), capacity: capacity}
}

func (t *outCacheTable) len() int { return t.order.Len() }

// pushBack inserts m and, if the ghost queue is now over capacity, pops
// and returns the evicted front record for label emission (spec §4.5.7).
func (t *outCacheTable) pushBack(m meta) (evicted meta, hadEviction bool) {
	elem := t.order.PushBack(m)
	t.elems[m.key] = elem
	if t.order.Len() > t.capacity {
		evicted, hadEviction = t.popFront()
	}
	return evicted, hadEviction
}

func (t *outCacheTable) popFront() (meta, bool) {
	elem := t.order.Front()
	if elem == nil {
		return meta{}, false
	}
	m := elem.Value.(meta) //nolint:forcetypeassert
	t.order.Remove(elem)
	delete(t.elems, m.key)
	return m, true
}

func (t *outCacheTable) get(key uint64) (meta, bool) {
	elem, ok := t.elems[key]
	if !ok {
		return meta{}, false
	}
	return elem.Value.(meta), true //nolint:forcetypeassert
}

// remove takes key out of the ghost queue (promotion back into
// in_cache), returning its stored record.
func (t *outCacheTable) remove(key uint64) (meta, bool) {
	elem, ok := t.elems[key]
	if !ok {
		return meta{}, false
	}
	m := elem.Value.(meta) //nolint:forcetypeassert
	t.order.Remove(elem)
	delete(t.elems, key)
	return m, true
}

// setSampleTime stamps key's sample_times in place. elem.Value stores a
// meta by value, so a caller-side copy from get cannot be mutated
// directly; this goes through the list element itself.
func (t *outCacheTable) setSampleTime(key uint64, ts int64) {
	elem, ok := t.elems[key]
	if !ok {
		return
	}
	m := elem.Value.(meta) //nolint:forcetypeassert
	m.sampleTime = ts
	elem.Value = m
}

func (t *outCacheTable) has(key uint64) bool {
	_, ok := t.elems[key]
	return ok
}

// keyAt returns the key stored at position i (0-indexed from the front),
// for drawSample's uniform draws over in_cache ∪ out_cache. O(n)
// — acceptable since sampling draws are rare relative to request volume.
func (t *outCacheTable) keyAt(i int) (uint64, bool) {
	elem := t.order.Front()
	for n := 0; elem != nil; n++ {
		if n == i {
			return elem.Value.(meta).key, true //nolint:forcetypeassert
		}
		elem = elem.Next()
	}
	return 0, false
}
