// Package util
//
// This file provides a keyed min-heap used to expire entries by deadline.
//
// The heap is ordered by deadline while a map gives direct access by key, so an
// entry can be rescheduled or cancelled in O(log n) when its owner claims it
// before it expires. The protocol layer keys entries by request id and uses the
// heap to drop replies that no caller collected.
//
// Example usage:
//
//	eh := NewExpiryHeap()
//	eh.Schedule(17, deadline)
//	eh.Cancel(17) // claimed in time
//	for _, key := range eh.PopExpired(now) {
//	    // drop key
//	}
//
// Concurrency Considerations:
//   - This implementation is not thread-safe, callers synchronize externally.
package util

import (
	"container/heap"
	"strconv"
)

// entry is a single scheduled key
type entry struct {
	Key      uint64
	Deadline uint64
	index    int // position in the heap, maintained by the heap package
}

func (e *entry) String() string {
	return "{Key: " + strconv.FormatUint(e.Key, 10) + ", Deadline: " + strconv.FormatUint(e.Deadline, 10) + "}"
}

// entries implements heap.Interface, it is kept unexported so that callers can
// only reach the heap through ExpiryHeap and the map stays consistent
type entries struct {
	list  []*entry
	byKey map[uint64]*entry
}

func (es *entries) Len() int           { return len(es.list) }
func (es *entries) Less(i, j int) bool { return es.list[i].Deadline < es.list[j].Deadline }

func (es *entries) Swap(i, j int) {
	es.list[i], es.list[j] = es.list[j], es.list[i]
	es.list[i].index = i
	es.list[j].index = j
}

func (es *entries) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(es.list)
	es.list = append(es.list, e)
	es.byKey[e.Key] = e
}

func (es *entries) Pop() interface{} {
	old := es.list
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	e.index = -1
	es.list = old[:n-1]
	delete(es.byKey, e.Key)
	return e
}

// ExpiryHeap schedules keys by deadline and hands them back once the deadline passed
type ExpiryHeap struct {
	es entries
}

// NewExpiryHeap creates an empty expiry heap
func NewExpiryHeap() *ExpiryHeap {
	return &ExpiryHeap{es: entries{
		list:  make([]*entry, 0),
		byKey: make(map[uint64]*entry),
	}}
}

// Len returns the number of scheduled keys
func (h *ExpiryHeap) Len() int { return h.es.Len() }

// Schedule adds key with the given deadline, or moves the deadline of an already scheduled key
func (h *ExpiryHeap) Schedule(key, deadline uint64) {
	if e, exists := h.es.byKey[key]; exists {
		e.Deadline = deadline
		heap.Fix(&h.es, e.index)
		return
	}
	heap.Push(&h.es, &entry{Key: key, Deadline: deadline})
}

// Cancel removes key and returns its deadline
func (h *ExpiryHeap) Cancel(key uint64) (uint64, bool) {
	e, exists := h.es.byKey[key]
	if !exists {
		return 0, false
	}
	heap.Remove(&h.es, e.index)
	return e.Deadline, true
}

// Contains reports whether key is scheduled
func (h *ExpiryHeap) Contains(key uint64) bool {
	_, exists := h.es.byKey[key]
	return exists
}

// Deadline returns the deadline of key
func (h *ExpiryHeap) Deadline(key uint64) (uint64, bool) {
	e, exists := h.es.byKey[key]
	if !exists {
		return 0, false
	}
	return e.Deadline, true
}

// Next returns the key with the earliest deadline without removing it
func (h *ExpiryHeap) Next() (key, deadline uint64, ok bool) {
	if h.es.Len() == 0 {
		return 0, 0, false
	}
	e := h.es.list[0]
	return e.Key, e.Deadline, true
}

// PopExpired removes and returns all keys whose deadline is at or before now, earliest first
func (h *ExpiryHeap) PopExpired(now uint64) []uint64 {
	var expired []uint64
	for h.es.Len() > 0 && h.es.list[0].Deadline <= now {
		e := heap.Pop(&h.es).(*entry)
		expired = append(expired, e.Key)
	}
	return expired
}
