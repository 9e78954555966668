// Package `uid` hands out connection slot IDs.
package uid

import (
	"sync"

	"github.com/lambdcalculus/dmbn/pkg/minheap"
)

// A connection that doesn't hold a slot has this ID.
const None = 0

// The UIDHeap stores which IDs can be taken by new connections. Taking the
// smallest free ID keeps IDs short in logs and bounds how many connections are
// served at once.
// Its methods can be called from multiple goroutines.
type UIDHeap struct {
	heap minheap.MinHeap[int]
	max  int
	mu   sync.Mutex
}

// Creates a new [UIDHeap] that can give up to `max` IDs (1, 2, ..., max).
func CreateHeap(max int) *UIDHeap {
	init := make([]int, max)
	for i := range init {
		init[i] = i + 1
	}
	return &UIDHeap{
		heap: minheap.NewHeap(init),
		max:  max,
	}
}

// Takes the smallest available ID. Returns false if all IDs are in use.
func (u *UIDHeap) Take() (int, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.heap.Pop()
}

// Frees the passed ID so it can be taken again. [None] and out of range IDs are ignored.
func (u *UIDHeap) Free(id int) {
	if id <= None || id > u.max {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.heap.Push(id)
}

// Returns how many IDs are currently taken.
func (u *UIDHeap) InUse() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.max - u.heap.Len()
}
