// Package minheap implements a generic min-heap.
package minheap

import (
	"cmp"
	"container/heap"
)

// MinHeap provides min-heap functionality for any ordered type.
// It can be passed as a copy, as it works with pointers internally.
// It is not goroutine-safe, users must implement mutexes on their end.
type MinHeap[T cmp.Ordered] struct {
	impl *heapImpl[T]
}

type heapImpl[T cmp.Ordered] []T

// NewHeap makes a new [MinHeap] with the initial values from `init`.
func NewHeap[T cmp.Ordered](init []T) MinHeap[T] {
	h := make(heapImpl[T], len(init))
	copy(h, init)
	heap.Init(&h)
	return MinHeap[T]{impl: &h}
}

// Len returns the number of elements in the heap.
func (h MinHeap[T]) Len() int {
	return len(*h.impl)
}

// Min returns the smallest element without removing it. The heap must not be empty.
// The time complexity is O(1).
func (h MinHeap[T]) Min() T {
	return (*h.impl)[0]
}

// Pop removes and returns the smallest element. The second return is false
// if the heap is empty.
// The time complexity is O(log n).
func (h MinHeap[T]) Pop() (T, bool) {
	if h.Len() == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(h.impl).(T), true
}

// Push pushes a new element.
// The time complexity is O(log n).
func (h MinHeap[T]) Push(x T) {
	heap.Push(h.impl, x)
}

// Below are the necessary methods for [heap.Interface].

func (h heapImpl[T]) Len() int           { return len(h) }
func (h heapImpl[T]) Less(i, j int) bool { return h[i] < h[j] }
func (h heapImpl[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *heapImpl[T]) Push(x any) {
	*h = append(*h, x.(T))
}

func (h *heapImpl[T]) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}
