package minheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopOrder(t *testing.T) {
	h := NewHeap([]int{5, 3, 9, 1, 7})
	h.Push(4)

	var got []int
	for h.Len() > 0 {
		v, ok := h.Pop()
		assert.True(t, ok)
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 3, 4, 5, 7, 9}, got)

	_, ok := h.Pop()
	assert.False(t, ok)
}

func TestCopiesShareState(t *testing.T) {
	h := NewHeap[string](nil)
	cp := h
	cp.Push("b")
	cp.Push("a")
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "a", h.Min())
}
