package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTakeAndFree(t *testing.T) {
	h := CreateHeap(3)

	for want := 1; want <= 3; want++ {
		id, ok := h.Take()
		assert.True(t, ok)
		assert.Equal(t, want, id)
	}
	_, ok := h.Take()
	assert.False(t, ok)
	assert.Equal(t, 3, h.InUse())

	h.Free(2)
	h.Free(None)
	h.Free(42)
	assert.Equal(t, 2, h.InUse())

	id, ok := h.Take()
	assert.True(t, ok)
	assert.Equal(t, 2, id)
}
