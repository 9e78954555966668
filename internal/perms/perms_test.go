package perms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFullAccessPassesEverything(t *testing.T) {
	requirements := [][]string{
		nil,
		{},
		{"anything"},
		{ManageUsers, Broadcast, "made_up"},
	}
	rights := []Rights{
		Owner(),
		{FullAccess: true, ManageUsers: false},
		{FullAccess: true, "x": true},
	}
	for _, r := range rights {
		for _, req := range requirements {
			assert.True(t, r.Check(req...), "rights %v, required %v", r, req)
		}
	}
}

func TestCheckWithoutFullAccess(t *testing.T) {
	r := Rights{"a": true, "b": true, "c": false}

	tests := []struct {
		required []string
		want     bool
	}{
		{nil, true},
		{[]string{"a"}, true},
		{[]string{"a", "b"}, true},
		{[]string{"c"}, false},
		{[]string{"a", "c"}, false},
		{[]string{"missing"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Check(tt.required...), "required %v", tt.required)
	}

	assert.False(t, Rights{FullAccess: false, "a": true}.Check("b"))
	assert.False(t, Rights(nil).Check("a"))
	assert.True(t, Rights(nil).Check())
}

func TestClone(t *testing.T) {
	r := Rights{"a": true}
	c := r.Clone()
	c["b"] = true
	assert.NotContains(t, r, "b")
	assert.Equal(t, Rights{}, Rights(nil).Clone())
}
