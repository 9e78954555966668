package methods

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambdcalculus/dmbn/pkg/logger"
)

type fakeAuth map[string][]string

func (f fakeAuth) CheckAccessLogin(_ context.Context, login string, required ...string) bool {
	held := map[string]bool{}
	for _, p := range f[login] {
		held[p] = true
	}
	for _, p := range required {
		if !held[p] {
			return false
		}
	}
	return true
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(fakeAuth{"alice": {"echo"}}, logger.Discard())
	require.NoError(t, r.AddSet(Set{
		"echo": {
			Func: func(_ context.Context, c *Call) (any, error) {
				return map[string]any{"login": c.Login, "args": c.Args}, nil
			},
			Args:   []string{"text"},
			Access: []string{"echo"},
		},
		"boom": {
			Func: func(context.Context, *Call) (any, error) { panic("kaboom") },
		},
		"fail": {
			Func: func(context.Context, *Call) (any, error) { return "ignored", errors.New("nope") },
		},
	}))
	return r
}

func TestDispatchFiltersArgs(t *testing.T) {
	r := newTestRegistry(t)

	res, err := r.Dispatch(context.Background(), "alice", "echo", map[string]any{
		"text":  "hi",
		"extra": "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"login": "alice",
		"args":  map[string]any{"text": "hi"},
	}, res)
}

func TestDispatchUnknown(t *testing.T) {
	r := newTestRegistry(t)
	res, err := r.Dispatch(context.Background(), "alice", "missing", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatchAccessDenied(t *testing.T) {
	r := newTestRegistry(t)
	res, err := r.Dispatch(context.Background(), "bob", "echo", map[string]any{"text": "hi"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestDispatchRecoversPanics(t *testing.T) {
	r := newTestRegistry(t)

	var res any
	var err error
	assert.NotPanics(t, func() {
		res, err = r.Dispatch(context.Background(), "alice", "boom", nil)
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrPanic)

	// the registry is still usable afterwards
	res, err = r.Dispatch(context.Background(), "alice", "echo", map[string]any{"text": "again"})
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestDispatchErrorDropsResult(t *testing.T) {
	r := newTestRegistry(t)
	res, err := r.Dispatch(context.Background(), "alice", "fail", nil)
	assert.Nil(t, res)
	assert.EqualError(t, err, "nope")
}

func TestAddRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Add("echo", Method{Func: func(context.Context, *Call) (any, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Error(t, r.Add("nofunc", Method{}))
	assert.Equal(t, []string{"boom", "echo", "fail"}, r.Names())
}

func TestCallHelpers(t *testing.T) {
	c := &Call{Args: map[string]any{
		"name":   "bob",
		"num":    uint64(3),
		"rights": map[string]any{"a": true, "b": false},
		"mixed":  map[string]any{"a": true, "b": "yes"},
	}}

	s, ok := c.String("name")
	assert.True(t, ok)
	assert.Equal(t, "bob", s)
	_, ok = c.String("num")
	assert.False(t, ok)

	b, ok := c.Bools("rights")
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"a": true, "b": false}, b)
	_, ok = c.Bools("mixed")
	assert.False(t, ok)
}
