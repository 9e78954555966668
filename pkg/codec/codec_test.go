package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapsDecodeWithStringKeys(t *testing.T) {
	b, err := Encode(map[string]any{
		"action": "net",
		"type":   "ping",
		"nested": map[string]any{"ok": true},
	})
	require.NoError(t, err)

	m, ok, err := DecodeMap(b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "net", m["action"])
	assert.Equal(t, "ping", m["type"])
	assert.Equal(t, map[string]any{"ok": true}, m["nested"])
}

func TestNilEncodesToNull(t *testing.T) {
	b, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf6}, b)

	v, err := Decode(b)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDeterministic(t *testing.T) {
	v := map[string]bool{"b": true, "a": false, "c": true}
	first, err := Encode(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Encode(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeError(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"truncated map", []byte{0xa1, 0x61}},
		{"reserved info", []byte{0x1c}},
		{"trailing bytes", []byte{0xf6, 0xf6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestDecodeMapNotAMap(t *testing.T) {
	b, err := Encode("just a string")
	require.NoError(t, err)

	_, ok, err := DecodeMap(b)
	require.NoError(t, err)
	assert.False(t, ok)
}
