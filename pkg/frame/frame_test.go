package frame

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"one byte", []byte{0x42}},
		{"text", []byte("hello, frame")},
		{"binary", bytes.Repeat([]byte{0x00, 0xff}, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			require.NoError(t, Write(buf, tt.payload))
			assert.Equal(t, HeaderSize+len(tt.payload), buf.Len())

			got, err := Read(buf, DefaultMaxSize)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, got)
		})
	}
}

func TestRoundTripOverConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	msgs := [][]byte{[]byte("first"), {}, []byte("third")}
	go func() {
		w := bufio.NewWriter(a)
		for _, m := range msgs {
			if err := Write(w, m); err != nil {
				return
			}
		}
	}()

	for _, want := range msgs {
		got, err := Read(b, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBigEndianPrefix(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, make([]byte, 0x0102)))
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x02}, buf.Bytes()[:HeaderSize])
}

func TestCleanClose(t *testing.T) {
	_, err := Read(bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.False(t, errors.Is(err, ErrTruncated))
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"partial prefix", []byte{0x00, 0x00}},
		{"missing payload", []byte{0x00, 0x00, 0x00, 0x05}},
		{"partial payload", []byte{0x00, 0x00, 0x00, 0x05, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.raw), 0)
			assert.ErrorIs(t, err, ErrTruncated)
			assert.ErrorIs(t, err, ErrConnectionClosed)
		})
	}
}

func TestTooLarge(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, make([]byte, 128)))

	_, err := Read(buf, 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
