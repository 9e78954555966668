package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"30", 30 * time.Second},
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"2min", 2 * time.Minute},
		{"3d12h", 3*Day + 12*time.Hour},
		{"1w", Week},
		{"-5m", -5 * time.Minute},
		{"250ms", 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"5.5h", "h", "10x", "1m30"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "0s", String(0))
	assert.Equal(t, "1d2h", String(Day+2*time.Hour))
	assert.Equal(t, "-1m30s", String(-90*time.Second))

	d, err := Parse(String(Week + 3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Week+3*time.Minute, d)
}
