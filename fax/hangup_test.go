package fax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHangupDescription(t *testing.T) {
	assert.Equal(t, "normal end of connection", HangupDescription(0))
	assert.Equal(t, "no answer (T1 timeout)", HangupDescription(11))
	assert.Equal(t, "T.30 T1 timeout after EOM received", HangupDescription(74))

	// codes without their own entry fall back to their range
	assert.Equal(t, "transmit phase B hangup", HangupDescription(33))
	assert.Equal(t, "receive phase D hangup", HangupDescription(110))
	assert.Equal(t, "reserved", HangupDescription(200))
	assert.Equal(t, "unknown hangup code", HangupDescription(300))
}

func TestParseHangup(t *testing.T) {
	tests := []struct {
		value string
		base  int
		code  int
	}{
		{"0", 10, 0},
		{" 25", 10, 25},
		{"100", 10, 100},
		{"4A", 16, 74},
		{"4a", 16, 74},
		{"19", 16, 25},
	}
	for _, tt := range tests {
		code, err := ParseHangup(tt.value, tt.base)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.code, code, tt.value)
	}

	for _, bad := range []string{"", "x", "-1", "256"} {
		_, err := ParseHangup(bad, 10)
		assert.ErrorIs(t, err, ErrProtocol, bad)
	}
}
