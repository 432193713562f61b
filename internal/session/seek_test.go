package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeekAbsoluteNumber(t *testing.T) {
	pos, err := parseSeek(float64(30), 20.0)
	require.NoError(t, err)
	assert.Equal(t, 30.0, pos)
}

func TestParseSeekRelative(t *testing.T) {
	pos, err := parseSeek("+5", 30.0)
	require.NoError(t, err)
	assert.Equal(t, 35.0, pos)

	pos, err = parseSeek("-10", 35.0)
	require.NoError(t, err)
	assert.Equal(t, 25.0, pos)
}

func TestParseSeekClock(t *testing.T) {
	pos, err := parseSeek("1:02:30", 0)
	require.NoError(t, err)
	assert.Equal(t, 3750.0, pos)
}

func TestParseSeekClockMinutesSeconds(t *testing.T) {
	pos, err := parseSeek("2:05", 0)
	require.NoError(t, err)
	assert.Equal(t, 125.0, pos)
}

func TestParseSeekClampsNegative(t *testing.T) {
	pos, err := parseSeek("-100", 10.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
}

func TestParseSeekRejectsGarbage(t *testing.T) {
	_, err := parseSeek("not-a-time", 0)
	assert.Error(t, err)
}

func TestParseSeekRejectsWrongType(t *testing.T) {
	_, err := parseSeek(true, 0)
	assert.Error(t, err)
}
