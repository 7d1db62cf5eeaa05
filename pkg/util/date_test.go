package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "yesterday", "-5"} {
		_, ok := ParseTime(s)
		assert.False(t, ok, s)
	}
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	got, ok := ParseExpiry("+48h", now)
	require.True(t, ok)
	assert.Equal(t, now.Add(48*time.Hour), got)

	got, ok = ParseExpiry("2024-03-05T00:00:00Z", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got.UTC())

	_, ok = ParseExpiry("+-1h", now)
	assert.False(t, ok)
	_, ok = ParseExpiry("+soon", now)
	assert.False(t, ok)
}
