package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseGatewayTime(t *testing.T) {
	got, ok := ParseGatewayTime("2025-09-24 15:12:00")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 9, 24, 8, 12, 0, 0, time.UTC), got.UTC())

	_, ok = ParseGatewayTime("")
	assert.False(t, ok)
	_, ok = ParseGatewayTime("yesterday")
	assert.False(t, ok)
}

func TestFormatUnixPtrVN(t *testing.T) {
	assert.Equal(t, "", FormatUnixPtrVN(nil))

	ts := time.Date(2025, 9, 24, 8, 12, 0, 0, time.UTC).Unix()
	assert.Equal(t, "2025-09-24T15:12:00+07:00", FormatUnixPtrVN(&ts))
}
