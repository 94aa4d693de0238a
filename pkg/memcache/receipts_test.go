package mem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReceiptsExpire(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewReceipts()
	r.now = func() time.Time { return now }

	r.Remember("sig", time.Minute)
	assert.True(t, r.Seen("sig"))
	assert.False(t, r.Seen("other"))

	now = now.Add(time.Minute)
	assert.False(t, r.Seen("sig"))

	r.Remember("next", time.Minute)
	r.mu.RLock()
	_, stillThere := r.data["sig"]
	r.mu.RUnlock()
	assert.False(t, stillThere)
}

func TestReceiptsForget(t *testing.T) {
	r := NewReceipts()
	r.Remember("sig", time.Hour)
	r.Forget("sig")
	assert.False(t, r.Seen("sig"))
}
