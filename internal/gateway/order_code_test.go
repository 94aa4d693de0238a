package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderCodesAreUniqueUnderConcurrency(t *testing.T) {
	fixed := time.Date(2025, 9, 24, 8, 0, 0, 0, time.UTC)
	g := NewOrderCodeGenerator()
	g.now = func() time.Time { return fixed }

	const n = 200
	codes := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- g.Next()
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[int64]bool, n)
	for c := range codes {
		assert.False(t, seen[c], "duplicate code %d", c)
		assert.Less(t, c, orderCodeModulus)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}

func TestOrderCodeFollowsClock(t *testing.T) {
	now := time.UnixMilli(1_758_700_800_123)
	g := NewOrderCodeGenerator()
	g.now = func() time.Time { return now }

	first := g.Next()
	assert.EqualValues(t, 758_700_800_123, first)

	now = now.Add(time.Second)
	assert.EqualValues(t, 758_700_801_123, g.Next())
}

func TestTruncateDescription(t *testing.T) {
	assert.Equal(t, "short", TruncateDescription("short"))
	long := "Thanh toán đơn hàng số 1234567890"
	got := TruncateDescription(long)
	assert.Equal(t, MaxDescriptionLength, len([]rune(got)))
	assert.Equal(t, "Thanh toán đơn hàng số 12", got)
}
