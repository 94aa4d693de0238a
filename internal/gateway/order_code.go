package gateway

import (
	"sync"
	"time"
)

// orderCodeModulus keeps codes to 12 digits, well inside payOS's integer limit.
const orderCodeModulus int64 = 1_000_000_000_000

// OrderCodeGenerator derives order codes from the millisecond clock truncated
// to 12 digits. Codes are strictly increasing within one process; across
// processes they are practically, not provably, unique, so the store keeps a
// unique index on the code as the final guard.
type OrderCodeGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewOrderCodeGenerator() *OrderCodeGenerator {
	return &OrderCodeGenerator{now: time.Now}
}

func (g *OrderCodeGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.now().UnixMilli() % orderCodeModulus
	if code <= g.last && g.last+1 < orderCodeModulus {
		code = g.last + 1
	}
	g.last = code
	return code
}
