// pkg/memcache/receipts.go
package mem

import (
	"sync"
	"time"
)

// ReceiptStore remembers keys (webhook signatures) for a bounded time so a
// redelivery of an already processed payload can be acknowledged without
// re-dispatching it.
type ReceiptStore interface {
	Remember(key string, ttl time.Duration)

	// Seen reports whether key was remembered and has not expired.
	Seen(key string) bool

	Forget(key string)
}

type entry struct {
	expiresAt time.Time
}

type Receipts struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

func NewReceipts() *Receipts {
	return &Receipts{
		data: make(map[string]entry),
		now:  time.Now,
	}
}

func (s *Receipts) Remember(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	s.data[key] = entry{expiresAt: now.Add(ttl)}
}

func (s *Receipts) Seen(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	return ok && s.now().Before(e.expiresAt)
}

func (s *Receipts) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// sweep drops expired entries; caller holds the write lock.
func (s *Receipts) sweep(now time.Time) {
	for k, e := range s.data {
		if !now.Before(e.expiresAt) {
			delete(s.data, k)
		}
	}
}
