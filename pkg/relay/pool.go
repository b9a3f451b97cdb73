package relay

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/fillguard/pkg/order"
)

// Pool keeps admitted signed orders keyed by hash, in admission order.
type Pool struct {
	mu     sync.Mutex
	byHash map[common.Hash]*order.SignedOrder
	queue  []common.Hash
	limit  int
}

// NewPool creates a pool holding at most limit orders; 0 means unbounded.
// When full, the oldest order is dropped.
func NewPool(limit int) *Pool {
	return &Pool{byHash: make(map[common.Hash]*order.SignedOrder), limit: limit}
}

// Add inserts so under hash. It reports false if the order was already known.
func (p *Pool) Add(hash common.Hash, so *order.SignedOrder) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byHash[hash]; ok {
		return false
	}
	if p.limit > 0 && len(p.queue) >= p.limit {
		oldest := p.queue[0]
		p.queue = p.queue[1:]
		delete(p.byHash, oldest)
	}
	p.byHash[hash] = so
	p.queue = append(p.queue, hash)
	return true
}

func (p *Pool) Get(hash common.Hash) (*order.SignedOrder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	so, ok := p.byHash[hash]
	return so, ok
}

// Remove evicts hash and reports whether it was present.
func (p *Pool) Remove(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byHash[hash]; !ok {
		return false
	}
	delete(p.byHash, hash)
	for i, h := range p.queue {
		if h == hash {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	return true
}

// Entry pairs an order with its hash.
type Entry struct {
	Hash  common.Hash
	Order *order.SignedOrder
}

// List returns up to limit orders, oldest first; limit <= 0 returns all.
func (p *Pool) List(limit int) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.queue)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for _, h := range p.queue[:n] {
		out = append(out, Entry{Hash: h, Order: p.byHash[h]})
	}
	return out
}

// Prune removes every order for which drop returns true and returns how
// many were removed.
func (p *Pool) Prune(drop func(common.Hash, *order.SignedOrder) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.queue[:0]
	removed := 0
	for _, h := range p.queue {
		if drop(h, p.byHash[h]) {
			delete(p.byHash, h)
			removed++
			continue
		}
		kept = append(kept, h)
	}
	p.queue = kept
	return removed
}

// PruneExpired drops orders whose expiration is before now. Expirations are
// compared as full 256-bit values, so far-future timestamps never wrap.
func (p *Pool) PruneExpired(now time.Time) int {
	cutoff := big.NewInt(now.Unix())
	return p.Prune(func(_ common.Hash, so *order.SignedOrder) bool {
		exp := so.ExpirationUnixTimestampSec
		return exp == nil || exp.Cmp(cutoff) < 0
	})
}

// Len returns the number of pooled orders.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
