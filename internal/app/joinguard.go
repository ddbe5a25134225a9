package app

import (
	"sync"

	"github.com/dkeye/gather/internal/domain"
)

// JoinGuard is the uid-keyed set of joins in flight. It has no timeout: an
// entry clears only when its join releases it.
type JoinGuard struct {
	mu      sync.Mutex
	pending map[domain.UserID]struct{}
}

func NewJoinGuard() *JoinGuard {
	return &JoinGuard{pending: make(map[domain.UserID]struct{})}
}

// Acquire returns a release func, or false when uid is already joining.
func (g *JoinGuard) Acquire(uid domain.UserID) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.pending[uid]; busy {
		return nil, false
	}
	g.pending[uid] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.pending, uid)
			g.mu.Unlock()
		})
	}, true
}

func (g *JoinGuard) Pending(uid domain.UserID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.pending[uid]
	return busy
}
