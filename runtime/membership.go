package runtime

import (
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Membership is the scheduler's registry of workers.
// Workers are listed in the order they first joined, which is what gives a
// session built from the live set its rank order.
type Membership struct {
	mu      sync.RWMutex
	log     *slog.Logger
	ttl     time.Duration
	now     func() time.Time
	order   []domain.Identity
	workers map[domain.Identity]domain.WorkerHealth
}

func NewMembership(log *slog.Logger, ttl time.Duration) *Membership {
	return &Membership{
		log:     log,
		ttl:     ttl,
		now:     time.Now,
		workers: make(map[domain.Identity]domain.WorkerHealth),
	}
}

// Join registers a worker. Joining twice keeps the original position.
func (m *Membership) Join(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if w, ok := m.workers[id]; ok {
		w.LastSeen = now
		w.Status = domain.ALIVE
		m.workers[id] = w
		return
	}
	m.order = append(m.order, id)
	m.workers[id] = domain.WorkerHealth{
		ID:           id,
		Status:       domain.ALIVE,
		RegisteredAt: now,
		LastSeen:     now,
	}
	m.log.Info("Worker joined", "worker", id, "workers", len(m.order))
}

// Heartbeat refreshes a worker's liveness. Unknown workers must join again.
func (m *Membership) Heartbeat(id domain.Identity, stats domain.ProcessStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[id]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownWorker, id)
	}
	w.LastSeen = m.now()
	w.Status = domain.ALIVE
	w.Stats = stats
	m.workers[id] = w
	return nil
}

// Leave removes a worker immediately.
func (m *Membership) Leave(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(id)
	m.log.Info("Worker left", "worker", id)
}

// Live returns the workers seen within the TTL, in join order.
func (m *Membership) Live() []domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	return lo.Filter(m.order, func(id domain.Identity, _ int) bool {
		return now.Sub(m.workers[id].LastSeen) <= m.ttl
	})
}

// Reap drops every worker whose last heartbeat is older than the TTL and returns them.
func (m *Membership) Reap() []domain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expired := lo.Filter(m.order, func(id domain.Identity, _ int) bool {
		return now.Sub(m.workers[id].LastSeen) > m.ttl
	})
	for _, id := range expired {
		m.remove(id)
	}
	return expired
}

// Snapshot returns the health of every registered worker, flagging silent ones as GHOST.
func (m *Membership) Snapshot() []domain.WorkerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	return lo.Map(m.order, func(id domain.Identity, _ int) domain.WorkerHealth {
		w := m.workers[id]
		if now.Sub(w.LastSeen) > m.ttl {
			w.Status = domain.GHOST
		}
		return w
	})
}

func (m *Membership) remove(id domain.Identity) {
	delete(m.workers, id)
	m.order = lo.Without(m.order, id)
}
