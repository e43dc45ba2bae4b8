// Package native provides a stand-in for the collective/transport library.
// It generates group ids and endpoints and hands out handles that carry no
// transport of their own, which is enough to exercise session bootstrap end to end.
package native

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync/atomic"
)

type Simulated struct {
	log     *slog.Logger
	host    string
	open    atomic.Int64
	created atomic.Int64
}

func NewSimulated(log *slog.Logger, host string) *Simulated {
	return &Simulated{log: log, host: host}
}

func (s *Simulated) NewGroupIdentifier() (domain.GroupID, error) {
	gid := make(domain.GroupID, domain.GroupIDSize)
	if _, err := rand.Read(gid); err != nil {
		return nil, err
	}
	return gid, nil
}

func (s *Simulated) CreateHandle(ctx context.Context, gid domain.GroupID, rank, size int) (contract.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d out of range for size %d", rank, size)
	}
	s.open.Add(1)
	s.created.Add(1)
	s.log.Debug("Handle created", "group", gid.Fingerprint(), "rank", rank, "size", size)
	return &handle{owner: s, rank: rank, size: size}, nil
}

func (s *Simulated) CreateEndpoint(ctx context.Context, sessionID domain.SessionID, rank int) (domain.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return domain.Endpoint{}, err
	}
	return domain.Endpoint{
		Rank:    rank,
		Address: fmt.Sprintf("ucx://%s/%s/%d", s.host, sessionID, rank),
	}, nil
}

// Open returns the number of handles created and not yet closed.
func (s *Simulated) Open() int64 {
	return s.open.Load()
}

// Created returns the number of handles ever created.
func (s *Simulated) Created() int64 {
	return s.created.Load()
}

type handle struct {
	owner  *Simulated
	rank   int
	size   int
	closed atomic.Bool
}

func (h *handle) Rank() int { return h.rank }
func (h *handle) Size() int { return h.size }

func (h *handle) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.owner.open.Add(-1)
	}
	return nil
}
