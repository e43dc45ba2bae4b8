// Package comms is the client side of session bootstrap: it creates communication
// groups, makes one group id visible to every participant, splits groups and tears
// them down. Workers and the scheduler only ever execute the calls it issues.
package comms

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a rendezvous or a teardown when the caller sets none.
const DefaultTimeout = 30 * time.Second

const schedulerTarget = "scheduler"

// Coordinator runs the rendezvous protocol for sessions created by this client.
type Coordinator struct {
	log     *slog.Logger
	channel contract.Channel
	local   contract.Process
	book    *AddressBook
	timeout time.Duration
}

// NewCoordinator builds a coordinator reaching the cluster through channel.
// local is the client's own process state, used as root for client placement and
// as the client-side copy for scheduler placement.
func NewCoordinator(log *slog.Logger, channel contract.Channel, local contract.Process, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		log:     log,
		channel: channel,
		local:   local,
		book:    NewAddressBook(log, channel),
		timeout: timeout,
	}
}

func (c *Coordinator) AddressBook() *AddressBook {
	return c.book
}

// Channel returns the channel used to reach the cluster.
func (c *Coordinator) Channel() contract.Channel {
	return c.channel
}

// Rendezvous makes a single group id visible to every participant of s before returning it.
// Every remote call is bounded by the coordinator timeout; any participant failing aborts
// the whole rendezvous. Nothing is retried: calling it again with the same session is safe
// because roots reuse the id they already hold.
func (c *Coordinator) Rendezvous(ctx context.Context, s domain.Session) (domain.GroupID, error) {
	if s.Size() == 0 {
		return nil, fmt.Errorf("%w: session %s", errors.ErrNoParticipants, s.ID)
	}
	st, err := strategyFor(s.Placement)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	root, rootRank := st.root(c, s)
	gid, err := root.Generate(ctx, s.ID, rootRank, s.Size())
	if err != nil {
		return nil, c.abort(s, "root", err)
	}
	c.log.Debug("Group id originated",
		"session_id", s.ID, "placement", s.Placement, "group", gid.Fingerprint())

	if err := c.spread(ctx, st, s, gid, nil); err != nil {
		return nil, err
	}

	if s.P2P {
		endpoints, err := c.exchangeEndpoints(ctx, s)
		if err != nil {
			return nil, err
		}
		if st.pull(s) != nil {
			if err := root.Register(ctx, s.ID, domain.Entry{
				GroupID: gid, Rank: rootRank, Size: s.Size(), Endpoints: endpoints,
			}); err != nil {
				return nil, c.abort(s, "root", err)
			}
		}
		if err := c.spread(ctx, st, s, gid, endpoints); err != nil {
			return nil, err
		}
	}

	c.log.Info("Rendezvous complete",
		"session_id", s.ID,
		"placement", s.Placement,
		"participants", s.Size(),
		"p2p", s.P2P,
		"group", gid.Fingerprint(),
		"elapsed", time.Since(start))
	return gid, nil
}

// spread makes every participant hold gid (and the endpoint table, when given),
// either by pushing the entry or by having each participant pull it from the root.
func (c *Coordinator) spread(ctx context.Context, st strategy, s domain.Session, gid domain.GroupID, endpoints []domain.Endpoint) error {
	source := st.pull(s)
	g, gctx := errgroup.WithContext(ctx)

	for rank, id := range s.Participants {
		if source != nil && st.holdsRoot(rank) {
			continue
		}
		g.Go(func() error {
			p := c.channel.Worker(id)
			if source == nil {
				if err := p.Register(gctx, s.ID, s.EntryFor(rank, gid, endpoints)); err != nil {
					return c.abort(s, string(id), err)
				}
				return nil
			}
			fetched, err := p.Fetch(gctx, s.ID, *source, rank, s.Size())
			if err != nil {
				return c.abort(s, string(id), err)
			}
			return c.verify(s, string(id), gid, fetched)
		})
	}

	if st.clientCopy {
		g.Go(func() error {
			fetched, err := c.local.Fetch(gctx, s.ID, *source, domain.NoRank, s.Size())
			if err != nil {
				return c.abort(s, "client", err)
			}
			return c.verify(s, "client", gid, fetched)
		})
	}
	return g.Wait()
}

// exchangeEndpoints has every participant open its endpoint and returns them indexed by rank.
func (c *Coordinator) exchangeEndpoints(ctx context.Context, s domain.Session) ([]domain.Endpoint, error) {
	endpoints := make([]domain.Endpoint, s.Size())
	g, gctx := errgroup.WithContext(ctx)
	for rank, id := range s.Participants {
		g.Go(func() error {
			ep, err := c.channel.Worker(id).CreateEndpoint(gctx, s.ID)
			if err != nil {
				return c.abort(s, string(id), err)
			}
			endpoints[rank] = ep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return endpoints, nil
}

// Teardown releases the session on every participant, on the scheduler when it was the
// root, and on the client. Participants that left the live set took their state with
// them and are only logged; a live participant that cannot be reached may still hold a
// handle and makes the teardown partial.
func (c *Coordinator) Teardown(ctx context.Context, s domain.Session) error {
	releaseCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed = make(map[string]error)
	)
	release := func(name string, p contract.Process) {
		defer wg.Done()
		if err := p.Release(releaseCtx, s.ID); err != nil {
			mu.Lock()
			failed[name] = err
			mu.Unlock()
		}
	}

	for _, id := range s.Participants {
		wg.Add(1)
		go release(string(id), c.channel.Worker(id))
	}
	if s.Placement == domain.PlacementScheduler {
		wg.Add(1)
		go release(schedulerTarget, c.channel.Scheduler())
	}
	wg.Wait()

	if err := c.local.Release(releaseCtx, s.ID); err != nil {
		c.log.Warn("Client-side release failed", "session_id", s.ID, "error", err)
	}

	if len(failed) == 0 {
		c.log.Info("Session destroyed", "session_id", s.ID, "participants", s.Size())
		return nil
	}
	return c.classifyTeardown(ctx, s, failed)
}

func (c *Coordinator) classifyTeardown(ctx context.Context, s domain.Session, failed map[string]error) error {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	live, liveErr := c.book.live(checkCtx)

	var leaked []string
	for _, id := range s.Participants {
		err, ok := failed[string(id)]
		if !ok {
			continue
		}
		if liveErr == nil && !lo.Contains(live, id) {
			c.log.Warn("Participant already gone, nothing to release", "session_id", s.ID, "worker", id, "error", err)
			continue
		}
		c.log.Error("Participant release failed", "session_id", s.ID, "worker", id, "error", err)
		leaked = append(leaked, string(id))
	}
	if err, ok := failed[schedulerTarget]; ok {
		c.log.Error("Scheduler release failed", "session_id", s.ID, "error", err)
		leaked = append(leaked, schedulerTarget)
	}

	if len(leaked) == 0 {
		c.log.Info("Session destroyed", "session_id", s.ID, "participants", s.Size(), "gone", len(failed))
		return nil
	}
	return fmt.Errorf("%w: session %s may still be held by %v", errors.ErrPartialTeardown, s.ID, leaked)
}

// abort turns a failed remote call into the error reported for the whole rendezvous.
func (c *Coordinator) abort(s domain.Session, target string, err error) error {
	c.log.Error("Rendezvous aborted", "session_id", s.ID, "target", target, "error", err)
	if stderrors.Is(err, errors.ErrConflictingRegistration) {
		return fmt.Errorf("session %s on %s: %w", s.ID, target, err)
	}
	return fmt.Errorf("%w: session %s: %s did not acknowledge: %w", errors.ErrRendezvousTimeout, s.ID, target, err)
}

func (c *Coordinator) verify(s domain.Session, target string, want, got domain.GroupID) error {
	if want.Equal(got) {
		return nil
	}
	return c.abort(s, target, fmt.Errorf("%w: fetched %s, root holds %s",
		errors.ErrConflictingRegistration, got.Fingerprint(), want.Fingerprint()))
}
