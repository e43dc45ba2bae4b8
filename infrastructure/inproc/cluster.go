// Package inproc wires a scheduler, N workers and any number of clients inside one
// OS process. Remote calls become direct calls on the target's agent, with the
// failure modes of a real network (refused, stalled, partitioned) injectable per link.
package inproc

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"comm-rendezvous/native"
	"comm-rendezvous/runtime"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerName is the caller/target name used for the scheduler process.
const SchedulerName = "scheduler"

// ErrUnreachable is returned by calls crossing a broken link.
var ErrUnreachable = stderrors.New("process unreachable")

type link struct {
	from string
	to   string
}

type Cluster struct {
	mu          sync.RWMutex
	log         *slog.Logger
	membership  *runtime.Membership
	scheduler   *runtime.Agent
	workers     map[domain.Identity]*runtime.Agent
	natives     map[domain.Identity]*native.Simulated
	down        map[string]bool
	stalled     map[string]bool
	cut         map[link]bool
	topologyOff bool
}

// NewCluster starts a scheduler and one worker per identity, joined in the given order.
func NewCluster(log *slog.Logger, workers ...domain.Identity) *Cluster {
	c := &Cluster{
		log:        log,
		membership: runtime.NewMembership(log, time.Hour),
		workers:    make(map[domain.Identity]*runtime.Agent),
		natives:    make(map[domain.Identity]*native.Simulated),
		down:       make(map[string]bool),
		stalled:    make(map[string]bool),
		cut:        make(map[link]bool),
	}
	c.scheduler = runtime.NewAgent(log, SchedulerName, runtime.NewMemoryStore(),
		native.NewSimulated(log, SchedulerName), c.ChannelFor(SchedulerName))
	for _, id := range workers {
		c.AddWorker(id)
	}
	return c
}

// AddWorker starts a fresh worker process with empty state and joins it.
func (c *Cluster) AddWorker(id domain.Identity) *runtime.Agent {
	nat := native.NewSimulated(c.log, string(id))
	agent := runtime.NewAgent(c.log, string(id), runtime.NewMemoryStore(), nat, c.ChannelFor(string(id)))

	c.mu.Lock()
	c.workers[id] = agent
	c.natives[id] = nat
	c.mu.Unlock()

	c.membership.Join(id)
	return agent
}

// RemoveWorker simulates a worker process exiting: it leaves the live set and its state is lost.
func (c *Cluster) RemoveWorker(id domain.Identity) {
	c.mu.Lock()
	delete(c.workers, id)
	delete(c.natives, id)
	c.mu.Unlock()
	c.membership.Leave(id)
}

// NewClient creates a client-side agent able to reach the whole cluster.
func (c *Cluster) NewClient(name string) *runtime.Agent {
	return runtime.NewAgent(c.log, name, runtime.NewMemoryStore(),
		native.NewSimulated(c.log, name), c.ChannelFor(name))
}

// ChannelFor returns the view of the cluster seen by the named caller.
func (c *Cluster) ChannelFor(caller string) contract.Channel {
	return &channel{cluster: c, caller: caller}
}

func (c *Cluster) Scheduler() *runtime.Agent {
	return c.scheduler
}

func (c *Cluster) Worker(id domain.Identity) *runtime.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.workers[id]
}

func (c *Cluster) Native(id domain.Identity) *native.Simulated {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.natives[id]
}

func (c *Cluster) Workers() []domain.Identity {
	return c.membership.Live()
}

// Disconnect makes a process refuse every call while staying in the live set.
func (c *Cluster) Disconnect(name string) {
	c.set(c.down, name, true)
}

func (c *Cluster) Reconnect(name string) {
	c.set(c.down, name, false)
	c.set(c.stalled, name, false)
}

// Stall makes every call to a process hang until the caller gives up.
func (c *Cluster) Stall(name string) {
	c.set(c.stalled, name, true)
}

// Partition breaks the link from one process to another, in that direction only.
func (c *Cluster) Partition(from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cut[link{from: from, to: to}] = true
}

func (c *Cluster) Heal(from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cut, link{from: from, to: to})
}

// TopologyOutage makes the scheduler's worker listing fail.
func (c *Cluster) TopologyOutage(off bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topologyOff = off
}

func (c *Cluster) set(m map[string]bool, name string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v {
		m[name] = true
		return
	}
	delete(m, name)
}

// reach returns the target's agent as seen from caller, honouring injected faults.
func (c *Cluster) reach(ctx context.Context, caller, target string) (*runtime.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	stalled := c.stalled[target]
	refused := c.down[target] || c.cut[link{from: caller, to: target}]
	var agent *runtime.Agent
	if target == SchedulerName {
		agent = c.scheduler
	} else {
		agent = c.workers[domain.Identity(target)]
	}
	c.mu.RUnlock()

	if stalled {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if refused || agent == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrUnreachable, caller, target)
	}
	return agent, nil
}

type channel struct {
	cluster *Cluster
	caller  string
}

func (ch *channel) Scheduler() contract.Process {
	return &remote{cluster: ch.cluster, caller: ch.caller, target: SchedulerName}
}

func (ch *channel) Worker(id domain.Identity) contract.Process {
	return &remote{cluster: ch.cluster, caller: ch.caller, target: string(id)}
}

func (ch *channel) Workers(ctx context.Context) ([]domain.Identity, error) {
	if _, err := ch.cluster.reach(ctx, ch.caller, SchedulerName); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTopologyUnavailable, err)
	}
	ch.cluster.mu.RLock()
	off := ch.cluster.topologyOff
	ch.cluster.mu.RUnlock()
	if off {
		return nil, fmt.Errorf("%w: scheduler listing disabled", errors.ErrTopologyUnavailable)
	}
	return ch.cluster.membership.Live(), nil
}

// remote forwards every call to the target agent once the link is checked.
type remote struct {
	cluster *Cluster
	caller  string
	target  string
}

func (r *remote) Register(ctx context.Context, sessionID domain.SessionID, entry domain.Entry) error {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return err
	}
	return a.Register(ctx, sessionID, entry)
}

func (r *remote) Generate(ctx context.Context, sessionID domain.SessionID, rank, size int) (domain.GroupID, error) {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return nil, err
	}
	return a.Generate(ctx, sessionID, rank, size)
}

func (r *remote) Fetch(ctx context.Context, sessionID domain.SessionID, source domain.Source, rank, size int) (domain.GroupID, error) {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return nil, err
	}
	return a.Fetch(ctx, sessionID, source, rank, size)
}

func (r *remote) Lookup(ctx context.Context, sessionID domain.SessionID) (domain.Entry, error) {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return domain.Entry{}, err
	}
	return a.Lookup(ctx, sessionID)
}

func (r *remote) CreateEndpoint(ctx context.Context, sessionID domain.SessionID) (domain.Endpoint, error) {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return domain.Endpoint{}, err
	}
	return a.CreateEndpoint(ctx, sessionID)
}

func (r *remote) Release(ctx context.Context, sessionID domain.SessionID) error {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return err
	}
	return a.Release(ctx, sessionID)
}

func (r *remote) Resolve(ctx context.Context, sessionID domain.SessionID) (domain.HandleInfo, error) {
	a, err := r.cluster.reach(ctx, r.caller, r.target)
	if err != nil {
		return domain.HandleInfo{}, err
	}
	return a.Resolve(ctx, sessionID)
}
