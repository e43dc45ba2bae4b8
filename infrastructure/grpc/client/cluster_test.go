package client_test

import (
	"comm-rendezvous/auth"
	"comm-rendezvous/comms"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"comm-rendezvous/infrastructure/grpc/client"
	"comm-rendezvous/infrastructure/grpc/server"
	"comm-rendezvous/infrastructure/grpc/wire"
	"comm-rendezvous/internal"
	"comm-rendezvous/native"
	"comm-rendezvous/runtime"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

const secret = "test-cluster-secret"

type process struct {
	addr    string
	agent   *runtime.Agent
	server  *grpc.Server
	channel *client.Channel
}

// startProcess serves a session service (and the membership service for the scheduler)
// on a loopback port.
func startProcess(t *testing.T, tokens *auth.TokenManager, schedulerAddr string, membership *runtime.Membership, store string) *process {
	t.Helper()
	log := slog.Default()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	if schedulerAddr == "" {
		schedulerAddr = addr
	}

	st, closeStore, err := internal.OpenSessionStore(store, log)
	require.NoError(t, err)

	channel := client.NewChannel(log, schedulerAddr, auth.NewBearerCredentials(tokens, addr, auth.RoleWorker))
	agent := runtime.NewAgent(log, addr, st, native.NewSimulated(log, addr), channel)

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(auth.UnaryServerInterceptor(tokens)))
	wire.RegisterSessionServer(s, server.NewSessionServer(log, agent))
	if membership != nil {
		wire.RegisterMembershipServer(s, server.NewMembershipServer(log, membership))
	}
	go func() { _ = s.Serve(lis) }()

	t.Cleanup(func() {
		s.Stop()
		_ = channel.Close()
		closeStore()
	})
	return &process{addr: addr, agent: agent, server: s, channel: channel}
}

type grpcCluster struct {
	scheduler *process
	workers   []*process
	client    *client.Channel
	local     *runtime.Agent
	tokens    *auth.TokenManager
}

func newGRPCCluster(t *testing.T, n int) *grpcCluster {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log := slog.Default()
	tokens := auth.NewTokenManager(secret, time.Minute)

	sched := startProcess(t, tokens, "", runtime.NewMembership(log, time.Minute), "memory")
	c := &grpcCluster{scheduler: sched, tokens: tokens}

	for i := 0; i < n; i++ {
		store := "memory"
		if i == 0 {
			store = "badger"
		}
		w := startProcess(t, tokens, sched.addr, nil, store)
		conn, err := w.channel.SchedulerConn()
		require.NoError(t, err)
		require.NoError(t, client.WaitReady(ctx, conn))
		require.NoError(t, w.channel.Membership().Join(ctx, domain.Identity(w.addr)))
		c.workers = append(c.workers, w)
	}

	c.client = client.NewChannel(log, sched.addr, auth.NewBearerCredentials(tokens, "client", auth.RoleClient))
	t.Cleanup(func() { _ = c.client.Close() })
	c.local = runtime.NewAgent(log, "client", runtime.NewMemoryStore(), native.NewSimulated(log, "client"), c.client)
	return c
}

func TestGRPC_RendezvousEveryPlacement(t *testing.T) {
	cluster := newGRPCCluster(t, 3)
	coordinator := comms.NewCoordinator(slog.Default(), cluster.client, cluster.local, 5*time.Second)

	for _, placement := range domain.Placements {
		t.Run(string(placement), func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()

			// Given a group over the workers that joined the scheduler
			group, err := comms.NewCommGroup(ctx, coordinator, comms.Options{Placement: placement, P2P: true})
			req.NoError(err)
			req.Len(group.Participants(), 3)
			for i, w := range cluster.workers {
				req.Equal(domain.Identity(w.addr), group.Participants()[i])
			}

			// When it is initialized over the network
			req.NoError(group.Init(ctx))

			// Then every worker holds the same id and can build its handle
			for rank, w := range cluster.workers {
				remote := cluster.client.Session(w.addr)
				entry, err := remote.Lookup(ctx, group.SessionID())
				req.NoError(err)
				req.True(group.GroupID().Equal(entry.GroupID))
				req.Equal(rank, entry.Rank)
				req.Len(entry.Endpoints, 3)

				info, err := remote.Resolve(ctx, group.SessionID())
				req.NoError(err)
				req.Equal(rank, info.Rank)
				req.Equal(group.GroupID().Fingerprint(), info.Fingerprint)

				sessions, err := remote.List(ctx)
				req.NoError(err)
				req.Contains(sessions, group.SessionID())
			}

			// And destroy leaves nothing behind
			req.NoError(group.Destroy(ctx))
			for _, w := range cluster.workers {
				_, err := cluster.client.Session(w.addr).Resolve(ctx, group.SessionID())
				req.ErrorIs(err, errors.ErrSessionNotReady)
			}
		})
	}
}

func TestGRPC_DomainErrorsCrossTheWire(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cluster := newGRPCCluster(t, 1)
	worker := cluster.client.Session(cluster.workers[0].addr)

	req.NoError(worker.Register(ctx, "s-1", domain.Entry{GroupID: domain.GroupID{1, 2, 3}, Rank: 0, Size: 1}))

	err := worker.Register(ctx, "s-1", domain.Entry{GroupID: domain.GroupID{4, 5, 6}, Rank: 0, Size: 1})
	req.ErrorIs(err, errors.ErrConflictingRegistration)

	_, err = worker.Lookup(ctx, "missing")
	req.ErrorIs(err, errors.ErrSessionNotReady)

	req.NoError(worker.Register(ctx, "s-2", domain.Entry{GroupID: domain.GroupID{7}, Rank: domain.NoRank, Size: 1}))
	_, err = worker.CreateEndpoint(ctx, "s-2")
	req.ErrorIs(err, errors.ErrNotParticipant)

	err = cluster.client.Membership().Heartbeat(ctx, "never-joined:1", domain.ProcessStats{})
	req.ErrorIs(err, errors.ErrUnknownWorker)
}

func TestGRPC_CallsWithoutTokenAreRejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cluster := newGRPCCluster(t, 1)

	anonymous := client.NewChannel(slog.Default(), cluster.scheduler.addr, nil)
	defer func() { _ = anonymous.Close() }()

	_, err := anonymous.Session(cluster.workers[0].addr).Lookup(ctx, "s")
	req.ErrorIs(err, errors.ErrUnauthenticated)

	forged := client.NewChannel(slog.Default(), cluster.scheduler.addr,
		auth.NewBearerCredentials(auth.NewTokenManager("other-secret", time.Minute), "client", auth.RoleClient))
	defer func() { _ = forged.Close() }()

	_, err = forged.Workers(ctx)
	req.ErrorIs(err, errors.ErrTopologyUnavailable)
	req.ErrorIs(err, errors.ErrUnauthenticated)
}

func TestGRPC_MembershipLifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	cluster := newGRPCCluster(t, 2)
	membership := cluster.client.Membership()

	workers, err := membership.Workers(ctx)
	req.NoError(err)
	req.Equal([]domain.Identity{domain.Identity(cluster.workers[0].addr), domain.Identity(cluster.workers[1].addr)}, workers)

	first := domain.Identity(cluster.workers[0].addr)
	req.NoError(membership.Heartbeat(ctx, first, domain.ProcessStats{RAM: 42}))
	health, err := membership.Health(ctx)
	req.NoError(err)
	req.Len(health, 2)

	req.NoError(membership.Leave(ctx, first))
	workers, err = cluster.client.Workers(ctx)
	req.NoError(err)
	req.Equal([]domain.Identity{domain.Identity(cluster.workers[1].addr)}, workers)
}
