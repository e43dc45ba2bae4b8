package comms_test

import (
	"comm-rendezvous/comms"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommGroup_SameGroupIDOnEveryParticipant(t *testing.T) {
	for _, placement := range domain.Placements {
		for _, size := range []int{1, 4} {
			for _, p2p := range []bool{false, true} {
				t.Run(fmt.Sprintf("%s/%d workers/p2p=%t", placement, size, p2p), func(t *testing.T) {
					req := require.New(t)
					ctx := context.Background()
					tb := newTestbed(size, testTimeout)

					// Given a group over every live worker
					group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: placement, P2P: p2p})
					req.NoError(err)
					req.Equal(tb.workers, group.Participants())

					// When it is initialized
					req.NoError(group.Init(ctx))

					// Then every participant holds the exact same bytes with its own rank
					gid := group.GroupID()
					req.Len(gid, domain.GroupIDSize)
					for rank, id := range tb.workers {
						entry, err := tb.cluster.Worker(id).Lookup(ctx, group.SessionID())
						req.NoError(err)
						req.Equal([]byte(gid), []byte(entry.GroupID))
						req.Equal(rank, entry.Rank)
						req.Equal(size, entry.Size)

						if p2p {
							req.Len(entry.Endpoints, size)
							for r, ep := range entry.Endpoints {
								req.Equal(r, ep.Rank)
							}
						}

						// And a handle can be materialized on it
						info, err := tb.cluster.Worker(id).Resolve(ctx, group.SessionID())
						req.NoError(err)
						req.Equal(rank, info.Rank)
						req.Equal(size, info.Size)
						req.Equal(gid.Fingerprint(), info.Fingerprint)
					}
				})
			}
		}
	}
}

func TestCommGroup_RootHoldsTheGroupID(t *testing.T) {
	ctx := context.Background()

	t.Run("worker placement", func(t *testing.T) {
		req := require.New(t)
		tb := newTestbed(3, testTimeout)
		group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementWorker})
		req.NoError(err)
		req.NoError(group.Init(ctx))

		root, err := tb.cluster.Worker(tb.workers[0]).Lookup(ctx, group.SessionID())
		req.NoError(err)
		req.True(group.GroupID().Equal(root.GroupID))
		req.Equal(0, root.Rank)

		// The scheduler is not consulted
		_, err = tb.cluster.Scheduler().Lookup(ctx, group.SessionID())
		req.ErrorIs(err, errors.ErrSessionNotReady)
	})

	t.Run("scheduler placement", func(t *testing.T) {
		req := require.New(t)
		tb := newTestbed(3, testTimeout)
		group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementScheduler})
		req.NoError(err)
		req.NoError(group.Init(ctx))

		root, err := tb.cluster.Scheduler().Lookup(ctx, group.SessionID())
		req.NoError(err)
		req.True(group.GroupID().Equal(root.GroupID))
		req.Equal(domain.NoRank, root.Rank)

		// The client keeps its own copy
		local, err := tb.client.Lookup(ctx, group.SessionID())
		req.NoError(err)
		req.True(group.GroupID().Equal(local.GroupID))
	})

	t.Run("client placement", func(t *testing.T) {
		req := require.New(t)
		tb := newTestbed(3, testTimeout)
		group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{})
		req.NoError(err)
		req.Equal(domain.PlacementClient, group.Placement())
		req.NoError(group.Init(ctx))

		local, err := tb.client.Lookup(ctx, group.SessionID())
		req.NoError(err)
		req.True(group.GroupID().Equal(local.GroupID))
		req.False(local.Participant())
	})
}

func TestCommGroup_FourWorkersClientPlacement(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(4, testTimeout)

	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementClient})
	req.NoError(err)

	start := time.Now()
	req.NoError(group.Init(ctx))
	req.Less(time.Since(start), testTimeout)

	ranks, err := group.Describe()
	req.NoError(err)
	req.Equal(map[domain.Identity]int{
		tb.workers[0]: 0,
		tb.workers[1]: 1,
		tb.workers[2]: 2,
		tb.workers[3]: 3,
	}, ranks)
}

func TestCommGroup_RanksAreABijectionAndStable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(5, testTimeout)

	// Given an explicit participant order different from join order
	participants := []domain.Identity{tb.workers[3], tb.workers[0], tb.workers[4], tb.workers[1], tb.workers[2]}
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Participants: participants})
	req.NoError(err)
	req.NoError(group.Init(ctx))

	first, err := group.Describe()
	req.NoError(err)
	second, err := group.Describe()
	req.NoError(err)
	req.Equal(first, second)

	seen := make(map[int]bool)
	for rank, id := range participants {
		req.Equal(rank, first[id])
		seen[first[id]] = true
	}
	req.Len(seen, len(participants))
}

func TestCommGroup_InitIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(3, testTimeout)

	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementScheduler})
	req.NoError(err)
	req.NoError(group.Init(ctx))
	first := group.GroupID()

	req.NoError(group.Init(ctx))

	req.True(first.Equal(group.GroupID()))
	req.True(group.Initialized())
}

func TestCommGroup_RendezvousAgainReusesTheRootID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	for _, placement := range domain.Placements {
		tb := newTestbed(3, testTimeout)
		session := domain.Session{ID: "s-again", Placement: placement, Participants: tb.workers}

		first, err := tb.coordinator.Rendezvous(ctx, session)
		req.NoError(err)
		second, err := tb.coordinator.Rendezvous(ctx, session)
		req.NoError(err)

		req.True(first.Equal(second), "placement %s", placement)
	}
}

func TestCommGroup_DescribeBeforeInit(t *testing.T) {
	req := require.New(t)
	tb := newTestbed(2, testTimeout)

	group, err := comms.NewCommGroup(context.Background(), tb.coordinator, comms.Options{})
	req.NoError(err)

	_, err = group.Describe()
	req.ErrorIs(err, errors.ErrNotInitialized)
	req.Nil(group.GroupID())
}

func TestCommGroup_DestroyThenResolve(t *testing.T) {
	for _, placement := range domain.Placements {
		t.Run(string(placement), func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			tb := newTestbed(3, testTimeout)

			group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: placement, P2P: true})
			req.NoError(err)
			req.NoError(group.Init(ctx))
			for _, id := range tb.workers {
				_, err := tb.cluster.Worker(id).Resolve(ctx, group.SessionID())
				req.NoError(err)
			}

			// When the group is destroyed
			req.NoError(group.Destroy(ctx))

			// Then no participant can resolve the session any more and every handle was closed
			for _, id := range tb.workers {
				_, err := tb.cluster.Worker(id).Resolve(ctx, group.SessionID())
				req.ErrorIs(err, errors.ErrSessionNotReady)
				req.Zero(tb.cluster.Native(id).Open())
			}
			_, err = tb.cluster.Scheduler().Lookup(ctx, group.SessionID())
			req.ErrorIs(err, errors.ErrSessionNotReady)
			_, err = tb.client.Lookup(ctx, group.SessionID())
			req.ErrorIs(err, errors.ErrSessionNotReady)

			// And the group is unusable but destroying it again is harmless
			req.ErrorIs(group.Init(ctx), errors.ErrAlreadyDestroyed)
			_, err = group.Describe()
			req.ErrorIs(err, errors.ErrAlreadyDestroyed)
			req.NoError(group.Destroy(ctx))
		})
	}
}

func TestCommGroup_SchedulerUnreachableFromOneWorker(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(4, testTimeout)
	cut := tb.workers[2]

	// Given worker 2 cannot reach the scheduler
	tb.cluster.Partition(string(cut), "scheduler")
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementScheduler})
	req.NoError(err)

	// When the group is initialized, Then the rendezvous fails
	err = group.Init(ctx)
	req.ErrorIs(err, errors.ErrRendezvousTimeout)
	req.Contains(err.Error(), string(cut))
	req.False(group.Initialized())

	// And destroy still releases everyone: worker 2 is reachable from the client
	req.NoError(group.Destroy(ctx))
	for _, id := range tb.workers {
		_, err := tb.cluster.Worker(id).Lookup(ctx, group.SessionID())
		req.ErrorIs(err, errors.ErrSessionNotReady)
	}
	_, err = tb.cluster.Scheduler().Lookup(ctx, group.SessionID())
	req.ErrorIs(err, errors.ErrSessionNotReady)
}

func TestCommGroup_PartialTeardownWhileWorkerUnreachable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(4, testTimeout)
	lost := tb.workers[2]

	// Given worker 2 is unreachable but still listed as live
	tb.cluster.Disconnect(string(lost))
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementScheduler})
	req.NoError(err)
	req.ErrorIs(group.Init(ctx), errors.ErrRendezvousTimeout)

	// When the group is destroyed
	err = group.Destroy(ctx)

	// Then the teardown is reported partial, naming the lost worker
	req.ErrorIs(err, errors.ErrPartialTeardown)
	req.Contains(err.Error(), string(lost))

	// And every reachable worker was released anyway
	for _, id := range tb.workers {
		if id == lost {
			continue
		}
		_, err := tb.cluster.Worker(id).Lookup(ctx, group.SessionID())
		req.ErrorIs(err, errors.ErrSessionNotReady)
	}
}

func TestCommGroup_DestroyIgnoresWorkersThatLeft(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(4, testTimeout)

	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementWorker})
	req.NoError(err)
	req.NoError(group.Init(ctx))

	// Given a participant exited after the group was built
	tb.cluster.RemoveWorker(tb.workers[3])

	// Then its state is gone with it and destroy succeeds
	req.NoError(group.Destroy(ctx))
}

func TestCommGroup_StalledWorkerTimesOut(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(3, 100*time.Millisecond)

	tb.cluster.Stall(string(tb.workers[1]))
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{})
	req.NoError(err)

	start := time.Now()
	err = group.Init(ctx)

	req.ErrorIs(err, errors.ErrRendezvousTimeout)
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Less(time.Since(start), 2*time.Second)
}

func TestCommGroup_ConflictingGroupID(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(3, testTimeout)

	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{})
	req.NoError(err)

	// Given a worker already holds another group id for this session
	req.NoError(tb.cluster.Worker(tb.workers[1]).Register(ctx, group.SessionID(),
		domain.Entry{GroupID: domain.GroupID{0xde, 0xad}, Rank: 1, Size: 3}))

	err = group.Init(ctx)

	req.ErrorIs(err, errors.ErrConflictingRegistration)
	req.NotErrorIs(err, errors.ErrRendezvousTimeout)
}

func TestCommGroup_TopologyUnavailable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(2, testTimeout)
	tb.cluster.TopologyOutage(true)

	_, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{})
	req.ErrorIs(err, errors.ErrTopologyUnavailable)

	// Explicit participants do not need the scheduler's listing
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Participants: tb.workers})
	req.NoError(err)
	req.NoError(group.Init(ctx))
}

func TestCommGroup_NoLiveWorker(t *testing.T) {
	req := require.New(t)
	tb := newTestbed(0, testTimeout)

	_, err := comms.NewCommGroup(context.Background(), tb.coordinator, comms.Options{})

	req.ErrorIs(err, errors.ErrNoParticipants)
}

func TestCommGroup_UnknownPlacement(t *testing.T) {
	req := require.New(t)
	tb := newTestbed(2, testTimeout)

	_, err := comms.NewCommGroup(context.Background(), tb.coordinator, comms.Options{Placement: "everywhere"})

	req.ErrorIs(err, errors.ErrUnknownPlacement)
}

func TestCommGroup_DuplicateParticipantsAreDropped(t *testing.T) {
	req := require.New(t)
	tb := newTestbed(2, testTimeout)

	group, err := comms.NewCommGroup(context.Background(), tb.coordinator, comms.Options{
		Participants: []domain.Identity{tb.workers[1], tb.workers[0], tb.workers[1]},
	})

	req.NoError(err)
	req.Equal([]domain.Identity{tb.workers[1], tb.workers[0]}, group.Participants())
}

func TestCommGroup_DestroyRetriesAfterPartialTeardown(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(4, testTimeout)
	lost := tb.workers[3]

	// Given an initialized group whose last worker built its handle
	group, err := comms.NewCommGroup(ctx, tb.coordinator, comms.Options{Placement: domain.PlacementClient})
	req.NoError(err)
	req.NoError(group.Init(ctx))
	_, err = tb.cluster.Worker(lost).Resolve(ctx, group.SessionID())
	req.NoError(err)

	// When that worker is unreachable during destroy
	tb.cluster.Disconnect(string(lost))
	req.ErrorIs(group.Destroy(ctx), errors.ErrPartialTeardown)

	// Then the group is already unusable
	req.ErrorIs(group.Init(ctx), errors.ErrAlreadyDestroyed)
	_, err = group.Describe()
	req.ErrorIs(err, errors.ErrAlreadyDestroyed)

	// And while it stays unreachable, destroying again still reports it
	req.ErrorIs(group.Destroy(ctx), errors.ErrPartialTeardown)

	// When it comes back, destroy releases it
	tb.cluster.Reconnect(string(lost))
	req.NoError(group.Destroy(ctx))

	_, err = tb.cluster.Worker(lost).Lookup(ctx, group.SessionID())
	req.ErrorIs(err, errors.ErrSessionNotReady)
	req.Zero(tb.cluster.Native(lost).Open())

	// And once fully released, destroy is a no-op
	req.NoError(group.Destroy(ctx))
}
