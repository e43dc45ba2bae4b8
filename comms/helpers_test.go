package comms_test

import (
	"comm-rendezvous/comms"
	"comm-rendezvous/domain"
	"comm-rendezvous/infrastructure/inproc"
	"comm-rendezvous/runtime"
	"fmt"
	"log/slog"
	"time"
)

const testTimeout = 5 * time.Second

func identities(n int) []domain.Identity {
	ids := make([]domain.Identity, n)
	for i := range ids {
		ids[i] = domain.Identity(fmt.Sprintf("10.0.0.%d:7101", i+1))
	}
	return ids
}

// testbed is a scheduler, N workers and one client living in the test process.
type testbed struct {
	cluster     *inproc.Cluster
	client      *runtime.Agent
	coordinator *comms.Coordinator
	workers     []domain.Identity
}

func newTestbed(n int, timeout time.Duration) *testbed {
	log := slog.Default()
	workers := identities(n)
	cluster := inproc.NewCluster(log, workers...)
	client := cluster.NewClient("client")
	return &testbed{
		cluster:     cluster,
		client:      client,
		coordinator: comms.NewCoordinator(log, cluster.ChannelFor("client"), client, timeout),
		workers:     workers,
	}
}
