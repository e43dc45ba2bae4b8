package comms

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"fmt"
)

// strategy captures everything that differs between root placements:
// who originates the group id, and whether participants receive it from the
// client or pull it from the root themselves.
type strategy struct {
	placement domain.Placement
	// root returns the originating process and the rank it holds in its own entry.
	root func(c *Coordinator, s domain.Session) (contract.Process, int)
	// pull is the source participants fetch from; push mode when nil.
	pull func(s domain.Session) *domain.Source
	// clientCopy makes the client keep its own fetched copy of the entry.
	clientCopy bool
}

var strategies = map[domain.Placement]strategy{
	domain.PlacementClient: {
		placement: domain.PlacementClient,
		root: func(c *Coordinator, _ domain.Session) (contract.Process, int) {
			return c.local, domain.NoRank
		},
		pull: func(domain.Session) *domain.Source { return nil },
	},
	domain.PlacementWorker: {
		placement: domain.PlacementWorker,
		root: func(c *Coordinator, s domain.Session) (contract.Process, int) {
			return c.channel.Worker(s.Participants[0]), 0
		},
		pull: func(s domain.Session) *domain.Source {
			src := domain.WorkerSource(s.Participants[0])
			return &src
		},
	},
	domain.PlacementScheduler: {
		placement: domain.PlacementScheduler,
		root: func(c *Coordinator, _ domain.Session) (contract.Process, int) {
			return c.channel.Scheduler(), domain.NoRank
		},
		pull: func(domain.Session) *domain.Source {
			src := domain.SchedulerSource()
			return &src
		},
		clientCopy: true,
	},
}

func strategyFor(p domain.Placement) (strategy, error) {
	st, ok := strategies[p]
	if !ok {
		return strategy{}, fmt.Errorf("%w: %q", errors.ErrUnknownPlacement, p)
	}
	return st, nil
}

// holdsRoot reports whether the participant of the given rank is the root itself.
func (st strategy) holdsRoot(rank int) bool {
	return st.placement == domain.PlacementWorker && rank == 0
}
