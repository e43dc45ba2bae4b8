package comms

import (
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type groupState int

const (
	groupCreated groupState = iota
	groupReady
	// groupReleasing is a destroyed group some participant may still hold.
	groupReleasing
	groupDestroyed
)

// Options configures a new CommGroup. The zero value selects every live worker,
// client placement and no point-to-point exchange.
type Options struct {
	Participants []domain.Identity
	Placement    domain.Placement
	P2P          bool
	// Verbose reports the group layout at info level once initialized.
	Verbose bool
}

// CommGroup is the client's handle on one communication session.
// It owns the session: destroying it tears the session down on every participant.
type CommGroup struct {
	mu          sync.Mutex
	log         *slog.Logger
	coordinator *Coordinator
	session     domain.Session
	discovered  bool
	verbose     bool
	groupID     domain.GroupID
	state       groupState
}

// NewCommGroup creates a group with a fresh session id. Participants default to the
// live workers reported by the scheduler.
func NewCommGroup(ctx context.Context, coordinator *Coordinator, opts Options) (*CommGroup, error) {
	placement, err := domain.ParsePlacement(string(opts.Placement))
	if err != nil {
		return nil, err
	}

	participants := lo.Uniq(opts.Participants)
	discovered := len(participants) == 0
	if discovered {
		participants, err = coordinator.AddressBook().ListParticipants(ctx)
		if err != nil {
			return nil, err
		}
	}

	g := newCommGroup(coordinator, domain.Session{
		ID:           domain.SessionID(uuid.NewString()),
		Placement:    placement,
		P2P:          opts.P2P,
		Participants: participants,
	}, discovered)
	g.verbose = opts.Verbose
	return g, nil
}

func newCommGroup(coordinator *Coordinator, session domain.Session, discovered bool) *CommGroup {
	return &CommGroup{
		log:         coordinator.log.With("session_id", session.ID),
		coordinator: coordinator,
		session:     session,
		discovered:  discovered,
		state:       groupCreated,
	}
}

// Init runs the rendezvous for the group and blocks until every participant holds
// the same group id (and, with p2p, the endpoint table). A second call is a no-op.
func (g *CommGroup) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case groupReleasing, groupDestroyed:
		return fmt.Errorf("%w: %s", errors.ErrAlreadyDestroyed, g.session.ID)
	case groupReady:
		return nil
	}

	gid, err := g.coordinator.Rendezvous(ctx, g.session)
	if err != nil {
		return err
	}
	if g.discovered {
		if err := g.coordinator.AddressBook().Confirm(ctx, g.session.Participants); err != nil {
			return err
		}
	}

	g.groupID = gid
	g.state = groupReady
	level := slog.LevelDebug
	if g.verbose {
		level = slog.LevelInfo
	}
	g.log.Log(ctx, level, "Comm group initialized",
		"placement", g.session.Placement,
		"p2p", g.session.P2P,
		"ranks", g.session.Ranks(),
		"group", gid.Fingerprint())
	return nil
}

// Describe maps every participant to its rank.
func (g *CommGroup) Describe() (map[domain.Identity]int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case groupReleasing, groupDestroyed:
		return nil, fmt.Errorf("%w: %s", errors.ErrAlreadyDestroyed, g.session.ID)
	case groupCreated:
		return nil, fmt.Errorf("%w: %s", errors.ErrNotInitialized, g.session.ID)
	}
	return g.session.Ranks(), nil
}

// Destroy releases the session everywhere. It is safe on a group whose Init failed
// half way and on a group already destroyed. After a partial teardown the group stays
// unusable, and calling Destroy again retries the release on every participant until
// one attempt succeeds.
func (g *CommGroup) Destroy(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == groupDestroyed {
		return nil
	}
	g.state = groupReleasing
	g.groupID = nil
	if err := g.coordinator.Teardown(ctx, g.session); err != nil {
		return err
	}
	g.state = groupDestroyed
	return nil
}

func (g *CommGroup) SessionID() domain.SessionID {
	return g.session.ID
}

func (g *CommGroup) Placement() domain.Placement {
	return g.session.Placement
}

func (g *CommGroup) P2P() bool {
	return g.session.P2P
}

func (g *CommGroup) Verbose() bool {
	return g.verbose
}

// Participants returns the ordered participant list; index is rank.
func (g *CommGroup) Participants() []domain.Identity {
	return append([]domain.Identity(nil), g.session.Participants...)
}

// GroupID returns the group id once Init succeeded, nil otherwise.
func (g *CommGroup) GroupID() domain.GroupID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.groupID.Clone()
}

func (g *CommGroup) Initialized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == groupReady
}

// Session returns a copy of the session description.
func (g *CommGroup) Session() domain.Session {
	s := g.session
	s.Participants = g.Participants()
	return s
}

