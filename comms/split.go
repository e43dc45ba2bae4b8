package comms

import (
	"cmp"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// splitNamespace scopes the name-based ids of sub-groups.
var splitNamespace = uuid.MustParse("6f1c2a52-8d0e-4c1b-9a57-2f3e4d5c6b7a")

// SplitSessionID derives the session id of the sub-group of the given color.
// Every participant computing it from the same parent converges on the same id.
func SplitSessionID(parent domain.SessionID, color int) domain.SessionID {
	name := string(parent) + "/" + strconv.Itoa(color)
	return domain.SessionID(uuid.NewSHA1(splitNamespace, []byte(name)).String())
}

// PlanSplit partitions participants by color. Members of a color are ordered by
// ascending key, ties broken by their rank in the parent. Plans are ordered by color.
//
// Every participant must supply a key and only participants may supply one; any
// other input means participants disagree on the split and fails with ErrEmptyColor.
func PlanSplit(parent domain.SessionID, participants []domain.Identity,
	keys map[domain.Identity]domain.SplitKey) ([]domain.SplitPlan, error) {
	for id := range keys {
		if !lo.Contains(participants, id) {
			return nil, fmt.Errorf("%w: %s is not a member of %s", errors.ErrEmptyColor, id, parent)
		}
	}

	type member struct {
		id   domain.Identity
		rank int
		key  domain.SplitKey
	}
	byColor := make(map[int][]member)
	for rank, id := range participants {
		key, ok := keys[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s supplied no color", errors.ErrEmptyColor, id)
		}
		byColor[key.Color] = append(byColor[key.Color], member{id: id, rank: rank, key: key})
	}

	colors := lo.Keys(byColor)
	slices.Sort(colors)

	plans := make([]domain.SplitPlan, 0, len(colors))
	for _, color := range colors {
		members := byColor[color]
		slices.SortFunc(members, func(a, b member) int {
			if c := cmp.Compare(a.key.Key, b.key.Key); c != 0 {
				return c
			}
			return cmp.Compare(a.rank, b.rank)
		})
		plans = append(plans, domain.SplitPlan{
			Color:     color,
			SessionID: SplitSessionID(parent, color),
			Participants: lo.Map(members, func(m member, _ int) domain.Identity {
				return m.id
			}),
		})
	}
	return plans, nil
}

// PlanFor returns the plan the participant self belongs to according to its own color.
// A color with no member in the plans means this participant's view of the split is
// inconsistent with the others'.
func PlanFor(plans []domain.SplitPlan, self domain.Identity, color int) (domain.SplitPlan, error) {
	plan, ok := lo.Find(plans, func(p domain.SplitPlan) bool { return p.Color == color })
	if !ok || len(plan.Participants) == 0 {
		return domain.SplitPlan{}, fmt.Errorf("%w: color %d has no member", errors.ErrEmptyColor, color)
	}
	if !plan.Contains(self) {
		return domain.SplitPlan{}, fmt.Errorf("%w: %s is not in color %d", errors.ErrEmptyColor, self, color)
	}
	return plan, nil
}

// SplitCoordinator derives sub-groups from an initialized CommGroup.
type SplitCoordinator struct {
	log         *slog.Logger
	coordinator *Coordinator
}

func NewSplitCoordinator(log *slog.Logger, coordinator *Coordinator) *SplitCoordinator {
	return &SplitCoordinator{log: log, coordinator: coordinator}
}

// Split creates and initializes one CommGroup per color, using the parent's placement
// and p2p setting. Either every sub-group is initialized or none is kept: on failure the
// sub-groups created so far are destroyed before the error is returned.
func (s *SplitCoordinator) Split(ctx context.Context, parent *CommGroup,
	keys map[domain.Identity]domain.SplitKey) (map[int]*CommGroup, error) {
	if !parent.Initialized() {
		return nil, fmt.Errorf("%w: split of %s", errors.ErrNotInitialized, parent.SessionID())
	}
	session := parent.Session()
	plans, err := PlanSplit(session.ID, session.Participants, keys)
	if err != nil {
		return nil, err
	}

	groups := make(map[int]*CommGroup, len(plans))
	for _, plan := range plans {
		child := newCommGroup(s.coordinator, domain.Session{
			ID:           plan.SessionID,
			Placement:    session.Placement,
			P2P:          session.P2P,
			Participants: plan.Participants,
		}, false)
		child.verbose = parent.Verbose()
		groups[plan.Color] = child

		if err := child.Init(ctx); err != nil {
			s.rollback(ctx, groups)
			return nil, fmt.Errorf("split of %s, color %d: %w", session.ID, plan.Color, err)
		}
		s.log.Debug("Sub-group initialized",
			"parent", session.ID, "color", plan.Color, "session_id", plan.SessionID, "participants", plan.Participants)
	}
	return groups, nil
}

func (s *SplitCoordinator) rollback(ctx context.Context, groups map[int]*CommGroup) {
	for color, g := range groups {
		if err := g.Destroy(ctx); err != nil {
			s.log.Warn("Sub-group rollback incomplete", "color", color, "session_id", g.SessionID(), "error", err)
		}
	}
}
