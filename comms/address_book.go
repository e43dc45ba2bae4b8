package comms

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// AddressBook resolves the live worker set and the rank order derived from it.
type AddressBook struct {
	log     *slog.Logger
	channel contract.Channel
}

func NewAddressBook(log *slog.Logger, channel contract.Channel) *AddressBook {
	return &AddressBook{log: log, channel: channel}
}

// ListParticipants returns the live workers, de-duplicated in first-seen order.
func (b *AddressBook) ListParticipants(ctx context.Context) ([]domain.Identity, error) {
	live, err := b.live(ctx)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		return nil, fmt.Errorf("%w: scheduler reports no live worker", errors.ErrNoParticipants)
	}
	return live, nil
}

// Confirm re-reads the live set and fails if the members of expected that are still
// live no longer appear in the same relative order.
func (b *AddressBook) Confirm(ctx context.Context, expected []domain.Identity) error {
	live, err := b.live(ctx)
	if err != nil {
		return err
	}
	seen := lo.Filter(live, func(id domain.Identity, _ int) bool { return lo.Contains(expected, id) })
	want := lo.Filter(expected, func(id domain.Identity, _ int) bool { return lo.Contains(live, id) })
	for i := range seen {
		if seen[i] != want[i] {
			b.log.Warn("Participant order changed during setup", "expected", want, "live", seen)
			return fmt.Errorf("%w: %s now at position %d", errors.ErrParticipantsReordered, seen[i], i)
		}
	}
	return nil
}

// Live reports whether id still belongs to the live worker set.
func (b *AddressBook) Live(ctx context.Context, id domain.Identity) (bool, error) {
	live, err := b.live(ctx)
	if err != nil {
		return false, err
	}
	return lo.Contains(live, id), nil
}

func (b *AddressBook) live(ctx context.Context) ([]domain.Identity, error) {
	workers, err := b.channel.Workers(ctx)
	if err != nil {
		if stderrors.Is(err, errors.ErrTopologyUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrTopologyUnavailable, err)
	}
	return lo.Uniq(workers), nil
}
