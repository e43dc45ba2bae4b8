package comms_test

import (
	"comm-rendezvous/comms"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"comm-rendezvous/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAddressBook_ListParticipantsDeduplicates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	channel := mocks.NewMockChannel(ctrl)

	channel.EXPECT().Workers(gomock.Any()).Return([]domain.Identity{"b:1", "a:1", "b:1"}, nil)

	got, err := comms.NewAddressBook(slog.Default(), channel).ListParticipants(context.Background())

	req.NoError(err)
	req.Equal([]domain.Identity{"b:1", "a:1"}, got)
}

func TestAddressBook_ListingFailureIsTopologyUnavailable(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	channel := mocks.NewMockChannel(ctrl)

	channel.EXPECT().Workers(gomock.Any()).Return(nil, fmt.Errorf("connection refused"))

	_, err := comms.NewAddressBook(slog.Default(), channel).ListParticipants(context.Background())

	req.ErrorIs(err, errors.ErrTopologyUnavailable)
}

func TestAddressBook_Confirm(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	tb := newTestbed(3, testTimeout)
	book := tb.coordinator.AddressBook()

	req.NoError(book.Confirm(ctx, tb.workers))

	// A worker leaving does not change the relative order of the others
	tb.cluster.RemoveWorker(tb.workers[1])
	req.NoError(book.Confirm(ctx, tb.workers))

	// Rejoining puts it at the end of the live set
	tb.cluster.AddWorker(tb.workers[1])
	err := book.Confirm(ctx, tb.workers)
	req.ErrorIs(err, errors.ErrParticipantsReordered)

	live, err := book.Live(ctx, tb.workers[1])
	req.NoError(err)
	req.True(live)
}
