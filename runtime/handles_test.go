package runtime

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"comm-rendezvous/mocks"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHandleCache_ResolveBuildsOnce(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	handle := mocks.NewMockHandle(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)

	gid := domain.GroupID{7, 7, 7}
	req.NoError(state.Put("s-1", domain.Entry{GroupID: gid, Rank: 1, Size: 2}))

	// Given a native barrier that takes a while
	native.EXPECT().
		CreateHandle(gomock.Any(), gid, 1, 2).
		DoAndReturn(func(context.Context, domain.GroupID, int, int) (contract.Handle, error) {
			time.Sleep(20 * time.Millisecond)
			return handle, nil
		}).
		Times(1)

	// When many goroutines resolve the same session concurrently
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := cache.Resolve(context.Background(), "s-1")
			req.NoError(err)
			req.Equal(handle, h)
		}()
	}
	wg.Wait()

	// Then the native handle was built exactly once and is cached
	req.Equal(1, cache.Len())
}

func TestHandleCache_ResolveUnknownSession(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	native := mocks.NewMockNative(ctrl)
	native.EXPECT().CreateHandle(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	cache := NewHandleCache(slog.Default(), newTestState(), native)

	_, err := cache.Resolve(context.Background(), "unknown")

	req.ErrorIs(err, errors.ErrSessionNotReady)
}

func TestHandleCache_ResolveOnNonParticipant(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)

	// Given the scheduler's copy of a session
	req.NoError(state.Put("s-1", domain.Entry{GroupID: domain.GroupID{1}, Rank: domain.NoRank, Size: 2}))

	_, err := cache.Resolve(context.Background(), "s-1")

	req.ErrorIs(err, errors.ErrNotParticipant)
}

func TestHandleCache_ReleaseClosesHandle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	handle := mocks.NewMockHandle(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)

	req.NoError(state.Put("s-1", domain.Entry{GroupID: domain.GroupID{1}, Rank: 0, Size: 1}))
	native.EXPECT().CreateHandle(gomock.Any(), gomock.Any(), 0, 1).Return(handle, nil)
	handle.EXPECT().Close().Return(nil).Times(1)

	_, err := cache.Resolve(context.Background(), "s-1")
	req.NoError(err)

	// When the session is released twice
	req.NoError(cache.Release("s-1"))
	req.NoError(cache.Release("s-1"))

	// Then the handle was closed once and the session is no longer resolvable
	req.Equal(0, cache.Len())
	_, err = cache.Resolve(context.Background(), "s-1")
	req.ErrorIs(err, errors.ErrSessionNotReady)
}

func TestHandleCache_ReleaseDuringBuildDiscardsHandle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	handle := mocks.NewMockHandle(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)
	req.NoError(state.Put("s-1", domain.Entry{GroupID: domain.GroupID{1}, Rank: 0, Size: 1}))

	// Given the session is released while the native barrier is pending
	native.EXPECT().
		CreateHandle(gomock.Any(), gomock.Any(), 0, 1).
		DoAndReturn(func(context.Context, domain.GroupID, int, int) (contract.Handle, error) {
			req.NoError(cache.Release("s-1"))
			return handle, nil
		})
	handle.EXPECT().Close().Return(nil).Times(1)

	// When the build completes
	_, err := cache.Resolve(context.Background(), "s-1")

	// Then the fresh handle is closed instead of cached
	req.ErrorIs(err, errors.ErrSessionNotReady)
	req.Equal(0, cache.Len())
}

func TestHandleCache_DistinctSessionsDoNotWait(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)
	req.NoError(state.Put("slow", domain.Entry{GroupID: domain.GroupID{1}, Rank: 0, Size: 1}))
	req.NoError(state.Put("fast", domain.Entry{GroupID: domain.GroupID{2}, Rank: 0, Size: 1}))

	release := make(chan struct{})
	native.EXPECT().
		CreateHandle(gomock.Any(), domain.GroupID{1}, 0, 1).
		DoAndReturn(func(context.Context, domain.GroupID, int, int) (contract.Handle, error) {
			<-release
			return mocks.NewMockHandle(ctrl), nil
		})
	native.EXPECT().
		CreateHandle(gomock.Any(), domain.GroupID{2}, 0, 1).
		Return(mocks.NewMockHandle(ctrl), nil)

	// Given a handle build blocked in the native barrier
	slowDone := make(chan error, 1)
	go func() {
		_, err := cache.Resolve(context.Background(), "slow")
		slowDone <- err
	}()

	// When another session resolves, Then it completes without waiting
	_, err := cache.Resolve(context.Background(), "fast")
	req.NoError(err)

	close(release)
	req.NoError(<-slowDone)
	req.Equal(2, cache.Len())
}

func TestHandleCache_CallerGivingUpDoesNotFailOthers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	state := newTestState()
	native := mocks.NewMockNative(ctrl)
	handle := mocks.NewMockHandle(ctrl)
	cache := NewHandleCache(slog.Default(), state, native)
	req.NoError(state.Put("s-1", domain.Entry{GroupID: domain.GroupID{1}, Rank: 0, Size: 2}))

	// Given a native barrier that waits for the other participant
	started := make(chan struct{})
	release := make(chan struct{})
	native.EXPECT().
		CreateHandle(gomock.Any(), domain.GroupID{1}, 0, 2).
		DoAndReturn(func(ctx context.Context, _ domain.GroupID, _, _ int) (contract.Handle, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return handle, nil
		}).
		Times(1)

	// And a first caller that starts the build then gives up
	impatient, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := cache.Resolve(impatient, "s-1")
		firstDone <- err
	}()
	<-started

	secondDone := make(chan error, 1)
	go func() {
		h, err := cache.Resolve(context.Background(), "s-1")
		if err == nil && h != handle {
			err = errors.ErrSessionNotReady
		}
		secondDone <- err
	}()

	cancel()
	req.ErrorIs(<-firstDone, context.Canceled)

	// When the barrier completes
	close(release)

	// Then the patient caller still gets the handle
	req.NoError(<-secondDone)
	req.Equal(1, cache.Len())
}
