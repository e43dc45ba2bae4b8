package runtime

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// HandleCache resolves a session id to the native handle of this process.
//
// Building a handle is a barrier across all participants, so it happens at most
// once per session and never while a process-local lock is held: concurrent
// callers for the same session share one build, other sessions are not blocked.
type HandleCache struct {
	log    *slog.Logger
	state  *SessionState
	native contract.Native
	flight singleflight.Group

	mu      sync.Mutex
	handles map[domain.SessionID]contract.Handle
}

func NewHandleCache(log *slog.Logger, state *SessionState, native contract.Native) *HandleCache {
	return &HandleCache{
		log:     log,
		state:   state,
		native:  native,
		handles: make(map[domain.SessionID]contract.Handle),
	}
}

// Resolve returns the cached handle for sessionID, building it on first use from the
// session entry. It fails with ErrSessionNotReady while the entry is absent or empty.
//
// The build is shared by every concurrent caller and is not tied to any one of them:
// a caller giving up returns its own context error and leaves the build running for
// the others.
func (c *HandleCache) Resolve(ctx context.Context, sessionID domain.SessionID) (contract.Handle, error) {
	if h, ok := c.cached(sessionID); ok {
		return h, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	results := c.flight.DoChan(string(sessionID), func() (any, error) {
		if h, ok := c.cached(sessionID); ok {
			return h, nil
		}
		return c.build(buildCtx, sessionID)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve %s: %w", sessionID, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(contract.Handle), nil
	}
}

func (c *HandleCache) build(ctx context.Context, sessionID domain.SessionID) (contract.Handle, error) {
	entry, ok, err := c.state.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !ok || !entry.Ready() {
		return nil, fmt.Errorf("%w: %s", errors.ErrSessionNotReady, sessionID)
	}
	if !entry.Participant() {
		return nil, fmt.Errorf("%w: %s", errors.ErrNotParticipant, sessionID)
	}

	c.log.Debug("Building native handle",
		"session_id", sessionID, "rank", entry.Rank, "size", entry.Size, "group", entry.GroupID.Fingerprint())
	h, err := c.native.CreateHandle(ctx, entry.GroupID, entry.Rank, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("native handle creation failed for %s: %w", sessionID, err)
	}

	// The session may have been released while the barrier was pending.
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok, err := c.state.Get(sessionID)
	if err != nil || !ok || !current.GroupID.Equal(entry.GroupID) {
		_ = h.Close()
		return nil, fmt.Errorf("%w: %s released during handle creation", errors.ErrSessionNotReady, sessionID)
	}
	c.handles[sessionID] = h
	return h, nil
}

func (c *HandleCache) cached(sessionID domain.SessionID) (contract.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[sessionID]
	return h, ok
}

// Release forgets the session entry first, then closes the handle built from it, if any.
func (c *HandleCache) Release(sessionID domain.SessionID) error {
	if err := c.state.Remove(sessionID); err != nil {
		return err
	}

	c.mu.Lock()
	h, ok := c.handles[sessionID]
	delete(c.handles, sessionID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := h.Close(); err != nil {
		c.log.Warn("Native handle close failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// Len returns the number of materialized handles.
func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}
