package runtime

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	"context"
	"fmt"
	"log/slog"
)

// Agent runs the functions other processes invoke on this one.
// It owns nothing global: the session state, the handle cache and the channel used
// to reach peers are all injected, so several agents can share one OS process in tests.
type Agent struct {
	log     *slog.Logger
	name    string
	state   *SessionState
	handles *HandleCache
	native  contract.Native
	channel contract.Channel
}

func NewAgent(log *slog.Logger, name string, store contract.Store,
	native contract.Native, channel contract.Channel) *Agent {
	state := NewSessionState(log, store)
	return &Agent{
		log:     log.With("process", name),
		name:    name,
		state:   state,
		handles: NewHandleCache(log, state, native),
		native:  native,
		channel: channel,
	}
}

func (a *Agent) Name() string {
	return a.name
}

// State exposes the agent's session state for inspection.
func (a *Agent) State() *SessionState {
	return a.state
}

// Handles exposes the agent's handle cache, for collectives run inside this process.
func (a *Agent) Handles() *HandleCache {
	return a.handles
}

func (a *Agent) Register(_ context.Context, sessionID domain.SessionID, entry domain.Entry) error {
	if err := a.state.Put(sessionID, entry); err != nil {
		return err
	}
	a.log.Debug("Session registered",
		"session_id", sessionID, "rank", entry.Rank, "size", entry.Size,
		"group", entry.GroupID.Fingerprint(), "endpoints", len(entry.Endpoints))
	return nil
}

func (a *Agent) Generate(_ context.Context, sessionID domain.SessionID, rank, size int) (domain.GroupID, error) {
	entry, created, err := a.state.LoadOrGenerate(sessionID, rank, size, a.native.NewGroupIdentifier)
	if err != nil {
		return nil, err
	}
	if created {
		a.log.Debug("Group id generated", "session_id", sessionID, "group", entry.GroupID.Fingerprint())
	} else {
		a.log.Debug("Group id reused", "session_id", sessionID, "group", entry.GroupID.Fingerprint())
	}
	return entry.GroupID, nil
}

func (a *Agent) Fetch(ctx context.Context, sessionID domain.SessionID, source domain.Source, rank, size int) (domain.GroupID, error) {
	remote, err := a.resolveSource(source)
	if err != nil {
		return nil, err
	}
	held, err := remote.Lookup(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", source, err)
	}
	entry := domain.Entry{
		GroupID:   held.GroupID,
		Rank:      rank,
		Size:      size,
		Endpoints: held.Endpoints,
	}
	if err := a.state.Put(sessionID, entry); err != nil {
		return nil, err
	}
	a.log.Debug("Group id fetched", "session_id", sessionID, "source", source.String(), "group", held.GroupID.Fingerprint())
	return held.GroupID, nil
}

func (a *Agent) Lookup(_ context.Context, sessionID domain.SessionID) (domain.Entry, error) {
	entry, ok, err := a.state.Get(sessionID)
	if err != nil {
		return domain.Entry{}, err
	}
	if !ok || !entry.Ready() {
		return domain.Entry{}, fmt.Errorf("%w: %s on %s", errors.ErrSessionNotReady, sessionID, a.name)
	}
	return entry, nil
}

func (a *Agent) CreateEndpoint(ctx context.Context, sessionID domain.SessionID) (domain.Endpoint, error) {
	entry, err := a.Lookup(ctx, sessionID)
	if err != nil {
		return domain.Endpoint{}, err
	}
	if !entry.Participant() {
		return domain.Endpoint{}, fmt.Errorf("%w: %s on %s", errors.ErrNotParticipant, sessionID, a.name)
	}
	for _, ep := range entry.Endpoints {
		if ep.Rank == entry.Rank {
			return ep, nil
		}
	}

	ep, err := a.native.CreateEndpoint(ctx, sessionID, entry.Rank)
	if err != nil {
		return domain.Endpoint{}, fmt.Errorf("endpoint creation failed for %s: %w", sessionID, err)
	}
	_, err = a.state.Update(sessionID, func(current domain.Entry, ok bool) (domain.Entry, error) {
		if !ok {
			return domain.Entry{}, fmt.Errorf("%w: %s released during endpoint creation", errors.ErrSessionNotReady, sessionID)
		}
		current.Endpoints = append(current.Endpoints, ep)
		return current, nil
	})
	if err != nil {
		return domain.Endpoint{}, err
	}
	return ep, nil
}

func (a *Agent) Release(_ context.Context, sessionID domain.SessionID) error {
	if err := a.handles.Release(sessionID); err != nil {
		return err
	}
	a.log.Debug("Session released", "session_id", sessionID)
	return nil
}

func (a *Agent) Resolve(ctx context.Context, sessionID domain.SessionID) (domain.HandleInfo, error) {
	h, err := a.handles.Resolve(ctx, sessionID)
	if err != nil {
		return domain.HandleInfo{}, err
	}
	entry, err := a.Lookup(ctx, sessionID)
	if err != nil {
		return domain.HandleInfo{}, err
	}
	return domain.HandleInfo{
		SessionID:   sessionID,
		Rank:        h.Rank(),
		Size:        h.Size(),
		Fingerprint: entry.GroupID.Fingerprint(),
	}, nil
}

func (a *Agent) resolveSource(source domain.Source) (contract.Process, error) {
	if a.channel == nil {
		return nil, fmt.Errorf("%s cannot reach %s: no channel", a.name, source)
	}
	if source.Scheduler {
		return a.channel.Scheduler(), nil
	}
	if source.Worker == "" {
		return nil, fmt.Errorf("%w: empty fetch source", errors.ErrUnknownWorker)
	}
	return a.channel.Worker(source.Worker), nil
}
