package client

import (
	"comm-rendezvous/domain"
	"comm-rendezvous/infrastructure/grpc/wire"
	"context"
)

// SessionClient is the contract.Process of a remote worker or scheduler.
type SessionClient struct {
	channel *Channel
	target  string
}

func (s *SessionClient) Target() string {
	return s.target
}

func (s *SessionClient) Register(ctx context.Context, sessionID domain.SessionID, entry domain.Entry) error {
	return s.invoke(ctx, wire.SessionRegisterMethod, &wire.RegisterRequest{SessionID: sessionID, Entry: entry}, &wire.Empty{})
}

func (s *SessionClient) Generate(ctx context.Context, sessionID domain.SessionID, rank, size int) (domain.GroupID, error) {
	var out wire.GroupIDResponse
	err := s.invoke(ctx, wire.SessionGenerateMethod, &wire.GenerateRequest{SessionID: sessionID, Rank: rank, Size: size}, &out)
	if err != nil {
		return nil, err
	}
	return out.GroupID, nil
}

func (s *SessionClient) Fetch(ctx context.Context, sessionID domain.SessionID, source domain.Source, rank, size int) (domain.GroupID, error) {
	var out wire.GroupIDResponse
	in := &wire.FetchRequest{SessionID: sessionID, Source: source, Rank: rank, Size: size}
	if err := s.invoke(ctx, wire.SessionFetchMethod, in, &out); err != nil {
		return nil, err
	}
	return out.GroupID, nil
}

func (s *SessionClient) Lookup(ctx context.Context, sessionID domain.SessionID) (domain.Entry, error) {
	var out wire.EntryResponse
	if err := s.invoke(ctx, wire.SessionLookupMethod, &wire.SessionRequest{SessionID: sessionID}, &out); err != nil {
		return domain.Entry{}, err
	}
	return out.Entry, nil
}

func (s *SessionClient) CreateEndpoint(ctx context.Context, sessionID domain.SessionID) (domain.Endpoint, error) {
	var out wire.EndpointResponse
	if err := s.invoke(ctx, wire.SessionCreateEndpointMethod, &wire.SessionRequest{SessionID: sessionID}, &out); err != nil {
		return domain.Endpoint{}, err
	}
	return out.Endpoint, nil
}

func (s *SessionClient) Release(ctx context.Context, sessionID domain.SessionID) error {
	return s.invoke(ctx, wire.SessionReleaseMethod, &wire.SessionRequest{SessionID: sessionID}, &wire.Empty{})
}

func (s *SessionClient) Resolve(ctx context.Context, sessionID domain.SessionID) (domain.HandleInfo, error) {
	var out wire.HandleResponse
	if err := s.invoke(ctx, wire.SessionResolveMethod, &wire.SessionRequest{SessionID: sessionID}, &out); err != nil {
		return domain.HandleInfo{}, err
	}
	return out.Handle, nil
}

// List returns the whole session table of the target.
func (s *SessionClient) List(ctx context.Context) (map[domain.SessionID]domain.Entry, error) {
	var out wire.SessionsResponse
	if err := s.invoke(ctx, wire.SessionListMethod, &wire.Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (s *SessionClient) invoke(ctx context.Context, method string, in, out any) error {
	cc, err := s.channel.conn(s.target)
	if err != nil {
		return err
	}
	return wire.FromStatus(cc.Invoke(ctx, method, in, out, wire.CallOption()))
}
