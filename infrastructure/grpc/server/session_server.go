package server

import (
	"comm-rendezvous/infrastructure/grpc/wire"
	"comm-rendezvous/runtime"
	"context"
	"log/slog"
)

// SessionServer exposes a process's Agent to the rest of the cluster.
// Each handler is a thin translation: the agent does the work, errors leave as status codes.
type SessionServer struct {
	log   *slog.Logger
	agent *runtime.Agent
}

func NewSessionServer(log *slog.Logger, agent *runtime.Agent) *SessionServer {
	return &SessionServer{log: log, agent: agent}
}

func (s *SessionServer) Register(ctx context.Context, req *wire.RegisterRequest) (*wire.Empty, error) {
	if err := s.agent.Register(ctx, req.SessionID, req.Entry); err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *SessionServer) Generate(ctx context.Context, req *wire.GenerateRequest) (*wire.GroupIDResponse, error) {
	gid, err := s.agent.Generate(ctx, req.SessionID, req.Rank, req.Size)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.GroupIDResponse{GroupID: gid}, nil
}

func (s *SessionServer) Fetch(ctx context.Context, req *wire.FetchRequest) (*wire.GroupIDResponse, error) {
	gid, err := s.agent.Fetch(ctx, req.SessionID, req.Source, req.Rank, req.Size)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.GroupIDResponse{GroupID: gid}, nil
}

func (s *SessionServer) Lookup(ctx context.Context, req *wire.SessionRequest) (*wire.EntryResponse, error) {
	entry, err := s.agent.Lookup(ctx, req.SessionID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.EntryResponse{Entry: entry}, nil
}

func (s *SessionServer) CreateEndpoint(ctx context.Context, req *wire.SessionRequest) (*wire.EndpointResponse, error) {
	ep, err := s.agent.CreateEndpoint(ctx, req.SessionID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.EndpointResponse{Endpoint: ep}, nil
}

func (s *SessionServer) Release(ctx context.Context, req *wire.SessionRequest) (*wire.Empty, error) {
	if err := s.agent.Release(ctx, req.SessionID); err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *SessionServer) Resolve(ctx context.Context, req *wire.SessionRequest) (*wire.HandleResponse, error) {
	info, err := s.agent.Resolve(ctx, req.SessionID)
	if err != nil {
		return nil, wire.ToStatus(err)
	}
	return &wire.HandleResponse{Handle: info}, nil
}

func (s *SessionServer) List(_ context.Context, _ *wire.Empty) (*wire.SessionsResponse, error) {
	sessions, err := s.agent.State().Snapshot()
	if err != nil {
		s.log.Error("Session snapshot failed", "error", err)
		return nil, wire.ToStatus(err)
	}
	return &wire.SessionsResponse{Sessions: sessions}, nil
}
