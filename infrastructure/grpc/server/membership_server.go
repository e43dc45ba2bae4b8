package server

import (
	"comm-rendezvous/infrastructure/grpc/wire"
	"comm-rendezvous/runtime"
	"context"
	"log/slog"
)

// MembershipServer lets workers join the scheduler and clients list the live set.
type MembershipServer struct {
	log        *slog.Logger
	membership *runtime.Membership
}

func NewMembershipServer(log *slog.Logger, membership *runtime.Membership) *MembershipServer {
	return &MembershipServer{log: log, membership: membership}
}

func (s *MembershipServer) Join(_ context.Context, req *wire.JoinRequest) (*wire.Empty, error) {
	s.membership.Join(req.Worker)
	return &wire.Empty{}, nil
}

func (s *MembershipServer) Heartbeat(_ context.Context, req *wire.HeartbeatRequest) (*wire.Empty, error) {
	if err := s.membership.Heartbeat(req.Worker, req.Stats); err != nil {
		s.log.Warn("Heartbeat from unknown worker", "worker", req.Worker)
		return nil, wire.ToStatus(err)
	}
	return &wire.Empty{}, nil
}

func (s *MembershipServer) Leave(_ context.Context, req *wire.LeaveRequest) (*wire.Empty, error) {
	s.membership.Leave(req.Worker)
	return &wire.Empty{}, nil
}

func (s *MembershipServer) Workers(_ context.Context, _ *wire.Empty) (*wire.WorkersResponse, error) {
	return &wire.WorkersResponse{Workers: s.membership.Live()}, nil
}

func (s *MembershipServer) Health(_ context.Context, _ *wire.Empty) (*wire.HealthResponse, error) {
	return &wire.HealthResponse{Workers: s.membership.Snapshot()}, nil
}
