package client

import (
	"comm-rendezvous/domain"
	"comm-rendezvous/infrastructure/grpc/wire"
	"context"
)

// Workers asks the scheduler for the live worker set, in join order.
func (c *Channel) Workers(ctx context.Context) ([]domain.Identity, error) {
	workers, err := c.Membership().Workers(ctx)
	if err != nil {
		return nil, errTopology(err)
	}
	return workers, nil
}

// MembershipClient calls the scheduler's membership service.
type MembershipClient struct {
	channel *Channel
	target  string
}

func (m *MembershipClient) Join(ctx context.Context, id domain.Identity) error {
	return m.invoke(ctx, wire.MembershipJoinMethod, &wire.JoinRequest{Worker: id}, &wire.Empty{})
}

func (m *MembershipClient) Heartbeat(ctx context.Context, id domain.Identity, stats domain.ProcessStats) error {
	return m.invoke(ctx, wire.MembershipHeartbeatMethod, &wire.HeartbeatRequest{Worker: id, Stats: stats}, &wire.Empty{})
}

func (m *MembershipClient) Leave(ctx context.Context, id domain.Identity) error {
	return m.invoke(ctx, wire.MembershipLeaveMethod, &wire.LeaveRequest{Worker: id}, &wire.Empty{})
}

func (m *MembershipClient) Workers(ctx context.Context) ([]domain.Identity, error) {
	var out wire.WorkersResponse
	if err := m.invoke(ctx, wire.MembershipWorkersMethod, &wire.Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

func (m *MembershipClient) Health(ctx context.Context) ([]domain.WorkerHealth, error) {
	var out wire.HealthResponse
	if err := m.invoke(ctx, wire.MembershipHealthMethod, &wire.Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

func (m *MembershipClient) invoke(ctx context.Context, method string, in, out any) error {
	cc, err := m.channel.conn(m.target)
	if err != nil {
		return err
	}
	return wire.FromStatus(cc.Invoke(ctx, method, in, out, wire.CallOption()))
}
