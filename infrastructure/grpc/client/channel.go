// Package client reaches the scheduler and the workers of a real cluster over gRPC.
package client

import (
	"comm-rendezvous/contract"
	"comm-rendezvous/domain"
	"comm-rendezvous/errors"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Channel implements contract.Channel over gRPC. One connection is kept per target
// and shared by every call to it.
type Channel struct {
	mu        sync.Mutex
	log       *slog.Logger
	scheduler string
	opts      []grpc.DialOption
	conns     map[string]*grpc.ClientConn
}

func NewChannel(log *slog.Logger, scheduler string, creds credentials.PerRPCCredentials) *Channel {
	return &Channel{
		log:       log,
		scheduler: scheduler,
		opts:      dialOptions(log, creds),
		conns:     make(map[string]*grpc.ClientConn),
	}
}

func (c *Channel) Scheduler() contract.Process {
	return c.Session(c.scheduler)
}

func (c *Channel) Worker(id domain.Identity) contract.Process {
	return c.Session(string(id))
}

// Session returns the session service client of any target.
func (c *Channel) Session(target string) *SessionClient {
	return &SessionClient{channel: c, target: target}
}

func (c *Channel) Membership() *MembershipClient {
	return &MembershipClient{channel: c, target: c.scheduler}
}

// SchedulerConn returns the connection to the scheduler, creating it if needed.
func (c *Channel) SchedulerConn() (*grpc.ClientConn, error) {
	return c.conn(c.scheduler)
}

func (c *Channel) conn(target string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.conns[target]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(target, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("client for %s: %w", target, err)
	}
	c.conns[target] = cc
	c.log.Debug("Connection opened", "target", target)
	return cc, nil
}

// Close closes every connection opened so far.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for target, cc := range c.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, err))
		}
		delete(c.conns, target)
	}
	return stderrors.Join(errs...)
}

// errTopology keeps the domain meaning of a failed listing whatever the transport said.
func errTopology(err error) error {
	if stderrors.Is(err, errors.ErrTopologyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", errors.ErrTopologyUnavailable, err)
}
