package main

import (
	"comm-rendezvous/auth"
	"comm-rendezvous/domain"
	"comm-rendezvous/infrastructure/grpc/client"
	"comm-rendezvous/infrastructure/grpc/server"
	"comm-rendezvous/infrastructure/grpc/wire"
	"comm-rendezvous/internal"
	"comm-rendezvous/native"
	"comm-rendezvous/runtime"
	"comm-rendezvous/runtime/workers"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Worker terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run serves the session functions of one worker and keeps it in the scheduler's live set.
// The worker joins only once its own server listens, so a client listing it can reach it.
func run() (int, error) {
	_ = godotenv.Load()
	config, err := internal.LoadWorkerConfig()
	if err != nil {
		return exitConfig, err
	}
	id := domain.Identity(config.AdvertiseAddr)
	logger := logs.GetLoggerFromString(config.LogLevel).With("worker", id)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := internal.OpenSessionStore(config.Store, logger)
	if err != nil {
		return exitConfig, err
	}
	defer closeStore()

	tokens := auth.NewTokenManager(config.ClusterSecret, config.TokenDuration)
	channel := client.NewChannel(logger, config.SchedulerAddr,
		auth.NewBearerCredentials(tokens, string(id), auth.RoleWorker))
	defer func() { _ = channel.Close() }()

	agent := runtime.NewAgent(logger, string(id), store, native.NewSimulated(logger, string(id)), channel)

	if config.DebugPort > 0 {
		debug := internal.StartDebugServer(logger, config.DebugPort, string(id), agent.State().Snapshot, nil)
		defer func() { _ = debug.Close() }()
	}

	// 1. gRPC Server Setup
	listener, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", config.ListenAddr, err)
	}
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			auth.UnaryServerInterceptor(tokens),
		))
	wire.RegisterSessionServer(s, server.NewSessionServer(logger, agent))

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gRPC server", "address", config.ListenAddr, "advertise", id, "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 2. Join the scheduler
	if err := join(ctx, channel, id, config.JoinTimeout); err != nil {
		s.Stop()
		return exitRuntime, err
	}
	logger.Info("Joined scheduler", "scheduler", config.SchedulerAddr)

	// 3. Heartbeats
	sessions := func() int {
		snapshot, err := agent.State().Snapshot()
		if err != nil {
			return 0
		}
		return len(snapshot)
	}
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewHeartbeatWorker(logger, id, channel.Membership(), config.HeartbeatInterval, sessions))
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 4. Leave before stopping so no new session lists this worker.
	leaveCtx, cancel := context.WithTimeout(context.Background(), config.JoinTimeout)
	defer cancel()
	if err := channel.Membership().Leave(leaveCtx, id); err != nil {
		logger.Warn("Leave failed, the scheduler will reap this worker", "error", err)
	}

	logger.Info("Shutting down gracefully...")
	s.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func join(ctx context.Context, channel *client.Channel, id domain.Identity, timeout time.Duration) error {
	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := channel.SchedulerConn()
	if err != nil {
		return err
	}
	if err := client.WaitReady(joinCtx, conn); err != nil {
		return fmt.Errorf("scheduler unavailable: %w", err)
	}
	return channel.Membership().Join(joinCtx, id)
}
