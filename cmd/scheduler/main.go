package main

import (
	"comm-rendezvous/auth"
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

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const processName = "scheduler"

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scheduler terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the scheduler: worker membership, the session state it holds as root of
// scheduler-placed sessions, and the gRPC server exposing both.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadSchedulerConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel).With("process", processName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Session state
	store, closeStore, err := internal.OpenSessionStore(config.Store, logger)
	if err != nil {
		return exitConfig, err
	}
	defer closeStore()

	tokens := auth.NewTokenManager(config.ClusterSecret, config.TokenDuration)
	channel := client.NewChannel(logger, config.ListenAddr,
		auth.NewBearerCredentials(tokens, processName, auth.RoleScheduler))
	defer func() { _ = channel.Close() }()

	agent := runtime.NewAgent(logger, processName, store, native.NewSimulated(logger, processName), channel)
	membership := runtime.NewMembership(logger, config.HeartbeatTTL)

	// 3. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewReaperWorker(logger, membership, config.ReapInterval))
	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	if config.DebugPort > 0 {
		debug := internal.StartDebugServer(logger, config.DebugPort, processName,
			agent.State().Snapshot, membership.Snapshot)
		defer func() { _ = debug.Close() }()
	}

	// 4. gRPC Server Setup
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
	wire.RegisterMembershipServer(s, server.NewMembershipServer(logger, membership))

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting gRPC server", "address", config.ListenAddr, "at", time.Now().UTC())
		for serviceName := range s.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 5. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	logger.Info("Shutting down gracefully...")
	s.GracefulStop()
	sup.Stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}
