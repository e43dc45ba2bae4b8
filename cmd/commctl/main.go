// Command commctl drives a running cluster from the client side: it lists workers,
// bootstraps and splits communication groups, and dumps the session table of any process.
package main

import (
	"comm-rendezvous/auth"
	"comm-rendezvous/comms"
	"comm-rendezvous/domain"
	"comm-rendezvous/infrastructure/grpc/client"
	"comm-rendezvous/native"
	"comm-rendezvous/runtime"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const usage = `usage: commctl <command> [flags]

commands:
  workers              list the workers known to the scheduler
  sessions <target>    dump the session table of a worker or of the scheduler
  bootstrap [-keep]    create a group over the live workers, initialize it and check every handle
  split [-colors n]    bootstrap a group, split it by rank modulo n, then destroy everything
`

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "commctl: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return exitConfig, nil
	}

	_ = godotenv.Load()
	config, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	placement, err := domain.ParsePlacement(config.Placement)
	if err != nil {
		return exitConfig, err
	}

	level := "WARN"
	if config.Verbose {
		level = "DEBUG"
	}
	logger := logs.GetLoggerFromString(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewTokenManager(config.ClusterSecret, config.TokenDuration)
	channel := client.NewChannel(logger, config.SchedulerAddr, auth.NewBearerCredentials(tokens, "commctl", auth.RoleClient))
	defer func() { _ = channel.Close() }()

	app := &app{
		log:     logger,
		config:  config,
		channel: channel,
		out:     newPrinter(os.Stdout, config.Colours),
		options: comms.Options{Placement: placement, P2P: config.P2P, Verbose: config.Verbose},
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "workers":
		err = app.workers(ctx)
	case "sessions":
		err = app.sessions(ctx, rest)
	case "bootstrap":
		err = app.bootstrap(ctx, rest)
	case "split":
		err = app.split(ctx, rest)
	default:
		fmt.Fprint(os.Stderr, usage)
		return exitConfig, fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

type app struct {
	log     *slog.Logger
	config  Config
	channel *client.Channel
	out     *printer
	options comms.Options
}

// coordinator builds the client side of the protocol: a local agent holding the
// client's own copy of every session and a coordinator reaching the cluster.
func (a *app) coordinator() *comms.Coordinator {
	local := runtime.NewAgent(a.log, "client", runtime.NewMemoryStore(), native.NewSimulated(a.log, "client"), a.channel)
	return comms.NewCoordinator(a.log, a.channel, local, a.config.Timeout)
}

func (a *app) workers(ctx context.Context) error {
	health, err := a.channel.Membership().Health(ctx)
	if err != nil {
		return err
	}
	a.out.workers(health)
	return nil
}

func (a *app) sessions(ctx context.Context, args []string) error {
	target := a.config.SchedulerAddr
	if len(args) > 0 {
		target = args[0]
	}
	table, err := a.channel.Session(target).List(ctx)
	if err != nil {
		return err
	}
	a.out.header(fmt.Sprintf("Sessions on %s", target))
	a.out.sessions(table)
	return nil
}

func (a *app) bootstrap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	keep := fs.Bool("keep", false, "leave the group alive instead of destroying it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	group, err := comms.NewCommGroup(ctx, a.coordinator(), a.options)
	if err != nil {
		return err
	}
	if err := group.Init(ctx); err != nil {
		_ = group.Destroy(ctx)
		return err
	}
	if err := a.report(ctx, group); err != nil {
		_ = group.Destroy(ctx)
		return err
	}
	if *keep {
		a.out.info(fmt.Sprintf("Group %s kept alive", group.SessionID()))
		return nil
	}
	return a.destroy(ctx, group)
}

func (a *app) split(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	colors := fs.Int("colors", 2, "number of sub-groups")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *colors <= 0 {
		return fmt.Errorf("colors must be positive, got %d", *colors)
	}

	coordinator := a.coordinator()
	parent, err := comms.NewCommGroup(ctx, coordinator, a.options)
	if err != nil {
		return err
	}
	defer func() { _ = a.destroy(ctx, parent) }()
	if err := parent.Init(ctx); err != nil {
		return err
	}
	if err := a.report(ctx, parent); err != nil {
		return err
	}

	keys := make(map[domain.Identity]domain.SplitKey)
	for rank, id := range parent.Participants() {
		keys[id] = domain.SplitKey{Color: rank % *colors, Key: rank}
	}
	children, err := comms.NewSplitCoordinator(a.log, coordinator).Split(ctx, parent, keys)
	if err != nil {
		return err
	}
	for color := 0; color < *colors; color++ {
		child, ok := children[color]
		if !ok {
			continue
		}
		a.out.info(fmt.Sprintf("Color %d", color))
		if err := a.report(ctx, child); err != nil {
			return err
		}
		if err := a.destroy(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// report prints the rank table of group along with the handle each worker resolved.
func (a *app) report(ctx context.Context, group *comms.CommGroup) error {
	ranks, err := group.Describe()
	if err != nil {
		return err
	}
	handles := make(map[domain.Identity]domain.HandleInfo, len(ranks))
	for id := range ranks {
		info, err := a.channel.Worker(id).Resolve(ctx, group.SessionID())
		if err != nil {
			return fmt.Errorf("handle check on %s: %w", id, err)
		}
		handles[id] = info
	}
	a.out.header(fmt.Sprintf("Group %s (%s, p2p=%t) %s",
		group.SessionID(), group.Placement(), group.P2P(), group.GroupID().Fingerprint()))
	a.out.ranks(group.Participants(), handles)
	return nil
}

func (a *app) destroy(ctx context.Context, group *comms.CommGroup) error {
	if err := group.Destroy(ctx); err != nil {
		a.out.warn(err.Error())
		return err
	}
	a.out.info(fmt.Sprintf("Group %s destroyed", group.SessionID()))
	return nil
}
