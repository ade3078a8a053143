// Command bigchaindb is the administrative control surface for a ledger
// node: configuration, bootstrap, topology changes and load generation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/backend/clusterdb"
	_ "github.com/cuulee/bigchaindb/internal/backend/redisdb"
	_ "github.com/cuulee/bigchaindb/internal/backend/sqlitedb"
	"github.com/cuulee/bigchaindb/internal/bootstrap"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/identity"
	"github.com/cuulee/bigchaindb/internal/load"
	"github.com/cuulee/bigchaindb/internal/process"
	"github.com/cuulee/bigchaindb/internal/stats"
	"github.com/cuulee/bigchaindb/internal/topology"
)

const usage = `Usage: bigchaindb [--config PATH] [--log-level LEVEL] COMMAND [ARGS]

Commands:
  configure <backend>    generate a keypair and write the node configuration
  show-config            print the configuration with secrets redacted
  export-my-pubkey       print this node's public key
  init                   initialize the database and create the genesis record
  drop                   drop the database
  start                  bootstrap the node and run it
  set-shards <n>         redistribute data across n shards
  set-replicas <n>       set the replication factor to n
  add-replicas <h:p>...  add members to the replica set
  remove-replicas <h:p>... remove members from the replica set
  load                   generate a synthetic transaction load
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("bigchaindb", flag.ExitOnError)
	configPath := global.String("config", config.DefaultPath(), "path to the configuration file")
	logLevel := global.String("log-level", "", "log level: debug, info, warn, error")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(args)

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	cmd, cmdArgs := rest[0], rest[1:]

	if cmd == "configure" {
		// The only command that runs without an existing config file.
		setupLogger(*logLevel)
		return runConfigure(*configPath, cmdArgs)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "show-config":
		return runShowConfig(cfg)
	case "export-my-pubkey":
		return runExportPubkey(cfg)
	case "init":
		return runInit(ctx, cfg, logger)
	case "drop":
		return runDrop(ctx, cfg, cmdArgs, logger)
	case "start":
		return runStart(ctx, cfg, cmdArgs, logger)
	case "set-shards":
		return runSetShards(ctx, cfg, cmdArgs, logger)
	case "set-replicas":
		return runSetReplicas(ctx, cfg, cmdArgs, logger)
	case "add-replicas":
		return runReplicaChange(ctx, cfg, cmdArgs, logger, true)
	case "remove-replicas":
		return runReplicaChange(ctx, cfg, cmdArgs, logger, false)
	case "load":
		return runLoad(ctx, cfg, cmdArgs, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		global.Usage()
		return 2
	}
}

// setupLogger installs the process-wide JSON logger on stderr so that stdout
// stays reserved for command results.
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func connect(cfg *config.Config) (backend.Backend, error) {
	return backend.Connect(cfg.Database)
}

func runConfigure(path string, args []string) int {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	yes := fs.Bool("yes", false, "do not prompt before overwriting an existing configuration")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: bigchaindb configure <%s>\n", strings.Join(backend.Registered(), "|"))
		return 2
	}

	cfg, err := config.Default(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if path != "-" && !*yes {
		if _, err := os.Stat(path); err == nil {
			ok := confirm(fmt.Sprintf("Config file `%s` exists, do you want to override it? (cannot be undone)", path))
			if !ok {
				fmt.Fprintln(os.Stderr, "Configuration left untouched.")
				return 0
			}
		}
	}

	id, err := identity.Generate()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg.Keypair.Public = id.PublicKey()
	cfg.Keypair.Private = id.PrivateKeyHex()

	if err := cfg.Write(path); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if path != "-" {
		fmt.Fprintf(os.Stderr, "Configuration written to %s\n", path)
	}
	fmt.Fprintln(os.Stderr, "Ready to go!")
	return 0
}

func runShowConfig(cfg *config.Config) int {
	if err := cfg.Redacted().Write("-"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runExportPubkey(cfg *config.Config) int {
	if cfg.Keypair.Public == "" {
		fmt.Fprintln(os.Stderr, "This node's public key wasn't set anywhere so it can't be exported")
		return 1
	}
	fmt.Println(cfg.Keypair.Public)
	return 0
}

func runInit(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	seq := bootstrap.NewSequencer(cfg, func(context.Context) (backend.Backend, error) {
		return connect(cfg)
	}, logger)

	if err := seq.Run(ctx, bootstrap.Options{}); err != nil {
		if errors.Is(err, bootstrap.ErrKeypairMissing) {
			fmt.Fprintln(os.Stderr, "Can't initialize the database, no keypair found. Did you run `bigchaindb configure`?")
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if seq.DatabaseExisted() {
		fmt.Fprintln(os.Stderr, "The database already exists.")
		fmt.Fprintln(os.Stderr, "If you wish to re-initialize it, first drop it.")
	}
	return 0
}

func runDrop(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	fs.Parse(args)

	if !*yes {
		if !confirm(fmt.Sprintf("Do you want to drop `%s` database?", cfg.Database.Name)) {
			fmt.Fprintln(os.Stderr, "Drop cancelled.")
			return 0
		}
	}

	be, err := connect(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer be.Close()

	if err := be.DropDatabase(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger.Info("database dropped", "name", cfg.Database.Name)
	return 0
}

func runStart(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	allowTemp := fs.Bool("dev-allow-temp-keypair", false, "generate a temporary keypair if none is configured")
	startStorage := fs.Bool("dev-start-storage", false, "start the storage service as a child process")
	fs.Parse(args)

	opts := bootstrap.Options{
		AllowTempKeypair: *allowTemp,
		Handoff: func(ctx context.Context, id *identity.Identity, be backend.Backend) error {
			node := process.NewNode(time.Duration(cfg.BacklogReassignDelay)*time.Second, logger)
			return node.Run(ctx, id, be)
		},
	}

	if *startStorage {
		svc, err := storageService(cfg, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer svc.Stop()
		opts.Service = svc
	}

	seq := bootstrap.NewSequencer(cfg, func(context.Context) (backend.Backend, error) {
		return connect(cfg)
	}, logger)

	if err := seq.Run(ctx, opts); err != nil {
		if errors.Is(err, bootstrap.ErrKeypairMissing) {
			fmt.Fprintln(os.Stderr, "Can't start the node, no keypair found. Did you run `bigchaindb configure`?")
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// storageService maps the configured backend to a launchable child process.
func storageService(cfg *config.Config, logger *slog.Logger) (*process.Service, error) {
	switch cfg.Database.Backend {
	case config.BackendRedis:
		return process.NewService(process.ServiceConfig{
			Command: "redis-server",
			Args:    []string{"--port", redisPort(cfg.Database.Addr)},
			ReadyProbe: func(context.Context) error {
				be, err := backend.Connect(cfg.Database)
				if err != nil {
					return err
				}
				return be.Close()
			},
		}, logger), nil
	default:
		return nil, fmt.Errorf("backend %s has no startable storage service", cfg.Database.Backend)
	}
}

func redisPort(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i+1:]
	}
	return "6379"
}

func runSetShards(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	n, ok := parseCount(args, "set-shards")
	if !ok {
		return 2
	}
	if n <= 0 {
		fmt.Fprintf(os.Stderr, "shard count must be positive, got %d\n", n)
		return 0
	}
	return runTopology(cfg, logger, func(admin *topology.Admin) error {
		return admin.SetShards(ctx, n)
	})
}

func runSetReplicas(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	n, ok := parseCount(args, "set-replicas")
	if !ok {
		return 2
	}
	if n <= 0 {
		fmt.Fprintf(os.Stderr, "replica count must be positive, got %d\n", n)
		return 0
	}
	return runTopology(cfg, logger, func(admin *topology.Admin) error {
		return admin.SetReplicas(ctx, n)
	})
}

func runReplicaChange(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger, add bool) int {
	members, err := topology.ParseMembers(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return runTopology(cfg, logger, func(admin *topology.Admin) error {
		if add {
			return admin.AddReplicas(ctx, members)
		}
		return admin.RemoveReplicas(ctx, members)
	})
}

// runTopology applies one topology operation. Backend rejections are
// reported to the operator without a failure exit: the cluster state is
// simply unchanged.
func runTopology(cfg *config.Config, logger *slog.Logger, op func(*topology.Admin) error) int {
	be, err := connect(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer be.Close()

	if err := op(topology.NewAdmin(be, logger)); err != nil {
		var opErr *backend.OperationError
		if errors.Is(err, backend.ErrReplicaSetsUnsupported) || errors.As(err, &opErr) {
			fmt.Fprintln(os.Stderr, err)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func parseCount(args []string, cmd string) (int, bool) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: bigchaindb %s <n>\n", cmd)
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid count %q\n", args[0])
		return 0, false
	}
	return n, true
}

func runLoad(ctx context.Context, cfg *config.Config, args []string, logger *slog.Logger) int {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	workers := fs.Int("m", 1, "number of workers, 0 uses all CPUs")
	fs.IntVar(workers, "multiprocess", 1, "number of workers, 0 uses all CPUs")
	count := fs.Int64("c", 0, "total number of transactions, 0 runs until interrupted")
	fs.Int64Var(count, "count", 0, "total number of transactions, 0 runs until interrupted")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address during the run")
	fs.Parse(args)

	id, err := identity.FromKeys(cfg.Keypair.Public, cfg.Keypair.Private)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	be, err := connect(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer be.Close()

	st := stats.New()
	gen, err := load.New(be, id, st, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := stats.RegisterPrometheus(reg, st); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		go stats.ServeMetrics(runCtx, *metricsAddr, reg, logger)
	}

	if cfg.Database.Backend == config.BackendCluster && cfg.Database.EventsURL != "" {
		events := clusterdb.NewEventStream(cfg.Database.EventsURL, logger)
		go func() {
			if err := events.Run(runCtx, func(clusterdb.CommitEvent) { st.IncCommitted() }); err != nil && runCtx.Err() == nil {
				logger.Error("commit event stream failed", "error", err)
			}
		}()
	}

	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		stats.NewReporter(st, time.Second, logger).Run(runCtx)
	}()

	if *workers == 0 {
		*workers = runtime.NumCPU()
	}
	err = gen.Run(ctx, load.Config{Workers: *workers, Count: *count})
	stop()
	<-reporterDone

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	snap := st.Snapshot()
	fmt.Printf("%d transactions submitted, %d failed, %d committed in %s\n",
		snap.Transactions, snap.Failures, snap.Committed, snap.Elapsed.Round(time.Millisecond))
	return 0
}

// confirm asks a yes/no question on stderr and reads the answer from stdin.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
