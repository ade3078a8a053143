// Package bootstrap brings a node from a bare configuration to a running
// state through a fixed sequence of idempotent steps.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuulee/bigchaindb/internal/backend"
	"github.com/cuulee/bigchaindb/internal/config"
	"github.com/cuulee/bigchaindb/internal/identity"
	"github.com/cuulee/bigchaindb/internal/transaction"
)

// ErrKeypairMissing signals that the node has no keypair configured and
// temporary keypairs were not allowed.
var ErrKeypairMissing = errors.New("no keypair found, configure the node or allow a temporary keypair")

// State is the bootstrap progression of a node. States only ever advance.
type State int

const (
	StateUnconfigured State = iota
	StateKeypairReady
	StateServiceStarted
	StateDatabaseInitialized
	StateGenesisCreated
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateKeypairReady:
		return "keypair-ready"
	case StateServiceStarted:
		return "service-started"
	case StateDatabaseInitialized:
		return "database-initialized"
	case StateGenesisCreated:
		return "genesis-created"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ServiceStarter starts a dependent storage service and blocks until it
// accepts connections or fails.
type ServiceStarter interface {
	Start(ctx context.Context) error
}

// Handoff is the long-running node service entered once bootstrap completes.
// It owns the process until the context is cancelled.
type Handoff func(ctx context.Context, id *identity.Identity, be backend.Backend) error

// ConnectFunc opens the storage backend. It is called only after the
// dependent service, if any, is up.
type ConnectFunc func(ctx context.Context) (backend.Backend, error)

// Options controls one bootstrap run.
type Options struct {
	// AllowTempKeypair generates a throwaway keypair when none is
	// configured instead of failing.
	AllowTempKeypair bool
	// Service, when non-nil, is started before the database is touched.
	Service ServiceStarter
	// Handoff receives control after the sequence completes. A nil handoff
	// ends the run at StateGenesisCreated.
	Handoff Handoff
}

// Sequencer runs the bootstrap sequence for one node.
type Sequencer struct {
	cfg     *config.Config
	connect ConnectFunc
	logger  *slog.Logger

	state    State
	existing bool
}

// NewSequencer creates a bootstrap sequencer starting at StateUnconfigured.
func NewSequencer(cfg *config.Config, connect ConnectFunc, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{cfg: cfg, connect: connect, logger: logger, state: StateUnconfigured}
}

// State returns the furthest state the sequencer has reached.
func (s *Sequencer) State() State {
	return s.state
}

// DatabaseExisted reports whether the last run found an already-initialized
// database and skipped the genesis step.
func (s *Sequencer) DatabaseExisted() bool {
	return s.existing
}

// Run executes the bootstrap sequence. Every step either advances the state
// or fails the run; an already-initialized database is not a failure, the
// genesis step is skipped and the sequence continues.
func (s *Sequencer) Run(ctx context.Context, opts Options) error {
	id, err := s.ensureKeypair(opts.AllowTempKeypair)
	if err != nil {
		return err
	}
	s.state = StateKeypairReady

	if opts.Service != nil {
		s.logger.Info("starting storage service")
		if err := opts.Service.Start(ctx); err != nil {
			return fmt.Errorf("failed to start storage service: %w", err)
		}
	}
	s.state = StateServiceStarted

	be, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to backend: %w", err)
	}
	defer be.Close()

	fresh := true
	if err := be.InitDatabase(ctx); err != nil {
		if !errors.Is(err, backend.ErrDatabaseExists) {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		s.logger.Info("database already initialized, skipping genesis")
		fresh = false
		s.existing = true
	}
	s.state = StateDatabaseInitialized

	if fresh {
		if err := s.createGenesis(ctx, be, id); err != nil {
			return err
		}
	}
	s.state = StateGenesisCreated

	if opts.Handoff == nil {
		return nil
	}

	s.state = StateRunning
	s.logger.Info("bootstrap complete, starting node", "public_key", id.PublicKey())
	return opts.Handoff(ctx, id, be)
}

// ensureKeypair resolves the node identity from configuration, optionally
// generating a temporary keypair for throwaway deployments.
func (s *Sequencer) ensureKeypair(allowTemp bool) (*identity.Identity, error) {
	if s.cfg.Keypair.Public != "" {
		id, err := identity.FromKeys(s.cfg.Keypair.Public, s.cfg.Keypair.Private)
		if err != nil {
			return nil, fmt.Errorf("invalid configured keypair: %w", err)
		}
		if allowTemp {
			s.logger.Warn("keypair found in configuration, ignoring temporary keypair request")
		}
		return id, nil
	}

	if !allowTemp {
		return nil, ErrKeypairMissing
	}

	id, err := identity.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate temporary keypair: %w", err)
	}
	s.logger.Warn("using a temporary keypair, it will not survive a restart",
		"public_key", id.PublicKey())
	return id, nil
}

// createGenesis writes the genesis record. Losing the creation race to a
// concurrent node is absorbed by the backend; any other failure is fatal
// because a fresh database without a genesis record is unusable.
func (s *Sequencer) createGenesis(ctx context.Context, be backend.Backend, id *identity.Identity) error {
	exists, err := be.GenesisExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for genesis record: %w", err)
	}
	if exists {
		s.logger.Info("genesis record already present")
		return nil
	}

	tx := transaction.NewGenesis(id.PublicKey())
	if id.CanSign() {
		if err := tx.Sign(id); err != nil {
			return fmt.Errorf("failed to sign genesis transaction: %w", err)
		}
	} else if err := tx.AssignID(); err != nil {
		return fmt.Errorf("failed to build genesis transaction: %w", err)
	}
	if err := be.CreateGenesis(ctx, tx); err != nil {
		return fmt.Errorf("failed to create genesis record: %w", err)
	}
	s.logger.Info("genesis record created", "tx_id", tx.ID)
	return nil
}
