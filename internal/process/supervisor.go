// Package process manages the dependent storage service and the long-running
// node service a bootstrapped node hands off to.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ServiceConfig describes a storage service to launch as a child process.
type ServiceConfig struct {
	// Command and Args form the child command line, e.g. "redis-server".
	Command string
	Args    []string
	// ReadyProbe reports whether the service accepts connections. It is
	// polled until success or ReadyTimeout.
	ReadyProbe func(ctx context.Context) error
	// ReadyTimeout bounds the readiness wait; defaults to 15 seconds.
	ReadyTimeout time.Duration
}

// Service supervises one storage service child process.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger

	cmd      *exec.Cmd
	done     chan struct{} // closed once the child has exited
	waitErr  error         // valid after done is closed
	stopOnce sync.Once
}

// NewService creates a supervisor for the configured command.
func NewService(cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	return &Service{cfg: cfg, logger: logger}
}

// Start launches the child process and blocks until it is ready. A child
// that exits or never becomes ready within the timeout is a startup failure.
func (s *Service) Start(ctx context.Context) error {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.cfg.Command, err)
	}
	s.cmd = cmd
	s.done = make(chan struct{})
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()

	s.logger.Info("storage service started", "command", s.cfg.Command, "pid", cmd.Process.Pid)

	if s.cfg.ReadyProbe == nil {
		return nil
	}
	return s.waitReady(ctx)
}

func (s *Service) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.ReadyTimeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.cfg.ReadyProbe(ctx); err == nil {
			s.logger.Info("storage service ready", "command", s.cfg.Command)
			return nil
		}

		select {
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("%s exited during startup: %v", s.cfg.Command, s.waitErr)
		case <-ticker.C:
			if time.Now().After(deadline) {
				s.Stop()
				return fmt.Errorf("%s did not become ready within %s", s.cfg.Command, s.cfg.ReadyTimeout)
			}
		}
	}
}

// Stop terminates the child process and waits for it to exit. It is safe to
// call more than once and after the child has already exited.
func (s *Service) Stop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	s.stopOnce.Do(func() {
		select {
		case <-s.done:
			// Child is already gone, nothing to signal.
		default:
			if err := s.cmd.Process.Signal(os.Interrupt); err != nil {
				s.cmd.Process.Kill()
			}
			select {
			case <-s.done:
			case <-time.After(5 * time.Second):
				s.cmd.Process.Kill()
				<-s.done
			}
		}
		s.logger.Info("storage service stopped", "command", s.cfg.Command)
	})
}
