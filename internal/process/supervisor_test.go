package process

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStopAfterChildExitedDuringStartup(t *testing.T) {
	svc := NewService(ServiceConfig{
		Command:      "false",
		ReadyProbe:   func(context.Context) error { return errors.New("not ready") },
		ReadyTimeout: 10 * time.Second,
	}, nil)

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("a child that exits during startup must fail Start")
	}

	// The caller's deferred Stop runs after the startup failure; it must
	// return even though the child is long gone.
	done := make(chan struct{})
	go func() {
		svc.Stop()
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked after the child had already exited")
	}
}

func TestStopTerminatesRunningChild(t *testing.T) {
	svc := NewService(ServiceConfig{
		Command: "sleep",
		Args:    []string{"60"},
	}, nil)

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not terminate the child")
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	svc := NewService(ServiceConfig{Command: "sleep"}, nil)
	svc.Stop()
}

func TestStartUnknownCommand(t *testing.T) {
	svc := NewService(ServiceConfig{Command: "no-such-binary-anywhere"}, nil)
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("unknown command must fail Start")
	}
	svc.Stop()
}

func TestReadyTimeout(t *testing.T) {
	svc := NewService(ServiceConfig{
		Command:      "sleep",
		Args:         []string{"60"},
		ReadyProbe:   func(context.Context) error { return errors.New("never ready") },
		ReadyTimeout: 300 * time.Millisecond,
	}, nil)

	err := svc.Start(context.Background())
	if err == nil {
		t.Fatal("Start must fail when the probe never succeeds")
	}
	// waitReady already stopped the child; the deferred Stop must still
	// return immediately.
	svc.Stop()
}
