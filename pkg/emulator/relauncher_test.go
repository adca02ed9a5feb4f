package emulator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device/mock"
)

func TestLaunchArgs(t *testing.T) {
	args := LaunchArgs("com.example.app")
	if args[0] != "--launch-pkg-name" || args[1] != "com.example.app" {
		t.Errorf("LaunchArgs() = %v", args)
	}
	if len(args) != 10 {
		t.Errorf("expected 10 args, got %d", len(args))
	}
	if RebootArgs()[1] != "com.android.settings" {
		t.Errorf("RebootArgs() = %v", RebootArgs())
	}
}

func TestRelaunch_DeviceReturns(t *testing.T) {
	s := mock.New()
	s.DisconnectAfter(0)

	var started atomic.Int32
	r := &Relauncher{
		Start: func(context.Context) error {
			started.Add(1)
			s.DisconnectAfter(-1)
			return nil
		},
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}

	if err := r.Relaunch(context.Background(), s); err != nil {
		t.Fatalf("Relaunch failed: %v", err)
	}
	if started.Load() != 1 {
		t.Errorf("Start called %d times", started.Load())
	}
	if r.InProgress() {
		t.Error("relaunch should be finished")
	}
}

func TestRelaunch_Timeout(t *testing.T) {
	s := mock.New()
	s.DisconnectAfter(0)

	r := &Relauncher{
		Start:        func(context.Context) error { return nil },
		Timeout:      20 * time.Millisecond,
		PollInterval: time.Millisecond,
	}

	err := r.Relaunch(context.Background(), s)
	if !errors.Is(err, core.ErrRecoveryTimeout) {
		t.Fatalf("expected ErrRecoveryTimeout, got %v", err)
	}
}

func TestRelaunch_StartFails(t *testing.T) {
	s := mock.New()
	s.DisconnectAfter(0)
	boom := errors.New("launcher missing")

	r := &Relauncher{
		Start:        func(context.Context) error { return boom },
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}
	if err := r.Relaunch(context.Background(), s); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
}

func TestRelaunch_Reentrant(t *testing.T) {
	s := mock.New()
	s.DisconnectAfter(0)

	release := make(chan struct{})
	entered := make(chan struct{})
	var started atomic.Int32
	r := &Relauncher{
		Start: func(context.Context) error {
			started.Add(1)
			close(entered)
			<-release
			s.DisconnectAfter(-1)
			return nil
		},
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- r.Relaunch(context.Background(), s) }()
	<-entered

	if err := r.Relaunch(context.Background(), s); err != nil {
		t.Errorf("nested Relaunch should return nil, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Relaunch failed: %v", err)
	}
	if started.Load() != 1 {
		t.Errorf("Start called %d times, want 1", started.Load())
	}
}

func TestRelaunch_Unavailable(t *testing.T) {
	r := &Relauncher{}
	if err := r.Relaunch(context.Background(), mock.New()); !errors.Is(err, core.ErrRecoveryUnavailable) {
		t.Errorf("expected ErrRecoveryUnavailable, got %v", err)
	}
}

func TestWaitForDevice_Cancelled(t *testing.T) {
	s := mock.New()
	s.DisconnectAfter(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitForDevice(ctx, s, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
