package emulator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

const (
	defaultRecoveryTimeout = 5 * time.Minute
	defaultPollInterval    = 5 * time.Second
)

// Relauncher restarts the device container after it stopped answering.
type Relauncher struct {
	// Start launches the host relaunch command. It should return once the
	// command is running.
	Start        func(ctx context.Context) error
	Timeout      time.Duration
	PollInterval time.Duration

	running   atomic.Bool
	lastStart time.Time
	lastBoot  time.Duration
}

// NewAoWRelauncher creates a Relauncher that reboots the AoW container in dir.
func NewAoWRelauncher(dir string, timeout time.Duration) *Relauncher {
	return &Relauncher{
		Start: func(context.Context) error {
			logger.Info("Rebooting AoW from %s", dir)
			_, err := StartHost(dir, Binary, RebootArgs()...)
			return err
		},
		Timeout:      timeout,
		PollInterval: defaultPollInterval,
	}
}

// Relaunch starts the relaunch command and waits for s to answer again.
// Calls made while a relaunch is already in progress return nil at once.
func (r *Relauncher) Relaunch(ctx context.Context, s device.Session) error {
	if r.Start == nil {
		return core.ErrRecoveryUnavailable
	}
	if !r.running.CompareAndSwap(false, true) {
		logger.Warn("Relaunch already in progress, skipping")
		return nil
	}
	defer r.running.Store(false)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRecoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.lastStart = time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.Start(gctx)
	})
	g.Go(func() error {
		return WaitForDevice(gctx, s, r.interval())
	})

	err := g.Wait()
	if err == nil {
		r.lastBoot = time.Since(r.lastStart)
		logger.Info("Device back after %v", r.lastBoot)
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrRecoveryTimeout.WithCause(err)
	}
	return err
}

// InProgress reports whether a relaunch is running.
func (r *Relauncher) InProgress() bool {
	return r.running.Load()
}

// LastBootDuration returns how long the last successful relaunch took.
func (r *Relauncher) LastBootDuration() time.Duration {
	return r.lastBoot
}

func (r *Relauncher) interval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return defaultPollInterval
}

// WaitForDevice polls s until it reports connected or ctx is done.
func WaitForDevice(ctx context.Context, s device.Session, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.IsConnected() {
			logger.Info("Device state ready")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
