package sidechannel

import (
	"context"

	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// PerfHook is invoked at performance-collection checkpoints.
type PerfHook func(ctx context.Context, pkg string, offset float64) error

// RunPerf calls hook if set. A nil hook is a no-op.
func RunPerf(ctx context.Context, hook PerfHook, pkg string, offset float64) error {
	if hook == nil {
		logger.Debug("perf checkpoint at %.4f for %s: no collector", offset, pkg)
		return nil
	}
	return hook(ctx, pkg, offset)
}
