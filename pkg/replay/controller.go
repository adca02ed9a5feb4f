// Package replay drives one replay run on the device under test: it launches
// the app, starts the event player, captures UI state at every checkpoint and
// watches for device and app crashes.
package replay

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/emulator"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
	"github.com/devicelab-dev/replay-runner/pkg/sidechannel"
)

// Config configures a Controller.
type Config struct {
	RootPrefix string // Root shell prefix on ARM devices, empty otherwise
	Eventrec   string // Event player binary name under DeviceTmp

	Speed        float64
	SpeedControl bool // Player supports -s (not on ARM builds)
	AxisMaxes    [4]int
	UseAxisMaxes bool

	AoWPath        string   // Launch through the AoW host launcher when set
	KeepAppRunning bool     // Skip force-stop after the run (integration mode)
	Companions     []string // Packages that may hold focus during a run

	WarmupChecks   int           // Default 10
	WarmupInterval time.Duration // Default 1s
	PollInterval   time.Duration // Default 100ms

	// Live progress callbacks
	OnState      func(pkg string, s State)
	OnCheckpoint func(pkg string, cp artifact.Checkpoint)
}

// Plan describes one replay run.
type Plan struct {
	Package   string
	Segment   string
	Loop      int
	Recording *artifact.Recording
	Metadata  *artifact.Metadata
	Schedule  []artifact.Checkpoint
	OutDir    string // Loop directory receiving captures
}

// Controller runs replays on a device. It is not safe for concurrent use.
type Controller struct {
	dev device.Session
	cfg Config

	Clock      core.Clock
	QR         *sidechannel.QRHandler
	SMS        *sidechannel.SMSHandler
	Perf       sidechannel.PerfHook
	LaunchHost func(dir, pkg string) error

	state State
}

// New creates a Controller for dev.
func New(dev device.Session, cfg Config) *Controller {
	if cfg.Eventrec == "" {
		cfg.Eventrec = "eventrec"
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.WarmupChecks <= 0 {
		cfg.WarmupChecks = 10
	}
	if cfg.WarmupInterval <= 0 {
		cfg.WarmupInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Controller{
		dev:        dev,
		cfg:        cfg,
		Clock:      core.SystemClock{},
		LaunchHost: emulator.Launch,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

func (c *Controller) setState(pkg string, s State) {
	logger.Debug("[%s] %s -> %s", pkg, c.state, s)
	c.state = s
	if c.cfg.OnState != nil {
		c.cfg.OnState(pkg, s)
	}
}

// Run replays p. The returned verdict is VerdictPending when the run
// completed and its captures await evaluation, VerdictSysCrash or
// VerdictAppCrash on a crash, and VerdictInvalid if ctx was cancelled or the
// player could not be started.
func (c *Controller) Run(ctx context.Context, p *Plan) *core.RunResult {
	res := &core.RunResult{
		Package:   p.Package,
		Segment:   p.Segment,
		Loop:      p.Loop,
		Verdict:   core.VerdictPending,
		StartTime: c.Clock.Now(),
	}
	if p.Metadata == nil {
		p.Metadata = artifact.DefaultMetadata()
	}
	c.state = StateIdle

	c.setState(p.Package, StateStarting)
	c.startLogcat()
	c.applyMetadata(p.Metadata)
	if err := c.launch(p); err != nil {
		logger.Warn("launch %s: %v", p.Package, err)
	}
	c.resetRotation(p.Recording)

	c.setState(p.Package, StateWarmingUp)
	for i := c.cfg.WarmupChecks; i > 0; i-- {
		if ctx.Err() != nil {
			return c.abort(p, res, ctx.Err())
		}
		logger.Debug("waiting for %s to start: %d", p.Package, i)
		c.Clock.Sleep(c.cfg.WarmupInterval)
		if !c.dev.IsConnected() {
			return c.crash(p, res, StateSysCrash, "device lost during app start")
		}
	}

	c.setState(p.Package, StatePlaying)
	if err := c.dev.ExecAsync(c.PlaybackCommand()); err != nil {
		return c.abort(p, res, fmt.Errorf("start event player: %w", err))
	}
	anchor := c.Clock.Now()

	for _, cp := range p.Schedule {
		if !c.dev.IsConnected() {
			return c.crash(p, res, StateSysCrash, fmt.Sprintf("device lost before checkpoint %s", artifact.FormatOffset(cp.Offset)))
		}
		switch focused, err := c.appFocused(p.Package); {
		case err != nil && !c.dev.IsConnected():
			return c.crash(p, res, StateSysCrash, fmt.Sprintf("device lost before checkpoint %s", artifact.FormatOffset(cp.Offset)))
		case err != nil:
			logger.Warn("read focused app before %s: %v", artifact.FormatOffset(cp.Offset), err)
		case !focused:
			return c.crash(p, res, StateAppCrash, fmt.Sprintf("%s lost focus before checkpoint %s", p.Package, artifact.FormatOffset(cp.Offset)))
		}

		c.setState(p.Package, StateWaiting)
		target := time.Duration(cp.Offset * c.cfg.Speed * float64(time.Second))
		for c.Clock.Now().Sub(anchor) < target {
			if ctx.Err() != nil {
				return c.abort(p, res, ctx.Err())
			}
			c.Clock.Sleep(c.cfg.PollInterval)
		}

		c.setState(p.Package, StateCapturing)
		c.dispatch(ctx, p, cp)
		if c.cfg.OnCheckpoint != nil {
			c.cfg.OnCheckpoint(p.Package, cp)
		}
	}

	c.setState(p.Package, StateDraining)
	for len(device.PidOf(c.dev, c.cfg.Eventrec)) > 0 {
		if ctx.Err() != nil {
			return c.abort(p, res, ctx.Err())
		}
		c.Clock.Sleep(c.cfg.PollInterval)
		if !c.dev.IsConnected() {
			return c.crash(p, res, StateSysCrash, "device lost while waiting for the event player")
		}
	}
	// pidof fails on a lost device as well as on an exited player.
	if !c.dev.IsConnected() {
		return c.crash(p, res, StateSysCrash, "device lost after the event player exited")
	}
	c.stopLogcat(p)
	c.forceStop(p.Package)

	c.setState(p.Package, StateStopped)
	res.Duration = c.Clock.Now().Sub(res.StartTime)
	return res
}

// PlaybackCommand returns the device command that replays the pushed trace.
func (c *Controller) PlaybackCommand() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s -p %s%s", DeviceTmp, c.cfg.Eventrec, DeviceTmp, artifact.TraceFile)
	if c.cfg.SpeedControl {
		b.WriteString(" -s " + strconv.FormatFloat(c.cfg.Speed, 'f', -1, 64))
	}
	if c.cfg.UseAxisMaxes {
		m := c.cfg.AxisMaxes
		fmt.Fprintf(&b, " -m %d %d %d %d", m[0], m[1], m[2], m[3])
	}
	return c.rootShell(b.String())
}

// appFocused reports whether pkg, or an allowed companion, owns focus. A
// failed window query is retried once; the second error is returned.
func (c *Controller) appFocused(pkg string) (bool, error) {
	focused, err := device.FocusedPackages(c.dev)
	if err != nil {
		logger.Debug("read focused app: %v, retrying", err)
		if focused, err = device.FocusedPackages(c.dev); err != nil {
			return false, err
		}
	}
	for _, f := range focused {
		if f == pkg {
			return true, nil
		}
	}
	for _, f := range focused {
		for _, comp := range c.cfg.Companions {
			if f == comp {
				logger.Debug("companion %s holds focus", comp)
				return true, nil
			}
		}
	}
	logger.Info("focused apps %v do not include %s", focused, pkg)
	return false, nil
}

// dispatch captures a normal checkpoint or runs its side-channel handler.
func (c *Controller) dispatch(ctx context.Context, p *Plan, cp artifact.Checkpoint) {
	off := artifact.FormatOffset(cp.Offset)
	switch cp.Kind {
	case artifact.KindQR:
		if c.QR == nil {
			logger.Warn("QR checkpoint at %s skipped: no scan phone", off)
			return
		}
		png := filepath.Join(p.OutDir, QRScreenshot)
		if !c.captureScreenshot(p.Metadata.FocusedDisplayID, png) {
			return
		}
		if err := c.QR.Handle(ctx, png, cp.Companion); err != nil {
			logger.Warn("QR checkpoint at %s: %v", off, err)
		}
	case artifact.KindSMS:
		if c.SMS == nil {
			logger.Warn("SMS checkpoint at %s skipped: no sms phone", off)
			return
		}
		if _, err := c.SMS.Handle(ctx); err != nil {
			logger.Warn("SMS checkpoint at %s: %v", off, err)
		}
	case artifact.KindPerf:
		if err := sidechannel.RunPerf(ctx, c.Perf, p.Package, cp.Offset); err != nil {
			logger.Warn("perf checkpoint at %s: %v", off, err)
		}
	default:
		logger.Info("[%s] capture at %s", p.Segment, off)
		c.captureDump(cp.Offset, p.OutDir)
		c.captureScreenshot(p.Metadata.FocusedDisplayID, filepath.Join(p.OutDir, artifact.ScreenshotName(cp.Offset)))
	}
}

func (c *Controller) forceStop(pkg string) {
	if c.cfg.KeepAppRunning {
		return
	}
	if _, err := c.dev.Exec(c.rootShell("am force-stop " + pkg)); err != nil {
		logger.Warn("force-stop %s: %v", pkg, err)
	}
}

func (c *Controller) crash(p *Plan, res *core.RunResult, s State, msg string) *core.RunResult {
	logger.Error("[%s] %s", p.Segment, msg)
	c.stopLogcat(p)
	c.setState(p.Package, s)
	if s == StateSysCrash {
		res.Verdict = core.VerdictSysCrash
		res.Err = core.ErrDeviceLost.WithMessage(msg)
	} else {
		res.Verdict = core.VerdictAppCrash
		res.Err = core.ErrAppCrashed.WithMessage(msg)
	}
	res.Message = msg
	res.Duration = c.Clock.Now().Sub(res.StartTime)
	return res
}

func (c *Controller) abort(p *Plan, res *core.RunResult, err error) *core.RunResult {
	logger.Warn("[%s] run aborted: %v", p.Segment, err)
	c.stopLogcat(p)
	c.forceStop(p.Package)
	c.setState(p.Package, StateStopped)
	res.Verdict = core.VerdictInvalid
	res.Message = err.Error()
	res.Duration = c.Clock.Now().Sub(res.StartTime)
	return res
}
