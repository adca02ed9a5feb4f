// Package executor runs a replay session: every recorded package in turn,
// from installation and trace preparation through loops, post-login segments
// and device recovery.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/config"
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/emulator"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
	"github.com/devicelab-dev/replay-runner/pkg/replay"
	"github.com/devicelab-dev/replay-runner/pkg/sidechannel"
	"github.com/devicelab-dev/replay-runner/pkg/trace"
	"github.com/devicelab-dev/replay-runner/pkg/verdict"
)

// Recoverer brings a lost device back.
type Recoverer interface {
	Relaunch(ctx context.Context, s device.Session) error
}

// RunnerConfig configures the session runner.
type RunnerConfig struct {
	Config *config.Config
	BinDir string // Host directory holding the eventrec binaries

	// Optional collaborators
	Clock    core.Clock
	Recovery Recoverer // Defaults to the AoW relauncher when aow_path is set
	QR       *sidechannel.QRHandler
	SMS      *sidechannel.SMSHandler
	Perf     sidechannel.PerfHook

	// Controller tuning, mostly for tests
	Replay replay.Config

	// Live progress callbacks
	OnPackageStart func(idx, total int, pkg string)
	OnRunEnd       func(res *core.RunResult)
}

// Summary is the outcome of a session.
type Summary struct {
	SessionID string
	Packages  int
	Totals    core.Totals
	Results   []*core.RunResult
	Duration  time.Duration
}

// Runner replays every package of a records directory on one device. A
// Runner owns its device for the whole session and is not safe for
// concurrent use.
type Runner struct {
	config RunnerConfig
	cfg    *config.Config

	dev       device.Session
	installer device.Installer
	store     *artifact.Store
	agg       *verdict.Aggregator
	ctrl      *replay.Controller
	clock     core.Clock

	sessionID string
	eventrec  string
	results   []*core.RunResult
}

// New creates a Runner. installer may be nil when packages are never
// installed on demand; sink may be nil to keep results in memory only.
func New(dev device.Session, installer device.Installer, sink verdict.Sink, cfg RunnerConfig) *Runner {
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}
	if cfg.BinDir == "" {
		cfg.BinDir = config.GetBinDir()
	}
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.Recovery == nil && cfg.Config.AoWPath != "" {
		cfg.Recovery = emulator.NewAoWRelauncher(cfg.Config.AoWPath, cfg.Config.RecoveryTimeout)
	}
	return &Runner{
		config:    cfg,
		cfg:       cfg.Config,
		dev:       dev,
		installer: installer,
		store:     artifact.NewStore(cfg.Config.RecordPath, cfg.Config.ReplayPath),
		agg:       verdict.NewAggregator(sink),
		clock:     cfg.Clock,
		sessionID: uuid.New().String(),
	}
}

// SessionID returns the identifier stamped on every result of this session.
func (r *Runner) SessionID() string {
	return r.sessionID
}

// Run prepares the device and replays every package in name order. A
// package that fails never stops the session; only setup errors and
// cancellation end it early.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := r.clock.Now()
	if err := r.setup(); err != nil {
		return nil, err
	}

	pkgs, err := r.store.Packages()
	if err != nil {
		return nil, err
	}
	logger.Info("session %s: %d packages under %s", r.sessionID, len(pkgs), r.cfg.RecordPath)

	for i, pkg := range pkgs {
		if ctx.Err() != nil {
			logger.Warn("session cancelled, %d packages left", len(pkgs)-i)
			break
		}
		if r.config.OnPackageStart != nil {
			r.config.OnPackageStart(i, len(pkgs), pkg)
		}
		r.replayPackage(ctx, pkg)
	}

	totals := r.agg.Totals()
	logger.Info("session %s done: %d/%d passed", r.sessionID, totals.Passed, totals.Attempted)
	return &Summary{
		SessionID: r.sessionID,
		Packages:  len(pkgs),
		Totals:    totals,
		Results:   r.results,
		Duration:  r.clock.Now().Sub(start),
	}, ctx.Err()
}

// replayPackage replays one package, repeating the whole event loop up to
// Retries times until it passes.
func (r *Runner) replayPackage(ctx context.Context, pkg string) {
	rec := r.store.Recording(pkg)
	if !rec.HasTrace() {
		logger.Warn("[%s] %s not found, skipped", pkg, artifact.TraceFile)
		return
	}
	logger.Info("[replay] switch to %s", pkg)

	if !r.ensureInstalled(pkg) {
		logger.Warn("[%s] not installed and could not be installed", pkg)
		r.record(&core.RunResult{
			Package:   pkg,
			Segment:   pkg,
			Verdict:   core.VerdictNotExisting,
			Err:       core.ErrPackageMissing.WithMessage(pkg + " is not installed"),
			StartTime: r.clock.Now(),
		})
		return
	}
	defer r.clock.Sleep(r.cfg.SettleDelay)

	out := r.store.ReplayDir(pkg)
	if err := out.Prepare(); err != nil {
		r.invalid(rec, fmt.Errorf("prepare %s: %w", out.Dir, err))
		return
	}
	recorded := rec.Version()
	if installed := device.AppVersion(r.dev, pkg); recorded != "" && recorded != installed {
		logger.Warn("[%s] versions mismatched: recorded %s, installed %s", pkg, recorded, installed)
	}

	md, err := rec.Metadata()
	if err != nil {
		r.invalid(rec, err)
		return
	}
	schedule, err := r.prepareTrace(rec, out)
	if err != nil {
		r.invalid(rec, err)
		return
	}

	retries := r.cfg.Retries
	if retries < 1 {
		retries = 1
	}
	var passed bool
	for attempt := 1; ; attempt++ {
		passed = r.replayEventLoop(ctx, rec, md, out, schedule, recorded)
		if passed || attempt >= retries || ctx.Err() != nil {
			break
		}
		logger.Info("[%s] failed, retrying (%d/%d)", pkg, attempt+1, retries)
	}
	logger.Info("[%s] test result: %s", pkg, passLabel(passed))
}

// replayEventLoop runs every loop of rec and then its post-login segment. It
// reports whether every run passed.
func (r *Runner) replayEventLoop(ctx context.Context, rec *artifact.Recording, md *artifact.Metadata, out *artifact.ReplayDir, schedule []artifact.Checkpoint, recorded string) bool {
	pkg := rec.Package
	loops := rec.LoopCount()
	if loops > 1 {
		logger.Info("[%s] repeating %d times", pkg, loops)
	}
	post := r.store.PostLogin(pkg)
	remaining := 0
	passed := true
	for count := 0; count < loops; count++ {
		if ctx.Err() != nil {
			return false
		}
		if rec.SkipReset() {
			logger.Info("[%s] skip reset app", pkg)
		} else {
			r.resetApp(pkg)
		}
		ok := r.runOnce(ctx, rec, out, md, schedule, count, recorded)
		passed = passed && ok
		remaining = loops - 1 - count
		if ok && post.SkipReset() {
			logger.Info("[%s] login succeeded, switching to %s", pkg, post.Segment)
			break
		}
	}

	return r.replayPostLogin(ctx, post, md, remaining, recorded) && passed
}

// replayPostLogin replays the post-login segment for the loops the main
// segment left over. It reports whether every run passed.
func (r *Runner) replayPostLogin(ctx context.Context, post *artifact.Recording, md *artifact.Metadata, loops int, recorded string) bool {
	if !post.Exists() || loops == 0 {
		return true
	}
	out := r.store.ReplayDir(post.Segment)
	if err := out.Prepare(); err != nil {
		logger.Warn("[%s] prepare %s: %v", post.Segment, out.Dir, err)
		return true
	}
	schedule, err := r.prepareTrace(post, out)
	if err != nil || len(schedule) == 0 {
		logger.Warn("[%s] no usable post-login trace: %v", post.Segment, err)
		return true
	}

	logger.Info("[%s] replaying %d loops after login", post.Segment, loops)
	passed := true
	for count := 0; count < loops; count++ {
		if ctx.Err() != nil {
			break
		}
		passed = r.runOnce(ctx, post, out, md, schedule, count, recorded) && passed
	}
	return passed
}

// prepareTrace translates the recorded trace when the input topology
// differs, pushes it to the device and derives the checkpoint schedule.
func (r *Runner) prepareTrace(rec *artifact.Recording, out *artifact.ReplayDir) ([]artifact.Checkpoint, error) {
	src := rec.TracePath()
	if m := r.cfg.ChannelMap(); len(m) > 0 || r.cfg.SwapXY {
		logger.Info("[%s] updating event channels %v, swap x/y %v", rec.Segment, m, r.cfg.SwapXY)
		opts := trace.TranslateOptions{ChannelMap: m}
		if r.cfg.SwapXY {
			opts.Swap = trace.SwapForward
			opts.ScreenMax = r.cfg.SwapMax
		}
		dst := filepath.Join(out.Dir, artifact.TraceFile)
		if _, err := trace.TranslateFile(src, dst, opts); err != nil {
			return nil, err
		}
		src = dst
	} else {
		t, err := trace.ParseFile(src)
		if err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	if err := r.dev.Push(src, replay.DeviceTmp+artifact.TraceFile); err != nil {
		return nil, fmt.Errorf("push trace: %w", err)
	}

	schedule, err := rec.Schedule()
	if err != nil {
		return nil, err
	}
	if len(schedule) == 0 {
		logger.Warn("[%s] no dumped window found, nothing to verify", rec.Segment)
	}
	return schedule, nil
}

// runOnce replays one loop iteration, evaluates it and records the result.
func (r *Runner) runOnce(ctx context.Context, rec *artifact.Recording, out *artifact.ReplayDir, md *artifact.Metadata, schedule []artifact.Checkpoint, count int, recorded string) bool {
	loopDir, err := out.LoopDir(count)
	if err != nil {
		return r.record(&core.RunResult{
			Package:   rec.Package,
			Segment:   rec.Segment,
			Loop:      count,
			Verdict:   core.VerdictInvalid,
			Message:   err.Error(),
			StartTime: r.clock.Now(),
		})
	}

	logger.Info("[%s] replay loop %d", rec.Segment, count+1)
	res := r.ctrl.Run(ctx, &replay.Plan{
		Package:   rec.Package,
		Segment:   rec.Segment,
		Loop:      count,
		Recording: rec,
		Metadata:  md,
		Schedule:  schedule,
		OutDir:    loopDir,
	})
	res.ArtifactDir = loopDir
	res.Version = device.AppVersion(r.dev, rec.Package)

	verdict.Evaluate(res, verdict.Input{
		Recording: rec,
		LoopDir:   loopDir,
		Schedule:  schedule,
		Display:   md.FocusedDisplayID,
		Threshold: r.cfg.PassThreshold,
	})
	verdict.CheckVersion(res, recorded, r.cfg.IgnoreVersionMismatch)

	passed := r.record(res)
	if res.Verdict == core.VerdictSysCrash {
		r.recover(ctx)
	}
	return passed
}

// invalid records a run that could not start because its inputs are broken.
func (r *Runner) invalid(rec *artifact.Recording, err error) {
	logger.Error("[%s] %v", rec.Segment, err)
	res := &core.RunResult{
		Package:   rec.Package,
		Segment:   rec.Segment,
		Version:   device.AppVersion(r.dev, rec.Package),
		Verdict:   core.VerdictInvalid,
		Message:   err.Error(),
		StartTime: r.clock.Now(),
	}
	r.record(res)
}

func (r *Runner) record(res *core.RunResult) bool {
	res.SessionID = r.sessionID
	passed := r.agg.Record(res)
	r.results = append(r.results, res)
	if r.config.OnRunEnd != nil {
		r.config.OnRunEnd(res)
	}
	return passed
}

// recover relaunches a lost device when recovery is configured.
func (r *Runner) recover(ctx context.Context) {
	if r.config.Recovery == nil {
		logger.Warn("device lost and no recovery configured")
		return
	}
	logger.Info("device lost, relaunching")
	if err := r.config.Recovery.Relaunch(ctx, r.dev); err != nil {
		logger.Error("recovery failed: %v", err)
		return
	}
	logger.Info("device is back")
}

func passLabel(passed bool) string {
	if passed {
		return "Passed!"
	}
	return "Failed!!"
}
