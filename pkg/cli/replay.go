package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/replay-runner/pkg/config"
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/executor"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
	"github.com/devicelab-dev/replay-runner/pkg/report"
	"github.com/devicelab-dev/replay-runner/pkg/sidechannel"
)

// LogFile is the session log written under the replays directory.
const LogFile = "replay-runner.log"

var replayCommand = &cli.Command{
	Name:      "replay",
	Usage:     "Replay every recorded package and verify the UI state",
	ArgsUsage: "[records-dir]",
	Description: `Replay every package under the records directory on the connected device.

Results are written under the replays directory:
  - RR_Results_<host>_<timestamp>.csv
  - report.html / report.json (unless --no-html)
  - replay-runner.log

Examples:
  replay-runner replay
  replay-runner replay records/ --output replays/
  replay-runner -c lab.yaml replay --threshold 0.8 --history-db history.db`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Replays directory (default: replay_path)",
		},
		&cli.Float64Flag{
			Name:  "threshold",
			Usage: "Checkpoint pass rate needed to pass a run (default: replay_pass_threshold)",
		},
		&cli.Float64Flag{
			Name:  "speed",
			Usage: "Playback speed multiplier (default: replay_speed)",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Attempts per failing package (default: replay_retries)",
		},
		&cli.BoolFlag{
			Name:  "ignore-version",
			Usage: "Do not report version mismatches",
		},
		&cli.StringFlag{
			Name:  "history-db",
			Usage: "SQLite database keeping the run history (default: history_db)",
		},
		&cli.BoolFlag{
			Name:  "no-html",
			Usage: "Skip the HTML report",
		},
		&cli.BoolFlag{
			Name:  "embed-assets",
			Usage: "Embed mismatch screenshots in the HTML report",
		},
	},
	Action: runReplay,
}

// ReplayOptions are the replay command settings not carried by the config
// file.
type ReplayOptions struct {
	Verbose     bool
	NoHTML      bool
	EmbedAssets bool
}

func runReplay(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyReplayFlags(c, cfg); err != nil {
		return err
	}
	return executeReplay(cfg, ReplayOptions{
		Verbose:     globalBool(c, "verbose"),
		NoHTML:      c.Bool("no-html"),
		EmbedAssets: c.Bool("embed-assets"),
	})
}

// applyReplayFlags layers explicit command-line settings over cfg.
func applyReplayFlags(c *cli.Context, cfg *config.Config) error {
	if c.NArg() > 1 {
		return fmt.Errorf("at most one records directory is accepted, got %d", c.NArg())
	}
	if c.NArg() == 1 {
		cfg.RecordPath = c.Args().First()
	}
	if c.IsSet("output") {
		cfg.ReplayPath = c.String("output")
	}
	if c.IsSet("threshold") {
		cfg.PassThreshold = c.Float64("threshold")
	}
	if c.IsSet("speed") {
		cfg.ReplaySpeed = config.Speed(c.Float64("speed"))
	}
	if c.IsSet("retries") {
		cfg.Retries = c.Int("retries")
	}
	if c.Bool("ignore-version") {
		cfg.IgnoreVersionMismatch = true
	}
	if c.IsSet("history-db") {
		cfg.HistoryDB = c.String("history-db")
	}
	return cfg.Validate()
}

func executeReplay(cfg *config.Config, opts ReplayOptions) error {
	// 1. Check inputs and create the replays directory
	if st, err := os.Stat(cfg.RecordPath); err != nil || !st.IsDir() {
		return core.ErrMissingRequired.WithMessage("records directory " + cfg.RecordPath + " not found")
	}
	if err := os.MkdirAll(cfg.ReplayPath, 0o755); err != nil {
		return fmt.Errorf("failed to create replays directory: %w", err)
	}

	// 2. Initialize logging
	if err := logger.Init(filepath.Join(cfg.ReplayPath, LogFile)); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	if opts.Verbose {
		logger.SetConsole(os.Stderr)
		defer logger.SetConsole(nil)
	}
	logger.Info("=== Replay session started ===")
	logger.Info("Records: %s, replays: %s, device: %s", cfg.RecordPath, cfg.ReplayPath, cfg.DeviceName)

	// 3. Connect the device under test
	fmt.Printf("\n%sSetup%s\n", color(colorBold), color(colorReset))
	dev, err := device.New(cfg.DeviceName)
	if err != nil {
		logger.Error("Device connection failed: %v", err)
		return err
	}
	fmt.Printf("  %s✓%s Device: %s\n", color(colorGreen), color(colorReset), dev.Serial())

	// 4. Open result sinks
	sink, paths, err := openSinks(cfg, opts)
	if err != nil {
		logger.Error("Failed to open reports: %v", err)
		return err
	}

	// 5. Handle SIGINT/SIGTERM: finish the current step, then stop
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal %v, stopping session", sig)
			fmt.Fprintf(os.Stderr, "\nReceived %v, stopping after the current step...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigCh)

	// 6. Run the session
	qr, sms := sideChannels(cfg, dev)
	runner := executor.New(dev, dev, sink, executor.RunnerConfig{
		Config:         cfg,
		QR:             qr,
		SMS:            sms,
		OnPackageStart: onPackageStart,
		OnRunEnd:       onRunEnd,
	})
	sum, runErr := runner.Run(ctx)
	if err := sink.Close(); err != nil {
		fmt.Printf("  %s⚠%s Warning: failed to finish reports: %v\n", color(colorYellow), color(colorReset), err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Session failed: %v", runErr)
		return runErr
	}

	printSummary(os.Stdout, sum)
	fmt.Println("\n  Reports:")
	for _, p := range paths {
		fmt.Printf("    %s\n", p)
	}
	fmt.Println()

	if runErr != nil || sum.Totals.Failed() > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// openSinks opens the CSV report plus the optional HTML report and history
// database. It returns the fan-out sink and the report paths to show.
func openSinks(cfg *config.Config, opts ReplayOptions) (report.MultiSink, []string, error) {
	csvSink, err := report.NewCSVSink(cfg.ReplayPath, time.Now())
	if err != nil {
		return nil, nil, err
	}
	sinks := report.MultiSink{csvSink}
	paths := []string{"CSV:     " + csvSink.Path()}

	if !opts.NoHTML {
		sinks = append(sinks, report.NewHTMLSink(report.HTMLConfig{
			OutputDir:   cfg.ReplayPath,
			EmbedAssets: opts.EmbedAssets,
		}))
		paths = append(paths,
			"HTML:    "+filepath.Join(cfg.ReplayPath, "report.html"),
			"JSON:    "+filepath.Join(cfg.ReplayPath, "report.json"))
	}

	if cfg.HistoryDB != "" {
		db, err := report.NewSQLiteSink(cfg.HistoryDB)
		if err != nil {
			sinks.Close()
			return nil, nil, err
		}
		sinks = append(sinks, db)
		paths = append(paths, "History: "+cfg.HistoryDB)
	}
	return sinks, paths, nil
}

// sideChannels connects the scan phone and the SMS phone when configured.
// A phone that cannot be opened only disables its checkpoints.
func sideChannels(cfg *config.Config, primary device.Session) (*sidechannel.QRHandler, *sidechannel.SMSHandler) {
	var qr *sidechannel.QRHandler
	if cfg.ScanPhone != "" {
		if scanner, err := device.Open(cfg.ScanPhone); err != nil {
			logger.Warn("scan phone %s: %v", cfg.ScanPhone, err)
		} else {
			qr = &sidechannel.QRHandler{
				Scanner:  scanner,
				SuCmd:    cfg.SuCmdScanPhone,
				User:     cfg.UserID,
				BinDir:   config.GetBinDir(),
				Fallback: "eventrec",
			}
		}
	}

	var sms *sidechannel.SMSHandler
	if cfg.SMSDevice != "" {
		if phone, err := device.Open(cfg.SMSDevice); err != nil {
			logger.Warn("sms phone %s: %v", cfg.SMSDevice, err)
		} else {
			sms = &sidechannel.SMSHandler{
				Phone:       phone,
				Primary:     primary,
				Timeout:     cfg.SMSTimeout,
				Placeholder: cfg.SMSPlaceholderCode,
				Clock:       core.SystemClock{},
			}
		}
	}
	return qr, sms
}
