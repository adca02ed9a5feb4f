// Package cli provides the command-line interface for replay-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/replay-runner/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config.yaml / config.json (default: look in the working directory)",
		EnvVars: []string{"REPLAY_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "Serial of the device under test (overrides device_name)",
		EnvVars: []string{"REPLAY_DEVICE"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Mirror the session log to stderr",
		EnvVars: []string{"REPLAY_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "replay-runner",
		Usage:   "Replay recorded touchscreen sessions and verify the UI state",
		Version: Version,
		Description: `replay-runner plays recorded input traces back on an Android device and
compares the UI hierarchy captured at every checkpoint with the recording.

Examples:
  replay-runner replay
  replay-runner -d emulator-5554 replay records/
  replay-runner translate records/app/events.txt /tmp/events.txt --map event3=event5
  replay-runner compare records/app/window_dump_0012.1234.xml replays/app/window_dump_0012.1234.xml`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			replayCommand,
			translateCommand,
			compareCommand,
			checkpointsCommand,
			historyCommand,
		},
	}
}

// loadConfig loads --config, or the config file in the working directory,
// and applies the global --device override.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := globalString(c, "config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if serial := globalString(c, "device"); serial != "" {
		cfg.DeviceName = serial
	}
	return cfg, nil
}

// globalString reads a flag from the command context or any parent.
func globalString(c *cli.Context, name string) string {
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet(name) {
			return ctx.String(name)
		}
	}
	return c.String(name)
}

func globalBool(c *cli.Context, name string) bool {
	for _, ctx := range c.Lineage() {
		if ctx != nil && ctx.IsSet(name) {
			return ctx.Bool(name)
		}
	}
	return c.Bool(name)
}
