package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/hierarchy"
	"github.com/devicelab-dev/replay-runner/pkg/report"
	"github.com/devicelab-dev/replay-runner/pkg/trace"
)

var translateCommand = &cli.Command{
	Name:      "translate",
	Usage:     "Rewrite a recorded trace for another input topology",
	ArgsUsage: "<in> <out>",
	Description: `Rename input channels and optionally swap X/Y coordinates of a trace.
Without --map, the channel pairs of the config file are used.

Examples:
  replay-runner translate events.txt out.txt --map event3=event5
  replay-runner translate events.txt out.txt --map event3=event5 --swap forward --screen-max 1199`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "map",
			Aliases: []string{"m"},
			Usage:   "Channel rename (FROM=TO), repeatable",
		},
		&cli.StringFlag{
			Name:  "swap",
			Usage: "Coordinate swap: none, forward or reverse",
			Value: "none",
		},
		&cli.UintFlag{
			Name:  "screen-max",
			Usage: "Coordinate bound for --swap (default: swap_max)",
		},
	},
	Action: runTranslate,
}

var compareCommand = &cli.Command{
	Name:      "compare",
	Usage:     "Compare two UI hierarchy dumps",
	ArgsUsage: "<recorded.xml> <replayed.xml>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "display",
			Usage: "Display id whose windows are compared",
			Value: "0",
		},
	},
	Action: runCompare,
}

var checkpointsCommand = &cli.Command{
	Name:      "checkpoints",
	Usage:     "List the checkpoint schedule of a recording",
	ArgsUsage: "<record-dir>",
	Action:    runCheckpoints,
}

var historyCommand = &cli.Command{
	Name:      "history",
	Usage:     "Show past runs of a package from the history database",
	ArgsUsage: "<package>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "History database (default: history_db)",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Number of runs to show",
			Value: 20,
		},
	},
	Action: runHistory,
}

func runTranslate(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("translate requires <in> and <out>")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	opts := trace.TranslateOptions{ChannelMap: cfg.ChannelMap(), ScreenMax: cfg.SwapMax}
	if c.IsSet("map") {
		opts.ChannelMap, err = parseChannelMap(c.StringSlice("map"))
		if err != nil {
			return err
		}
	}
	if opts.Swap, err = parseSwap(c.String("swap")); err != nil {
		return err
	}
	if c.IsSet("screen-max") {
		opts.ScreenMax = uint32(c.Uint("screen-max"))
	}

	out, err := trace.TranslateFile(c.Args().Get(0), c.Args().Get(1), opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s✓%s %d events written to %s\n", color(colorGreen), color(colorReset), out.EventCount(), c.Args().Get(1))
	return nil
}

// parseChannelMap parses FROM=TO pairs.
func parseChannelMap(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		from, to, ok := strings.Cut(p, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("invalid channel mapping %q (expected FROM=TO)", p)
		}
		m[from] = to
	}
	return m, nil
}

func parseSwap(s string) (trace.AxisSwap, error) {
	for _, mode := range []trace.AxisSwap{trace.SwapNone, trace.SwapForward, trace.SwapReverse} {
		if s == mode.String() {
			return mode, nil
		}
	}
	return trace.SwapNone, fmt.Errorf("unknown swap mode %q (none, forward, reverse)", s)
}

func runCompare(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("compare requires <recorded.xml> and <replayed.xml>")
	}
	ok, err := hierarchy.CompareFiles(c.Args().Get(0), c.Args().Get(1), c.String("display"))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("%s✗ mismatch%s\n", color(colorRed), color(colorReset))
		return cli.Exit("", 1)
	}
	fmt.Printf("%s✓ match%s\n", color(colorGreen), color(colorReset))
	return nil
}

func runCheckpoints(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("checkpoints requires <record-dir>")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	dir := c.Args().First()
	name := filepath.Base(filepath.Clean(dir))
	rec := &artifact.Recording{Package: strings.TrimSuffix(name, artifact.PostLoginExt), Segment: name, Dir: dir}
	schedule, err := rec.Schedule()
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(cfg.ScanApps))
	for _, pkg := range cfg.ScanApps {
		known[pkg] = true
	}
	printSchedule(os.Stdout, rec, schedule, known)
	return nil
}

// printSchedule lists the checkpoints of rec. QR companions missing from
// knownScanApps are flagged when that set is non-empty.
func printSchedule(w io.Writer, rec *artifact.Recording, schedule []artifact.Checkpoint, knownScanApps map[string]bool) {
	fmt.Fprintf(w, "%s%s%s: %d checkpoints, %d compared\n",
		color(colorBold), rec.Segment, color(colorReset), len(schedule), len(artifact.Normal(schedule)))
	if v := rec.Version(); v != "" {
		fmt.Fprintf(w, "  version %s\n", v)
	}
	if n := rec.LoopCount(); n > 1 {
		fmt.Fprintf(w, "  %d loops\n", n)
	}
	for _, cp := range schedule {
		line := fmt.Sprintf("  %s  %-6s %s", artifact.FormatOffset(cp.Offset), cp.Kind, cp.Name)
		if cp.Kind == artifact.KindQR {
			line += " → " + cp.Companion
			if len(knownScanApps) > 0 && !knownScanApps[cp.Companion] {
				line += color(colorYellow) + " (not in scan_apps)" + color(colorReset)
			}
		}
		fmt.Fprintln(w, line)
	}
}

func runHistory(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("history requires <package>")
	}
	dsn := c.String("db")
	if dsn == "" {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		dsn = cfg.HistoryDB
	}
	if dsn == "" {
		return fmt.Errorf("no history database: set history_db or pass --db")
	}

	db, err := report.NewSQLiteSink(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.History(context.Background(), c.Args().First(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("no runs recorded for %s\n", c.Args().First())
		return nil
	}
	for i := range runs {
		res := &runs[i]
		fmt.Printf("%s  %-40s %s%-18s%s %d/%d\n",
			res.StartTime.Format("2006-01-02 15:04:05"), runLabel(res),
			color(verdictColor(res.Verdict)), res.Verdict, color(colorReset),
			res.Matched, res.Attempted)
	}
	return nil
}
