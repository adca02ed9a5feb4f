package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/executor"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func verdictColor(v core.Verdict) string {
	switch v {
	case core.VerdictPassed:
		return colorGreen
	case core.VerdictWrongVersion, core.VerdictNotExisting:
		return colorYellow
	default:
		return colorRed
	}
}

func onPackageStart(idx, total int, pkg string) {
	fmt.Printf("\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), pkg, color(colorReset))
}

func onRunEnd(res *core.RunResult) {
	fmt.Printf("    %s %-40s %s%-18s%s %s%d/%d checkpoints, %s%s\n",
		symbol(res.Verdict), runLabel(res),
		color(verdictColor(res.Verdict)), res.Verdict, color(colorReset),
		color(colorDim), res.Matched, res.Attempted, formatDuration(res.Duration), color(colorReset))
}

func symbol(v core.Verdict) string {
	if v.IsSuccess() {
		return color(colorGreen) + "✓" + color(colorReset)
	}
	return color(colorRed) + "✗" + color(colorReset)
}

func runLabel(res *core.RunResult) string {
	if res.Loop == 0 {
		return res.Segment
	}
	return fmt.Sprintf("%s (loop %d)", res.Segment, res.Loop+1)
}

func printSummary(w io.Writer, sum *executor.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%sSummary%s  session %s\n", color(colorBold), color(colorReset), sum.SessionID)
	fmt.Fprintf(w, "  Packages:  %d\n", sum.Packages)
	fmt.Fprintf(w, "  Runs:      %d\n", sum.Totals.Attempted)
	fmt.Fprintf(w, "  Passed:    %s%d%s\n", color(colorGreen), sum.Totals.Passed, color(colorReset))
	if failed := sum.Totals.Failed(); failed > 0 {
		fmt.Fprintf(w, "  Failed:    %s%d%s\n", color(colorRed), failed, color(colorReset))
	}
	fmt.Fprintf(w, "  Duration:  %s\n", formatDuration(sum.Duration))
}

// formatDuration renders d as 850ms, 12.3s or 2m05s.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		m := int(d.Minutes())
		s := int(d.Seconds()) - m*60
		return fmt.Sprintf("%dm%02ds", m, s)
	}
}
