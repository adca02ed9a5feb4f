package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputDir   string // Directory receiving report.json and report.html
	EmbedAssets bool   // Embed mismatch screenshots as base64
	Title       string // Report title (default: "Replay Report")
}

// HTMLSink collects runs and writes report.json and report.html on Close.
type HTMLSink struct {
	cfg   HTMLConfig
	start time.Time
	runs  []core.RunResult
}

// NewHTMLSink creates an HTMLSink.
func NewHTMLSink(cfg HTMLConfig) *HTMLSink {
	if cfg.Title == "" {
		cfg.Title = "Replay Report"
	}
	return &HTMLSink{cfg: cfg, start: time.Now()}
}

// Write records res.
func (s *HTMLSink) Write(res *core.RunResult) error {
	s.runs = append(s.runs, *res)
	return nil
}

// Close writes the reports.
func (s *HTMLSink) Close() error {
	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return err
	}

	data := buildHTMLData(s.runs, s.cfg, s.start)
	jsonBytes, err := json.MarshalIndent(struct {
		Totals core.Totals       `json:"totals"`
		Runs   []core.RunResult `json:"runs"`
	}{data.Totals, s.runs}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.cfg.OutputDir, "report.json"), jsonBytes, 0644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	html, err := renderHTML(data)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cfg.OutputDir, "report.html"), []byte(html), 0644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	TotalDuration string
	Totals        core.Totals
	PassRate      float64
	Runs          []RunHTMLData
}

// RunHTMLData contains run data formatted for HTML.
type RunHTMLData struct {
	core.RunResult
	Label       string
	StatusClass string
	DurationStr string
	Checkpoints []CheckpointHTMLData
}

// CheckpointHTMLData is one checkpoint cell, with mismatch screenshots.
type CheckpointHTMLData struct {
	core.CheckpointResult
	OffsetStr string
	Recorded  template.URL // data URL or relative path
	Replayed  template.URL
}

func statusClass(v core.Verdict) string {
	switch v {
	case core.VerdictPassed:
		return "passed"
	case core.VerdictFailed, core.VerdictWrongVersion:
		return "failed"
	case core.VerdictNotExisting, core.VerdictInvalid:
		return "skipped"
	default:
		return "crashed"
	}
}

func buildHTMLData(runs []core.RunResult, cfg HTMLConfig, start time.Time) HTMLData {
	var totals core.Totals
	out := make([]RunHTMLData, len(runs))
	for i, r := range runs {
		totals.Attempted++
		if r.Verdict.IsSuccess() {
			totals.Passed++
		}

		cps := make([]CheckpointHTMLData, len(r.Checkpoints))
		for j, cp := range r.Checkpoints {
			cell := CheckpointHTMLData{CheckpointResult: cp, OffsetStr: artifact.FormatOffset(cp.Offset)}
			if !cp.Passed && r.ArtifactDir != "" {
				name := artifact.ScreenshotName(cp.Offset)
				cell.Recorded = assetRef(filepath.Join(r.ArtifactDir, name+artifact.LeftSuffix), cfg)
				cell.Replayed = assetRef(filepath.Join(r.ArtifactDir, name+artifact.RightSuffix), cfg)
			}
			cps[j] = cell
		}

		out[i] = RunHTMLData{
			RunResult:   r,
			Label:       r.Verdict.String(),
			StatusClass: statusClass(r.Verdict),
			DurationStr: formatDuration(r.Duration),
			Checkpoints: cps,
		}
	}

	var passRate float64
	if totals.Attempted > 0 {
		passRate = float64(totals.Passed) / float64(totals.Attempted) * 100
	}

	return HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		TotalDuration: formatDuration(time.Since(start)),
		Totals:        totals,
		PassRate:      passRate,
		Runs:          out,
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func assetRef(path string, cfg HTMLConfig) template.URL {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	if cfg.EmbedAssets {
		return template.URL(loadAsBase64(path))
	}
	if rel, err := filepath.Rel(cfg.OutputDir, path); err == nil {
		return template.URL(filepath.ToSlash(rel))
	}
	return template.URL(filepath.ToSlash(path))
}

// Screenshots are always PNG, whatever their mismatch suffix.
func loadAsBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #000000;
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --failed: #ef4444;
            --skipped: #eab308;
            --crashed: #a855f7;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; background: var(--bg-secondary); color: var(--text-primary); padding: 24px; }
        h1 { font-size: 20px; margin-bottom: 4px; }
        .meta { color: var(--text-muted); font-size: 13px; margin-bottom: 16px; }
        .summary { display: flex; gap: 16px; margin-bottom: 16px; }
        .card { background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 6px; padding: 12px 16px; }
        table { width: 100%; border-collapse: collapse; background: var(--bg-primary); }
        th, td { border: 1px solid var(--border-color); padding: 6px 8px; font-size: 13px; text-align: left; vertical-align: top; }
        .passed { color: var(--passed); }
        .failed { color: var(--failed); }
        .skipped { color: var(--skipped); }
        .crashed { color: var(--crashed); }
        .shots img { max-width: 160px; margin-right: 4px; border: 1px solid var(--border-color); }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <div class="meta">Generated {{.GeneratedAt}} &middot; {{.TotalDuration}}</div>
    <div class="summary">
        <div class="card">Runs: {{.Totals.Attempted}}</div>
        <div class="card passed">Passed: {{.Totals.Passed}}</div>
        <div class="card failed">Failed: {{.Totals.Failed}}</div>
        <div class="card">Pass rate: {{printf "%.1f" .PassRate}}%</div>
    </div>
    <table>
        <thead>
            <tr><th>Package</th><th>Version</th><th>Loop</th><th>Result</th><th>Matched</th><th>Duration</th><th>Checkpoints</th></tr>
        </thead>
        <tbody>
        {{range .Runs}}
            <tr>
                <td>{{.Segment}}</td>
                <td>{{.Version}}</td>
                <td>{{.Loop}}</td>
                <td class="{{.StatusClass}}">{{.Label}}{{if .Message}}<br><small>{{.Message}}</small>{{end}}</td>
                <td>{{.Matched}}/{{.Attempted}}</td>
                <td>{{.DurationStr}}</td>
                <td>
                {{range .Checkpoints}}
                    <div class="{{if .Passed}}passed{{else}}failed{{end}}">CP#{{.Index}} @ {{.OffsetStr}}s
                    {{if .Recorded}}<span class="shots"><img src="{{.Recorded}}" alt="recorded"><img src="{{.Replayed}}" alt="replayed"></span>{{end}}
                    </div>
                {{end}}
                </td>
            </tr>
        {{end}}
        </tbody>
    </table>
</body>
</html>
`
