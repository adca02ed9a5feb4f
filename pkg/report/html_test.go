package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/core"
)

func TestHTMLSink(t *testing.T) {
	outDir := t.TempDir()
	loopDir := filepath.Join(outDir, "com.a")
	if err := os.MkdirAll(loopDir, 0755); err != nil {
		t.Fatal(err)
	}
	name := artifact.ScreenshotName(2)
	for _, suffix := range []string{artifact.LeftSuffix, artifact.RightSuffix} {
		if err := os.WriteFile(filepath.Join(loopDir, name+suffix), []byte("png"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewHTMLSink(HTMLConfig{OutputDir: outDir})
	runs := []*core.RunResult{
		{Package: "com.a", Segment: "com.a", Version: "1.0", Verdict: core.VerdictFailed, ArtifactDir: loopDir,
			Attempted: 2, Matched: 1, Duration: 2 * time.Second,
			Checkpoints: []core.CheckpointResult{{Index: 1, Offset: 1, Passed: true}, {Index: 2, Offset: 2, Passed: false}}},
		{Package: "com.b", Segment: "com.b", Verdict: core.VerdictPassed},
	}
	for _, r := range runs {
		if err := s.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	html, err := os.ReadFile(filepath.Join(outDir, "report.html"))
	if err != nil {
		t.Fatalf("report.html not written: %v", err)
	}
	content := string(html)
	for _, want := range []string{"Replay Report", "com.a", "com.b", "Failed", "Passed", "CP#2 @ 0002.0000s",
		"com.a/" + name + artifact.LeftSuffix, "Pass rate: 50.0%"} {
		if !strings.Contains(content, want) {
			t.Errorf("report.html missing %q", want)
		}
	}

	data, err := os.ReadFile(filepath.Join(outDir, "report.json"))
	if err != nil {
		t.Fatalf("report.json not written: %v", err)
	}
	var parsed struct {
		Totals core.Totals       `json:"totals"`
		Runs   []core.RunResult `json:"runs"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Totals.Attempted != 2 || parsed.Totals.Passed != 1 || len(parsed.Runs) != 2 {
		t.Errorf("report.json = %+v", parsed)
	}
}

func TestHTMLSink_EmbedAssets(t *testing.T) {
	outDir := t.TempDir()
	name := artifact.ScreenshotName(1)
	for _, suffix := range []string{artifact.LeftSuffix, artifact.RightSuffix} {
		if err := os.WriteFile(filepath.Join(outDir, name+suffix), []byte("png"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewHTMLSink(HTMLConfig{OutputDir: outDir, EmbedAssets: true, Title: "Nightly"})
	s.Write(&core.RunResult{Segment: "com.a", Verdict: core.VerdictFailed, ArtifactDir: outDir,
		Checkpoints: []core.CheckpointResult{{Index: 1, Offset: 1, Passed: false}}})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	html, _ := os.ReadFile(filepath.Join(outDir, "report.html"))
	if !strings.Contains(string(html), "data:image/png;base64,") {
		t.Error("expected embedded screenshots")
	}
	if !strings.Contains(string(html), "<title>Nightly</title>") {
		t.Error("expected custom title")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "-"},
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
