package report

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestCSVName(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	if got := CSVName("lab-01", ts); got != "RR_Results_lab-01_20240301_090507.csv" {
		t.Errorf("CSVName() = %q", got)
	}
}

func TestCSVSink(t *testing.T) {
	s, err := NewCSVSink(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("NewCSVSink failed: %v", err)
	}
	if !strings.HasPrefix(s.Path()[strings.LastIndex(s.Path(), string(os.PathSeparator))+1:], "RR_Results_") {
		t.Errorf("unexpected report name %s", s.Path())
	}

	runs := []*core.RunResult{
		{Package: "com.a", Segment: "com.a", Version: "1.2", Verdict: core.VerdictPassed,
			Checkpoints: []core.CheckpointResult{{Index: 1, Passed: true}, {Index: 2, Passed: true}}},
		{Package: "com.a", Segment: "com.a_after_login", Version: "1.2", Verdict: core.VerdictFailed,
			Checkpoints: []core.CheckpointResult{{Index: 1, Passed: false}}},
		{Package: "com.b", Verdict: core.VerdictNotExisting, Version: "0.0"},
		{Package: "com.c", Segment: "com.c", Version: "3", Verdict: core.VerdictSysCrash},
	}
	for _, r := range runs {
		if err := s.Write(r); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rows := readCSV(t, s.Path())
	if diff := cmp.Diff(CSVHeader(), rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	blank := make([]string, 13)
	pad := func(cells ...string) []string {
		return append(cells, blank[len(cells):]...)
	}
	want := [][]string{
		blank,
		pad("com.a", "1.2", "Passed", "True", "True"),
		pad("com.a_after_login", "1.2", "Failed", "False"),
		pad("com.b", "", "Not Exists!"),
		pad("com.c", "3", "System Crash"),
	}
	if diff := cmp.Diff(want, rows[1:]); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVSink_TruncatesCheckpoints(t *testing.T) {
	s, err := NewCSVSink(t.TempDir(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res := &core.RunResult{Segment: "com.many", Verdict: core.VerdictPassed}
	for i := 1; i <= 12; i++ {
		res.Checkpoints = append(res.Checkpoints, core.CheckpointResult{Index: i, Passed: true})
	}
	if err := s.Write(res); err != nil {
		t.Fatal(err)
	}
	s.Close()

	rows := readCSV(t, s.Path())
	if len(rows[2]) != 13 {
		t.Errorf("row has %d columns, want 13", len(rows[2]))
	}
}

func TestCSVHeader(t *testing.T) {
	h := CSVHeader()
	if len(h) != 13 || h[0] != "Package Name" || h[3] != "CP#1" || h[12] != "CP#10" {
		t.Errorf("CSVHeader() = %v", h)
	}
}
