package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// CSVSink appends one row per run to RR_Results_<host>_<timestamp>.csv.
type CSVSink struct {
	path string
	file *os.File
	w    *csv.Writer
}

// CSVName returns the report file name for host at t.
func CSVName(host string, t time.Time) string {
	return fmt.Sprintf("RR_Results_%s_%s.csv", host, t.Format("20060102_150405"))
}

// CSVHeader returns the column names.
func CSVHeader() []string {
	cols := []string{"Package Name", "Version", "Result"}
	for i := 1; i <= MaxCheckpoints; i++ {
		cols = append(cols, fmt.Sprintf("CP#%d", i))
	}
	return cols
}

// NewCSVSink creates the report in dir and writes its header.
func NewCSVSink(dir string, now time.Time) (*CSVSink, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(dir, CSVName(host, now))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s := &CSVSink{path: path, file: f, w: csv.NewWriter(f)}
	header := CSVHeader()
	if err := s.writeRow(header); err != nil {
		f.Close()
		return nil, err
	}
	// Empty separator row after the header.
	if err := s.writeRow(make([]string, len(header))); err != nil {
		f.Close()
		return nil, err
	}
	logger.Info("CSV report: %s", path)
	return s, nil
}

// Path returns the report file path.
func (s *CSVSink) Path() string {
	return s.path
}

// Write appends a row for res. Missing packages only fill the name and
// result columns.
func (s *CSVSink) Write(res *core.RunResult) error {
	row := make([]string, 3+MaxCheckpoints)
	row[0] = res.Segment
	if row[0] == "" {
		row[0] = res.Package
	}
	row[2] = resultLabel(res)
	if res.Verdict != core.VerdictNotExisting {
		row[1] = res.Version
	}

	cps := res.Checkpoints
	if len(cps) > MaxCheckpoints {
		logger.Warn("%s: %d checkpoints, only the first %d are reported", row[0], len(cps), MaxCheckpoints)
		cps = cps[:MaxCheckpoints]
	}
	for i, cp := range cps {
		row[3+i] = checkpointLabel(cp.Passed)
	}
	return s.writeRow(row)
}

func (s *CSVSink) writeRow(row []string) error {
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
