// Package report persists replay results: the per-session CSV table, an
// optional SQLite history and an HTML summary.
package report

import (
	"errors"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// MaxCheckpoints is the number of checkpoint columns in tabular reports.
const MaxCheckpoints = 10

// Sink receives finished runs in order.
type Sink interface {
	Write(res *core.RunResult) error
	Close() error
}

// MultiSink fans runs out to several sinks.
type MultiSink []Sink

// Write writes res to every sink and joins their errors.
func (m MultiSink) Write(res *core.RunResult) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resultLabel is the verdict as written to reports.
func resultLabel(res *core.RunResult) string {
	return res.Verdict.String()
}

// checkpointLabel renders a checkpoint outcome the way the CSV has always
// shown it.
func checkpointLabel(passed bool) string {
	if passed {
		return "True"
	}
	return "False"
}
