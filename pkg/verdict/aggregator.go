package verdict

import (
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Sink persists finished runs.
type Sink interface {
	Write(res *core.RunResult) error
}

// Aggregator persists each finished run and keeps the session totals. It is
// owned by a single session loop.
type Aggregator struct {
	sink   Sink
	totals core.Totals
}

// NewAggregator creates an Aggregator writing to sink. sink may be nil.
func NewAggregator(sink Sink) *Aggregator {
	return &Aggregator{sink: sink}
}

// Record counts res and writes it to the sink. It returns whether res passed.
// Sink failures are logged and do not affect the totals.
func (a *Aggregator) Record(res *core.RunResult) bool {
	a.totals.Attempted++
	passed := res.Verdict.IsSuccess()
	if passed {
		a.totals.Passed++
	}
	logger.Info("[%s] result %s (%d/%d passed so far)", res.Segment, res.Verdict, a.totals.Passed, a.totals.Attempted)

	if a.sink != nil {
		if err := a.sink.Write(res); err != nil {
			logger.Error("write result for %s: %v", res.Segment, err)
		}
	}
	return passed
}

// Totals returns the session totals so far.
func (a *Aggregator) Totals() core.Totals {
	return a.totals
}
