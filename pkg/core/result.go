package core

import (
	"time"
)

// CheckpointResult is the comparison outcome at one normal checkpoint.
type CheckpointResult struct {
	Index  int     `json:"index"`  // 1-based, in comparison order
	Offset float64 `json:"offset"` // Seconds since playback start
	Passed bool    `json:"passed"`
}

// RunResult captures the outcome of one replay attempt (one loop iteration
// of one segment).
type RunResult struct {
	// Identity
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId"`
	Package   string `json:"package"`
	Segment   string `json:"segment"` // Package name, or <pkg>_after_login
	Version   string `json:"version,omitempty"`
	Loop      int    `json:"loop"` // 0-based iteration within the segment

	// Outcome
	Verdict     Verdict            `json:"verdict"`
	Checkpoints []CheckpointResult `json:"checkpoints,omitempty"`
	Attempted   int                `json:"attempted"` // Comparisons counted in the pass rate
	Matched     int                `json:"matched"`
	Message     string             `json:"message,omitempty"`
	ArtifactDir string             `json:"artifactDir,omitempty"` // Directory holding the replay captures
	Err         error              `json:"-"`                     // Cause of a crash or NotExisting verdict

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// PassRate returns matched/attempted; an empty denominator counts as 1.
func (r *RunResult) PassRate() float64 {
	if r.Attempted == 0 {
		return 1
	}
	return float64(r.Matched) / float64(r.Attempted)
}

// Totals are the session-wide counters reported at the end of a session.
type Totals struct {
	Attempted int `json:"attempted"`
	Passed    int `json:"passed"`
}

// Failed returns the number of attempts that did not pass.
func (t Totals) Failed() int {
	return t.Attempted - t.Passed
}

// Clock abstracts wall time for the replay timeline.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
