// Package verdict turns the captures of a replay run into a pass/fail verdict
// and keeps the session totals.
package verdict

import (
	"os"
	"path/filepath"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/hierarchy"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Input locates the artifacts of one replay run.
type Input struct {
	Recording *artifact.Recording
	LoopDir   string
	Schedule  []artifact.Checkpoint
	Display   string
	Threshold float64
}

// Evaluate compares every normal checkpoint of a run that reached the end of
// its trace and sets res.Verdict to Passed or Failed. Runs that already carry
// a verdict are left untouched.
//
// A checkpoint counts toward the pass rate only if the recorded screenshot,
// the recorded dump and the replayed dump all exist.
func Evaluate(res *core.RunResult, in Input) {
	if res.Verdict != core.VerdictPending {
		return
	}

	res.Checkpoints = nil
	res.Attempted, res.Matched = 0, 0
	for _, cp := range artifact.Normal(in.Schedule) {
		off := artifact.FormatOffset(cp.Offset)
		recDump := in.Recording.DumpPath(cp.Offset)
		repDump := filepath.Join(in.LoopDir, artifact.DumpName(cp.Offset))
		if !exists(in.Recording.ScreenshotPath(cp.Offset)) {
			logger.Debug("[%s] %s is not a normal capture point, skipped", res.Segment, off)
			continue
		}
		if !exists(recDump) || !exists(repDump) {
			logger.Warn("[%s] %s: capture pair incomplete, skipped", res.Segment, off)
			continue
		}

		ok, err := hierarchy.CompareFiles(recDump, repDump, in.Display)
		if err != nil {
			logger.Warn("[%s] %s: %v", res.Segment, off, err)
			ok = false
		}

		res.Attempted++
		res.Checkpoints = append(res.Checkpoints, core.CheckpointResult{
			Index:  res.Attempted,
			Offset: cp.Offset,
			Passed: ok,
		})
		if ok {
			res.Matched++
			continue
		}
		logger.Info("[%s] mismatch at %s, saving screenshots", res.Segment, off)
		if err := artifact.SaveMismatch(in.Recording, in.LoopDir, cp.Offset); err != nil {
			logger.Warn("save mismatch screenshots at %s: %v", off, err)
		}
	}

	if Passes(res.Matched, res.Attempted, in.Threshold) {
		res.Verdict = core.VerdictPassed
	} else {
		res.Verdict = core.VerdictFailed
	}
	logger.Info("[%s] %d/%d checkpoints matched: %s", res.Segment, res.Matched, res.Attempted, res.Verdict)
}

// Passes reports whether matched/attempted reaches threshold. No attempted
// comparisons pass.
func Passes(matched, attempted int, threshold float64) bool {
	if matched > attempted || matched < 0 {
		panic("verdict: matched checkpoints exceed attempted")
	}
	if attempted == 0 {
		return true
	}
	return float64(matched)/float64(attempted) >= threshold
}

// CheckVersion marks a compared run as VersionMismatched when the installed
// build differs from the recorded one. Crash and invalid verdicts win.
func CheckVersion(res *core.RunResult, recorded string, ignore bool) {
	if recorded == "" || recorded == res.Version || ignore {
		return
	}
	if res.Verdict == core.VerdictPassed || res.Verdict == core.VerdictFailed || res.Verdict == core.VerdictPending {
		logger.Warn("[%s] version mismatch: recorded %s, installed %s", res.Segment, recorded, res.Version)
		res.Verdict = core.VerdictWrongVersion
		res.Message = "recorded version " + recorded
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
