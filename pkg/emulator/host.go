// Package emulator launches and relaunches the Android-on-Windows (AoW)
// container that hosts the device under test.
package emulator

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Binary is the AoW host launcher executable inside the AoW directory.
const Binary = "Androws.exe"

// Process is a host process started by the runner.
type Process struct {
	Cmd       *exec.Cmd
	StartTime time.Time
}

// StartHost starts name inside dir without waiting for it to exit. The
// process is reaped in the background and outlives the caller's context.
func StartHost(dir, name string, args ...string) (*Process, error) {
	bin := name
	if !filepath.IsAbs(bin) {
		bin = filepath.Join(dir, name)
	}

	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	logger.Debug("Host command: %s %s", bin, strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	logger.Info("Host process started (PID: %d): %s", cmd.Process.Pid, name)

	p := &Process{Cmd: cmd, StartTime: time.Now()}
	go func() {
		err := cmd.Wait()
		logger.Debug("Host process %s exited after %v: %v", name, time.Since(p.StartTime), err)
	}()
	return p, nil
}

// LaunchArgs returns the AoW arguments that start pkg in the phone-shaped
// window used for recording.
func LaunchArgs(pkg string) []string {
	return []string{
		"--launch-pkg-name", pkg,
		"--vm-pscreen-width", "1200",
		"--vm-pscreen-height", "2000",
		"--vm-screen-width", "2000",
		"--vm-screen-height", "1200",
	}
}

// RebootArgs returns the AoW arguments that bring the container back up on
// the settings app.
func RebootArgs() []string {
	return []string{
		"--launch-pkg-name", "com.android.settings",
		"--vm-screen-width", "2000",
		"--vm-screen-height", "1200",
	}
}

// Launch starts pkg through the AoW launcher in dir.
func Launch(dir, pkg string) error {
	_, err := StartHost(dir, Binary, LaunchArgs(pkg)...)
	return err
}
