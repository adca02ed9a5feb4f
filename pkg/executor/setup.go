package executor

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
	"github.com/devicelab-dev/replay-runner/pkg/replay"
)

// APKIndex is the apk folder index mapping APK files to package names.
const APKIndex = "apk_info.csv"

// Event player binaries under the bin directory.
const (
	eventrecBinary    = "eventrec"
	eventrecARMBinary = "eventrec.arm"
)

// setup picks the event player for the device ABI, pushes it and builds the
// replay controller.
func (r *Runner) setup() error {
	arm := device.IsARM(r.dev)
	rootPrefix := ""
	r.eventrec = eventrecBinary
	if arm {
		r.eventrec = eventrecARMBinary
		rootPrefix = r.cfg.SuCmd
	}

	local := filepath.Join(r.config.BinDir, r.eventrec)
	remote := replay.DeviceTmp + r.eventrec
	if err := r.dev.Push(local, remote); err != nil {
		return core.ErrCommandFailed.WithMessage("push " + r.eventrec).WithCause(err)
	}
	if _, err := r.dev.Exec("chmod a+x " + remote); err != nil {
		return core.ErrCommandFailed.WithMessage("chmod " + remote).WithCause(err)
	}
	if _, err := r.dev.Exec(rootShell(rootPrefix, "setprop skip.reset.permission 1")); err != nil {
		logger.Warn("setprop skip.reset.permission: %v", err)
	}

	rc := r.config.Replay
	rc.RootPrefix = rootPrefix
	rc.Eventrec = r.eventrec
	rc.Speed = float64(r.cfg.ReplaySpeed)
	rc.SpeedControl = !arm
	rc.AxisMaxes, rc.UseAxisMaxes = r.cfg.AxisMaxes()
	rc.AoWPath = r.cfg.AoWPath
	rc.KeepAppRunning = r.cfg.IntegratedWithACS
	rc.Companions = r.cfg.CompanionPackages

	r.ctrl = replay.New(r.dev, rc)
	r.ctrl.Clock = r.clock
	r.ctrl.QR = r.config.QR
	r.ctrl.SMS = r.config.SMS
	r.ctrl.Perf = r.config.Perf
	logger.Info("device setup done: player %s, arm=%v", r.eventrec, arm)
	return nil
}

// resetApp clears the app data, plus any extra data the app keeps outside
// its own directory.
func (r *Runner) resetApp(pkg string) {
	if _, err := r.dev.Exec(fmt.Sprintf("pm clear --user %s %s", r.cfg.UserID, pkg)); err != nil {
		logger.Warn("[%s] pm clear: %v", pkg, err)
	}
	extra, ok := r.cfg.ResetCommands[pkg]
	if !ok {
		r.clock.Sleep(time.Second)
		return
	}
	if _, err := r.dev.Exec(rootShell(r.cfg.SuCmd, extra)); err != nil {
		logger.Warn("[%s] reset command: %v", pkg, err)
	}
}

// ensureInstalled reports whether pkg is on the device, installing it from
// the apk folder if needed.
func (r *Runner) ensureInstalled(pkg string) bool {
	if device.IsInstalled(r.dev, pkg, r.cfg.UserID) {
		return true
	}
	if r.installer == nil {
		return false
	}
	apk, err := FindAPK(r.cfg.APKFolder, pkg)
	if err != nil {
		logger.Warn("[%s] %v", pkg, err)
		return false
	}
	if apk == "" {
		return false
	}
	logger.Info("[%s] installing %s", pkg, apk)
	if err := r.installer.Install(apk, r.cfg.UserID); err != nil {
		logger.Warn("[%s] install: %v", pkg, err)
		return false
	}
	return true
}

// FindAPK returns the APK file listed for pkg in dir's apk_info.csv, or ""
// when pkg is not listed.
func FindAPK(dir, pkg string) (string, error) {
	f, err := os.Open(filepath.Join(dir, APKIndex))
	if err != nil {
		return "", err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	header, err := rd.Read()
	if err != nil {
		return "", fmt.Errorf("read %s header: %w", APKIndex, err)
	}
	fileCol, pkgCol := -1, -1
	for i, h := range header {
		switch h {
		case "File Name":
			fileCol = i
		case "Package Name":
			pkgCol = i
		}
	}
	if fileCol < 0 || pkgCol < 0 {
		return "", fmt.Errorf("%s: missing File Name or Package Name column", APKIndex)
	}

	for {
		row, err := rd.Read()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", APKIndex, err)
		}
		if pkgCol < len(row) && fileCol < len(row) && row[pkgCol] == pkg {
			return filepath.Join(dir, row[fileCol]), nil
		}
	}
}

func rootShell(prefix, cmd string) string {
	if prefix == "" {
		return cmd
	}
	return fmt.Sprintf("%s %q", prefix, cmd)
}
