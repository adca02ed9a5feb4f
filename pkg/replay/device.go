package replay

import (
	"fmt"
	"path/filepath"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Device-side paths.
const (
	DeviceTmp        = "/data/local/tmp/"
	DeviceLogcat     = DeviceTmp + "rr.logcat"
	DeviceScreenshot = DeviceTmp + "screencap.png"
	DeviceWindowDump = "/sdcard/window_dump.xml"
)

// QRScreenshot is the fresh screenshot handed to the QR handler.
const QRScreenshot = "screencap_QR.png"

// rootShell wraps cmd for execution under the root prefix, if any.
func (c *Controller) rootShell(cmd string) string {
	if c.cfg.RootPrefix == "" {
		return cmd
	}
	return fmt.Sprintf("%s %q", c.cfg.RootPrefix, cmd)
}

// startLogcat clears the log buffer and streams logcat to a device file.
func (c *Controller) startLogcat() {
	if _, err := c.dev.Exec("logcat -c"); err != nil {
		logger.Warn("clear logcat: %v", err)
	}
	if err := c.dev.ExecAsync(c.rootShell("logcat > " + DeviceLogcat)); err != nil {
		logger.Warn("start logcat: %v", err)
	}
}

// stopLogcat kills logcat and pulls its output as <pkg>.logcat. Failures
// are logged only.
func (c *Controller) stopLogcat(p *Plan) {
	for _, pid := range device.PidOf(c.dev, "logcat") {
		if _, err := c.dev.Exec(c.rootShell("kill -9 " + pid)); err != nil {
			logger.Debug("kill logcat %s: %v", pid, err)
		}
	}
	local := filepath.Join(p.OutDir, p.Package+".logcat")
	if ok, err := c.dev.Pull(DeviceLogcat, local); err != nil || !ok {
		logger.Warn("pull logcat for %s: ok=%v err=%v", p.Package, ok, err)
	}
}

// captureDump pulls the window hierarchy of all displays as
// window_dump_<offset>.xml.
func (c *Controller) captureDump(offset float64, dir string) bool {
	if _, err := c.dev.Exec("uiautomator dump --windows"); err != nil {
		logger.Warn("uiautomator dump at %s: %v", artifact.FormatOffset(offset), err)
	}
	return c.pull(DeviceWindowDump, filepath.Join(dir, artifact.DumpName(offset)))
}

// captureScreenshot pulls a screenshot of display to local.
func (c *Controller) captureScreenshot(display, local string) bool {
	cmd := fmt.Sprintf("screencap -d %s -p %s", display, DeviceScreenshot)
	if _, err := c.dev.Exec(cmd); err != nil {
		logger.Warn("screencap: %v", err)
	}
	return c.pull(DeviceScreenshot, local)
}

func (c *Controller) pull(remote, local string) bool {
	ok, err := c.dev.Pull(remote, local)
	if err != nil {
		logger.Warn("pull %s: %v", remote, err)
		return false
	}
	if !ok {
		logger.Warn("fail to pull %s: not found on device", remote)
	}
	return ok
}
