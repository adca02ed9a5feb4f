// Package device provides Android device sessions via ADB.
package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Pull waits this long, in pullPollInterval steps, for a remote file to appear.
const (
	pullPollInterval = 100 * time.Millisecond
	pullPollAttempts = 10
)

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial  string
	adbPath string
}

// New creates an AndroidDevice for the given serial and waits briefly for it.
// If serial is empty, it auto-detects the connected device.
func New(serial string) (*AndroidDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	if serial == "" {
		serial, err = detectDeviceSerial(adbPath)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
	}

	d := &AndroidDevice{
		serial:  serial,
		adbPath: adbPath,
	}

	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}

	return d, nil
}

// Open creates an AndroidDevice without checking that it is reachable. Used
// for secondary devices that only matter at side-channel checkpoints.
func Open(serial string) (*AndroidDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	return &AndroidDevice{serial: serial, adbPath: adbPath}, nil
}

// detectDeviceSerial finds the first connected device serial.
func detectDeviceSerial(adbPath string) (string, error) {
	cmd := exec.Command(adbPath, "devices")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return parseDevices(string(out))
}

func parseDevices(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == "device" {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("no connected devices found")
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Exec executes a shell command on the device.
func (d *AndroidDevice) Exec(cmd string) (string, error) {
	return d.adb("shell", cmd)
}

// ExecAsync starts a shell command on the device and returns immediately.
// The adb process is reaped in the background.
func (d *AndroidDevice) ExecAsync(cmd string) error {
	c := exec.Command(d.adbPath, d.args("shell", cmd)...)
	if err := c.Start(); err != nil {
		return fmt.Errorf("adb shell %s: %w", cmd, err)
	}
	go func() {
		if err := c.Wait(); err != nil {
			logger.Debug("async adb shell %q exited: %v", cmd, err)
		}
	}()
	return nil
}

// Push copies a host file to the device.
func (d *AndroidDevice) Push(local, remote string) error {
	_, err := d.adb("push", local, remote)
	return err
}

// Pull waits for remote to exist, copies it to local and removes it from
// the device.
func (d *AndroidDevice) Pull(remote, local string) (bool, error) {
	found := false
	for i := 0; i < pullPollAttempts; i++ {
		if d.FileExists(remote) {
			found = true
			break
		}
		time.Sleep(pullPollInterval)
	}
	if !found {
		return false, nil
	}
	if _, err := d.adb("pull", remote, local); err != nil {
		return false, err
	}
	if _, err := d.Exec("rm " + remote); err != nil {
		logger.Warn("remove %s after pull: %v", remote, err)
	}
	return true, nil
}

// IsConnected checks if the device answers get-state with "device".
func (d *AndroidDevice) IsConnected() bool {
	out, err := d.adb("get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// FileExists checks for a file on the device.
func (d *AndroidDevice) FileExists(path string) bool {
	out, err := d.Exec("ls " + path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == path
}

// Install installs an APK for the given user.
func (d *AndroidDevice) Install(apkPath, user string) error {
	args := []string{"install", "-g"}
	if user != "" {
		args = append(args, "--user", user)
	}
	_, err := d.adb(append(args, apkPath)...)
	return err
}

func (d *AndroidDevice) args(args ...string) []string {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	return append(cmdArgs, args...)
}

// adb executes an ADB command.
func (d *AndroidDevice) adb(args ...string) (string, error) {
	cmd := exec.Command(d.adbPath, d.args(args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}

	return stdout.String(), nil
}

// waitForDevice waits for the device to be available.
func (d *AndroidDevice) waitForDevice(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.IsConnected() {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for device %s", d.serial)
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
