// Package sidechannel handles checkpoints that drive a second device instead
// of capturing UI state: QR scanning, SMS verification codes and performance
// collection hooks.
package sidechannel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// DeviceTmp is the writable directory used for helper binaries and traces.
const DeviceTmp = "/data/local/tmp/"

const (
	scanReplayBinary = "scan_qr_replay"
	scanEventsSuffix = ".scan.events"
)

// QRHandler replays a scan of a freshly captured QR code on the scan phone.
type QRHandler struct {
	Scanner device.Session
	SuCmd   string // Root prefix on the scan phone
	User    string // Android user whose DCIM receives the image
	BinDir  string // Host directory holding scan_qr_replay and *.scan.events
	// Fallback is the binary pushed as the scan replayer when BinDir has no
	// scan_qr_replay.
	Fallback string
}

// Handle pushes png to the scan phone, refreshes its gallery, starts the
// recorded scan gesture for scanApp and launches scanApp.
//
// Only a failed image push is fatal; later steps are logged and skipped, so
// a broken scan phone surfaces as a mismatch on a later checkpoint.
func (h *QRHandler) Handle(ctx context.Context, png, scanApp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Scanner == nil {
		return fmt.Errorf("qr checkpoint for %s: no scan phone configured", scanApp)
	}
	logger.Info("QR checkpoint: scan app %s, image %s", scanApp, png)

	dcim := fmt.Sprintf("/data/media/%s/DCIM/", h.User)
	if err := h.Scanner.Push(png, dcim); err != nil {
		return fmt.Errorf("push qr image: %w", err)
	}

	replayer := filepath.Join(h.BinDir, scanReplayBinary)
	if _, err := os.Stat(replayer); err != nil && h.Fallback != "" {
		replayer = filepath.Join(h.BinDir, h.Fallback)
	}
	h.push(replayer, DeviceTmp+scanReplayBinary)

	eventsFile := scanApp + scanEventsSuffix
	localEvents := filepath.Join(h.BinDir, eventsFile)
	if _, err := os.Stat(localEvents); err == nil {
		h.push(localEvents, DeviceTmp)
	} else {
		logger.Info("%s not found locally, assuming it is already on the scan phone", eventsFile)
	}

	h.exec(fmt.Sprintf("am broadcast --user %s -a android.intent.action.MEDIA_SCANNER_SCAN_FILE -d file:///sdcard/DCIM", h.User))
	h.exec(fmt.Sprintf("%s chmod a+x %s%s", h.SuCmd, DeviceTmp, scanReplayBinary))

	scan := fmt.Sprintf("%s %s%s -p %s%s", h.SuCmd, DeviceTmp, scanReplayBinary, DeviceTmp, eventsFile)
	if err := h.Scanner.ExecAsync(scan); err != nil {
		logger.Warn("start scan replay: %v", err)
	}

	h.exec(LaunchCommand(scanApp))
	return nil
}

func (h *QRHandler) push(local, remote string) {
	if err := h.Scanner.Push(local, remote); err != nil {
		logger.Warn("push %s to scan phone: %v", local, err)
	}
}

func (h *QRHandler) exec(cmd string) {
	if _, err := h.Scanner.Exec(cmd); err != nil {
		logger.Warn("scan phone %q: %v", cmd, err)
	}
}

// LaunchCommand returns the monkey invocation that starts pkg's launcher
// activity.
func LaunchCommand(pkg string) string {
	return fmt.Sprintf("monkey --pct-syskeys 0 -p %s -c android.intent.category.LAUNCHER 1", pkg)
}
