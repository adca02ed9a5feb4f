package replay

import (
	"fmt"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
	"github.com/devicelab-dev/replay-runner/pkg/sidechannel"
)

// applyMetadata restores the recorded rotation settings.
func (c *Controller) applyMetadata(md *artifact.Metadata) {
	if md.Orientation != "" {
		if err := device.PutSystemSetting(c.dev, "user_rotation", md.Orientation); err != nil {
			logger.Warn("set user_rotation: %v", err)
		}
	}
	if md.AutoRotate != "" {
		if err := device.PutSystemSetting(c.dev, "accelerometer_rotation", md.AutoRotate); err != nil {
			logger.Warn("set accelerometer_rotation: %v", err)
		}
	}
}

// launch starts the app the way the environment supports: through the AoW
// host launcher, with monkey when no activity was recorded, or with am start
// on the recorded display.
func (c *Controller) launch(p *Plan) error {
	md := p.Metadata
	switch {
	case c.cfg.AoWPath != "":
		logger.Info("Launching %s via AoW", p.Package)
		return c.LaunchHost(c.cfg.AoWPath, p.Package)
	case md.MainActivity == "":
		logger.Info("Launching %s via monkey", p.Package)
		_, err := c.dev.Exec(sidechannel.LaunchCommand(p.Package))
		return err
	default:
		cmd := fmt.Sprintf("am start -n %s/%s --display %s", p.Package, md.MainActivity, md.FocusedDisplayID)
		logger.Info("Launching %s: %s", p.Package, cmd)
		_, err := c.dev.Exec(c.rootShell(cmd))
		return err
	}
}

// resetRotation locks rotation to match the recorded screenshots.
func (c *Controller) resetRotation(rec *artifact.Recording) {
	if rec == nil {
		return
	}
	rotation, ok := rec.ScreenOrientation()
	if !ok {
		return
	}
	if err := device.PutSystemSetting(c.dev, "accelerometer_rotation", "0"); err != nil {
		logger.Warn("disable auto rotation: %v", err)
	}
	if err := device.PutSystemSetting(c.dev, "user_rotation", fmt.Sprint(rotation)); err != nil {
		logger.Warn("set user_rotation: %v", err)
	}
}
