// Package config handles configuration for replay-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// Config represents the workspace configuration (config.yaml or config.json).
// Keys follow the names used by existing recording setups so their
// config.json files load unchanged.
type Config struct {
	// Artifact layout
	RecordPath string `yaml:"record_path"`
	ReplayPath string `yaml:"replay_path"`
	APKFolder  string `yaml:"apk_folder"`

	// Device under test
	DeviceName string `yaml:"device_name"`
	SuCmd      string `yaml:"su_cmd"`
	UserID     string `yaml:"user_id"`
	AoWPath    string `yaml:"aow_path"` // Host launcher directory; empty disables AoW launch and recovery

	// Input topology
	RecordTouchChannel    string `yaml:"event_channel_record_touch"`
	ReplayTouchChannel    string `yaml:"event_channel_replay_touch"`
	RecordKeyboardChannel string `yaml:"event_channel_record_keyboard"`
	ReplayKeyboardChannel string `yaml:"event_channel_replay_keyboard"`
	SwapXY                bool   `yaml:"swap_x_y"`
	SwapMax               uint32 `yaml:"swap_max"`
	RecordMax35           int    `yaml:"record_max_35"`
	RecordMax36           int    `yaml:"record_max_36"`
	ReplayMax35           int    `yaml:"replay_max_35"`
	ReplayMax36           int    `yaml:"replay_max_36"`
	ReplaySpeed           Speed  `yaml:"replay_speed"`

	// Side channels
	ScanPhone          string            `yaml:"scan_phone"`
	SuCmdScanPhone     string            `yaml:"su_cmd_scan_phone"`
	ScanApps           map[string]string `yaml:"scan_apps"`
	SMSDevice          string            `yaml:"sms_phone_adb_device_name"`
	SMSTimeout         time.Duration     `yaml:"sms_timeout"`
	SMSPlaceholderCode string            `yaml:"sms_placeholder_code"`

	// Verdict
	PassThreshold         float64  `yaml:"replay_pass_threshold"`
	CompanionPackages     []string `yaml:"companion_packages"`
	IgnoreVersionMismatch bool     `yaml:"ignore_version_mismatch"`
	IntegratedWithACS     bool     `yaml:"b_integrated_with_acs"`

	// Session
	ResetCommands   map[string]string `yaml:"reset_commands"` // Extra root shell command per package, run after pm clear
	SettleDelay     time.Duration     `yaml:"settle_delay"`
	Retries         int               `yaml:"replay_retries"` // Attempts per package; stops at the first pass
	RecoveryTimeout time.Duration     `yaml:"recovery_timeout"`
	HistoryDB       string            `yaml:"history_db"`
}

// Speed is the playback speed multiplier. Recorded setups write it either
// as a number or as a quoted string ("1.0").
type Speed float64

// UnmarshalYAML accepts both numeric and string scalars.
func (s *Speed) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("replay_speed: expected scalar, got %v", value.Tag)
	}
	f, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return fmt.Errorf("replay_speed: %w", err)
	}
	*s = Speed(f)
	return nil
}

// String formats the speed the way eventrec expects it on its command line.
func (s Speed) String() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64)
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		RecordPath:         "records",
		ReplayPath:         "replays",
		APKFolder:          "apk",
		DeviceName:         "emulator-5554",
		SuCmd:              "su -c",
		UserID:             "0",
		SwapMax:            1199,
		ReplaySpeed:        1.0,
		SuCmdScanPhone:     "su -c",
		ScanApps:           map[string]string{},
		SMSTimeout:         60 * time.Second,
		SMSPlaceholderCode: "8888",
		PassThreshold:      1.0,
		CompanionPackages:  []string{"com.tencent.mm"},
		ResetCommands: map[string]string{
			"com.chaozh.iReaderFree": "rm -rf /data/media/0/iReader",
			"net.huanci.hsjpro":      "rm -rf /sdcard/HuashijiePro/Draft/*",
		},
		SettleDelay:     10 * time.Second,
		Retries:         1,
		RecoveryTimeout: 5 * time.Minute,
	}
}

// Load loads configuration from a file, layered over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("parse %s", path)).WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir looks for config.yaml, config.yml or config.json in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default(), nil
}

// Validate rejects settings that would make every run meaningless.
func (c *Config) Validate() error {
	switch {
	case c.PassThreshold < 0 || c.PassThreshold > 1:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("replay_pass_threshold %v outside [0,1]", c.PassThreshold))
	case c.ReplaySpeed <= 0:
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("replay_speed must be positive, got %v", c.ReplaySpeed))
	case c.SwapXY && c.SwapMax == 0:
		return core.ErrInvalidConfig.WithMessage("swap_x_y requires a positive swap_max")
	case c.RecordPath == "":
		return core.ErrMissingRequired.WithMessage("record_path is empty")
	}
	return nil
}

// ChannelMap returns the recorded→replay input channel renames. Pairs with an
// empty side or identical names are left out.
func (c *Config) ChannelMap() map[string]string {
	m := make(map[string]string)
	if c.RecordTouchChannel != "" && c.ReplayTouchChannel != "" && c.RecordTouchChannel != c.ReplayTouchChannel {
		m[c.RecordTouchChannel] = c.ReplayTouchChannel
	}
	if c.RecordKeyboardChannel != "" && c.ReplayKeyboardChannel != "" && c.RecordKeyboardChannel != c.ReplayKeyboardChannel {
		m[c.RecordKeyboardChannel] = c.ReplayKeyboardChannel
	}
	return m
}

// AxisMaxes returns the record/replay ABS_MT_POSITION maxima for eventrec's
// -m option. ok is false unless all four are set.
func (c *Config) AxisMaxes() (maxes [4]int, ok bool) {
	maxes = [4]int{c.RecordMax35, c.RecordMax36, c.ReplayMax35, c.ReplayMax36}
	for _, v := range maxes {
		if v == 0 {
			return maxes, false
		}
	}
	return maxes, true
}

// IsCompanion reports whether pkg may hold focus during a replay without
// counting as an application crash.
func (c *Config) IsCompanion(pkg string) bool {
	for _, p := range c.CompanionPackages {
		if p == pkg {
			return true
		}
	}
	return false
}
