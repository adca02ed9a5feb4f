package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "REPLAY_RUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the replay-runner home directory.
//
// Resolution order:
//  1. $REPLAY_RUNNER_HOME
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetBinDir returns <home>/bin, where the on-device helpers live
// (eventrec, eventrec.arm, scan_qr_replay and <pkg>.scan.events).
func GetBinDir() string {
	return filepath.Join(GetHome(), "bin")
}

// BinFile returns the path of a helper under GetBinDir.
func BinFile(name string) string {
	return filepath.Join(GetBinDir(), name)
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/replay-runner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. Current working directory
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
