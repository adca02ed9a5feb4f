package device

import (
	"fmt"
	"regexp"
	"strings"
)

var focusedPackage = regexp.MustCompile(` ([0-9a-zA-Z._]+)/`)

// FocusedPackages returns the packages that own mFocusedApp on any display.
func FocusedPackages(s Session) ([]string, error) {
	out, err := s.Exec("dumpsys window | grep -i mFocusedApp")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for _, m := range focusedPackage.FindAllStringSubmatch(out, -1) {
		pkgs = append(pkgs, m[1])
	}
	return pkgs, nil
}

// AppVersion returns versionName of pkg, or "0.0" if it cannot be read.
func AppVersion(s Session, pkg string) string {
	out, err := s.Exec(fmt.Sprintf("dumpsys package %s | grep versionName", pkg))
	if err != nil {
		return "0.0"
	}
	for _, line := range strings.Split(out, "\n") {
		if _, v, ok := strings.Cut(line, "="); ok {
			return strings.TrimSpace(v)
		}
	}
	return "0.0"
}

// IsInstalled reports whether pkg is installed for user.
func IsInstalled(s Session, pkg, user string) bool {
	cmd := "pm list packages"
	if user != "" {
		cmd += " --user " + user
	}
	out, err := s.Exec(cmd)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// PidOf returns the pids of a running process name.
func PidOf(s Session, name string) []string {
	out, err := s.Exec("pidof " + name)
	if err != nil {
		return nil
	}
	return strings.Fields(out)
}

// ABI returns ro.product.cpu.abi.
func ABI(s Session) (string, error) {
	out, err := s.Exec("getprop ro.product.cpu.abi")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsARM reports whether the device ABI is an ARM variant.
func IsARM(s Session) bool {
	abi, err := ABI(s)
	return err == nil && strings.Contains(abi, "arm")
}

// PutSystemSetting writes a value with settings put system.
func PutSystemSetting(s Session, key, value string) error {
	_, err := s.Exec(fmt.Sprintf("settings put system %s %s", key, value))
	return err
}

// DeviceTime returns the device clock in Unix seconds, as printed by date.
func DeviceTime(s Session) (string, error) {
	out, err := s.Exec(`date "+%s"`)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
