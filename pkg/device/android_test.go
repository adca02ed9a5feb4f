package device

import (
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// skipIfNoDevice skips the test if no device is connected.
func skipIfNoDevice(t *testing.T) {
	t.Helper()
	cmd := exec.Command("adb", "devices")
	out, err := cmd.Output()
	if err != nil {
		t.Skip("adb not available")
	}
	if _, err := parseDevices(string(out)); err != nil {
		t.Skip("no device connected")
	}
}

func TestParseDevices(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{"single", "List of devices attached\nemulator-5554\tdevice\n\n", "emulator-5554", false},
		{"skips offline", "List of devices attached\nabc\toffline\n127.0.0.1:5555\tdevice\n", "127.0.0.1:5555", false},
		{"unauthorized only", "List of devices attached\nabc\tunauthorized\n", "", true},
		{"empty", "List of devices attached\n\n", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDevices(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDevices() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDevices() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAndroidDevice_Args(t *testing.T) {
	d := &AndroidDevice{serial: "emulator-5554", adbPath: "adb"}
	got := strings.Join(d.args("shell", "ls"), " ")
	if got != "-s emulator-5554 shell ls" {
		t.Errorf("args() = %q", got)
	}

	d.serial = ""
	got = strings.Join(d.args("get-state"), " ")
	if got != "get-state" {
		t.Errorf("args() without serial = %q", got)
	}
}

func TestAndroidDevice_New(t *testing.T) {
	skipIfNoDevice(t)

	d, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if d.Serial() == "" {
		t.Error("expected auto-detected serial")
	}
	if !d.IsConnected() {
		t.Error("expected device to be connected")
	}
}

func TestAndroidDevice_Exec(t *testing.T) {
	skipIfNoDevice(t)

	d, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	out, err := d.Exec("echo hello")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("Exec() = %q, want hello", out)
	}
}

func TestAndroidDevice_PushPull(t *testing.T) {
	skipIfNoDevice(t)

	d, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	dir := t.TempDir()
	local := filepath.Join(dir, "in.txt")
	if err := writeFile(local, "payload"); err != nil {
		t.Fatal(err)
	}
	remote := "/data/local/tmp/replay_runner_test.txt"
	if err := d.Push(local, remote); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if !d.FileExists(remote) {
		t.Fatal("pushed file not found on device")
	}

	ok, err := d.Pull(remote, filepath.Join(dir, "out.txt"))
	if err != nil || !ok {
		t.Fatalf("Pull() = %v, %v", ok, err)
	}
	if d.FileExists(remote) {
		t.Error("expected Pull to remove the remote file")
	}
}

func TestAndroidDevice_PullMissing(t *testing.T) {
	skipIfNoDevice(t)

	d, err := New("")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ok, err := d.Pull("/data/local/tmp/does_not_exist_rr", filepath.Join(t.TempDir(), "x"))
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if ok {
		t.Error("expected Pull to report a missing file")
	}
}
