package replay

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/devicelab-dev/replay-runner/pkg/artifact"
	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device/mock"
	"github.com/devicelab-dev/replay-runner/pkg/sidechannel"
)

const testPkg = "com.example.app"

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newDevice returns a connected mock whose captures always succeed and whose
// focused app is testPkg.
func newDevice() *mock.Session {
	s := mock.New()
	s.On("dumpsys window", "  mFocusedApp=ActivityRecord{1 u0 "+testPkg+"/.Main t1}\n")
	s.OnFunc("uiautomator dump", func(string) (string, error) {
		s.PutFile(DeviceWindowDump, []byte(`<hierarchy><node class="A"/></hierarchy>`))
		return "UI hierchary dumped to: /sdcard/window_dump.xml", nil
	})
	s.OnFunc("screencap", func(string) (string, error) {
		s.PutFile(DeviceScreenshot, []byte("png"))
		return "", nil
	})
	return s
}

func newPlan(t *testing.T, cps ...artifact.Checkpoint) *Plan {
	t.Helper()
	rec := &artifact.Recording{Package: testPkg, Segment: testPkg, Dir: t.TempDir()}
	return &Plan{
		Package:   testPkg,
		Segment:   testPkg,
		Recording: rec,
		Metadata:  artifact.DefaultMetadata(),
		Schedule:  cps,
		OutDir:    t.TempDir(),
	}
}

func normal(off float64) artifact.Checkpoint {
	return artifact.Checkpoint{Offset: off, Kind: artifact.KindNormal}
}

func newController(s *mock.Session, cfg Config) (*Controller, *[]State) {
	var states []State
	cfg.OnState = func(_ string, st State) { states = append(states, st) }
	c := New(s, cfg)
	c.Clock = mock.NewClock(epoch)
	c.LaunchHost = func(string, string) error { return nil }
	return c, &states
}

func TestRun_Normal(t *testing.T) {
	s := newDevice()
	c, states := newController(s, Config{Speed: 1, SpeedControl: true})
	p := newPlan(t, normal(1.0), normal(2.5))

	res := c.Run(context.Background(), p)

	if res.Verdict != core.VerdictPending {
		t.Fatalf("Verdict = %v (%s), want pending evaluation", res.Verdict, res.Message)
	}
	for _, off := range []float64{1.0, 2.5} {
		for _, name := range []string{artifact.DumpName(off), artifact.ScreenshotName(off)} {
			if _, err := os.Stat(filepath.Join(p.OutDir, name)); err != nil {
				t.Errorf("missing capture %s: %v", name, err)
			}
		}
	}

	want := []State{StateStarting, StateWarmingUp, StatePlaying,
		StateWaiting, StateCapturing, StateWaiting, StateCapturing,
		StateDraining, StateStopped}
	if diff := cmp.Diff(want, *states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}

	async := s.AsyncCalls()
	if len(async) != 2 || async[1] != "/data/local/tmp/eventrec -p /data/local/tmp/events.txt -s 1" {
		t.Errorf("async calls = %v", async)
	}
	if !s.Called("am force-stop " + testPkg) {
		t.Error("expected force-stop after the run")
	}
	if !s.Called("monkey --pct-syskeys 0 -p " + testPkg) {
		t.Error("expected monkey launch without a main activity")
	}
	// 10s warm-up plus the last checkpoint offset.
	if res.Duration != 12500*time.Millisecond {
		t.Errorf("Duration = %v", res.Duration)
	}
}

func TestRun_WarmupDeviceLost(t *testing.T) {
	s := newDevice()
	s.DisconnectAfter(3)
	c, _ := newController(s, Config{})
	p := newPlan(t, normal(1.0))

	res := c.Run(context.Background(), p)

	if res.Verdict != core.VerdictSysCrash {
		t.Fatalf("Verdict = %v, want SysCrash", res.Verdict)
	}
	if c.State() != StateSysCrash {
		t.Errorf("State = %v", c.State())
	}
	for _, a := range s.AsyncCalls() {
		if strings.Contains(a, "eventrec") {
			t.Errorf("event player must not start after a warm-up crash: %v", a)
		}
	}
	if s.Called("uiautomator dump") {
		t.Error("no checkpoint should be captured")
	}
	if !s.Called("pidof logcat") {
		t.Error("expected logcat to be stopped")
	}
}

func TestRun_DeviceLostBeforeCheckpoint(t *testing.T) {
	s := newDevice()
	s.DisconnectAfter(10)
	c, _ := newController(s, Config{})

	res := c.Run(context.Background(), newPlan(t, normal(1.0)))
	if res.Verdict != core.VerdictSysCrash {
		t.Fatalf("Verdict = %v, want SysCrash", res.Verdict)
	}
	if s.Called("uiautomator dump") {
		t.Error("no checkpoint should be captured")
	}
}

func TestRun_AppCrash(t *testing.T) {
	s := newDevice()
	s.On("dumpsys window", "  mFocusedApp=ActivityRecord{1 u0 com.android.launcher3/.Launcher t1}\n")
	c, _ := newController(s, Config{Companions: []string{"com.tencent.mm"}})

	res := c.Run(context.Background(), newPlan(t, normal(1.0), normal(2.0)))
	if res.Verdict != core.VerdictAppCrash {
		t.Fatalf("Verdict = %v, want AppCrash", res.Verdict)
	}
	if !errors.Is(res.Err, core.ErrAppCrashed) {
		t.Errorf("Err = %v, want ErrAppCrashed", res.Err)
	}
	if s.Called("am force-stop") {
		t.Error("crashed runs are not force-stopped")
	}
}

func TestRun_CompanionHoldsFocus(t *testing.T) {
	s := newDevice()
	s.On("dumpsys window", "  mFocusedApp=ActivityRecord{1 u0 com.tencent.mm/.ui.LauncherUI t1}\n")
	c, _ := newController(s, Config{Companions: []string{"com.tencent.mm"}})

	res := c.Run(context.Background(), newPlan(t, normal(1.0)))
	if res.Verdict != core.VerdictPending {
		t.Fatalf("Verdict = %v (%s)", res.Verdict, res.Message)
	}
}

func TestRun_DrainWaitsForPlayer(t *testing.T) {
	s := newDevice()
	var polls atomic.Int32
	s.OnFunc("pidof eventrec", func(string) (string, error) {
		if polls.Add(1) <= 3 {
			return "4242\n", nil
		}
		return "", nil
	})
	c, _ := newController(s, Config{})

	res := c.Run(context.Background(), newPlan(t, normal(0.5)))
	if res.Verdict != core.VerdictPending {
		t.Fatalf("Verdict = %v (%s)", res.Verdict, res.Message)
	}
	if polls.Load() != 4 {
		t.Errorf("pidof polled %d times, want 4", polls.Load())
	}
}

func TestRun_DeviceLostWhileDraining(t *testing.T) {
	s := newDevice()
	s.On("pidof eventrec", "4242\n")
	// 10 warm-up checks, 1 before the checkpoint, then lost while draining.
	s.DisconnectAfter(11)
	c, _ := newController(s, Config{})

	res := c.Run(context.Background(), newPlan(t, normal(0.5)))
	if res.Verdict != core.VerdictSysCrash {
		t.Fatalf("Verdict = %v, want SysCrash", res.Verdict)
	}
	if !s.Called("uiautomator dump") {
		t.Error("checkpoint before the crash should be captured")
	}
}

func TestRun_DeviceLostWhenPlayerQueryFails(t *testing.T) {
	s := newDevice()
	s.OnError("pidof eventrec", errors.New("device offline"))
	s.DisconnectAfter(11)
	c, _ := newController(s, Config{})

	res := c.Run(context.Background(), newPlan(t, normal(0.5)))
	if res.Verdict != core.VerdictSysCrash {
		t.Fatalf("Verdict = %v, want SysCrash", res.Verdict)
	}
	if !errors.Is(res.Err, core.ErrDeviceLost) {
		t.Errorf("Err = %v, want ErrDeviceLost", res.Err)
	}
	if c.State() != StateSysCrash {
		t.Errorf("State = %v", c.State())
	}
	if s.Called("am force-stop") {
		t.Error("crashed runs are not force-stopped")
	}
}

func TestRun_FocusQueryErrors(t *testing.T) {
	tests := []struct {
		name       string
		failures   int32 // failing dumpsys calls before it answers
		disconnect int
		want       core.Verdict
	}{
		{"retried once", 1, -1, core.VerdictPending},
		{"query keeps failing", 1000, -1, core.VerdictPending},
		// 10 warm-up checks and 1 before the checkpoint, then lost.
		{"device lost", 1000, 11, core.VerdictSysCrash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newDevice()
			var calls atomic.Int32
			s.OnFunc("dumpsys window", func(string) (string, error) {
				if calls.Add(1) <= tt.failures {
					return "", errors.New("dumpsys failed")
				}
				return "  mFocusedApp=ActivityRecord{1 u0 " + testPkg + "/.Main t1}\n", nil
			})
			s.DisconnectAfter(tt.disconnect)
			c, _ := newController(s, Config{})

			res := c.Run(context.Background(), newPlan(t, normal(0.5)))
			if res.Verdict != tt.want {
				t.Errorf("Verdict = %v (%s), want %v", res.Verdict, res.Message, tt.want)
			}
		})
	}
}

func TestRun_Cancelled(t *testing.T) {
	s := newDevice()
	c, _ := newController(s, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Run(ctx, newPlan(t, normal(1.0)))
	if res.Verdict != core.VerdictInvalid {
		t.Fatalf("Verdict = %v, want Invalid", res.Verdict)
	}
	if c.State() != StateStopped {
		t.Errorf("State = %v", c.State())
	}
}

func TestRun_ActivityLaunchAndRotation(t *testing.T) {
	s := newDevice()
	c, _ := newController(s, Config{RootPrefix: "su -c"})
	p := newPlan(t)
	p.Metadata.MainActivity = ".MainActivity"
	p.Metadata.FocusedDisplayID = "2"
	p.Metadata.Orientation = "1"

	f, err := os.Create(filepath.Join(p.Recording.Dir, artifact.ScreenshotName(1)))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 40, 20))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	c.Run(context.Background(), p)

	calls := s.Calls()
	want := []string{
		"settings put system user_rotation 1",
		"settings put system accelerometer_rotation 1",
		`su -c "am start -n com.example.app/.MainActivity --display 2"`,
		"settings put system accelerometer_rotation 0",
		"settings put system user_rotation 0",
	}
	// calls[0] is logcat -c
	if diff := cmp.Diff(want, calls[1:6]); diff != "" {
		t.Errorf("startup calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_AoWLaunch(t *testing.T) {
	s := newDevice()
	c, _ := newController(s, Config{AoWPath: `C:\AoW`})
	var launched string
	c.LaunchHost = func(dir, pkg string) error {
		launched = dir + "|" + pkg
		return nil
	}
	c.Run(context.Background(), newPlan(t))
	if launched != `C:\AoW|`+testPkg {
		t.Errorf("LaunchHost called with %q", launched)
	}
}

func TestRun_SideChannels(t *testing.T) {
	s := newDevice()
	scanner := mock.New()
	c, _ := newController(s, Config{})
	c.QR = &sidechannel.QRHandler{Scanner: scanner, SuCmd: "su -c", User: "0", BinDir: t.TempDir()}

	var perfAt float64
	c.Perf = func(_ context.Context, _ string, off float64) error {
		perfAt = off
		return nil
	}

	p := newPlan(t,
		artifact.Checkpoint{Offset: 1, Kind: artifact.KindQR, Companion: "com.tencent.mm"},
		artifact.Checkpoint{Offset: 2, Kind: artifact.KindPerf},
		artifact.Checkpoint{Offset: 3, Kind: artifact.KindSMS},
	)
	res := c.Run(context.Background(), p)
	if res.Verdict != core.VerdictPending {
		t.Fatalf("Verdict = %v (%s)", res.Verdict, res.Message)
	}

	if _, err := os.Stat(filepath.Join(p.OutDir, QRScreenshot)); err != nil {
		t.Errorf("QR screenshot missing: %v", err)
	}
	pushes := scanner.Pushes()
	if len(pushes) == 0 || pushes[0].Remote != "/data/media/0/DCIM/" {
		t.Errorf("scanner pushes = %v", pushes)
	}
	if perfAt != 2 {
		t.Errorf("perf hook offset = %v", perfAt)
	}
	if s.Called("uiautomator dump") {
		t.Error("side-channel checkpoints must not capture dumps")
	}
}

func TestPlaybackCommand(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default", Config{}, "/data/local/tmp/eventrec -p /data/local/tmp/events.txt"},
		{"speed", Config{Speed: 0.5, SpeedControl: true}, "/data/local/tmp/eventrec -p /data/local/tmp/events.txt -s 0.5"},
		{"maxes", Config{AxisMaxes: [4]int{1079, 2339, 1199, 1999}, UseAxisMaxes: true},
			"/data/local/tmp/eventrec -p /data/local/tmp/events.txt -m 1079 2339 1199 1999"},
		{"arm", Config{Eventrec: "eventrec.arm", RootPrefix: "su -c"},
			`su -c "/data/local/tmp/eventrec.arm -p /data/local/tmp/events.txt"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(mock.New(), tt.cfg).PlaybackCommand(); got != tt.want {
				t.Errorf("PlaybackCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if StateWarmingUp.String() != "WARMING_UP" || StateSysCrash.String() != "SYS_CRASH" {
		t.Error("unexpected state names")
	}
	if !StateAppCrash.IsTerminal() || StatePlaying.IsTerminal() {
		t.Error("unexpected IsTerminal")
	}
}
