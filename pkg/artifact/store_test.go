package artifact

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

func TestStore_Packages(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"com.b", "com.a", "com.a_after_login"} {
		os.MkdirAll(filepath.Join(root, d), 0755)
	}
	writeFile(t, filepath.Join(root, "apk_info.csv"), "")

	s := NewStore(root, t.TempDir())
	got, err := s.Packages()
	if err != nil {
		t.Fatalf("Packages() error = %v", err)
	}
	if diff := cmp.Diff([]string{"com.a", "com.b"}, got); diff != "" {
		t.Errorf("Packages() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PackagesMissingRoot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"), "")
	if _, err := s.Packages(); err == nil {
		t.Error("Packages() expected error")
	}
}

func TestRecording_Files(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, t.TempDir())
	rec := s.Recording("com.example")

	if rec.Exists() || rec.HasTrace() {
		t.Fatal("recording should not exist yet")
	}

	writeFile(t, rec.TracePath(), "[ 1.000000] /dev/input/event3: 0000 0000 00000000\n")
	writeFile(t, filepath.Join(rec.Dir, "8.0.33.ver"), "")
	writeFile(t, filepath.Join(rec.Dir, "3.loop"), "")
	writeFile(t, filepath.Join(rec.Dir, SkipReset), "")

	if !rec.Exists() || !rec.HasTrace() {
		t.Error("Exists()/HasTrace() = false")
	}
	if got := rec.Version(); got != "8.0.33" {
		t.Errorf("Version() = %q, want 8.0.33", got)
	}
	if got := rec.LoopCount(); got != 3 {
		t.Errorf("LoopCount() = %d, want 3", got)
	}
	if !rec.SkipReset() {
		t.Error("SkipReset() = false")
	}

	post := s.PostLogin("com.example")
	if post.Segment != "com.example_after_login" || post.Package != "com.example" {
		t.Errorf("PostLogin() = %+v", post)
	}
}

func TestRecording_Defaults(t *testing.T) {
	rec := NewStore(t.TempDir(), "").Recording("com.example")
	os.MkdirAll(rec.Dir, 0755)
	writeFile(t, filepath.Join(rec.Dir, "x.loop"), "")

	if got := rec.Version(); got != "" {
		t.Errorf("Version() = %q, want empty", got)
	}
	if got := rec.LoopCount(); got != 1 {
		t.Errorf("LoopCount() = %d, want 1", got)
	}
	if rec.SkipReset() {
		t.Error("SkipReset() = true")
	}
	md, err := rec.Metadata()
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if diff := cmp.Diff(DefaultMetadata(), md); diff != "" {
		t.Errorf("Metadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecording_Metadata(t *testing.T) {
	rec := NewStore(t.TempDir(), "").Recording("com.example")
	writeFile(t, filepath.Join(rec.Dir, MetadataFile), `{"package_name": "com.example", "auto_rotate": false,
"resolution": "1200x2000", "orientation": "0", "dpi": "240", "internet_required": true,
"app_reset_flag": "yes", "main_activity": ".MainActivity", "focused_display_id": "7"}`)

	md, err := rec.Metadata()
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	want := &Metadata{
		PackageName:      "com.example",
		MainActivity:     ".MainActivity",
		Orientation:      "0",
		AutoRotate:       "0",
		Resolution:       "1200x2000",
		DPI:              "240",
		FocusedDisplayID: "7",
		InternetRequired: true,
		AppResetFlag:     "yes",
	}
	if diff := cmp.Diff(want, md); diff != "" {
		t.Errorf("Metadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestRecording_ScreenOrientation(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		want   int
		wantOK bool
	}{
		{"landscape", 40, 20, 0, true},
		{"portrait", 20, 40, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewStore(t.TempDir(), "").Recording("com.example")
			os.MkdirAll(rec.Dir, 0755)
			writePNG(t, rec.ScreenshotPath(1), tt.w, tt.h)

			got, ok := rec.ScreenOrientation()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ScreenOrientation() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRecording_ScreenOrientationInvalid(t *testing.T) {
	rec := NewStore(t.TempDir(), "").Recording("com.example")
	writeFile(t, rec.ScreenshotPath(1), "not a png")
	if _, ok := rec.ScreenOrientation(); ok {
		t.Error("ScreenOrientation() ok = true for corrupt PNG")
	}
}

func TestRecording_Schedule(t *testing.T) {
	rec := NewStore(t.TempDir(), "").Recording("com.example")
	writeFile(t, rec.DumpPath(2), "<hierarchy/>")
	writeFile(t, rec.DumpPath(1), "<hierarchy/>")
	writeFile(t, filepath.Join(rec.Dir, SMSName(2)), "")

	got, err := rec.Schedule()
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(got) != 2 || got[0].Kind != KindNormal || got[1].Kind != KindSMS {
		t.Errorf("Schedule() = %+v", got)
	}
}

func TestReplayDir_Loops(t *testing.T) {
	d := NewStore("", t.TempDir()).ReplayDir("com.example")
	writeFile(t, filepath.Join(d.Dir, "stale.xml"), "")

	if err := d.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(d.Dir, "stale.xml")); !os.IsNotExist(err) {
		t.Error("Prepare() kept stale files")
	}

	first, err := d.LoopDir(0)
	if err != nil || first != d.Dir {
		t.Errorf("LoopDir(0) = %q, %v", first, err)
	}
	second, err := d.LoopDir(1)
	if err != nil || second != filepath.Join(d.Dir, "loop_2") {
		t.Errorf("LoopDir(1) = %q, %v", second, err)
	}
	if st, err := os.Stat(second); err != nil || !st.IsDir() {
		t.Error("LoopDir(1) did not create the directory")
	}
}

func TestSaveMismatch(t *testing.T) {
	rec := NewStore(t.TempDir(), "").Recording("com.example")
	loop := t.TempDir()
	writeFile(t, rec.ScreenshotPath(4), "recorded")
	writeFile(t, filepath.Join(loop, ScreenshotName(4)), "replayed")

	if err := SaveMismatch(rec, loop, 4); err != nil {
		t.Fatalf("SaveMismatch() error = %v", err)
	}
	lv, _ := os.ReadFile(filepath.Join(loop, "screencap_0004.0000.png.lv"))
	rv, _ := os.ReadFile(filepath.Join(loop, "screencap_0004.0000.png.rv"))
	if string(lv) != "recorded" || string(rv) != "replayed" {
		t.Errorf("lv=%q rv=%q", lv, rv)
	}
}
