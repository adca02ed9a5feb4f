package artifact

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

// Store resolves recordings and replay outputs on the host filesystem.
type Store struct {
	RecordsDir string
	ReplaysDir string
}

// NewStore creates a store over the given records and replays roots.
func NewStore(recordsDir, replaysDir string) *Store {
	return &Store{RecordsDir: recordsDir, ReplaysDir: replaysDir}
}

// Packages lists the replayable package directories in name order.
// Post-login segment directories and plain files are skipped.
func (s *Store) Packages() ([]string, error) {
	entries, err := os.ReadDir(s.RecordsDir)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	var pkgs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasSuffix(e.Name(), PostLoginExt) {
			continue
		}
		pkgs = append(pkgs, e.Name())
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// Recording returns the main recording of pkg.
func (s *Store) Recording(pkg string) *Recording {
	return &Recording{Package: pkg, Segment: pkg, Dir: filepath.Join(s.RecordsDir, pkg)}
}

// PostLogin returns the post-login segment recording of pkg.
func (s *Store) PostLogin(pkg string) *Recording {
	seg := pkg + PostLoginExt
	return &Recording{Package: pkg, Segment: seg, Dir: filepath.Join(s.RecordsDir, seg)}
}

// ReplayDir returns the replay output directory of a segment.
func (s *Store) ReplayDir(segment string) *ReplayDir {
	return &ReplayDir{Dir: filepath.Join(s.ReplaysDir, segment)}
}

// Metadata is the per-recording metadata.json written at record time.
type Metadata struct {
	PackageName      string `yaml:"package_name"`
	MainActivity     string `yaml:"main_activity"`
	Orientation      string `yaml:"orientation"`
	AutoRotate       string `yaml:"auto_rotate"`
	Resolution       string `yaml:"resolution"`
	DPI              string `yaml:"dpi"`
	FocusedDisplayID string `yaml:"focused_display_id"`
	InternetRequired bool   `yaml:"internet_required"`
	AppResetFlag     string `yaml:"app_reset_flag"`
}

// DefaultMetadata is used when a recording has no metadata.json.
func DefaultMetadata() *Metadata {
	return &Metadata{Orientation: "3", AutoRotate: "1", FocusedDisplayID: "0", InternetRequired: true}
}

// Recording is one recorded segment of a package.
type Recording struct {
	Package string
	Segment string
	Dir     string
}

// Exists reports whether the recording directory exists.
func (r *Recording) Exists() bool {
	st, err := os.Stat(r.Dir)
	return err == nil && st.IsDir()
}

// TracePath returns the recorded event trace path.
func (r *Recording) TracePath() string {
	return filepath.Join(r.Dir, TraceFile)
}

// HasTrace reports whether the recorded trace file exists.
func (r *Recording) HasTrace() bool {
	_, err := os.Stat(r.TracePath())
	return err == nil
}

// DumpPath returns the recorded UI dump path at offset.
func (r *Recording) DumpPath(offset float64) string {
	return filepath.Join(r.Dir, DumpName(offset))
}

// ScreenshotPath returns the recorded screenshot path at offset.
func (r *Recording) ScreenshotPath(offset float64) string {
	return filepath.Join(r.Dir, ScreenshotName(offset))
}

// ArtifactNames lists the file names in the recording directory.
func (r *Recording) ArtifactNames() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Schedule derives the checkpoint timeline of the recording.
func (r *Recording) Schedule() ([]Checkpoint, error) {
	names, err := r.ArtifactNames()
	if err != nil {
		return nil, err
	}
	return Schedule(names)
}

// Metadata reads metadata.json. A missing file yields DefaultMetadata.
func (r *Recording) Metadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, MetadataFile))
	if os.IsNotExist(err) {
		logger.Warn("%s: no %s, using defaults", r.Segment, MetadataFile)
		return DefaultMetadata(), nil
	}
	if err != nil {
		return nil, err
	}

	md := DefaultMetadata()
	if err := yaml.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
	}
	md.AutoRotate = normalizeBoolSetting(md.AutoRotate)
	return md, nil
}

// settings put system accelerometer_rotation expects 0/1.
func normalizeBoolSetting(v string) string {
	switch strings.ToLower(v) {
	case "true":
		return "1"
	case "false":
		return "0"
	}
	return v
}

// Version returns the recorded app version from <version>.ver, or "".
func (r *Recording) Version() string {
	names, err := r.ArtifactNames()
	if err != nil {
		return ""
	}
	for _, n := range names {
		if strings.HasSuffix(n, VersionExt) {
			return strings.TrimSuffix(n, VersionExt)
		}
	}
	return ""
}

// LoopCount returns the repeat count from <n>.loop, defaulting to 1.
func (r *Recording) LoopCount() int {
	names, err := r.ArtifactNames()
	if err != nil {
		return 1
	}
	for _, n := range names {
		if !strings.HasSuffix(n, LoopExt) {
			continue
		}
		if c, err := strconv.Atoi(strings.TrimSuffix(n, LoopExt)); err == nil && c > 0 {
			return c
		}
	}
	return 1
}

// SkipReset reports whether the recording was made without resetting the app.
func (r *Recording) SkipReset() bool {
	_, err := os.Stat(filepath.Join(r.Dir, SkipReset))
	return err == nil
}

// ScreenOrientation returns the user_rotation matching the recorded
// screenshots: 0 for landscape, 3 for portrait. ok is false when no readable
// PNG exists.
func (r *Recording) ScreenOrientation() (rotation int, ok bool) {
	names, err := r.ArtifactNames()
	if err != nil {
		return 0, false
	}
	for _, n := range names {
		if !strings.HasSuffix(n, ".png") {
			continue
		}
		f, err := os.Open(filepath.Join(r.Dir, n))
		if err != nil {
			return 0, false
		}
		cfg, err := png.DecodeConfig(f)
		f.Close()
		if err != nil || cfg.Width == 0 || cfg.Height == 0 {
			logger.Warn("invalid image file: %s", n)
			return 0, false
		}
		if cfg.Width > cfg.Height {
			return 0, true
		}
		return 3, true
	}
	return 0, false
}

// ReplayDir is the output directory of one replayed segment.
type ReplayDir struct {
	Dir string
}

// Prepare empties and recreates the directory.
func (d *ReplayDir) Prepare() error {
	if err := os.RemoveAll(d.Dir); err != nil {
		return err
	}
	return os.MkdirAll(d.Dir, 0755)
}

// LoopPath returns where iteration count writes its captures: the segment
// directory itself for the first iteration, loop_<count+1> afterwards.
func (d *ReplayDir) LoopPath(count int) string {
	if count == 0 {
		return d.Dir
	}
	return filepath.Join(d.Dir, fmt.Sprintf("loop_%d", count+1))
}

// LoopDir creates a clean LoopPath(count) and returns it.
func (d *ReplayDir) LoopDir(count int) (string, error) {
	p := d.LoopPath(count)
	if count == 0 {
		return p, os.MkdirAll(p, 0755)
	}
	if err := os.RemoveAll(p); err != nil {
		return "", err
	}
	return p, os.MkdirAll(p, 0755)
}

// SaveMismatch copies the recorded and replayed screenshots at offset into
// loopDir as screencap_<offset>.png.lv and .png.rv for side-by-side review.
func SaveMismatch(rec *Recording, loopDir string, offset float64) error {
	name := ScreenshotName(offset)
	if err := copyFile(rec.ScreenshotPath(offset), filepath.Join(loopDir, name+LeftSuffix)); err != nil {
		return err
	}
	return copyFile(filepath.Join(loopDir, name), filepath.Join(loopDir, name+RightSuffix))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //#nosec G304 -- artifact paths
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
