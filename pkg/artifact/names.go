// Package artifact owns the on-disk layout of recordings and replays,
// including the filename protocol that encodes capture offsets and
// side-channel markers in artifact names.
package artifact

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// Filename protocol.
const (
	DumpPrefix       = "window_dump_"
	DumpSuffix       = ".xml"
	ScreenshotPrefix = "screencap_"
	ScreenshotSuffix = ".png"
	QRPrefix         = "qrcode."
	SMSPrefix        = "sms."
	PerfPrefix       = "perf_collector."
	MarkerSuffix     = ".png"
	LeftSuffix       = ".lv" // Recorded screenshot copied next to a mismatch
	RightSuffix      = ".rv" // Replayed screenshot copied next to a mismatch

	TraceFile    = "events.txt"
	MetadataFile = "metadata.json"
	SkipReset    = "skip.reset.flag"
	VersionExt   = ".ver"
	LoopExt      = ".loop"
	PostLoginExt = "_after_login"

	offsetWidth = 9
)

// FormatOffset renders a capture offset the way recordings name it,
// zero padded to four integer digits: 12.1234 → "0012.1234".
func FormatOffset(offset float64) string {
	return fmt.Sprintf("%09.4f", offset)
}

// DumpName returns the UI dump file name for offset.
func DumpName(offset float64) string {
	return DumpPrefix + FormatOffset(offset) + DumpSuffix
}

// ScreenshotName returns the screenshot file name for offset.
func ScreenshotName(offset float64) string {
	return ScreenshotPrefix + FormatOffset(offset) + ScreenshotSuffix
}

// IsDumpCandidate reports whether name looks like a UI dump at all.
func IsDumpCandidate(name string) bool {
	return strings.HasPrefix(name, "window") && strings.HasSuffix(name, DumpSuffix)
}

// ParseDumpName extracts the offset of a UI dump. ok is false for names that
// are not dumps. A name that looks like a dump but has no readable offset is
// ErrMalformedArtifact.
func ParseDumpName(name string) (offset float64, ok bool, err error) {
	if !IsDumpCandidate(name) {
		return 0, false, nil
	}
	if !strings.HasPrefix(name, DumpPrefix) {
		return 0, true, malformed(name)
	}
	off, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(name, DumpPrefix), DumpSuffix), 64)
	if err != nil || off < 0 {
		return 0, true, malformed(name)
	}
	return off, true, nil
}

// ParseMarker recognizes side-channel marker names. ok is false for names
// that are not markers.
func ParseMarker(name string) (cp Checkpoint, ok bool, err error) {
	if !strings.HasSuffix(name, MarkerSuffix) {
		return cp, false, nil
	}
	switch {
	case strings.HasPrefix(name, QRPrefix):
		// qrcode.<offset>.<companion package>.png
		rest := strings.TrimSuffix(strings.TrimPrefix(name, QRPrefix), MarkerSuffix)
		if len(rest) < offsetWidth+2 || rest[offsetWidth] != '.' {
			return cp, true, malformed(name)
		}
		off, err := strconv.ParseFloat(rest[:offsetWidth], 64)
		if err != nil {
			return cp, true, malformed(name)
		}
		return Checkpoint{Offset: off, Kind: KindQR, Companion: rest[offsetWidth+1:], Name: name}, true, nil
	case strings.HasPrefix(name, SMSPrefix):
		off, err := parseMarkerOffset(name, SMSPrefix)
		if err != nil {
			return cp, true, err
		}
		return Checkpoint{Offset: off, Kind: KindSMS, Name: name}, true, nil
	case strings.HasPrefix(name, PerfPrefix):
		off, err := parseMarkerOffset(name, PerfPrefix)
		if err != nil {
			return cp, true, err
		}
		return Checkpoint{Offset: off, Kind: KindPerf, Name: name}, true, nil
	}
	return cp, false, nil
}

func parseMarkerOffset(name, prefix string) (float64, error) {
	off, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(name, prefix), MarkerSuffix), 64)
	if err != nil || off < 0 {
		return 0, malformed(name)
	}
	return off, nil
}

// QRName returns the marker name for a QR hand-off at offset.
func QRName(offset float64, companion string) string {
	return QRPrefix + FormatOffset(offset) + "." + companion + MarkerSuffix
}

// SMSName returns the marker name for an SMS checkpoint at offset.
func SMSName(offset float64) string {
	return SMSPrefix + FormatOffset(offset) + MarkerSuffix
}

// PerfName returns the marker name for a performance checkpoint at offset.
func PerfName(offset float64) string {
	return PerfPrefix + FormatOffset(offset) + MarkerSuffix
}

func malformed(name string) error {
	return core.ErrMalformedArtifact.
		WithMessage(fmt.Sprintf("malformed artifact name %q", name)).
		WithDetails(map[string]interface{}{"name": name})
}
