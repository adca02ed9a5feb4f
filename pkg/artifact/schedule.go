package artifact

import (
	"sort"
)

// Kind is the behavior attached to a checkpoint.
type Kind int

const (
	KindNormal Kind = iota // Capture UI dump and screenshot
	KindQR                 // Hand a fresh QR screenshot to the scan device
	KindSMS                // Fetch and type an SMS verification code
	KindPerf               // Performance collection hook
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "NORMAL"
	case KindQR:
		return "QR"
	case KindSMS:
		return "SMS"
	case KindPerf:
		return "PERF"
	default:
		return "unknown"
	}
}

// Checkpoint is a scheduled moment in the replay timeline.
type Checkpoint struct {
	Offset    float64 // Seconds since playback start
	Kind      Kind
	Companion string // QR only: package of the scan app on the secondary device
	Name      string // Artifact the checkpoint was derived from
}

// Key identifies a checkpoint for deduplication.
func (c Checkpoint) Key() string {
	return FormatOffset(c.Offset) + "/" + c.Kind.String()
}

// DeriveCheckpoints returns the ascending, duplicate-free capture offsets of
// the UI dumps in names. Any malformed dump name aborts with
// ErrMalformedArtifact. The result depends only on names.
func DeriveCheckpoints(names []string) ([]float64, error) {
	seen := make(map[string]bool)
	var offsets []float64
	for _, name := range names {
		off, ok, err := ParseDumpName(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		key := FormatOffset(off)
		if seen[key] {
			continue
		}
		seen[key] = true
		offsets = append(offsets, off)
	}
	sort.Float64s(offsets)
	return offsets, nil
}

// Schedule derives the full checkpoint timeline from an artifact listing.
// Every dump offset becomes a checkpoint; a side-channel marker at the same
// offset replaces the normal capture with the marker's kind. Markers without
// a dump are scheduled too. The result is sorted by offset, then kind, and
// deduplicated by offset+kind.
func Schedule(names []string) ([]Checkpoint, error) {
	offsets, err := DeriveCheckpoints(names)
	if err != nil {
		return nil, err
	}

	markers := make(map[string][]Checkpoint)
	var markerOnly []Checkpoint
	for _, name := range names {
		cp, ok, err := ParseMarker(name)
		if err != nil {
			return nil, err
		}
		if ok {
			key := FormatOffset(cp.Offset)
			markers[key] = append(markers[key], cp)
			markerOnly = append(markerOnly, cp)
		}
	}

	var out []Checkpoint
	dumped := make(map[string]bool)
	for _, off := range offsets {
		key := FormatOffset(off)
		dumped[key] = true
		if ms, ok := markers[key]; ok {
			for _, m := range ms {
				m.Offset = off
				out = append(out, m)
			}
			continue
		}
		out = append(out, Checkpoint{Offset: off, Kind: KindNormal, Name: DumpName(off)})
	}
	for _, m := range markerOnly {
		if !dumped[FormatOffset(m.Offset)] {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Kind < out[j].Kind
	})

	deduped := out[:0]
	seen := make(map[string]bool)
	for _, cp := range out {
		if seen[cp.Key()] {
			continue
		}
		seen[cp.Key()] = true
		deduped = append(deduped, cp)
	}
	return deduped, nil
}

// Normal returns only the checkpoints that capture a dump/screenshot pair.
func Normal(cps []Checkpoint) []Checkpoint {
	var out []Checkpoint
	for _, cp := range cps {
		if cp.Kind == KindNormal {
			out = append(out, cp)
		}
	}
	return out
}
