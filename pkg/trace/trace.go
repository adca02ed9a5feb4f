// Package trace parses and rewrites raw input-event traces as written by
// eventrec:
//
//	[    4850.623583] /dev/input/event3: 0003 0035 0000021c
//
// Lines that are not events (headers, blank lines) are kept verbatim so a
// trace written back out is byte-identical to its source except where a
// translation touched it.
package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// InputDir is the device directory that holds input channels.
const InputDir = "/dev/input/"

// Event type/code pairs for multi-touch positions.
const (
	TypeAbs          uint16 = 0x0003
	CodePositionX    uint16 = 0x0035
	CodePositionY    uint16 = 0x0036
	valueFormat             = "%08x"
	valueTextLength         = 8
	channelSeparator        = ":"
)

// CodeGroup classifies an event for axis translation.
type CodeGroup int

const (
	CodeOther CodeGroup = iota
	CodeTouchX
	CodeTouchY
)

// String returns the group name.
func (g CodeGroup) String() string {
	switch g {
	case CodeTouchX:
		return "TOUCH_X"
	case CodeTouchY:
		return "TOUCH_Y"
	default:
		return "OTHER"
	}
}

var eventLine = regexp.MustCompile(`^\[\s*(\d+\.\d+)\]\s+(\S+):\s+([0-9a-fA-F]{4})\s+([0-9a-fA-F]{4})\s+([0-9a-fA-F]{8})\s*$`)

// EventRecord is one line of a trace. Non-event lines have IsEvent() == false
// and only Raw set.
type EventRecord struct {
	Timestamp float64
	Channel   string
	Group     CodeGroup
	Type      uint16
	Code      uint16
	Value     uint32
	Raw       string

	event     bool
	chanStart int
	chanEnd   int
	valStart  int
	valEnd    int
}

// IsEvent reports whether the line parsed as an input event.
func (r EventRecord) IsEvent() bool {
	return r.event
}

// ValueText returns the value field exactly as written in Raw.
func (r EventRecord) ValueText() string {
	if !r.event {
		return ""
	}
	return r.Raw[r.valStart:r.valEnd]
}

func (r EventRecord) withChannel(ch string) EventRecord {
	out := r
	out.Raw = r.Raw[:r.chanStart] + ch + r.Raw[r.chanEnd:]
	out.Channel = ch
	shift := len(ch) - (r.chanEnd - r.chanStart)
	out.chanEnd = r.chanStart + len(ch)
	out.valStart += shift
	out.valEnd += shift
	return out
}

func (r EventRecord) withValueText(text string) EventRecord {
	v, err := strconv.ParseUint(text, 16, 32)
	if err != nil || len(text) != valueTextLength {
		panic(fmt.Sprintf("trace: bad value text %q", text))
	}
	out := r
	out.Raw = r.Raw[:r.valStart] + text + r.Raw[r.valEnd:]
	out.Value = uint32(v)
	return out
}

func parseLine(line string) EventRecord {
	rec := EventRecord{Raw: line}
	m := eventLine.FindStringSubmatchIndex(strings.TrimRight(line, "\r"))
	if m == nil {
		return rec
	}

	ts, err := strconv.ParseFloat(line[m[2]:m[3]], 64)
	if err != nil {
		return rec
	}
	typ, _ := strconv.ParseUint(line[m[6]:m[7]], 16, 16)
	code, _ := strconv.ParseUint(line[m[8]:m[9]], 16, 16)
	val, _ := strconv.ParseUint(line[m[10]:m[11]], 16, 32)

	rec.event = true
	rec.Timestamp = ts
	rec.Channel = line[m[4]:m[5]]
	rec.Type = uint16(typ)
	rec.Code = uint16(code)
	rec.Value = uint32(val)
	rec.chanStart, rec.chanEnd = m[4], m[5]
	rec.valStart, rec.valEnd = m[10], m[11]

	if rec.Type == TypeAbs {
		switch rec.Code {
		case CodePositionX:
			rec.Group = CodeTouchX
		case CodePositionY:
			rec.Group = CodeTouchY
		}
	}
	return rec
}

// Trace is an immutable, ordered sequence of trace lines.
type Trace struct {
	records         []EventRecord
	trailingNewline bool
}

// Parse reads a trace. Parse never fails on content: unrecognized lines are
// kept as pass-through records. Use Validate to require at least one event.
func Parse(r io.Reader) (*Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return parseBytes(data), nil
}

// ParseFile reads the trace at path. A missing file is ErrInvalidTrace.
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path) //#nosec G304 -- recorded trace path
	if err != nil {
		return nil, core.ErrInvalidTrace.WithMessage(fmt.Sprintf("open trace %s", path)).WithCause(err)
	}
	defer f.Close()
	return Parse(f)
}

func parseBytes(data []byte) *Trace {
	t := &Trace{}
	if len(data) == 0 {
		return t
	}
	text := string(data)
	if strings.HasSuffix(text, "\n") {
		t.trailingNewline = true
		text = text[:len(text)-1]
	}
	for _, line := range strings.Split(text, "\n") {
		t.records = append(t.records, parseLine(line))
	}
	return t
}

// Records returns a copy of all lines, events and pass-through alike.
func (t *Trace) Records() []EventRecord {
	out := make([]EventRecord, len(t.records))
	copy(out, t.records)
	return out
}

// EventCount returns the number of event lines.
func (t *Trace) EventCount() int {
	n := 0
	for _, r := range t.records {
		if r.event {
			n++
		}
	}
	return n
}

// Channels returns the sorted set of input channels the trace uses.
func (t *Trace) Channels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.records {
		if r.event && !seen[r.Channel] {
			seen[r.Channel] = true
			out = append(out, r.Channel)
		}
	}
	sort.Strings(out)
	return out
}

// Validate returns ErrInvalidTrace if the trace has no events.
func (t *Trace) Validate() error {
	if t.EventCount() == 0 {
		return core.ErrInvalidTrace
	}
	return nil
}

// Bytes returns the serialized trace.
func (t *Trace) Bytes() []byte {
	var buf bytes.Buffer
	t.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo writes the trace in its on-device text format.
func (t *Trace) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, r := range t.records {
		line := r.Raw
		if i < len(t.records)-1 || t.trailingNewline {
			line += "\n"
		}
		n, err := io.WriteString(w, line)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteFile writes the trace to path.
func (t *Trace) WriteFile(path string) error {
	return os.WriteFile(path, t.Bytes(), 0644)
}
