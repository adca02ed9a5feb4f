package trace

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/replay-runner/pkg/core"
)

// AxisSwap selects the coordinate transform applied to X/Y pairs.
type AxisSwap int

const (
	// SwapNone leaves coordinates untouched.
	SwapNone AxisSwap = iota
	// SwapForward maps (x, y) to (y, max-x).
	SwapForward
	// SwapReverse maps (x, y) to (max-y, x), undoing SwapForward.
	SwapReverse
)

// String returns the mode name.
func (s AxisSwap) String() string {
	switch s {
	case SwapNone:
		return "none"
	case SwapForward:
		return "forward"
	case SwapReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// TranslateOptions configures Translate.
type TranslateOptions struct {
	// ChannelMap renames input channels. Keys and values may be bare names
	// ("event3") or full paths ("/dev/input/event3").
	ChannelMap map[string]string
	Swap       AxisSwap
	ScreenMax  uint32
}

// Qualify returns the full device path for a channel name.
func Qualify(channel string) string {
	if strings.HasPrefix(channel, "/") {
		return channel
	}
	return InputDir + channel
}

// Translate returns a new trace with channels renamed and, if requested,
// coordinate pairs transformed. The source trace is not modified. Renames are
// applied simultaneously, so {a: b, b: c} never turns a into c.
//
// An X event directly followed by a Y event on the same channel forms one
// sample. A sample whose source coordinate is at or past ScreenMax fails the
// whole translation with ErrInvalidEvent. Unpaired X or Y events are copied
// unchanged.
func Translate(t *Trace, opts TranslateOptions) (*Trace, error) {
	channels := make(map[string]string, len(opts.ChannelMap))
	for from, to := range opts.ChannelMap {
		channels[Qualify(from)] = Qualify(to)
	}

	out := &Trace{
		records:         make([]EventRecord, len(t.records)),
		trailingNewline: t.trailingNewline,
	}
	for i, r := range t.records {
		if r.event {
			if to, ok := channels[r.Channel]; ok {
				r = r.withChannel(to)
			} else if to, ok := channels[Qualify(r.Channel)]; ok {
				r = r.withChannel(to)
			}
		}
		out.records[i] = r
	}

	if opts.Swap == SwapNone {
		return out, nil
	}

	for i := 0; i+1 < len(out.records); i++ {
		x, y := out.records[i], out.records[i+1]
		if !x.event || !y.event || x.Group != CodeTouchX || y.Group != CodeTouchY || x.Channel != y.Channel {
			continue
		}

		nx, ny, err := swapPair(x, y, opts.Swap, opts.ScreenMax, i+1)
		if err != nil {
			return nil, err
		}
		out.records[i], out.records[i+1] = nx, ny
		i++
	}
	return out, nil
}

func swapPair(x, y EventRecord, mode AxisSwap, limit uint32, line int) (EventRecord, EventRecord, error) {
	switch mode {
	case SwapForward:
		if x.Value >= limit {
			return x, y, outOfRange("x", x.Value, limit, line)
		}
		return x.withValueText(y.ValueText()), y.withValueText(fmt.Sprintf(valueFormat, limit-x.Value)), nil
	case SwapReverse:
		if y.Value >= limit {
			return x, y, outOfRange("y", y.Value, limit, line+1)
		}
		return x.withValueText(fmt.Sprintf(valueFormat, limit-y.Value)), y.withValueText(x.ValueText()), nil
	default:
		panic(fmt.Sprintf("trace: unknown axis swap %d", mode))
	}
}

func outOfRange(axis string, v, limit uint32, line int) error {
	return core.ErrInvalidEvent.
		WithMessage(fmt.Sprintf("%s=%d at line %d is outside [0,%d)", axis, v, line, limit)).
		WithDetails(map[string]interface{}{"axis": axis, "value": v, "max": limit, "line": line})
}

// TranslateFile translates the trace at in and writes the result to out. Nothing
// is written when translation fails.
func TranslateFile(in, out string, opts TranslateOptions) (*Trace, error) {
	src, err := ParseFile(in)
	if err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	dst, err := Translate(src, opts)
	if err != nil {
		return nil, err
	}
	if err := dst.WriteFile(out); err != nil {
		return nil, fmt.Errorf("write translated trace: %w", err)
	}
	return dst, nil
}
