package sidechannel

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/replay-runner/pkg/core"
	"github.com/devicelab-dev/replay-runner/pkg/device"
	"github.com/devicelab-dev/replay-runner/pkg/logger"
)

const smsInboxQuery = `content query --uri content://sms/inbox --projection date,body`

var (
	smsDate = regexp.MustCompile(`date=(\d+)`)
	smsBody = regexp.MustCompile(`body=(.*)`)
	smsCode = regexp.MustCompile(`(\d{4,})`)
)

// SMSHandler waits for a verification SMS on the SMS phone and types the code
// on the device under test.
type SMSHandler struct {
	Phone   device.Session
	Primary device.Session

	Timeout      time.Duration
	PollInterval time.Duration // Defaults to 1s
	// Placeholder is typed when no message arrives in time.
	Placeholder string
	Clock       core.Clock
}

// Handle fetches the newest code and types it. It returns the code used.
func (h *SMSHandler) Handle(ctx context.Context) (string, error) {
	code := h.Placeholder
	if body, ok := h.Fetch(ctx); ok {
		if c := ParseCode(body); c != "" {
			code = c
		} else {
			logger.Warn("sms %q has no verification code, using placeholder", body)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if code == "" {
		logger.Warn("no verification code to type")
		return "", nil
	}
	logger.Info("typing sms verification code %s", code)
	if _, err := h.Primary.Exec("input text " + code); err != nil {
		return code, err
	}
	return code, nil
}

// Fetch polls the inbox until a message newer than the start of the poll
// arrives. ok is false on timeout or cancellation.
func (h *SMSHandler) Fetch(ctx context.Context) (body string, ok bool) {
	clock := h.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	interval := h.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	if h.Phone == nil {
		logger.Warn("sms checkpoint: no sms phone configured")
		return "", false
	}

	since := int64(0)
	if t, err := device.DeviceTime(h.Phone); err == nil {
		since, _ = strconv.ParseInt(t, 10, 64)
	} else {
		logger.Warn("read sms phone time: %v", err)
	}

	start := clock.Now()
	for clock.Now().Sub(start) < h.Timeout {
		if ctx.Err() != nil {
			return "", false
		}
		clock.Sleep(interval)

		out, err := h.Phone.Exec(smsInboxQuery)
		if err != nil || strings.TrimSpace(out) == "" {
			continue
		}
		if body, ok := newestMessage(out, since); ok {
			logger.Info("received sms: %s", body)
			return body, true
		}
	}
	logger.Warn("no sms verification within %v", h.Timeout)
	return "", false
}

// newestMessage reads the first inbox row and returns its body if it was
// received at or after since (Unix seconds).
func newestMessage(out string, since int64) (string, bool) {
	first, _, _ := strings.Cut(strings.TrimLeft(out, "\r\n"), "\n")
	first = strings.TrimRight(first, "\r")

	m := smsDate.FindStringSubmatch(first)
	if m == nil {
		return "", false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || ms/1000 < since {
		return "", false
	}
	b := smsBody.FindStringSubmatch(first)
	if b == nil {
		return "", false
	}
	return b[1], true
}

// ParseCode returns the first run of at least four digits in msg.
func ParseCode(msg string) string {
	m := smsCode.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return m[1]
}
