// Package mock provides a scriptable device session for testing without a
// real device.
package mock

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Handler produces the output of a matched shell command.
type Handler func(cmd string) (string, error)

type route struct {
	prefix string
	fn     Handler
}

// Push is one recorded Push call.
type Push struct {
	Local  string
	Remote string
}

// Session is a mock implementation of device.Session.
//
// Commands are answered by the most recently registered handler whose prefix
// matches; unmatched commands succeed with empty output.
type Session struct {
	mu sync.Mutex

	routes []route
	files  map[string][]byte

	calls  []string
	async  []string
	pushes []Push

	liveChecks      int
	disconnectAfter int
}

// New creates a connected mock session.
func New() *Session {
	return &Session{
		files:           make(map[string][]byte),
		disconnectAfter: -1,
	}
}

// On answers commands starting with prefix with a fixed output.
func (s *Session) On(prefix, out string) *Session {
	return s.OnFunc(prefix, func(string) (string, error) { return out, nil })
}

// OnError makes commands starting with prefix fail.
func (s *Session) OnError(prefix string, err error) *Session {
	return s.OnFunc(prefix, func(string) (string, error) { return "", err })
}

// OnFunc answers commands starting with prefix with fn.
func (s *Session) OnFunc(prefix string, fn Handler) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{prefix: prefix, fn: fn})
	return s
}

// PutFile places a file on the fake device.
func (s *Session) PutFile(remote string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[remote] = data
}

// DisconnectAfter makes IsConnected report true for n more calls, then false.
// A negative n keeps the device connected.
func (s *Session) DisconnectAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveChecks = 0
	s.disconnectAfter = n
}

func (s *Session) lookup(cmd string) Handler {
	for i := len(s.routes) - 1; i >= 0; i-- {
		if strings.HasPrefix(cmd, s.routes[i].prefix) {
			return s.routes[i].fn
		}
	}
	return nil
}

// Exec records cmd and returns the matching handler's output.
func (s *Session) Exec(cmd string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	fn := s.lookup(cmd)
	s.mu.Unlock()

	if fn == nil {
		return "", nil
	}
	return fn(cmd)
}

// ExecAsync records cmd and runs the matching handler synchronously,
// discarding its output.
func (s *Session) ExecAsync(cmd string) error {
	s.mu.Lock()
	s.async = append(s.async, cmd)
	fn := s.lookup(cmd)
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	_, err := fn(cmd)
	return err
}

// Push records the call and makes the file visible on the device.
func (s *Session) Push(local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("mock push %s: %w", local, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, Push{Local: local, Remote: remote})
	s.files[remote] = data
	return nil
}

// Pull writes a previously placed file to local and removes it from the
// device.
func (s *Session) Pull(remote, local string) (bool, error) {
	s.mu.Lock()
	data, ok := s.files[remote]
	delete(s.files, remote)
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// IsConnected reports the scripted connection state.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectAfter < 0 {
		return true
	}
	s.liveChecks++
	return s.liveChecks <= s.disconnectAfter
}

// FileExists reports whether a file was placed or pushed.
func (s *Session) FileExists(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

// Calls returns the synchronous commands issued so far.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// AsyncCalls returns the asynchronous commands issued so far.
func (s *Session) AsyncCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.async...)
}

// Pushes returns the recorded pushes.
func (s *Session) Pushes() []Push {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Push(nil), s.pushes...)
}

// Called reports whether any synchronous command started with prefix.
func (s *Session) Called(prefix string) bool {
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Installer records Install calls.
type Installer struct {
	Err       error
	Installed []string
	// OnInstall runs after a successful install, e.g. to make the package
	// show up in pm list.
	OnInstall func(apk string)
}

// Install records the call.
func (i *Installer) Install(apkPath, user string) error {
	if i.Err != nil {
		return i.Err
	}
	i.Installed = append(i.Installed, apkPath)
	if i.OnInstall != nil {
		i.OnInstall(apkPath)
	}
	return nil
}

// Clock is a fake clock whose Sleep advances time instantly.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake time by d.
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
