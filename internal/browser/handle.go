package browser

import (
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Handle is the live connection to a controlled browser, either one we
// launched or one we attached to. A Session owns at most one Handle at a
// time; the broker replaces it when the connection reports disconnected.
type Handle struct {
	browser  *rod.Browser
	launcher *launcher.Launcher // non-nil only when we launched the process
	endpoint string

	connected   atomic.Bool
	stealthOnce sync.Once
}

func newHandle(b *rod.Browser, l *launcher.Launcher, endpoint string) *Handle {
	h := &Handle{browser: b, launcher: l, endpoint: endpoint}
	h.connected.Store(true)

	// The event channel closes when the CDP connection goes away, whether the
	// browser crashed, was closed by a user, or the websocket dropped.
	go func() {
		for range b.Event() {
		}
		h.connected.Store(false)
	}()
	return h
}

// Browser returns the underlying Rod browser.
func (h *Handle) Browser() *rod.Browser { return h.browser }

// Endpoint returns the control URL the handle is bound to.
func (h *Handle) Endpoint() string { return h.endpoint }

// Connected reports whether the CDP connection is still up. It never performs
// network calls.
func (h *Handle) Connected() bool {
	if h == nil {
		return false
	}
	return h.connected.Load()
}

// instrumentOnce runs fn at most once over the handle's lifetime. Repeated
// broker resolves against the same handle must not stack instrumentation.
func (h *Handle) instrumentOnce(fn func(*Handle) error) error {
	var err error
	h.stealthOnce.Do(func() { err = fn(h) })
	return err
}

// Close tears down the connection and, when we own the process, kills it.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.connected.Store(false)
	var err error
	if h.browser != nil {
		err = h.browser.Close()
	}
	if h.launcher != nil {
		h.launcher.Kill()
	}
	return err
}
