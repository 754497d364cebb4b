package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chromepilot-mcp-server/internal/config"
	"chromepilot-mcp-server/internal/collector"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Context is the per-handle working state for tool calls: the set of open
// pages, the currently selected page, and the per-page console and network
// collectors. It is bound to exactly one Handle; the session rebuilds it
// whenever the broker hands back a different handle.
type Context struct {
	handle *Handle
	cfg    config.BrowserConfig
	cancel context.CancelFunc

	console *collector.Collector[collector.ConsoleMessage]
	network *collector.Collector[collector.NetworkEvent]

	mu       sync.Mutex
	selected *rod.Page
}

// NewContext builds a Context over the handle: enumerates the open pages,
// attaches both collectors to each, and subscribes to target lifecycle events
// so pages opened later are tracked too.
func NewContext(handle *Handle, cfg config.BrowserConfig) (*Context, error) {
	root, cancel := context.WithCancel(context.Background())

	tc := &Context{
		handle:  handle,
		cfg:     cfg,
		cancel:  cancel,
		console: collector.NewConsole(),
		network: collector.NewNetwork(),
	}

	if err := tc.console.Init(root, handle.Browser()); err != nil {
		cancel()
		return nil, fmt.Errorf("wiring console collector: %w", err)
	}
	if err := tc.network.Init(root, handle.Browser()); err != nil {
		cancel()
		return nil, fmt.Errorf("wiring network collector: %w", err)
	}

	pages, err := handle.Browser().Pages()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	if len(pages) == 0 {
		page, err := tc.openPage("about:blank")
		if err != nil {
			cancel()
			return nil, err
		}
		tc.selected = page
	} else {
		tc.selected = pages[0]
	}

	return tc, nil
}

// Handle returns the handle this context is bound to.
func (tc *Context) Handle() *Handle { return tc.handle }

// Pages enumerates the currently open pages.
func (tc *Context) Pages() ([]*rod.Page, error) {
	pages, err := tc.handle.Browser().Pages()
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// Page returns the selected page.
func (tc *Context) Page() (*rod.Page, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.selected == nil {
		return nil, errors.New("no page selected")
	}
	return tc.selected, nil
}

// SelectPage makes the page at the given index the target of subsequent
// page-scoped tool calls.
func (tc *Context) SelectPage(idx int) (*rod.Page, error) {
	pages, err := tc.Pages()
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(pages) {
		return nil, fmt.Errorf("no page at index %d, have %d pages", idx, len(pages))
	}
	tc.mu.Lock()
	tc.selected = pages[idx]
	tc.mu.Unlock()
	return pages[idx], nil
}

// SelectedIndex reports the index of the selected page in the page list, or
// -1 when it is gone.
func (tc *Context) SelectedIndex() int {
	tc.mu.Lock()
	selected := tc.selected
	tc.mu.Unlock()
	if selected == nil {
		return -1
	}
	pages, err := tc.Pages()
	if err != nil {
		return -1
	}
	for i, p := range pages {
		if p.TargetID == selected.TargetID {
			return i
		}
	}
	return -1
}

// NewPage opens a page at the URL, wires it into the collectors, applies the
// configured viewport, and selects it.
func (tc *Context) NewPage(url string) (*rod.Page, error) {
	page, err := tc.openPage(url)
	if err != nil {
		return nil, err
	}
	tc.mu.Lock()
	tc.selected = page
	tc.mu.Unlock()
	return page, nil
}

func (tc *Context) openPage(url string) (*rod.Page, error) {
	if url == "" {
		url = "about:blank"
	}
	page, err := tc.handle.Browser().Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             tc.cfg.GetViewportWidth(),
		Height:            tc.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("setting viewport: %w", err)
	}

	// The target-created event wires the page eventually; wiring it here is
	// idempotent and removes the race against events emitted right away.
	tc.console.AddPage(page)
	tc.network.AddPage(page)
	return page, nil
}

// ClosePage closes the page at the given index. The last open page is not
// closed; it is parked on about:blank instead so the browser keeps at least
// one target alive.
func (tc *Context) ClosePage(idx int) error {
	pages, err := tc.Pages()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(pages) {
		return fmt.Errorf("no page at index %d, have %d pages", idx, len(pages))
	}

	page := pages[idx]
	if len(pages) == 1 {
		return page.Navigate("about:blank")
	}

	tc.mu.Lock()
	if tc.selected != nil && tc.selected.TargetID == page.TargetID {
		tc.selected = nil
	}
	tc.mu.Unlock()

	if err := page.Close(); err != nil {
		return err
	}

	if _, err := tc.Page(); err != nil {
		_, err = tc.SelectPage(0)
		return err
	}
	return nil
}

// ConsoleMessages returns the buffered console messages for the selected page.
func (tc *Context) ConsoleMessages() ([]collector.ConsoleMessage, error) {
	page, err := tc.Page()
	if err != nil {
		return nil, err
	}
	return tc.console.Data(page.TargetID), nil
}

// NetworkEvents returns the buffered network events for the selected page.
func (tc *Context) NetworkEvents() ([]collector.NetworkEvent, error) {
	page, err := tc.Page()
	if err != nil {
		return nil, err
	}
	return tc.network.Data(page.TargetID), nil
}

// NavigationTimeout exposes the configured navigation timeout to tools.
func (tc *Context) NavigationTimeout() time.Duration {
	return tc.cfg.NavigationTimeout()
}

// Close detaches every collector subscription. It does not close the handle;
// the session owns that.
func (tc *Context) Close() {
	if tc.cancel != nil {
		tc.cancel()
	}
}
