package collector

import (
	"context"
	"log"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageBuffer is the ordered event buffer for one tracked page. The struct
// identity is stable across mutation: Clear empties the buffer in place, so a
// holder that captured the pointer earlier observes the cleared state rather
// than a stale snapshot.
type PageBuffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// Append adds one event to the end of the buffer.
func (b *PageBuffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
}

// Snapshot returns a copy of the buffered events in arrival order.
func (b *PageBuffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of buffered events.
func (b *PageBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Clear empties the buffer in place, keeping the backing storage.
func (b *PageBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
}

// TrimBeforeLastMatch finds the last event satisfying pred and discards
// everything strictly before it, keeping that event and all later ones.
// When no event matches, the buffer is cleared. The trim is in place.
func (b *PageBuffer[T]) TrimBeforeLastMatch(pred func(T) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	last := -1
	for i := len(b.items) - 1; i >= 0; i-- {
		if pred(b.items[i]) {
			last = i
			break
		}
	}
	if last <= 0 {
		if last < 0 {
			b.items = b.items[:0]
		}
		return
	}
	n := copy(b.items, b.items[last:])
	b.items = b.items[:n]
}

// ListenerFactory installs the page-scoped event subscriptions that feed a
// buffer. Every subscription it installs must terminate when ctx is canceled;
// that cancellation is the collector's single unwire point for the page.
type ListenerFactory[T any] func(ctx context.Context, page *rod.Page, buf *PageBuffer[T])

// ResetPolicy decides what happens to a page's buffer when its main frame
// commits a navigation.
type ResetPolicy[T any] func(*PageBuffer[T])

// ClearOnNavigation is the default reset policy: the old page's events do not
// belong to the new document.
func ClearOnNavigation[T any](buf *PageBuffer[T]) { buf.Clear() }

type trackedPage[T any] struct {
	buf    *PageBuffer[T]
	cancel context.CancelFunc
}

// Collector maintains one PageBuffer per tracked page and keeps the set of
// tracked pages in sync with the browser's target lifecycle. Buffers live
// from tracking start until the page's target is destroyed; main-frame
// navigations apply the reset policy instead of dropping the buffer.
type Collector[T any] struct {
	listen ListenerFactory[T]
	reset  ResetPolicy[T]

	mu      sync.Mutex
	root    context.Context
	browser *rod.Browser
	pages   map[proto.TargetTargetID]*trackedPage[T]
}

// New builds a collector with the given listener factory and reset policy.
// A nil reset policy defaults to clearing the buffer.
func New[T any](listen ListenerFactory[T], reset ResetPolicy[T]) *Collector[T] {
	if reset == nil {
		reset = ClearOnNavigation[T]
	}
	return &Collector[T]{
		listen: listen,
		reset:  reset,
		pages:  make(map[proto.TargetTargetID]*trackedPage[T]),
	}
}

// Init wires every currently open page and subscribes to target lifecycle
// events so pages appearing later are wired and destroyed pages are dropped.
// All subscriptions live until ctx is canceled.
func (c *Collector[T]) Init(ctx context.Context, browser *rod.Browser) error {
	c.mu.Lock()
	c.root = ctx
	c.browser = browser
	c.mu.Unlock()

	pages, err := browser.Pages()
	if err != nil {
		return err
	}
	for _, page := range pages {
		c.AddPage(page)
	}

	wait := browser.Context(ctx).EachEvent(
		func(ev *proto.TargetTargetCreated) {
			if ev.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			page, err := browser.PageFromTarget(ev.TargetInfo.TargetID)
			if err != nil {
				log.Printf("collector: attach to new target %s: %v", ev.TargetInfo.TargetID, err)
				return
			}
			c.AddPage(page)
		},
		func(ev *proto.TargetTargetDestroyed) {
			c.untrack(ev.TargetID)
		},
	)
	go wait()
	return nil
}

// AddPage wires a page discovered outside the lifecycle hooks, e.g. one that
// was already open when the collector attached. Re-adding a tracked page is
// a no-op.
func (c *Collector[T]) AddPage(page *rod.Page) {
	tp, fresh := c.track(page.TargetID)
	if !fresh {
		return
	}

	c.mu.Lock()
	root := c.root
	c.mu.Unlock()
	if root == nil {
		root = context.Background()
	}

	pctx, cancel := context.WithCancel(root)
	tp.cancel = cancel

	// Main-frame navigation commit applies the reset policy. Sub-frame
	// navigations must not touch the buffer.
	wait := page.Context(pctx).EachEvent(func(ev *proto.PageFrameNavigated) {
		if ev.Frame.ParentID != "" {
			return
		}
		c.onMainFrameNavigated(page.TargetID)
	})
	go wait()

	if c.listen != nil {
		c.listen(pctx, page, tp.buf)
	}
}

// track registers a buffer for the target, reporting whether it is new.
func (c *Collector[T]) track(id proto.TargetTargetID) (*trackedPage[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tp, ok := c.pages[id]; ok {
		return tp, false
	}
	tp := &trackedPage[T]{buf: &PageBuffer[T]{}}
	c.pages[id] = tp
	return tp, true
}

// untrack cancels every subscription installed for the target and drops its
// buffer. Cancel and install are paired 1:1 per tracked page, so no handler
// outlives the page on a long-lived browser connection.
func (c *Collector[T]) untrack(id proto.TargetTargetID) {
	c.mu.Lock()
	tp, ok := c.pages[id]
	if ok {
		delete(c.pages, id)
	}
	c.mu.Unlock()

	if ok && tp.cancel != nil {
		tp.cancel()
	}
}

func (c *Collector[T]) onMainFrameNavigated(id proto.TargetTargetID) {
	c.mu.Lock()
	tp, ok := c.pages[id]
	c.mu.Unlock()
	if ok {
		c.reset(tp.buf)
	}
}

// Buffer returns the live buffer for a target, or nil when it was never
// tracked.
func (c *Collector[T]) Buffer(id proto.TargetTargetID) *PageBuffer[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.pages[id]
	if !ok {
		return nil
	}
	return tp.buf
}

// Data returns a snapshot of the target's buffered events in arrival order,
// or an empty slice when the target was never tracked.
func (c *Collector[T]) Data(id proto.TargetTargetID) []T {
	buf := c.Buffer(id)
	if buf == nil {
		return nil
	}
	return buf.Snapshot()
}

// Tracked reports how many pages currently have live buffers.
func (c *Collector[T]) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}
