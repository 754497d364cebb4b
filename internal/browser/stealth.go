package browser

import (
	"log"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// stealthJS runs before any page script and hides the usual automation
// signals: the webdriver flag reads as undefined, plugin and language lists
// are non-empty, a minimal chrome namespace exists, and permission queries
// for notifications reflect the real permission state instead of the
// automation default.
const stealthJS = `() => {
	Object.defineProperty(Navigator.prototype, 'webdriver', {
		get: () => undefined,
		configurable: true,
	});

	Object.defineProperty(Navigator.prototype, 'plugins', {
		get: () => [
			{ name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer' },
			{ name: 'Native Client', filename: 'internal-nacl-plugin' },
		],
		configurable: true,
	});

	Object.defineProperty(Navigator.prototype, 'languages', {
		get: () => ['en-US', 'en'],
		configurable: true,
	});

	if (!window.chrome) {
		window.chrome = { runtime: {} };
	}

	if (window.navigator.permissions && window.navigator.permissions.query) {
		const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
		window.navigator.permissions.query = (parameters) =>
			parameters && parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission, onchange: null })
				: originalQuery(parameters);
	}
}`

// installStealth injects the stealth script into every existing page and
// arranges injection into pages created later. Callers must route through
// Handle.instrumentOnce so a handle is instrumented exactly once no matter
// how often the broker resolves it.
func installStealth(h *Handle) error {
	pages, err := h.browser.Pages()
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := stealthPage(page); err != nil {
			return err
		}
	}

	// Future pages. The subscription shares the browser's lifetime.
	wait := h.browser.EachEvent(func(ev *proto.TargetTargetCreated) {
		if ev.TargetInfo.Type != proto.TargetTargetInfoTypePage {
			return
		}
		page, err := h.browser.PageFromTarget(ev.TargetInfo.TargetID)
		if err != nil {
			log.Printf("stealth: attach to target %s: %v", ev.TargetInfo.TargetID, err)
			return
		}
		if err := stealthPage(page); err != nil {
			log.Printf("stealth: instrument target %s: %v", ev.TargetInfo.TargetID, err)
		}
	})
	go wait()
	return nil
}

// stealthPage registers the before-load script and also applies it to the
// page's current document, which already loaded without it.
func stealthPage(page *rod.Page) error {
	_, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: "(" + stealthJS + ")()"}.Call(page)
	if err != nil {
		return err
	}
	_, _ = page.Evaluate(&rod.EvalOptions{JS: stealthJS, ByValue: true})
	return nil
}
