package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chromepilot-mcp-server/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// sidecarFile is written by Chrome into its profile directory at startup:
// line 1 is the remote debugging port, line 2 the websocket path.
const sidecarFile = "DevToolsActivePort"

// LaunchOptions is the fully resolved set of parameters for a local launch.
type LaunchOptions struct {
	Bin                 string
	ProfileDir          string
	Headless            bool
	Devtools            bool
	ProxyServer         string
	AcceptInsecureCerts bool
	ViewportWidth       int
	ViewportHeight      int
	ExtraArgs           []string
}

// Broker resolves the one live browser handle for a session: reuse the
// current handle while it is connected, otherwise connect to the configured
// remote endpoint, otherwise attach to or launch a local browser.
type Broker struct {
	cfg config.BrowserConfig

	// Seams for tests; production brokers use the rod-backed defaults.
	connect    func(ctx context.Context, url string, insecureCerts bool) (*Handle, error)
	launch     func(ctx context.Context, opts LaunchOptions) (*Handle, error)
	instrument func(*Handle) error
}

// NewBroker builds a broker for the given browser configuration.
func NewBroker(cfg config.BrowserConfig) *Broker {
	return &Broker{
		cfg:        cfg,
		connect:    rodConnect,
		launch:     rodLaunch,
		instrument: installStealth,
	}
}

// Resolve returns a connected handle. The fast path returns the current
// handle untouched when it still reports connected; no network or process
// calls happen in that case.
func (b *Broker) Resolve(ctx context.Context, current *Handle) (*Handle, error) {
	if current.Connected() {
		return current, nil
	}

	if b.cfg.BrowserURL != "" {
		h, err := b.connect(ctx, b.cfg.BrowserURL, b.cfg.AcceptInsecureCerts)
		if err == nil {
			if err := b.applyInstrumentation(h); err != nil {
				return nil, err
			}
			return h, nil
		}
		if !isRecoverableConnectError(err) {
			return nil, fmt.Errorf("connecting to %s: %w", b.cfg.BrowserURL, err)
		}
		log.Printf("unable to connect to %s, falling back to a local browser: %v", b.cfg.BrowserURL, err)
	}

	opts, err := b.launchOptions()
	if err != nil {
		return nil, err
	}

	// A browser already running on this profile advertises its endpoint via
	// the sidecar file; attaching beats a second launch that would fail on
	// the profile lock anyway.
	if !b.cfg.Isolated {
		if url, sidecarErr := readSidecar(opts.ProfileDir); sidecarErr == nil {
			if h, attachErr := b.connect(ctx, url, b.cfg.AcceptInsecureCerts); attachErr == nil {
				log.Printf("attached to running browser at %s (profile %s)", url, opts.ProfileDir)
				if err := b.applyInstrumentation(h); err != nil {
					return nil, err
				}
				return h, nil
			}
		}
	}

	h, err := b.launch(ctx, opts)
	if err != nil {
		if isProfileLockError(err) {
			return nil, profileLockedError(opts.ProfileDir, err)
		}
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	if err := b.applyInstrumentation(h); err != nil {
		return nil, err
	}
	return h, nil
}

// applyInstrumentation closes the handle on failure: a handle the caller
// never receives must not keep a browser connection or process alive.
func (b *Broker) applyInstrumentation(h *Handle) error {
	if err := h.instrumentOnce(b.instrument); err != nil {
		_ = h.Close()
		return fmt.Errorf("installing page instrumentation: %w", err)
	}
	return nil
}

// launchOptions resolves the executable and profile directory for a launch.
func (b *Broker) launchOptions() (LaunchOptions, error) {
	bin := b.cfg.ExecutablePath
	if bin == "" {
		path, ok := launcher.LookPath()
		if !ok {
			return LaunchOptions{}, errors.New("no browser executable found; set browser.executable_path")
		}
		bin = path
	}

	profileDir, err := b.cfg.ProfileDir()
	if err != nil {
		return LaunchOptions{}, err
	}

	return LaunchOptions{
		Bin:                 bin,
		ProfileDir:          profileDir,
		Headless:            b.cfg.IsHeadless(),
		Devtools:            b.cfg.Devtools,
		ProxyServer:         b.cfg.ProxyServer,
		AcceptInsecureCerts: b.cfg.AcceptInsecureCerts,
		ViewportWidth:       b.cfg.GetViewportWidth(),
		ViewportHeight:      b.cfg.GetViewportHeight(),
		ExtraArgs:           b.cfg.ChromeArgs,
	}, nil
}

// readSidecar parses the two-line discovery file a running browser leaves in
// its profile directory and returns the websocket endpoint to attach to.
func readSidecar(profileDir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(profileDir, sidecarFile))
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return "", fmt.Errorf("malformed %s: expected port and websocket path", sidecarFile)
	}

	port, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || port <= 0 {
		return "", fmt.Errorf("malformed %s: bad port %q", sidecarFile, strings.TrimSpace(lines[0]))
	}

	wsPath := strings.TrimSpace(lines[1])
	if !strings.HasPrefix(wsPath, "/") {
		return "", fmt.Errorf("malformed %s: bad websocket path %q", sidecarFile, wsPath)
	}

	return fmt.Sprintf("ws://127.0.0.1:%d%s", port, wsPath), nil
}

// rodConnect attaches to an already-running browser at the given endpoint.
func rodConnect(ctx context.Context, url string, insecureCerts bool) (*Handle, error) {
	controlURL := url
	if !strings.HasPrefix(controlURL, "ws") {
		resolved, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, err
		}
		controlURL = resolved
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	if insecureCerts {
		if err := browser.IgnoreCertErrors(true); err != nil {
			_ = browser.Close()
			return nil, err
		}
	}
	return newHandle(browser, nil, controlURL), nil
}

// rodLaunch starts a browser process with the resolved options and connects
// to it.
func rodLaunch(ctx context.Context, opts LaunchOptions) (*Handle, error) {
	l := launcher.New().
		Bin(opts.Bin).
		Headless(opts.Headless).
		Devtools(opts.Devtools).
		UserDataDir(opts.ProfileDir).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight))

	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}
	for _, raw := range opts.ExtraArgs {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	if opts.AcceptInsecureCerts {
		if err := browser.IgnoreCertErrors(true); err != nil {
			_ = browser.Close()
			l.Kill()
			return nil, err
		}
	}
	return newHandle(browser, l, controlURL), nil
}
