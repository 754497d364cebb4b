package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures all tunable settings for the ChromePilot MCP server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	MCP     MCPConfig     `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for an already-running browser (e.g., ws://localhost:9222).
	// When set we try to connect before falling back to a local launch.
	BrowserURL string `yaml:"browser_url"`
	// Release channel used to derive a stable profile directory
	// (stable | beta | dev | canary). Default: stable.
	Channel string `yaml:"channel"`
	// Optional explicit path to the browser binary. Empty means auto-detect.
	ExecutablePath string `yaml:"executable_path"`
	// Headless controls whether Chrome runs without a window (default: true).
	Headless *bool `yaml:"headless"`
	// Isolated uses a throwaway temp profile instead of the channel profile.
	Isolated bool `yaml:"isolated"`
	// Optional profile directory override. Empty means the channel default.
	UserDataDir string `yaml:"user_data_dir"`
	// Viewport width for pages (default: 1280).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for pages (default: 720).
	ViewportHeight int `yaml:"viewport_height"`
	// Optional proxy server passed to the browser.
	ProxyServer string `yaml:"proxy_server"`
	// AcceptInsecureCerts tolerates invalid TLS certificates.
	AcceptInsecureCerts bool `yaml:"accept_insecure_certs"`
	// Devtools opens the devtools panel for every new tab.
	Devtools bool `yaml:"devtools"`
	// Extra command line switches appended at launch (e.g., ["--lang=en-US"]).
	ChromeArgs []string `yaml:"chrome_args"`
	// Default navigation timeout (e.g., "30s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "chromepilot-mcp",
			Version: "0.2.0",
			LogFile: "chromepilot-mcp.log",
		},
		Browser: BrowserConfig{
			Channel:                  "stable",
			ViewportWidth:            1280,
			ViewportHeight:           720,
			DefaultNavigationTimeout: "30s",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
	}
}

// Load reads YAML config from disk and overlays defaults. An empty path
// returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

var validChannels = map[string]bool{
	"stable": true,
	"beta":   true,
	"dev":    true,
	"canary": true,
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.Channel != "" && !validChannels[c.Browser.Channel] {
		return fmt.Errorf("browser.channel must be one of stable|beta|dev|canary, got %q", c.Browser.Channel)
	}
	if c.Browser.BrowserURL != "" && c.Browser.Isolated {
		return errors.New("browser.browser_url and browser.isolated are mutually exclusive")
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.DefaultNavigationTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(b.DefaultNavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IsHeadless returns whether Chrome should run headless (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetChannel returns the release channel with a sane default.
func (b BrowserConfig) GetChannel() string {
	if b.Channel == "" {
		return "stable"
	}
	return b.Channel
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1280
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 720
	}
	return b.ViewportHeight
}

// ProfileDir resolves the profile directory for the configured channel.
// The directory is stable across relaunches so a restarted server reattaches
// to the same browser state. Isolated configs get a fresh temp directory.
func (b BrowserConfig) ProfileDir() (string, error) {
	if b.Isolated {
		return os.MkdirTemp("", "chromepilot-profile-")
	}
	if b.UserDataDir != "" {
		return b.UserDataDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache dir: %w", err)
	}
	return filepath.Join(base, "chromepilot", b.GetChannel()+"-profile"), nil
}

// cacheKeyFields is the canonical shape serialized by CacheKey. Fields are
// resolved (defaults applied) so equivalent configs collapse to one key no
// matter which properties were spelled out or in what order.
type cacheKeyFields struct {
	BrowserURL          string   `json:"browserUrl"`
	Channel             string   `json:"channel"`
	ExecutablePath      string   `json:"executablePath"`
	Headless            bool     `json:"headless"`
	Isolated            bool     `json:"isolated"`
	UserDataDir         string   `json:"userDataDir"`
	ViewportWidth       int      `json:"viewportWidth"`
	ViewportHeight      int      `json:"viewportHeight"`
	ProxyServer         string   `json:"proxyServer"`
	AcceptInsecureCerts bool     `json:"acceptInsecureCerts"`
	Devtools            bool     `json:"devtools"`
	ChromeArgs          []string `json:"chromeArgs"`
}

// CacheKey returns a canonical serialization of the resolved browser
// configuration. Two configs that resolve to the same effective settings
// always share a key.
func (b BrowserConfig) CacheKey() string {
	args := append([]string(nil), b.ChromeArgs...)
	sort.Strings(args)

	key := cacheKeyFields{
		BrowserURL:          b.BrowserURL,
		Channel:             b.GetChannel(),
		ExecutablePath:      b.ExecutablePath,
		Headless:            b.IsHeadless(),
		Isolated:            b.Isolated,
		UserDataDir:         b.UserDataDir,
		ViewportWidth:       b.GetViewportWidth(),
		ViewportHeight:      b.GetViewportHeight(),
		ProxyServer:         b.ProxyServer,
		AcceptInsecureCerts: b.AcceptInsecureCerts,
		Devtools:            b.Devtools,
		ChromeArgs:          args,
	}

	raw, err := json.Marshal(key)
	if err != nil {
		// Marshal of plain fields cannot fail; keep a deterministic fallback anyway.
		return fmt.Sprintf("%+v", key)
	}
	return string(raw)
}
