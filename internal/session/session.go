package session

import (
	"context"
	"log"
	"sync"

	"chromepilot-mcp-server/internal/browser"
	"chromepilot-mcp-server/internal/config"

	"github.com/google/uuid"
)

// Resolver is the broker capability a session needs: hand me a connected
// handle, reusing the current one when it is still alive.
type Resolver interface {
	Resolve(ctx context.Context, current *browser.Handle) (*browser.Handle, error)
}

// Session binds one resolved browser configuration to one browser handle and
// serializes every tool call against it. At most one operation is in flight
// per session at any time; unrelated sessions are independent.
type Session struct {
	ID    string
	cfg   config.BrowserConfig
	mutex DispatchMutex

	broker     Resolver
	newContext func(*browser.Handle, config.BrowserConfig) (*browser.Context, error)

	mu         sync.Mutex
	handle     *browser.Handle
	bctx       *browser.Context
	bctxHandle *browser.Handle
}

// New constructs a session for the configuration. Construction validates the
// configuration but touches no browser; the first locked call does that.
func New(cfg config.BrowserConfig) (*Session, error) {
	full := config.Config{Server: config.DefaultConfig().Server, Browser: cfg}
	if err := full.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		ID:         uuid.NewString(),
		cfg:        cfg,
		broker:     browser.NewBroker(cfg),
		newContext: browser.NewContext,
	}, nil
}

// WithLock runs fn while holding the session's dispatch lock. The lock is
// released on every exit path, including panics unwinding through fn.
func (s *Session) WithLock(ctx context.Context, fn func() error) error {
	guard, err := s.mutex.Acquire(ctx)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

// GetContext resolves the live handle and returns the Context bound to it,
// rebuilding the Context when the handle identity changed since the last
// call. Call it while holding the dispatch lock.
func (s *Session) GetContext(ctx context.Context) (*browser.Context, error) {
	s.mu.Lock()
	current := s.handle
	s.mu.Unlock()

	handle, err := s.broker.Resolve(ctx, current)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = handle

	if s.bctx == nil || s.bctxHandle != handle {
		if s.bctx != nil {
			s.bctx.Close()
		}
		bctx, err := s.newContext(handle, s.cfg)
		if err != nil {
			s.bctx = nil
			s.bctxHandle = nil
			return nil, err
		}
		s.bctx = bctx
		s.bctxHandle = handle
		log.Printf("[session:%s] context rebuilt for browser %s", s.ID, handle.Endpoint())
	}
	return s.bctx, nil
}

// Close tears down the context and the browser handle.
func (s *Session) Close() {
	s.mu.Lock()
	bctx := s.bctx
	handle := s.handle
	s.bctx = nil
	s.bctxHandle = nil
	s.handle = nil
	s.mu.Unlock()

	if bctx != nil {
		bctx.Close()
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			log.Printf("[session:%s] closing browser: %v", s.ID, err)
		}
	}
}
