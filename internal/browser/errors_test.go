package browser

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

// cyclicError unwraps to itself forever. Classification must terminate on it.
type cyclicError struct{ msg string }

func (e *cyclicError) Error() string { return e.msg }
func (e *cyclicError) Unwrap() error { return e }

// cyclicTimeoutError is a self-unwrapping net.Error reporting a timeout.
type cyclicTimeoutError struct{}

func (e *cyclicTimeoutError) Error() string   { return "handshake stalled" }
func (e *cyclicTimeoutError) Unwrap() error   { return e }
func (e *cyclicTimeoutError) Timeout() bool   { return true }
func (e *cyclicTimeoutError) Temporary() bool { return false }

// classifyWithin fails the test instead of hanging when the classifier does
// not return, which is the failure mode of an unguarded chain walk on a
// self-unwrapping error.
func classifyWithin(t *testing.T, err error, timeout time.Duration) bool {
	t.Helper()
	done := make(chan bool, 1)
	go func() { done <- isRecoverableConnectError(err) }()
	select {
	case got := <-done:
		return got
	case <-time.After(timeout):
		t.Fatalf("isRecoverableConnectError never returned for %v", err)
		return false
	}
}

func TestIsRecoverableConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"econnrefused wrapped", fmt.Errorf("dial tcp 127.0.0.1:9222: %w", syscall.ECONNREFUSED), true},
		{"econnreset", syscall.ECONNRESET, true},
		{"host unreachable", syscall.EHOSTUNREACH, true},
		{"broken pipe", syscall.EPIPE, true},
		{"dns not found", &net.DNSError{Err: "no such host", Name: "browser.internal", IsNotFound: true}, true},
		{"dns timeout", &net.DNSError{Err: "lookup timed out", Name: "browser.internal", IsTimeout: true}, true},
		{"message refused", errors.New("websocket dial: connection refused"), true},
		{"message target closed", errors.New("cdp: target closed"), true},
		{"message failed to fetch", errors.New("version probe: Failed to Fetch"), true},
		{"message 404", errors.New("unexpected status 404 from /json/version"), true},
		{"auth rejection", errors.New("websocket handshake: permission denied"), false},
		{"bad handshake", errors.New("malformed control url"), false},
		{"permission errno", syscall.EACCES, false},
		{"unwrap cycle", &cyclicError{msg: "stuck error"}, false},
		{"recoverable behind cycle message", &cyclicError{msg: "connection refused by peer"}, true},
		{"timeout behind cycle", &cyclicTimeoutError{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyWithin(t, tt.err, 2*time.Second); got != tt.want {
				t.Errorf("isRecoverableConnectError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsProfileLockError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"singleton lock", errors.New("Failed to create SingletonLock"), true},
		{"process singleton", errors.New("check failed: Process singleton acquisition"), true},
		{"in use", errors.New("the profile is already in use by another process"), true},
		{"existing session", errors.New("opening in existing browser session"), true},
		{"unrelated launch failure", errors.New("exec: no such file or directory"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isProfileLockError(tt.err); got != tt.want {
				t.Errorf("isProfileLockError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestProfileLockedErrorGuidance(t *testing.T) {
	err := profileLockedError("/home/u/.cache/chromepilot/stable-profile", errors.New("SingletonLock held"))
	if !errors.Is(err, ErrProfileLocked) {
		t.Fatalf("expected ErrProfileLocked in the chain, got %v", err)
	}
}
