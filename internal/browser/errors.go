package browser

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrProfileLocked marks a launch failure caused by another running browser
// holding the same profile directory.
var ErrProfileLocked = errors.New("browser profile is locked")

// recoverableMessages are connect-failure fragments that justify falling back
// to a local launch. Matched case-insensitively anywhere in the cause chain.
var recoverableMessages = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"failed to fetch",
	"target closed",
	"timed out",
	"timeout",
	"no such host",
	"host unreachable",
	"network is unreachable",
	"404",
}

// maxCauseDepth bounds the unwrap walk in case a custom error type produces
// an unwrap cycle.
const maxCauseDepth = 32

// isRecoverableConnectError classifies a connect failure. Recoverable errors
// (endpoint unreachable, refused, reset, not found, timed out) trigger the
// launch fallback; anything else, e.g. an auth rejection, is surfaced to the
// caller untouched.
//
// Each chain element is inspected with direct assertions rather than
// errors.As: As re-walks the chain itself without cycle detection, which never
// terminates on a self-unwrapping error, and the walk here already visits
// every element.
func isRecoverableConnectError(err error) bool {
	seen := make(map[error]bool, maxCauseDepth)
	for e := err; e != nil && len(seen) < maxCauseDepth && !seen[e]; e = errors.Unwrap(e) {
		seen[e] = true

		if errno, ok := e.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH,
				syscall.ENETUNREACH, syscall.ETIMEDOUT, syscall.EPIPE:
				return true
			}
		}

		if dnsErr, ok := e.(*net.DNSError); ok && (dnsErr.IsNotFound || dnsErr.IsTimeout) {
			return true
		}

		if netErr, ok := e.(net.Error); ok && netErr.Timeout() {
			return true
		}

		msg := strings.ToLower(e.Error())
		for _, fragment := range recoverableMessages {
			if strings.Contains(msg, fragment) {
				return true
			}
		}
	}
	return false
}

// profileLockPatterns identify launch failures caused by a live browser
// already owning the profile directory.
var profileLockPatterns = []string{
	"singletonlock",
	"process singleton",
	"processsingleton",
	"profile is already in use",
	"existing browser session",
	"opening in existing browser",
}

func isProfileLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range profileLockPatterns {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func profileLockedError(profileDir string, cause error) error {
	return fmt.Errorf("%w: the browser is already running for profile %s; close it or set browser.isolated to true (%v)",
		ErrProfileLocked, profileDir, cause)
}
