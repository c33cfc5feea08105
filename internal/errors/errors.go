// Package errors provides domain-specific error types for httplink.
//
// These types carry structured context (pipeline stage, operation,
// address) that lets callers tell a refused socket from a rejected
// certificate without matching on message text.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected   = errors.New("not connected")
	ErrClosed         = errors.New("connection closed")
	ErrNoCertificate  = errors.New("no certificate found in PEM data")
	ErrNoPrivateKey   = errors.New("no private key found in PEM data")
	ErrKeyMismatch    = errors.New("private key does not match certificate")
	ErrNoTrustAnchors = errors.New("no trust anchors loaded")
	ErrAuthFailed     = errors.New("authentication failed")
)

// ── Connect pipeline ─────────────────────────────────────────────────

// Stage identifies the step of the connect pipeline that failed.
type Stage int

const (
	StageTransport   Stage = iota + 1 // resolve + socket connect
	StageAlloc                        // connection buffer allocation
	StageTLSContext                   // client TLS context creation
	StageIdentity                     // client certificate loading
	StageTrustAnchor                  // trust anchor loading
	StageHandshake                    // TLS handshake
)

func (s Stage) String() string {
	switch s {
	case StageTransport:
		return "transport"
	case StageAlloc:
		return "alloc"
	case StageTLSContext:
		return "tls-context"
	case StageIdentity:
		return "identity"
	case StageTrustAnchor:
		return "trust-anchor"
	case StageHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

// message is the human-readable lead of a ConnectError for each stage.
func (s Stage) message() string {
	switch s {
	case StageTransport:
		return "cannot connect"
	case StageAlloc:
		return "allocation failed"
	case StageTLSContext:
		return "cannot create TLS context"
	case StageIdentity:
		return "cannot use client certificate"
	case StageTrustAnchor:
		return "cannot load trust anchor"
	case StageHandshake:
		return "TLS connection error"
	default:
		return "connect failed"
	}
}

// ConnectError is returned by every failed connect attempt.  All
// resources acquired before Stage have already been released when a
// ConnectError reaches the caller.
type ConnectError struct {
	Stage Stage
	Addr  string // host:port of the attempt
	Err   error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s to %s", e.Stage.message(), e.Addr)
	}
	return fmt.Sprintf("%s to %s: %v", e.Stage.message(), e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Connect creates a ConnectError.
func Connect(stage Stage, addr string, err error) *ConnectError {
	return &ConnectError{Stage: stage, Addr: addr, Err: err}
}

// StageOf returns the failed stage of a connect error, or 0 if err is
// not a ConnectError.
func StageOf(err error) Stage {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return 0
}

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "resolve", "getsockname"
	Addr      string // network address involved
	Err       error  // underlying error
	Temporary bool   // informational; connect attempts are never retried
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Temporary {
		s += " (temporary)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "channel"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, flagging conditions the OS reports as
// temporary.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Temporary: classifyTemporary(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsTemporary reports whether err represents a temporary condition.
func IsTemporary(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Temporary
	}
	return classifyTemporary(err)
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classifyTemporary inspects standard library error types.
func classifyTemporary(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These let callers classify errors without importing both this
// package and the standard library one.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
