package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultHandshakeTimeout bounds the TLS handshake when the Connector
// does not set one.
const DefaultHandshakeTimeout = 10 * time.Second

// VerifyPolicy selects how the server certificate is checked.
type VerifyPolicy int

const (
	// VerifyAcceptAny accepts any server certificate.  It is the default
	// when no trust anchor is configured and offers no protection
	// against an active attacker.
	VerifyAcceptAny VerifyPolicy = iota

	// VerifyTrustAnchor requires a chain to the configured anchor and a
	// certificate valid for the server name.
	VerifyTrustAnchor
)

func (p VerifyPolicy) String() string {
	if p == VerifyTrustAnchor {
		return "trust-anchor"
	}
	return "accept-any"
}

// ParseTLSVersion maps "1.0" .. "1.3" to the crypto/tls constant.  An
// empty string selects TLS 1.2.
func ParseTLSVersion(s string) (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "":
		return tls.VersionTLS12, nil
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported TLS version %q (want 1.0, 1.1, 1.2 or 1.3)", s)
}

// TLSContext is the client-role TLS configuration of one connection:
// local identity, verification policy and protocol bounds.  Sessions
// are derived from it by handshake.
type TLSContext struct {
	mu       sync.Mutex
	config   *tls.Config
	policy   VerifyPolicy
	released bool
}

// newTLSContext creates a client context that accepts any server
// certificate until a trust anchor is installed.
func newTLSContext(minVersion string) (*TLSContext, error) {
	v, err := ParseTLSVersion(minVersion)
	if err != nil {
		return nil, err
	}
	return &TLSContext{
		config: &tls.Config{
			MinVersion: v,
			NextProtos: []string{"http/1.1"},
			//nolint:gosec // replaced by requireAnchor when an anchor is given
			InsecureSkipVerify: true,
		},
	}, nil
}

// useIdentity installs the client certificate presented on request.
func (tc *TLSContext) useIdentity(cert tls.Certificate) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.config.Certificates = []tls.Certificate{cert}
}

// requireAnchor switches to full verification against roots.
func (tc *TLSContext) requireAnchor(roots *x509.CertPool, serverName string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.config.RootCAs = roots
	tc.config.ServerName = serverName
	tc.config.InsecureSkipVerify = false
	tc.policy = VerifyTrustAnchor
}

// acceptAny disables server certificate verification.
func (tc *TLSContext) acceptAny(serverName string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.config.RootCAs = nil
	tc.config.ServerName = serverName
	tc.config.InsecureSkipVerify = true //nolint:gosec
	tc.policy = VerifyAcceptAny
}

// Policy returns the verification policy in force.
func (tc *TLSContext) Policy() VerifyPolicy {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.policy
}

// HasIdentity reports whether a client certificate is installed.
func (tc *TLSContext) HasIdentity() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.config != nil && len(tc.config.Certificates) > 0
}

// RootCAs returns the installed trust anchors, nil when none.
func (tc *TLSContext) RootCAs() *x509.CertPool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.config == nil {
		return nil
	}
	return tc.config.RootCAs
}

// Released reports whether release has run.
func (tc *TLSContext) Released() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.released
}

// release drops the key material.  Only the first call has an effect.
func (tc *TLSContext) release() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.released {
		return
	}
	tc.released = true
	tc.config = nil
}

// handshake runs the client handshake over conn.  It blocks until the
// handshake completes, fails, or timeout elapses.
func (tc *TLSContext) handshake(ctx context.Context, conn net.Conn, timeout time.Duration) (*tls.Conn, error) {
	tc.mu.Lock()
	if tc.released {
		tc.mu.Unlock()
		return nil, fmt.Errorf("TLS context already released")
	}
	cfg := tc.config.Clone()
	tc.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}
