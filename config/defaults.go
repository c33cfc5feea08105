package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// EnvPrefix prefixes every environment variable httplink reads.
	EnvPrefix = "HTTPLINK_"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultMinTLSVersion is the lowest TLS version accepted.
	DefaultMinTLSVersion = "1.2"

	// DefaultMaxBuffers caps outstanding connection buffers.  A
	// single CLI run needs one; the cap keeps a runaway caller from
	// pinning unbounded memory.
	DefaultMaxBuffers = 64
)

// defaultValues is the lowest-priority configuration layer.
func defaultValues() map[string]any {
	return map[string]any{
		"timeout":              DefaultConnTimeout.String(),
		"tls.minversion":       DefaultMinTLSVersion,
		"tls.handshaketimeout": DefaultHandshakeTimeout.String(),
		"buffers.max":          DefaultMaxBuffers,
	}
}

// Default returns a Config holding only the defaults.
func Default() *Config {
	return &Config{
		Timeout: DefaultConnTimeout,
		TLS: TLSConfig{
			MinVersion:       DefaultMinTLSVersion,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		Buffers: BufferConfig{Max: DefaultMaxBuffers},
	}
}
