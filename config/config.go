// Package config defines the runtime configuration for httplink and
// loads it from defaults, a YAML file, HTTPLINK_* environment variables
// and command-line flags.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"httplink/internal/client"
	hlerr "httplink/internal/errors"
)

// Config holds every tuneable for a single httplink run.  The koanf
// tags are the dotted keys used by the file, environment and flag
// sources.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host      string        `koanf:"host"`
	Port      int           `koanf:"port"`
	Secure    bool          `koanf:"secure"`
	Timeout   time.Duration `koanf:"timeout"`
	LocalPort int           `koanf:"localport"`
	NoDNS     bool          `koanf:"nodns"`

	// ── TLS ──────────────────────────────────────────────────────────
	TLS TLSConfig `koanf:"tls"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	Tunnel TunnelConfig `koanf:"tunnel"`

	// ── Resources ────────────────────────────────────────────────────
	Buffers BufferConfig `koanf:"buffers"`

	// ── Output ───────────────────────────────────────────────────────
	Probe   bool          `koanf:"probe"`
	Metrics MetricsConfig `koanf:"metrics"`
	Verbose int           `koanf:"verbose"`
}

// TLSConfig configures the secure layer.
type TLSConfig struct {
	Cert             string        `koanf:"cert"`
	Key              string        `koanf:"key"`
	CA               string        `koanf:"ca"`
	ServerName       string        `koanf:"servername"`
	MinVersion       string        `koanf:"minversion"`
	HandshakeTimeout time.Duration `koanf:"handshaketimeout"`
}

// TunnelConfig configures the optional SSH gateway.  User, Host and
// Port are filled from Spec when the configuration is loaded.
type TunnelConfig struct {
	Spec          string `koanf:"spec"`
	Key           string `koanf:"key"`
	Password      bool   `koanf:"password"`
	Agent         bool   `koanf:"agent"`
	StrictHostKey bool   `koanf:"stricthostkey"`
	KnownHosts    string `koanf:"knownhosts"`

	User string `koanf:"-"`
	Host string `koanf:"-"`
	Port int    `koanf:"-"`
}

// Enabled reports whether a gateway was configured.
func (t TunnelConfig) Enabled() bool { return t.Spec != "" }

// BufferConfig bounds the connection buffer pool.
type BufferConfig struct {
	Max int `koanf:"max"` // 0 = unbounded
}

// MetricsConfig selects how run statistics are reported.
type MetricsConfig struct {
	Stats bool   `koanf:"stats"`
	File  string `koanf:"file"`
}

// ConnectOptions converts the TLS and target settings into the options
// of a single connect attempt.
func (c *Config) ConnectOptions() client.ConnectOptions {
	return client.ConnectOptions{
		Host:            c.Host,
		Port:            c.Port,
		ClientCertPath:  c.TLS.Cert,
		ClientKeyPath:   c.TLS.Key,
		TrustAnchorPath: c.TLS.CA,
		ServerName:      c.TLS.ServerName,
		MinVersion:      c.TLS.MinVersion,
	}
}

// ── Parsers ──────────────────────────────────────────────────────────

// ParsePort converts a decimal port string, rejecting values outside
// 1-65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Errors are *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &hlerr.ConfigError{
			Field:   "host",
			Message: "hostname is required",
			Hint:    "usage: httplink [flags] host port",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &hlerr.ConfigError{
			Field:   "port",
			Value:   c.Port,
			Message: "out of range 1-65535",
			Hint:    "give the destination port as the second argument",
		}
	}
	if c.NoDNS && net.ParseIP(c.Host) == nil {
		return &hlerr.ConfigError{
			Field:   "no-dns",
			Message: fmt.Sprintf("%q is not a numeric IP address", c.Host),
			Hint:    "drop -n or pass an IP address",
		}
	}
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return &hlerr.ConfigError{Field: "local-port", Value: c.LocalPort, Message: "out of range 0-65535"}
	}
	if c.Timeout < 0 {
		return &hlerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.Buffers.Max < 0 {
		return &hlerr.ConfigError{Field: "max-buffers", Value: c.Buffers.Max, Message: "must not be negative"}
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if c.Tunnel.Enabled() && c.Tunnel.Host == "" {
		return &hlerr.ConfigError{
			Field:   "tunnel",
			Value:   c.Tunnel.Spec,
			Message: "tunnel host is required",
			Hint:    "use -T [user@]host[:port]",
		}
	}
	return nil
}

func (c *Config) validateTLS() error {
	t := c.TLS
	if !c.Secure {
		for flag, v := range map[string]string{
			"cert": t.Cert, "key": t.Key, "ca": t.CA, "server-name": t.ServerName,
		} {
			if v != "" {
				return &hlerr.ConfigError{
					Field:   flag,
					Value:   v,
					Message: "only applies to TLS connections",
					Hint:    "add -s/--secure",
				}
			}
		}
	}
	if t.Key != "" && t.Cert == "" {
		return &hlerr.ConfigError{
			Field:   "key",
			Value:   t.Key,
			Message: "requires --cert",
			Hint:    "pass the client certificate with --cert",
		}
	}
	if _, err := client.ParseTLSVersion(t.MinVersion); err != nil {
		return &hlerr.ConfigError{
			Field:   "tls-min",
			Value:   t.MinVersion,
			Message: err.Error(),
			Hint:    "use 1.0, 1.1, 1.2 or 1.3",
		}
	}
	if t.HandshakeTimeout < 0 {
		return &hlerr.ConfigError{Field: "handshake-timeout", Value: t.HandshakeTimeout, Message: "must not be negative"}
	}
	return nil
}
