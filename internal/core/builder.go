package core

import (
	"fmt"

	"httplink/config"
	"httplink/internal/capability"
	"httplink/internal/client"
	"httplink/internal/metrics"
	"httplink/internal/transport"
	"httplink/tunnel"
	"httplink/util"
)

// Build constructs the connect mode for cfg.  cfg is expected to have
// passed Validate.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	connector := &client.Connector{
		Dialer:           buildDialer(cfg, logger),
		Buffers:          util.NewBufPool(util.MaxRequestSize, cfg.Buffers.Max),
		Logger:           logger,
		Metrics:          m,
		HandshakeTimeout: cfg.TLS.HandshakeTimeout,
		NoDNS:            cfg.NoDNS,
		Passphrase: func(path string) ([]byte, error) {
			return util.PromptSecret(fmt.Sprintf("Enter passphrase for %s: ", path))
		},
	}

	return &ConnectMode{
		Connector:  connector,
		Options:    cfg.ConnectOptions(),
		Secure:     cfg.Secure,
		Capability: buildCapability(cfg),
		Logger:     logger,
		Metrics:    m,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.Tunnel.Enabled() {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.Tunnel.User,
			Host:          cfg.Tunnel.Host,
			Port:          cfg.Tunnel.Port,
			KeyPath:       cfg.Tunnel.Key,
			PromptPass:    cfg.Tunnel.Password,
			UseAgent:      cfg.Tunnel.Agent,
			StrictHostKey: cfg.Tunnel.StrictHostKey,
			KnownHosts:    cfg.Tunnel.KnownHosts,
			ConnTimeout:   cfg.Timeout,
		}, logger)
	}

	return &transport.TCPDialer{
		Timeout:   cfg.Timeout,
		LocalPort: cfg.LocalPort,
	}
}

// buildCapability selects what happens on the established connection.
func buildCapability(cfg *config.Config) capability.Capability {
	if cfg.Probe {
		return &capability.Probe{}
	}
	return &capability.Relay{}
}
