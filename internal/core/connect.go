package core

import (
	"context"
	"io"
	"os"

	"httplink/internal/capability"
	"httplink/internal/client"
	"httplink/internal/metrics"
	"httplink/internal/session"
	"httplink/util"
)

// ConnectMode opens one client connection and runs a capability on it.
type ConnectMode struct {
	Connector  *client.Connector
	Options    client.ConnectOptions
	Secure     bool
	Capability capability.Capability
	Logger     *util.Logger
	Metrics    *metrics.Collector

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run connects, hands the session to the capability and closes the
// connection (and the transport) when the capability returns.  A failed
// connect attempt is returned as a *errors.ConnectError.
func (m *ConnectMode) Run(ctx context.Context) error {
	if d := m.Connector.Dialer; d != nil {
		defer d.Close()
	}

	m.Logger.Verbose("connecting to %s (secure=%t)", util.FormatAddr(m.Options.Host, m.Options.Port), m.Secure)

	conn, err := m.Connector.Dial(ctx, m.Options, m.Secure)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess := session.New(conn, m.stdin(), m.stdout(), m.Logger, m.Metrics)
	return m.Capability.Handle(ctx, sess)
}
