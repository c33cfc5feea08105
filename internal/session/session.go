// Package session represents a single connection lifecycle, binding an
// established client connection with I/O endpoints and shared context.
//
// Sessions decouple capabilities from concrete I/O sources: a
// capability doesn't need to know whether it's reading from os.Stdin
// or a test buffer, it just uses the session's Reader/Writer.
package session

import (
	"io"

	"httplink/internal/client"
	"httplink/internal/metrics"
	"httplink/util"
)

// Session encapsulates the runtime context for a single connection.
// Capabilities operate on sessions rather than raw connections,
// enabling clean testing and I/O abstraction.
type Session struct {
	Conn    *client.Connection
	Stdin   io.Reader
	Stdout  io.Writer
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// New creates a Session bound to the given connection and I/O pair.
func New(conn *client.Connection, stdin io.Reader, stdout io.Writer, logger *util.Logger, m *metrics.Collector) *Session {
	return &Session{
		Conn:    conn,
		Stdin:   stdin,
		Stdout:  stdout,
		Logger:  logger,
		Metrics: m,
	}
}
