// Package capability defines what happens over an established
// connection.  Each Capability encapsulates a single behaviour
// (relay I/O, report the negotiated parameters) and operates on a
// Session rather than a raw connection, which keeps capabilities
// testable and decoupled from transport details.
package capability

import (
	"context"

	"httplink/internal/session"
)

// Capability handles a single connection according to a specific
// behaviour.  Implementations include relaying stdin/stdout (Relay)
// and printing connection details (Probe).
type Capability interface {
	// Handle runs the capability against the given session.
	// It blocks until the connection is done or the context is
	// cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}
