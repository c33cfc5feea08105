// Package tunnel reaches HTTP(S) servers that are only routable from a
// gateway.  The SSH implementation carries the raw TCP stream of a
// connect attempt; TLS, when requested, is negotiated end to end with
// the server through the forwarded channel, so the gateway never sees
// plaintext.
package tunnel

import (
	"context"
	"net"
)

// Tunnel forwards outbound TCP streams through a gateway.  It is
// connected once and then serves every dial of the run.
type Tunnel interface {
	// Connect authenticates to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a stream to address from the gateway's side.  It
	// fails with errors.ErrNotConnected before Connect.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close drops the gateway session; streams already opened through
	// it fail on their next read or write.
	Close() error

	// IsAlive reports whether the gateway session is still up.
	IsAlive() bool
}
