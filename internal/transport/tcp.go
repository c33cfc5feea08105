package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer opens the direct socket behind stage one of a connect
// attempt.  The connection it returns is owned by the caller and is the
// stream the TLS client runs over.
type TCPDialer struct {
	Timeout   time.Duration // bounds the connect; 0 leaves it to ctx
	LocalPort int           // source port to bind (0 = ephemeral)
}

// Dial connects to address, a host:port already checked by the client.
// When the host resolves to several addresses they are tried in turn.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	if d.LocalPort > 0 {
		// Unspecified IP so the source family follows the target.
		dialer.LocalAddr = &net.TCPAddr{Port: d.LocalPort}
	}
	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op: the dialer holds nothing between attempts.
func (d *TCPDialer) Close() error { return nil }
