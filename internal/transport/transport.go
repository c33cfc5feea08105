// Package transport provides the socket layer of the connect pipeline.
// A Dialer decides how bytes reach the server (direct TCP or through an
// SSH gateway) and knows nothing about TLS, which the client package
// layers on top.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound stream connections.  Implementations include a
// plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through a gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
