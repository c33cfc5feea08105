package client

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	hlerr "httplink/internal/errors"
	"httplink/internal/metrics"
	"httplink/util"
)

// Connection is an established client connection, plain or TLS.  It is
// owned by the caller, who must Close it.
type Connection struct {
	mu sync.Mutex // guards request/response I/O on this connection

	pool *util.BufPool
	buf  *[]byte

	runtime *RuntimeContext
	sock    net.Conn
	local   Endpoint
	peer    Endpoint

	secure  bool
	tlsCtx  *TLSContext
	tlsConn *tls.Conn

	metrics   *metrics.Collector
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// Lock acquires the connection's I/O mutex.
func (c *Connection) Lock() { c.mu.Lock() }

// Unlock releases the connection's I/O mutex.
func (c *Connection) Unlock() { c.mu.Unlock() }

// Buffer returns the scratch buffer attached to the connection.  Its
// length is util.MaxRequestSize unless the Connector's pool says
// otherwise.
func (c *Connection) Buffer() []byte {
	if c.buf == nil {
		return nil
	}
	return *c.buf
}

// IsSecure reports whether the connection carries a TLS session.
func (c *Connection) IsSecure() bool { return c.secure }

// LocalAddr returns the local endpoint, or an invalid Endpoint when the
// transport could not report it.
func (c *Connection) LocalAddr() Endpoint { return c.local }

// PeerAddr returns the remote endpoint.
func (c *Connection) PeerAddr() Endpoint { return c.peer }

// NetConn returns the stream to read and write application data on:
// the TLS session when secure, the transport socket otherwise.
func (c *Connection) NetConn() net.Conn {
	if c.tlsConn != nil {
		return c.tlsConn
	}
	return c.sock
}

// Runtime returns the connection's runtime context.
func (c *Connection) Runtime() *RuntimeContext { return c.runtime }

// TLSContext returns the TLS context of a secure connection, nil
// otherwise.
func (c *Connection) TLSContext() *TLSContext { return c.tlsCtx }

// TLSState returns the negotiated session parameters.  ok is false for
// plain connections.
func (c *Connection) TLSState() (state tls.ConnectionState, ok bool) {
	if c.tlsConn == nil {
		return state, false
	}
	return c.tlsConn.ConnectionState(), true
}

// Close tears the connection down in reverse order of construction:
// TLS session and socket, TLS context, then the scratch buffer.  Calls
// after the first return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.tlsConn != nil {
			// Sends close_notify and closes the socket underneath.
			c.closeErr = c.tlsConn.Close()
		} else if c.sock != nil {
			c.closeErr = c.sock.Close()
		}
		c.releaseResources()
		c.closed.Store(true)
		c.metrics.ConnectionClosed()
	})
	return c.closeErr
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool { return c.closed.Load() }

// releaseResources drops everything but the socket.
func (c *Connection) releaseResources() {
	if c.tlsCtx != nil {
		c.tlsCtx.release()
		c.runtime.publish(nil)
	}
	c.pool.Put(c.buf)
	c.buf = nil
}

// abort is the rollback path of a failed attempt: release the TLS
// context, close the socket, then free the connection.  It must run at
// most once and only before the connection reaches the caller.
func (c *Connection) abort() {
	if c.tlsCtx != nil {
		c.tlsCtx.release()
		c.runtime.publish(nil)
	}
	if c.sock != nil {
		c.sock.Close()
	}
	c.pool.Put(c.buf)
	c.buf = nil
	c.closed.Store(true)
	c.closeOnce.Do(func() { c.closeErr = hlerr.ErrClosed })
}

// transportConn guards the transport socket so it is closed exactly
// once, whichever of the TLS layer, abort or Close gets there first.
type transportConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *transportConn) Close() error {
	c.once.Do(func() { c.err = c.Conn.Close() })
	return c.err
}

// CloseWrite half-closes sockets that support it and is a no-op
// otherwise.
func (c *transportConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
