// Package client establishes outbound HTTP(S) client connections.
//
// A connect attempt runs a fixed pipeline: transport connect, buffer
// allocation, TLS context creation, field population, then TLS
// configuration and handshake.  Each stage that fails releases what the
// earlier stages acquired, in reverse order, before the error is
// returned; a failed attempt never leaves a socket, buffer or TLS
// context behind.
package client

import (
	"context"
	"crypto/tls"
	"time"

	hlerr "httplink/internal/errors"
	"httplink/internal/metrics"
	"httplink/internal/transport"
	"httplink/util"
)

// Connector runs connect attempts.  The zero value dials plain TCP,
// draws buffers from an unbounded shared pool and logs nothing.
type Connector struct {
	Dialer           transport.Dialer
	Buffers          *util.BufPool
	Logger           *util.Logger
	Metrics          *metrics.Collector
	HandshakeTimeout time.Duration

	// NoDNS rejects host names; only numeric addresses are dialed.
	NoDNS bool

	// Passphrase decrypts encrypted client keys when the options carry
	// no passphrase source of their own.
	Passphrase PassphraseFunc
}

var (
	sharedBuffers    = util.NewBufPool(util.MaxRequestSize, 0)
	defaultConnector = &Connector{}
)

func (cn *Connector) dialer() transport.Dialer {
	if cn.Dialer != nil {
		return cn.Dialer
	}
	return &transport.TCPDialer{}
}

func (cn *Connector) buffers() *util.BufPool {
	if cn.Buffers != nil {
		return cn.Buffers
	}
	return sharedBuffers
}

func (cn *Connector) logger() *util.Logger {
	if cn.Logger != nil {
		return cn.Logger.Named("client")
	}
	return util.NewLogger(0)
}

// ConnectSecure opens a TLS connection described by opts.
func (cn *Connector) ConnectSecure(ctx context.Context, opts ConnectOptions) (*Connection, error) {
	return cn.Dial(ctx, opts, true)
}

// Connect opens a connection to host:port with default options.
func (cn *Connector) Connect(ctx context.Context, host string, port int, secure bool) (*Connection, error) {
	return cn.Dial(ctx, ConnectOptions{Host: host, Port: port}, secure)
}

// Dial runs one connect attempt.  On failure the returned error is a
// *errors.ConnectError naming the stage, and nothing acquired by the
// attempt is still held.
func (cn *Connector) Dial(ctx context.Context, opts ConnectOptions, secure bool) (*Connection, error) {
	log := cn.logger()
	addr := opts.addr()

	cn.Metrics.ConnectAttempt()
	fail := func(stage hlerr.Stage, err error) error {
		ce := hlerr.Connect(stage, addr, err)
		cn.Metrics.ConnectFailed(stage, ce)
		switch {
		case hlerr.Is(err, context.Canceled):
			log.Verbose("%s stage cancelled", stage)
		case hlerr.IsTimeout(err):
			log.Verbose("%s stage timed out: %v", stage, err)
		case hlerr.IsTemporary(err):
			log.Verbose("%s stage failed on a temporary condition: %v", stage, err)
		default:
			log.Debug("%s stage failed: %v", stage, err)
		}
		return ce
	}

	// ── 1. transport ──
	target, err := util.ResolveAddr(opts.Host, opts.Port, cn.NoDNS)
	if err != nil {
		return nil, fail(hlerr.StageTransport, err)
	}
	log.Debug("dialing %s", target)
	raw, err := cn.dialer().Dial(ctx, "tcp", target)
	if err != nil {
		return nil, fail(hlerr.StageTransport, hlerr.Wrap("dial", target, err))
	}
	sock := &transportConn{Conn: raw}

	// ── 2. connection allocation ──
	pool := cn.buffers()
	buf, err := pool.Get()
	if err != nil {
		sock.Close()
		return nil, fail(hlerr.StageAlloc, err)
	}
	conn := &Connection{
		pool:    pool,
		buf:     buf,
		sock:    sock,
		runtime: newRuntimeContext(),
		metrics: cn.Metrics,
	}

	// ── 3. TLS context ──
	if secure {
		tc, err := newTLSContext(opts.MinVersion)
		if err != nil {
			conn.abort()
			return nil, fail(hlerr.StageTLSContext, err)
		}
		conn.tlsCtx = tc
	}

	// ── 4. field population ──
	if conn.local, err = endpointOf(sock.LocalAddr()); err != nil {
		log.Warn("cannot read local address of connection to %s: %v", addr, err)
	}
	if conn.peer, err = endpointOf(sock.RemoteAddr()); err != nil {
		log.Warn("cannot read peer address of connection to %s: %v", addr, err)
	}
	conn.secure = secure

	// ── 5. TLS configuration and handshake ──
	if secure {
		if stage, err := cn.secure(ctx, conn, opts, log.Named("tls")); err != nil {
			conn.abort()
			return nil, fail(stage, err)
		}
	}

	cn.Metrics.ConnectSucceeded(secure)
	log.Verbose("connected to %s (%s -> %s, secure=%t)", addr, conn.local, conn.peer, secure)
	return conn, nil
}

// secure configures the connection's TLS context and performs the
// handshake, reporting the stage that failed.
func (cn *Connector) secure(ctx context.Context, conn *Connection, opts ConnectOptions, log *util.Logger) (hlerr.Stage, error) {
	conn.runtime.publish(conn.tlsCtx)
	tc := conn.runtime.Active()

	if opts.ClientCertPath != "" {
		pass := opts.Passphrase
		if pass == nil {
			pass = cn.Passphrase
		}
		cert, err := loadIdentity(opts.ClientCertPath, opts.ClientKeyPath, pass)
		if err != nil {
			return hlerr.StageIdentity, err
		}
		tc.useIdentity(cert)
		log.Debug("client certificate %s loaded (subject %s)", opts.ClientCertPath, cert.Leaf.Subject)
	}

	name := opts.serverName()
	if opts.TrustAnchorPath != "" {
		roots, n, err := loadTrustAnchors(opts.TrustAnchorPath, log)
		if err != nil {
			return hlerr.StageTrustAnchor, err
		}
		tc.requireAnchor(roots, name)
		log.Verbose("verifying %s against %d trust anchor(s) from %s", name, n, opts.TrustAnchorPath)
	} else {
		tc.acceptAny(name)
		log.Verbose("no trust anchor: server certificate of %s is not verified", name)
	}

	tlsConn, err := tc.handshake(ctx, conn.sock, cn.HandshakeTimeout)
	if err != nil {
		return hlerr.StageHandshake, err
	}
	conn.tlsConn = tlsConn

	state := tlsConn.ConnectionState()
	log.Debug("handshake ok: %s %s alpn=%q",
		tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite), state.NegotiatedProtocol)
	return 0, nil
}

// ── Buffer-reporting entry points ────────────────────────────────────

// ConnectSecure opens a TLS connection with the default Connector.  On
// failure it returns nil and writes a NUL-terminated diagnostic into
// errBuf, truncated to fit.  errBuf is untouched on success.
func ConnectSecure(ctx context.Context, opts ConnectOptions, errBuf []byte) *Connection {
	conn, err := defaultConnector.ConnectSecure(ctx, opts)
	if err != nil {
		writeError(errBuf, err)
		return nil
	}
	return conn
}

// Connect opens a connection to host:port with the default Connector,
// reporting failures like ConnectSecure.
func Connect(ctx context.Context, host string, port int, secure bool, errBuf []byte) *Connection {
	conn, err := defaultConnector.Connect(ctx, host, port, secure)
	if err != nil {
		writeError(errBuf, err)
		return nil
	}
	return conn
}

// writeError copies err's message into buf as a NUL-terminated string.
// A zero-length buf cannot hold anything and is left alone.
func writeError(buf []byte, err error) {
	if len(buf) == 0 {
		return
	}
	msg := err.Error()
	if msg == "" {
		msg = "connect failed"
	}
	n := copy(buf[:len(buf)-1], msg)
	buf[n] = 0
}

// ErrorString returns the diagnostic stored in buf, up to the first NUL.
func ErrorString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
