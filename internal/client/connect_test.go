package client

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	hlerr "httplink/internal/errors"
	"httplink/internal/metrics"
	"httplink/util"
)

func newTestConnector(d *trackingDialer, pool *util.BufPool) *Connector {
	return &Connector{
		Dialer:           d,
		Buffers:          pool,
		Metrics:          metrics.New(),
		HandshakeTimeout: 5 * time.Second,
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := portOf(ln)
	ln.Close()
	return port
}

// ── plain ────────────────────────────────────────────────────────────

func TestConnect_Plain(t *testing.T) {
	ln, _ := startRawServer(t, "tcp", "127.0.0.1:0", true)

	errBuf := bytes.Repeat([]byte{'x'}, 64)
	conn := Connect(context.Background(), "127.0.0.1", portOf(ln), false, errBuf)
	if conn == nil {
		t.Fatalf("Connect failed: %s", ErrorString(errBuf))
	}
	defer conn.Close()

	if conn.IsSecure() {
		t.Error("plain connection reports secure")
	}
	if conn.TLSContext() != nil || conn.Runtime().Active() != nil {
		t.Error("plain connection has a TLS context")
	}
	if _, ok := conn.TLSState(); ok {
		t.Error("plain connection has TLS state")
	}
	if got := len(conn.Buffer()); got != util.MaxRequestSize {
		t.Errorf("buffer size = %d, want %d", got, util.MaxRequestSize)
	}
	if !bytes.Equal(errBuf, bytes.Repeat([]byte{'x'}, 64)) {
		t.Error("error buffer modified on success")
	}

	wantLocal := Endpoint{Family: FamilyIPv4}
	if diff := cmp.Diff(wantLocal.Family, conn.LocalAddr().Family); diff != "" {
		t.Errorf("local family (-want +got):\n%s", diff)
	}
	if got := conn.PeerAddr().Addr.Port(); int(got) != portOf(ln) {
		t.Errorf("peer port = %d, want %d", got, portOf(ln))
	}

	// The socket is open: data round-trips through the echo server.
	nc := conn.NetConn()
	if _, err := nc.Write([]byte("GET / HTTP/1.0\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, 18)
	if _, err := io.ReadFull(nc, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "GET / HTTP/1.0\r\n\r\n" {
		t.Errorf("echo = %q", got)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	errBuf := make([]byte, 256)
	conn := Connect(context.Background(), "127.0.0.1", closedPort(t), false, errBuf)
	if conn != nil {
		conn.Close()
		t.Fatal("expected failure for closed port")
	}
	msg := ErrorString(errBuf)
	if !strings.HasPrefix(msg, "cannot connect to 127.0.0.1:") {
		t.Errorf("error = %q", msg)
	}
}

func TestConnect_InvalidTarget(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
	}{
		{"empty host", "", 80},
		{"port zero", "127.0.0.1", 0},
		{"port too large", "127.0.0.1", 70000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cn := newTestConnector(&trackingDialer{}, nil)
			_, err := cn.Connect(context.Background(), tt.host, tt.port, false)
			if got := hlerr.StageOf(err); got != hlerr.StageTransport {
				t.Errorf("stage = %v, want transport (err %v)", got, err)
			}
		})
	}
}

// ── error buffer ─────────────────────────────────────────────────────

func TestWriteError(t *testing.T) {
	err := hlerr.Connect(hlerr.StageTransport, "h:1", errors.New("refused"))
	full := err.Error()

	tests := []struct {
		name string
		size int
		want string
	}{
		{"fits", 128, full},
		{"truncated", 8, full[:7]},
		{"only terminator", 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xff}, tt.size)
			writeError(buf, err)
			if got := ErrorString(buf); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if i := bytes.IndexByte(buf, 0); i < 0 || i >= tt.size {
				t.Error("missing NUL terminator")
			}
		})
	}

	// Zero capacity: nothing to write into.
	writeError(nil, err)
	writeError([]byte{}, err)
}

// ── TLS ──────────────────────────────────────────────────────────────

func TestConnectSecure_AcceptAny(t *testing.T) {
	ca := newTestCA(t, "untrusted CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)

	errBuf := make([]byte, 256)
	conn := ConnectSecure(context.Background(), ConnectOptions{Host: "127.0.0.1", Port: port}, errBuf)
	if conn == nil {
		t.Fatalf("ConnectSecure: %s", ErrorString(errBuf))
	}
	defer conn.Close()

	if !conn.IsSecure() {
		t.Error("secure connection reports plain")
	}
	if got := conn.TLSContext().Policy(); got != VerifyAcceptAny {
		t.Errorf("policy = %v, want accept-any", got)
	}
	state, ok := conn.TLSState()
	if !ok || !state.HandshakeComplete {
		t.Fatal("handshake not complete")
	}
	if state.PeerCertificates[0].Subject.CommonName != "server" {
		t.Errorf("peer = %q", state.PeerCertificates[0].Subject.CommonName)
	}
}

func TestConnectSecure_TrustAnchor(t *testing.T) {
	ca := newTestCA(t, "test CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)
	anchor := writeFile(t, t.TempDir(), "ca.pem", ca.pem)

	for _, host := range []string{"127.0.0.1", "localhost"} {
		t.Run(host, func(t *testing.T) {
			cn := newTestConnector(&trackingDialer{}, nil)
			conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
				Host:            host,
				Port:            port,
				TrustAnchorPath: anchor,
			})
			if err != nil {
				t.Fatalf("ConnectSecure: %v", err)
			}
			defer conn.Close()

			if got := conn.TLSContext().Policy(); got != VerifyTrustAnchor {
				t.Errorf("policy = %v, want trust-anchor", got)
			}
			if conn.Runtime().Active() != conn.TLSContext() {
				t.Error("runtime context does not carry the connection's TLS context")
			}
		})
	}
}

func TestConnectSecure_UntrustedServer(t *testing.T) {
	serverCA := newTestCA(t, "server CA")
	otherCA := newTestCA(t, "other CA")
	port, _ := startTLSServer(t, serverCA.leaf(t, "server").tls, nil)
	anchor := writeFile(t, t.TempDir(), "other.pem", otherCA.pem)

	d := &trackingDialer{}
	pool := util.NewBufPool(util.MaxRequestSize, 4)
	cn := newTestConnector(d, pool)

	conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
		Host: "127.0.0.1", Port: port, TrustAnchorPath: anchor,
	})
	if err == nil {
		conn.Close()
		t.Fatal("expected verification failure")
	}
	if got := hlerr.StageOf(err); got != hlerr.StageHandshake {
		t.Errorf("stage = %v, want handshake (err %v)", got, err)
	}
	var unknown x509.UnknownAuthorityError
	if !errors.As(err, &unknown) {
		t.Errorf("err = %v, want x509.UnknownAuthorityError", err)
	}
	if d.open() != 0 {
		t.Error("socket left open after handshake failure")
	}
	if pool.InUse() != 0 {
		t.Errorf("buffers in use = %d, want 0", pool.InUse())
	}
}

func TestConnectSecure_ServerNameMismatch(t *testing.T) {
	ca := newTestCA(t, "test CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)
	anchor := writeFile(t, t.TempDir(), "ca.pem", ca.pem)

	cn := newTestConnector(&trackingDialer{}, nil)
	_, err := cn.ConnectSecure(context.Background(), ConnectOptions{
		Host:            "127.0.0.1",
		Port:            port,
		TrustAnchorPath: anchor,
		ServerName:      "www.example.com",
	})
	if got := hlerr.StageOf(err); got != hlerr.StageHandshake {
		t.Fatalf("stage = %v, want handshake (err %v)", got, err)
	}
	if !strings.HasPrefix(err.Error(), "TLS connection error to 127.0.0.1:") {
		t.Errorf("error = %q", err)
	}
}

func TestConnectSecure_TrustAnchorDir(t *testing.T) {
	ca := newTestCA(t, "test CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)

	dir := t.TempDir()
	writeFile(t, dir, "ca.crt", ca.pem)
	writeFile(t, dir, "README", []byte("not a certificate"))
	writeFile(t, dir, "broken.pem", []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"))

	cn := newTestConnector(&trackingDialer{}, nil)
	conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
		Host: "127.0.0.1", Port: port, TrustAnchorPath: dir,
	})
	if err != nil {
		t.Fatalf("ConnectSecure: %v", err)
	}
	conn.Close()
}

func TestConnectSecure_TrustAnchorUnusable(t *testing.T) {
	ca := newTestCA(t, "test CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", dir + "/nope.pem"},
		{"empty dir", t.TempDir()},
		{"no certificates", writeFile(t, dir, "key.pem", ca.leaf(t, "x").keyPEM)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &trackingDialer{}
			pool := util.NewBufPool(util.MaxRequestSize, 1)
			cn := newTestConnector(d, pool)

			_, err := cn.ConnectSecure(context.Background(), ConnectOptions{
				Host: "127.0.0.1", Port: port, TrustAnchorPath: tt.path,
			})
			if got := hlerr.StageOf(err); got != hlerr.StageTrustAnchor {
				t.Fatalf("stage = %v, want trust-anchor (err %v)", got, err)
			}
			if d.open() != 0 || pool.InUse() != 0 {
				t.Errorf("leak: open sockets %d, buffers %d", d.open(), pool.InUse())
			}
		})
	}
}

// ── client identity ──────────────────────────────────────────────────

func TestConnectSecure_ClientCertificate(t *testing.T) {
	ca := newTestCA(t, "test CA")
	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(ca.cert)
	port, peers := startTLSServer(t, ca.leaf(t, "server").tls, clientCAs)

	dir := t.TempDir()
	anchor := writeFile(t, dir, "ca.pem", ca.pem)

	t.Run("combined file", func(t *testing.T) {
		client := ca.leaf(t, "alice")
		path := writeFile(t, dir, "alice.pem", client.certPEM, client.keyPEM)

		conn, err := newTestConnector(&trackingDialer{}, nil).ConnectSecure(context.Background(), ConnectOptions{
			Host: "127.0.0.1", Port: port, ClientCertPath: path, TrustAnchorPath: anchor,
		})
		if err != nil {
			t.Fatalf("ConnectSecure: %v", err)
		}
		defer conn.Close()

		if !conn.TLSContext().HasIdentity() {
			t.Error("identity not installed")
		}
		expectPeer(t, peers, "alice")
	})

	t.Run("separate key file", func(t *testing.T) {
		client := ca.leaf(t, "bob")
		certPath := writeFile(t, dir, "bob.crt", client.certPEM)
		keyPath := writeFile(t, dir, "bob.key", client.keyPEM)

		conn, err := newTestConnector(&trackingDialer{}, nil).ConnectSecure(context.Background(), ConnectOptions{
			Host: "127.0.0.1", Port: port, ClientCertPath: certPath, ClientKeyPath: keyPath,
		})
		if err != nil {
			t.Fatalf("ConnectSecure: %v", err)
		}
		defer conn.Close()
		expectPeer(t, peers, "bob")
	})
}

func expectPeer(t *testing.T, peers <-chan string, want string) {
	t.Helper()
	select {
	case got := <-peers:
		if got != want {
			t.Errorf("server saw client %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("server never completed the handshake")
	}
}

// A bad client certificate must fail before the handshake starts and
// release the socket and the connection buffer, every time.
func TestConnectSecure_BadClientCertReleasesEverything(t *testing.T) {
	ln, counts := startRawServer(t, "tcp", "127.0.0.1:0", false)

	ca := newTestCA(t, "test CA")
	dir := t.TempDir()
	mismatched := writeFile(t, dir, "mismatch.pem", ca.leaf(t, "a").certPEM, ca.leaf(t, "b").keyPEM)

	paths := map[string]error{
		dir + "/missing.pem": nil,
		writeFile(t, dir, "garbage.pem", []byte("garbage")): hlerr.ErrNoCertificate,
		writeFile(t, dir, "nokey.pem", ca.leaf(t, "c").certPEM): hlerr.ErrNoPrivateKey,
		mismatched: hlerr.ErrKeyMismatch,
	}

	d := &trackingDialer{}
	pool := util.NewBufPool(util.MaxRequestSize, 1)
	cn := newTestConnector(d, pool)

	const rounds = 25
	attempts := 0
	for i := 0; i < rounds; i++ {
		for path, sentinel := range paths {
			attempts++
			conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
				Host: "127.0.0.1", Port: portOf(ln), ClientCertPath: path,
			})
			if err == nil {
				conn.Close()
				t.Fatalf("%s: expected failure", path)
			}
			// A leaked buffer would turn the next attempt into an
			// allocation failure.
			if got := hlerr.StageOf(err); got != hlerr.StageIdentity {
				t.Fatalf("%s: stage = %v, want identity (err %v)", path, got, err)
			}
			if sentinel != nil && !errors.Is(err, sentinel) {
				t.Errorf("%s: err = %v, want %v", path, err, sentinel)
			}
			if !strings.HasPrefix(err.Error(), "cannot use client certificate to ") {
				t.Errorf("error = %q", err)
			}
		}
	}

	if d.dialed() != attempts {
		t.Errorf("dialed %d, want %d", d.dialed(), attempts)
	}
	if d.open() != 0 {
		t.Errorf("%d sockets left open", d.open())
	}
	if pool.InUse() != 0 {
		t.Errorf("buffers in use = %d, want 0", pool.InUse())
	}
	if got := cn.Metrics.Failures(hlerr.StageIdentity); got != int64(attempts) {
		t.Errorf("identity failures = %d, want %d", got, attempts)
	}

	// No ClientHello ever reached the server.
	for i := 0; i < attempts; i++ {
		select {
		case n := <-counts:
			if n != 0 {
				t.Fatalf("server received %d bytes before the failure", n)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("server connection never closed")
		}
	}
}

func TestConnectSecure_EncryptedClientKey(t *testing.T) {
	ca := newTestCA(t, "test CA")
	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(ca.cert)
	port, peers := startTLSServer(t, ca.leaf(t, "server").tls, clientCAs)

	client := ca.leaf(t, "carol")
	dir := t.TempDir()
	certPath := writeFile(t, dir, "carol.crt", client.certPEM)
	keyPath := writeFile(t, dir, "carol.key", encryptedKeyPEM(t, client.key, "hunter2"))

	var asked []string
	cn := newTestConnector(&trackingDialer{}, nil)
	cn.Passphrase = func(path string) ([]byte, error) {
		asked = append(asked, path)
		return []byte("hunter2"), nil
	}

	conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
		Host: "127.0.0.1", Port: port, ClientCertPath: certPath, ClientKeyPath: keyPath,
	})
	if err != nil {
		t.Fatalf("ConnectSecure: %v", err)
	}
	defer conn.Close()

	if diff := cmp.Diff([]string{keyPath}, asked); diff != "" {
		t.Errorf("passphrase prompts (-want +got):\n%s", diff)
	}
	expectPeer(t, peers, "carol")

	// Options-level source wins over the Connector's.
	_, err = cn.ConnectSecure(context.Background(), ConnectOptions{
		Host: "127.0.0.1", Port: port, ClientCertPath: certPath, ClientKeyPath: keyPath,
		Passphrase: func(string) ([]byte, error) { return []byte("wrong"), nil },
	})
	if got := hlerr.StageOf(err); got != hlerr.StageIdentity {
		t.Errorf("wrong passphrase: stage = %v, want identity (err %v)", got, err)
	}
}

// ── TLS context and allocation failures ──────────────────────────────

func TestConnectSecure_InvalidMinVersion(t *testing.T) {
	ln, _ := startRawServer(t, "tcp", "127.0.0.1:0", false)

	d := &trackingDialer{}
	pool := util.NewBufPool(util.MaxRequestSize, 1)
	cn := newTestConnector(d, pool)

	for i := 0; i < 3; i++ {
		_, err := cn.ConnectSecure(context.Background(), ConnectOptions{
			Host: "127.0.0.1", Port: portOf(ln), MinVersion: "0.9",
		})
		if got := hlerr.StageOf(err); got != hlerr.StageTLSContext {
			t.Fatalf("attempt %d: stage = %v, want tls-context (err %v)", i, got, err)
		}
	}
	if d.open() != 0 {
		t.Errorf("%d sockets left open", d.open())
	}
	if pool.InUse() != 0 {
		t.Errorf("buffers in use = %d, want 0", pool.InUse())
	}
}

func TestConnect_PoolExhausted(t *testing.T) {
	ln, _ := startRawServer(t, "tcp", "127.0.0.1:0", true)

	d := &trackingDialer{}
	pool := util.NewBufPool(util.MaxRequestSize, 1)
	cn := newTestConnector(d, pool)
	ctx := context.Background()

	first, err := cn.Connect(ctx, "127.0.0.1", portOf(ln), false)
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}

	_, err = cn.Connect(ctx, "127.0.0.1", portOf(ln), false)
	if got := hlerr.StageOf(err); got != hlerr.StageAlloc {
		t.Fatalf("stage = %v, want alloc (err %v)", got, err)
	}
	if !errors.Is(err, util.ErrPoolExhausted) {
		t.Errorf("err = %v, want ErrPoolExhausted", err)
	}
	if !strings.HasPrefix(err.Error(), "allocation failed to ") {
		t.Errorf("error = %q", err)
	}
	if d.open() != 1 {
		t.Errorf("open sockets = %d, want 1 (the first connection)", d.open())
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	third, err := cn.Connect(ctx, "127.0.0.1", portOf(ln), false)
	if err != nil {
		t.Fatalf("Connect after Close: %v", err)
	}
	third.Close()
}

func TestConnectSecure_HandshakeTimeout(t *testing.T) {
	// Accepts and then never answers the ClientHello.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	d := &trackingDialer{}
	cn := newTestConnector(d, nil)
	cn.HandshakeTimeout = 200 * time.Millisecond

	start := time.Now()
	_, err = cn.ConnectSecure(context.Background(), ConnectOptions{Host: "127.0.0.1", Port: portOf(ln)})
	if got := hlerr.StageOf(err); got != hlerr.StageHandshake {
		t.Fatalf("stage = %v, want handshake (err %v)", got, err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("handshake timeout took %v", elapsed)
	}
	if d.open() != 0 {
		t.Error("socket left open after handshake timeout")
	}
	if n := d.closeCalls(); n != 1 {
		t.Errorf("socket closed %d times, want exactly 1", n)
	}
	if !hlerr.IsTimeout(err) {
		t.Errorf("handshake failure should classify as a timeout: %v", err)
	}
}

func TestConnectSecure_CancelledHandshakeClosesOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	d := &trackingDialer{}
	cn := newTestConnector(d, nil)
	cn.HandshakeTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := <-accepted
		defer c.Close()
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err = cn.ConnectSecure(ctx, ConnectOptions{Host: "127.0.0.1", Port: portOf(ln)})
	if got := hlerr.StageOf(err); got != hlerr.StageHandshake {
		t.Fatalf("stage = %v, want handshake (err %v)", got, err)
	}
	if n := d.closeCalls(); n != 1 {
		t.Errorf("socket closed %d times, want exactly 1", n)
	}
}

func TestConnect_TransportErrorCarriesNetworkDetail(t *testing.T) {
	cn := newTestConnector(&trackingDialer{}, nil)
	_, err := cn.Connect(context.Background(), "127.0.0.1", closedPort(t), false)

	var ne *hlerr.NetworkError
	if !hlerr.As(err, &ne) {
		t.Fatalf("expected *NetworkError in chain, got %v", err)
	}
	if ne.Op != "dial" || !strings.HasPrefix(ne.Addr, "127.0.0.1:") {
		t.Errorf("NetworkError = %+v", ne)
	}
	if hlerr.IsTemporary(err) {
		t.Error("connection refused should not be temporary")
	}
}

func TestConnect_NoDNS(t *testing.T) {
	d := &trackingDialer{}
	cn := newTestConnector(d, nil)
	cn.NoDNS = true

	_, err := cn.Connect(context.Background(), "localhost", 80, false)
	if got := hlerr.StageOf(err); got != hlerr.StageTransport {
		t.Fatalf("stage = %v, want transport (err %v)", got, err)
	}
	if d.dialed() != 0 {
		t.Error("host name dialed with NoDNS set")
	}
}

// ── lifecycle ────────────────────────────────────────────────────────

func TestConnection_Close(t *testing.T) {
	ca := newTestCA(t, "test CA")
	port, _ := startTLSServer(t, ca.leaf(t, "server").tls, nil)

	d := &trackingDialer{}
	pool := util.NewBufPool(util.MaxRequestSize, 0)
	cn := newTestConnector(d, pool)

	conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("ConnectSecure: %v", err)
	}
	tc := conn.TLSContext()
	if cn.Metrics.ActiveConnections() != 1 {
		t.Errorf("active = %d, want 1", cn.Metrics.ActiveConnections())
	}

	first := conn.Close()
	second := conn.Close()
	if first != second {
		t.Errorf("second Close = %v, want %v", second, first)
	}
	if !conn.Closed() {
		t.Error("Closed() = false after Close")
	}
	if !tc.Released() || conn.Runtime().Active() != nil {
		t.Error("TLS context not released")
	}
	if d.open() != 0 || pool.InUse() != 0 {
		t.Errorf("leak after Close: sockets %d, buffers %d", d.open(), pool.InUse())
	}
	if cn.Metrics.ActiveConnections() != 0 {
		t.Errorf("active = %d after Close, want 0", cn.Metrics.ActiveConnections())
	}
}

func TestConnection_Mutex(t *testing.T) {
	ln, _ := startRawServer(t, "tcp", "127.0.0.1:0", true)
	conn, err := newTestConnector(&trackingDialer{}, nil).Connect(context.Background(), "127.0.0.1", portOf(ln), false)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.Lock()
			counter++
			conn.Unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

// ── isolation ────────────────────────────────────────────────────────

// Concurrent attempts against servers signed by different CAs each
// verify against their own anchor.  A shared TLS context would make
// some of them fail verification.
func TestConnectSecure_ConcurrentIsolation(t *testing.T) {
	dir := t.TempDir()
	type target struct {
		port   int
		anchor string
		roots  *x509.CertPool
	}
	var targets []target
	for i := 0; i < 2; i++ {
		ca := newTestCA(t, fmt.Sprintf("CA %d", i))
		port, _ := startTLSServer(t, ca.leaf(t, fmt.Sprintf("server %d", i)).tls, nil)
		roots := x509.NewCertPool()
		roots.AddCert(ca.cert)
		targets = append(targets, target{
			port:   port,
			anchor: writeFile(t, dir, fmt.Sprintf("ca%d.pem", i), ca.pem),
			roots:  roots,
		})
	}

	cn := newTestConnector(&trackingDialer{}, util.NewBufPool(util.MaxRequestSize, 0))
	const perTarget = 10

	var wg sync.WaitGroup
	errs := make(chan error, 2*perTarget)
	for i := 0; i < 2*perTarget; i++ {
		tg := targets[i%2]
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := cn.ConnectSecure(context.Background(), ConnectOptions{
				Host: "127.0.0.1", Port: tg.port, TrustAnchorPath: tg.anchor,
			})
			if err != nil {
				errs <- fmt.Errorf("attempt %d: %w", i, err)
				return
			}
			defer conn.Close()

			tc := conn.TLSContext()
			if conn.Runtime().Active() != tc {
				errs <- fmt.Errorf("attempt %d: runtime carries a foreign TLS context", i)
				return
			}
			if !tc.RootCAs().Equal(tg.roots) {
				errs <- fmt.Errorf("attempt %d: TLS context holds the wrong anchor", i)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ── address families ─────────────────────────────────────────────────

func TestConnect_IPv6(t *testing.T) {
	ln, _ := startRawServer(t, "tcp6", "[::1]:0", true)
	if ln == nil {
		t.Skip("IPv6 loopback not available")
	}

	conn, err := newTestConnector(&trackingDialer{}, nil).Connect(context.Background(), "::1", portOf(ln), false)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if got := conn.LocalAddr().Family; got != FamilyIPv6 {
		t.Errorf("local family = %v, want ipv6", got)
	}
	if got := conn.PeerAddr().Family; got != FamilyIPv6 {
		t.Errorf("peer family = %v, want ipv6", got)
	}
	if got := conn.PeerAddr().String(); got != fmt.Sprintf("[::1]:%d", portOf(ln)) {
		t.Errorf("peer = %q", got)
	}
}

// Sockets without IP addresses still connect; only a warning is logged.
func TestConnect_UnknownAddressFamily(t *testing.T) {
	var logs bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&logs)

	cn := &Connector{Dialer: pipeDialer{}, Logger: logger}
	conn, err := cn.Connect(context.Background(), "pipe.test", 80, false)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if conn.LocalAddr().IsValid() || conn.PeerAddr().IsValid() {
		t.Error("pipe endpoints should be unknown")
	}
	if !strings.Contains(logs.String(), "[WRN] client: cannot read local address") {
		t.Errorf("missing warning, got:\n%s", logs.String())
	}
}

type pipeDialer struct{}

func (pipeDialer) Dial(context.Context, string, string) (net.Conn, error) {
	c, s := net.Pipe()
	go func() {
		io.Copy(io.Discard, s) //nolint:errcheck
		s.Close()
	}()
	return c, nil
}

func (pipeDialer) Close() error { return nil }
