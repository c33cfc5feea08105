package client

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ── test PKI ─────────────────────────────────────────────────────────

type testCA struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	pem  []byte
}

func newTestCA(t *testing.T, cn string) *testCA {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return &testCA{
		cert: cert,
		key:  key,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// issue signs a leaf for pub valid for localhost, 127.0.0.1 and ::1.
func (ca *testCA) issue(t *testing.T, cn string, pub crypto.PublicKey) []byte {
	t.Helper()

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, pub, ca.key)
	if err != nil {
		t.Fatal(err)
	}
	return der
}

// leaf is an issued certificate with its key in both PEM and tls form.
type leaf struct {
	certPEM []byte
	keyPEM  []byte
	key     *ecdsa.PrivateKey
	tls     tls.Certificate
}

func (ca *testCA) leaf(t *testing.T, cn string) *leaf {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der := ca.issue(t, cn, &key.PublicKey)
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return &leaf{
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}),
		key:     key,
		tls:     tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key},
	}
}

func writeFile(t *testing.T, dir, name string, data ...[]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	var all []byte
	for _, d := range data {
		all = append(all, d...)
	}
	if err := os.WriteFile(path, all, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// ── test servers ─────────────────────────────────────────────────────

// startTLSServer serves TLS echo on network ("tcp4" or "tcp6")
// loopback.  When clientCAs is set, client certificates are required.
// Peer subjects of completed handshakes are sent on the returned channel.
func startTLSServer(t *testing.T, cert tls.Certificate, clientCAs *x509.CertPool) (int, <-chan string) {
	t.Helper()

	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if clientCAs != nil {
		cfg.ClientCAs = clientCAs
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	peers := make(chan string, 64)
	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			go func(raw net.Conn) {
				conn := tls.Server(raw, cfg)
				defer conn.Close()
				conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
				if err := conn.Handshake(); err != nil {
					return
				}
				subject := ""
				if pc := conn.ConnectionState().PeerCertificates; len(pc) > 0 {
					subject = pc[0].Subject.CommonName
				}
				select {
				case peers <- subject:
				default:
				}
				io.Copy(conn, conn) //nolint:errcheck
			}(raw)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, peers
}

// startRawServer accepts plain TCP on address and reports how many
// bytes each connection carried before the client closed it.
func startRawServer(t *testing.T, network, address string, echo bool) (net.Listener, <-chan int64) {
	t.Helper()

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, nil
	}
	t.Cleanup(func() { ln.Close() })

	counts := make(chan int64, 256)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				c.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
				var n int64
				if echo {
					n, _ = io.Copy(c, c)
				} else {
					n, _ = io.Copy(io.Discard, c)
				}
				select {
				case counts <- n:
				default:
				}
			}(c)
		}
	}()
	return ln, counts
}

func portOf(ln net.Listener) int { return ln.Addr().(*net.TCPAddr).Port }

// ── tracking dialer ──────────────────────────────────────────────────

type trackedConn struct {
	net.Conn
	closes atomic.Int32
}

func (c *trackedConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

// trackingDialer records every socket it hands out so tests can check
// that failed attempts closed them.
type trackingDialer struct {
	mu    sync.Mutex
	conns []*trackedConn
}

func (d *trackingDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	tc := &trackedConn{Conn: c}
	d.mu.Lock()
	d.conns = append(d.conns, tc)
	d.mu.Unlock()
	return tc, nil
}

func (d *trackingDialer) Close() error { return nil }

func (d *trackingDialer) dialed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// closeCalls sums the Close calls made on every socket handed out.
func (d *trackingDialer) closeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		n += int(c.closes.Load())
	}
	return n
}

func (d *trackingDialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if c.closes.Load() == 0 {
			n++
		}
	}
	return n
}
