package capability

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"httplink/internal/session"
)

// Probe reports the parameters of the established connection and
// closes it without exchanging application data.
type Probe struct{}

// Handle writes one "key: value" line per property to the session's
// stdout.
func (p *Probe) Handle(_ context.Context, sess *session.Session) error {
	conn := sess.Conn
	w := sess.Stdout

	local, peer := conn.LocalAddr(), conn.PeerAddr()
	line(w, "peer", fmt.Sprintf("%s (%s)", peer, peer.Family))
	line(w, "local", fmt.Sprintf("%s (%s)", local, local.Family))
	line(w, "secure", fmt.Sprintf("%t", conn.IsSecure()))

	state, ok := conn.TLSState()
	if !ok {
		return nil
	}
	line(w, "tls", fmt.Sprintf("%s %s", tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite)))
	if state.NegotiatedProtocol != "" {
		line(w, "alpn", state.NegotiatedProtocol)
	}
	if tc := conn.TLSContext(); tc != nil {
		line(w, "verify", tc.Policy().String())
	}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		line(w, "subject", leaf.Subject.String())
		line(w, "issuer", leaf.Issuer.String())
		line(w, "expires", leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	return nil
}

func line(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%-8s %s\n", key+":", value)
}
