package client

import (
	"httplink/util"
)

// PassphraseFunc returns the passphrase protecting the private key
// stored at path.
type PassphraseFunc func(path string) ([]byte, error)

// ConnectOptions describes a single connect attempt.  The zero value of
// every optional field selects the default behaviour.
type ConnectOptions struct {
	Host string
	Port int

	// ClientCertPath names a PEM file holding the client certificate
	// chain and, unless ClientKeyPath is set, its private key.
	ClientCertPath string
	ClientKeyPath  string

	// TrustAnchorPath names a PEM file or a directory of .pem/.crt/.cer
	// files.  When empty the server certificate is not verified.
	TrustAnchorPath string

	// ServerName overrides the name sent in SNI and checked against the
	// server certificate.  Defaults to Host.
	ServerName string

	// MinVersion is the lowest acceptable TLS version ("1.0" to "1.3").
	// Empty means "1.2".
	MinVersion string

	// Passphrase decrypts an encrypted client key.  Nil falls back to
	// the Connector's Passphrase.
	Passphrase PassphraseFunc
}

func (o ConnectOptions) addr() string { return util.FormatAddr(o.Host, o.Port) }

func (o ConnectOptions) serverName() string {
	if o.ServerName != "" {
		return o.ServerName
	}
	return o.Host
}
