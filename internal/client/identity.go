package client

import (
	"crypto"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"

	hlerr "httplink/internal/errors"
)

// loadIdentity reads a client certificate chain and its private key.
// When keyPath is empty the key is expected in the certificate file.
// Encrypted keys are decrypted with a passphrase from pass.
func loadIdentity(certPath, keyPath string, pass PassphraseFunc) (tls.Certificate, error) {
	var cert tls.Certificate

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return cert, fmt.Errorf("reading certificate: %w", err)
	}
	keyPEM := certPEM
	if keyPath == "" {
		keyPath = certPath
	} else if keyPEM, err = os.ReadFile(keyPath); err != nil {
		return cert, fmt.Errorf("reading key: %w", err)
	}

	rest := certPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert.Certificate = append(cert.Certificate, block.Bytes)
		}
	}
	if len(cert.Certificate) == 0 {
		return cert, fmt.Errorf("%s: %w", certPath, hlerr.ErrNoCertificate)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return cert, fmt.Errorf("parsing certificate: %w", err)
	}

	keyBlock := findKeyBlock(keyPEM)
	if keyBlock == nil {
		return cert, fmt.Errorf("%s: %w", keyPath, hlerr.ErrNoPrivateKey)
	}
	key, err := parseKey(pem.EncodeToMemory(keyBlock), keyPath, pass)
	if err != nil {
		return cert, err
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return cert, fmt.Errorf("%s: unsupported key type %T", keyPath, key)
	}
	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(signer.Public()) {
		return cert, hlerr.ErrKeyMismatch
	}

	cert.PrivateKey = key
	cert.Leaf = leaf
	return cert, nil
}

// findKeyBlock returns the first PEM block holding a private key.
func findKeyBlock(data []byte) *pem.Block {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil
		}
		if strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return block
		}
	}
}

// parseKey accepts PKCS#1, PKCS#8, SEC1 and OpenSSH keys, plain or
// encrypted.
func parseKey(data []byte, path string, pass PassphraseFunc) (interface{}, error) {
	key, err := ssh.ParseRawPrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if hlerr.As(err, &missing) {
		if pass == nil {
			return nil, fmt.Errorf("%s: key is encrypted and no passphrase was supplied", path)
		}
		secret, perr := pass(path)
		if perr != nil {
			return nil, fmt.Errorf("reading passphrase: %w", perr)
		}
		key, err = ssh.ParseRawPrivateKeyWithPassphrase(data, secret)
		if err != nil {
			return nil, fmt.Errorf("decrypting key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}

	// OpenSSH ed25519 keys come back as a pointer; crypto/tls wants
	// the value.
	if k, ok := key.(*ed25519.PrivateKey); ok {
		key = *k
	}
	return key, nil
}
