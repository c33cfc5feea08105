package client

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hlerr "httplink/internal/errors"
	"httplink/util"
)

// loadTrustAnchors builds a root pool from a PEM file or a directory of
// .pem, .crt and .cer files.  Unreadable files inside a directory are
// skipped with a warning; finding no certificate at all is an error.
func loadTrustAnchors(path string, logger *util.Logger) (*x509.CertPool, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}

	pool := x509.NewCertPool()
	if !info.IsDir() {
		n, err := addCertFile(pool, path)
		if err != nil {
			return nil, 0, err
		}
		if n == 0 {
			return nil, 0, fmt.Errorf("%s: %w", path, hlerr.ErrNoTrustAnchors)
		}
		return pool, n, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pem", ".crt", ".cer":
		default:
			continue
		}
		file := filepath.Join(path, entry.Name())
		n, err := addCertFile(pool, file)
		if err != nil {
			logger.Warn("skipping trust anchor %s: %v", file, err)
			continue
		}
		total += n
	}
	if total == 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, hlerr.ErrNoTrustAnchors)
	}
	return pool, total, nil
}

// addCertFile adds every CERTIFICATE block in file to pool.
func addCertFile(pool *x509.CertPool, file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return n, fmt.Errorf("parsing certificate: %w", err)
		}
		pool.AddCert(cert)
		n++
	}
	return n, nil
}
