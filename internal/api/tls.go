package api

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"time"
)

// certPair names a certificate and key on disk.
type certPair struct {
	certFile, keyFile string
}

var tlsPair *certPair

// InitTLS enables TLS when both paths are set; otherwise it disables it.
func InitTLS(certFile, keyFile string) {
	tlsPair = nil
	if certFile != "" && keyFile != "" {
		tlsPair = &certPair{certFile: certFile, keyFile: keyFile}
	}
}

func IsTLSEnabled() bool {
	return tlsPair != nil
}

// LoadTLSConfig loads the configured pair. It returns nil, nil when TLS is
// off. The certificate is re-read on handshake once the file on disk changes,
// so a renewed certificate is picked up without a restart.
func LoadTLSConfig() (*tls.Config, error) {
	if !IsTLSEnabled() {
		return nil, nil
	}
	r := &certReloader{pair: *tlsPair}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return &tls.Config{
		GetCertificate: r.get,
		MinVersion:     tls.VersionTLS12,
	}, nil
}

type certReloader struct {
	pair certPair

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func (r *certReloader) reload() error {
	info, err := os.Stat(r.pair.certFile)
	if err != nil {
		return fmt.Errorf("tls certificate: %w", err)
	}
	cert, err := tls.LoadX509KeyPair(r.pair.certFile, r.pair.keyFile)
	if err != nil {
		return fmt.Errorf("tls key pair %s: %w", r.pair.certFile, err)
	}
	r.mu.Lock()
	r.cert, r.modTime = &cert, info.ModTime()
	r.mu.Unlock()
	return nil
}

// get serves the current certificate. A failed reload keeps the previous one.
func (r *certReloader) get(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if info, err := os.Stat(r.pair.certFile); err == nil {
		r.mu.Lock()
		stale := info.ModTime().After(r.modTime)
		r.mu.Unlock()
		if stale {
			_ = r.reload()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cert, nil
}
