// Package tls builds the listener TLS configuration: a static certificate
// pair, or a self-signed certificate generated once for development.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")
)

// DefaultSelfSignedDir is used when tls.selfsigned_dir is unset.
const DefaultSelfSignedDir = ".sophi/certs"

// Manager resolves the server certificate for the configured mode.
type Manager struct {
	cfg *config.TLSConfig
	log *slog.Logger
}

// NewManager creates a new TLS manager.
func NewManager(cfg *config.TLSConfig, log *slog.Logger) *Manager {
	return &Manager{cfg: cfg, log: logutil.NoopIfNil(log)}
}

// ServerConfig returns the listener config, or nil for mode "off".
// hostname goes into a generated certificate.
func (m *Manager) ServerConfig(hostname string) (*cryptotls.Config, error) {
	var (
		cert cryptotls.Certificate
		err  error
	)
	switch m.cfg.Mode {
	case "", "off":
		return nil, nil
	case "static":
		cert, err = m.loadStatic()
	case "selfsigned":
		cert, err = m.selfSigned(hostname)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, m.cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func (m *Manager) loadStatic() (cryptotls.Certificate, error) {
	if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
		return cryptotls.Certificate{}, ErrMissingCert
	}
	cert, err := cryptotls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
	if err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to load certificate: %w", err)
	}
	m.log.Info("loaded static TLS certificate", "cert_file", m.cfg.CertFile)
	return cert, nil
}

// selfSigned reuses the certificate in the self-signed dir, generating it
// on first use.
func (m *Manager) selfSigned(hostname string) (cryptotls.Certificate, error) {
	dir := m.cfg.SelfSignedDir
	if dir == "" {
		dir = DefaultSelfSignedDir
	}
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil {
		m.log.Info("loaded existing self-signed certificate", "cert_file", certFile)
		return cert, nil
	}

	m.log.Info("generating self-signed certificate", "hostname", hostname)
	certPEM, keyPEM, notAfter, err := generate(hostname)
	if err != nil {
		return cryptotls.Certificate{}, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write key: %w", err)
	}
	m.log.Info("generated self-signed certificate", "cert_file", certFile, "expires", notAfter)
	return cryptotls.X509KeyPair(certPEM, keyPEM)
}

// generate creates a one-year P-256 certificate for hostname and localhost.
func generate(hostname string) (certPEM, keyPEM []byte, notAfter time.Time, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Sophi Admin Development"},
			CommonName:   hostname,
		},
		NotBefore:             now,
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if hostname != "" && hostname != "localhost" {
		tmpl.DNSNames = append(tmpl.DNSNames, hostname)
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to marshal key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, tmpl.NotAfter, nil
}
