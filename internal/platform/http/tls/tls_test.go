package tls_test

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	tlspkg "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/tls"
)

func TestServerConfig_Off(t *testing.T) {
	for _, mode := range []string{"", "off"} {
		tlsCfg, err := tlspkg.NewManager(&config.TLSConfig{Mode: mode}, nil).ServerConfig("localhost")
		if err != nil {
			t.Fatalf("mode %q: unexpected error: %v", mode, err)
		}
		if tlsCfg != nil {
			t.Errorf("mode %q: expected nil TLS config", mode)
		}
	}
}

func TestServerConfig_StaticMissingFiles(t *testing.T) {
	_, err := tlspkg.NewManager(&config.TLSConfig{Mode: "static"}, nil).ServerConfig("localhost")
	if !errors.Is(err, tlspkg.ErrMissingCert) {
		t.Errorf("expected ErrMissingCert, got %v", err)
	}
}

func TestServerConfig_SelfSignedThenStatic(t *testing.T) {
	dir := t.TempDir()
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "selfsigned", SelfSignedDir: dir}, nil)

	first, err := mgr.ServerConfig("news.example.com")
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	if len(first.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(first.Certificates))
	}
	leaf, err := x509.ParseCertificate(first.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := leaf.VerifyHostname("news.example.com"); err != nil {
		t.Errorf("certificate should cover the public host: %v", err)
	}
	if err := leaf.VerifyHostname("localhost"); err != nil {
		t.Errorf("certificate should cover localhost: %v", err)
	}

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	second, err := mgr.ServerConfig("news.example.com")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if string(second.Certificates[0].Certificate[0]) != string(first.Certificates[0].Certificate[0]) {
		t.Error("existing certificate should be reused")
	}

	static := tlspkg.NewManager(&config.TLSConfig{Mode: "static", CertFile: certFile, KeyFile: keyFile}, nil)
	if _, err := static.ServerConfig(""); err != nil {
		t.Errorf("static mode should load the generated pair: %v", err)
	}
}

func TestServerConfig_InvalidMode(t *testing.T) {
	_, err := tlspkg.NewManager(&config.TLSConfig{Mode: "acme"}, nil).ServerConfig("localhost")
	if !errors.Is(err, tlspkg.ErrInvalidTLSMode) {
		t.Errorf("expected ErrInvalidTLSMode, got %v", err)
	}
}
