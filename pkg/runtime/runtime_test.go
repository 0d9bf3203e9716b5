package runtime

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	appconfig "github.com/saker-ai/speech-uplink/internal/config"
)

func TestNewWithConfigServesHealth(t *testing.T) {
	cfg := appconfig.Config{
		HTTPAddr:   "127.0.0.1:0",
		TLSDisable: true,
		Recording: appconfig.RecordingConfig{
			Enabled: true,
			Dir:     filepath.Join(t.TempDir(), "recordings"),
		},
	}
	server, err := NewWithConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewWithConfig error: %v", err)
	}
	if server.Addr() != "127.0.0.1:0" {
		t.Fatalf("addr=%q", server.Addr())
	}
	if _, err := os.Stat(cfg.Recording.Dir); err != nil {
		t.Fatalf("recording dir not created: %v", err)
	}

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	for _, path := range []string{"/health", "/metrics", "/recordings", "/sessions"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, resp.StatusCode)
		}
	}

	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestNilServer(t *testing.T) {
	var server *Server
	if err := server.Run(); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if server.Addr() != "" || server.Handler() != nil {
		t.Fatalf("nil server should be empty")
	}
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := generateSelfSignedCert("uplink.local")
	if err != nil {
		t.Fatalf("generateSelfSignedCert error: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate error: %v", err)
	}
	if err := leaf.VerifyHostname("uplink.local"); err != nil {
		t.Fatalf("VerifyHostname error: %v", err)
	}
	if err := leaf.VerifyHostname("127.0.0.1"); err != nil {
		t.Fatalf("VerifyHostname loopback error: %v", err)
	}
}

func TestUniqueHelpers(t *testing.T) {
	got := uniqueStrings([]string{"a", " a ", "", "b"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("uniqueStrings=%v", got)
	}
	ips := uniqueIPs([]net.IP{net.ParseIP("::1"), nil, net.ParseIP("::1"), net.ParseIP("10.0.0.1")})
	if len(ips) != 2 {
		t.Fatalf("uniqueIPs=%v", ips)
	}
}
