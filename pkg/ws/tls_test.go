package ws_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/LLIEPJIOK/wsload/pkg/ws"
)

// generateSelfSignedCert создаёт самоподписанный сертификат для 127.0.0.1,
// который одновременно служит CA для клиента.
func generateSelfSignedCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "wsload-test",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, _ := x509.MarshalECPrivateKey(privateKey)
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM
}

func setTLSEnv(t *testing.T, cert, key, ca []byte) {
	t.Helper()

	enc := func(b []byte) string {
		if b == nil {
			return ""
		}

		return base64.StdEncoding.EncodeToString(b)
	}

	t.Setenv("TLS_CERT", enc(cert))
	t.Setenv("TLS_KEY", enc(key))
	t.Setenv("TLS_CA", enc(ca))
}

func TestTLSConfigFromEnv_Unset(t *testing.T) {
	setTLSEnv(t, nil, nil, nil)

	cfg, err := ws.TLSConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}

	if ws.HasServerCertificate(cfg) {
		t.Error("nil config has no certificate")
	}
}

func TestTLSConfigFromEnv_CertWithoutKey(t *testing.T) {
	cert, _ := generateSelfSignedCert(t)
	setTLSEnv(t, cert, nil, nil)

	if _, err := ws.TLSConfigFromEnv(); err == nil {
		t.Error("expected error when TLS_KEY is missing")
	}
}

func TestTLSConfigFromEnv_InvalidBase64(t *testing.T) {
	t.Setenv("TLS_CERT", "not base64!")
	t.Setenv("TLS_KEY", "not base64!")
	t.Setenv("TLS_CA", "")

	if _, err := ws.TLSConfigFromEnv(); err == nil {
		t.Error("expected decode error")
	}
}

func TestTLSConfigFromEnv_CAOnly(t *testing.T) {
	cert, _ := generateSelfSignedCert(t)
	setTLSEnv(t, nil, nil, cert)

	cfg, err := ws.TLSConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.RootCAs == nil {
		t.Error("expected root CAs to be set")
	}

	if ws.HasServerCertificate(cfg) {
		t.Error("CA-only config must not be used for a server")
	}
}

func TestServer_SecureEcho(t *testing.T) {
	cert, key := generateSelfSignedCert(t)
	setTLSEnv(t, cert, key, cert)

	tlsCfg, err := ws.TLSConfigFromEnv()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}

	if !ws.HasServerCertificate(tlsCfg) {
		t.Fatal("expected server certificate")
	}

	serverCfg := ws.DefaultServerConfig()
	serverCfg.TLS = tlsCfg
	server := ws.NewServer(serverCfg)

	ln, err := server.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() { served <- server.Serve(ctx, ln) }()

	defer func() {
		cancel()
		<-served
	}()

	url := server.URL(ln)
	if !strings.HasPrefix(url, "wss://") {
		t.Fatalf("expected wss url, got %s", url)
	}

	clientCfg := ws.DefaultClientConfig(url)
	clientCfg.TLS = tlsCfg

	client, err := ws.Dial(context.Background(), clientCfg)
	if err != nil {
		t.Fatalf("dial over tls: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return server.ActiveSessions() == 1 }, "secure session started")

	client.Disconnect()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not close")
	}

	waitFor(t, 2*time.Second, func() bool { return server.ActiveSessions() == 0 }, "secure session released")
}

func TestClient_RejectsUntrustedServer(t *testing.T) {
	cert, key := generateSelfSignedCert(t)
	setTLSEnv(t, cert, key, nil)

	tlsCfg, err := ws.TLSConfigFromEnv()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}

	serverCfg := ws.DefaultServerConfig()
	serverCfg.TLS = tlsCfg
	server := ws.NewServer(serverCfg)

	ln, err := server.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() { served <- server.Serve(ctx, ln) }()

	defer func() {
		cancel()
		<-served
	}()

	// без TLS_CA клиент не доверяет самоподписанному сертификату
	clientCfg := ws.DefaultClientConfig(server.URL(ln))
	clientCfg.HandshakeTimeout = 2 * time.Second

	if _, err := ws.Dial(context.Background(), clientCfg); err == nil {
		t.Error("expected handshake failure for untrusted certificate")
	}
}
