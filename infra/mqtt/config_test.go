package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	require.NoError(t, os.WriteFile(certFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0o644))
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o644))
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	tlsCfg, err := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
	assert.NotNil(t, tlsCfg.RootCAs)

	tlsCfg, err = Config{UseTLS: true, CABundle: ca}.LoadTLSConfig()
	require.NoError(t, err)
	assert.Empty(t, tlsCfg.Certificates)

	_, err = Config{UseTLS: true, ClientCert: cert}.LoadTLSConfig()
	assert.Error(t, err)
}

func TestNewClientOptions(t *testing.T) {
	cfg := Config{KeepAliveSeconds: 15, ConnectTimeoutMS: 3000}
	opts, err := NewClientOptions(cfg, Endpoint{Broker: "ws://107.20.30.189:15675/ws", ClientID: "id"}, Credentials{Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.Equal(t, "id", opts.ClientID)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "ws", opts.Servers[0].Scheme)
	assert.False(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry)
	assert.Equal(t, 3*time.Second, opts.ConnectTimeout)
	assert.EqualValues(t, 15, opts.KeepAlive)
	assert.Nil(t, opts.TLSConfig)

	_, err = NewClientOptions(cfg, Endpoint{}, Credentials{})
	assert.Error(t, err)
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, "carro/control", cfg.ControlTopic)
	assert.Equal(t, "carro/estado", cfg.StatusTopic)
	assert.Error(t, cfg.Validate(), "broker missing")

	cfg.Broker = "ws://localhost:15675/ws"
	assert.NoError(t, cfg.Validate())

	cfg.QoS = map[string]byte{"control": 3}
	assert.Error(t, cfg.Validate())
}

func TestEndpointGeneratesUniqueClientID(t *testing.T) {
	cfg := Config{Broker: "ws://localhost/ws"}
	a, b := cfg.Endpoint(), cfg.Endpoint()
	assert.True(t, strings.HasPrefix(a.ClientID, "rcpanel-"))
	assert.NotEqual(t, a.ClientID, b.ClientID)

	cfg.ClientID = "fixed"
	assert.Equal(t, "fixed", cfg.Endpoint().ClientID)
	assert.Equal(t, Credentials{Username: "", Password: ""}, cfg.Credentials())
}
