package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T, commonName string) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.Nil(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.Nil(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func listen(t *testing.T, handler func(conn net.Conn)) transport.Settings {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()
	addr := listener.Addr().(*net.TCPAddr)
	return transport.Settings{Host: addr.IP.String(), Port: addr.Port, Timeout: time.Second}
}

func TestFetchReturnsChain(t *testing.T) {
	cert := selfSigned(t, "example.com")
	config := &tls.Config{Certificates: []tls.Certificate{cert}}
	settings := listen(t, func(conn net.Conn) {
		tlsConn := tls.Server(conn, config)
		defer tlsConn.Close()
		_ = tlsConn.Handshake()
	})

	fetcher := New(&transport.NetDialer{})
	fetcher.ShowCertificate = true
	chain, err := fetcher.Fetch(context.Background(), settings, "www.example.org")
	require.Nil(t, err, "could not fetch chain")
	require.Len(t, chain, 1)
	require.Equal(t, "example.com", chain[0].SubjectCN)
	require.Equal(t, "2A", chain[0].Serial)
	require.True(t, chain[0].MisMatched, "name mismatch not reported")
	require.True(t, chain[0].SelfSigned)
	require.NotEmpty(t, chain[0].Certificate)
}

func TestFetchFailsOnPlainServer(t *testing.T) {
	settings := listen(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	})
	_, err := New(&transport.NetDialer{}).Fetch(context.Background(), settings, "")
	require.NotNil(t, err)
}

func TestLegacyCipherSuites(t *testing.T) {
	suites := legacyCipherSuites()
	require.NotEmpty(t, suites)
	require.NotContains(t, suites, uint16(0x1301))
	require.Contains(t, suites, uint16(0x002F))
}
