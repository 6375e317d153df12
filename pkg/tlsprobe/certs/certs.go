// Package certs retrieves the certificate chain of a target with a complete
// handshake. crypto/tls is tried first, zcrypto covers the legacy protocols
// crypto/tls refuses to speak.
package certs

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/output/stats"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	errorutil "github.com/projectdiscovery/utils/errors"
	zasn1 "github.com/zmap/zcrypto/encoding/asn1"
	ztls "github.com/zmap/zcrypto/tls"
	zx509 "github.com/zmap/zcrypto/x509"
	"go.uber.org/multierr"
)

func init() {
	zasn1.AllowPermissiveParsing = true
}

// Fetcher retrieves certificate chains.
type Fetcher struct {
	dialer transport.Dialer
	// ShowCertificate adds the PEM encoding to every certificate
	ShowCertificate bool
	// Stats, when set, counts successful handshakes per library
	Stats *stats.Stats
}

// New creates a fetcher dialing through dialer.
func New(dialer transport.Dialer) *Fetcher {
	return &Fetcher{dialer: dialer}
}

// Fetch returns the chain presented by the server, leaf first. The chain is
// reported as is, it is never verified. serverName is sent as SNI when not
// empty.
func (f *Fetcher) Fetch(ctx context.Context, settings transport.Settings, serverName string) ([]*clients.CertificateResponse, error) {
	tr, err := transport.New(settings, f.dialer)
	if err != nil {
		return nil, err
	}

	chain, ctlsErr := f.fetchWithCTLS(ctx, tr, serverName)
	if ctlsErr == nil {
		return chain, nil
	}
	gologger.Debug().Label("certs").Msgf("crypto/tls handshake with %s failed, retrying with zcrypto: %s", settings.Address(), ctlsErr)

	chain, ztlsErr := f.fetchWithZTLS(ctx, tr, serverName)
	if ztlsErr == nil {
		return chain, nil
	}
	return nil, errorutil.NewWithTag("certs", "could not retrieve certificate chain of %s", settings.Address()).Wrap(multierr.Combine(ctlsErr, ztlsErr))
}

func (f *Fetcher) fetchWithCTLS(ctx context.Context, tr *transport.Transport, serverName string) ([]*clients.CertificateResponse, error) {
	conn, err := tr.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, tr.Settings().Timeout)
	defer cancel()
	tlsConn := tls.Client(conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS10,
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errorutil.NewWithTag("ctls", "could not do tls handshake").Wrap(err)
	}
	defer tlsConn.Close()
	f.Stats.IncrementCryptoTLSConnections()

	peers := tlsConn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, errorutil.NewWithTag("ctls", "server sent no certificate")
	}
	chain := make([]*clients.CertificateResponse, 0, len(peers))
	for _, cert := range peers {
		chain = append(chain, clients.ConvertCertificate(serverName, cert, f.ShowCertificate))
	}
	return chain, nil
}

func (f *Fetcher) fetchWithZTLS(ctx context.Context, tr *transport.Transport, serverName string) ([]*clients.CertificateResponse, error) {
	conn, err := tr.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	config := &ztls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		CertsOnly:          true,
		MinVersion:         ztls.VersionSSL30,
		MaxVersion:         ztls.VersionTLS12,
		CipherSuites:       legacyCipherSuites(),
	}
	tlsConn := ztls.Client(conn, config)
	if err := handshakeWithTimeout(ctx, conn, tlsConn, tr.Settings().Timeout); err != nil {
		return nil, errorutil.NewWithTag("ztls", "could not do tls handshake").Wrap(err)
	}
	f.Stats.IncrementZcryptoTLSConnections()

	hl := tlsConn.GetHandshakeLog()
	if hl == nil || hl.ServerCertificates == nil || len(hl.ServerCertificates.Certificate.Raw) == 0 {
		return nil, errorutil.NewWithTag("ztls", "server sent no certificate")
	}
	chain := []*clients.CertificateResponse{f.convertSimple(serverName, hl.ServerCertificates.Certificate)}
	for _, cert := range hl.ServerCertificates.Chain {
		chain = append(chain, f.convertSimple(serverName, cert))
	}
	return chain, nil
}

// handshakeWithTimeout bounds the zcrypto handshake, which has no context
// support, through the connection deadline.
func handshakeWithTimeout(ctx context.Context, conn net.Conn, tlsConn *ztls.Conn, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}
	err := tlsConn.Handshake()
	if err == ztls.ErrCertsOnly {
		err = nil
	}
	return err
}

// convertSimple prefers the standard parser and falls back to the fields
// zcrypto parsed for certificates the standard library rejects.
func (f *Fetcher) convertSimple(serverName string, cert ztls.SimpleCertificate) *clients.CertificateResponse {
	if parsed, err := x509.ParseCertificate(cert.Raw); err == nil {
		return clients.ConvertCertificate(serverName, parsed, f.ShowCertificate)
	}
	response := &clients.CertificateResponse{
		FingerprintHash: clients.Fingerprints(cert.Raw),
	}
	if f.ShowCertificate {
		response.Certificate = clients.PemEncode(cert.Raw)
	}
	if cert.Parsed != nil {
		fillFromZCertificate(response, serverName, cert.Parsed)
	}
	return response
}

func fillFromZCertificate(response *clients.CertificateResponse, serverName string, cert *zx509.Certificate) {
	certNames := append(append([]string{}, cert.DNSNames...), cert.Subject.CommonName)
	response.NotBefore = cert.NotBefore
	response.NotAfter = cert.NotAfter
	response.Expired = clients.IsExpired(cert.NotAfter)
	response.SelfSigned = clients.IsSelfSigned(cert.AuthorityKeyId, cert.SubjectKeyId)
	response.WildCardCert = clients.IsWildCardCert(certNames)
	response.SubjectAN = cert.DNSNames
	response.Emails = cert.EmailAddresses
	response.SubjectCN = cert.Subject.CommonName
	response.SubjectOrg = cert.Subject.Organization
	response.IssuerCN = cert.Issuer.CommonName
	response.IssuerOrg = cert.Issuer.Organization
	response.SubjectDN = clients.ParseASN1DNSequenceWithZpkixOrDefault(cert.RawSubject, cert.Subject.String())
	response.IssuerDN = clients.ParseASN1DNSequenceWithZpkixOrDefault(cert.RawIssuer, cert.Issuer.String())
	response.Serial = clients.FormatToSerialNumber(cert.SerialNumber)
	if serverName != "" {
		response.MisMatched = clients.IsMisMatchedCert(serverName, certNames)
	}
}

// legacyCipherSuites advertises every pre TLS 1.3 suite, so servers limited
// to old suites still send their certificate.
func legacyCipherSuites() []uint16 {
	var out []uint16
	for _, c := range names.AllCipherSuites() {
		if !c.IsTLS13() {
			out = append(out, uint16(c))
		}
	}
	return out
}
