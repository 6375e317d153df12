package clients

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/projectdiscovery/fastdialer/fastdialer"
	"github.com/projectdiscovery/goflags"
)

// Options contains configuration options for the tlsprobe scanner
type Options struct {
	// OutputFile is the file to write output to
	OutputFile string
	// Inputs is a list of inputs to process
	Inputs goflags.StringSlice
	// InputList is the list of inputs to process
	InputList string
	// ServerName is the optional server-name sent in the SNI extension
	ServerName string
	// NoSNI disables sending the SNI extension
	NoSNI bool
	// Proxy is the http proxy used to reach targets
	Proxy string
	// Timeout bounds the connection and read of every probe
	Timeout time.Duration
	// MaxWorkers is the number of parallel probes per target
	MaxWorkers int
	// Concurrency is the number of targets scanned at the same time
	Concurrency int
	// Protocols is the list of protocols to probe
	Protocols goflags.StringSlice
	// TestSNI enables the server name behaviour test
	TestSNI bool
	// SkipCertificates disables fetching the certificate chain
	SkipCertificates bool
	// SkipCiphers disables cipher suite enumeration
	SkipCiphers bool
	// SkipGroups disables key exchange group enumeration
	SkipGroups bool
	// CipherOrder enables detection of server cipher preference
	CipherOrder bool
	// Jarm enables computing the jarm fingerprint
	Jarm bool
	// JSON enables display of JSON output
	JSON bool
	// Verbose enables display of verbose output
	Verbose bool
	// Debug enables display of every probe
	Debug bool
	// Silent enables display of results only
	Silent bool
	// NoColor disables colored output
	NoColor bool
	// Progress prints the scan progress to stderr
	Progress bool
	// Version shows the version of the program
	Version bool
	// HealthCheck runs the diagnostic checks
	HealthCheck bool
	// GOSTReport is the file listing targets accepting GOST suites
	GOSTReport string
	// ErrorFile is the file listing targets that could not be scanned
	ErrorFile string

	// Fastdialer is a fastdialer dialer instance
	Fastdialer *fastdialer.Dialer
}

// CertificateResponse is the response for a certificate
type CertificateResponse struct {
	// Expired specifies whether the certificate has expired
	Expired bool `json:"expired,omitempty"`
	// SelfSigned returns true if the certificate is self-signed
	SelfSigned bool `json:"self_signed,omitempty"`
	// MisMatched returns true if the certificate does not cover the server name
	MisMatched bool `json:"mismatched,omitempty"`
	// WildCardCert is true if tls certificate is a wildcard certificate
	WildCardCert bool `json:"wildcard_certificate,omitempty"`
	// NotBefore is the not-before time for certificate
	NotBefore time.Time `json:"not_before,omitempty"`
	// NotAfter is the not-after time for certificate
	NotAfter time.Time `json:"not_after,omitempty"`
	// SubjectDN is the distinguished name for cert
	SubjectDN string `json:"subject_dn,omitempty"`
	// SubjectCN is the common name for cert
	SubjectCN string `json:"subject_cn,omitempty"`
	// SubjectOrg is the organization for cert subject
	SubjectOrg []string `json:"subject_org,omitempty"`
	// SubjectAN is a list of Subject Alternative Names for the certificate
	SubjectAN []string `json:"subject_an,omitempty"`
	// IssuerDN is the distinguished name for cert
	IssuerDN string `json:"issuer_dn,omitempty"`
	// IssuerCN is the common name for cert
	IssuerCN string `json:"issuer_cn,omitempty"`
	// IssuerOrg is the organization for cert issuer
	IssuerOrg []string `json:"issuer_org,omitempty"`
	// Emails is a list of Emails for the certificate
	Emails []string `json:"emails,omitempty"`
	// Serial is the certificate serial number
	Serial string `json:"serial,omitempty"`
	// SignatureAlgorithm is the algorithm the issuer signed with
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`
	// FingerprintHash is the hashes for certificate
	FingerprintHash CertificateResponseFingerprintHash `json:"fingerprint_hash"`
	// Certificate is the raw certificate in PEM format
	Certificate string `json:"certificate,omitempty"`
}

// CertificateResponseFingerprintHash is a response for fingerprint hash of cert
type CertificateResponseFingerprintHash struct {
	// MD5 is the md5 hash for certificate
	MD5 string `json:"md5"`
	// SHA1 is the sha1 hash for certificate
	SHA1 string `json:"sha1"`
	// SHA256 is the sha256 hash for certificate
	SHA256 string `json:"sha256"`
}

// Fingerprints hashes the DER bytes of a certificate.
func Fingerprints(raw []byte) CertificateResponseFingerprintHash {
	return CertificateResponseFingerprintHash{
		MD5:    MD5Fingerprint(raw),
		SHA1:   SHA1Fingerprint(raw),
		SHA256: SHA256Fingerprint(raw),
	}
}

// MD5Fingerprint creates a fingerprint of data using the MD5 hash algorithm.
func MD5Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SHA1Fingerprint creates a fingerprint of data using the SHA1 hash algorithm.
func SHA1Fingerprint(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SHA256Fingerprint creates a fingerprint of data using the SHA256 hash
// algorithm.
func SHA256Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsExpired returns true if the certificate has expired
func IsExpired(notAfter time.Time) bool {
	remaining := math.Round(time.Since(notAfter).Seconds())
	return remaining > 0
}
