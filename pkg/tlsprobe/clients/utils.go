package clients

import (
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"strings"

	zasn1 "github.com/zmap/zcrypto/encoding/asn1"
	zpkix "github.com/zmap/zcrypto/x509/pkix"
)

// ConvertCertificate converts a parsed certificate to a response. serverName
// is the name the certificate is checked against, an empty name skips the
// mismatch check.
func ConvertCertificate(serverName string, cert *x509.Certificate, showCert bool) *CertificateResponse {
	certNames := append(append([]string{}, cert.DNSNames...), cert.Subject.CommonName)
	response := &CertificateResponse{
		SubjectAN:          cert.DNSNames,
		Emails:             cert.EmailAddresses,
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
		Expired:            IsExpired(cert.NotAfter),
		SelfSigned:         IsSelfSigned(cert.AuthorityKeyId, cert.SubjectKeyId),
		WildCardCert:       IsWildCardCert(certNames),
		IssuerCN:           cert.Issuer.CommonName,
		IssuerOrg:          cert.Issuer.Organization,
		SubjectCN:          cert.Subject.CommonName,
		SubjectOrg:         cert.Subject.Organization,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		FingerprintHash:    Fingerprints(cert.Raw),
		Serial:             FormatToSerialNumber(cert.SerialNumber),
	}
	if serverName != "" {
		response.MisMatched = IsMisMatchedCert(serverName, certNames)
	}
	response.IssuerDN = ParseASN1DNSequenceWithZpkixOrDefault(cert.RawIssuer, cert.Issuer.String())
	response.SubjectDN = ParseASN1DNSequenceWithZpkixOrDefault(cert.RawSubject, cert.Subject.String())
	if showCert {
		response.Certificate = PemEncode(cert.Raw)
	}
	return response
}

// ParseASN1DNSequenceWithZpkixOrDefault parses a raw DN with zpkix, which
// knows more attribute types than the standard library. defaultValue is
// returned when parsing fails.
func ParseASN1DNSequenceWithZpkixOrDefault(data []byte, defaultValue string) string {
	var rdnSequence zpkix.RDNSequence
	var subject zpkix.Name
	if _, err := zasn1.Unmarshal(data, &rdnSequence); err != nil {
		return defaultValue
	}
	subject.FillFromRDNSequence(&rdnSequence)
	if dn := subject.String(); dn != "" {
		return dn
	}
	return defaultValue
}

// IsSelfSigned returns true if the certificate is self-signed
func IsSelfSigned(authorityKeyID, subjectKeyID []byte) bool {
	return len(authorityKeyID) == 0 || bytes.Equal(authorityKeyID, subjectKeyID)
}

// IsWildCardCert returns true if any of the names is a wildcard
func IsWildCardCert(names []string) bool {
	for _, name := range names {
		if strings.Contains(name, "*.") {
			return true
		}
	}
	return false
}

// IsMisMatchedCert returns true if none of the certificate names covers host.
// Wildcards only match within the left-most label.
func IsMisMatchedCert(host string, alternativeNames []string) bool {
	hostTokens := strings.Split(host, ".")
	for _, alternativeName := range alternativeNames {
		if !strings.Contains(alternativeName, "*") {
			if strings.EqualFold(alternativeName, host) {
				return false
			}
			continue
		}
		nameTokens := strings.Split(alternativeName, ".")
		if len(nameTokens) != len(hostTokens) {
			continue
		}
		matched := matchWildCardToken(nameTokens[0], hostTokens[0])
		for i := 1; matched && i < len(nameTokens); i++ {
			matched = strings.EqualFold(nameTokens[i], hostTokens[i])
		}
		if matched {
			return false
		}
	}
	return true
}

// matchWildCardToken matches a single label, nameToken may hold one '*'.
func matchWildCardToken(nameToken, hostToken string) bool {
	prefix, suffix, found := strings.Cut(nameToken, "*")
	if !found {
		return strings.EqualFold(nameToken, hostToken)
	}
	if len(hostToken) < len(prefix)+len(suffix) {
		return false
	}
	lowerHost := strings.ToLower(hostToken)
	return strings.HasPrefix(lowerHost, strings.ToLower(prefix)) && strings.HasSuffix(lowerHost, strings.ToLower(suffix))
}

// PemEncode encodes a raw certificate to PEM format.
func PemEncode(cert []byte) string {
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert}); err != nil {
		return ""
	}
	return buf.String()
}

// FormatToSerialNumber converts big.Int to colon separated hex string
// Example: 17034156255497985825694118641198758684 -> 0C:D0:A8:BE:C6:32:CF:E6:45:EC:A0:A9:B0:84:FB:1C
func FormatToSerialNumber(serialNumber *big.Int) string {
	if serialNumber == nil || serialNumber.Sign() == 0 {
		return ""
	}
	b := serialNumber.Bytes()
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = hex.EncodeToString(b[i : i+1])
	}
	return strings.ToUpper(strings.Join(parts, ":"))
}
