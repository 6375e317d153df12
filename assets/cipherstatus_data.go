package assets

import (
	_ "embed"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	stringsutil "github.com/projectdiscovery/utils/strings"
)

// CipherDataBin holds the ciphersuite.info ratings that differ from the
// name based rating. It is regenerated by cmd/update-cipherstatus.
//
//go:embed cipherstatus_data.json
var CipherDataBin string

// CipherSecLevel contains cipher and its security level, using the
// categories of https://ciphersuite.info/
var CipherSecLevel = map[string]string{}

// GetSecureCipherSuites returns Ciphers with status `Recommended` and `Secure`
// Ex: https://ciphersuite.info/cs/TLS_AES_128_CCM_8_SHA256/
func GetSecureCipherSuites() []string {
	return getCipherWithLevel("Recommended", "Secure")
}

// GetInSecureCipherSuites returns Ciphers with status `Insecure`.
// Insecure Ciphers either uses no authentication at all or does not provide confidentiality
// Ex: https://ciphersuite.info/cs/TLS_NULL_WITH_NULL_NULL/
func GetInSecureCipherSuites() []string {
	return getCipherWithLevel("Insecure")
}

// GetWeakCipherSuites returns Ciphers with status `Weak`.
// Weak Cipher suites use algorithms that are proven to be weak or can be broken
// Ex: https://ciphersuite.info/cs/TLS_RSA_WITH_AES_256_CBC_SHA/
func GetWeakCipherSuites() []string {
	return getCipherWithLevel("Weak")
}

// returns cipher with level
func getCipherWithLevel(level ...string) []string {
	arr := []string{}
	for _, cipher := range names.AllCipherSuites() {
		name := cipher.String()
		if stringsutil.EqualFoldAny(CipherSecLevel[name], level...) {
			arr = append(arr, name)
		}
	}
	return arr
}

// NameBasedLevel rates a suite by the primitives in its name.
func NameBasedLevel(cipher names.CipherSuite) string {
	name := cipher.String()
	aead := stringsutil.ContainsAny(name, "_GCM_", "_CCM", "CHACHA20_POLY1305", "_MGM_")
	switch {
	case stringsutil.ContainsAny(name, "_NULL_", "_anon_", "_EXPORT", "_RC4_", "_DES_", "_DES40_", "_MD5"),
		strings.HasSuffix(name, "_NULL"):
		return "Insecure"
	case cipher.IsTLS13() && !strings.Contains(name, "GOST"):
		return "Recommended"
	case strings.HasPrefix(name, "TLS_ECDHE_") && aead && !strings.Contains(name, "_PSK_"):
		return "Recommended"
	case strings.HasPrefix(name, "TLS_DHE_") && aead && !strings.Contains(name, "_PSK_"):
		return "Secure"
	case stringsutil.ContainsAny(name, "KUZNYECHIK", "MAGMA"):
		return "Secure"
	}
	return "Weak"
}

func init() {
	for _, cipher := range names.AllCipherSuites() {
		CipherSecLevel[cipher.String()] = NameBasedLevel(cipher)
	}
	overrides := map[string]string{}
	if err := jsoniter.UnmarshalFromString(CipherDataBin, &overrides); err != nil {
		gologger.Error().Msgf("could not unmarshal cipher status data: %s", err)
		return
	}
	for name, level := range overrides {
		if _, ok := CipherSecLevel[name]; ok {
			CipherSecLevel[name] = level
		}
	}
}
