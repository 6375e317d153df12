package assets

import (
	"testing"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/stretchr/testify/require"
)

func TestCipherSecLevel(t *testing.T) {
	require.Len(t, CipherSecLevel, len(names.AllCipherSuites()), "every known suite must be rated")

	require.Equal(t, "Recommended", NameBasedLevel(0xC02F))
	require.Equal(t, "Secure", CipherSecLevel["TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"], "rating override not applied")
	require.Equal(t, "Recommended", CipherSecLevel["TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"])
	require.Equal(t, "Insecure", CipherSecLevel["TLS_RSA_WITH_RC4_128_SHA"])
	require.Equal(t, "Weak", CipherSecLevel["TLS_RSA_WITH_AES_128_CBC_SHA"])

	require.Contains(t, GetInSecureCipherSuites(), "TLS_ECDHE_RSA_WITH_NULL_SHA")
	require.NotContains(t, GetSecureCipherSuites(), "TLS_RSA_WITH_AES_128_CBC_SHA")
	require.Contains(t, GetWeakCipherSuites(), "TLS_RSA_WITH_AES_128_CBC_SHA")
}
