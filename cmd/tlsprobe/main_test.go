package main

import (
	"os"
	"testing"
	"time"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFlags(t *testing.T) {
	originalOptions, originalArgs := options, os.Args
	defer func() {
		options, os.Args = originalOptions, originalArgs
	}()

	options = &clients.Options{}
	os.Args = []string{"tlsprobe", "-u", "example.com,example.org:8443", "-p", "tls12,tls13", "-ts", "-co", "-j"}
	_, err := readFlags()
	require.NoError(t, err)

	assert.Equal(t, []string{"example.com", "example.org:8443"}, []string(options.Inputs))
	assert.Equal(t, []string{"tls12", "tls13"}, []string(options.Protocols))
	assert.True(t, options.TestSNI)
	assert.True(t, options.CipherOrder)
	assert.True(t, options.JSON)
	assert.Equal(t, transport.DefaultTimeout, options.Timeout)
	assert.Equal(t, 6, options.MaxWorkers)
	assert.False(t, options.SkipCiphers)
}

func TestReadFlagsSubSecondTimeout(t *testing.T) {
	originalOptions, originalArgs := options, os.Args
	defer func() {
		options, os.Args = originalOptions, originalArgs
	}()

	options = &clients.Options{}
	os.Args = []string{"tlsprobe", "-u", "example.com", "-timeout", "500ms"}
	_, err := readFlags()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, options.Timeout)
}
