package runner

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/projectdiscovery/tlsprobe/internal/simserver"
	"github.com/projectdiscovery/tlsprobe/pkg/output"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func collect(t *testing.T, feed func(inputs chan<- string)) []string {
	t.Helper()
	inputs := make(chan string)
	go func() {
		defer close(inputs)
		feed(inputs)
	}()
	var got []string
	for input := range inputs {
		got = append(got, input)
	}
	return got
}

// Normal input
func Test_InputDomain_processInputItem(t *testing.T) {
	runner := &Runner{options: &clients.Options{}}
	got := collect(t, func(inputs chan<- string) {
		runner.processInputItem(context.Background(), "www.example.com:8443", inputs)
	})
	require.Equal(t, []string{"www.example.com:8443"}, got, "could not get correct inputs")
}

func Test_InputCIDR_processInputItem(t *testing.T) {
	runner := &Runner{options: &clients.Options{}}
	got := collect(t, func(inputs chan<- string) {
		runner.processInputItem(context.Background(), "173.0.84.0/30", inputs)
	})
	expected := []string{"173.0.84.0", "173.0.84.1", "173.0.84.2", "173.0.84.3"}
	require.ElementsMatch(t, expected, got, "could not get correct inputs")
}

func Test_readInputList_DetectsEncoding(t *testing.T) {
	list := "example.com\r\n# comment\n\n  example.org:8443  \n173.0.84.0/30\n"
	tests := []struct {
		name    string
		content func() []byte
	}{
		{"utf-8", func() []byte { return []byte(list) }},
		{"utf-8 bom", func() []byte { return append([]byte("\xef\xbb\xbf"), list...) }},
		{"utf-16le bom", func() []byte {
			encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String(list)
			require.Nil(t, err)
			return []byte(encoded)
		}},
	}
	expected := []string{"example.com", "example.org:8443", "173.0.84.0", "173.0.84.1", "173.0.84.2", "173.0.84.3"}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &Runner{options: &clients.Options{}}
			var readErr error
			got := collect(t, func(inputs chan<- string) {
				readErr = runner.readInputList(context.Background(), strings.NewReader(string(tc.content())), inputs)
			})
			require.Nil(t, readErr)
			require.ElementsMatch(t, expected, got)
		})
	}
}

func Test_validateOptions(t *testing.T) {
	t.Run("no input", func(t *testing.T) {
		runner := &Runner{options: &clients.Options{}}
		require.ErrorIs(t, runner.validateOptions(), ErrNoInput)
	})

	t.Run("stdin only", func(t *testing.T) {
		runner := &Runner{options: &clients.Options{}, hasStdin: true}
		require.NoError(t, runner.validateOptions())
	})

	t.Run("missing list", func(t *testing.T) {
		runner := &Runner{options: &clients.Options{InputList: filepath.Join(t.TempDir(), "missing.txt")}}
		require.Error(t, runner.validateOptions())
	})

	t.Run("invalid protocol", func(t *testing.T) {
		runner := &Runner{options: &clients.Options{Inputs: []string{"example.com"}, Protocols: []string{"tls9"}}}
		require.Error(t, runner.validateOptions())
	})

	t.Run("conflicting sni", func(t *testing.T) {
		runner := &Runner{options: &clients.Options{Inputs: []string{"example.com"}, NoSNI: true, ServerName: "example.org"}}
		require.Error(t, runner.validateOptions())
	})

	t.Run("proxy from environment", func(t *testing.T) {
		t.Setenv("https_proxy", "")
		t.Setenv("HTTPS_PROXY", "127.0.0.1:3128")
		options := &clients.Options{Inputs: []string{"example.com"}}
		runner := &Runner{options: options}
		require.NoError(t, runner.validateOptions())
		assert.Equal(t, "127.0.0.1:3128", options.Proxy)
	})

	t.Run("explicit proxy wins", func(t *testing.T) {
		t.Setenv("HTTPS_PROXY", "127.0.0.1:3128")
		options := &clients.Options{Inputs: []string{"example.com"}, Proxy: "10.0.0.1:8080"}
		runner := &Runner{options: options}
		require.NoError(t, runner.validateOptions())
		assert.Equal(t, "10.0.0.1:8080", options.Proxy)
	})
}

func Test_progressPrinter(t *testing.T) {
	// only checks that uneven totals never divide by zero
	progress := progressPrinter("example.com")
	progress(0, 0)
	progress(1, 3)
	progress(3, 3)
}

func startServer(t *testing.T, policy simserver.Policy) *simserver.Server {
	t.Helper()
	server, err := simserver.Start(policy)
	require.Nil(t, err, "could not start simulated server")
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func Test_Execute(t *testing.T) {
	modern := startServer(t, simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{names.TLS1_2: {0x009C}},
	})
	gost := startServer(t, simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{names.TLS1_2: {0xC100}},
	})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	closed := listener.Addr().String()
	_ = listener.Close()

	dir := t.TempDir()
	options := &clients.Options{
		Inputs:           []string{modern.Address(), gost.Address(), closed, modern.Address()},
		OutputFile:       filepath.Join(dir, "output.json"),
		ErrorFile:        filepath.Join(dir, "errors.txt"),
		GOSTReport:       filepath.Join(dir, "gost.txt"),
		JSON:             true,
		Timeout:          time.Second,
		Concurrency:      2,
		SkipCertificates: true,
		Protocols:        []string{"tls12"},
	}
	runner := &Runner{options: options}
	require.NoError(t, runner.validateOptions())
	runner.outputWriter, err = output.New(options)
	require.Nil(t, err)
	runner.service, err = tlsprobe.NewWithDialer(options, &transport.NetDialer{})
	require.Nil(t, err)
	require.Nil(t, runner.openReports())

	require.Nil(t, runner.Execute(context.Background()))
	require.Nil(t, runner.Close())

	data, err := os.ReadFile(options.OutputFile)
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2, "duplicate or failed targets written to output")
	for _, line := range lines {
		require.Contains(t, line, `"TLS1_2":{"supported":true`)
	}

	data, err = os.ReadFile(options.ErrorFile)
	require.Nil(t, err)
	require.True(t, strings.HasPrefix(string(data), closed+"\t"), "unreachable target missing from error file")
	require.Contains(t, string(data), tlsprobe.ErrTargetUnreachable.Error())

	data, err = os.ReadFile(options.GOSTReport)
	require.Nil(t, err)
	require.Equal(t, gost.Address()+"\n", string(data))
}
