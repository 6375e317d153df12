package tlsprobe

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/projectdiscovery/tlsprobe/internal/simserver"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/report"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, policy simserver.Policy) *simserver.Server {
	t.Helper()
	server, err := simserver.Start(policy)
	require.Nil(t, err, "could not start simulated server")
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func newService(t *testing.T, options *clients.Options) *Service {
	t.Helper()
	if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	options.SkipCertificates = true
	service, err := NewWithDialer(options, &transport.NetDialer{})
	require.Nil(t, err, "could not create service")
	return service
}

func modernPolicy() simserver.Policy {
	return simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{
			names.TLS1_2: {0xC02F, 0x009C},
			names.TLS1_3: {0x1301, 0x1302},
		},
		Groups: map[names.Protocol][]names.Group{
			names.TLS1_2: {names.Secp256r1},
			names.TLS1_3: {names.X25519, names.Secp384r1},
		},
		ServerOrder: true,
	}
}

func TestNormalizeInput(t *testing.T) {
	tests := []struct {
		input string
		host  string
		port  int
		err   bool
	}{
		{input: "example.com", host: "example.com", port: 443},
		{input: "example.com:8443", host: "example.com", port: 8443},
		{input: "https://example.com:9443/path", host: "example.com", port: 9443},
		{input: "https://example.com", host: "example.com", port: 443},
		{input: "127.0.0.1", host: "127.0.0.1", port: 443},
		{input: "::1", host: "::1", port: 443},
		{input: "[::1]", host: "::1", port: 443},
		{input: "[2001:db8::1]:8443", host: "2001:db8::1", port: 8443},
		{input: "München.de", host: "xn--mnchen-3ya.de", port: 443},
		{input: " example.com ", host: "example.com", port: 443},
		{input: "", err: true},
		{input: "example.com:0", err: true},
		{input: "example.com:http", err: true},
		{input: "https://", err: true},
	}
	for _, tc := range tests {
		host, port, err := normalizeInput(tc.input)
		if tc.err {
			require.NotNil(t, err, "expected error for %q", tc.input)
			continue
		}
		require.Nil(t, err, "could not normalize %q", tc.input)
		require.Equal(t, tc.host, host, "wrong host for %q", tc.input)
		require.Equal(t, tc.port, port, "wrong port for %q", tc.input)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := NewWithDialer(&clients.Options{Protocols: []string{"tls2_0"}}, &transport.NetDialer{})
	require.NotNil(t, err)
	_, err = NewWithDialer(&clients.Options{Proxy: "socks5://127.0.0.1:1080"}, &transport.NetDialer{})
	require.NotNil(t, err)

	service, err := NewWithDialer(&clients.Options{}, &transport.NetDialer{})
	require.Nil(t, err)
	require.Equal(t, names.AllProtocols, service.Protocols())
}

func TestScanReportsUnsupportedProtocols(t *testing.T) {
	server := startServer(t, modernPolicy())
	service := newService(t, &clients.Options{})

	var progress [][2]int
	r, err := service.Scan(context.Background(), server.Address(), func(completed, total int) {
		progress = append(progress, [2]int{completed, total})
	})
	require.Nil(t, err, "could not scan server")
	require.NotNil(t, r.Timestamp)
	require.Empty(t, r.ServerName, "ip literal sent as sni")

	require.Equal(t, []names.Protocol{names.TLS1_2, names.TLS1_3}, r.SupportedProtocols())
	for _, p := range []names.Protocol{names.SSLv3, names.TLS1_0, names.TLS1_1} {
		capability := r.Protocols[p]
		require.False(t, capability.Supported, "%s reported as supported", p)
		require.Empty(t, capability.CipherSuites)
		require.Empty(t, capability.Groups)
		require.Empty(t, capability.Errors, "rejection recorded as error for %s", p)
	}
	require.Equal(t, []names.CipherSuite{0xC02F, 0x009C}, r.Protocols[names.TLS1_2].CipherSuites)
	require.Equal(t, []names.Group{names.Secp256r1}, r.Protocols[names.TLS1_2].Groups)
	require.Equal(t, []names.CipherSuite{0x1301, 0x1302}, r.Protocols[names.TLS1_3].CipherSuites)
	require.Equal(t, []names.Group{names.X25519, names.Secp384r1}, r.Protocols[names.TLS1_3].Groups)

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	require.Equal(t, last[0], last[1], "scan ended with work left")
	require.Len(t, server.Hellos(), last[0])
}

func TestScanSingleCipherServer(t *testing.T) {
	server := startServer(t, simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{names.TLS1_3: {0x1303}},
		Groups:  map[names.Protocol][]names.Group{names.TLS1_3: {names.X25519}},
	})
	service := newService(t, &clients.Options{Protocols: []string{"tls13"}, SkipGroups: true})

	r, err := service.Scan(context.Background(), server.Address(), nil)
	require.Nil(t, err)
	require.Equal(t, []names.CipherSuite{0x1303}, r.Protocols[names.TLS1_3].CipherSuites)

	// one detection probe, then the accepting round and the rejected one
	hellos := server.Hellos()
	require.Len(t, hellos, 3)
	require.Contains(t, hellos[1].CipherSuites, names.CipherSuite(0x1303))
	require.NotContains(t, hellos[2].CipherSuites, names.CipherSuite(0x1303))
}

func TestScanIsIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		policy  simserver.Policy
		options clients.Options
	}{
		{name: "modern server", policy: modernPolicy(), options: clients.Options{CipherOrder: true}},
		{name: "silent server", policy: simserver.Policy{Silent: true}, options: clients.Options{Protocols: []string{"tls12"}, Timeout: 300 * time.Millisecond}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := startServer(t, tc.policy)
			service := newService(t, &tc.options)

			scan := func() *report.ScanReport {
				r, err := service.Scan(context.Background(), server.Address(), nil)
				require.Nil(t, err)
				r.Timestamp = nil
				return r
			}
			first := scan()
			second := scan()
			require.Equal(t, first, second)
		})
	}
}

func TestScanDetectsServerCipherOrder(t *testing.T) {
	server := startServer(t, modernPolicy())
	service := newService(t, &clients.Options{CipherOrder: true})

	r, err := service.Scan(context.Background(), server.Address(), nil)
	require.Nil(t, err)
	require.NotNil(t, r.Protocols[names.TLS1_2].ServerCipherOrder)
	require.True(t, *r.Protocols[names.TLS1_2].ServerCipherOrder)
}

func TestScanSilentServer(t *testing.T) {
	server := startServer(t, simserver.Policy{Silent: true})
	service := newService(t, &clients.Options{Protocols: []string{"tls12", "tls13"}})

	r, err := service.Scan(context.Background(), server.Address(), nil)
	require.Nil(t, err, "timeouts must not abort the scan")
	require.Empty(t, r.SupportedProtocols())
	for _, p := range []names.Protocol{names.TLS1_2, names.TLS1_3} {
		capability := r.Protocols[p]
		require.Empty(t, capability.CipherSuites)
		require.Len(t, capability.Errors, 1)
		require.Equal(t, transport.Timeout.String(), capability.Errors[0].Kind)
		require.NotContains(t, capability.Errors[0].Message, "127.0.0.1", "socket addresses in report")
	}
}

func TestScanUnreachableTarget(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	address := listener.Addr().String()
	_ = listener.Close()

	service := newService(t, &clients.Options{})
	_, err = service.Scan(context.Background(), address, nil)
	require.ErrorIs(t, err, ErrTargetUnreachable)
}

func TestScanProxyRejected(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := http.ReadRequest(bufio.NewReader(conn)); err != nil {
					return
				}
				_, _ = conn.Write([]byte("HTTP/1.1 403 Forbidden\r\n\r\n"))
			}()
		}
	}()

	server := startServer(t, modernPolicy())
	service := newService(t, &clients.Options{Proxy: listener.Addr().String()})
	_, err = service.Scan(context.Background(), server.Address(), nil)
	require.ErrorIs(t, err, ErrTargetUnreachable)
	require.Empty(t, server.Hellos(), "proxy forwarded a probe")
}

func TestScanCancelled(t *testing.T) {
	server := startServer(t, modernPolicy())
	service := newService(t, &clients.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := service.Scan(ctx, server.Address(), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, server.Hellos())
}

func TestServerName(t *testing.T) {
	tests := []struct {
		name    string
		options clients.Options
		host    string
		want    string
	}{
		{name: "host", host: "example.com", want: "example.com"},
		{name: "ip", host: "10.0.0.1", want: ""},
		{name: "override", options: clients.Options{ServerName: "internal.example.com"}, host: "10.0.0.1", want: "internal.example.com"},
		{name: "disabled", options: clients.Options{NoSNI: true, ServerName: "x.example.com"}, host: "example.com", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &Service{options: &tc.options}
			require.Equal(t, tc.want, service.serverName(tc.host))
		})
	}
}

func TestSNIHost(t *testing.T) {
	tests := []struct {
		name    string
		options clients.Options
		host    string
		want    string
	}{
		{name: "host", host: "example.com", want: "example.com"},
		{name: "ip", host: "10.0.0.1", want: ""},
		{name: "ipv6", host: "::1", want: ""},
		{name: "override", options: clients.Options{ServerName: "internal.example.com"}, host: "10.0.0.1", want: "internal.example.com"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &Service{options: &tc.options}
			require.Equal(t, tc.want, service.sniHost(tc.host))
		})
	}
}
