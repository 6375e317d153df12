package enum

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/projectdiscovery/tlsprobe/internal/simserver"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/report"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/stretchr/testify/require"
)

var (
	tls12Ciphers = []names.CipherSuite{0xC02F, 0x009C, 0x002F}
	tls13Ciphers = []names.CipherSuite{0x1302, 0x1301}
)

func defaultPolicy() simserver.Policy {
	return simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{
			names.TLS1_2: tls12Ciphers,
			names.TLS1_3: tls13Ciphers,
		},
		Groups: map[names.Protocol][]names.Group{
			names.TLS1_2: {names.Secp256r1, names.X25519},
			names.TLS1_3: {names.X25519, names.Secp384r1},
		},
		ServerOrder: true,
	}
}

func startServer(t *testing.T, policy simserver.Policy) *simserver.Server {
	t.Helper()
	server, err := simserver.Start(policy)
	require.Nil(t, err, "could not start simulated server")
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func newProber(t *testing.T, server *simserver.Server) *Prober {
	t.Helper()
	tr, err := transport.New(server.Settings(300*time.Millisecond), &transport.NetDialer{})
	require.Nil(t, err)
	return NewProber(tr, server.Address())
}

// drive runs the engine sequentially, one chain after the other.
func drive(t *testing.T, engine *Engine, prober *Prober) {
	t.Helper()
	queue := engine.Start()
	for len(queue) > 0 {
		chain := queue[0]
		queue = queue[1:]
		for {
			req, ok := chain.Next()
			if !ok {
				break
			}
			chain.Observe(prober.Probe(context.Background(), req))
		}
		queue = append(queue, engine.Complete(chain)...)
	}
}

func newReport(server *simserver.Server, protocols []names.Protocol) *report.ScanReport {
	return report.New(server.Address(), server.Settings(300*time.Millisecond), "", protocols)
}

func TestProberOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		policy  simserver.Policy
		kind    OutcomeKind
		failure transport.FailureKind
	}{
		{name: "negotiated", policy: defaultPolicy(), kind: Negotiated},
		{name: "alert", policy: simserver.Policy{Ciphers: map[names.Protocol][]names.CipherSuite{names.TLS1_2: {0xFFFE}}}, kind: Rejected},
		{name: "close", policy: simserver.Policy{CloseOnReject: true}, kind: TransportFailure, failure: transport.Closed},
		{name: "garbage", policy: simserver.Policy{Raw: []byte("HTTP/1.1 400 Bad Request\r\n\r\n")}, kind: ParseFailure},
		{name: "silent", policy: simserver.Policy{Silent: true}, kind: TransportFailure, failure: transport.Timeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prober := newProber(t, startServer(t, tc.policy))
			chain := newSingle(ProtocolDetection, names.TLS1_2, detectionSpec(names.TLS1_2, ""), "")
			req, ok := chain.Next()
			require.True(t, ok)

			outcome := prober.Probe(context.Background(), req)
			require.Equal(t, tc.kind, outcome.Kind, "unexpected outcome %s", outcome)
			require.Equal(t, tc.failure, outcome.Failure)
			if tc.kind == Negotiated {
				require.True(t, outcome.NegotiatedWith(names.TLS1_2))
				require.Equal(t, names.CipherSuite(0xC02F), outcome.CipherSuite)
			}
		})
	}
}

func TestEngineEnumeratesServer(t *testing.T) {
	server := startServer(t, defaultPolicy())
	r := newReport(server, names.AllProtocols)
	engine := NewEngine(Config{
		Protocols:        names.AllProtocols,
		EnumerateCiphers: true,
		EnumerateGroups:  true,
		CipherOrder:      true,
	}, r)
	drive(t, engine, newProber(t, server))

	require.Equal(t, []names.Protocol{names.TLS1_2, names.TLS1_3}, r.SupportedProtocols())
	for _, p := range []names.Protocol{names.SSLv3, names.TLS1_0, names.TLS1_1} {
		capability := r.Protocols[p]
		require.False(t, capability.Supported, "%s reported supported", p)
		require.Empty(t, capability.CipherSuites)
		require.Empty(t, capability.Groups)
		require.Empty(t, capability.Errors, "alerts are not errors")
	}

	tls12 := r.Protocols[names.TLS1_2]
	require.Equal(t, tls12Ciphers, tls12.CipherSuites)
	require.Equal(t, []names.Group{names.Secp256r1, names.X25519}, tls12.Groups)
	require.NotNil(t, tls12.ServerCipherOrder)
	require.True(t, *tls12.ServerCipherOrder)

	tls13 := r.Protocols[names.TLS1_3]
	require.Equal(t, tls13Ciphers, tls13.CipherSuites)
	require.Equal(t, []names.Group{names.X25519, names.Secp384r1}, tls13.Groups, "hello retry group not accepted")
	require.True(t, *tls13.ServerCipherOrder)
	require.False(t, engine.Unreachable())
}

func TestEngineClientCipherOrder(t *testing.T) {
	policy := defaultPolicy()
	policy.ServerOrder = false
	server := startServer(t, policy)
	protocols := []names.Protocol{names.TLS1_2}
	r := newReport(server, protocols)
	drive(t, NewEngine(Config{Protocols: protocols, EnumerateCiphers: true, CipherOrder: true}, r), newProber(t, server))

	tls12 := r.Protocols[names.TLS1_2]
	require.Equal(t, tls12Ciphers, tls12.CipherSuites)
	require.NotNil(t, tls12.ServerCipherOrder)
	require.False(t, *tls12.ServerCipherOrder)
	require.Empty(t, tls12.Groups, "groups enumerated without being asked")
}

func TestEngineSNIBehavior(t *testing.T) {
	policy := simserver.Policy{
		Ciphers:    map[names.Protocol][]names.CipherSuite{names.TLS1_2: {0xC02F}},
		Groups:     map[names.Protocol][]names.Group{names.TLS1_2: {names.X25519}},
		ServerName: "example.com",
		RequireSNI: true,
	}
	server := startServer(t, policy)
	protocols := []names.Protocol{names.TLS1_1, names.TLS1_2}
	r := newReport(server, protocols)
	engine := NewEngine(Config{
		Protocols:  protocols,
		ServerName: "example.com",
		SNIHost:    "example.com",
		TestSNI:    true,
	}, r)
	drive(t, engine, newProber(t, server))

	sni := r.Protocols[names.TLS1_2].SNI
	require.NotNil(t, sni, "sni test did not run")
	require.True(t, sni.RequiresSNI)
	require.True(t, sni.RejectsWrongSNI)
	require.True(t, sni.HostSensitive)
	require.Contains(t, sni.WithSNI, "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256")
	require.Contains(t, sni.WithoutSNI, "unrecognized_name")
	require.Nil(t, r.Protocols[names.TLS1_1].SNI)

	var withoutSNI int
	for _, ch := range server.Hellos() {
		if ch.ServerName == "" {
			withoutSNI++
		}
	}
	require.Equal(t, 1, withoutSNI, "only the absent variant may omit sni")
}

func TestEliminationStopsAfterRejection(t *testing.T) {
	engine := NewEngine(Config{}, report.New("", transport.Settings{}, "", nil))
	chain := engine.cipherChain(names.TLS1_3).(*elimination[names.CipherSuite])
	candidates := len(chain.remaining)

	req, ok := chain.Next()
	require.True(t, ok)
	require.Equal(t, 1, req.Round)
	require.Len(t, req.Spec.CipherSuites, candidates)
	_, ok = chain.Next()
	require.False(t, ok, "round issued before the previous outcome")

	chain.Observe(Outcome{Kind: Negotiated, Protocol: names.TLS1_3, CipherSuite: 0x1303})
	req, ok = chain.Next()
	require.True(t, ok)
	require.Equal(t, 2, req.Round)
	require.NotContains(t, req.Spec.CipherSuites, names.CipherSuite(0x1303))
	require.Len(t, req.Spec.CipherSuites, candidates-1)

	chain.Observe(Outcome{Kind: Rejected, AlertLevel: names.AlertFatal, AlertDescription: names.AlertHandshakeFailure})
	_, ok = chain.Next()
	require.False(t, ok, "round issued after rejection")
	require.Equal(t, 0, chain.Remaining())
	require.Equal(t, []names.CipherSuite{0x1303}, chain.Accepted())
	require.Equal(t, 2, chain.Rounds())
}

func TestEliminationStopsOnUnexpectedPick(t *testing.T) {
	engine := NewEngine(Config{}, report.New("", transport.Settings{}, "", nil))
	tests := []struct {
		name    string
		outcome Outcome
	}{
		{"cipher not offered", Outcome{Kind: Negotiated, Protocol: names.TLS1_2, CipherSuite: 0x1301}},
		{"other protocol", Outcome{Kind: Negotiated, Protocol: names.TLS1_1, CipherSuite: 0xC02F}},
		{"timeout", Outcome{Kind: TransportFailure, Failure: transport.Timeout}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := engine.cipherChain(names.TLS1_2).(*elimination[names.CipherSuite])
			_, ok := chain.Next()
			require.True(t, ok)
			chain.Observe(tc.outcome)
			_, ok = chain.Next()
			require.False(t, ok)
			require.Empty(t, chain.Accepted())
			require.NotNil(t, chain.terminal)
		})
	}
}

func TestEliminationRoundBound(t *testing.T) {
	engine := NewEngine(Config{}, report.New("", transport.Settings{}, "", nil))
	chain := engine.groupChain(names.TLS1_3).(*elimination[names.Group])
	candidates := names.GroupsFor(names.TLS1_3)

	// a server accepting everything, always picking the last offered group
	for {
		req, ok := chain.Next()
		if !ok {
			break
		}
		require.LessOrEqual(t, req.Round, len(candidates))
		last := req.Spec.Groups[len(req.Spec.Groups)-1]
		chain.Observe(Outcome{Kind: Negotiated, Protocol: names.TLS1_3, Group: last, HasGroup: true})
	}
	require.Equal(t, len(candidates), chain.Rounds())
	require.ElementsMatch(t, candidates, chain.Accepted())
	require.Nil(t, chain.terminal)
}

func TestEngineSkipsGroupsForSSLv3(t *testing.T) {
	engine := NewEngine(Config{}, report.New("", transport.Settings{}, "", nil))
	require.Nil(t, engine.groupChain(names.SSLv3))
	require.NotNil(t, engine.groupChain(names.TLS1_0))
}

func TestEngineUnreachable(t *testing.T) {
	protocols := []names.Protocol{names.TLS1_2, names.TLS1_3}
	tests := []struct {
		name        string
		outcomes    []Outcome
		unreachable bool
	}{
		{
			name: "connection errors",
			outcomes: []Outcome{
				{Kind: TransportFailure, Failure: transport.ConnectionError},
				{Kind: TransportFailure, Failure: transport.ProxyRejected},
			},
			unreachable: true,
		},
		{
			name: "timeouts",
			outcomes: []Outcome{
				{Kind: TransportFailure, Failure: transport.Timeout},
				{Kind: TransportFailure, Failure: transport.Timeout},
			},
		},
		{
			name: "one alert",
			outcomes: []Outcome{
				{Kind: TransportFailure, Failure: transport.ConnectionError},
				{Kind: Rejected, AlertLevel: names.AlertFatal, AlertDescription: names.AlertProtocolVersion},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := report.New("", transport.Settings{}, "", protocols)
			engine := NewEngine(Config{Protocols: protocols}, r)
			chains := engine.Start()
			require.Len(t, chains, len(tc.outcomes))
			for i, chain := range chains {
				_, ok := chain.Next()
				require.True(t, ok)
				chain.Observe(tc.outcomes[i])
				require.Empty(t, engine.Complete(chain))
			}
			require.Equal(t, tc.unreachable, engine.Unreachable())
			for _, p := range protocols {
				require.False(t, r.Protocols[p].Supported)
			}
		})
	}
}

func TestEngineAnnotatesTimeouts(t *testing.T) {
	server := startServer(t, simserver.Policy{Silent: true})
	protocols := []names.Protocol{names.TLS1_2, names.TLS1_3}
	r := newReport(server, protocols)
	engine := NewEngine(Config{Protocols: protocols, EnumerateCiphers: true}, r)
	drive(t, engine, newProber(t, server))

	for _, p := range protocols {
		capability := r.Protocols[p]
		require.False(t, capability.Supported)
		require.Len(t, capability.Errors, 1)
		require.Equal(t, transport.Timeout.String(), capability.Errors[0].Kind)
		require.Equal(t, ProtocolDetection.String(), capability.Errors[0].Stage)
		require.Equal(t, "timeout: read: i/o timeout", capability.Errors[0].Message)
	}
	require.False(t, engine.Unreachable(), "timeouts are not fatal")
}

func TestEliminationFiveCipherServer(t *testing.T) {
	offered := []names.CipherSuite{0x1301, 0x1302, 0x1303, 0x1304, 0x1305}
	server := startServer(t, simserver.Policy{
		Ciphers: map[names.Protocol][]names.CipherSuite{names.TLS1_3: {0x1303}},
		Groups:  map[names.Protocol][]names.Group{names.TLS1_3: {names.X25519}},
	})
	prober := newProber(t, server)
	engine := NewEngine(Config{}, newReport(server, []names.Protocol{names.TLS1_3}))
	chain := engine.cipherChain(names.TLS1_3).(*elimination[names.CipherSuite])
	chain.remaining = append([]names.CipherSuite(nil), offered...)

	for {
		req, ok := chain.Next()
		if !ok {
			break
		}
		chain.Observe(prober.Probe(context.Background(), req))
	}
	require.Equal(t, 2, chain.Rounds())
	require.Equal(t, []names.CipherSuite{0x1303}, chain.Accepted())

	hellos := server.Hellos()
	require.Len(t, hellos, 2)
	require.Equal(t, offered, hellos[0].CipherSuites)
	require.Equal(t, []names.CipherSuite{0x1301, 0x1302, 0x1304, 0x1305}, hellos[1].CipherSuites)
}

func TestOutcomeEqual(t *testing.T) {
	reset := func(port int) Outcome {
		return Outcome{Kind: TransportFailure, Failure: transport.ConnectionError, Reason: fmt.Sprintf("read tcp 127.0.0.1:%d: connection reset by peer", port)}
	}
	negotiated := Outcome{Kind: Negotiated, Protocol: names.TLS1_2, CipherSuite: 0xC02F, Group: names.X25519, HasGroup: true}
	tests := []struct {
		name  string
		a, b  Outcome
		equal bool
	}{
		{"same failure, different reason", reset(35606), reset(35616), true},
		{"same handshake", negotiated, negotiated, true},
		{"other cipher", negotiated, Outcome{Kind: Negotiated, Protocol: names.TLS1_2, CipherSuite: 0x009C, Group: names.X25519, HasGroup: true}, false},
		{"other failure", reset(1), Outcome{Kind: TransportFailure, Failure: transport.Timeout}, false},
		{"other alert", Outcome{Kind: Rejected, AlertLevel: names.AlertFatal, AlertDescription: names.AlertHandshakeFailure}, Outcome{Kind: Rejected, AlertLevel: names.AlertFatal, AlertDescription: names.AlertProtocolVersion}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.equal, tc.a.Equal(tc.b))
		})
	}
}

func TestEngineSNIIdenticalFailures(t *testing.T) {
	r := report.New("", transport.Settings{}, "", []names.Protocol{names.TLS1_2})
	engine := NewEngine(Config{Protocols: []names.Protocol{names.TLS1_2}, TestSNI: true, SNIHost: "example.com"}, r)
	engine.detections[names.TLS1_2] = Outcome{Kind: Negotiated, Protocol: names.TLS1_2, CipherSuite: 0xC02F}

	chains := engine.sniChains()
	require.Len(t, chains, 3)
	for i, chain := range chains {
		_, ok := chain.Next()
		require.True(t, ok)
		// every connection has its own local port
		chain.Observe(Outcome{
			Kind:    TransportFailure,
			Failure: transport.ConnectionError,
			Reason:  fmt.Sprintf("read tcp 127.0.0.1:%d->127.0.0.1:443: connection reset by peer", 35606+i),
		})
		require.Empty(t, engine.Complete(chain))
	}

	sni := r.Protocols[names.TLS1_2].SNI
	require.NotNil(t, sni)
	require.False(t, sni.HostSensitive, "identical failures reported as host sensitive")
	require.False(t, sni.RequiresSNI)
	require.False(t, sni.RejectsWrongSNI)
}

func TestEngineSkipsSNITestWithoutHost(t *testing.T) {
	engine := NewEngine(Config{Protocols: []names.Protocol{names.TLS1_2}, TestSNI: true}, report.New("", transport.Settings{}, "", nil))
	engine.detections[names.TLS1_2] = Outcome{Kind: Negotiated, Protocol: names.TLS1_2, CipherSuite: 0xC02F}
	require.Empty(t, engine.sniChains())
}
