// Package enum turns single handshake probes into enumerations of the
// protocols, cipher suites and groups a server accepts.
package enum

import (
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/hello"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/report"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"github.com/rs/xid"
)

const (
	sniCorrect = "correct"
	sniAbsent  = "absent"
	sniWrong   = "wrong"
)

// Config selects what the engine enumerates.
type Config struct {
	// Protocols are the candidate protocols, each detected independently.
	Protocols []names.Protocol
	// ServerName is sent in every probe, empty means no SNI.
	ServerName string
	// SNIHost is the correct name used by the SNI test.
	SNIHost string

	EnumerateCiphers bool
	EnumerateGroups  bool
	TestSNI          bool
	CipherOrder      bool
}

// Engine derives chains from completed chains and writes their results to
// the report. It is driven by a single goroutine.
type Engine struct {
	config Config
	report *report.ScanReport

	detections        map[names.Protocol]Outcome
	pendingDetections int
	sniResults        map[string]Outcome
	sniProtocol       names.Protocol
}

// NewEngine creates an engine writing into r.
func NewEngine(config Config, r *report.ScanReport) *Engine {
	return &Engine{
		config:     config,
		report:     r,
		detections: make(map[names.Protocol]Outcome, len(config.Protocols)),
		sniResults: make(map[string]Outcome, 3),
	}
}

// Report returns the report the engine writes to.
func (e *Engine) Report() *report.ScanReport {
	return e.report
}

// Start returns one protocol detection chain per candidate protocol.
func (e *Engine) Start() []Chain {
	chains := make([]Chain, 0, len(e.config.Protocols))
	for _, p := range e.config.Protocols {
		e.report.Capability(p)
		chains = append(chains, newSingle(ProtocolDetection, p, detectionSpec(p, e.config.ServerName), ""))
	}
	e.pendingDetections = len(chains)
	return chains
}

// detectionSpec offers only p with every default suite and group of p.
func detectionSpec(p names.Protocol, serverName string) hello.Spec {
	return hello.Spec{
		Protocols:    []names.Protocol{p},
		ServerName:   serverName,
		CipherSuites: names.CipherSuitesFor(p),
		Groups:       names.GroupsFor(p),
	}
}

// Complete records the result of a finished chain and returns the chains it
// unlocks.
func (e *Engine) Complete(chain Chain) []Chain {
	switch c := chain.(type) {
	case *single:
		if !c.observed {
			return nil
		}
		switch c.kind {
		case ProtocolDetection:
			return e.completeDetection(c)
		case SNITest:
			e.completeSNI(c)
		case CipherOrder:
			e.completeCipherOrder(c)
		}
	case *elimination[names.CipherSuite]:
		return e.completeCiphers(c)
	case *elimination[names.Group]:
		e.completeGroups(c)
	}
	return nil
}

// Unreachable reports whether every protocol detection failed to connect
// at all.
func (e *Engine) Unreachable() bool {
	if len(e.detections) == 0 {
		return false
	}
	for _, outcome := range e.detections {
		if outcome.Kind != TransportFailure {
			return false
		}
		if outcome.Failure != transport.ConnectionError && outcome.Failure != transport.ProxyRejected {
			return false
		}
	}
	return true
}

func (e *Engine) completeDetection(c *single) []Chain {
	p := c.protocol
	e.detections[p] = c.outcome
	e.pendingDetections--

	var chains []Chain
	if c.outcome.NegotiatedWith(p) {
		e.report.Capability(p).Supported = true
		gologger.Verbose().Msgf("[%s] %s supported, negotiated %s", e.report.Host, p, c.outcome.CipherSuite)
		if e.config.EnumerateCiphers {
			chains = append(chains, e.cipherChain(p))
		}
		if e.config.EnumerateGroups {
			if chain := e.groupChain(p); chain != nil {
				chains = append(chains, chain)
			}
		}
	} else {
		gologger.Verbose().Msgf("[%s] %s not supported: %s", e.report.Host, p, c.outcome)
		e.annotate(ProtocolDetection, p, 1, c.outcome)
	}

	if e.pendingDetections == 0 && e.config.TestSNI {
		chains = append(chains, e.sniChains()...)
	}
	return chains
}

func (e *Engine) cipherChain(p names.Protocol) Chain {
	groups := names.GroupsFor(p)
	return &elimination[names.CipherSuite]{
		kind:     CipherEnumeration,
		protocol: p,
		spec: func(remaining []names.CipherSuite) hello.Spec {
			return hello.Spec{
				Protocols:    []names.Protocol{p},
				ServerName:   e.config.ServerName,
				CipherSuites: remaining,
				Groups:       groups,
			}
		},
		pick: func(o Outcome) (names.CipherSuite, bool) {
			return o.CipherSuite, true
		},
		remaining: names.CipherSuitesFor(p),
	}
}

// groupChain returns nil for protocols without group negotiation.
func (e *Engine) groupChain(p names.Protocol) Chain {
	candidates := names.GroupsFor(p)
	if len(candidates) == 0 {
		return nil
	}
	ciphers := names.CipherSuitesFor(p)
	var parse hello.ParseOptions
	if p != names.TLS1_3 {
		// the curve is only visible in the ServerKeyExchange of ECDHE suites
		ciphers = names.ECDHECipherSuitesFor(p)
		parse.KeyExchange = true
	}
	if len(ciphers) == 0 {
		return nil
	}
	return &elimination[names.Group]{
		kind:     GroupEnumeration,
		protocol: p,
		spec: func(remaining []names.Group) hello.Spec {
			return hello.Spec{
				Protocols:    []names.Protocol{p},
				ServerName:   e.config.ServerName,
				CipherSuites: ciphers,
				Groups:       remaining,
			}
		},
		parse: parse,
		pick: func(o Outcome) (names.Group, bool) {
			return o.Group, o.HasGroup
		},
		remaining: candidates,
	}
}

func (e *Engine) completeCiphers(c *elimination[names.CipherSuite]) []Chain {
	p := c.protocol
	capability := e.report.Capability(p)
	capability.CipherSuites = append(capability.CipherSuites, c.Accepted()...)
	gologger.Verbose().Msgf("[%s] %s accepts %d cipher suites after %d rounds", e.report.Host, p, len(c.Accepted()), c.Rounds())
	if c.terminal != nil {
		e.annotate(CipherEnumeration, p, c.Rounds(), *c.terminal)
	}

	accepted := c.Accepted()
	if !e.config.CipherOrder || len(accepted) < 2 {
		return nil
	}
	reversed := make([]names.CipherSuite, len(accepted))
	for i, cipher := range accepted {
		reversed[len(accepted)-1-i] = cipher
	}
	spec := hello.Spec{
		Protocols:    []names.Protocol{p},
		ServerName:   e.config.ServerName,
		CipherSuites: reversed,
		Groups:       names.GroupsFor(p),
	}
	return []Chain{newSingle(CipherOrder, p, spec, "")}
}

func (e *Engine) completeGroups(c *elimination[names.Group]) {
	p := c.protocol
	capability := e.report.Capability(p)
	capability.Groups = append(capability.Groups, c.Accepted()...)
	gologger.Verbose().Msgf("[%s] %s accepts %d groups after %d rounds", e.report.Host, p, len(c.Accepted()), c.Rounds())
	if c.terminal != nil {
		e.annotate(GroupEnumeration, p, c.Rounds(), *c.terminal)
	}
}

func (e *Engine) completeCipherOrder(c *single) {
	p := c.protocol
	capability := e.report.Capability(p)
	accepted := capability.CipherSuites
	if !c.outcome.NegotiatedWith(p) || len(accepted) < 2 {
		e.annotate(CipherOrder, p, 1, c.outcome)
		return
	}
	var serverOrder bool
	switch c.outcome.CipherSuite {
	case accepted[0]:
		serverOrder = true
	case accepted[len(accepted)-1]:
		serverOrder = false
	default:
		e.annotate(CipherOrder, p, 1, c.outcome)
		return
	}
	capability.ServerCipherOrder = &serverOrder
}

// sniChains probes the newest supported protocol with the suite its
// detection negotiated, once per SNI variant. Without a host name there is
// no correct variant to compare against.
func (e *Engine) sniChains() []Chain {
	if e.config.SNIHost == "" {
		return nil
	}
	var best names.Protocol
	for p, outcome := range e.detections {
		if outcome.NegotiatedWith(p) && p > best {
			best = p
		}
	}
	if best == 0 {
		return nil
	}
	e.sniProtocol = best
	detected := e.detections[best]
	variants := []struct{ label, serverName string }{
		{sniCorrect, e.config.SNIHost},
		{sniAbsent, ""},
		{sniWrong, xid.New().String()},
	}
	chains := make([]Chain, 0, len(variants))
	for _, variant := range variants {
		spec := hello.Spec{
			Protocols:    []names.Protocol{best},
			ServerName:   variant.serverName,
			CipherSuites: []names.CipherSuite{detected.CipherSuite},
			Groups:       names.GroupsFor(best),
		}
		chains = append(chains, newSingle(SNITest, best, spec, variant.label))
	}
	return chains
}

func (e *Engine) completeSNI(c *single) {
	e.sniResults[c.label] = c.outcome
	if len(e.sniResults) < 3 {
		return
	}
	p := e.sniProtocol
	correct, absent, wrong := e.sniResults[sniCorrect], e.sniResults[sniAbsent], e.sniResults[sniWrong]
	behavior := &report.SNIBehavior{
		WithSNI:         correct.String(),
		WithoutSNI:      absent.String(),
		WrongSNI:        wrong.String(),
		RequiresSNI:     correct.NegotiatedWith(p) && !absent.NegotiatedWith(p),
		RejectsWrongSNI: correct.NegotiatedWith(p) && !wrong.NegotiatedWith(p),
	}
	behavior.HostSensitive = !correct.Equal(absent) || !correct.Equal(wrong)
	e.report.Capability(p).SNI = behavior
	gologger.Verbose().Msgf("[%s] %s sni test: requires=%v rejects_wrong=%v host_sensitive=%v", e.report.Host, p, behavior.RequiresSNI, behavior.RejectsWrongSNI, behavior.HostSensitive)
}

// annotate records terminal outcomes that are not a plain rejection.
func (e *Engine) annotate(kind ChainKind, p names.Protocol, round int, outcome Outcome) {
	if outcome.IsRejection() {
		return
	}
	if kind == ProtocolDetection && outcome.Kind == Negotiated {
		// a different protocol was negotiated, which is a plain rejection of p
		return
	}
	e.report.AddError(p, report.ErrorSummary{
		Stage:   kind.String(),
		Round:   round,
		Kind:    outcome.ErrorKind(),
		Message: outcome.String(),
	})
}
