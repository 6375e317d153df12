package enum

import (
	"context"
	"errors"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/output/stats"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/hello"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
)

// Exchanger sends one payload and returns the bytes read back.
// *transport.Transport satisfies it.
type Exchanger interface {
	Exchange(ctx context.Context, payload []byte, complete func([]byte) bool) ([]byte, error)
}

// Request is a single probe of a chain.
type Request struct {
	Chain    ChainKind
	Protocol names.Protocol
	// Round starts at 1 for the first probe of a chain.
	Round int
	Spec  hello.Spec
	Parse hello.ParseOptions
}

// Prober runs one request/response cycle and classifies its result.
type Prober struct {
	exchanger Exchanger
	target    string
	// Stats, when set, counts every probe
	Stats *stats.Stats
}

// NewProber creates a prober sending through exchanger. target is only used
// for logging.
func NewProber(exchanger Exchanger, target string) *Prober {
	return &Prober{exchanger: exchanger, target: target}
}

// Probe never fails, every error ends up in the returned outcome.
func (p *Prober) Probe(ctx context.Context, req Request) Outcome {
	outcome := p.probe(ctx, req)
	p.Stats.IncrementProbes()
	if outcome.Kind == TransportFailure || outcome.Kind == ParseFailure {
		p.Stats.IncrementFailedProbes()
	}
	gologger.Debug().Label("probe").Msgf("%s %s %s round %d: %s", p.target, req.Chain, req.Protocol, req.Round, outcome)
	return outcome
}

func (p *Prober) probe(ctx context.Context, req Request) Outcome {
	payload, err := hello.Build(req.Spec)
	if err != nil {
		return Outcome{Kind: ParseFailure, Reason: "client hello: " + err.Error()}
	}

	data, err := p.exchanger.Exchange(ctx, payload, func(b []byte) bool {
		return hello.Complete(b, req.Parse)
	})
	if err != nil {
		kind := transport.KindOf(err)
		if kind == 0 {
			kind = transport.ConnectionError
		}
		return Outcome{Kind: TransportFailure, Failure: kind, Reason: transport.ReasonOf(err)}
	}

	resp, err := hello.Parse(data, req.Parse)
	if err != nil {
		var parseErr *hello.ParseError
		if errors.As(err, &parseErr) {
			return Outcome{Kind: ParseFailure, Reason: parseErr.Reason}
		}
		return Outcome{Kind: ParseFailure, Reason: err.Error()}
	}

	switch resp.Kind {
	case hello.KindAlert:
		return Outcome{Kind: Rejected, AlertLevel: resp.AlertLevel, AlertDescription: resp.AlertDescription}
	case hello.KindServerHello:
		return Outcome{
			Kind:        Negotiated,
			Protocol:    resp.Version,
			CipherSuite: resp.CipherSuite,
			Group:       resp.Group,
			HasGroup:    resp.HasGroup,
			HelloRetry:  resp.HelloRetry,
		}
	}
	return Outcome{Kind: ParseFailure, Reason: "unknown response kind"}
}
