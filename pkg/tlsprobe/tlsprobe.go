// Package tlsprobe scans a single target for the protocols, cipher suites
// and groups it negotiates.
package tlsprobe

import (
	"context"

	"github.com/pkg/errors"
	"github.com/projectdiscovery/fastdialer/fastdialer"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/pkg/output/stats"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/certs"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/enum"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/jarm"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/pool"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/report"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	iputil "github.com/projectdiscovery/utils/ip"
)

// ErrTargetUnreachable is returned when no probe could connect to a target.
var ErrTargetUnreachable = errors.New("target unreachable")

// Service is a service for the tlsprobe module
type Service struct {
	options   *clients.Options
	dialer    transport.Dialer
	certs     *certs.Fetcher
	stats     *stats.Stats
	protocols []names.Protocol
}

// New creates a new tlsprobe service module dialing with the fastdialer of
// options, creating one when missing.
func New(options *clients.Options) (*Service, error) {
	if options.Fastdialer == nil {
		dialer, err := fastdialer.NewDialer(fastdialer.DefaultOptions)
		if err != nil {
			return nil, errors.Wrap(err, "could not create dialer")
		}
		options.Fastdialer = dialer
	}
	return NewWithDialer(options, options.Fastdialer)
}

// NewWithDialer creates a new tlsprobe service module using dialer.
func NewWithDialer(options *clients.Options, dialer transport.Dialer) (*Service, error) {
	protocols := names.AllProtocols
	if len(options.Protocols) > 0 {
		parsed, err := names.ParseProtocols(options.Protocols)
		if err != nil {
			return nil, errors.Wrap(err, "could not parse protocols")
		}
		protocols = parsed
	}
	if options.Proxy != "" {
		if _, err := transport.ParseProxy(options.Proxy); err != nil {
			return nil, errors.Wrap(err, "could not parse proxy")
		}
	}
	counters := stats.New()
	fetcher := certs.New(dialer)
	fetcher.Stats = counters
	return &Service{
		options:   options,
		dialer:    dialer,
		certs:     fetcher,
		stats:     counters,
		protocols: protocols,
	}, nil
}

// Stats returns the connection counters of every scan run by the service.
func (s *Service) Stats() *stats.Stats {
	return s.stats
}

// Protocols returns the protocols probed for every target.
func (s *Service) Protocols() []names.Protocol {
	return s.protocols
}

// Scan enumerates the capabilities of input. Probe failures are recorded in
// the report; an error is only returned when the target could not be
// scanned at all.
func (s *Service) Scan(ctx context.Context, input string, progress pool.ProgressFunc) (*report.ScanReport, error) {
	host, port, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	tr, err := transport.New(transport.Settings{
		Host:    host,
		Port:    port,
		Proxy:   s.options.Proxy,
		Timeout: s.options.Timeout,
	}, s.dialer)
	if err != nil {
		return nil, errors.Wrap(err, "could not create transport")
	}
	settings := tr.Settings()
	serverName := s.serverName(host)

	r := report.New(input, settings, serverName, s.protocols)
	sniHost := s.sniHost(host)
	if s.options.TestSNI && sniHost == "" {
		gologger.Verbose().Msgf("[%s] skipping sni test, no host name for an ip target", settings.Address())
	}
	engine := enum.NewEngine(enum.Config{
		Protocols:        s.protocols,
		ServerName:       serverName,
		SNIHost:          sniHost,
		EnumerateCiphers: !s.options.SkipCiphers,
		EnumerateGroups:  !s.options.SkipGroups,
		TestSNI:          s.options.TestSNI,
		CipherOrder:      s.options.CipherOrder,
	}, r)
	prober := enum.NewProber(tr, settings.Address())
	prober.Stats = s.stats
	coordinator := pool.New(s.options.MaxWorkers, prober, progress)

	gologger.Verbose().Msgf("[%s] probing %d protocols", settings.Address(), len(s.protocols))
	if err := coordinator.Run(ctx, engine.Start(), engine.Complete); err != nil {
		return nil, errors.Wrapf(err, "scan of %s interrupted", settings.Address())
	}
	if engine.Unreachable() {
		return nil, errors.Wrapf(ErrTargetUnreachable, "%s", settings.Address())
	}

	if !s.options.SkipCertificates && len(r.SupportedProtocols()) > 0 {
		chain, err := s.certs.Fetch(ctx, settings, serverName)
		if err != nil {
			r.AddError(0, report.ErrorSummary{Stage: "certificates", Kind: "handshake_failure", Message: err.Error()})
		} else {
			r.CertificateChain = chain
		}
	}
	if s.options.Jarm {
		hash, err := jarm.Hash(ctx, tr)
		if err != nil {
			r.AddError(0, report.ErrorSummary{Stage: "jarm", Kind: "fingerprint_failure", Message: err.Error()})
		} else {
			r.JarmHash = hash
		}
	}
	r.Finalize()
	return r, nil
}

// serverName returns the SNI value of the probes. IP literals are never
// sent as SNI.
func (s *Service) serverName(host string) string {
	switch {
	case s.options.NoSNI:
		return ""
	case s.options.ServerName != "":
		return s.options.ServerName
	case iputil.IsIP(host):
		return ""
	}
	return host
}

// sniHost is the name the SNI test treats as correct. IP literals are not
// valid SNI values, so an IP target without -sni has none.
func (s *Service) sniHost(host string) string {
	switch {
	case s.options.ServerName != "":
		return s.options.ServerName
	case iputil.IsIP(host):
		return ""
	}
	return host
}
