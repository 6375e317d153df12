// Package report holds the result model of a scan. A ScanReport is written
// by a single goroutine while the scan runs and is read-only afterwards.
package report

import (
	"strings"
	"time"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ScanReport is the result of scanning a single target.
type ScanReport struct {
	// Timestamp is the time the scan finished
	Timestamp *time.Time `json:"timestamp,omitempty"`
	// Input is the target as given by the user
	Input string `json:"input,omitempty"`
	// Host is the normalized host of the target
	Host string `json:"host"`
	// Port is the port of the target
	Port int `json:"port"`
	// Proxy is the HTTP proxy used to reach the target
	Proxy string `json:"proxy,omitempty"`
	// Timeout is the per connection timeout in seconds
	Timeout float64 `json:"timeout"`
	// ServerName is the value sent in the SNI extension, if any
	ServerName string `json:"server_name,omitempty"`
	// Protocols maps every probed protocol to its capabilities
	Protocols map[names.Protocol]*ProtocolCapability `json:"protocols"`
	// CertificateChain is the chain presented by the server, leaf first
	CertificateChain []*clients.CertificateResponse `json:"certificate_chain,omitempty"`
	// JarmHash is the JARM fingerprint of the server
	JarmHash string `json:"jarm_hash,omitempty"`
	// Errors lists failures of the certificate and fingerprint collaborators
	Errors []ErrorSummary `json:"errors,omitempty"`
}

// ProtocolCapability describes what a server accepts for one protocol.
type ProtocolCapability struct {
	// Supported is true when the server negotiated this protocol
	Supported bool `json:"supported"`
	// CipherSuites are the accepted suites in the order they were selected
	CipherSuites []names.CipherSuite `json:"cipher_suites"`
	// Groups are the accepted key exchange groups in the order they were selected
	Groups []names.Group `json:"groups"`
	// ServerCipherOrder is true when the server imposes its own preference
	ServerCipherOrder *bool `json:"server_cipher_order,omitempty"`
	// SNI is the outcome of the SNI behaviour test
	SNI *SNIBehavior `json:"sni,omitempty"`
	// Errors lists probes that failed for this protocol
	Errors []ErrorSummary `json:"errors,omitempty"`
}

// SNIBehavior compares handshakes with the correct, no and a wrong server
// name.
type SNIBehavior struct {
	WithSNI    string `json:"with_sni"`
	WithoutSNI string `json:"without_sni"`
	WrongSNI   string `json:"wrong_sni"`
	// RequiresSNI is set when the server only negotiates with SNI present
	RequiresSNI bool `json:"requires_sni"`
	// RejectsWrongSNI is set when an unknown name fails the handshake
	RejectsWrongSNI bool `json:"rejects_wrong_sni"`
	// HostSensitive is set when the negotiated parameters change with the name
	HostSensitive bool `json:"host_sensitive"`
}

// ErrorSummary records a probe or collaborator failure.
type ErrorSummary struct {
	Stage   string `json:"stage"`
	Round   int    `json:"round,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// New creates an empty report with one capability entry per protocol.
func New(input string, settings transport.Settings, serverName string, protocols []names.Protocol) *ScanReport {
	r := &ScanReport{
		Input:      input,
		Host:       settings.Host,
		Port:       settings.Port,
		Proxy:      settings.Proxy,
		Timeout:    settings.Timeout.Seconds(),
		ServerName: serverName,
		Protocols:  make(map[names.Protocol]*ProtocolCapability, len(protocols)),
	}
	for _, p := range protocols {
		r.Capability(p)
	}
	return r
}

// Capability returns the entry for p, creating it when missing.
func (r *ScanReport) Capability(p names.Protocol) *ProtocolCapability {
	if c, ok := r.Protocols[p]; ok {
		return c
	}
	c := &ProtocolCapability{
		CipherSuites: []names.CipherSuite{},
		Groups:       []names.Group{},
	}
	r.Protocols[p] = c
	return c
}

// SupportedProtocols returns the supported protocols, oldest first.
func (r *ScanReport) SupportedProtocols() []names.Protocol {
	var out []names.Protocol
	for p, c := range r.Protocols {
		if c.Supported {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// ProbedProtocols returns every protocol of the report, oldest first.
func (r *ScanReport) ProbedProtocols() []names.Protocol {
	out := maps.Keys(r.Protocols)
	slices.Sort(out)
	return out
}

// AcceptedCipherSuites returns every accepted suite across protocols without
// duplicates.
func (r *ScanReport) AcceptedCipherSuites() []names.CipherSuite {
	seen := map[names.CipherSuite]struct{}{}
	var out []names.CipherSuite
	for _, p := range r.SupportedProtocols() {
		for _, c := range r.Protocols[p].CipherSuites {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// SupportsGOST reports whether any accepted suite is a GOST suite.
func (r *ScanReport) SupportsGOST() bool {
	for _, c := range r.AcceptedCipherSuites() {
		if strings.Contains(c.String(), "GOST") {
			return true
		}
	}
	return false
}

// AddError annotates protocol p, or the whole report when p is zero.
func (r *ScanReport) AddError(p names.Protocol, summary ErrorSummary) {
	if p == 0 {
		r.Errors = append(r.Errors, summary)
		return
	}
	c := r.Capability(p)
	c.Errors = append(c.Errors, summary)
}

// Finalize stamps the report.
func (r *ScanReport) Finalize() {
	now := time.Now()
	r.Timestamp = &now
}
