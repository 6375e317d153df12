package enum

import (
	"fmt"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
)

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind uint8

const (
	// Negotiated means the server answered with a ServerHello or a
	// HelloRetryRequest.
	Negotiated OutcomeKind = iota + 1
	// Rejected means the server answered with an alert.
	Rejected
	// TransportFailure means no response could be read.
	TransportFailure
	// ParseFailure means the response could not be decoded.
	ParseFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Negotiated:
		return "negotiated"
	case Rejected:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	case ParseFailure:
		return "parse_failure"
	}
	return fmt.Sprintf("outcome(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the immutable result of a single probe. Only the fields of the
// variant named by Kind are meaningful.
type Outcome struct {
	Kind OutcomeKind

	// Negotiated
	Protocol    names.Protocol
	CipherSuite names.CipherSuite
	Group       names.Group
	HasGroup    bool
	HelloRetry  bool

	// Rejected
	AlertLevel       names.AlertLevel
	AlertDescription names.AlertDescription

	// TransportFailure
	Failure transport.FailureKind

	// TransportFailure and ParseFailure
	Reason string
}

// NegotiatedWith reports whether the outcome is a handshake on protocol p.
func (o Outcome) NegotiatedWith(p names.Protocol) bool {
	return o.Kind == Negotiated && o.Protocol == p
}

// Equal reports whether both outcomes carry the same server behavior.
// Reason is display text and is not compared.
func (o Outcome) Equal(other Outcome) bool {
	return o.Kind == other.Kind &&
		o.Protocol == other.Protocol &&
		o.CipherSuite == other.CipherSuite &&
		o.Group == other.Group &&
		o.HasGroup == other.HasGroup &&
		o.HelloRetry == other.HelloRetry &&
		o.AlertLevel == other.AlertLevel &&
		o.AlertDescription == other.AlertDescription &&
		o.Failure == other.Failure
}

// String describes the outcome on a single line.
func (o Outcome) String() string {
	switch o.Kind {
	case Negotiated:
		s := o.Protocol.String() + " " + o.CipherSuite.String()
		if o.HasGroup {
			s += " " + o.Group.String()
		}
		if o.HelloRetry {
			s += " (hello retry)"
		}
		return s
	case Rejected:
		return fmt.Sprintf("%s alert %s", o.AlertLevel, o.AlertDescription)
	case TransportFailure:
		if o.Reason == "" {
			return o.Failure.String()
		}
		return o.Failure.String() + ": " + o.Reason
	case ParseFailure:
		return "parse failure: " + o.Reason
	}
	return o.Kind.String()
}

// ErrorKind names the failure recorded for a terminal outcome.
func (o Outcome) ErrorKind() string {
	switch o.Kind {
	case TransportFailure:
		return o.Failure.String()
	case ParseFailure:
		return o.Kind.String()
	case Negotiated:
		return "unexpected_response"
	}
	return o.Kind.String()
}

// IsRejection reports whether the outcome is an authoritative "not
// supported" signal: an alert or a close without any data.
func (o Outcome) IsRejection() bool {
	switch o.Kind {
	case Rejected:
		return true
	case TransportFailure:
		return o.Failure == transport.Closed
	}
	return false
}
