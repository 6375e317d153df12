package enum

import (
	"fmt"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/hello"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
)

// ChainKind names the enumeration a chain belongs to.
type ChainKind uint8

const (
	ProtocolDetection ChainKind = iota + 1
	CipherEnumeration
	GroupEnumeration
	SNITest
	CipherOrder
)

func (k ChainKind) String() string {
	switch k {
	case ProtocolDetection:
		return "protocol_detection"
	case CipherEnumeration:
		return "cipher_enumeration"
	case GroupEnumeration:
		return "group_enumeration"
	case SNITest:
		return "sni_test"
	case CipherOrder:
		return "cipher_order"
	}
	return fmt.Sprintf("chain(%d)", uint8(k))
}

// Chain is a strictly sequential series of probes. Next is called again only
// after the outcome of the previous request was passed to Observe.
type Chain interface {
	Kind() ChainKind
	Protocol() names.Protocol
	// Next returns the next request, false once the chain is finished.
	Next() (Request, bool)
	Observe(outcome Outcome)
	// Remaining estimates how many requests are still to be issued.
	Remaining() int
}

// single is a chain of exactly one probe.
type single struct {
	kind     ChainKind
	protocol names.Protocol
	spec     hello.Spec
	issued   bool
	outcome  Outcome
	observed bool
	// label tells apart sibling single probes, like the SNI variants.
	label string
}

func newSingle(kind ChainKind, protocol names.Protocol, spec hello.Spec, label string) *single {
	return &single{kind: kind, protocol: protocol, spec: spec, label: label}
}

func (s *single) Kind() ChainKind          { return s.kind }
func (s *single) Protocol() names.Protocol { return s.protocol }

func (s *single) Next() (Request, bool) {
	if s.issued {
		return Request{}, false
	}
	s.issued = true
	return Request{Chain: s.kind, Protocol: s.protocol, Round: 1, Spec: s.spec}, true
}

func (s *single) Observe(outcome Outcome) {
	s.outcome = outcome
	s.observed = true
}

func (s *single) Remaining() int {
	if s.issued {
		return 0
	}
	return 1
}

// elimination is the Idle -> Probing -> {Accepted -> Probing | Stopped}
// state machine shared by cipher and group enumeration. Every round offers
// the whole remaining candidate list; the item the server picks is accepted
// and removed, anything else stops the chain.
type elimination[T comparable] struct {
	kind     ChainKind
	protocol names.Protocol
	// spec builds the hello for the given remaining candidates.
	spec  func(remaining []T) hello.Spec
	parse hello.ParseOptions
	// pick extracts the selected candidate from a negotiated outcome.
	pick func(Outcome) (T, bool)

	remaining []T
	accepted  []T
	rounds    int
	probing   bool
	stopped   bool
	// terminal is the outcome that ended the chain, if any.
	terminal *Outcome
}

func (e *elimination[T]) Kind() ChainKind          { return e.kind }
func (e *elimination[T]) Protocol() names.Protocol { return e.protocol }

func (e *elimination[T]) Next() (Request, bool) {
	if e.stopped || e.probing || len(e.remaining) == 0 {
		return Request{}, false
	}
	e.probing = true
	e.rounds++
	offered := append([]T(nil), e.remaining...)
	return Request{Chain: e.kind, Protocol: e.protocol, Round: e.rounds, Spec: e.spec(offered), Parse: e.parse}, true
}

func (e *elimination[T]) Observe(outcome Outcome) {
	e.probing = false
	if outcome.NegotiatedWith(e.protocol) {
		if item, ok := e.pick(outcome); ok {
			if idx := indexOf(e.remaining, item); idx >= 0 {
				e.accepted = append(e.accepted, item)
				e.remaining = append(e.remaining[:idx:idx], e.remaining[idx+1:]...)
				return
			}
		}
	}
	e.stopped = true
	e.terminal = &outcome
}

func (e *elimination[T]) Remaining() int {
	if e.stopped {
		return 0
	}
	n := len(e.remaining)
	if e.probing {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

// Accepted returns the accepted candidates in selection order.
func (e *elimination[T]) Accepted() []T {
	return e.accepted
}

// Rounds returns how many probes the chain issued.
func (e *elimination[T]) Rounds() int {
	return e.rounds
}

func indexOf[T comparable](items []T, item T) int {
	for i, v := range items {
		if v == item {
			return i
		}
	}
	return -1
}
