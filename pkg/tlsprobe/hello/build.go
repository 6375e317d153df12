// Package hello builds raw ClientHello records and parses the first flight of
// a server's reply (ServerHello, HelloRetryRequest, ServerKeyExchange or Alert)
// without completing a handshake.
package hello

import (
	"crypto/rand"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	errorutil "github.com/projectdiscovery/utils/errors"
	"golang.org/x/crypto/cryptobyte"
)

// Spec describes a single ClientHello.
type Spec struct {
	// Protocols is the set of protocol versions offered.
	Protocols []names.Protocol
	// ServerName is sent in the SNI extension. Empty means no SNI.
	ServerName string
	// CipherSuites are offered verbatim in this order.
	CipherSuites []names.CipherSuite
	// Groups are advertised in supported_groups. The first one with a key
	// share encoding also gets a TLS 1.3 key_share entry.
	Groups []names.Group
}

// MaxProtocol returns the highest offered protocol.
func (s Spec) MaxProtocol() names.Protocol {
	var max names.Protocol
	for _, p := range s.Protocols {
		if p > max {
			max = p
		}
	}
	return max
}

// MinProtocol returns the lowest offered protocol.
func (s Spec) MinProtocol() names.Protocol {
	var min names.Protocol
	for i, p := range s.Protocols {
		if i == 0 || p < min {
			min = p
		}
	}
	return min
}

// Offers reports whether p is among the offered protocols.
func (s Spec) Offers(p names.Protocol) bool {
	for _, offered := range s.Protocols {
		if offered == p {
			return true
		}
	}
	return false
}

// RecordVersion returns the version written in the record header: the lowest
// offered protocol capped at TLS 1.0, since some servers drop records whose
// version is higher than what they implement.
func (s Spec) RecordVersion() names.Protocol {
	if min := s.MinProtocol(); min < names.TLS1_0 {
		return min
	}
	return names.TLS1_0
}

// LegacyVersion returns the client_version field of the hello.
func (s Spec) LegacyVersion() names.Protocol {
	if s.Offers(names.TLS1_3) {
		return names.TLS1_2
	}
	return s.MaxProtocol()
}

// Build serializes spec into a single TLS record carrying a ClientHello.
func Build(spec Spec) ([]byte, error) {
	if len(spec.Protocols) == 0 {
		return nil, errorutil.NewWithTag("hello", "no protocol to offer")
	}
	if len(spec.CipherSuites) == 0 {
		return nil, errorutil.NewWithTag("hello", "no cipher suite to offer")
	}
	for _, p := range spec.Protocols {
		if !p.Known() {
			return nil, errorutil.NewWithTag("hello", "unknown protocol %s", p)
		}
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, errorutil.NewWithErr(err).WithTag("hello")
	}
	var sessionID []byte
	if spec.Offers(names.TLS1_3) {
		// middlebox compatibility mode (RFC 8446 appendix D.4)
		sessionID = make([]byte, 32)
		if _, err := rand.Read(sessionID); err != nil {
			return nil, errorutil.NewWithErr(err).WithTag("hello")
		}
	}
	share, err := selectKeyShare(spec)
	if err != nil {
		return nil, err
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(recordTypeHandshake)
	b.AddUint16(uint16(spec.RecordVersion()))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(typeClientHello)
		b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16(uint16(spec.LegacyVersion()))
			b.AddBytes(random)
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(sessionID)
			})
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, c := range spec.CipherSuites {
					b.AddUint16(uint16(c))
				}
			})
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0)
			})
			// SSL 3.0 predates extensions and some stacks reject them outright.
			if spec.MaxProtocol() > names.SSLv3 {
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					addExtensions(b, spec, share)
				})
			}
		})
	})
	record, err := b.Bytes()
	if err != nil {
		return nil, errorutil.NewWithErr(err).WithTag("hello").Msgf("could not serialize client hello")
	}
	if len(record)-5 > 1<<14 {
		return nil, errorutil.NewWithTag("hello", "client hello of %d bytes does not fit a single record", len(record)-5)
	}
	return record, nil
}

func addExtensions(b *cryptobyte.Builder, spec Spec, share *keyShare) {
	if spec.ServerName != "" {
		addExtension(b, extServerName, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0) // host_name
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes([]byte(spec.ServerName))
				})
			})
		})
	}
	addExtension(b, extECPointFormats, func(b *cryptobyte.Builder) {
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(0) // uncompressed
		})
	})
	if len(spec.Groups) > 0 {
		addExtension(b, extSupportedGroups, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, g := range spec.Groups {
					b.AddUint16(uint16(g))
				}
			})
		})
	}
	if spec.MaxProtocol() >= names.TLS1_2 {
		addExtension(b, extSignatureAlgorithms, func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, alg := range signatureAlgorithms {
					b.AddUint16(alg)
				}
			})
		})
	}
	addExtension(b, extExtendedMasterSecret, func(b *cryptobyte.Builder) {})
	addExtension(b, extRenegotiationInfo, func(b *cryptobyte.Builder) {
		b.AddUint8(0)
	})
	if !spec.Offers(names.TLS1_3) {
		return
	}
	addExtension(b, extSupportedVersions, func(b *cryptobyte.Builder) {
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			for _, p := range spec.Protocols {
				b.AddUint16(uint16(p))
			}
		})
	})
	addExtension(b, extPSKKeyExchangeModes, func(b *cryptobyte.Builder) {
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(pskModeDHE)
		})
	})
	addExtension(b, extKeyShare, func(b *cryptobyte.Builder) {
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			if share == nil {
				return
			}
			b.AddUint16(uint16(share.group))
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(share.data)
			})
		})
	})
}

func addExtension(b *cryptobyte.Builder, id uint16, body cryptobyte.BuilderContinuation) {
	b.AddUint16(id)
	b.AddUint16LengthPrefixed(body)
}
