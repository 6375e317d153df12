package hello

import (
	"crypto/rand"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"golang.org/x/crypto/cryptobyte"
)

// ServerFlight describes the server side of a negotiation. It is the
// counterpart of Parse and is used by simulated servers.
type ServerFlight struct {
	Version     names.Protocol
	CipherSuite names.CipherSuite
	// Group is sent in key_share for TLS 1.3 and in the ServerKeyExchange
	// for ECDHE suites of older versions.
	Group      names.Group
	HelloRetry bool
	// SplitRecords puts the ServerKeyExchange in a record of its own.
	SplitRecords bool
}

// Encode serializes the flight as it would appear on the wire.
func (f ServerFlight) Encode() ([]byte, error) {
	random := make([]byte, 32)
	if f.HelloRetry {
		copy(random, helloRetryRequestRandom)
	} else if _, err := rand.Read(random); err != nil {
		return nil, err
	}
	tls13 := f.Version >= names.TLS1_3
	legacyVersion := f.Version
	if tls13 {
		legacyVersion = names.TLS1_2
	}

	serverHello := cryptobyte.NewBuilder(nil)
	serverHello.AddUint8(typeServerHello)
	serverHello.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(uint16(legacyVersion))
		b.AddBytes(random)
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {})
		b.AddUint16(uint16(f.CipherSuite))
		b.AddUint8(0)
		if !tls13 {
			return
		}
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			addExtension(b, extSupportedVersions, func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(f.Version))
			})
			addExtension(b, extKeyShare, func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(f.Group))
				if f.HelloRetry {
					return
				}
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes(make([]byte, f.Group.KeyShareLength()))
				})
			})
		})
	})
	messages := [][]byte{serverHello.BytesOrPanic()}

	if !tls13 && f.CipherSuite.IsECDHE() {
		ske := cryptobyte.NewBuilder(nil)
		ske.AddUint8(typeServerKeyExchange)
		ske.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8(curveTypeNamed)
			b.AddUint16(uint16(f.Group))
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(make([]byte, 65))
			})
		})
		messages = append(messages, ske.BytesOrPanic())
	}
	if !tls13 {
		messages = append(messages, []byte{typeServerHelloDone, 0, 0, 0})
	}

	recordVersion := f.Version
	if tls13 {
		recordVersion = names.TLS1_2
	}
	if !f.SplitRecords {
		var joined []byte
		for _, msg := range messages {
			joined = append(joined, msg...)
		}
		messages = [][]byte{joined}
	}
	var out []byte
	for _, msg := range messages {
		out = append(out, EncodeRecord(recordTypeHandshake, recordVersion, msg)...)
	}
	return out, nil
}

// EncodeAlert serializes a single alert record.
func EncodeAlert(version names.Protocol, level names.AlertLevel, description names.AlertDescription) []byte {
	return EncodeRecord(recordTypeAlert, version, []byte{byte(level), byte(description)})
}

// EncodeRecord wraps payload in a record header.
func EncodeRecord(contentType uint8, version names.Protocol, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, contentType, byte(version>>8), byte(version), byte(len(payload)>>8), byte(len(payload)))
	return append(out, payload...)
}
