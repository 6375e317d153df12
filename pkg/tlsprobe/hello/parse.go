package hello

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"golang.org/x/crypto/cryptobyte"
)

// ResponseKind tells a ServerHello apart from an Alert.
type ResponseKind uint8

const (
	KindServerHello ResponseKind = iota + 1
	KindAlert
)

// Response is the decoded first flight of a server.
type Response struct {
	Kind ResponseKind

	// set for KindServerHello
	Version     names.Protocol
	CipherSuite names.CipherSuite
	Group       names.Group
	HasGroup    bool
	HelloRetry  bool

	// set for KindAlert
	AlertLevel       names.AlertLevel
	AlertDescription names.AlertDescription
}

// ParseOptions tune how far Parse reads into the server flight.
type ParseOptions struct {
	// KeyExchange continues past a TLS <= 1.2 ServerHello that selected an
	// ECDHE suite until the ServerKeyExchange, to learn the server's curve.
	KeyExchange bool
}

// ParseError is returned for any response that cannot be decoded.
type ParseError struct {
	Reason string
	// Truncated is set when more bytes could still turn the response into
	// a valid one.
	Truncated bool
}

func (e *ParseError) Error() string {
	return "malformed server response: " + e.Reason
}

func malformed(format string, args ...interface{}) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Complete reports whether data already holds a decidable response, valid or
// not, so the caller can stop reading.
func Complete(data []byte, opts ParseOptions) bool {
	_, err := Parse(data, opts)
	var parseErr *ParseError
	return !errors.As(err, &parseErr) || !parseErr.Truncated
}

// Parse decodes the server's reply to a ClientHello. It never panics on
// arbitrary input.
func Parse(data []byte, opts ParseOptions) (*Response, error) {
	if len(data) == 0 {
		return nil, &ParseError{Reason: "empty response", Truncated: true}
	}

	s := cryptobyte.String(data)
	var handshake []byte
	// eof is set when the input ran out rather than ending on a non
	// handshake record.
	eof := true
	for !s.Empty() {
		var contentType uint8
		var length uint16
		if !s.ReadUint8(&contentType) || !s.Skip(2) || !s.ReadUint16(&length) {
			if len(handshake) > 0 {
				break
			}
			return nil, &ParseError{Reason: "truncated record header", Truncated: true}
		}
		if length > maxRecordPayload {
			return nil, malformed("record length %d exceeds limit", length)
		}

		switch contentType {
		case recordTypeAlert:
			if len(handshake) > 0 {
				eof = false
				break
			}
			if length < 2 {
				return nil, malformed("alert record of %d bytes", length)
			}
			var level, description uint8
			if !s.ReadUint8(&level) || !s.ReadUint8(&description) {
				return nil, &ParseError{Reason: "truncated alert", Truncated: true}
			}
			return &Response{
				Kind:             KindAlert,
				AlertLevel:       names.AlertLevel(level),
				AlertDescription: names.AlertDescription(description),
			}, nil
		case recordTypeHandshake:
			var payload []byte
			if !s.ReadBytes(&payload, int(length)) {
				// keep the partial payload, the messages needed may already be in it
				handshake = append(handshake, s...)
				s = nil
				continue
			}
			handshake = append(handshake, payload...)
			continue
		default:
			if len(handshake) > 0 {
				eof = false
				break
			}
			return nil, malformed("unexpected record type %d", contentType)
		}
		break
	}

	short := func(what string) error {
		return &ParseError{Reason: "truncated " + what, Truncated: eof}
	}

	hs := cryptobyte.String(handshake)
	var msgType uint8
	var body cryptobyte.String
	if !hs.ReadUint8(&msgType) {
		return nil, short("handshake header")
	}
	if msgType != typeServerHello {
		return nil, malformed("unexpected handshake message %d", msgType)
	}
	if !hs.ReadUint24LengthPrefixed(&body) {
		return nil, short("server hello")
	}
	resp, err := parseServerHello(body)
	if err != nil {
		return nil, err
	}
	if !opts.KeyExchange || resp.HelloRetry || resp.HasGroup || resp.Version >= names.TLS1_3 || !resp.CipherSuite.IsECDHE() {
		return resp, nil
	}

	for {
		if !hs.ReadUint8(&msgType) || !hs.ReadUint24LengthPrefixed(&body) {
			if !eof {
				// the server gave up after its hello, the curve stays unknown
				return resp, nil
			}
			return nil, short("server key exchange")
		}
		switch msgType {
		case typeServerKeyExchange:
			var curveType uint8
			var curve uint16
			if !body.ReadUint8(&curveType) || curveType != curveTypeNamed || !body.ReadUint16(&curve) {
				return nil, malformed("server key exchange without named curve")
			}
			resp.Group = names.Group(curve)
			resp.HasGroup = true
			return resp, nil
		case typeServerHelloDone:
			return resp, nil
		}
	}
}

func parseServerHello(body cryptobyte.String) (*Response, error) {
	var legacyVersion, cipherSuite uint16
	var random []byte
	var sessionID cryptobyte.String
	var compression uint8
	if !body.ReadUint16(&legacyVersion) ||
		!body.ReadBytes(&random, 32) ||
		!body.ReadUint8LengthPrefixed(&sessionID) ||
		!body.ReadUint16(&cipherSuite) ||
		!body.ReadUint8(&compression) {
		return nil, malformed("server hello too short")
	}
	resp := &Response{
		Kind:        KindServerHello,
		Version:     names.Protocol(legacyVersion),
		CipherSuite: names.CipherSuite(cipherSuite),
		HelloRetry:  bytes.Equal(random, helloRetryRequestRandom),
	}
	if body.Empty() {
		return resp, nil
	}

	var extensions cryptobyte.String
	if !body.ReadUint16LengthPrefixed(&extensions) || !body.Empty() {
		return nil, malformed("invalid server hello extensions block")
	}
	for !extensions.Empty() {
		var id uint16
		var data cryptobyte.String
		if !extensions.ReadUint16(&id) || !extensions.ReadUint16LengthPrefixed(&data) {
			return nil, malformed("invalid server hello extension")
		}
		switch id {
		case extSupportedVersions:
			var version uint16
			if !data.ReadUint16(&version) {
				return nil, malformed("invalid supported_versions extension")
			}
			resp.Version = names.Protocol(version)
		case extKeyShare:
			// a HelloRetryRequest carries only the group, a ServerHello the
			// group followed by the key exchange
			var group uint16
			if !data.ReadUint16(&group) {
				return nil, malformed("invalid key_share extension")
			}
			resp.Group = names.Group(group)
			resp.HasGroup = true
		}
	}
	return resp, nil
}
