package hello

import (
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"golang.org/x/crypto/cryptobyte"
)

// ClientHello is the decoded form of a ClientHello record, as seen by a
// server.
type ClientHello struct {
	RecordVersion     names.Protocol
	LegacyVersion     names.Protocol
	SessionID         []byte
	CipherSuites      []names.CipherSuite
	Compression       []byte
	ServerName        string
	Groups            []names.Group
	SupportedVersions []names.Protocol
	KeyShares         []names.Group
	Extensions        []uint16
}

// Protocols returns the protocol versions the client offers: the
// supported_versions list when present, else every known version between
// SSL 3.0 and the legacy version.
func (c *ClientHello) Protocols() []names.Protocol {
	if len(c.SupportedVersions) > 0 {
		return c.SupportedVersions
	}
	var out []names.Protocol
	for _, p := range names.AllProtocols {
		if p <= c.LegacyVersion && p != names.TLS1_3 {
			out = append(out, p)
		}
	}
	return out
}

// DecodeClientHello parses a single-record ClientHello.
func DecodeClientHello(data []byte) (*ClientHello, error) {
	s := cryptobyte.String(data)
	var contentType uint8
	var recordVersion uint16
	var record cryptobyte.String
	if !s.ReadUint8(&contentType) || !s.ReadUint16(&recordVersion) || !s.ReadUint16LengthPrefixed(&record) {
		return nil, &ParseError{Reason: "truncated record", Truncated: true}
	}
	if contentType != recordTypeHandshake {
		return nil, malformed("unexpected record type %d", contentType)
	}

	var msgType uint8
	var body cryptobyte.String
	if !record.ReadUint8(&msgType) || !record.ReadUint24LengthPrefixed(&body) || !record.Empty() {
		return nil, malformed("invalid handshake framing")
	}
	if msgType != typeClientHello {
		return nil, malformed("unexpected handshake message %d", msgType)
	}

	hello := &ClientHello{RecordVersion: names.Protocol(recordVersion)}
	var legacyVersion uint16
	var sessionID, suites, compression cryptobyte.String
	if !body.ReadUint16(&legacyVersion) ||
		!body.Skip(32) ||
		!body.ReadUint8LengthPrefixed(&sessionID) ||
		!body.ReadUint16LengthPrefixed(&suites) ||
		!body.ReadUint8LengthPrefixed(&compression) {
		return nil, malformed("client hello too short")
	}
	hello.LegacyVersion = names.Protocol(legacyVersion)
	hello.SessionID = append([]byte(nil), sessionID...)
	hello.Compression = append([]byte(nil), compression...)
	for !suites.Empty() {
		var suite uint16
		if !suites.ReadUint16(&suite) {
			return nil, malformed("odd cipher suite list")
		}
		hello.CipherSuites = append(hello.CipherSuites, names.CipherSuite(suite))
	}
	if body.Empty() {
		return hello, nil
	}

	var extensions cryptobyte.String
	if !body.ReadUint16LengthPrefixed(&extensions) || !body.Empty() {
		return nil, malformed("invalid client hello extensions block")
	}
	for !extensions.Empty() {
		var id uint16
		var ext cryptobyte.String
		if !extensions.ReadUint16(&id) || !extensions.ReadUint16LengthPrefixed(&ext) {
			return nil, malformed("invalid client hello extension")
		}
		hello.Extensions = append(hello.Extensions, id)
		if err := hello.decodeExtension(id, ext); err != nil {
			return nil, err
		}
	}
	return hello, nil
}

func (c *ClientHello) decodeExtension(id uint16, ext cryptobyte.String) error {
	switch id {
	case extServerName:
		var list cryptobyte.String
		if !ext.ReadUint16LengthPrefixed(&list) {
			return malformed("invalid server_name extension")
		}
		for !list.Empty() {
			var nameType uint8
			var host cryptobyte.String
			if !list.ReadUint8(&nameType) || !list.ReadUint16LengthPrefixed(&host) {
				return malformed("invalid server_name entry")
			}
			if nameType == 0 {
				c.ServerName = string(host)
			}
		}
	case extSupportedGroups:
		var list cryptobyte.String
		if !ext.ReadUint16LengthPrefixed(&list) {
			return malformed("invalid supported_groups extension")
		}
		for !list.Empty() {
			var group uint16
			if !list.ReadUint16(&group) {
				return malformed("odd supported_groups list")
			}
			c.Groups = append(c.Groups, names.Group(group))
		}
	case extSupportedVersions:
		var list cryptobyte.String
		if !ext.ReadUint8LengthPrefixed(&list) {
			return malformed("invalid supported_versions extension")
		}
		for !list.Empty() {
			var version uint16
			if !list.ReadUint16(&version) {
				return malformed("odd supported_versions list")
			}
			c.SupportedVersions = append(c.SupportedVersions, names.Protocol(version))
		}
	case extKeyShare:
		var list cryptobyte.String
		if !ext.ReadUint16LengthPrefixed(&list) {
			return malformed("invalid key_share extension")
		}
		for !list.Empty() {
			var group uint16
			var key cryptobyte.String
			if !list.ReadUint16(&group) || !list.ReadUint16LengthPrefixed(&key) {
				return malformed("invalid key_share entry")
			}
			c.KeyShares = append(c.KeyShares, names.Group(group))
		}
	}
	return nil
}
