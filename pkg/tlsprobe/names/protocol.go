// Package names contains the static tables mapping TLS wire identifiers
// (protocol versions, cipher suites, groups and alerts) to symbolic names.
package names

import (
	"fmt"
	"strings"
)

// Protocol is a TLS/SSL protocol version as it appears on the wire.
type Protocol uint16

// Supported protocol versions
const (
	SSLv3  Protocol = 0x0300
	TLS1_0 Protocol = 0x0301
	TLS1_1 Protocol = 0x0302
	TLS1_2 Protocol = 0x0303
	TLS1_3 Protocol = 0x0304
)

// AllProtocols lists every protocol version the engine can probe, oldest first.
var AllProtocols = []Protocol{SSLv3, TLS1_0, TLS1_1, TLS1_2, TLS1_3}

var protocolNames = map[Protocol]string{
	SSLv3:  "SSLv3",
	TLS1_0: "TLS1_0",
	TLS1_1: "TLS1_1",
	TLS1_2: "TLS1_2",
	TLS1_3: "TLS1_3",
}

// protocolAliases accepts the spellings used by other tools (tlsx, openssl).
var protocolAliases = map[string]Protocol{
	"sslv3": SSLv3, "ssl3": SSLv3, "ssl30": SSLv3,
	"tls1_0": TLS1_0, "tls10": TLS1_0, "tls1.0": TLS1_0, "tls1": TLS1_0,
	"tls1_1": TLS1_1, "tls11": TLS1_1, "tls1.1": TLS1_1,
	"tls1_2": TLS1_2, "tls12": TLS1_2, "tls1.2": TLS1_2,
	"tls1_3": TLS1_3, "tls13": TLS1_3, "tls1.3": TLS1_3,
}

func (p Protocol) String() string {
	if name, ok := protocolNames[p]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(p))
}

// Known reports whether p is one of AllProtocols.
func (p Protocol) Known() bool {
	_, ok := protocolNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler so protocols can be used as
// json map keys.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocol(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProtocol converts a protocol name into its wire value.
func ParseProtocol(name string) (Protocol, error) {
	if p, ok := protocolAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("invalid protocol name %q, must be one of %s", name, strings.Join(ProtocolNames(), ", "))
}

// ParseProtocols parses a list of protocol names, dropping blanks and duplicates.
func ParseProtocols(values []string) ([]Protocol, error) {
	seen := make(map[Protocol]struct{}, len(values))
	protocols := make([]Protocol, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		p, err := ParseProtocol(value)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		protocols = append(protocols, p)
	}
	return protocols, nil
}

// ProtocolNames returns the canonical names of AllProtocols.
func ProtocolNames() []string {
	out := make([]string, 0, len(AllProtocols))
	for _, p := range AllProtocols {
		out = append(out, p.String())
	}
	return out
}
