package names

import (
	"fmt"
	"strings"
)

// Group is a named group (elliptic curve or finite field group) used for key
// exchange, as listed in the supported_groups extension.
type Group uint16

// Groups with real key share generation.
const (
	Secp256r1 Group = 23
	Secp384r1 Group = 24
	Secp521r1 Group = 25
	X25519    Group = 29
	X448      Group = 30
)

type groupEntry struct {
	id   Group
	name string
	// shareLen is the size of a TLS 1.3 key_share for the group, 0 when the
	// group cannot appear in a TLS 1.3 key_share.
	shareLen int
}

// groups is ordered by default client preference.
var groups = []groupEntry{
	{X25519, "x25519", 32},
	{Secp256r1, "secp256r1", 65},
	{Secp384r1, "secp384r1", 97},
	{Secp521r1, "secp521r1", 133},
	{X448, "x448", 56},
	{0x11EC, "X25519MLKEM768", 1216},
	{0x11EB, "SecP256r1MLKEM768", 1249},
	{0x6399, "X25519Kyber768Draft00", 1216},
	{31, "brainpoolP256r1tls13", 65},
	{32, "brainpoolP384r1tls13", 97},
	{33, "brainpoolP512r1tls13", 129},
	{34, "GC256A", 64},
	{35, "GC256B", 64},
	{36, "GC256C", 64},
	{37, "GC256D", 64},
	{38, "GC512A", 128},
	{39, "GC512B", 128},
	{40, "GC512C", 128},
	{41, "curveSM2", 65},
	{256, "ffdhe2048", 256},
	{257, "ffdhe3072", 384},
	{258, "ffdhe4096", 512},
	{259, "ffdhe6144", 768},
	{260, "ffdhe8192", 1024},
	{22, "secp256k1", 0},
	{26, "brainpoolP256r1", 0},
	{27, "brainpoolP384r1", 0},
	{28, "brainpoolP512r1", 0},
	{21, "secp224r1", 0},
	{20, "secp224k1", 0},
	{19, "secp192r1", 0},
	{18, "secp192k1", 0},
	{17, "secp160r2", 0},
	{16, "secp160r1", 0},
	{15, "secp160k1", 0},
	{14, "sect571r1", 0},
	{13, "sect571k1", 0},
	{12, "sect409r1", 0},
	{11, "sect409k1", 0},
	{10, "sect283r1", 0},
	{9, "sect283k1", 0},
	{8, "sect239k1", 0},
	{7, "sect233r1", 0},
	{6, "sect233k1", 0},
	{5, "sect193r2", 0},
	{4, "sect193r1", 0},
	{3, "sect163r2", 0},
	{2, "sect163r1", 0},
	{1, "sect163k1", 0},
}

var (
	groupsByID = map[Group]groupEntry{}
	groupIDs   = map[string]Group{}
)

func init() {
	for _, entry := range groups {
		groupsByID[entry.id] = entry
		groupIDs[strings.ToLower(entry.name)] = entry.id
	}
}

func (g Group) String() string {
	if entry, ok := groupsByID[g]; ok {
		return entry.name
	}
	return fmt.Sprintf("0x%04x", uint16(g))
}

// MarshalText implements encoding.TextMarshaler.
func (g Group) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Group) UnmarshalText(text []byte) error {
	parsed, err := ParseGroup(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGroup looks up a group by name or 0xNNNN notation.
func ParseGroup(name string) (Group, error) {
	if id, ok := groupIDs[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id, nil
	}
	var raw uint16
	if _, err := fmt.Sscanf(strings.ToLower(name), "0x%04x", &raw); err == nil {
		return Group(raw), nil
	}
	return 0, fmt.Errorf("unknown group %q", name)
}

// KeyShareLength returns the TLS 1.3 key_share length of the group, 0 when
// the group has no TLS 1.3 key share encoding.
func (g Group) KeyShareLength() int {
	return groupsByID[g].shareLen
}

// CanGenerateKey reports whether a real public key can be generated for g.
func (g Group) CanGenerateKey() bool {
	switch g {
	case X25519, Secp256r1, Secp384r1, Secp521r1:
		return true
	}
	return false
}

// IsNamedCurve reports whether g is one of the RFC 4492 / RFC 8422 elliptic
// curves usable by ECDHE cipher suites in TLS <= 1.2.
func (g Group) IsNamedCurve() bool {
	return g >= 1 && g <= 30
}

// GroupsFor returns the candidate groups for protocol p in default client
// preference order. SSLv3 has no extensions and therefore no groups.
func GroupsFor(p Protocol) []Group {
	if p == SSLv3 {
		return nil
	}
	var out []Group
	for _, entry := range groups {
		switch {
		case p == TLS1_3:
			if entry.shareLen > 0 {
				out = append(out, entry.id)
			}
		default:
			if entry.id.IsNamedCurve() {
				out = append(out, entry.id)
			}
		}
	}
	return out
}

// AllGroups returns every group of the table.
func AllGroups() []Group {
	out := make([]Group, 0, len(groups))
	for _, entry := range groups {
		out = append(out, entry.id)
	}
	return out
}
