package clients

import (
	"github.com/projectdiscovery/tlsprobe/assets"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
)

// CipherSecLevel
type CipherSecLevel uint

const (
	All CipherSecLevel = iota //Default
	Weak
	Insecure
	Secure
	Unknown
)

// String returns the level name.
func (l CipherSecLevel) String() string {
	switch l {
	case All:
		return "all"
	case Weak:
		return "weak"
	case Insecure:
		return "insecure"
	case Secure:
		return "secure"
	}
	return "unknown"
}

// GetCiphersWithLevel returns the suites of cipherList that have one of the
// given levels, keeping the order of cipherList.
func GetCiphersWithLevel(cipherList []names.CipherSuite, secLevel ...CipherSecLevel) []names.CipherSuite {
	if len(secLevel) == 0 {
		return cipherList
	}
	wanted := map[CipherSecLevel]struct{}{}
	for _, level := range secLevel {
		if level == All {
			return cipherList
		}
		wanted[level] = struct{}{}
	}
	toEnumerate := []names.CipherSuite{}
	for _, cipher := range cipherList {
		if _, ok := wanted[GetCipherLevel(cipher)]; ok {
			toEnumerate = append(toEnumerate, cipher)
		}
	}
	return toEnumerate
}

// GetCipherLevel returns security level of given cipher
func GetCipherLevel(cipher names.CipherSuite) CipherSecLevel {
	switch assets.CipherSecLevel[cipher.String()] {
	case "Recommended", "Secure":
		return Secure
	case "Insecure":
		return Insecure
	case "Weak":
		return Weak
	}
	return Unknown
}
