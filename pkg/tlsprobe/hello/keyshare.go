package hello

import (
	"crypto/ecdh"
	"crypto/rand"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	errorutil "github.com/projectdiscovery/utils/errors"
	"golang.org/x/crypto/curve25519"
)

type keyShare struct {
	group names.Group
	data  []byte
}

// selectKeyShare picks the group sent in the TLS 1.3 key_share extension:
// the first offered group with a real key generator, else the first offered
// group with a known share length. The server never gets to use the share, it
// only has to look plausible.
func selectKeyShare(spec Spec) (*keyShare, error) {
	if !spec.Offers(names.TLS1_3) {
		return nil, nil
	}
	for _, g := range spec.Groups {
		if g.CanGenerateKey() {
			return newKeyShare(g)
		}
	}
	for _, g := range spec.Groups {
		if g.KeyShareLength() > 0 {
			return newKeyShare(g)
		}
	}
	return nil, nil
}

func newKeyShare(group names.Group) (*keyShare, error) {
	data, err := publicKey(group)
	if err != nil {
		return nil, errorutil.NewWithTag("hello", "could not generate %s key share", group).Wrap(err)
	}
	return &keyShare{group: group, data: data}, nil
}

func publicKey(group names.Group) ([]byte, error) {
	var curve ecdh.Curve
	switch group {
	case names.X25519:
		scalar := make([]byte, curve25519.ScalarSize)
		if _, err := rand.Read(scalar); err != nil {
			return nil, err
		}
		return curve25519.X25519(scalar, curve25519.Basepoint)
	case names.Secp256r1:
		curve = ecdh.P256()
	case names.Secp384r1:
		curve = ecdh.P384()
	case names.Secp521r1:
		curve = ecdh.P521()
	default:
		placeholder := make([]byte, group.KeyShareLength())
		if _, err := rand.Read(placeholder); err != nil {
			return nil, err
		}
		return placeholder, nil
	}
	key, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return key.PublicKey().Bytes(), nil
}
