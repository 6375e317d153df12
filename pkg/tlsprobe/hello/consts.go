package hello

// record content types
const (
	recordTypeAlert     uint8 = 21
	recordTypeHandshake uint8 = 22
)

// handshake message types
const (
	typeClientHello       uint8 = 1
	typeServerHello       uint8 = 2
	typeCertificate       uint8 = 11
	typeServerKeyExchange uint8 = 12
	typeServerHelloDone   uint8 = 14
)

// extension identifiers
const (
	extServerName           uint16 = 0
	extSupportedGroups      uint16 = 10
	extECPointFormats       uint16 = 11
	extSignatureAlgorithms  uint16 = 13
	extExtendedMasterSecret uint16 = 23
	extSupportedVersions    uint16 = 43
	extPSKKeyExchangeModes  uint16 = 45
	extKeyShare             uint16 = 51
	extRenegotiationInfo    uint16 = 0xff01
)

const (
	// maxRecordPayload is the largest plaintext record allowed by RFC 8446 plus
	// the slack RFC 5246 grants to compressed records.
	maxRecordPayload = 1<<14 + 1024
	curveTypeNamed   = 3
	pskModeDHE       = 1
)

// helloRetryRequestRandom marks a ServerHello as a HelloRetryRequest
// (RFC 8446 section 4.1.3).
var helloRetryRequestRandom = []byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// signatureAlgorithms are advertised by every TLS 1.2+ hello: ECDSA, EdDSA,
// RSA-PSS, PKCS#1, GOST R 34.10-2012, then the SHA-224 and SHA-1 variants.
var signatureAlgorithms = []uint16{
	0x0403, 0x0503, 0x0603,
	0x0807, 0x0808,
	0x0804, 0x0805, 0x0806,
	0x0809, 0x080a, 0x080b,
	0x0401, 0x0501, 0x0601,
	0x0709, 0x070a, 0x070b, 0x070c, 0x070d, 0x070e, 0x070f,
	0x0303, 0x0301, 0x0302, 0x0402, 0x0502, 0x0602,
	0x0203, 0x0201, 0x0202,
}
