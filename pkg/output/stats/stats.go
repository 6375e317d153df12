package stats

import "sync/atomic"

// Stats counts the connections made by one service. A nil *Stats discards
// every increment.
type Stats struct {
	// probes contains number of capability probes sent
	probes atomic.Uint64
	// failedProbes contains number of probes that ended without a
	// server answer that could be parsed
	failedProbes atomic.Uint64
	// cryptoTLSConnections contains number of certificate handshakes made
	// with crypto/tls
	cryptoTLSConnections atomic.Uint64
	// zCryptoTLSConnections contains number of certificate handshakes made
	// with zcrypto/tls
	zcryptoTLSConnections atomic.Uint64
}

// New returns zeroed counters.
func New() *Stats {
	return &Stats{}
}

// IncrementProbes increments sent probes
func (s *Stats) IncrementProbes() {
	if s != nil {
		s.probes.Add(1)
	}
}

// IncrementFailedProbes increments probes without a usable answer
func (s *Stats) IncrementFailedProbes() {
	if s != nil {
		s.failedProbes.Add(1)
	}
}

// IncrementCryptoTLSConnections increments crypto/tls connections
func (s *Stats) IncrementCryptoTLSConnections() {
	if s != nil {
		s.cryptoTLSConnections.Add(1)
	}
}

// IncrementZcryptoTLSConnections increments zcrypto/tls connections
func (s *Stats) IncrementZcryptoTLSConnections() {
	if s != nil {
		s.zcryptoTLSConnections.Add(1)
	}
}

// LoadProbes returns sent probes
func (s *Stats) LoadProbes() uint64 {
	return s.probes.Load()
}

// LoadFailedProbes returns probes without a usable answer
func (s *Stats) LoadFailedProbes() uint64 {
	return s.failedProbes.Load()
}

// LoadCryptoTLSConnections returns crypto/tls connections
func (s *Stats) LoadCryptoTLSConnections() uint64 {
	return s.cryptoTLSConnections.Load()
}

// LoadZcryptoTLSConnections returns zcrypto/tls connections
func (s *Stats) LoadZcryptoTLSConnections() uint64 {
	return s.zcryptoTLSConnections.Load()
}
