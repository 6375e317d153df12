package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatsCountsConcurrently(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.IncrementProbes()
			}
			s.IncrementFailedProbes()
		}()
	}
	wg.Wait()
	s.IncrementCryptoTLSConnections()
	s.IncrementZcryptoTLSConnections()

	require.Equal(t, uint64(800), s.LoadProbes())
	require.Equal(t, uint64(8), s.LoadFailedProbes())
	require.Equal(t, uint64(1), s.LoadCryptoTLSConnections())
	require.Equal(t, uint64(1), s.LoadZcryptoTLSConnections())
}

func TestNilStatsDiscards(t *testing.T) {
	var s *Stats
	require.NotPanics(t, func() {
		s.IncrementProbes()
		s.IncrementFailedProbes()
		s.IncrementCryptoTLSConnections()
		s.IncrementZcryptoTLSConnections()
	})
}
