// Package simserver is an in-process TLS server that answers a ClientHello
// with the first server flight chosen by a static policy. It is only used by
// tests.
package simserver

import (
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/hello"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
)

// Policy decides how the server negotiates.
type Policy struct {
	// Ciphers lists the accepted suites per protocol in server preference
	// order. Protocols without an entry are unsupported.
	Ciphers map[names.Protocol][]names.CipherSuite
	// Groups lists the accepted groups per protocol in server preference
	// order.
	Groups map[names.Protocol][]names.Group
	// ServerOrder picks the first suite of the server list the client
	// offers instead of the first suite of the client list.
	ServerOrder bool
	// ServerName, when set, is the only SNI value accepted.
	ServerName string
	// RequireSNI rejects hellos without SNI.
	RequireSNI bool
	// CloseOnReject closes the connection instead of sending an alert.
	CloseOnReject bool
	// Silent never answers.
	Silent bool
	// Raw is sent verbatim instead of a negotiated flight.
	Raw []byte
	// SplitRecords sends the ServerKeyExchange in its own record.
	SplitRecords bool
}

// Server is a running simulated server.
type Server struct {
	listener net.Listener
	policy   Policy

	mu     sync.Mutex
	hellos []*hello.ClientHello
	wg     sync.WaitGroup
	closed chan struct{}
}

// Start listens on a random loopback port.
func Start(policy Policy) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{listener: listener, policy: policy, closed: make(chan struct{})}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Settings returns connection settings pointing at the server.
func (s *Server) Settings(timeout time.Duration) transport.Settings {
	addr := s.listener.Addr().(*net.TCPAddr)
	return transport.Settings{Host: addr.IP.String(), Port: addr.Port, Timeout: timeout}
}

// Address returns host:port of the server.
func (s *Server) Address() string {
	addr := s.listener.Addr().(*net.TCPAddr)
	return net.JoinHostPort(addr.IP.String(), strconv.Itoa(addr.Port))
}

// Hellos returns every ClientHello received so far, in arrival order.
func (s *Server) Hellos() []*hello.ClientHello {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*hello.ClientHello(nil), s.hellos...)
}

// Close stops the server and waits for open connections.
func (s *Server) Close() error {
	close(s.closed)
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	record, err := readRecord(conn)
	if err != nil {
		return
	}
	ch, err := hello.DecodeClientHello(record)
	if err != nil {
		_, _ = conn.Write(hello.EncodeAlert(names.TLS1_2, names.AlertFatal, names.AlertDecodeError))
		return
	}
	s.mu.Lock()
	s.hellos = append(s.hellos, ch)
	s.mu.Unlock()

	if s.policy.Silent {
		// hold the connection until the client gives up
		go func() {
			<-s.closed
			_ = conn.Close()
		}()
		_, _ = io.Copy(io.Discard, conn)
		return
	}
	if s.policy.Raw != nil {
		_, _ = conn.Write(s.policy.Raw)
		return
	}
	response := s.respond(ch)
	if response == nil {
		return
	}
	_, _ = conn.Write(response)
}

// respond returns the flight for ch, nil to close silently.
func (s *Server) respond(ch *hello.ClientHello) []byte {
	version, ok := s.pickVersion(ch)
	if !ok {
		return s.reject(ch.LegacyVersion, names.AlertProtocolVersion)
	}
	if s.policy.RequireSNI && ch.ServerName == "" {
		return s.reject(version, names.AlertUnrecognizedName)
	}
	if s.policy.ServerName != "" && ch.ServerName != "" && ch.ServerName != s.policy.ServerName {
		return s.reject(version, names.AlertUnrecognizedName)
	}

	group, hasGroup := s.pickGroup(version, ch.Groups)
	cipher, ok := s.pickCipher(version, ch.CipherSuites, hasGroup)
	if !ok {
		return s.reject(version, names.AlertHandshakeFailure)
	}

	flight := hello.ServerFlight{Version: version, CipherSuite: cipher, SplitRecords: s.policy.SplitRecords}
	if version == names.TLS1_3 {
		if !hasGroup {
			return s.reject(version, names.AlertHandshakeFailure)
		}
		flight.Group = group
		flight.HelloRetry = !containsGroup(ch.KeyShares, group)
	} else if cipher.IsECDHE() {
		flight.Group = group
	}
	data, err := flight.Encode()
	if err != nil {
		return nil
	}
	return data
}

func (s *Server) reject(version names.Protocol, description names.AlertDescription) []byte {
	if s.policy.CloseOnReject {
		return nil
	}
	if version == 0 || version > names.TLS1_2 {
		version = names.TLS1_2
	}
	return hello.EncodeAlert(version, names.AlertFatal, description)
}

// pickVersion returns the newest supported protocol the client offers.
func (s *Server) pickVersion(ch *hello.ClientHello) (names.Protocol, bool) {
	var best names.Protocol
	for _, p := range ch.Protocols() {
		if _, ok := s.policy.Ciphers[p]; ok && p > best {
			best = p
		}
	}
	return best, best != 0
}

func (s *Server) pickGroup(version names.Protocol, offered []names.Group) (names.Group, bool) {
	for _, g := range s.policy.Groups[version] {
		if containsGroup(offered, g) {
			return g, true
		}
	}
	return 0, false
}

// pickCipher skips ECDHE suites of older protocols when no group is shared.
func (s *Server) pickCipher(version names.Protocol, offered []names.CipherSuite, hasGroup bool) (names.CipherSuite, bool) {
	accepted := s.policy.Ciphers[version]
	usable := func(c names.CipherSuite) bool {
		return version == names.TLS1_3 || !c.IsECDHE() || hasGroup
	}
	if s.policy.ServerOrder {
		for _, c := range accepted {
			if containsCipher(offered, c) && usable(c) {
				return c, true
			}
		}
		return 0, false
	}
	for _, c := range offered {
		if containsCipher(accepted, c) && usable(c) {
			return c, true
		}
	}
	return 0, false
}

func readRecord(conn net.Conn) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	length := int(header[3])<<8 | int(header[4])
	if length > 1<<14+2048 {
		return nil, errors.New("record too large")
	}
	record := make([]byte, 5+length)
	copy(record, header)
	if _, err := io.ReadFull(conn, record[5:]); err != nil {
		return nil, err
	}
	return record, nil
}

func containsGroup(groups []names.Group, g names.Group) bool {
	for _, v := range groups {
		if v == g {
			return true
		}
	}
	return false
}

func containsCipher(ciphers []names.CipherSuite, c names.CipherSuite) bool {
	for _, v := range ciphers {
		if v == c {
			return true
		}
	}
	return false
}
