// Package transport opens short lived TCP connections to a target, optionally
// tunnelled through an HTTP CONNECT proxy, and runs single request/response
// exchanges over them.
package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errorutil "github.com/projectdiscovery/utils/errors"
)

const (
	// DefaultTimeout bounds connect and read of every probe.
	DefaultTimeout = 2 * time.Second
	// maxResponseSize caps how much of the server flight is buffered.
	maxResponseSize = 64 * 1024
	readChunkSize   = 4096
)

// Settings identifies the target of a scan. It is immutable for the
// duration of a scan.
type Settings struct {
	Host    string        `json:"host"`
	Port    int           `json:"port"`
	Proxy   string        `json:"proxy,omitempty"`
	Timeout time.Duration `json:"timeout"`
}

// Address returns the host:port of the target.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Dialer opens TCP connections. *fastdialer.Dialer satisfies it.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// NetDialer adapts net.Dialer to Dialer.
type NetDialer struct {
	net.Dialer
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return d.DialContext(ctx, network, address)
}

// Transport dials the target described by Settings.
type Transport struct {
	settings Settings
	dialer   Dialer
	proxy    *url.URL
}

// New creates a transport for settings. A zero timeout is replaced by
// DefaultTimeout.
func New(settings Settings, dialer Dialer) (*Transport, error) {
	if dialer == nil {
		return nil, errorutil.NewWithTag("transport", "no dialer provided")
	}
	if settings.Host == "" || settings.Port <= 0 || settings.Port > 65535 {
		return nil, errorutil.NewWithTag("transport", "invalid target host=%q port=%d", settings.Host, settings.Port)
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	t := &Transport{settings: settings, dialer: dialer}
	if settings.Proxy != "" {
		proxy, err := ParseProxy(settings.Proxy)
		if err != nil {
			return nil, err
		}
		t.proxy = proxy
	}
	return t, nil
}

// ParseProxy accepts host:port or an http:// URL with optional credentials.
func ParseProxy(value string) (*url.URL, error) {
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	proxy, err := url.Parse(value)
	if err != nil {
		return nil, errorutil.NewWithTag("transport", "invalid proxy %q", value).Wrap(err)
	}
	if proxy.Scheme != "http" {
		return nil, errorutil.NewWithTag("transport", "unsupported proxy scheme %q", proxy.Scheme)
	}
	if proxy.Port() == "" {
		proxy.Host = net.JoinHostPort(proxy.Hostname(), "80")
	}
	return proxy, nil
}

// Settings returns the settings the transport was created with.
func (t *Transport) Settings() Settings {
	return t.settings
}

// Dial connects to the target, through the proxy when one is configured.
// The returned connection has no deadline set.
func (t *Transport) Dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, t.settings.Timeout)
	defer cancel()

	target := t.settings.Address()
	if t.proxy == nil {
		conn, err := t.dialer.Dial(ctx, "tcp", target)
		if err != nil {
			return nil, classify("dial", err)
		}
		return conn, nil
	}

	conn, err := t.dialer.Dial(ctx, "tcp", t.proxy.Host)
	if err != nil {
		return nil, classify("dial proxy", err)
	}
	tunnel, err := t.connect(conn, target)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tunnel, nil
}

// connect asks the proxy for a tunnel to target.
func (t *Transport) connect(conn net.Conn, target string) (net.Conn, error) {
	if err := conn.SetDeadline(time.Now().Add(t.settings.Timeout)); err != nil {
		return nil, classify("proxy deadline", err)
	}
	var request strings.Builder
	fmt.Fprintf(&request, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if user := t.proxy.User; user != nil {
		password, _ := user.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + password))
		fmt.Fprintf(&request, "Proxy-Authorization: Basic %s\r\n", credentials)
	}
	request.WriteString("\r\n")
	if _, err := io.WriteString(conn, request.String()); err != nil {
		return nil, classify("proxy connect", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, &http.Request{Method: http.MethodConnect})
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{Kind: Timeout, Op: "proxy connect", Err: err}
		}
		return nil, &Error{Kind: ProxyRejected, Op: "proxy connect", Err: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: ProxyRejected, Op: "proxy connect", Err: fmt.Errorf("proxy answered %q", resp.Status)}
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, classify("proxy deadline", err)
	}
	if reader.Buffered() > 0 {
		return &bufferedConn{Conn: conn, reader: reader}, nil
	}
	return conn, nil
}

// Exchange sends payload on a fresh connection and reads until complete
// reports a decidable response, the peer closes, the timeout expires or the
// response cap is hit. Bytes received before a timeout or close are returned
// without error.
func (t *Transport) Exchange(ctx context.Context, payload []byte, complete func([]byte) bool) ([]byte, error) {
	conn, err := t.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(t.settings.Timeout)); err != nil {
		return nil, classify("deadline", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, classify("write", err)
	}

	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if (complete != nil && complete(buf)) || len(buf) >= maxResponseSize {
				return buf, nil
			}
		}
		if err == nil {
			continue
		}
		if len(buf) > 0 {
			return buf, nil
		}
		if isTimeout(err) {
			return nil, &Error{Kind: Timeout, Op: "read", Err: err}
		}
		if isClosed(err) {
			return nil, &Error{Kind: Closed, Op: "read", Err: err}
		}
		return nil, classify("read", err)
	}
}

type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}
