package tlsprobe

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	iputil "github.com/projectdiscovery/utils/ip"
	"golang.org/x/net/idna"
)

// DefaultPort is used when the input carries no port.
const DefaultPort = 443

// normalizeInput normalizes different inputs to a final host and port
// representation. Internationalized host names are converted to their
// ASCII form.
func normalizeInput(input string) (string, int, error) {
	host := strings.TrimSpace(input)
	if host == "" {
		return "", 0, errors.New("empty input")
	}

	// Handle URL input
	if strings.Contains(host, "://") {
		parsed, err := url.Parse(host)
		if err != nil {
			return "", 0, errors.Wrap(err, "could not parse url")
		}
		if parsed.Host == "" {
			return "", 0, errors.Errorf("could not get url host of %q", input)
		}
		host = parsed.Host
	}

	port := DefaultPort
	// A bare IPv6 literal contains colons but no port
	if iputil.IsIPv6(strings.Trim(host, "[]")) {
		host = strings.Trim(host, "[]")
	} else if strings.Contains(host, ":") {
		hostname, value, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, errors.Wrap(err, "could not split host port")
		}
		port, err = strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return "", 0, errors.Errorf("invalid port %q", value)
		}
		host = hostname
	}
	if host == "" {
		return "", 0, errors.Errorf("no host in %q", input)
	}
	if iputil.IsIP(host) {
		return host, port, nil
	}

	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, "."))
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid host name %q", host)
	}
	return ascii, port, nil
}
