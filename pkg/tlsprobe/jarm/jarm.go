// Package jarm computes the JARM fingerprint of a server over the probe
// transport, so proxies and timeouts apply to it like to any other probe.
package jarm

import (
	"context"
	"regexp"
	"strings"

	gojarm "github.com/hdm/jarm-go"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/hello"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
	errorutil "github.com/projectdiscovery/utils/errors"
	"go.uber.org/multierr"
)

// JarmHashRegex matches the hash of a server that answered no probe.
var JarmHashRegex = regexp.MustCompile(`^0+$`)

// Exchanger sends one payload and returns the reply.
type Exchanger interface {
	Exchange(ctx context.Context, payload []byte, complete func([]byte) bool) ([]byte, error)
	Settings() transport.Settings
}

// Hash runs the ten JARM probes one after the other.
func Hash(ctx context.Context, exchanger Exchanger) (string, error) {
	settings := exchanger.Settings()
	var errs []error
	results := make([]string, 0, 10)
	for _, probe := range gojarm.GetProbes(settings.Host, settings.Port) {
		data, err := exchanger.Exchange(ctx, gojarm.BuildProbe(probe), func(b []byte) bool {
			return hello.Complete(b, hello.ParseOptions{})
		})
		if err != nil {
			if transport.KindOf(err) != transport.Closed {
				errs = append(errs, err)
			}
			results = append(results, "")
			continue
		}
		ans, err := gojarm.ParseServerHello(data, probe)
		if err != nil {
			results = append(results, "")
			continue
		}
		results = append(results, ans)
	}
	hash := gojarm.RawHashToFuzzyHash(strings.Join(results, ","))
	if JarmHashRegex.MatchString(hash) {
		if err := multierr.Combine(errs...); err != nil {
			return "", err
		}
		return "", errorutil.NewWithTag("jarm", "no probe answered by %s", settings.Address())
	}
	return hash, nil
}
