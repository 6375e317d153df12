package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/internal/runner"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/pool"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/transport"
)

var (
	cfgFile string
	options = &clients.Options{}
)

func main() {
	if err := process(); err != nil {
		gologger.Fatal().Msgf("Could not process: %s", err)
	}
}

func process() error {
	flagSet, err := readFlags()
	if err != nil {
		return errors.Wrap(err, "could not read flags")
	}
	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", runner.Version())
		return nil
	}
	if options.HealthCheck {
		gologger.Print().Msgf("%s\n", runner.DoHealthCheck(flagSet))
		return nil
	}

	runner, err := runner.New(options)
	if err != nil {
		return errors.Wrap(err, "could not create runner")
	}
	if runner == nil {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := runner.Execute(ctx); err != nil {
		return errors.Wrap(err, "could not execute runner")
	}
	if err := runner.Close(); err != nil {
		return errors.Wrap(err, "could not close runner")
	}
	return nil
}

func readFlags() (*goflags.FlagSet, error) {
	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription(`tlsprobe enumerates the TLS protocols, cipher suites and key exchange groups a server accepts.`)

	flagSet.CreateGroup("input", "Input",
		flagSet.StringSliceVarP(&options.Inputs, "host", "u", []string{}, "target host to scan (-u INPUT1,INPUT2)", goflags.CommaSeparatedStringSliceOptions),
		flagSet.StringVarP(&options.InputList, "list", "l", "", "target list to scan (-l INPUT_FILE)"),
	)

	flagSet.CreateGroup("configs", "Configurations",
		flagSet.StringVar(&cfgFile, "config", "", "path to the tlsprobe configuration file"),
		flagSet.DurationVar(&options.Timeout, "timeout", transport.DefaultTimeout, "probe connection timeout (e.g. 2s, 500ms)"),
		flagSet.StringVar(&options.ServerName, "sni", "", "tls sni hostname to use"),
		flagSet.BoolVarP(&options.NoSNI, "no-sni", "ns", false, "do not send the sni extension"),
		flagSet.StringVarP(&options.Proxy, "proxy", "x", "", "http proxy to tunnel probes through (default $HTTPS_PROXY)"),
		flagSet.IntVarP(&options.MaxWorkers, "max-workers", "mw", pool.DefaultWorkers, "number of concurrent probes per target"),
		flagSet.IntVarP(&options.Concurrency, "concurrency", "c", 4, "number of targets scanned concurrently"),
	)

	flagSet.CreateGroup("probes", "Probes",
		flagSet.StringSliceVarP(&options.Protocols, "protocols", "p", nil, "protocols to probe ("+strings.Join(names.ProtocolNames(), ",")+")", goflags.FileCommaSeparatedStringSliceOptions),
		flagSet.BoolVarP(&options.SkipCiphers, "no-ciphers", "nci", false, "skip cipher suite enumeration"),
		flagSet.BoolVarP(&options.SkipGroups, "no-groups", "ng", false, "skip key exchange group enumeration"),
		flagSet.BoolVarP(&options.SkipCertificates, "no-certs", "nce", false, "skip certificate chain retrieval"),
		flagSet.BoolVarP(&options.TestSNI, "test-sni", "ts", false, "test server behaviour with missing and wrong sni"),
		flagSet.BoolVarP(&options.CipherOrder, "cipher-order", "co", false, "detect server cipher preference"),
		flagSet.BoolVar(&options.Jarm, "jarm", false, "display jarm fingerprint hash"),
	)

	flagSet.CreateGroup("output", "Output",
		flagSet.StringVarP(&options.OutputFile, "output", "o", "", "file to write output to"),
		flagSet.StringVar(&options.ErrorFile, "error-file", "", "file to write targets that could not be scanned to"),
		flagSet.StringVar(&options.GOSTReport, "gost-report", "", "file to write targets accepting gost cipher suites to"),
		flagSet.BoolVarP(&options.JSON, "json", "j", false, "display json format output"),
		flagSet.BoolVar(&options.Progress, "progress", false, "display scan progress"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable colors in output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "display results only"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "display verbose output"),
		flagSet.BoolVar(&options.Debug, "debug", false, "display every probe"),
		flagSet.BoolVar(&options.Version, "version", false, "display project version"),
		flagSet.BoolVarP(&options.HealthCheck, "health-check", "hc", false, "run diagnostic check up"),
	)

	if err := flagSet.Parse(); err != nil {
		return nil, errors.Wrap(err, "could not parse flags")
	}

	if cfgFile != "" {
		if err := flagSet.MergeConfigFile(cfgFile); err != nil {
			return nil, errors.Wrap(err, "could not read config file")
		}
	}
	return flagSet, nil
}
