package runner

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	fileutil "github.com/projectdiscovery/utils/file"
)

var banner = fmt.Sprintf(`
  _   _                          _
 | |_| |___ _ __  _ __ ___  ___ | |__   ___
 | __| / __| '_ \| '__/ _ \| '_ \ / _ \/ _ \
 | |_| \__ \ |_) | | | (_) | |_) |  __/  __/
  \__|_|___/ .__/|_|  \___/|_.__/ \___|\___|	%s
           |_|
`, version)

var version = "v0.0.1"

// Version returns the version of the program.
func Version() string {
	return version
}

// validateOptions validates the provided options for the scanner
func (r *Runner) validateOptions() error {
	if !r.hasStdin && len(r.options.Inputs) == 0 && r.options.InputList == "" {
		return ErrNoInput
	}
	if r.options.InputList != "" && !fileutil.FileExists(r.options.InputList) {
		return errors.Errorf("input list %s does not exist", r.options.InputList)
	}
	if r.options.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if r.options.NoSNI && r.options.ServerName != "" {
		return errors.New("sni and no-sni are mutually exclusive")
	}
	if _, err := names.ParseProtocols(r.options.Protocols); err != nil {
		return err
	}
	if r.options.Proxy == "" {
		r.options.Proxy = proxyFromEnvironment()
	}

	switch {
	case r.options.Silent:
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	case r.options.Debug:
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	case r.options.Verbose:
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	return nil
}

// proxyFromEnvironment returns the proxy configured for https traffic.
func proxyFromEnvironment() string {
	for _, key := range []string{"https_proxy", "HTTPS_PROXY"} {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// hasStdin returns true if we have stdin input
func hasStdin() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return false
	}
	return true
}

// showBanner is used to show the banner to the user
func showBanner() {
	gologger.Print().Msgf("%s\n", banner)
	gologger.Print().Msgf("\t\tprojectdiscovery.io\n\n")

	gologger.Print().Label("WRN").Msgf("Use with caution. You are responsible for your actions.\n")
	gologger.Print().Label("WRN").Msgf("Developers assume no liability and are not responsible for any misuse or damage.\n")
}
