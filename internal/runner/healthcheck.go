package runner

import (
	"fmt"
	"net"
	"runtime"
	"strings"

	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	fileutil "github.com/projectdiscovery/utils/file"
)

func DoHealthCheck(flagSet *goflags.FlagSet) string {
	// RW permissions on config file
	cfgFilePath, _ := flagSet.GetConfigFilePath()
	var test strings.Builder
	test.WriteString(fmt.Sprintf("Version: %s\n", version))
	test.WriteString(fmt.Sprintf("Operative System: %s\n", runtime.GOOS))
	test.WriteString(fmt.Sprintf("Architecture: %s\n", runtime.GOARCH))
	test.WriteString(fmt.Sprintf("Go Version: %s\n", runtime.Version()))
	test.WriteString(fmt.Sprintf("Compiler: %s\n", runtime.Compiler))

	var testResult string
	ok, err := fileutil.IsReadable(cfgFilePath)
	if ok {
		testResult = "Ok"
	} else {
		testResult = "Ko"
	}
	if err != nil {
		testResult += fmt.Sprintf(" (%s)", err)
	}
	test.WriteString(fmt.Sprintf("Config file \"%s\" Read => %s\n", cfgFilePath, testResult))
	ok, err = fileutil.IsWriteable(cfgFilePath)
	if ok {
		testResult = "Ok"
	} else {
		testResult = "Ko"
	}
	if err != nil {
		testResult += fmt.Sprintf(" (%s)", err)
	}
	test.WriteString(fmt.Sprintf("Config file \"%s\" Write => %s\n", cfgFilePath, testResult))
	for _, network := range []string{"tcp4", "tcp6"} {
		conn, err := net.Dial(network, "scanme.sh:443")
		if err == nil && conn != nil {
			conn.Close()
		}
		testResult = "Ok"
		if err != nil {
			testResult = fmt.Sprintf("Ko (%s)", err)
		}
		test.WriteString(fmt.Sprintf("%s connectivity to scanme.sh:443 => %s\n", network, testResult))
	}

	test.WriteString(supportedCapabilities())
	return test.String()
}

// supportedCapabilities lists what the prober can offer in a ClientHello.
func supportedCapabilities() string {
	var test strings.Builder
	test.WriteString(fmt.Sprintf("Protocols: %s\n", strings.Join(names.ProtocolNames(), ", ")))

	suites := names.AllCipherSuites()
	levels := map[clients.CipherSecLevel]int{}
	for _, c := range suites {
		levels[clients.GetCipherLevel(c)]++
	}
	test.WriteString(fmt.Sprintf("Cipher suites: %d (secure %d, weak %d, insecure %d)\n",
		len(suites), levels[clients.Secure], levels[clients.Weak], levels[clients.Insecure]))

	var groups, keyShares []string
	for _, g := range names.AllGroups() {
		groups = append(groups, g.String())
		if g.CanGenerateKey() {
			keyShares = append(keyShares, g.String())
		}
	}
	test.WriteString(fmt.Sprintf("Groups: %s\n", strings.Join(groups, ", ")))
	test.WriteString(fmt.Sprintf("Key shares: %s\n", strings.Join(keyShares, ", ")))
	return test.String()
}
