package main

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/tlsprobe/assets"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
)

// Source:  https://ciphersuite.info/cs/?software=all&singlepage=true&tls=all&page=1
var sources = []string{
	"https://ciphersuite.info/cs/?singlepage=true",
	"https://ciphersuite.info/cs/?software=gnutls&singlepage=true",
	"https://ciphersuite.info/cs/?software=openssl&singlepage=true",
}

func main() {
	var cipherfile string
	flagSet := goflags.NewFlagSet()
	flagSet.SetDescription("update-cipherstatus stores the ciphersuite.info ratings that differ from the name based rating.")
	flagSet.StringVar(&cipherfile, "out-ciphers", "../../assets/cipherstatus_data.json", "File to write cipher stats")
	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("could not parse flags: %s", err)
	}

	// stores ciphers with stats ex: "TLS_RSA_WITH_AES_128_CBC_SHA": "Weak"
	ciphers := map[string]string{}
	for _, source := range sources {
		if err := fetchAndLoadCiphers(source, ciphers); err != nil {
			gologger.Fatal().Msgf("could not load %s: %s", source, err)
		}
	}
	overrides := overridesOf(ciphers)

	bin, err := jsoniter.Marshal(overrides)
	if err != nil {
		gologger.Fatal().Msgf("failed to marshal cipherstats %v", err)
	}
	if err := os.WriteFile(cipherfile, bin, 0600); err != nil {
		gologger.Fatal().Msgf("failed to write ciphers to file got %v", err)
	}
	gologger.Info().Msgf("updated %s, %d of %d rated ciphers differ from the name based rating\n", cipherfile, len(overrides), len(ciphers))
}

func fetchAndLoadCiphers(url string, ciphers map[string]string) error {
	res, err := http.Get(url)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("status code error: %d %s", res.StatusCode, res.Status)
	}
	return parseCiphers(res.Body, ciphers)
}

// parseCiphers reads the "<status> <iana name>" entries of a listing page.
func parseCiphers(body io.Reader, ciphers map[string]string) error {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return errors.Wrap(err, "could not parse html")
	}
	doc.Find(".long-string").Each(func(i int, s *goquery.Selection) {
		arr := strings.Fields(s.Text())
		if len(arr) > 1 {
			ciphers[strings.ToUpper(arr[1])] = arr[0]
		}
	})
	return nil
}

// overridesOf keeps the ratings of suites tlsprobe knows whose rating
// differs from assets.NameBasedLevel.
func overridesOf(ciphers map[string]string) map[string]string {
	overrides := map[string]string{}
	for name, level := range ciphers {
		cipher, err := names.ParseCipherSuite(name)
		if err != nil {
			continue
		}
		if !strings.EqualFold(assets.NameBasedLevel(cipher), level) {
			overrides[cipher.String()] = level
		}
	}
	return overrides
}
