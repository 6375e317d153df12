package output

import (
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/logrusorgru/aurora"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/names"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/report"
	errorutil "github.com/projectdiscovery/utils/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Writer is an interface which writes output to somewhere for scan reports.
type Writer interface {
	// Close closes the output writer interface
	Close() error
	// Write writes the report to file and/or screen.
	Write(*report.ScanReport) error
}

var decolorizerRegex = regexp.MustCompile(`\x1B\[[0-9;]*[a-zA-Z]`)

// StandardWriter is an standard output writer structure
type StandardWriter struct {
	json        bool
	aurora      aurora.Aurora
	outputFile  *fileWriter
	outputMutex *sync.Mutex

	options *clients.Options
}

// New returns a new output writer instance
func New(options *clients.Options) (Writer, error) {
	var outputFile *fileWriter
	if options.OutputFile != "" {
		output, err := newFileOutputWriter(options.OutputFile)
		if err != nil {
			return nil, errorutil.NewWithErr(err).Msgf("could not create output file")
		}
		outputFile = output
	}
	writer := &StandardWriter{
		json:        options.JSON,
		aurora:      aurora.NewAurora(!options.NoColor),
		outputFile:  outputFile,
		outputMutex: &sync.Mutex{},
		options:     options,
	}
	return writer, nil
}

// Write writes the report to file and/or screen.
func (w *StandardWriter) Write(event *report.ScanReport) error {
	var data []byte
	var err error

	if w.json {
		data, err = w.formatJSON(event)
	} else {
		data, err = w.formatStandard(event)
	}
	if err != nil {
		return errorutil.NewWithErr(err).Msgf("could not format output")
	}
	data = bytes.TrimSuffix(data, []byte("\n")) // remove last newline

	w.outputMutex.Lock()
	defer w.outputMutex.Unlock()
	_, _ = os.Stdout.Write(data)
	_, _ = os.Stdout.Write([]byte("\n"))
	if w.outputFile != nil {
		if !w.json {
			data = decolorizerRegex.ReplaceAll(data, []byte(""))
		}
		if writeErr := w.outputFile.Write(data); writeErr != nil {
			return errorutil.NewWithErr(writeErr).Msgf("could not write to output")
		}
	}
	return nil
}

// Close closes the output writer
func (w *StandardWriter) Close() error {
	var err error
	if w.outputFile != nil {
		err = w.outputFile.Close()
	}
	return err
}

// formatJSON formats the output for json based formatting
func (w *StandardWriter) formatJSON(output *report.ScanReport) ([]byte, error) {
	if output == nil {
		return nil, errorutil.New("empty scan report")
	}
	return jsoniter.Marshal(output)
}

// formatStandard formats the output for standard client formatting. Every
// supported protocol gets its own line, followed by the sni, certificate
// and jarm lines when present.
func (w *StandardWriter) formatStandard(output *report.ScanReport) ([]byte, error) {
	if output == nil {
		return nil, errorutil.New("empty scan report")
	}
	if output.Host == "" {
		return nil, errorutil.New("scan report without host")
	}

	prefix := output.Host + ":" + strconv.Itoa(output.Port)
	if strings.Contains(output.Host, ":") {
		prefix = "[" + output.Host + "]:" + strconv.Itoa(output.Port)
	}
	builder := &bytes.Buffer{}

	supported := output.SupportedProtocols()
	if len(supported) == 0 {
		builder.WriteString(prefix)
		builder.WriteString(" [")
		builder.WriteString(w.aurora.Red("no tls").String())
		builder.WriteString("]\n")
	}
	for _, p := range supported {
		capability := output.Protocols[p]
		builder.WriteString(prefix)
		builder.WriteString(" [")
		builder.WriteString(w.aurora.Blue(p.String()).String())
		builder.WriteString("]")
		if len(capability.CipherSuites) > 0 {
			builder.WriteString(" [")
			builder.WriteString(strings.Join(w.colorCiphers(capability.CipherSuites), ","))
			builder.WriteString("]")
		}
		if len(capability.Groups) > 0 {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Cyan(joinGroups(capability.Groups)).String())
			builder.WriteString("]")
		}
		if capability.ServerCipherOrder != nil {
			order := "client-order"
			if *capability.ServerCipherOrder {
				order = "server-order"
			}
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Magenta(order).String())
			builder.WriteString("]")
		}
		builder.WriteString("\n")
	}

	for _, p := range supported {
		sni := output.Protocols[p].SNI
		if sni == nil {
			continue
		}
		builder.WriteString(prefix)
		builder.WriteString(" [sni]")
		if sni.RequiresSNI {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("requires-sni").String())
			builder.WriteString("]")
		}
		if sni.RejectsWrongSNI {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("rejects-wrong-sni").String())
			builder.WriteString("]")
		}
		if sni.HostSensitive {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("host-sensitive").String())
			builder.WriteString("]")
		}
		builder.WriteString("\n")
	}

	if len(output.CertificateChain) > 0 {
		cert := output.CertificateChain[0]
		builder.WriteString(prefix)
		builder.WriteString(" [")
		builder.WriteString(w.aurora.Cyan(strings.Join(uniqueNormalizeCertNames(append([]string{cert.SubjectCN}, cert.SubjectAN...)), ",")).String())
		builder.WriteString("]")
		if len(cert.SubjectOrg) > 0 {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.BrightYellow(strings.Join(cert.SubjectOrg, ",")).String())
			builder.WriteString("]")
		}
		if cert.Expired {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Red("expired").String())
			builder.WriteString("]")
		}
		if cert.SelfSigned {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("self-signed").String())
			builder.WriteString("]")
		}
		if cert.MisMatched {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("mismatched").String())
			builder.WriteString("]")
		}
		if cert.WildCardCert {
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Yellow("wildcard").String())
			builder.WriteString("]")
		}
		builder.WriteString(" [")
		builder.WriteString(w.aurora.BrightMagenta(cert.FingerprintHash.SHA256).String())
		builder.WriteString("]\n")
	}

	if output.JarmHash != "" {
		builder.WriteString(prefix)
		builder.WriteString(" [jarm] [")
		builder.WriteString(w.aurora.Magenta(output.JarmHash).String())
		builder.WriteString("]\n")
	}

	if w.options != nil && w.options.Verbose {
		for _, p := range output.ProbedProtocols() {
			for _, e := range output.Protocols[p].Errors {
				builder.WriteString(prefix)
				builder.WriteString(" [")
				builder.WriteString(p.String())
				builder.WriteString("] [")
				builder.WriteString(w.aurora.Red(e.Stage + ": " + e.Kind).String())
				builder.WriteString("]\n")
			}
		}
		for _, e := range output.Errors {
			builder.WriteString(prefix)
			builder.WriteString(" [")
			builder.WriteString(w.aurora.Red(e.Stage + ": " + e.Kind).String())
			builder.WriteString("]\n")
		}
	}
	return builder.Bytes(), nil
}

// colorCiphers colors every suite by its security level.
func (w *StandardWriter) colorCiphers(suites []names.CipherSuite) []string {
	colored := make([]string, 0, len(suites))
	for _, c := range suites {
		switch clients.GetCipherLevel(c) {
		case clients.Insecure:
			colored = append(colored, w.aurora.BrightRed(c.String()).String())
		case clients.Weak:
			colored = append(colored, w.aurora.Yellow(c.String()).String())
		case clients.Secure:
			colored = append(colored, w.aurora.Green(c.String()).String())
		default:
			colored = append(colored, w.aurora.Gray(12, c.String()).String())
		}
	}
	return colored
}

func joinGroups(groups []names.Group) string {
	values := make([]string, 0, len(groups))
	for _, g := range groups {
		values = append(values, g.String())
	}
	return strings.Join(values, ",")
}

// uniqueNormalizeCertNames removes *. wildcards from cert alternative
// names and uniques them returning a final sorted list.
func uniqueNormalizeCertNames(names []string) []string {
	unique := make(map[string]struct{})
	for _, value := range names {
		replaced := strings.Replace(value, "*.", "", -1)
		if replaced == "" {
			continue
		}
		unique[replaced] = struct{}{}
	}
	values := maps.Keys(unique)
	slices.Sort(values)
	return values
}
