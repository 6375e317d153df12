package runner

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/mapcidr"
	"github.com/projectdiscovery/tlsprobe/pkg/output"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/clients"
	"github.com/projectdiscovery/tlsprobe/pkg/tlsprobe/pool"
	iputil "github.com/projectdiscovery/utils/ip"
	sliceutil "github.com/projectdiscovery/utils/slice"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrNoInput is returned when neither targets nor a target list were given.
var ErrNoInput = errors.New("no input provided for enumeration")

// Runner is a client for running the enumeration process
type Runner struct {
	hasStdin     bool
	outputWriter output.Writer
	service      *tlsprobe.Service
	options      *clients.Options

	errorFile *lineFile
	gostFile  *lineFile
}

// New creates a new runner from provided configuration options
func New(options *clients.Options) (*Runner, error) {
	if !options.Silent {
		showBanner()
	}

	runner := &Runner{options: options, hasStdin: hasStdin()}
	if err := runner.validateOptions(); err != nil {
		return nil, errors.Wrap(err, "could not validate options")
	}

	outputWriter, err := output.New(options)
	if err != nil {
		return nil, errors.Wrap(err, "could not create output writer")
	}
	runner.outputWriter = outputWriter

	service, err := tlsprobe.New(options)
	if err != nil {
		return nil, errors.Wrap(err, "could not create tlsprobe client")
	}
	runner.service = service

	if err := runner.openReports(); err != nil {
		return nil, err
	}
	return runner, nil
}

func (r *Runner) openReports() error {
	var err error
	if r.options.ErrorFile != "" {
		if r.errorFile, err = newLineFile(r.options.ErrorFile); err != nil {
			return errors.Wrap(err, "could not create error file")
		}
	}
	if r.options.GOSTReport != "" {
		if r.gostFile, err = newLineFile(r.options.GOSTReport); err != nil {
			return errors.Wrap(err, "could not create gost report")
		}
	}
	return nil
}

// Close closes the runner releasing resources
func (r *Runner) Close() error {
	err := r.outputWriter.Close()
	if r.errorFile != nil {
		if closeErr := r.errorFile.Close(); err == nil {
			err = closeErr
		}
	}
	if r.gostFile != nil {
		if closeErr := r.gostFile.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// Execute executes the main data collection loop. A cancelled ctx stops
// the scans in progress from issuing new probes.
func (r *Runner) Execute(ctx context.Context) error {
	inputs := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(inputs)
		readErr <- r.readInputs(ctx, inputs)
	}()

	swg := sizedwaitgroup.New(r.options.Concurrency)
	for input := range inputs {
		swg.Add()
		go r.processInputElement(ctx, input, &swg)
	}
	swg.Wait()

	counters := r.service.Stats()
	gologger.Verbose().Msgf("Sent %d probes (%d failed), %d crypto/tls and %d zcrypto certificate handshakes",
		counters.LoadProbes(), counters.LoadFailedProbes(), counters.LoadCryptoTLSConnections(), counters.LoadZcryptoTLSConnections())
	return <-readErr
}

// readInputs sends every target of the configured sources to inputs.
func (r *Runner) readInputs(ctx context.Context, inputs chan<- string) error {
	for _, text := range sliceutil.Dedupe(r.options.Inputs) {
		r.processInputItem(ctx, text, inputs)
	}
	if r.options.InputList != "" {
		file, err := os.Open(r.options.InputList)
		if err != nil {
			return errors.Wrap(err, "could not open input file")
		}
		defer file.Close()
		if err := r.readInputList(ctx, file, inputs); err != nil {
			return errors.Wrap(err, "could not read input file")
		}
	}
	if r.hasStdin {
		if err := r.readInputList(ctx, os.Stdin, inputs); err != nil {
			return errors.Wrap(err, "could not read stdin")
		}
	}
	return nil
}

// readInputList reads one target per line. The encoding of the list is
// detected from its first bytes, so lists saved as UTF-16 or with a legacy
// code page are decoded before parsing. Lines starting with # are skipped.
func (r *Runner) readInputList(ctx context.Context, reader io.Reader, inputs chan<- string) error {
	content, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	encoding, name, _ := charset.DetermineEncoding(content, "text/plain")
	gologger.Debug().Msgf("Reading input list as %s", name)

	scanner := bufio.NewScanner(transform.NewReader(bytes.NewReader(content), encoding.NewDecoder()))
	for scanner.Scan() {
		text := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		r.processInputItem(ctx, text, inputs)
	}
	return scanner.Err()
}

// processInputItem expands CIDR ranges into their addresses.
func (r *Runner) processInputItem(ctx context.Context, input string, inputs chan<- string) {
	if !iputil.IsCIDR(input) {
		send(ctx, inputs, input)
		return
	}
	ips, err := mapcidr.IPAddressesAsStream(input)
	if err != nil {
		gologger.Warning().Msgf("Could not expand cidr %s: %s", input, err)
		return
	}
	for ip := range ips {
		send(ctx, inputs, ip)
	}
}

func send(ctx context.Context, inputs chan<- string, input string) {
	select {
	case inputs <- input:
	case <-ctx.Done():
	}
}

// processInputElement processes an element from input
func (r *Runner) processInputElement(ctx context.Context, input string, swg *sizedwaitgroup.SizedWaitGroup) {
	defer swg.Done()

	var progress pool.ProgressFunc
	if r.options.Progress {
		progress = progressPrinter(input)
	}
	result, err := r.service.Scan(ctx, input, progress)
	if err != nil {
		gologger.Warning().Msgf("Could not scan input %s: %s", input, err)
		if r.errorFile != nil {
			if writeErr := r.errorFile.WriteLine(input + "\t" + err.Error()); writeErr != nil {
				gologger.Warning().Msgf("Could not write error file: %s", writeErr)
			}
		}
		return
	}
	if err := r.outputWriter.Write(result); err != nil {
		gologger.Warning().Msgf("Could not write output %s: %s", input, err)
	}
	if r.gostFile != nil && result.SupportsGOST() {
		if err := r.gostFile.WriteLine(input); err != nil {
			gologger.Warning().Msgf("Could not write gost report: %s", err)
		}
	}
}

// progressPrinter reports every tenth percent of a target scan.
func progressPrinter(input string) pool.ProgressFunc {
	last := -1
	return func(completed, total int) {
		if total == 0 {
			return
		}
		percent := completed * 100 / total
		if last >= 0 && percent/10 == last/10 && percent != 100 {
			return
		}
		last = percent
		gologger.Info().Msgf("[%s] %d%% (%d/%d probes)", input, percent, completed, total)
	}
}

// lineFile appends lines to a file from concurrent scans.
type lineFile struct {
	mu   sync.Mutex
	file *os.File
}

func newLineFile(path string) (*lineFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &lineFile{file: file}, nil
}

func (f *lineFile) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.file.WriteString(line + "\n")
	return err
}

func (f *lineFile) Close() error {
	return f.file.Close()
}
