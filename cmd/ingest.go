package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Zerofisher/wordchain/internal/app"
	"github.com/Zerofisher/wordchain/pkg/ingest"
	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/stats"
)

// ingest command flags
var (
	ingestQueue       int
	ingestConcurrency int
	ingestSingleBatch bool
	ingestMetricsAddr string
	ingestQuiet       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Tokenize text files into the word database",
	Long: `Tokenize one or more text files and merge their word, sentence-position
and follower counts into the database. Files are tokenized in parallel and
committed by a single writer; a failing file does not stop the others.`,
	Example: `  wordchain ingest book.txt
  wordchain ingest corpus/*.txt --concurrency 4
  wordchain ingest big.txt --single-batch --metrics-addr :9090`,
	Args:    cobra.MinimumNArgs(1),
	GroupID: "input",
	RunE:    runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestQueue, "queue", 0,
		"Batch queue capacity (overrides QUEUE_CAPACITY)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0,
		"Parallel tokenizers (overrides TOKENIZER_CONCURRENCY)")
	ingestCmd.Flags().BoolVar(&ingestSingleBatch, "single-batch", false,
		"Emit one batch per file instead of flushing periodically")
	ingestCmd.Flags().StringVar(&ingestMetricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address while ingesting")
	ingestCmd.Flags().BoolVarP(&ingestQuiet, "quiet", "q", false,
		"Only print the summary")
}

// runIngest runs the ingestion coordinator over the given files.
func runIngest(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("queue") {
		cfg.Ingest.QueueCapacity = ingestQueue
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Ingest.TokenizerConcurrency = ingestConcurrency
	}
	if ingestSingleBatch {
		cfg.Tokenizer.SingleBatch = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var obs ingest.Observer
	var printer *progressPrinter
	if !ingestQuiet {
		printer = newProgressPrinter(os.Stderr, len(args), isTerminal(os.Stderr))
		obs = printer
	}

	res, err := app.RunIngest(cmd.Context(), app.IngestConfig{
		Config:      cfg,
		Paths:       args,
		MetricsAddr: ingestMetricsAddr,
		Observer:    obs,
	}, logger)
	if printer != nil {
		printer.Finish()
	}
	if res == nil {
		return err
	}

	failed := len(res.Failed())
	fmt.Printf("Ingested %s words from %d/%d files in %s (%d failed, %d retries)\n",
		stats.FormatCount(res.Words), len(res.Sources)-failed, len(res.Sources),
		stats.FormatDuration(res.Duration), failed, res.Retries)
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ────────────────────────────────────────────────────────────────────────────────
// Progress output
// ────────────────────────────────────────────────────────────────────────────────

// progressPrinter renders pipeline events. On a terminal the progress of the
// most recently active file is redrawn in place; otherwise progress is
// printed in quarter steps.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
	tty bool

	total   int
	started int
	done    int
	failed  int
	quarter map[int]int // Last printed quarter per source
	inline  bool        // A progress line is pending on the terminal
}

func newProgressPrinter(out io.Writer, total int, tty bool) *progressPrinter {
	return &progressPrinter{
		out:     out,
		tty:     tty,
		total:   total,
		quarter: make(map[int]int),
	}
}

// Status returns the aggregate status line.
func (p *progressPrinter) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status()
}

func (p *progressPrinter) status() string {
	running := max(0, p.started-p.done-p.failed)
	return fmt.Sprintf("%d/%d done, %d failed, %d running", p.done, p.total, p.failed, running)
}

// OnProgress implements ingest.Observer.
func (p *progressPrinter) OnProgress(src model.Source, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := fraction * 100
	if p.tty {
		fmt.Fprintf(p.out, "\r\033[K[%s] %s %5.1f%%", p.status(), filepath.Base(src.Path), pct)
		p.inline = true
		return
	}
	q := int(fraction * 4)
	if q <= p.quarter[src.ID] || q >= 4 {
		return
	}
	p.quarter[src.ID] = q
	fmt.Fprintf(p.out, "  %s %3.0f%%\n", src.Path, pct)
}

// OnEvent implements ingest.Observer.
func (p *progressPrinter) OnEvent(ev ingest.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLine()
	switch ev.Kind {
	case ingest.EventStarted:
		p.started++
		fmt.Fprintf(p.out, "  %s started\n", ev.Source.Path)
	case ingest.EventDone:
		p.done++
		fmt.Fprintf(p.out, "✓ %s\n", ev.Source.Path)
	case ingest.EventFailed:
		p.failed++
		fmt.Fprintf(p.out, "✗ %s: %v\n", ev.Source.Path, ev.Err)
	}
}

// Finish clears any pending progress line and prints the final status.
func (p *progressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLine()
	fmt.Fprintf(p.out, "%s\n", p.status())
}

func (p *progressPrinter) clearLine() {
	if p.inline {
		fmt.Fprint(p.out, "\r\033[K")
		p.inline = false
	}
}
