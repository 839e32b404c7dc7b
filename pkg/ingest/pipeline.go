// Package ingest provides the ingestion pipeline for text corpora.
// N tokenizers feed a bounded queue drained by a single writer, which applies
// each batch to the store in its own transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/queue"
	"github.com/Zerofisher/wordchain/pkg/store"
	"github.com/Zerofisher/wordchain/tokenize"
)

// Config holds configuration for the ingest pipeline.
type Config struct {
	// Paths are the input files. They are canonicalized before use.
	Paths []string

	// QueueCapacity bounds the batch queue. Defaults to queue.DefaultCapacity.
	QueueCapacity int

	// Concurrency caps parallel tokenizers. Defaults to min(8, NumCPU).
	Concurrency int

	Tokenizer tokenize.Config
	Writer    WriterConfig

	// Observer receives progress and lifecycle events. May be nil.
	Observer Observer
}

// EventKind is a source lifecycle transition.
type EventKind string

const (
	EventStarted EventKind = "started"
	EventDone    EventKind = "done"
	EventFailed  EventKind = "failed"
)

// Event reports a lifecycle transition of one source.
type Event struct {
	Source model.Source
	Kind   EventKind
	Err    error // Set for EventFailed
}

// Observer receives pipeline notifications. Methods are called from
// tokenizer and writer goroutines and must be safe for concurrent use.
// Done and failed events are only sent after the writer finalized the
// source (or the run was cancelled).
type Observer interface {
	OnProgress(src model.Source, fraction float64)
	OnEvent(ev Event)
}

type nopObserver struct{}

func (nopObserver) OnProgress(model.Source, float64) {}
func (nopObserver) OnEvent(Event)                    {}

// Result holds the result of an ingest run.
type Result struct {
	RunID    string
	Sources  []SourceResult // In input order
	Words    int64          // Committed alpha tokens over all sources
	Retries  int64
	Duration time.Duration
}

// Failed returns the sources that ended in error.
func (r *Result) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}

// Progress holds aggregate lifecycle counts.
type Progress struct {
	Total   int
	Started int
	Done    int
	Failed  int
	Elapsed time.Duration
}

// Running is the number of sources started but not yet finalized.
func (p Progress) Running() int {
	return max(0, p.Started-p.Done-p.Failed)
}

// Pipeline is the ingestion coordinator.
type Pipeline struct {
	cfg    Config
	store  store.Writer
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	progress Progress
	started  time.Time
}

// New creates a new ingest pipeline writing to st.
func New(st store.Writer, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = queue.DefaultCapacity
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// DefaultConcurrency is min(8, NumCPU).
func DefaultConcurrency() int {
	return min(8, runtime.NumCPU())
}

// Run ingests every configured path and blocks until the writer has
// finalized all of them or the run is cancelled (via ctx or Stop).
// It returns ErrSourcesFailed when any source failed and ctx.Err() when
// cancelled; the Result is always non-nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()
	if p.ctx.Err() != nil {
		cancel()
	}

	result := &Result{RunID: uuid.NewString()}
	logger := p.logger.With(zap.String("run", result.RunID))

	sources := make([]model.Source, len(p.cfg.Paths))
	for i, path := range p.cfg.Paths {
		sources[i] = model.Source{ID: i + 1, Path: CanonicalPath(path)}
	}

	p.mu.Lock()
	p.started = time.Now()
	p.progress = Progress{Total: len(sources)}
	p.mu.Unlock()

	logger.Info("ingest started",
		zap.Int("sources", len(sources)),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Int("queue", p.cfg.QueueCapacity))

	q := queue.New[*model.Batch](p.cfg.QueueCapacity)
	w := NewWriter(p.store, q, p.cfg.Writer, logger.Named("writer"))
	w.OnFinalize(func(r SourceResult) {
		kind := EventDone
		if r.Failed() {
			kind = EventFailed
		}
		p.record(kind)
		p.cfg.Observer.OnEvent(Event{Source: r.Source, Kind: kind, Err: r.Err})
	})
	for _, src := range sources {
		w.Enroll(src)
	}
	w.Seal()

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- w.Run(ctx)
	}()

	tok := tokenize.New(p.cfg.Tokenizer, logger.Named("tokenizer"))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p.tokenizeSource(ctx, tok, q, src, logger)
			return nil
		})
	}
	g.Wait()

	writerErr := <-writerDone

	results := w.Results()
	for _, src := range sources {
		r := results[src.ID]
		if !r.Finalized {
			if r.Err == nil {
				r.Err = ErrCancelled
			}
			p.record(EventFailed)
			p.cfg.Observer.OnEvent(Event{Source: src, Kind: EventFailed, Err: r.Err})
		}
		result.Sources = append(result.Sources, r)
		result.Words += r.Words
	}
	result.Retries = w.Retries()
	result.Duration = time.Since(p.startTime())

	failed := result.Failed()
	logger.Info("ingest finished",
		zap.Int("sources", len(sources)),
		zap.Int("failed", len(failed)),
		zap.Int64("words", result.Words),
		zap.Int64("retries", result.Retries),
		zap.Duration("duration", result.Duration))

	if writerErr != nil {
		return result, writerErr
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if len(failed) > 0 {
		return result, fmt.Errorf("%w: %d of %d: %w", ErrSourcesFailed, len(failed), len(sources), failed[0].Err)
	}
	return result, nil
}

// tokenizeSource runs one tokenizer. Open failures still enqueue a terminal
// batch so the writer finalizes the source.
func (p *Pipeline) tokenizeSource(ctx context.Context, tok *tokenize.Tokenizer, q *queue.Queue[*model.Batch], src model.Source, logger *zap.Logger) {
	p.record(EventStarted)
	p.cfg.Observer.OnEvent(Event{Source: src, Kind: EventStarted})

	f, err := os.Open(src.Path)
	if err != nil {
		logger.Warn("open source", zap.String("path", src.Path), zap.Error(err))
		q.Put(ctx, &model.Batch{Source: src, Terminal: true, Err: err})
		return
	}
	defer f.Close()

	var size int64
	if fi, err := f.Stat(); err == nil {
		size = fi.Size()
	}

	emit := func(ctx context.Context, b *model.Batch) error {
		return q.Put(ctx, b)
	}
	err = tok.Run(ctx, src, f, size, emit, p.cfg.Observer.OnProgress)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("tokenizer finished with error", zap.String("path", src.Path), zap.Error(err))
	}
}

// Stop cancels the pipeline.
func (p *Pipeline) Stop() {
	p.cancel()
}

func (p *Pipeline) record(kind EventKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case EventStarted:
		p.progress.Started++
	case EventDone:
		p.progress.Done++
	case EventFailed:
		p.progress.Failed++
	}
}

func (p *Pipeline) startTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Progress returns current lifecycle counts.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr := p.progress
	if !p.started.IsZero() {
		pr.Elapsed = time.Since(p.started)
	}
	return pr
}

// Status returns an aggregate status line such as "3/5 done, 1 failed, 1 running".
func (p *Pipeline) Status() string {
	pr := p.Progress()
	if pr.Total == 0 {
		return "idle"
	}
	return fmt.Sprintf("%d/%d done, %d failed, %d running", pr.Done, pr.Total, pr.Failed, pr.Running())
}

// CanonicalPath returns the absolute, symlink-resolved form of path. Paths
// that cannot be resolved are returned absolute and cleaned.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// IngestFiles is a convenience function to ingest paths with default settings.
func IngestFiles(ctx context.Context, st store.Writer, paths []string, logger *zap.Logger) (*Result, error) {
	return New(st, Config{Paths: paths}, logger).Run(ctx)
}
