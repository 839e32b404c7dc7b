package ingest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/wordchain/internal/metrics"
	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/queue"
	"github.com/Zerofisher/wordchain/pkg/store"
)

// WriterConfig holds statement sizing and retry budgets.
type WriterConfig struct {
	// SubBatch is the number of rows per upsert statement. Defaults to 500.
	SubBatch int

	// ResolveChunk is the number of tokens per id lookup. Defaults to 1000.
	ResolveChunk int

	// RetryMaxBatch bounds attempts for the batch steps. Defaults to 5.
	RetryMaxBatch int

	// RetryMaxFinalize bounds attempts for the file total update. Defaults to 3.
	RetryMaxFinalize int

	// Backoff between retries. Zero value means DefaultBackoff.
	Backoff Backoff
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.SubBatch <= 0 {
		c.SubBatch = 500
	}
	c.SubBatch = min(c.SubBatch, store.MaxSubBatch)
	if c.ResolveChunk <= 0 {
		c.ResolveChunk = 1000
	}
	c.ResolveChunk = min(c.ResolveChunk, store.MaxResolveChunk)
	if c.RetryMaxBatch <= 0 {
		c.RetryMaxBatch = 5
	}
	if c.RetryMaxFinalize <= 0 {
		c.RetryMaxFinalize = 3
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff
	}
	return c
}

// SourceResult is the writer's view of one source.
type SourceResult struct {
	Source    model.Source
	FileID    int64
	Words     int64 // Committed alpha tokens
	Batches   int   // Committed batches
	Dropped   int   // Batches skipped after the source failed
	Finalized bool
	Err       error
}

// Failed reports whether the source ended in error.
func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// Transaction steps, used for retry budgets and error context.
const (
	stepEnsureFile = "ensure file"
	stepBegin      = "begin"
	stepWords      = "upsert words"
	stepResolve    = "resolve ids"
	stepFollowers  = "upsert followers"
	stepFinalize   = "update file total"
	stepCommit     = "commit"
)

// Writer is the single consumer applying batches to the store. Each batch
// is one transaction; a source is finalized when its terminal batch commits.
type Writer struct {
	st     store.Writer
	q      *queue.Queue[*model.Batch]
	cfg    WriterConfig
	logger *zap.Logger

	mu         sync.Mutex
	sources    map[int]*SourceResult
	pending    int
	sealed     bool
	onFinalize func(SourceResult)

	wake    chan struct{}
	retries atomic.Int64
}

// NewWriter creates a writer consuming q.
func NewWriter(st store.Writer, q *queue.Queue[*model.Batch], cfg WriterConfig, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		st:      st,
		q:       q,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sources: make(map[int]*SourceResult),
		wake:    make(chan struct{}, 1),
	}
}

// OnFinalize registers fn to be called, from the writer goroutine, each
// time a source is finalized. Set it before Run.
func (w *Writer) OnFinalize(fn func(SourceResult)) {
	w.mu.Lock()
	w.onFinalize = fn
	w.mu.Unlock()
}

// Enroll registers a source whose terminal batch the writer must see.
func (w *Writer) Enroll(src model.Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enrollLocked(src)
}

func (w *Writer) enrollLocked(src model.Source) *SourceResult {
	if r, ok := w.sources[src.ID]; ok {
		return r
	}
	r := &SourceResult{Source: src}
	w.sources[src.ID] = r
	w.pending++
	return r
}

// Seal announces that no further sources will be enrolled. Run returns
// once every enrolled source is finalized.
func (w *Writer) Seal() {
	w.mu.Lock()
	w.sealed = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Retries returns the number of transactions retried so far.
func (w *Writer) Retries() int64 {
	return w.retries.Load()
}

// Results returns a snapshot of every enrolled source keyed by source id.
func (w *Writer) Results() map[int]SourceResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[int]SourceResult, len(w.sources))
	for id, r := range w.sources {
		out[id] = *r
	}
	return out
}

func (w *Writer) finished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealed && w.pending == 0
}

// Run consumes batches until the writer is sealed and every enrolled source
// is finalized, or until ctx is done. Store failures are recorded per source
// and never stop the loop; on cancellation the in-flight transaction is
// rolled back and ctx.Err() is returned.
func (w *Writer) Run(ctx context.Context) error {
	for {
		if w.finished() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.wake:
		case b := <-w.q.C():
			metrics.QueueDepth.Set(float64(w.q.Len()))
			if err := w.handle(ctx, b); err != nil {
				return err
			}
		}
	}
}

// handle applies one batch. It only returns an error on cancellation.
func (w *Writer) handle(ctx context.Context, b *model.Batch) error {
	w.mu.Lock()
	res := w.enrollLocked(b.Source)
	finalized, failed := res.Finalized, res.Err != nil
	w.mu.Unlock()

	logger := w.logger.With(zap.Int("source", b.Source.ID), zap.String("path", b.Source.Path))

	if finalized {
		logger.Warn("batch after terminal batch ignored")
		metrics.WriterBatches.WithLabelValues(metrics.OutcomeDropped).Inc()
		return nil
	}

	if failed {
		w.mu.Lock()
		res.Dropped++
		w.mu.Unlock()
		metrics.WriterBatches.WithLabelValues(metrics.OutcomeDropped).Inc()
		if b.Terminal {
			w.finalize(res)
		}
		return nil
	}

	start := time.Now()
	err := w.apply(ctx, res, b)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil {
		logger.Error("source failed", zap.Error(err))
		metrics.WriterBatches.WithLabelValues(metrics.OutcomeFailed).Inc()
		w.mu.Lock()
		res.Err = err
		w.mu.Unlock()
		w.recordPartial(ctx, res, logger)
	} else {
		metrics.WriterBatchDuration.Observe(time.Since(start).Seconds())
		metrics.WriterBatches.WithLabelValues(metrics.OutcomeCommitted).Inc()
		logger.Debug("batch committed",
			zap.Int("words", len(b.Words)),
			zap.Int("bigrams", len(b.Bigrams)),
			zap.Int64("processed", b.Processed),
			zap.Bool("terminal", b.Terminal))
	}

	if b.Terminal {
		if b.Err != nil {
			w.mu.Lock()
			if res.Err == nil {
				res.Err = fmt.Errorf("%w: %w", ErrIO, b.Err)
			}
			w.mu.Unlock()
		}
		w.finalize(res)
	}
	return nil
}

func (w *Writer) finalize(res *SourceResult) {
	w.mu.Lock()
	res.Finalized = true
	w.pending--
	snapshot := *res
	fn := w.onFinalize
	w.mu.Unlock()

	if snapshot.Err != nil {
		w.logger.Warn("source finalized with error",
			zap.String("path", snapshot.Source.Path),
			zap.Int("dropped", snapshot.Dropped),
			zap.Error(snapshot.Err))
	} else {
		w.logger.Info("source finalized",
			zap.String("path", snapshot.Source.Path),
			zap.Int64("words", snapshot.Words),
			zap.Int("batches", snapshot.Batches))
	}
	if fn != nil {
		fn(snapshot)
	}
}

// recordPartial adds the words of batches committed before a source failed
// to the file's word count, so word totals and file totals stay in step.
// It is a single best-effort attempt.
func (w *Writer) recordPartial(ctx context.Context, res *SourceResult, logger *zap.Logger) {
	w.mu.Lock()
	fileID, n := res.FileID, res.Words
	w.mu.Unlock()
	if fileID == 0 || n == 0 {
		return
	}

	err := w.st.BeginBatch(ctx)
	if err == nil {
		err = w.st.AddFileWordCount(ctx, fileID, n)
	}
	if err == nil {
		err = w.st.CommitBatch()
	}
	if err != nil {
		if rerr := w.st.RollbackBatch(); rerr != nil {
			logger.Debug("rollback failed", zap.Error(rerr))
		}
		logger.Warn("partial file word count not recorded", zap.Int64("words", n), zap.Error(err))
		return
	}
	logger.Info("partial file word count recorded", zap.Int64("words", n))
}

// apply runs the batch transaction, retrying transient failures with
// backoff. Failures in the file total step count against RetryMaxFinalize,
// all others against RetryMaxBatch.
func (w *Writer) apply(ctx context.Context, res *SourceResult, b *model.Batch) error {
	words := slices.Clone(b.Words)
	model.SortWordDeltas(words)
	total := b.WordTotal()

	var batchFailures, finalizeFailures int
	for {
		step, err := w.applyOnce(ctx, res, b, words, total)
		if err == nil {
			w.mu.Lock()
			res.Words += total
			res.Batches++
			w.mu.Unlock()
			return nil
		}

		if rerr := w.st.RollbackBatch(); rerr != nil {
			w.logger.Debug("rollback failed", zap.Error(rerr))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !store.IsTransient(err) {
			return fmt.Errorf("%w: %s: %w", ErrFatalStore, step, err)
		}

		failures, limit := &batchFailures, w.cfg.RetryMaxBatch
		if step == stepFinalize {
			failures, limit = &finalizeFailures, w.cfg.RetryMaxFinalize
		}
		*failures++
		if *failures >= limit {
			return fmt.Errorf("%w: %s: gave up after %d attempts: %w", ErrFatalStore, step, *failures, err)
		}

		delay := w.cfg.Backoff.Delay(*failures - 1)
		w.retries.Add(1)
		metrics.WriterRetries.Inc()
		metrics.WriterBatches.WithLabelValues(metrics.OutcomeRetried).Inc()
		w.logger.Warn("transient store error, retrying",
			zap.String("path", b.Source.Path),
			zap.String("step", step),
			zap.Int("attempt", *failures),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// applyOnce runs one attempt and reports the step that failed.
func (w *Writer) applyOnce(ctx context.Context, res *SourceResult, b *model.Batch, words []model.WordDelta, total int64) (string, error) {
	w.mu.Lock()
	fileID := res.FileID
	w.mu.Unlock()

	if fileID == 0 {
		id, err := w.st.EnsureFile(ctx, b.Source.Path)
		if err != nil {
			return stepEnsureFile, err
		}
		w.mu.Lock()
		res.FileID = id
		w.mu.Unlock()
		fileID = id
	}

	if err := w.st.BeginBatch(ctx); err != nil {
		return stepBegin, err
	}

	for chunk := range slices.Chunk(words, w.cfg.SubBatch) {
		if err := w.st.UpsertWords(ctx, chunk); err != nil {
			return stepWords, err
		}
	}

	followers, err := w.resolve(ctx, b.Bigrams)
	if err != nil {
		return stepResolve, err
	}
	for chunk := range slices.Chunk(followers, w.cfg.SubBatch) {
		if err := w.st.UpsertFollowers(ctx, chunk); err != nil {
			return stepFollowers, err
		}
	}

	if b.Terminal {
		w.mu.Lock()
		n := res.Words + total
		w.mu.Unlock()
		if err := w.st.AddFileWordCount(ctx, fileID, n); err != nil {
			return stepFinalize, err
		}
	}

	if err := w.st.CommitBatch(); err != nil {
		return stepCommit, err
	}
	return "", nil
}

// resolve maps bigrams to id pairs sorted by (from, to). Pairs whose tokens
// are not in the word table are dropped.
func (w *Writer) resolve(ctx context.Context, bigrams []model.BigramDelta) ([]model.FollowerDelta, error) {
	if len(bigrams) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(bigrams))
	for _, bg := range bigrams {
		seen[bg.Key.First] = struct{}{}
		seen[bg.Key.Second] = struct{}{}
	}
	tokens := make([]string, 0, len(seen))
	for t := range seen {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)

	ids := make(map[string]int64, len(tokens))
	for chunk := range slices.Chunk(tokens, w.cfg.ResolveChunk) {
		m, err := w.st.ResolveIDs(ctx, chunk)
		if err != nil {
			return nil, err
		}
		for t, id := range m {
			ids[t] = id
		}
	}

	deltas := make([]model.FollowerDelta, 0, len(bigrams))
	for _, bg := range bigrams {
		from, okFrom := ids[bg.Key.First]
		to, okTo := ids[bg.Key.Second]
		deltas = append(deltas, model.FollowerDelta{
			FromID:   from,
			ToID:     to,
			Count:    bg.Count,
			Resolved: okFrom && okTo,
		})
	}
	model.SortFollowerDeltas(deltas)

	resolved := len(deltas)
	for i, d := range deltas {
		if !d.Resolved {
			resolved = i
			break
		}
	}
	if skipped := len(deltas) - resolved; skipped > 0 {
		w.logger.Debug("unresolved bigrams skipped", zap.Int("count", skipped))
	}
	return deltas[:resolved], nil
}

