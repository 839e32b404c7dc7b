// Package tokenize turns a UTF-8 text stream into pre-aggregated word and
// bigram deltas. One Run handles one source and always ends with exactly one
// terminal batch unless the emit itself is cancelled.
package tokenize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Zerofisher/wordchain/internal/metrics"
	"github.com/Zerofisher/wordchain/pkg/model"
)

// ErrDecode is returned when the input is not valid UTF-8.
var ErrDecode = errors.New("invalid utf-8 input")

// Defaults for Config fields left at zero.
const (
	DefaultFlushEveryTokens     = 10_000
	DefaultFlushUniqueThreshold = 5_000
	DefaultProgressInterval     = 8 * 1024
)

// Config controls flushing and progress cadence.
type Config struct {
	// FlushEveryTokens flushes after this many alpha tokens.
	FlushEveryTokens int

	// FlushUniqueThreshold flushes when the unique word or bigram map reaches this size.
	FlushUniqueThreshold int

	// SingleBatch disables intermediate flushes: one terminal batch per source.
	SingleBatch bool

	// ProgressInterval is the number of bytes between progress reports.
	ProgressInterval int64
}

func (c Config) withDefaults() Config {
	if c.FlushEveryTokens <= 0 {
		c.FlushEveryTokens = DefaultFlushEveryTokens
	}
	if c.FlushUniqueThreshold <= 0 {
		c.FlushUniqueThreshold = DefaultFlushUniqueThreshold
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	return c
}

// Emitter hands a batch to the queue. It may block and must honour ctx.
type Emitter func(ctx context.Context, b *model.Batch) error

// ProgressFunc receives a monotonic fraction in [0, 1] for a source.
type ProgressFunc func(src model.Source, fraction float64)

// Tokenizer is stateless between runs and safe for concurrent use.
type Tokenizer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a tokenizer.
func New(cfg Config, logger *zap.Logger) *Tokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tokenizer{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the effective configuration.
func (t *Tokenizer) Config() Config {
	return t.cfg
}

// Run tokenizes r on behalf of src. size is the expected byte length used for
// progress (<= 0 if unknown). A read or decode failure stops consumption,
// is attached to the terminal batch and returned.
func (t *Tokenizer) Run(ctx context.Context, src model.Source, r io.Reader, size int64, emit Emitter, progress ProgressFunc) error {
	st := &run{
		cfg:      t.cfg,
		src:      src,
		size:     size,
		emit:     emit,
		progress: progress,
		logger:   t.logger.With(zap.String("path", src.Path)),
		words:    make(map[string]*model.WordDelta),
		bigrams:  make(map[model.BigramKey]int64),
		atStart:  true,
	}

	br := bufio.NewReaderSize(r, 64*1024)
	var readErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if !utf8.ValidString(line) {
				readErr = fmt.Errorf("%w: line starting at byte %d", ErrDecode, st.processed)
				break
			}
			st.processed += int64(len(line))
			if ferr := st.consumeLine(ctx, line); ferr != nil {
				return ferr
			}
			st.maybeReport()
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("read %s: %w", src.Path, err)
			break
		}
	}

	if err := st.flush(ctx, true, readErr); err != nil {
		return err
	}
	if readErr != nil {
		st.logger.Warn("tokenizer stopped early", zap.Error(readErr))
		return readErr
	}
	st.report(1.0)
	return nil
}

// run is the per-source state machine and its count maps.
type run struct {
	cfg      Config
	src      model.Source
	size     int64
	emit     Emitter
	progress ProgressFunc
	logger   *zap.Logger

	words   map[string]*model.WordDelta
	bigrams map[model.BigramKey]int64

	atStart    bool   // AT_SENTENCE_START
	prev       string // previous in-sentence alpha token, "" if none
	sinceFlush int    // alpha tokens since the last flush

	processed    int64
	lastReported int64
	lastFraction float64
	batches      int
}

func (s *run) consumeLine(ctx context.Context, line string) error {
	for _, raw := range strings.Fields(line) {
		s.observe(raw)
		if s.shouldFlush() {
			if err := s.flush(ctx, false, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// observe applies one raw token to the state machine.
func (s *run) observe(raw string) {
	ends := EndsSentence(raw)

	if IsNumeric(raw) {
		s.prev = ""
		return
	}

	token := Normalize(raw)
	if token != "" && Classify(token) == model.ClassAlpha {
		d, ok := s.words[token]
		if !ok {
			d = &model.WordDelta{Token: token, Class: model.ClassAlpha}
			s.words[token] = d
		}
		d.Total++
		if s.atStart {
			d.Begin++
			s.atStart = false
		}
		if ends {
			d.End++
		}
		if s.prev != "" {
			if _, ok := s.words[s.prev]; !ok {
				// Zero delta so the batch can resolve its own bigrams.
				s.words[s.prev] = &model.WordDelta{Token: s.prev, Class: model.ClassAlpha}
			}
			s.bigrams[model.BigramKey{First: s.prev, Second: token}]++
		}
		s.prev = token
		s.sinceFlush++
	} else {
		// Bigrams only span consecutive alpha tokens.
		s.prev = ""
	}

	if ends {
		s.prev = ""
		s.atStart = true
	}
}

func (s *run) shouldFlush() bool {
	if s.cfg.SingleBatch {
		return false
	}
	return s.sinceFlush >= s.cfg.FlushEveryTokens ||
		len(s.words) >= s.cfg.FlushUniqueThreshold ||
		len(s.bigrams) >= s.cfg.FlushUniqueThreshold
}

// flush drains both maps into a batch and emits it.
func (s *run) flush(ctx context.Context, terminal bool, cause error) error {
	if !terminal && len(s.words) == 0 && len(s.bigrams) == 0 {
		return nil
	}

	b := &model.Batch{
		Source:    s.src,
		Words:     make([]model.WordDelta, 0, len(s.words)),
		Bigrams:   make([]model.BigramDelta, 0, len(s.bigrams)),
		Processed: s.processed,
		Terminal:  terminal,
		Err:       cause,
	}
	for _, d := range s.words {
		b.Words = append(b.Words, *d)
	}
	for k, n := range s.bigrams {
		b.Bigrams = append(b.Bigrams, model.BigramDelta{Key: k, Count: n})
	}

	metrics.TokenizerTokens.Add(float64(s.sinceFlush))
	s.logger.Debug("flush batch",
		zap.Int("words", len(b.Words)),
		zap.Int("bigrams", len(b.Bigrams)),
		zap.Int64("processed", s.processed),
		zap.Bool("terminal", terminal))

	s.words = make(map[string]*model.WordDelta)
	s.bigrams = make(map[model.BigramKey]int64)
	s.sinceFlush = 0
	s.batches++

	if err := s.emit(ctx, b); err != nil {
		return err
	}
	if !terminal {
		s.reportProcessed()
	}
	return nil
}

func (s *run) maybeReport() {
	if s.processed-s.lastReported >= s.cfg.ProgressInterval {
		s.reportProcessed()
	}
}

func (s *run) reportProcessed() {
	s.lastReported = s.processed
	if s.size <= 0 {
		return
	}
	s.report(float64(s.processed) / float64(s.size))
}

// report forwards a capped, non-decreasing fraction.
func (s *run) report(f float64) {
	if s.progress == nil {
		return
	}
	if f > 1 {
		f = 1
	}
	if f < s.lastFraction {
		return
	}
	s.lastFraction = f
	s.progress(s.src, f)
}
