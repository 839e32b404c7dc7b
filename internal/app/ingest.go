package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Zerofisher/wordchain/internal/config"
	"github.com/Zerofisher/wordchain/internal/metrics"
	"github.com/Zerofisher/wordchain/pkg/ingest"
	"github.com/Zerofisher/wordchain/tokenize"
)

// IngestConfig holds the ingest flow configuration.
type IngestConfig struct {
	Config      *config.Config
	Paths       []string
	MetricsAddr string // Serve Prometheus metrics while running ("" disables)
	Observer    ingest.Observer
}

// PipelineConfig maps settings onto the ingest pipeline.
func PipelineConfig(cfg *config.Config, paths []string, obs ingest.Observer) ingest.Config {
	return ingest.Config{
		Paths:         paths,
		QueueCapacity: cfg.Ingest.QueueCapacity,
		Concurrency:   cfg.Ingest.TokenizerConcurrency,
		Tokenizer: tokenize.Config{
			FlushEveryTokens:     cfg.Tokenizer.FlushEveryTokens,
			FlushUniqueThreshold: cfg.Tokenizer.FlushUniqueThreshold,
			SingleBatch:          cfg.Tokenizer.SingleBatch,
		},
		Writer: ingest.WriterConfig{
			SubBatch:         cfg.Writer.SubBatch,
			ResolveChunk:     cfg.Writer.IDResolveChunk,
			RetryMaxBatch:    cfg.Writer.RetryMaxBatch,
			RetryMaxFinalize: cfg.Writer.RetryMaxFinalize,
		},
		Observer: obs,
	}
}

// RunIngest executes the ingest flow: open store -> run pipeline -> close.
// The returned Result is nil only when the store could not be opened.
func RunIngest(ctx context.Context, cfg IngestConfig, logger *zap.Logger) (*ingest.Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. Metrics endpoint
	if cfg.MetricsAddr != "" {
		_, stop, err := ServeMetrics(cfg.MetricsAddr, logger)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	// 2. Open store
	st, err := OpenStore(cfg.Config, logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	// 3. Run pipeline
	p := ingest.New(st, PipelineConfig(cfg.Config, cfg.Paths, cfg.Observer), logger)
	return p.Run(ctx)
}

// ServeMetrics serves metrics.Handler on addr until the returned stop
// function is called. It returns the bound address.
func ServeMetrics(addr string, logger *zap.Logger) (bound string, stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		<-done
	}, nil
}
