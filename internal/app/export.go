package app

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/Zerofisher/wordchain/export"
	"github.com/Zerofisher/wordchain/filter"
	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/tokenize"
)

// ExportConfig holds export configuration.
type ExportConfig struct {
	Words         query.WordFilter
	DisplayFilter string
	Format        export.OutputFormat
	MaxCount      int
	Fields        []string
	Separator     string
	Header        bool
}

// RunExport executes the export flow: query -> filter -> export.
func RunExport(ctx context.Context, out io.Writer, engine query.QueryEngine, cfg ExportConfig) (int, error) {
	// 1. Compile display filter
	filterFunc, err := CompileDisplayFilter(cfg.DisplayFilter)
	if err != nil {
		return 0, fmt.Errorf("error compiling display filter: %w", err)
	}

	// 2. Query words. The row limit is applied after filtering.
	wf := cfg.Words
	if filterFunc != nil {
		wf.Limit, wf.Offset = 0, 0
	}
	words, err := engine.GetWords(ctx, wf)
	if err != nil {
		return 0, fmt.Errorf("error querying words: %w", err)
	}

	// 3. Create exporter
	exporter := export.NewExporter(out, cfg.Format)
	limit := cfg.MaxCount
	if filterFunc != nil && cfg.Words.Limit > 0 && (limit == 0 || cfg.Words.Limit < limit) {
		limit = cfg.Words.Limit
	}
	exporter.SetMaxCount(limit)
	if len(cfg.Fields) > 0 {
		if err := exporter.SetFields(cfg.Fields); err != nil {
			return 0, err
		}
	}
	exporter.SetSeparator(cfg.Separator)
	exporter.SetHeader(cfg.Header)

	if err := exporter.Start(); err != nil {
		return 0, fmt.Errorf("error starting export: %w", err)
	}

	// 4. Export rows
	skip := 0
	if filterFunc != nil {
		skip = cfg.Words.Offset
	}
	for _, w := range words {
		if filterFunc != nil && !filterFunc(w) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if err := exporter.ExportWord(w); err != nil {
			return exporter.Count(), fmt.Errorf("error exporting word: %w", err)
		}
		if exporter.ShouldStop() {
			break
		}
	}

	return exporter.Count(), exporter.Finish()
}

// RunFollowers exports the followers of token.
func RunFollowers(ctx context.Context, out io.Writer, engine query.QueryEngine, token string, order query.Order, cfg ExportConfig) (int, error) {
	fcs, err := engine.FollowersWithCounts(ctx, token)
	if err != nil {
		return 0, err
	}
	if order == query.OrderAsc {
		slices.SortStableFunc(fcs, func(a, b model.FollowerCount) int {
			return cmp.Compare(a.Count, b.Count)
		})
	}

	exporter := export.NewExporter(out, cfg.Format)
	exporter.SetMaxCount(cfg.MaxCount)
	exporter.SetSeparator(cfg.Separator)
	if err := exporter.StartFollowers(); err != nil {
		return 0, err
	}
	from := tokenize.Normalize(token)
	for _, fc := range fcs {
		if err := exporter.ExportFollower(from, fc); err != nil {
			return exporter.Count(), err
		}
		if exporter.ShouldStop() {
			break
		}
	}
	return exporter.Count(), exporter.Finish()
}

// CompileDisplayFilter compiles a word filter expression.
// Returns nil filter function if filterStr is empty.
func CompileDisplayFilter(filterStr string) (func(*model.Word) bool, error) {
	if filterStr == "" {
		return nil, nil
	}
	return filter.Compile(filterStr)
}

// ValidateFields checks if required fields are provided for fields export.
func ValidateFields(format export.OutputFormat, fields []string) error {
	if format == export.FormatFields && len(fields) == 0 {
		return fmt.Errorf("at least one field must be specified with -e")
	}
	return nil
}
