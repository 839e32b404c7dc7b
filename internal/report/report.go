// Package report provides report generation for word databases.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/stats"
)

// Data holds all data for report generation.
type Data struct {
	// Meta
	GeneratedAt time.Time `json:"generated_at"`
	DBPath      string    `json:"db_path"`

	// Overview
	Overview *query.Overview `json:"overview"`

	// Top words
	TopWords    []*WordSummary `json:"top_words"`
	TopStarters []*WordSummary `json:"top_starters"`
	TopEnders   []*WordSummary `json:"top_enders"`

	// Top follower edges
	TopEdges []*query.Edge `json:"top_edges"`

	// Ingested files
	Files []*model.File `json:"files"`
}

// WordSummary is a simplified word for display.
type WordSummary struct {
	Token    string `json:"token"`
	Total    int64  `json:"total"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	TotalStr string `json:"-"`
}

// TopN is the length of each ranked list.
const TopN = 10

// Generate creates a report from the query engine.
func Generate(ctx context.Context, engine query.QueryEngine) (*Data, error) {
	report := &Data{
		GeneratedAt: time.Now(),
	}

	// Get overview
	overview, err := engine.GetOverview(ctx)
	if err != nil {
		return nil, fmt.Errorf("get overview: %w", err)
	}
	report.Overview = overview
	report.DBPath = overview.DBPath

	// Ranked word lists
	for _, list := range []struct {
		sortBy string
		dst    *[]*WordSummary
	}{
		{"total", &report.TopWords},
		{"start", &report.TopStarters},
		{"end", &report.TopEnders},
	} {
		words, err := engine.GetWords(ctx, query.WordFilter{
			Limit:     TopN,
			Class:     model.ClassAlpha,
			SortBy:    list.sortBy,
			SortOrder: "desc",
		})
		if err != nil {
			return nil, fmt.Errorf("get top words by %s: %w", list.sortBy, err)
		}
		for _, w := range words {
			if (list.sortBy == "start" && w.Start == 0) || (list.sortBy == "end" && w.End == 0) {
				continue
			}
			*list.dst = append(*list.dst, &WordSummary{
				Token:    w.Token,
				Total:    w.Total,
				Start:    w.Start,
				End:      w.End,
				TotalStr: stats.FormatCount(w.Total),
			})
		}
	}

	// Get top edges
	report.TopEdges, err = engine.GetTopEdges(ctx, TopN)
	if err != nil {
		return nil, fmt.Errorf("get top edges: %w", err)
	}

	// Get files
	report.Files, err = engine.GetFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("get files: %w", err)
	}

	return report, nil
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, data *Data) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// WriteMarkdown writes the report as Markdown.
func WriteMarkdown(w io.Writer, data *Data) error {
	ov := data.Overview
	p := &printer{w: w}

	p.printf("# Word Chain Report\n\n")
	p.printf("- Database: `%s`\n", data.DBPath)
	p.printf("- Generated: %s\n", data.GeneratedAt.Format(time.RFC3339))
	p.printf("- Schema version: %d\n\n", ov.SchemaVersion)

	p.printf("## Overview\n\n")
	p.printf("| Metric | Value |\n|---|---|\n")
	p.printf("| Files | %d |\n", ov.Files)
	p.printf("| Words | %d (%d alpha) |\n", ov.Words, ov.AlphaWords)
	p.printf("| Follower edges | %d |\n", ov.Edges)
	p.printf("| Tokens | %s |\n", stats.FormatCount(ov.TotalTokens))
	p.printf("| File word count | %s |\n", stats.FormatCount(ov.FileWordCount))
	p.printf("| Sentence starts | %d |\n", ov.SentenceStarts)
	p.printf("| Sentence ends | %d |\n", ov.SentenceEnds)
	p.printf("| Max end count | %d |\n", ov.MaxEndCount)
	p.printf("| Avg followers | %.2f |\n\n", ov.AvgFollowers)

	wordTable := func(title string, words []*WordSummary) {
		p.printf("## %s\n\n", title)
		if len(words) == 0 {
			p.printf("_none_\n\n")
			return
		}
		p.printf("| Word | Total | Start | End |\n|---|---:|---:|---:|\n")
		for _, ws := range words {
			p.printf("| %s | %s | %d | %d |\n", ws.Token, ws.TotalStr, ws.Start, ws.End)
		}
		p.printf("\n")
	}
	wordTable("Top Words", data.TopWords)
	wordTable("Top Sentence Starters", data.TopStarters)
	wordTable("Top Sentence Enders", data.TopEnders)

	p.printf("## Top Follower Edges\n\n")
	if len(data.TopEdges) == 0 {
		p.printf("_none_\n\n")
	} else {
		p.printf("| From | To | Count |\n|---|---|---:|\n")
		for _, e := range data.TopEdges {
			p.printf("| %s | %s | %d |\n", e.From, e.To, e.Count)
		}
		p.printf("\n")
	}

	p.printf("## Files\n\n")
	if len(data.Files) == 0 {
		p.printf("_none_\n")
	} else {
		p.printf("| ID | Path | Words | Imported |\n|---:|---|---:|---|\n")
		for _, f := range data.Files {
			p.printf("| %d | %s | %d | %s |\n", f.ID, f.Path, f.WordCount, f.DateImported.Format(time.DateOnly))
		}
	}

	return p.err
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
