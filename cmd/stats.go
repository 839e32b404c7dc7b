package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/wordchain/internal/app"
	"github.com/Zerofisher/wordchain/internal/report"
	"github.com/Zerofisher/wordchain/pkg/query"
	"github.com/Zerofisher/wordchain/stats"
)

// stats command flags
var (
	statsDisplayFilter string
	statsLimit         int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Word statistics and reports",
	Long: `Summarize the word database. Without a subcommand an overview is printed.`,
	GroupID: "analysis",
	Args:    cobra.NoArgs,
	RunE:    runStatsOverview,
}

var statsOverviewCmd = &cobra.Command{
	Use:     "overview",
	Short:   "Show database overview",
	Example: `  wordchain stats overview`,
	RunE:    runStatsOverview,
}

var statsFreqCmd = &cobra.Command{
	Use:   "freq",
	Short: "Show the word frequency histogram",
	Example: `  wordchain stats freq
  wordchain stats freq -Y is_alpha`,
	RunE: runStatsFreq,
}

var statsLengthsCmd = &cobra.Command{
	Use:     "lengths",
	Short:   "Show the token length histogram",
	Example: `  wordchain stats lengths`,
	RunE:    runStatsLengths,
}

// positions subcommand flags
var statsPositionsMinTotal int64

var statsPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show top sentence starters and enders",
	Long: `Rank words by the share of their occurrences that open or close a
sentence. Rare words are skipped with --min-total.`,
	Example: `  wordchain stats positions
  wordchain stats positions --min-total 20 -n 10`,
	RunE: runStatsPositions,
}

var statsFanoutCmd = &cobra.Command{
	Use:     "fanout",
	Short:   "Show words with the most distinct followers",
	Example: `  wordchain stats fanout -n 30`,
	RunE:    runStatsFanout,
}

// report subcommand flags
var (
	statsReportFormat string
	statsReportOutput string
)

var statsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a database report",
	Long:  `Generate a Markdown or JSON report of the word database.`,
	Example: `  wordchain stats report
  wordchain stats report -f json -o report.json`,
	RunE: runStatsReport,
}

func init() {
	// Persistent flags for stats command (inherited by all subcommands)
	statsCmd.PersistentFlags().StringVarP(&statsDisplayFilter, "filter", "Y", "",
		"Filter expression limiting the words considered")
	statsCmd.PersistentFlags().IntVarP(&statsLimit, "limit", "n", 20,
		"Rows per table (0 = unlimited)")

	// positions flags
	statsPositionsCmd.Flags().Int64Var(&statsPositionsMinTotal, "min-total", 5,
		"Minimum occurrences for a word to be ranked")

	// report flags
	statsReportCmd.Flags().StringVarP(&statsReportFormat, "format", "f", "markdown",
		"Output format: markdown or json")
	statsReportCmd.Flags().StringVarP(&statsReportOutput, "output", "o", "",
		"Output file (default: stdout)")

	// Add subcommands
	statsCmd.AddCommand(statsOverviewCmd)
	statsCmd.AddCommand(statsFreqCmd)
	statsCmd.AddCommand(statsLengthsCmd)
	statsCmd.AddCommand(statsPositionsCmd)
	statsCmd.AddCommand(statsFanoutCmd)
	statsCmd.AddCommand(statsReportCmd)
}

// runStatsOverview prints database totals
func runStatsOverview(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		ov, err := engine.GetOverview(ctx)
		if err != nil {
			return err
		}
		printOverview(os.Stdout, ov)
		return nil
	})
}

func printOverview(w io.Writer, ov *query.Overview) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Overview")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Database:        %s (schema v%d)\n", ov.DBPath, ov.SchemaVersion)
	fmt.Fprintf(w, "Files:           %d\n", ov.Files)
	fmt.Fprintf(w, "Words:           %d (%d alpha)\n", ov.Words, ov.AlphaWords)
	fmt.Fprintf(w, "Tokens:          %s\n", stats.FormatCount(ov.TotalTokens))
	fmt.Fprintf(w, "File word count: %s\n", stats.FormatCount(ov.FileWordCount))
	fmt.Fprintf(w, "Follower edges:  %d (%.2f per word)\n", ov.Edges, ov.AvgFollowers)
	fmt.Fprintf(w, "Sentence starts: %d\n", ov.SentenceStarts)
	fmt.Fprintf(w, "Sentence ends:   %d (max per word %d)\n", ov.SentenceEnds, ov.MaxEndCount)

	if len(ov.TopWords) > 0 {
		fmt.Fprintln(w, strings.Repeat("-", 80))
		fmt.Fprintln(w, "Top words:")
		for _, word := range ov.TopWords {
			fmt.Fprintf(w, "  %-24s %10s\n", stats.Truncate(word.Token, 24), stats.FormatCount(word.Total))
		}
	}
	if len(ov.TopEdges) > 0 {
		fmt.Fprintln(w, "Top pairs:")
		for _, e := range ov.TopEdges {
			fmt.Fprintf(w, "  %-24s %10s\n", stats.Truncate(e.From+" "+e.To, 24), stats.FormatCount(e.Count))
		}
	}
	fmt.Fprintln(w, rule)
}

// loadStats builds a stats manager from the database
func loadStats(cmd *cobra.Command, followers bool, fn func(*stats.Manager)) error {
	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		mgr, err := app.LoadStats(ctx, engine, statsDisplayFilter, followers)
		if err != nil {
			return err
		}
		fn(mgr)
		return nil
	})
}

// runStatsFreq shows the word frequency histogram
func runStatsFreq(cmd *cobra.Command, args []string) error {
	return loadStats(cmd, false, func(m *stats.Manager) {
		m.PrintFrequency(os.Stdout)
	})
}

// runStatsLengths shows the token length histogram
func runStatsLengths(cmd *cobra.Command, args []string) error {
	return loadStats(cmd, false, func(m *stats.Manager) {
		m.PrintLengths(os.Stdout)
	})
}

// runStatsPositions shows sentence starters and enders
func runStatsPositions(cmd *cobra.Command, args []string) error {
	return loadStats(cmd, false, func(m *stats.Manager) {
		m.PrintPositions(os.Stdout, statsLimit, statsPositionsMinTotal)
	})
}

// runStatsFanout shows follower fan-out
func runStatsFanout(cmd *cobra.Command, args []string) error {
	return loadStats(cmd, true, func(m *stats.Manager) {
		m.PrintFanout(os.Stdout, statsLimit)
	})
}

// runStatsReport writes a Markdown or JSON report
func runStatsReport(cmd *cobra.Command, args []string) error {
	var write func(io.Writer, *report.Data) error
	switch statsReportFormat {
	case "markdown", "md":
		write = report.WriteMarkdown
	case "json":
		write = report.WriteJSON
	default:
		return fmt.Errorf("unknown format: %s", statsReportFormat)
	}

	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		data, err := report.Generate(ctx, engine)
		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}

		out := os.Stdout
		if statsReportOutput != "" && statsReportOutput != "-" {
			out, err = os.Create(statsReportOutput)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer out.Close()
		}
		return write(out, data)
	})
}
