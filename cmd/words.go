package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/wordchain/export"
	"github.com/Zerofisher/wordchain/internal/app"
	"github.com/Zerofisher/wordchain/pkg/model"
	"github.com/Zerofisher/wordchain/pkg/query"
)

// words command flags
var (
	wordsDisplayFilter string
	wordsSort          string
	wordsOrder         string
	wordsLimit         int
	wordsOffset        int
	wordsClass         string
	wordsMinTotal      int64
	wordsPrefix        string
	wordsFormat        string
	wordsFields        []string
	wordsSeparator     string
	wordsHeader        bool
)

var wordsCmd = &cobra.Command{
	Use:   "words",
	Short: "List words with their counts",
	Long: `List words from the database, most frequent first.

Filter expressions use the fields id, token, length, class, total, start,
end, start_ratio, end_ratio, is_alpha and is_misc.`,
	Example: `  wordchain words --limit 20
  wordchain words --sort end --prefix th
  wordchain words -Y 'total > 100 && end_ratio > 0.3' -T json
  wordchain words -T fields -e word.token -e word.total -E ,`,
	Args:    cobra.NoArgs,
	GroupID: "analysis",
	RunE:    runWords,
}

var wordCmd = &cobra.Command{
	Use:     "word <token>",
	Short:   "Show one word",
	Long:    `Show a word's id, counts, end count and top followers.`,
	Example: `  wordchain word hello`,
	Args:    cobra.ExactArgs(1),
	GroupID: "analysis",
	RunE:    runWord,
}

// files command flags
var filesFormat string

var filesCmd = &cobra.Command{
	Use:     "files",
	Short:   "List ingested files",
	Example: `  wordchain files
  wordchain files -T json`,
	Args:    cobra.NoArgs,
	GroupID: "info",
	RunE:    runFiles,
}

func init() {
	wordsCmd.Flags().StringVarP(&wordsDisplayFilter, "filter", "Y", "",
		"Filter expression (e.g. 'total > 10 && is_alpha')")
	wordsCmd.Flags().StringVar(&wordsSort, "sort", "total",
		"Sort by: total, start, end, token, id")
	wordsCmd.Flags().StringVar(&wordsOrder, "order", "",
		"Sort order: asc or desc (default desc, asc for token)")
	wordsCmd.Flags().IntVarP(&wordsLimit, "limit", "c", 0, "Stop after n words (0 = unlimited)")
	wordsCmd.Flags().IntVar(&wordsOffset, "offset", 0, "Skip the first n words")
	wordsCmd.Flags().StringVar(&wordsClass, "class", "", "Word class: alpha or misc")
	wordsCmd.Flags().Int64Var(&wordsMinTotal, "min-total", 0, "Only words seen at least n times")
	wordsCmd.Flags().StringVar(&wordsPrefix, "prefix", "", "Only words starting with this prefix")
	wordsCmd.Flags().StringVarP(&wordsFormat, "format", "T", "text",
		"Output format: text, json, fields or csv")
	wordsCmd.Flags().StringArrayVarP(&wordsFields, "field", "e", nil,
		"Field to output with -T fields or csv (can be specified multiple times)")
	wordsCmd.Flags().StringVarP(&wordsSeparator, "separator", "E", "",
		"Field separator for -T fields (default tab)")
	wordsCmd.Flags().BoolVar(&wordsHeader, "header", false,
		"Print a header line with -T fields")

	filesCmd.Flags().StringVarP(&filesFormat, "format", "T", "text", "Output format: text or json")
}

// runWords exports words
func runWords(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(wordsFormat)
	if err != nil {
		return err
	}
	if err := app.ValidateFields(format, wordsFields); err != nil {
		return err
	}
	switch wordsSort {
	case "total", "start", "end", "token", "id":
	default:
		return fmt.Errorf("unknown sort column %q", wordsSort)
	}
	orderStr := wordsOrder
	if orderStr == "" && wordsSort == "token" {
		orderStr = "asc"
	}
	order, err := query.ParseOrder(orderStr)
	if err != nil {
		return err
	}
	var class model.WordClass
	switch strings.ToLower(wordsClass) {
	case "":
	case "alpha", "misc":
		class = model.ParseWordClass(strings.ToLower(wordsClass))
	default:
		return fmt.Errorf("unknown word class %q (want alpha or misc)", wordsClass)
	}

	cfg := app.ExportConfig{
		Words: query.WordFilter{
			Offset:    wordsOffset,
			Limit:     wordsLimit,
			Class:     class,
			MinTotal:  wordsMinTotal,
			Prefix:    wordsPrefix,
			SortBy:    wordsSort,
			SortOrder: string(order),
		},
		DisplayFilter: wordsDisplayFilter,
		Format:        format,
		Fields:        wordsFields,
		Separator:     wordsSeparator,
		Header:        wordsHeader,
	}
	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		_, err := app.RunExport(ctx, os.Stdout, engine, cfg)
		return err
	})
}

// runWord prints a single word
func runWord(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		w, err := engine.GetWord(ctx, args[0])
		if err != nil {
			return err
		}
		end, err := engine.EndCount(ctx, w.Token)
		if err != nil {
			return err
		}
		fcs, err := engine.FollowersWithCounts(ctx, w.Token)
		if err != nil {
			return err
		}

		fmt.Printf("Word:      %s\n", w.Token)
		fmt.Printf("ID:        %d\n", w.ID)
		fmt.Printf("Class:     %s\n", w.Class)
		fmt.Printf("Total:     %d\n", w.Total)
		fmt.Printf("Start:     %d\n", w.Start)
		fmt.Printf("End:       %d\n", end)
		fmt.Printf("Followers: %d\n", len(fcs))
		for i, fc := range fcs {
			if i == 5 {
				fmt.Printf("  ... %d more\n", len(fcs)-i)
				break
			}
			fmt.Printf("  %-20s %d\n", fc.Token, fc.Count)
		}
		return nil
	})
}

// runFiles lists ingested files
func runFiles(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(filesFormat)
	if err != nil {
		return err
	}
	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		files, err := engine.GetFiles(ctx)
		if err != nil {
			return err
		}
		switch format {
		case export.FormatText:
			return export.ExportFiles(os.Stdout, files)
		case export.FormatJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(files)
		default:
			return fmt.Errorf("unsupported format for files: %s", format)
		}
	})
}
