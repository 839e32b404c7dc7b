package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zerofisher/wordchain/export"
	"github.com/Zerofisher/wordchain/internal/app"
	"github.com/Zerofisher/wordchain/pkg/query"
)

// follow command flags
var (
	followOrder     string
	followFormat    string
	followLimit     int
	followSeparator string
	followTokens    bool
)

var followCmd = &cobra.Command{
	Use:   "follow <word>",
	Short: "Show the words that follow a word",
	Long: `Show every word observed directly after the given word, with the
number of times the pair occurred. The word is normalized before lookup.`,
	Example: `  wordchain follow the
  wordchain follow the --order asc -c 10
  wordchain follow The -T json`,
	Args:    cobra.ExactArgs(1),
	GroupID: "analysis",
	RunE:    runFollow,
}

func init() {
	followCmd.Flags().StringVar(&followOrder, "order", "desc",
		"Count order: asc or desc")
	followCmd.Flags().StringVarP(&followFormat, "format", "T", "text",
		"Output format: text, json, fields or csv")
	followCmd.Flags().IntVarP(&followLimit, "limit", "c", 0,
		"Stop after n followers (0 = unlimited)")
	followCmd.Flags().StringVarP(&followSeparator, "separator", "E", "",
		"Field separator for -T fields (default tab)")
	followCmd.Flags().BoolVar(&followTokens, "tokens", false,
		"Print follower tokens only, one per line")
}

// runFollow prints the followers of a word
func runFollow(cmd *cobra.Command, args []string) error {
	order, err := query.ParseOrder(followOrder)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(followFormat)
	if err != nil {
		return err
	}

	return withEngine(cmd, func(ctx context.Context, engine *query.SQLiteEngine) error {
		if followTokens {
			tokens, err := engine.Followers(ctx, args[0], order)
			if err != nil {
				return err
			}
			for i, t := range tokens {
				if followLimit > 0 && i >= followLimit {
					break
				}
				if _, err := os.Stdout.WriteString(t + "\n"); err != nil {
					return err
				}
			}
			return nil
		}

		_, err := app.RunFollowers(ctx, os.Stdout, engine, args[0], order, app.ExportConfig{
			Format:    format,
			MaxCount:  followLimit,
			Separator: followSeparator,
		})
		return err
	})
}
