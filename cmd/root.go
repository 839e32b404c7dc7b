// Package cmd provides the CLI commands for wordchain using Cobra.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zerofisher/wordchain/internal/app"
	"github.com/Zerofisher/wordchain/internal/config"
	"github.com/Zerofisher/wordchain/internal/logging"
	"github.com/Zerofisher/wordchain/pkg/query"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// global flags
var (
	cfgFile  string
	dbPath   string
	logLevel string
)

// Loaded in PersistentPreRunE.
var (
	appConfig *config.Config
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wordchain",
	Short: "Word and bigram statistics from text files",
	Long: `Wordchain tokenizes text files into a word database that records, for
every normalized word, how often it occurs, starts and ends a sentence, and
which words directly follow it.

Examples:
  wordchain ingest books/*.txt                     # Build or extend the database
  wordchain words --limit 20                       # Most frequent words
  wordchain words -Y 'end_ratio > 0.5' -T csv      # Filtered CSV export
  wordchain follow the                             # Words that follow "the"
  wordchain stats report -o report.md              # Markdown report`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// command through its context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Define command groups for organized help output
	rootCmd.AddGroup(
		&cobra.Group{ID: "input", Title: "Input Commands:"},
		&cobra.Group{ID: "analysis", Title: "Analysis Commands:"},
		&cobra.Group{ID: "info", Title: "Information Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"YAML config file (environment variables override it)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "",
		"SQLite database file (overrides DB_NAME)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	// Add subcommands
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(wordsCmd)
	rootCmd.AddCommand(wordCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(listCmd)
}

// setup loads configuration and builds the logger.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Database.Name = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	l, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	appConfig, logger = cfg, l
	return nil
}

// withEngine opens the database read-only for the duration of fn.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *query.SQLiteEngine) error) error {
	engine, err := app.OpenEngine(appConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w (run \"wordchain ingest\" first)", err)
		}
		return err
	}
	defer engine.Close()
	return fn(cmd.Context(), engine)
}
