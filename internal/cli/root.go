// Package cli defines Cobra command definitions for the scout CLI.
// This file contains the root command, global flags and shared wiring.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/berth-dev/scout/internal/config"
	"github.com/berth-dev/scout/internal/llm"
	"github.com/berth-dev/scout/internal/research"
	"github.com/berth-dev/scout/internal/search"
)

var version = "dev" // set via ldflags at build time

// app carries state shared by every command. The factories are replaced in
// tests.
type app struct {
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger

	newGenerator func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Generator, error)
	newSearcher  func(cfg *config.Config, logger *zap.Logger) (research.Searcher, error)
}

func defaultApp() *app {
	return &app{
		newGenerator: llm.New,
		newSearcher: func(cfg *config.Config, logger *zap.Logger) (research.Searcher, error) {
			return search.New(cfg, logger)
		},
	}
}

// Execute runs the root command and prints any error to stderr. Called from main.
func Execute() error {
	err := newRootCmd(defaultApp()).Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scout",
		Short: "AI-powered research assistant",
		Long: `Scout researches a topic for you. It plans research questions with a
language model, searches the web, extracts findings from the pages it reads
and writes a Markdown report. Every session is kept in a local database.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "Config file (default: ./scout.yaml or ~/.config/scout/scout.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(
		newResearchCmd(a),
		newSearchCmd(a),
		newListReportsCmd(a),
		newShowCmd(a),
		newSetupCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

// setup loads configuration and builds the logger.
func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(stderr, a.verbose)
	return nil
}

// newLogger builds a console logger at Warn, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if !verbose {
		encCfg.TimeKey = ""
		encCfg.CallerKey = ""
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}
