// setup.go implements the "scout setup" command that checks configuration.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/berth-dev/scout/internal/config"
)

const defaultConfigFile = "scout.yaml"

func newSetupCmd(a *app) *cobra.Command {
	var writeConfig bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Check configuration and API keys",
		Long: `Check that scout is ready to run: look for a .env file, validate the
configuration and print the provider, model, search engine and storage
locations in use. With --write-config a default scout.yaml is written to the
current directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Scout - Setup"))
			fmt.Fprintln(out)

			if writeConfig {
				if _, err := os.Stat(defaultConfigFile); err == nil {
					return fmt.Errorf("%s already exists; remove it first to write a fresh one", defaultConfigFile)
				}
				if err := config.WriteConfig(defaultConfigFile, config.DefaultConfig()); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s Wrote %s\n", checkMark, defaultConfigFile)
			}

			if _, err := os.Stat(config.DotEnvFile); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(out, "%s %s file not found\n", warningMark, config.DotEnvFile)
				fmt.Fprintln(out, "  Copy .env.example to .env and add your API keys, or export them:")
				fmt.Fprintln(out, dimStyle.Render("  cp .env.example .env"))
			} else {
				fmt.Fprintf(out, "%s %s file found\n", checkMark, config.DotEnvFile)
			}

			cfg := a.cfg
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "%s Configuration error: %v\n", failureMark, err)
				return err
			}

			fmt.Fprintf(out, "%s Configuration valid\n", checkMark)
			fmt.Fprintf(out, "%s AI Provider: %s\n", checkMark, cfg.LLM.Provider)
			fmt.Fprintf(out, "%s Model: %s\n", checkMark, cfg.ModelName())
			fmt.Fprintf(out, "%s Search Engine: %s\n", checkMark, cfg.Search.Engine)
			fmt.Fprintf(out, "%s Database: %s\n", checkMark, cfg.Storage.DatabasePath)
			fmt.Fprintf(out, "%s Reports Directory: %s\n", checkMark, cfg.Storage.ReportDir)

			fmt.Fprintln(out)
			fmt.Fprintln(out, okStyle.Render("Setup complete! You're ready to start researching."))
			fmt.Fprintln(out, dimStyle.Render(`Try: scout research "your topic here"`))
			return nil
		},
	}

	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Write a default "+defaultConfigFile+" to the current directory")

	return cmd
}
