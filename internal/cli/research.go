// research.go implements the "scout research" command.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	eventlog "github.com/berth-dev/scout/internal/log"
	"github.com/berth-dev/scout/internal/report"
	"github.com/berth-dev/scout/internal/research"
	"github.com/berth-dev/scout/internal/session"
	"github.com/berth-dev/scout/internal/ui"
)

type researchOptions struct {
	depth      string
	maxSources int
	output     string
	show       bool
}

func newResearchCmd(a *app) *cobra.Command {
	opts := &researchOptions{}

	cmd := &cobra.Command{
		Use:   "research <topic>",
		Short: "Research a topic and write a report",
		Long: `Research a topic end to end: plan questions, search the web, extract
findings from the collected pages and write a Markdown report.

Depth controls how many research questions are planned:
  quick     3 questions
  standard  5 questions
  deep      8 questions`,
		Example: `  scout research "quantum computing"
  scout research "solid-state batteries" -d deep -m 10 -o battery.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("depth") {
				opts.depth = a.cfg.Research.DefaultDepth
			}
			if !cmd.Flags().Changed("max-sources") {
				opts.maxSources = a.cfg.Research.DefaultMaxSources
			}
			return a.runResearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.depth, "depth", "d", "standard", "Research depth: quick, standard or deep")
	cmd.Flags().IntVarP(&opts.maxSources, "max-sources", "m", 5, "Maximum number of sources to analyze")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also copy the report to this path")
	cmd.Flags().BoolVar(&opts.show, "show", false, "Render the report in the terminal when done")

	return cmd
}

func (a *app) runResearch(cmd *cobra.Command, topic string, opts *researchOptions) error {
	depth := session.Depth(opts.depth)
	if !depth.Valid() {
		return fmt.Errorf("%w: %q (use quick, standard or deep)", research.ErrInvalidDepth, opts.depth)
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("%w\nRun 'scout setup' to check your configuration", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("Starting research on: "+topic))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("Depth: %s | Max sources: %d", depth, opts.maxSources)))
	fmt.Fprintln(out)

	store, err := session.Open(a.cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("%w: %w", research.ErrStoreUnavailable, err)
	}
	defer store.Close()

	pipeline, err := a.newPipeline(ctx, cmd.ErrOrStderr(), topic, store)
	if err != nil {
		return err
	}

	res, err := pipeline.run(ctx, topic, depth, opts.maxSources)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	printResearchResult(out, res)

	switch {
	case opts.output == "":
	case res.ReportPath == "":
		fmt.Fprintln(out, warningMark+" Report file was not written; nothing to copy")
	default:
		if err := report.Copy(res.ReportPath, opts.output); err != nil {
			return fmt.Errorf("copying report: %w", err)
		}
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Copied to:"), opts.output)
	}

	if opts.show {
		rendered, err := report.Render(res.Report.Content, terminalWidth(out))
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, rendered)
	}

	return nil
}

type researchRunner struct {
	pipeline *research.Pipeline
	progress *ui.ProgressDisplay
}

func (r researchRunner) run(ctx context.Context, topic string, depth session.Depth, maxSources int) (*research.Result, error) {
	defer r.progress.Finish()
	return r.pipeline.Run(ctx, topic, depth, maxSources)
}

// newPipeline wires the gateways, event log and progress display.
func (a *app) newPipeline(ctx context.Context, progressOut io.Writer, topic string, store *session.Store) (researchRunner, error) {
	gen, err := a.newGenerator(ctx, a.cfg, a.logger)
	if err != nil {
		return researchRunner{}, fmt.Errorf("creating model client: %w", err)
	}
	searcher, err := a.newSearcher(a.cfg, a.logger)
	if err != nil {
		return researchRunner{}, fmt.Errorf("creating search client: %w", err)
	}

	progress := ui.NewProgressDisplay(progressOut, topic)
	opts := []research.Option{
		research.WithLogger(a.logger),
		research.WithObserver(progress),
	}
	if a.cfg.Storage.EventLog {
		events, err := eventlog.NewLogger(a.cfg.DataDir())
		if err != nil {
			a.logger.Warn("event log disabled", zap.Error(err))
		} else {
			opts = append(opts, research.WithEventLog(events))
		}
	}

	return researchRunner{
		pipeline: research.New(a.cfg, gen, searcher, store, opts...),
		progress: progress,
	}, nil
}

func printResearchResult(out io.Writer, res *research.Result) {
	fmt.Fprintln(out)
	if res.Completed {
		fmt.Fprintln(out, checkMark+" "+okStyle.Render("Research completed!"))
	} else {
		fmt.Fprintln(out, warningMark+" "+warnStyle.Render("Research finished but the session could not be marked completed"))
	}
	fmt.Fprintln(out)

	reportPath := res.ReportPath
	if reportPath == "" {
		reportPath = "(not written)"
	}
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Session ID:"), res.SessionID)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Report saved to:"), reportPath)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Questions planned:"), len(res.Questions))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Sources analyzed:"), len(res.Sources))
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Findings extracted:"), len(res.Findings))

	if res.Report.Summary != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("Summary"))
		fmt.Fprintln(out, res.Report.Summary)
	}
}
