// show.go implements the "scout show" command for inspecting one session.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	eventlog "github.com/berth-dev/scout/internal/log"
	"github.com/berth-dev/scout/internal/report"
	"github.com/berth-dev/scout/internal/session"
)

const timeLayout = "2006-01-02 15:04:05"

func newShowCmd(a *app) *cobra.Command {
	var showEvents, noReport bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a research session with its sources, findings and report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id < 1 {
				return fmt.Errorf("invalid session id %q", args[0])
			}

			store, err := session.Open(a.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			sess, err := store.GetSession(ctx, id)
			if err != nil {
				return err
			}
			sources, err := store.Sources(ctx, id)
			if err != nil {
				return err
			}
			findings, err := store.Findings(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSession(out, sess, sources, findings)

			if showEvents {
				if err := a.printEvents(out, id); err != nil {
					return err
				}
			}
			if !noReport {
				printReport(out, sess.ReportPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "Include the event timeline")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Do not render the report")

	return cmd
}

func printSession(out io.Writer, sess *session.Session, sources []session.Source, findings []session.Finding) {
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Session %d: %s", sess.ID, sess.Topic)))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Depth:"), sess.Depth)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Status:"), sess.Status)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Created:"), sess.CreatedAt.Local().Format(timeLayout))
	if sess.CompletedAt != nil {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Completed:"), sess.CompletedAt.Local().Format(timeLayout))
	}
	if sess.ReportPath != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Report:"), sess.ReportPath)
	}
	if sess.Summary != "" {
		fmt.Fprintf(out, "\n%s\n%s\n", titleStyle.Render("Summary"), sess.Summary)
	}

	fmt.Fprintf(out, "\n%s\n", titleStyle.Render(fmt.Sprintf("Sources (%d)", len(sources))))
	for i, src := range sources {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, src.Title)
		fmt.Fprintf(out, "      %s\n", dimStyle.Render(src.URL))
	}

	fmt.Fprintf(out, "\n%s\n", titleStyle.Render(fmt.Sprintf("Findings (%d)", len(findings))))
	for i, f := range findings {
		line := fmt.Sprintf("  %d. %s", i+1, f.Text)
		var meta []string
		if len(f.SourceRefs) > 0 {
			meta = append(meta, "sources: "+strings.Join(f.SourceRefs, ", "))
		}
		if f.Confidence != "" {
			meta = append(meta, "confidence: "+f.Confidence)
		}
		if len(meta) > 0 {
			line += " " + dimStyle.Render("("+strings.Join(meta, "; ")+")")
		}
		fmt.Fprintln(out, line)
	}
}

func (a *app) printEvents(out io.Writer, id int64) error {
	events, err := eventlog.NewLogger(a.cfg.DataDir())
	if err != nil {
		return err
	}
	timeline, err := events.ForSession(id)
	if err != nil {
		return fmt.Errorf("reading event log: %w", err)
	}

	fmt.Fprintf(out, "\n%s\n", titleStyle.Render(fmt.Sprintf("Events (%d)", len(timeline))))
	for _, e := range timeline {
		fmt.Fprintf(out, "  %s  %-20s %s\n", dimStyle.Render(e.Time.Local().Format(timeLayout)), e.Event, eventDetail(e))
	}
	return nil
}

func eventDetail(e eventlog.LogEvent) string {
	var parts []string
	if e.Step != "" {
		parts = append(parts, "step="+e.Step)
	}
	if e.Query != "" {
		parts = append(parts, fmt.Sprintf("query=%q", e.Query))
	}
	if e.URL != "" {
		parts = append(parts, "url="+e.URL)
	}
	if e.Count > 0 {
		parts = append(parts, fmt.Sprintf("count=%d", e.Count))
	}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	if e.DurationMs > 0 {
		parts = append(parts, fmt.Sprintf("duration=%dms", e.DurationMs))
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}

func printReport(out io.Writer, path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(out, "\n"+warningMark+" Report file no longer exists: "+path)
			return
		}
		fmt.Fprintln(out, "\n"+warningMark+" Cannot read report: "+err.Error())
		return
	}

	rendered, err := report.Render(string(data), terminalWidth(out))
	if err != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, string(data))
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, rendered)
}
