// search.go implements the "scout search" command and its spinner.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/berth-dev/scout/internal/search"
)

const snippetPreview = 150

func newSearchCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the web without running a research session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Search.MaxResults
			}
			if limit < 1 {
				return fmt.Errorf("limit must be at least 1, got %d", limit)
			}
			return a.runSearch(cmd, strings.Join(args, " "), limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")

	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, query string, limit int) error {
	searcher, err := a.newSearcher(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("creating search client: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Searching for:"), query)

	var results []search.Result
	fetch := func(ctx context.Context) error {
		results = searcher.Search(ctx, query, limit)
		return nil
	}
	if isTerminal(out) {
		err = runSearchSpinner(cmd.Context(), out, fetch)
	} else {
		err = fetch(cmd.Context())
	}
	if err != nil {
		return err
	}

	printSearchResults(out, results)
	return nil
}

func printSearchResults(out io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(out, warnStyle.Render("No results found"))
		return
	}

	fmt.Fprintf(out, "\n%s\n\n", titleStyle.Render(fmt.Sprintf("Found %d results:", len(results))))
	for i, r := range results {
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d. %s", i+1, r.Title)))
		fmt.Fprintln(out, "   "+dimStyle.Render(r.URL))
		if r.Snippet != "" {
			snippet := truncate(r.Snippet, snippetPreview)
			if snippet != r.Snippet {
				snippet += "..."
			}
			fmt.Fprintln(out, "   "+snippet)
		}
		fmt.Fprintln(out)
	}
}

type searchDoneMsg struct {
	err error
}

type searchSpinnerModel struct {
	spinner spinner.Model
	label   string
	fetch   tea.Cmd
	err     error
	done    bool
}

func newSearchSpinnerModel(label string, fetch tea.Cmd) searchSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(labelStyle),
	)

	return searchSpinnerModel{
		spinner: s,
		label:   label,
		fetch:   fetch,
	}
}

func (m searchSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m searchSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case searchDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m searchSpinnerModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

func runSearchSpinner(ctx context.Context, output io.Writer, fetch func(context.Context) error) error {
	fetchCmd := func() tea.Msg {
		return searchDoneMsg{err: fetch(ctx)}
	}

	p := tea.NewProgram(
		newSearchSpinnerModel("Searching the web...", fetchCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(searchSpinnerModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	return result.err
}
