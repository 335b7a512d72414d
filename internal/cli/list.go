// list.go implements the "scout list-reports" command.
package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/berth-dev/scout/internal/session"
)

const listTopicWidth = 50

func newListReportsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "list-reports",
		Aliases: []string{"list", "ls"},
		Short:   "List previous research sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := session.Open(a.cfg.Storage.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("Listing last %d reports...", limit)))
			fmt.Fprintln(out)

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, warnStyle.Render("No research sessions found"))
				return nil
			}

			printSessionTable(out, sessions)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Number of reports to list")

	return cmd
}

func printSessionTable(out io.Writer, sessions []session.Session) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "Topic", "Depth", "Status", "Created").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(sessions) {
				if sessions[row].Status == session.StatusCompleted {
					return cellStyle.Foreground(lipgloss.Color("42"))
				}
				return cellStyle.Foreground(lipgloss.Color("214"))
			}
			return cellStyle
		})

	for _, s := range sessions {
		t.Row(
			strconv.FormatInt(s.ID, 10),
			truncate(s.Topic, listTopicWidth),
			string(s.Depth),
			s.Status,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
		)
	}

	fmt.Fprintln(out, t.Render())
}
