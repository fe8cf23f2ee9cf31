package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
)

var (
	listView  string
	listStart int
	listStop  int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print a window of a view",
	Long: `Open a view and print the messages at offsets [start, stop), fetching
only the pages that window needs.

Views are written kind:value. A bare name is a folder.
  folder:inbox  folder:archive  folder:all  folder:spam  folder:deferred
  folder:sent   folder:trash    person:alice@example.com  tag:work

Examples:
  msgscroll list
  msgscroll list --view archive --start 100 --stop 120
  msgscroll list --view tag:work --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := scrolltable.ParseView(listView)
		if err != nil {
			return err
		}
		if listStart < 0 || listStop < listStart {
			return fmt.Errorf("invalid window [%d,%d)", listStart, listStop)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t := scrolltable.New(query.NewSource(s, logger), tableOptions(logger))
		total, err := t.Open(cmd.Context(), view)
		if err != nil {
			return fmt.Errorf("open %s: %w", view, err)
		}
		stop := min(listStop, total)
		start := min(listStart, stop)
		if err := t.Ensure(cmd.Context(), scrolltable.Range{Start: start, Stop: stop}); err != nil {
			return fmt.Errorf("fetch %s: %w", view, err)
		}
		logger.Debug("list fetched", "view", view.String(), "fetched", t.Store().RowCount(), "total", total)

		if listJSON {
			return outputRowsJSON(cmd.OutOrStdout(), t, start, stop)
		}
		if total == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No messages in %s.\n", view)
			return nil
		}
		outputRowsTable(cmd.OutOrStdout(), t, start, stop)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listView, "view", "folder:inbox", "view to open")
	listCmd.Flags().IntVar(&listStart, "start", 0, "first offset to print")
	listCmd.Flags().IntVar(&listStop, "stop", 20, "offset to stop before")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
}
