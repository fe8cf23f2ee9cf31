package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
)

var (
	mutateView   string
	mutateAction string
	mutateIDs    []string
)

var mutateCmd = &cobra.Command{
	Use:   "mutate",
	Short: "Apply an action to messages in a view",
	Long: `Apply a batch action to messages by ID and report which of them left
the view and which joined it.

Actions: archive, unarchive, delete, undelete, train-spam, train-ham, defer,
mark-read, mark-unread.

Examples:
  msgscroll mutate --action archive --ids 3f2c...,9a1b...
  msgscroll mutate --view folder:spam --action train-ham --ids 3f2c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := scrolltable.ParseView(mutateView)
		if err != nil {
			return err
		}
		if !slices.Contains(store.Actions, store.Action(mutateAction)) {
			return fmt.Errorf("unknown action %q", mutateAction)
		}
		if len(mutateIDs) == 0 {
			return fmt.Errorf("--ids is required")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		t := scrolltable.New(query.NewSource(s, logger), tableOptions(logger))
		if _, err := t.Open(cmd.Context(), view); err != nil {
			return fmt.Errorf("open %s: %w", view, err)
		}
		ids := make([]scrolltable.ID, len(mutateIDs))
		for i, id := range mutateIDs {
			ids[i] = scrolltable.ID(id)
		}
		res, err := t.Mutate(cmd.Context(), scrolltable.Action(mutateAction), ids)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d left %s, %d joined\n",
			mutateAction, len(res.RemovedIDs), view, len(res.InsertedRows))
		for _, id := range res.RemovedIDs {
			fmt.Fprintf(out, "  - %s\n", id)
		}
		for _, row := range res.InsertedRows {
			fmt.Fprintf(out, "  + %s at %d\n", row.ID, row.Offset)
		}
		fmt.Fprintf(out, "%s now has %d messages\n", view, t.Store().TotalRowCount())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mutateCmd)
	mutateCmd.Flags().StringVar(&mutateView, "view", "folder:inbox", "view the messages are in")
	mutateCmd.Flags().StringVar(&mutateAction, "action", "", "action to apply")
	mutateCmd.Flags().StringSliceVar(&mutateIDs, "ids", nil, "comma-separated message IDs")
	_ = mutateCmd.MarkFlagRequired("action")
}
