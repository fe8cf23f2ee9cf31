package cmd

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/query"
)

var viewsPeople bool

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "List views with message counts",
	Long: `List every folder with its total and unread message counts, followed by
the tags in use. With --people, also list the addresses a person view can be
opened for.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := query.NewSource(s, logger).ViewCounts(cmd.Context())
		if err != nil {
			return fmt.Errorf("view counts: %w", err)
		}
		tags, err := s.ListTags(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VIEW\tTOTAL\tUNREAD")
		fmt.Fprintln(w, "────\t─────\t──────")
		for _, c := range counts {
			fmt.Fprintf(w, "folder:%s\t%d\t%d\n", c.View, c.Total, c.Unread)
		}
		for _, tag := range slices.Sorted(maps.Keys(tags)) {
			fmt.Fprintf(w, "tag:%s\t%d\t\n", tag, tags[tag])
		}
		w.Flush()

		if !viewsPeople {
			return nil
		}
		people, err := s.ListPeople(cmd.Context())
		if err != nil {
			return fmt.Errorf("list people: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PERSON\tNAME")
		for _, p := range people {
			fmt.Fprintf(w, "person:%s\t%s\n", p.Address, p.Name)
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(viewsCmd)
	viewsCmd.Flags().BoolVar(&viewsPeople, "people", false, "also list people")
}
