package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag <id> <tag>...",
	Short: "Attach tags to a message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		for _, tag := range args[1:] {
			if err := s.AddTag(cmd.Context(), args[0], tag); err != nil {
				return fmt.Errorf("tag %s: %w", args[0], err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %d tag(s).\n", args[0], len(args)-1)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
}
