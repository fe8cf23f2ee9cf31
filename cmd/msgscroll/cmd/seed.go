package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/store"
)

var (
	seedCount int
	seedValue uint64
	seedMe    string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with synthetic messages",
	Long: `Insert synthetic messages spread across every folder, with senders,
recipients and tags, so the table has something to scroll through.

Examples:
  msgscroll seed --count 10000
  msgscroll seed --count 500 --seed 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedCount <= 0 {
			return fmt.Errorf("--count must be positive")
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("seeding", "count", seedCount, "seed", seedValue)
		err = s.Seed(cmd.Context(), store.SeedOptions{Count: seedCount, Me: seedMe, Seed: seedValue})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d messages.\n", seedCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedCount, "count", 1000, "number of messages to insert")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 1, "random seed")
	seedCmd.Flags().StringVar(&seedMe, "me", "me@example.com", "mailbox owner address")
}
