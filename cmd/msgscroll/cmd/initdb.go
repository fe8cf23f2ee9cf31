package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database schema",
	Long: `Initialize the msgscroll database with the required schema and write a
default config.toml if none exists.

It is safe to run multiple times - tables are only created if they don't
already exist and an existing config file is never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("initializing database", "path", cfg.DatabasePath(), "driver", cfg.Data.Driver)

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		wrote, err := cfg.WriteDefault()
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		if wrote {
			logger.Info("wrote default config", "path", cfg.ConfigPath)
		}

		stats, err := s.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())
		fmt.Fprintf(out, "  Messages:    %d\n", stats.MessageCount)
		fmt.Fprintf(out, "  People:      %d\n", stats.PersonCount)
		fmt.Fprintf(out, "  Tags:        %d\n", stats.TagCount)
		fmt.Fprintf(out, "  Size:        %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
