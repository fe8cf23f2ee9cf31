package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/config"
	"github.com/wesm/msgscroll/internal/fileutil"
	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "msgscroll",
	Short: "Scroll through a large mailbox without loading it",
	Long: `msgscroll browses a mailbox stored in SQLite through a virtualized
table: only the rows near what you are looking at are fetched, the rest are
placeholders until you scroll to them.

Start with 'msgscroll init-db' and 'msgscroll seed', then 'msgscroll tui'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		// Set up logging
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := fileutil.MkdirPrivate(cfg.Data.DataDir); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.Data.DataDir, err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the configured database and makes sure its schema exists.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath(), cfg.Data.Driver)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// tableOptions returns the configured table options for message rows.
func tableOptions(l *slog.Logger) scrolltable.Options {
	opts := cfg.TableOptions()
	opts.Schema = query.MessageSchema
	opts.Logger = l
	return opts
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.msgscroll/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides MSGSCROLL_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
