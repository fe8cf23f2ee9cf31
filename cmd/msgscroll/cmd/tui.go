package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wesm/msgscroll/internal/fileutil"
	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/tui"
)

var tuiView string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long: `Open an interactive terminal UI for scrolling through a mailbox.

Rows are fetched as you scroll; rows that have not arrived yet show as
"… loading".

Navigation:
  ↑/k, ↓/j    Move up/down
  PgUp/PgDn   Page up/down
  g/G         First/last message
  Tab         Next folder (shift+Tab: previous)
  p           Open the view of a person
  t           Open the view of a tag
  ctrl+r      Retry / refresh

Selection & actions:
  Space       Toggle the message in the group selection
  * + - x     Select all / read / unread loaded messages, clear
  a u         Archive / unarchive
  d D         Delete / undelete
  s h         Train as spam / not spam
  e           Defer for a day
  r R         Mark read / unread
  q           Quit

Actions apply to the group selection, or to the message under the cursor
when nothing is selected.

With --verbose, debug logs are written to msgscroll.log in the home
directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return errors.New("tui needs a terminal; use 'msgscroll list' for scripted output")
		}
		view, err := scrolltable.ParseView(tuiView)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		// The TUI owns the terminal, so logs go to a file or nowhere.
		tuiLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if verbose {
			f, err := fileutil.CreatePrivate(filepath.Join(cfg.HomeDir, "msgscroll.log"), os.O_WRONLY|os.O_APPEND)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			tuiLogger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}

		src := query.NewSource(s, tuiLogger)
		model := tui.New(cmd.Context(), src, tui.Options{
			Table:   tableOptions(tuiLogger),
			View:    view,
			Counter: src,
			Logger:  tuiLogger,
			Version: Version,
		})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiView, "view", "folder:inbox", "view to open on start")
}
