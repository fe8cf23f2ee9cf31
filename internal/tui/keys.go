package tui

import (
	"errors"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
)

// actionKeys maps single keys to batch actions on the selection targets.
var actionKeys = map[string]scrolltable.Action{
	"a": "archive",
	"u": "unarchive",
	"d": "delete",
	"D": "undelete",
	"s": "train-spam",
	"h": "train-ham",
	"e": "defer",
	"r": "mark-read",
	"R": "mark-unread",
}

// batchKeys maps keys to group selection modes.
var batchKeys = map[string]scrolltable.BatchMode{
	"*": scrolltable.BatchAll,
	"+": scrolltable.BatchRead,
	"-": scrolltable.BatchUnread,
	"x": scrolltable.BatchNone,
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.prompt != promptNone {
		return m.handlePromptKeys(msg)
	}
	m.err = nil

	key := msg.String()
	if action, ok := actionKeys[key]; ok {
		return m.runAction(action)
	}
	if mode, ok := batchKeys[key]; ok {
		n := m.table.Selection().ChangeBatchSelection(mode)
		if mode != scrolltable.BatchNone {
			m.flash(pluralize(n, "message") + " selected")
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "j", "down":
		return m.moveCursor(1)
	case "k", "up":
		return m.moveCursor(-1)
	case "pgdown", "ctrl+f", "ctrl+d":
		return m.moveCursor(m.pageSize)
	case "pgup", "ctrl+b", "ctrl+u":
		return m.moveCursor(-m.pageSize)
	case "g", "home":
		return m.moveCursor(-m.cursor)
	case "G", "end":
		return m.moveCursor(m.table.Store().TotalRowCount() - 1 - m.cursor)

	case " ":
		id := m.table.Selection().Active()
		if id == scrolltable.NoID {
			return m, nil
		}
		if _, err := m.table.Selection().ToggleGroup(id); err != nil {
			m.err = err
			return m, nil
		}
		return m.moveCursor(1)

	case "tab":
		return m.cycleFolder(true)
	case "shift+tab":
		return m.cycleFolder(false)
	case "p":
		return m.openPrompt(promptPerson, "sender or recipient address")
	case "t":
		return m.openPrompt(promptTag, "tag")

	case "ctrl+r":
		if !m.table.Loaded() {
			m.loading = true
			return m, m.switchCmd(m.table.RetrySwitch())
		}
		fetch := m.fetchCmd(m.viewportRequest())
		counts := m.loadCounts()
		return m, tea.Batch(fetch, counts)
	}
	return m, nil
}

func (m Model) handlePromptKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePrompt()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		m.closePrompt()
		if value == "" {
			return m, nil
		}
		if kind == promptPerson {
			return m.switchView(scrolltable.PersonView(value))
		}
		return m.switchView(scrolltable.TagView(value))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) openPrompt(kind promptKind, placeholder string) (tea.Model, tea.Cmd) {
	m.prompt = kind
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	cmd := m.input.Focus()
	return m, cmd
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.SetValue("")
}

// moveCursor moves the cursor by delta rows, tracks scroll velocity and
// requests the new viewport.
func (m Model) moveCursor(delta int) (tea.Model, tea.Cmd) {
	total := m.table.Store().TotalRowCount()
	if total == 0 {
		return m, nil
	}
	target := max(min(m.cursor+delta, total-1), 0)
	moved := target - m.cursor
	if moved == 0 {
		return m, nil
	}
	now := m.now()
	m.velocity = 0
	if !m.lastMove.IsZero() {
		dt := max(now.Sub(m.lastMove).Seconds(), 0.001)
		m.velocity = float64(moved) / dt
	}
	m.lastMove = now

	m.cursor = target
	m.selectAtCursor()
	m.ensureCursorVisible()
	cmd := m.fetchCmd(m.viewportRequest())
	return m, cmd
}

// cycleFolder switches to the next or previous folder view.
func (m Model) cycleFolder(forward bool) (tea.Model, tea.Cmd) {
	cur := m.table.View()
	i := -1
	if cur.Kind == scrolltable.ByFolder {
		i = slices.Index(query.Folders, cur.Value)
	}
	n := len(query.Folders)
	switch {
	case forward:
		i = (i + 1) % n
	case i <= 0:
		i = n - 1
	default:
		i--
	}
	return m.switchView(scrolltable.FolderView(query.Folders[i]))
}

func (m Model) switchView(v scrolltable.View) (tea.Model, tea.Cmd) {
	req := m.table.SwitchView(v)
	m.loading = true
	m.cursor, m.scrollOffset = 0, 0
	m.velocity, m.lastMove = 0, time.Time{}
	return m, m.switchCmd(req)
}

// runAction issues action against the group, or the active row when the
// group is empty.
func (m Model) runAction(action scrolltable.Action) (tea.Model, tea.Cmd) {
	req, err := m.table.BeginMutation(action, nil)
	if errors.Is(err, scrolltable.ErrNoTargets) {
		m.flash("nothing selected")
		return m, nil
	}
	if err != nil {
		m.err = err
		return m, nil
	}
	// Optimistic removals already moved rows.
	m.syncCursor()
	return m, m.mutateCmd(req)
}
