// Package tui provides a terminal user interface for browsing a mailbox
// through a virtualized scrolling table.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
)

// chromeLines is the number of lines around the message list: title bar,
// folder tabs, table header, separator and footer.
const chromeLines = 5

// flashDuration is how long a flash message stays in the footer.
const flashDuration = 4 * time.Second

// Counter reports per-folder message counts for the folder tabs.
type Counter interface {
	ViewCounts(ctx context.Context) ([]query.ViewCount, error)
}

// Options configuration for TUI.
type Options struct {
	Table scrolltable.Options
	// View is opened on start; the zero value opens the inbox.
	View scrolltable.View
	// Counter, when set, supplies folder tab counts.
	Counter Counter
	Logger  *slog.Logger
	Version string
	// Now replaces time.Now for scroll velocity; tests set it.
	Now func() time.Time
}

type promptKind int

const (
	promptNone promptKind = iota
	promptPerson
	promptTag
)

// Model is the main TUI model following the Elm architecture. The table is
// shared by every copy of the model and only touched from Update.
type Model struct {
	ctx     context.Context
	src     scrolltable.Source
	table   *scrolltable.Table
	counter Counter
	log     *slog.Logger
	now     func() time.Time
	version string
	start   scrolltable.View

	// Cursor is an offset in the view; it may rest on a placeholder.
	cursor       int
	scrollOffset int
	pageSize     int
	width        int
	height       int

	lastMove time.Time
	velocity float64 // rows per second, signed

	counts          []query.ViewCount
	countsRequestID uint64

	prompt promptKind
	input  textinput.Model

	loading        bool
	err            error
	flashMessage   string
	flashExpiresAt time.Time
	quitting       bool
}

// New creates a TUI model reading from src. ctx bounds every request the
// model issues.
func New(ctx context.Context, src scrolltable.Source, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tableOpts := opts.Table
	if tableOpts.Logger == nil {
		tableOpts.Logger = logger
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	start := opts.View
	if start.Value == "" {
		start = scrolltable.FolderView(query.ViewInbox)
	}

	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 40

	return Model{
		ctx:      ctx,
		src:      src,
		table:    scrolltable.New(src, tableOpts),
		counter:  opts.Counter,
		log:      logger,
		now:      now,
		version:  opts.Version,
		start:    start,
		pageSize: 20,
		input:    ti,
		loading:  true,
	}
}

// Table exposes the underlying scrolling table.
func (m Model) Table() *scrolltable.Table { return m.table }

// Cursor returns the cursor's offset in the current view.
func (m Model) Cursor() int { return m.cursor }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.switchCmd(m.table.SwitchView(m.start)),
		m.countsCmd(m.countsRequestID),
	)
}

// switchedMsg carries the result of a view's defining fetch.
type switchedMsg struct {
	res scrolltable.SwitchResult
}

// fetchedMsg carries the result of a range fetch.
type fetchedMsg struct {
	res scrolltable.FetchResult
}

// mutatedMsg carries the result of a batch action.
type mutatedMsg struct {
	out scrolltable.MutationOutcome
}

// countsLoadedMsg is sent when folder counts are loaded.
type countsLoadedMsg struct {
	counts    []query.ViewCount
	err       error
	requestID uint64 // To detect stale responses
}

func (m Model) switchCmd(req *scrolltable.SwitchRequest) tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() (msg tea.Msg) {
		// Recover from panics to prevent TUI from becoming unresponsive
		defer func() {
			if r := recover(); r != nil {
				msg = switchedMsg{res: scrolltable.SwitchResult{
					Generation: req.Generation, View: req.View, Err: fmt.Errorf("query panic: %v", r),
				}}
			}
		}()
		return switchedMsg{res: req.Execute(ctx, src)}
	}
}

func (m Model) fetchCmd(req *scrolltable.FetchRequest) tea.Cmd {
	if req == nil {
		return nil
	}
	ctx, src := m.ctx, m.src
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = fetchedMsg{res: scrolltable.FetchResult{
					Generation: req.Generation, Seq: req.Seq, Err: fmt.Errorf("query panic: %v", r),
				}}
			}
		}()
		return fetchedMsg{res: req.Execute(ctx, src)}
	}
}

func (m Model) mutateCmd(req *scrolltable.MutationRequest) tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = mutatedMsg{out: scrolltable.MutationOutcome{
					Seq: req.Seq, Generation: req.Generation, Err: fmt.Errorf("mutation panic: %v", r),
				}}
			}
		}()
		return mutatedMsg{out: req.Execute(ctx, src)}
	}
}

// loadCounts starts a new folder count request, superseding any earlier one.
func (m *Model) loadCounts() tea.Cmd {
	if m.counter == nil {
		return nil
	}
	m.countsRequestID++
	return m.countsCmd(m.countsRequestID)
}

func (m Model) countsCmd(requestID uint64) tea.Cmd {
	if m.counter == nil {
		return nil
	}
	ctx, counter := m.ctx, m.counter
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = countsLoadedMsg{err: fmt.Errorf("counts panic: %v", r), requestID: requestID}
			}
		}()
		counts, err := counter.ViewCounts(ctx)
		return countsLoadedMsg{counts: counts, err: err, requestID: requestID}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		m.pageSize = max(m.height-chromeLines, 1)
		m.ensureCursorVisible()
		cmd := m.fetchCmd(m.viewportRequest())
		return m, cmd

	case switchedMsg:
		_, next, err := m.table.CompleteSwitch(msg.res)
		if errors.Is(err, scrolltable.ErrSuperseded) {
			return m, nil
		}
		m.loading = false
		m.err = err
		m.cursor, m.scrollOffset = 0, 0
		m.syncCursor()
		return m, m.fetchCmd(next)

	case fetchedMsg:
		next, err := m.table.CompleteFetch(msg.res)
		if err != nil {
			m.err = err
		}
		m.selectAtCursor()
		return m, m.fetchCmd(next)

	case mutatedMsg:
		current := msg.out.Generation == m.table.Generation()
		next, err := m.table.CompleteMutation(msg.out)
		if err != nil {
			m.err = err
		} else if current {
			m.flash(describeOutcome(msg.out))
		}
		m.syncCursor()
		counts := m.loadCounts()
		return m, tea.Batch(m.fetchCmd(next), counts)

	case countsLoadedMsg:
		if msg.requestID != m.countsRequestID {
			return m, nil
		}
		if msg.err != nil {
			m.log.Warn("load folder counts", "err", msg.err)
			return m, nil
		}
		m.counts = msg.counts
		return m, nil
	}
	return m, nil
}

func describeOutcome(out scrolltable.MutationOutcome) string {
	if n := len(out.Result.RemovedIDs); n > 0 {
		return pluralize(n, "message") + " left the view"
	}
	if n := len(out.Result.InsertedRows); n > 0 {
		return pluralize(n, "message") + " joined the view"
	}
	return "done"
}

func (m *Model) flash(s string) {
	m.flashMessage = s
	m.flashExpiresAt = m.now().Add(flashDuration)
}

// viewportRequest records the visible window with the table and returns the
// fetch it needs, if any. Before the view has loaded this only records it.
func (m *Model) viewportRequest() *scrolltable.FetchRequest {
	req, err := m.table.RequestViewport(scrolltable.Viewport{
		Start:    m.scrollOffset,
		Stop:     m.scrollOffset + m.pageSize,
		Velocity: m.velocity,
	})
	if err != nil {
		m.err = err
	}
	return req
}

// syncCursor moves the cursor to the active row after the table changed
// under it, and keeps it inside the view.
func (m *Model) syncCursor() {
	if id := m.table.Selection().Active(); id != scrolltable.NoID {
		if off, err := m.table.Store().FindOffset(id); err == nil {
			m.cursor = off
		}
	}
	total := m.table.Store().TotalRowCount()
	m.cursor = max(min(m.cursor, total-1), 0)
	m.selectAtCursor()
	m.ensureCursorVisible()
}

// selectAtCursor makes the row under the cursor active, or clears the active
// row when the cursor rests on a placeholder.
func (m *Model) selectAtCursor() {
	sel := m.table.Selection()
	row, ok := m.table.Store().GetByOffset(m.cursor)
	switch {
	case ok && sel.Active() != row.ID:
		_, _ = sel.SelectActive(row.ID)
	case !ok && sel.Active() != scrolltable.NoID:
		_, _ = sel.SelectActive(scrolltable.NoID)
	}
}

func (m *Model) ensureCursorVisible() {
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	} else if m.cursor >= m.scrollOffset+m.pageSize {
		m.scrollOffset = m.cursor - m.pageSize + 1
	}
	total := m.table.Store().TotalRowCount()
	if maxScroll := max(total-m.pageSize, 0); m.scrollOffset > maxScroll {
		m.scrollOffset = maxScroll
	}
	m.scrollOffset = max(m.scrollOffset, 0)
}
