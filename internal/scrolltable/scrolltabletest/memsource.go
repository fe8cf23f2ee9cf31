// Package scrolltabletest provides an in-memory scrolltable.Source for tests.
package scrolltabletest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/wesm/msgscroll/internal/scrolltable"
)

// Schema describes the rows produced by Messages.
var Schema = scrolltable.Schema{
	"subject": scrolltable.KindText,
	"sender":  scrolltable.KindText,
	"read":    scrolltable.KindBool,
	"sent_at": scrolltable.KindTime,
	"size":    scrolltable.KindNumber,
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Message builds a row with the given id. Even-numbered rows are read.
func Message(id string, n int) scrolltable.Row {
	return scrolltable.Row{
		ID: scrolltable.ID(id),
		Columns: map[string]scrolltable.Value{
			"subject": scrolltable.Text(fmt.Sprintf("Subject %d", n)),
			"sender":  scrolltable.Text(fmt.Sprintf("sender%d@example.com", n%7)),
			"read":    scrolltable.Bool(n%2 == 0),
			"sent_at": scrolltable.Timestamp(epoch.Add(-time.Duration(n) * time.Hour)),
			"size":    scrolltable.Number(float64(1000 + n)),
		},
	}
}

// Messages builds n rows with IDs prefix0 .. prefix(n-1).
func Messages(prefix string, n int) []scrolltable.Row {
	rows := make([]scrolltable.Row, n)
	for i := range rows {
		rows[i] = Message(fmt.Sprintf("%s%d", prefix, i), i)
	}
	return rows
}

// FetchCall records one FetchRange call.
type FetchCall struct {
	View  scrolltable.View
	Start int
	Stop  int
}

// MutateCall records one Mutate call.
type MutateCall struct {
	View   scrolltable.View
	Action scrolltable.Action
	IDs    []scrolltable.ID
}

// MemSource is a scrolltable.Source over in-memory views. Actions move rows
// between views: each entry in Moves maps an action to its destination view.
// It is safe for concurrent use so requests can execute on goroutines.
type MemSource struct {
	mu     sync.Mutex
	views  map[scrolltable.View][]scrolltable.Row
	gates  map[scrolltable.View]chan struct{}
	fetchs []FetchCall
	muts   []MutateCall

	// Moves maps an action to the view its rows move to.
	Moves map[scrolltable.Action]scrolltable.View
	// FetchErr, when set, is consulted before every fetch.
	FetchErr func(view scrolltable.View, start, stop int) error
	// MutateErr, when set, is consulted before every mutation.
	MutateErr func(action scrolltable.Action, ids []scrolltable.ID) error
	// HideTotal makes FetchRange report an unknown total count.
	HideTotal bool
}

// New returns an empty MemSource with archive and delete actions that move
// rows to the archive and trash folders.
func New() *MemSource {
	return &MemSource{
		views: make(map[scrolltable.View][]scrolltable.Row),
		gates: make(map[scrolltable.View]chan struct{}),
		Moves: map[scrolltable.Action]scrolltable.View{
			"archive": scrolltable.FolderView("archive"),
			"delete":  scrolltable.FolderView("trash"),
		},
	}
}

// Set replaces the rows of view.
func (m *MemSource) Set(view scrolltable.View, rows []scrolltable.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[view] = slices.Clone(rows)
}

// Rows returns a copy of view's rows.
func (m *MemSource) Rows(view scrolltable.View) []scrolltable.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.views[view])
}

// InsertAt adds row to view at offset behind the table's back, as another
// client would.
func (m *MemSource) InsertAt(view scrolltable.View, offset int, row scrolltable.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.views[view]
	offset = min(max(offset, 0), len(rows))
	m.views[view] = slices.Insert(rows, offset, row)
}

// RemoveIDs deletes ids from view behind the table's back.
func (m *MemSource) RemoveIDs(view scrolltable.View, ids ...scrolltable.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[view] = slices.DeleteFunc(m.views[view], func(r scrolltable.Row) bool {
		return slices.Contains(ids, r.ID)
	})
}

// Block makes fetches of view wait until the returned release func is
// called or their context ends.
func (m *MemSource) Block(view scrolltable.View) (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.gates[view] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			close(ch)
			m.mu.Lock()
			if m.gates[view] == ch {
				delete(m.gates, view)
			}
			m.mu.Unlock()
		})
	}
}

// FetchCalls returns the fetches made so far.
func (m *MemSource) FetchCalls() []FetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.fetchs)
}

// MutateCalls returns the mutations made so far.
func (m *MemSource) MutateCalls() []MutateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.muts)
}

// FetchRange implements scrolltable.Source.
func (m *MemSource) FetchRange(ctx context.Context, view scrolltable.View, start, stop int) (scrolltable.Page, error) {
	m.mu.Lock()
	m.fetchs = append(m.fetchs, FetchCall{View: view, Start: start, Stop: stop})
	gate := m.gates[view]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return scrolltable.Page{}, ctx.Err()
		}
	}
	if m.FetchErr != nil {
		if err := m.FetchErr(view, start, stop); err != nil {
			return scrolltable.Page{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.views[view]
	total := len(rows)
	start = min(max(start, 0), total)
	stop = min(max(stop, start), total)
	page := scrolltable.Page{Rows: slices.Clone(rows[start:stop]), TotalCount: total}
	if m.HideTotal {
		page.TotalCount = -1
	}
	return page, nil
}

// Mutate implements scrolltable.Source. Rows of view named in ids move to
// the action's destination view; the result reports them as removed.
func (m *MemSource) Mutate(ctx context.Context, view scrolltable.View, action scrolltable.Action, ids []scrolltable.ID) (scrolltable.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return scrolltable.MutationResult{}, err
	}
	m.mu.Lock()
	m.muts = append(m.muts, MutateCall{View: view, Action: action, IDs: slices.Clone(ids)})
	m.mu.Unlock()

	if m.MutateErr != nil {
		if err := m.MutateErr(action, ids); err != nil {
			return scrolltable.MutationResult{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	dest, ok := m.Moves[action]
	if !ok {
		return scrolltable.MutationResult{}, fmt.Errorf("unknown action %q", action)
	}
	var res scrolltable.MutationResult
	var moved []scrolltable.Row
	kept := m.views[view][:0:0]
	for _, r := range m.views[view] {
		if slices.Contains(ids, r.ID) {
			moved = append(moved, r)
			res.RemovedIDs = append(res.RemovedIDs, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	m.views[view] = kept
	if dest != view {
		m.views[dest] = append(moved, m.views[dest]...)
	}
	return res, nil
}
