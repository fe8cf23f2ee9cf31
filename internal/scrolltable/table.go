package scrolltable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Options configures a Table.
type Options struct {
	// MaxFetch is the largest range requested from the source in one call.
	MaxFetch int
	// InitialFetch is the number of rows requested when a view is opened.
	InitialFetch int
	// Prefetch is the number of rows fetched beyond each viewport edge.
	Prefetch int
	// VelocityWindow scales the extra prefetch in the scroll direction.
	VelocityWindow time.Duration
	// MaxRows bounds the working set. Zero disables eviction.
	MaxRows int
	// KeepGroupOnSwitch keeps the group selection across view switches.
	KeepGroupOnSwitch bool
	// SelectFirstOnLoad activates the first row once a view has loaded.
	SelectFirstOnLoad bool
	// Optimistic applies removals before the source confirms them and
	// rolls back if the mutation fails.
	Optimistic bool
	// Strict panics on invariant violations instead of logging them.
	Strict bool
	Schema Schema
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFetch:          100,
		InitialFetch:      50,
		Prefetch:          25,
		VelocityWindow:    500 * time.Millisecond,
		MaxRows:           2000,
		SelectFirstOnLoad: true,
	}
}

// Stats aggregates counters from the table's components.
type Stats struct {
	Fetch              FetchStats
	SwitchesDiscarded  int
	MutationsDiscarded int
	MutationsFailed    int
	Evicted            int
}

// MutationRequest is one outstanding batch action.
type MutationRequest struct {
	Seq        uint64
	Generation uint64
	View       View
	Action     Action
	IDs        []ID
}

// MutationOutcome is the result of MutationRequest.Execute.
type MutationOutcome struct {
	Seq        uint64
	Generation uint64
	Result     MutationResult
	Err        error
}

// Execute sends the mutation to src. Like FetchRequest.Execute it may run
// off the event loop.
func (r *MutationRequest) Execute(ctx context.Context, src Source) MutationOutcome {
	res, err := src.Mutate(ctx, r.View, r.Action, r.IDs)
	if err != nil {
		err = fmt.Errorf("%s %d rows in %s: %w", r.Action, len(r.IDs), r.View, err)
	}
	return MutationOutcome{Seq: r.Seq, Generation: r.Generation, Result: res, Err: err}
}

type tableState struct {
	rows rowStoreState
	ph   []Placeholder
	sel  SelectionSnapshot
}

// pendingMutation is a mutation issued in the current generation whose
// outcome has not been applied yet.
type pendingMutation struct {
	// predicted holds the rows removed locally at BeginMutation. Nil when
	// the mutation was not applied optimistically.
	predicted map[ID]struct{}
}

// journalEntry is one local step taken since the oldest outstanding
// optimistic prediction: the prediction itself (begin) or an applied outcome.
type journalEntry struct {
	seq      uint64
	begin    bool
	removed  []ID
	inserted []Row
}

// Table owns the row store, placeholders, fetcher, selection and view
// switcher for one scrolling table and keeps them consistent with each
// other. It is driven from a single goroutine.
type Table struct {
	src   Source
	opts  Options
	log   *slog.Logger
	guard *guard

	store     *RowStore
	tracker   *PlaceholderTracker
	fetcher   *RangeFetcher
	selection *SelectionController
	views     *ViewSwitcher

	viewport    Viewport
	hasViewport bool
	subs        []func(Event)

	mutSeq    uint64
	mutations map[uint64]*pendingMutation
	// base is the state before the oldest outstanding prediction; journal
	// replays everything done since. Both are nil when nothing is pending.
	base    *tableState
	journal []journalEntry

	mutationsDiscarded int
	mutationsFailed    int
	evicted            int
}

// New returns a Table reading from src. No view is open until SwitchView or
// Open is called.
func New(src Source, opts Options) *Table {
	g := newGuard(opts.Strict, opts.Logger)
	t := &Table{
		src:        src,
		opts:       opts,
		log:        g.log,
		guard:      g,
		mutations:  make(map[uint64]*pendingMutation),
	}
	t.store = newRowStore(g)
	t.tracker = NewPlaceholderTracker()
	t.selection = NewSelectionController(t.store)
	t.fetcher = NewRangeFetcher(t.store, t.tracker, FetcherOptions{
		MaxFetch:       opts.MaxFetch,
		Prefetch:       opts.Prefetch,
		VelocityWindow: opts.VelocityWindow,
		Schema:         opts.Schema,
		Notify:         t.emit,
		Logger:         g.log,
	})
	t.views = NewViewSwitcher(t.store, t.tracker, t.fetcher, opts.InitialFetch)
	return t
}

func (t *Table) Store() *RowStore                  { return t.store }
func (t *Table) Placeholders() *PlaceholderTracker { return t.tracker }
func (t *Table) Fetcher() *RangeFetcher            { return t.fetcher }
func (t *Table) Selection() *SelectionController   { return t.selection }
func (t *Table) View() View                        { return t.views.Current() }
func (t *Table) Generation() uint64                { return t.views.Generation() }
func (t *Table) Loaded() bool                      { return t.views.Loaded() }

// Stats returns activity counters.
func (t *Table) Stats() Stats {
	return Stats{
		Fetch:              t.fetcher.Stats(),
		SwitchesDiscarded:  t.views.Discarded(),
		MutationsDiscarded: t.mutationsDiscarded,
		MutationsFailed:    t.mutationsFailed,
		Evicted:            t.evicted,
	}
}

// Subscribe registers fn to receive change events.
func (t *Table) Subscribe(fn func(Event)) {
	t.subs = append(t.subs, fn)
}

func (t *Table) emit(ev Event) {
	if ev.Kind == RowsDropped {
		t.selection.dropped(ev.IDs)
	}
	for _, fn := range t.subs {
		fn(ev)
	}
}

// SwitchView clears the working set, adopts view and returns the request
// that loads it. The active row is cleared; the group is cleared too unless
// KeepGroupOnSwitch is set. Any earlier switch, fetch or mutation still in
// flight becomes stale.
func (t *Table) SwitchView(view View) *SwitchRequest {
	req := t.views.SwitchTo(view)
	_, _ = t.selection.SelectActive(NoID)
	if !t.opts.KeepGroupOnSwitch {
		t.selection.ClearGroup()
	}
	t.viewport = Viewport{Start: 0, Stop: t.viewport.Stop - t.viewport.Start}
	clear(t.mutations)
	t.base, t.journal = nil, nil
	t.log.Debug("view switched", "view", view.String(), "generation", req.Generation)
	t.emit(Event{Kind: ViewReset, Generation: req.Generation})
	return req
}

// RetrySwitch re-issues the loading request of the current view.
func (t *Table) RetrySwitch() *SwitchRequest {
	return t.views.Retry()
}

// CompleteSwitch adopts the result of a SwitchRequest and returns the view's
// total row count together with the follow-up fetch for the current
// viewport, if one is needed. A superseded result returns ErrSuperseded and
// changes nothing.
func (t *Table) CompleteSwitch(res SwitchResult) (int, *FetchRequest, error) {
	total, err := t.views.CompleteSwitch(res)
	if errors.Is(err, ErrSuperseded) {
		t.log.Debug("view switch superseded", "view", res.View.String(), "generation", res.Generation)
		return 0, nil, err
	}
	if !t.views.Loaded() {
		return 0, nil, err
	}
	if t.opts.SelectFirstOnLoad && t.selection.Active() == NoID {
		t.selection.SelectFirst()
	}
	if n := t.store.RowCount(); n > 0 {
		t.emit(Event{Kind: RowsArrived, Generation: t.Generation(), Ranges: []Range{{Start: 0, Stop: n}}})
	}
	t.check()
	var next *FetchRequest
	if t.viewport.Stop > t.viewport.Start {
		var ferr error
		next, ferr = t.fetcher.RequestViewport(t.viewport)
		err = errors.Join(err, ferr)
	}
	return total, next, err
}

// RequestRange asks for r to be fetched; see RangeFetcher.RequestRange.
func (t *Table) RequestRange(r Range) (*FetchRequest, error) {
	return t.fetcher.RequestRange(r)
}

// RequestViewport records v as the visible window and requests it with
// prefetch margins.
func (t *Table) RequestViewport(v Viewport) (*FetchRequest, error) {
	t.viewport = v
	t.hasViewport = true
	return t.fetcher.RequestViewport(v)
}

// CompleteFetch merges a fetch result, evicts rows far from the viewport
// when the working set is over MaxRows, and returns the next request if a
// pending range is waiting.
func (t *Table) CompleteFetch(res FetchResult) (*FetchRequest, error) {
	next, err := t.fetcher.Complete(res)
	if len(t.mutations) == 0 {
		t.evict()
	}
	t.check()
	return next, err
}

func (t *Table) evict() {
	if t.opts.MaxRows <= 0 || t.store.RowCount() <= t.opts.MaxRows {
		return
	}
	center := t.viewport.Range()
	if !t.hasViewport {
		center = Range{Start: 0, Stop: 1}
		if off, err := t.store.FindOffset(t.selection.Active()); err == nil {
			center = Range{Start: off, Stop: off + 1}
		}
	}
	slack := max(0, t.opts.MaxRows-center.Len()) / 2
	keep := Range{Start: max(0, center.Start-slack), Stop: center.Stop + slack}
	freed := t.store.EvictOutside(keep, t.selection.Active())
	n := 0
	for _, r := range freed {
		t.tracker.Add(r)
		n += r.Len()
	}
	t.evicted += n
	if n > 0 {
		t.log.Debug("rows evicted", "count", n, "keep", keep.String())
	}
}

// BeginMutation prepares action against ids, or against the selection's
// targets when ids is empty. With Optimistic set, the removal is applied
// locally before the request is returned. Until every outstanding mutation
// has completed, fetches are held: their results could already reflect the
// mutation and would shift offsets twice.
func (t *Table) BeginMutation(action Action, ids []ID) (*MutationRequest, error) {
	if len(ids) == 0 {
		ids = t.selection.Targets()
	}
	if len(ids) == 0 {
		return nil, ErrNoTargets
	}
	t.mutSeq++
	req := &MutationRequest{
		Seq:        t.mutSeq,
		Generation: t.Generation(),
		View:       t.View(),
		Action:     action,
		IDs:        append([]ID(nil), ids...),
	}
	t.fetcher.Hold()
	pm := &pendingMutation{}
	if t.opts.Optimistic {
		if t.base == nil {
			st := t.saveState()
			t.base = &st
		}
		pm.predicted = t.predict(req.IDs)
		t.journal = append(t.journal, journalEntry{seq: req.Seq, begin: true, removed: req.IDs})
		t.check()
	}
	t.mutations[req.Seq] = pm
	t.log.Debug("mutation issued", "action", string(action), "rows", len(req.IDs), "seq", req.Seq)
	return req, nil
}

// CompleteMutation applies a mutation outcome: removed rows leave the store,
// placeholders and selection as one batch, inserted rows are placed at their
// reported offsets. An outcome from a previous view generation is dropped.
// Once no mutation is outstanding the held fetches resume; the returned
// request refills the viewport and any range requested meanwhile.
func (t *Table) CompleteMutation(out MutationOutcome) (*FetchRequest, error) {
	pm, ok := t.mutations[out.Seq]
	delete(t.mutations, out.Seq)
	if !ok || out.Generation != t.Generation() {
		t.mutationsDiscarded++
		t.log.Debug("mutation result discarded", "seq", out.Seq, "generation", out.Generation)
		return nil, nil
	}
	if out.Err != nil {
		t.mutationsFailed++
		if pm.predicted != nil {
			t.rollback(out.Seq)
		}
		t.log.Warn("mutation failed", "seq", out.Seq, "err", out.Err)
		next, err := t.resume()
		return next, errors.Join(fmt.Errorf("%w: %w", ErrMutationFailed, out.Err), err)
	}

	if pm.predicted != nil && !confirms(pm.predicted, out.Result.RemovedIDs) {
		t.log.Debug("mutation result differs from prediction", "seq", out.Seq)
		t.rollback(out.Seq)
		pm.predicted = nil
	}

	var removeIDs []ID
	for _, id := range out.Result.RemovedIDs {
		if _, done := pm.predicted[id]; done {
			continue
		}
		removeIDs = append(removeIDs, id)
	}
	t.applyOutcome(removeIDs, out.Result.InsertedRows)
	if t.base != nil {
		t.journal = append(t.journal, journalEntry{seq: out.Seq, removed: removeIDs, inserted: out.Result.InsertedRows})
	}
	t.check()
	return t.resume()
}

// resume releases held fetches once no mutation is outstanding and requests
// the viewport again.
func (t *Table) resume() (*FetchRequest, error) {
	if len(t.mutations) > 0 {
		return nil, nil
	}
	t.base, t.journal = nil, nil
	next := t.fetcher.Resume()
	if !t.hasViewport {
		return next, nil
	}
	req, err := t.fetcher.RequestViewport(t.viewport)
	if next == nil {
		next = req
	}
	return next, err
}

// predict applies the optimistic removal of ids and returns the rows it
// removed.
func (t *Table) predict(ids []ID) map[ID]struct{} {
	predicted := make(map[ID]struct{})
	for _, r := range t.applyRemovals(ids) {
		predicted[r.ID] = struct{}{}
	}
	return predicted
}

// rollback undoes the prediction of mutation seq. The table returns to the
// state before the oldest outstanding prediction, then every other journalled
// step is applied again; predictions still outstanding are recomputed.
func (t *Table) rollback(seq uint64) {
	journal := t.journal
	t.journal = nil
	t.restoreState(*t.base)
	for _, e := range journal {
		if e.seq == seq {
			continue
		}
		if e.begin {
			predicted := t.predict(e.removed)
			if pm, ok := t.mutations[e.seq]; ok && pm.predicted != nil {
				pm.predicted = predicted
			}
		} else {
			t.applyOutcome(e.removed, e.inserted)
		}
		t.journal = append(t.journal, e)
	}
	t.check()
}

// applyOutcome removes ids and places inserted rows. Removed IDs that were
// never fetched shrink the trailing placeholders.
func (t *Table) applyOutcome(ids []ID, inserted []Row) {
	applied := t.applyRemovals(ids)
	if unfetched := len(dedup(ids)) - len(applied); unfetched > 0 {
		t.collapseUnfetched(unfetched)
	}
	t.applyInsertions(inserted)
}

func confirms(predicted map[ID]struct{}, removed []ID) bool {
	got := make(map[ID]struct{}, len(removed))
	for _, id := range removed {
		got[id] = struct{}{}
	}
	for id := range predicted {
		if _, ok := got[id]; !ok {
			return false
		}
	}
	return true
}

func dedup(ids []ID) []ID {
	seen := make(map[ID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// applyRemovals removes the stored rows among ids as one batch and returns
// them with their pre-batch offsets. IDs that are not stored are ignored.
func (t *Table) applyRemovals(ids []ID) []Removal {
	var removed []Removal
	for _, id := range dedup(ids) {
		if off, err := t.store.FindOffset(id); err == nil {
			removed = append(removed, Removal{ID: id, Offset: off})
		}
	}
	if len(removed) == 0 {
		return nil
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Offset < removed[j].Offset })
	for i := len(removed) - 1; i >= 0; i-- {
		if _, err := t.store.Remove(removed[i].ID); err != nil {
			t.guard.violate(err)
			continue
		}
		t.tracker.MarkRemoved(removed[i].Offset)
	}
	t.selection.BatchRemoved(removed)
	t.fetcher.Invalidate()

	ids = make([]ID, len(removed))
	for i, r := range removed {
		ids[i] = r.ID
	}
	t.emit(Event{Kind: RowsRemoved, Generation: t.Generation(), IDs: ids})
	return removed
}

// collapseUnfetched shrinks the sequence by n rows that were removed at
// positions never fetched. Their exact offsets are unknown, so the count is
// taken from the trailing placeholders; the next fetch realigns anything
// that shifted.
func (t *Table) collapseUnfetched(n int) {
	for ; n > 0; n-- {
		all := t.tracker.All()
		if len(all) == 0 {
			t.log.Debug("unfetched removal without placeholder", "remaining", n)
			return
		}
		off := all[len(all)-1].Stop - 1
		if err := t.store.Collapse(off); err != nil {
			t.guard.violate(err)
			return
		}
		t.tracker.MarkRemoved(off)
	}
	t.fetcher.Invalidate()
}

func (t *Table) applyInsertions(rows []Row) {
	if len(rows) == 0 {
		return
	}
	rows = append([]Row(nil), rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Offset < rows[j].Offset })
	var ids []ID
	for _, row := range rows {
		if err := t.opts.Schema.Validate(row); err != nil {
			t.log.Warn("inserted row rejected", "id", string(row.ID), "err", err)
			continue
		}
		if off, err := t.store.FindOffset(row.ID); err == nil {
			// moved within the view
			_, _ = t.store.Remove(row.ID)
			t.tracker.MarkRemoved(off)
		}
		off := min(max(row.Offset, 0), t.store.TotalRowCount())
		if err := t.store.InsertAt(row, off); err != nil {
			t.guard.violate(err)
			continue
		}
		t.tracker.MarkInserted(off)
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return
	}
	t.fetcher.Invalidate()
	t.emit(Event{Kind: RowsInserted, Generation: t.Generation(), IDs: ids})
}

func (t *Table) saveState() tableState {
	return tableState{
		rows: t.store.snapshot(),
		ph:   t.tracker.All(),
		sel:  t.selection.Snapshot(),
	}
}

func (t *Table) restoreState(st tableState) {
	t.store.restore(st.rows)
	t.tracker.restore(st.ph)
	t.selection.Restore(st.sel)
	t.fetcher.Invalidate()
	ids := make([]ID, len(st.rows.entries))
	for i, e := range st.rows.entries {
		ids[i] = e.row.ID
	}
	t.emit(Event{Kind: RowsInserted, Generation: t.Generation(), IDs: ids})
}

// Open switches to view and waits for it to load, then fetches the
// viewport if one was set.
func (t *Table) Open(ctx context.Context, view View) (int, error) {
	req := t.SwitchView(view)
	total, next, err := t.CompleteSwitch(req.Execute(ctx, t.src))
	if err != nil {
		return total, err
	}
	return total, t.drain(ctx, next)
}

// Ensure fetches every unfetched row in r before returning.
func (t *Table) Ensure(ctx context.Context, r Range) error {
	req, err := t.RequestRange(r)
	if err != nil {
		return err
	}
	return t.drain(ctx, req)
}

// Mutate runs a mutation to completion, refilling the viewport afterwards.
func (t *Table) Mutate(ctx context.Context, action Action, ids []ID) (MutationResult, error) {
	req, err := t.BeginMutation(action, ids)
	if err != nil {
		return MutationResult{}, err
	}
	out := req.Execute(ctx, t.src)
	next, err := t.CompleteMutation(out)
	return out.Result, errors.Join(err, t.drain(ctx, next))
}

func (t *Table) drain(ctx context.Context, req *FetchRequest) error {
	var errs []error
	for req != nil {
		next, err := t.CompleteFetch(req.Execute(ctx, t.src))
		if err != nil {
			errs = append(errs, err)
		}
		req = next
	}
	return errors.Join(errs...)
}

// CheckInvariants verifies that fetched rows and placeholders together cover
// [0, TotalRowCount()) exactly once and that the active row is stored.
func (t *Table) CheckInvariants() error {
	total := t.store.TotalRowCount()
	rows := t.store.order
	ph := t.tracker.ph
	if len(rows) != len(t.store.byID) {
		return invariantf("row index holds %d ids for %d rows", len(t.store.byID), len(rows))
	}
	cursor, i, j := 0, 0, 0
	for cursor < total {
		if i < len(rows) && rows[i].offset < cursor {
			return invariantf("row %q at offset %d overlaps a placeholder", string(rows[i].row.ID), rows[i].offset)
		}
		if i < len(rows) && rows[i].offset == cursor {
			i++
			cursor++
			continue
		}
		if j < len(ph) && ph[j].Start == cursor {
			if ph[j].Stop <= ph[j].Start {
				return invariantf("empty placeholder at %d", cursor)
			}
			cursor = ph[j].Stop
			j++
			continue
		}
		return invariantf("offset %d is neither fetched nor a placeholder", cursor)
	}
	if i < len(rows) {
		return invariantf("row %q at offset %d beyond total %d", string(rows[i].row.ID), rows[i].offset, total)
	}
	if j < len(ph) {
		return invariantf("placeholder %s beyond total %d", ph[j].Range(), total)
	}
	if cursor != total {
		return invariantf("coverage ends at %d, total %d", cursor, total)
	}
	if a := t.selection.Active(); a != NoID && !t.store.Has(a) {
		return invariantf("active row %q is not stored", string(a))
	}
	return nil
}

func (t *Table) check() {
	if err := t.CheckInvariants(); err != nil {
		t.guard.violate(err)
	}
}
