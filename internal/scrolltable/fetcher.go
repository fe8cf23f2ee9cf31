package scrolltable

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// chunksPerRequest caps how many MaxFetch-sized sub-ranges one request may
// carry. Anything beyond stays pending and is requested on completion.
const chunksPerRequest = 4

// EventKind classifies a change notification.
type EventKind int

const (
	// RowsArrived: a fetch merged rows; Ranges holds the filled offsets.
	RowsArrived EventKind = iota
	// RowsRemoved: rows left the view; IDs holds them.
	RowsRemoved
	// RowsInserted: rows joined the view; IDs holds them.
	RowsInserted
	// RowsDropped: the source reported a shorter sequence and trailing rows
	// were discarded; IDs holds them.
	RowsDropped
	// ViewReset: the view was switched and everything was cleared.
	ViewReset
)

func (k EventKind) String() string {
	switch k {
	case RowsArrived:
		return "rows-arrived"
	case RowsRemoved:
		return "rows-removed"
	case RowsInserted:
		return "rows-inserted"
	case RowsDropped:
		return "rows-dropped"
	case ViewReset:
		return "view-reset"
	default:
		return "unknown"
	}
}

// Event describes a change to the working set.
type Event struct {
	Kind       EventKind
	Generation uint64
	Ranges     []Range
	IDs        []ID
}

// FetchStats counts fetcher activity. Discarded and Superseded are not
// errors; they exist so tests and diagnostics can observe dropped work.
type FetchStats struct {
	Issued     int // requests handed out
	Completed  int // requests merged successfully
	Failed     int // requests that reported an error
	Discarded  int // completions dropped as stale
	Superseded int // pending ranges replaced by a newer one
}

// Viewport is the visible window plus the current scroll velocity in rows
// per second; positive velocity scrolls toward higher offsets.
type Viewport struct {
	Start    int
	Stop     int
	Velocity float64
}

// Range returns the visible rows as a Range.
func (v Viewport) Range() Range { return Range{Start: v.Start, Stop: v.Stop} }

// FetchRequest is one outstanding fetch. It carries the view generation and
// sequence number it was issued under so its result can be recognised as
// stale.
type FetchRequest struct {
	Generation uint64
	Seq        uint64
	View       View
	Ranges     []Range
}

// RangePage pairs a requested range with the page the source returned.
type RangePage struct {
	Range Range
	Page  Page
}

// FetchResult is the outcome of FetchRequest.Execute. Pages fetched before
// an error are kept and merged.
type FetchResult struct {
	Generation uint64
	Seq        uint64
	Pages      []RangePage
	Err        error
}

// Execute performs the fetch against src. It is the only part of a fetch
// that may run off the event loop.
func (r *FetchRequest) Execute(ctx context.Context, src Source) FetchResult {
	res := FetchResult{Generation: r.Generation, Seq: r.Seq}
	for _, rg := range r.Ranges {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		page, err := src.FetchRange(ctx, r.View, rg.Start, rg.Stop)
		if err != nil {
			res.Err = fmt.Errorf("fetch %s %s: %w", r.View, rg, err)
			break
		}
		res.Pages = append(res.Pages, RangePage{Range: rg, Page: page})
	}
	return res
}

// FetcherOptions configures a RangeFetcher.
type FetcherOptions struct {
	// MaxFetch is the largest range requested from the source in one call.
	MaxFetch int
	// Prefetch is the number of rows requested beyond each edge of the
	// viewport when idle.
	Prefetch int
	// VelocityWindow is how far ahead, in time, to prefetch in the scroll
	// direction: extra rows = |velocity| * window, capped at MaxFetch.
	VelocityWindow time.Duration
	// Schema validates rows before they are merged. Nil accepts all rows.
	Schema Schema
	// Notify receives RowsArrived and RowsDropped events.
	Notify func(Event)
	Logger *slog.Logger
}

// RangeFetcher turns viewport requests into source fetches. It keeps at most
// one fetch in flight per view generation; a request made while busy
// replaces any earlier pending request and is issued when the current fetch
// completes.
type RangeFetcher struct {
	store   *RowStore
	tracker *PlaceholderTracker
	opts    FetcherOptions
	log     *slog.Logger

	generation uint64
	view       View
	seq        uint64
	inflight   *FetchRequest
	stale      bool // in-flight result must be dropped (local offsets moved)
	held       bool // a mutation is outstanding; no fetch may start
	pending    *Range
	stats      FetchStats
}

// NewRangeFetcher returns a fetcher that merges into store and tracker.
func NewRangeFetcher(store *RowStore, tracker *PlaceholderTracker, opts FetcherOptions) *RangeFetcher {
	if opts.MaxFetch <= 0 {
		opts.MaxFetch = 100
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = store.guard.log
	}
	return &RangeFetcher{store: store, tracker: tracker, opts: opts, log: logger}
}

// Reset forgets any in-flight or pending fetch and adopts a new generation.
func (f *RangeFetcher) Reset(generation uint64, view View) {
	f.generation = generation
	f.view = view
	f.inflight = nil
	f.stale = false
	f.held = false
	f.pending = nil
}

// Hold stops the fetcher from starting requests and marks the in-flight one
// stale. Offsets served by the source may move before a mutation's outcome
// is applied, so nothing fetched meanwhile can be merged. Requests made
// while held are kept as the pending range.
func (f *RangeFetcher) Hold() {
	f.held = true
	f.Invalidate()
}

// Resume ends a Hold and returns the request for the pending range, if any.
func (f *RangeFetcher) Resume() *FetchRequest {
	f.held = false
	if f.inflight != nil {
		return nil
	}
	return f.drainPending()
}

// Busy reports whether a fetch is in flight.
func (f *RangeFetcher) Busy() bool { return f.inflight != nil }

// Pending returns the range waiting for the in-flight fetch to finish.
func (f *RangeFetcher) Pending() (Range, bool) {
	if f.pending == nil {
		return Range{}, false
	}
	return *f.pending, true
}

// Stats returns the activity counters.
func (f *RangeFetcher) Stats() FetchStats { return f.stats }

// RequestRange asks for r to be fetched. It returns nil when r is already
// fully fetched or when a fetch is in flight (r then becomes the pending
// range, superseding any earlier one). Otherwise the returned request covers
// only the unfetched parts of r and must be executed and passed to Complete.
// While the fetcher is held r is recorded as pending in the same way.
func (f *RangeFetcher) RequestRange(r Range) (*FetchRequest, error) {
	if r.Start < 0 || r.Stop < r.Start {
		return nil, fmt.Errorf("request range %s: invalid range", r)
	}
	r = r.Clamp(f.store.TotalRowCount())
	if len(f.tracker.Missing(r)) == 0 {
		return nil, nil
	}
	if f.inflight != nil || f.held {
		if f.pending != nil {
			f.stats.Superseded++
		}
		f.pending = &r
		return nil, nil
	}
	return f.start(r), nil
}

// RequestViewport widens v by the prefetch margin, biased toward the scroll
// direction in proportion to velocity, and requests the result.
func (f *RangeFetcher) RequestViewport(v Viewport) (*FetchRequest, error) {
	if v.Stop < v.Start {
		return nil, fmt.Errorf("request viewport [%d,%d): invalid range", v.Start, v.Stop)
	}
	margin := f.opts.Prefetch
	extra := int(math.Abs(v.Velocity) * f.opts.VelocityWindow.Seconds())
	extra = min(extra, f.opts.MaxFetch)
	before, after := margin, margin
	switch {
	case v.Velocity > 0:
		before, after = margin/2, margin+extra
	case v.Velocity < 0:
		before, after = margin+extra, margin/2
	}
	return f.RequestRange(Range{Start: max(0, v.Start-before), Stop: v.Stop + after})
}

func (f *RangeFetcher) start(r Range) *FetchRequest {
	var chunks []Range
	budget := chunksPerRequest
	for _, m := range f.tracker.Missing(r) {
		for s := m.Start; s < m.Stop && budget > 0; s += f.opts.MaxFetch {
			chunks = append(chunks, Range{Start: s, Stop: min(s+f.opts.MaxFetch, m.Stop)})
			budget--
		}
	}
	if len(chunks) == 0 {
		return nil
	}
	if last := chunks[len(chunks)-1]; budget == 0 && last.Stop < r.Stop && f.pending == nil {
		rest := Range{Start: last.Stop, Stop: r.Stop}
		f.pending = &rest
	}
	f.seq++
	req := &FetchRequest{Generation: f.generation, Seq: f.seq, View: f.view, Ranges: chunks}
	f.inflight = req
	f.stats.Issued++
	f.log.Debug("fetch issued", "view", f.view.String(), "generation", f.generation, "seq", f.seq, "ranges", len(chunks))
	return req
}

// Invalidate marks the in-flight fetch stale because local offsets moved
// under it. Its result will be dropped and the range fetched again.
func (f *RangeFetcher) Invalidate() {
	if f.inflight == nil || f.stale {
		return
	}
	f.stale = true
	if f.pending == nil {
		rs := f.inflight.Ranges
		span := Range{Start: rs[0].Start, Stop: rs[len(rs)-1].Stop}
		f.pending = &span
	}
}

// Complete applies the result of an executed request. Results from an older
// generation, or for a request that was invalidated, are dropped silently
// and counted in Stats().Discarded. A failed fetch leaves its offsets as
// placeholders and returns an error wrapping ErrFetchFailed; nothing is
// retried automatically. When a pending range exists the next request is
// returned.
func (f *RangeFetcher) Complete(res FetchResult) (*FetchRequest, error) {
	if f.inflight == nil || res.Generation != f.generation || res.Seq != f.inflight.Seq {
		f.stats.Discarded++
		f.log.Debug("fetch discarded", "generation", res.Generation, "seq", res.Seq, "current", f.generation)
		return nil, nil
	}
	stale := f.stale
	f.inflight = nil
	f.stale = false
	if stale {
		f.stats.Discarded++
		f.log.Debug("fetch discarded after local mutation", "seq", res.Seq)
		return f.drainPending(), nil
	}

	var arrived []Range
	failure := res.Err
	for _, rp := range res.Pages {
		filled, err := f.merge(rp.Range, rp.Page)
		arrived = append(arrived, filled...)
		if err != nil {
			failure = err
			break
		}
	}

	var err error
	if failure != nil {
		f.stats.Failed++
		err = fmt.Errorf("%w: %w", ErrFetchFailed, failure)
		f.log.Warn("fetch failed", "view", f.view.String(), "err", failure)
	} else {
		f.stats.Completed++
	}
	if len(arrived) > 0 {
		f.notify(Event{Kind: RowsArrived, Generation: f.generation, Ranges: arrived})
	}
	return f.drainPending(), err
}

func (f *RangeFetcher) drainPending() *FetchRequest {
	if f.pending == nil || f.held {
		return nil
	}
	r := *f.pending
	f.pending = nil
	return f.start(r.Clamp(f.store.TotalRowCount()))
}

func (f *RangeFetcher) notify(ev Event) {
	if f.opts.Notify != nil {
		f.opts.Notify(ev)
	}
}

// merge places page's rows at r.Start+i and marks the filled offsets as
// fetched. It returns the filled offsets as ranges.
func (f *RangeFetcher) merge(r Range, page Page) ([]Range, error) {
	if page.TotalCount >= 0 && page.TotalCount != f.store.TotalRowCount() {
		f.resize(page.TotalCount)
	}
	rows := page.Rows
	if len(rows) > r.Len() {
		rows = rows[:r.Len()]
	}
	for _, row := range rows {
		if err := f.opts.Schema.Validate(row); err != nil {
			return nil, err
		}
	}

	total := f.store.TotalRowCount()
	for i, row := range rows {
		offset := r.Start + i
		if offset >= total {
			break
		}
		old, findErr := f.store.FindOffset(row.ID)
		if err := f.store.Insert(row, offset); err != nil {
			continue
		}
		if findErr == nil && old != offset {
			f.tracker.Add(Range{Start: old, Stop: old + 1})
		}
	}

	var filled []Range
	span := Range{Start: r.Start, Stop: min(r.Start+len(rows), total)}
	for off := span.Start; off < span.Stop; off++ {
		if _, ok := f.store.GetByOffset(off); !ok {
			continue
		}
		if n := len(filled); n > 0 && filled[n-1].Stop == off {
			filled[n-1].Stop++
		} else {
			filled = append(filled, Range{Start: off, Stop: off + 1})
		}
	}
	for _, run := range filled {
		f.tracker.MarkFetched(run)
	}
	return filled, nil
}

// resize adopts a new total reported by the source. Growth appends a
// placeholder; shrinkage drops trailing rows and placeholders.
func (f *RangeFetcher) resize(total int) {
	old := f.store.TotalRowCount()
	f.log.Debug("total row count changed", "view", f.view.String(), "old", old, "new", total)
	if total > old {
		f.store.SetTotalRowCount(total)
		f.tracker.Add(Range{Start: old, Stop: total})
		return
	}
	dropped := f.store.SetTotalRowCount(total)
	f.tracker.Truncate(total)
	if len(dropped) > 0 {
		f.notify(Event{Kind: RowsDropped, Generation: f.generation, IDs: dropped})
	}
}
