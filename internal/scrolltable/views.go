package scrolltable

import (
	"context"
	"fmt"
)

// SwitchRequest is the defining fetch of a newly selected view.
type SwitchRequest struct {
	Generation uint64
	View       View
	Range      Range
}

// SwitchResult is the outcome of SwitchRequest.Execute.
type SwitchResult struct {
	Generation uint64
	View       View
	Page       Page
	Err        error
}

// Execute fetches the first rows of the view and its total count.
func (r *SwitchRequest) Execute(ctx context.Context, src Source) SwitchResult {
	page, err := src.FetchRange(ctx, r.View, r.Range.Start, r.Range.Stop)
	if err != nil {
		err = fmt.Errorf("open view %s: %w", r.View, err)
	}
	return SwitchResult{Generation: r.Generation, View: r.View, Page: page, Err: err}
}

// ViewSwitcher owns the view generation counter. Switching clears the row
// store and placeholders and re-arms the fetcher; only the most recent
// switch's result is ever adopted. It does not touch the selection.
type ViewSwitcher struct {
	store   *RowStore
	tracker *PlaceholderTracker
	fetcher *RangeFetcher

	initialFetch int
	generation   uint64
	current      View
	loaded       bool
	discarded    int
}

// NewViewSwitcher returns a switcher whose defining fetch asks for the first
// initialFetch rows.
func NewViewSwitcher(store *RowStore, tracker *PlaceholderTracker, fetcher *RangeFetcher, initialFetch int) *ViewSwitcher {
	if initialFetch <= 0 {
		initialFetch = 50
	}
	return &ViewSwitcher{store: store, tracker: tracker, fetcher: fetcher, initialFetch: initialFetch}
}

// Current returns the selected view.
func (v *ViewSwitcher) Current() View { return v.current }

// Generation returns the current view generation.
func (v *ViewSwitcher) Generation() uint64 { return v.generation }

// Loaded reports whether the current view's defining fetch has completed.
func (v *ViewSwitcher) Loaded() bool { return v.loaded }

// Discarded returns how many switch results were dropped as superseded.
func (v *ViewSwitcher) Discarded() int { return v.discarded }

// SwitchTo selects view. The total count is unknown until the returned
// request is executed and passed to CompleteSwitch.
func (v *ViewSwitcher) SwitchTo(view View) *SwitchRequest {
	v.generation++
	v.current = view
	v.loaded = false
	v.store.Clear()
	v.tracker.Reset(0)
	v.fetcher.Reset(v.generation, view)
	return v.request()
}

// Retry re-issues the defining fetch of the current generation, for use
// after a failed switch.
func (v *ViewSwitcher) Retry() *SwitchRequest {
	return v.request()
}

func (v *ViewSwitcher) request() *SwitchRequest {
	return &SwitchRequest{
		Generation: v.generation,
		View:       v.current,
		Range:      Range{Start: 0, Stop: v.initialFetch},
	}
}

// CompleteSwitch adopts a defining fetch and returns the view's total row
// count. A result from an older generation returns ErrSuperseded and changes
// nothing.
func (v *ViewSwitcher) CompleteSwitch(res SwitchResult) (int, error) {
	if res.Generation != v.generation {
		v.discarded++
		return 0, ErrSuperseded
	}
	if res.Err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetchFailed, res.Err)
	}
	total := res.Page.TotalCount
	if total < 0 {
		total = len(res.Page.Rows)
	}
	v.store.Clear()
	v.store.SetTotalRowCount(total)
	v.tracker.Reset(total)
	v.loaded = true
	page := Page{Rows: res.Page.Rows, TotalCount: total}
	if _, err := v.fetcher.merge(Range{Start: 0, Stop: len(page.Rows)}, page); err != nil {
		return total, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return total, nil
}
