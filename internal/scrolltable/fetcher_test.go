package scrolltable

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/msgscroll/internal/testutil"
)

type fetchFixture struct {
	store   *RowStore
	tracker *PlaceholderTracker
	fetcher *RangeFetcher
	events  []Event
}

func newFetchFixture(total int, opts FetcherOptions) *fetchFixture {
	f := &fetchFixture{store: newRowStore(quietGuard()), tracker: NewPlaceholderTracker()}
	f.store.SetTotalRowCount(total)
	f.tracker.Reset(total)
	opts.Notify = func(ev Event) { f.events = append(f.events, ev) }
	f.fetcher = NewRangeFetcher(f.store, f.tracker, opts)
	f.fetcher.Reset(1, FolderView("inbox"))
	return f
}

// serve answers req as a source holding rows m0..m(total-1) would.
func serve(req *FetchRequest, total int) FetchResult {
	res := FetchResult{Generation: req.Generation, Seq: req.Seq}
	for _, r := range req.Ranges {
		page := Page{TotalCount: total}
		for off := r.Start; off < min(r.Stop, total); off++ {
			page.Rows = append(page.Rows, row(fmt.Sprintf("m%d", off)))
		}
		res.Pages = append(res.Pages, RangePage{Range: r, Page: page})
	}
	return res
}

func TestRangeFetcher_FetchesOnlyMissing(t *testing.T) {
	f := newFetchFixture(100, FetcherOptions{MaxFetch: 50})
	f.tracker.MarkFetched(Range{Start: 10, Stop: 20})
	for off := 10; off < 20; off++ {
		testutil.MustNoErr(t, f.store.Insert(row(fmt.Sprintf("m%d", off)), off), "seed")
	}

	req, err := f.fetcher.RequestRange(Range{Start: 0, Stop: 30})
	testutil.MustNoErr(t, err, "RequestRange")
	want := []Range{{Start: 0, Stop: 10}, {Start: 20, Stop: 30}}
	if diff := cmp.Diff(want, req.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}

	next, err := f.fetcher.Complete(serve(req, 100))
	testutil.MustNoErr(t, err, "Complete")
	if next != nil {
		t.Errorf("unexpected follow-up request %+v", next)
	}
	if diff := cmp.Diff(phs(30, 100), f.tracker.All()); diff != "" {
		t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
	}
	if f.store.RowCount() != 30 {
		t.Errorf("RowCount = %d, want 30", f.store.RowCount())
	}
	if len(f.events) != 1 || f.events[0].Kind != RowsArrived {
		t.Errorf("events = %+v, want one RowsArrived", f.events)
	}

	again, err := f.fetcher.RequestRange(Range{Start: 5, Stop: 25})
	testutil.MustNoErr(t, err, "RequestRange fetched")
	if again != nil {
		t.Errorf("fully fetched range produced request %+v", again)
	}
}

func TestRangeFetcher_SingleFlight(t *testing.T) {
	f := newFetchFixture(1000, FetcherOptions{MaxFetch: 100})

	first, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 50})
	if first == nil {
		t.Fatal("expected first request")
	}
	second, _ := f.fetcher.RequestRange(Range{Start: 100, Stop: 150})
	third, _ := f.fetcher.RequestRange(Range{Start: 200, Stop: 250})
	if second != nil || third != nil {
		t.Fatal("requests made while busy must not be issued")
	}
	if p, ok := f.fetcher.Pending(); !ok || p != (Range{Start: 200, Stop: 250}) {
		t.Errorf("pending = %v, %v; want latest range", p, ok)
	}
	if got := f.fetcher.Stats().Superseded; got != 1 {
		t.Errorf("Superseded = %d, want 1", got)
	}

	next, err := f.fetcher.Complete(serve(first, 1000))
	testutil.MustNoErr(t, err, "Complete first")
	if next == nil || next.Ranges[0] != (Range{Start: 200, Stop: 250}) {
		t.Fatalf("follow-up = %+v, want [200,250)", next)
	}
	if !f.fetcher.Busy() {
		t.Error("fetcher should be busy with follow-up")
	}
	if got := f.fetcher.Stats().Issued; got != 2 {
		t.Errorf("Issued = %d, want 2", got)
	}
}

func TestRangeFetcher_ChunksLargeRanges(t *testing.T) {
	f := newFetchFixture(1000, FetcherOptions{MaxFetch: 100})

	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 600})
	if len(req.Ranges) != chunksPerRequest {
		t.Fatalf("chunks = %d, want %d", len(req.Ranges), chunksPerRequest)
	}
	for _, r := range req.Ranges {
		if r.Len() > 100 {
			t.Errorf("chunk %s exceeds MaxFetch", r)
		}
	}
	if p, ok := f.fetcher.Pending(); !ok || p != (Range{Start: 400, Stop: 600}) {
		t.Errorf("pending remainder = %v, %v", p, ok)
	}
	next, _ := f.fetcher.Complete(serve(req, 1000))
	if next == nil {
		t.Fatal("remainder not requested")
	}
	_, _ = f.fetcher.Complete(serve(next, 1000))
	if missing := f.tracker.Missing(Range{Start: 0, Stop: 600}); len(missing) != 0 {
		t.Errorf("still missing %v", missing)
	}
}

func TestRangeFetcher_DiscardsWrongGeneration(t *testing.T) {
	f := newFetchFixture(100, FetcherOptions{})
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 10})
	res := serve(req, 100)

	f.fetcher.Reset(2, FolderView("archive"))
	next, err := f.fetcher.Complete(res)
	if next != nil || err != nil {
		t.Errorf("Complete = %v, %v; want nil, nil", next, err)
	}
	if f.store.RowCount() != 0 {
		t.Errorf("stale rows merged: %v", f.store.IDs())
	}
	if f.fetcher.Stats().Discarded != 1 {
		t.Errorf("Discarded = %d, want 1", f.fetcher.Stats().Discarded)
	}
}

func TestRangeFetcher_InvalidateDropsAndRefetches(t *testing.T) {
	f := newFetchFixture(100, FetcherOptions{})
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 10})
	f.fetcher.Invalidate()

	next, err := f.fetcher.Complete(serve(req, 100))
	testutil.MustNoErr(t, err, "Complete")
	if f.store.RowCount() != 0 {
		t.Error("invalidated result was merged")
	}
	if next == nil || next.Ranges[0] != (Range{Start: 0, Stop: 10}) {
		t.Errorf("refetch = %+v, want [0,10)", next)
	}
}

func TestRangeFetcher_HoldDefersFetches(t *testing.T) {
	f := newFetchFixture(100, FetcherOptions{})
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 10})
	f.fetcher.Hold()

	next, err := f.fetcher.Complete(serve(req, 100))
	testutil.MustNoErr(t, err, "Complete")
	if next != nil || f.store.RowCount() != 0 {
		t.Fatalf("held fetcher merged or restarted: next=%+v rows=%d", next, f.store.RowCount())
	}
	held, err := f.fetcher.RequestRange(Range{Start: 40, Stop: 50})
	testutil.MustNoErr(t, err, "RequestRange held")
	if held != nil || f.fetcher.Busy() {
		t.Errorf("request started while held: %+v", held)
	}

	resumed := f.fetcher.Resume()
	if resumed == nil || resumed.Ranges[0] != (Range{Start: 40, Stop: 50}) {
		t.Fatalf("resumed request = %+v, want the latest range [40,50)", resumed)
	}
	if f.fetcher.Resume() != nil {
		t.Error("second Resume started another request")
	}
}

func TestRangeFetcher_FailureLeavesPlaceholders(t *testing.T) {
	f := newFetchFixture(100, FetcherOptions{})
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 10})

	boom := errors.New("connection reset")
	_, err := f.fetcher.Complete(FetchResult{Generation: req.Generation, Seq: req.Seq, Err: boom})
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrFetchFailed wrapping cause", err)
	}
	if diff := cmp.Diff(phs(0, 100), f.tracker.All()); diff != "" {
		t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
	}
	if f.fetcher.Busy() {
		t.Error("fetcher still busy after failure")
	}

	retry, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 10})
	if retry == nil {
		t.Error("failed range should be requestable again")
	}
}

func TestRangeFetcher_TotalChanges(t *testing.T) {
	f := newFetchFixture(20, FetcherOptions{})

	// The source grew.
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 5})
	_, _ = f.fetcher.Complete(serve(req, 30))
	if f.store.TotalRowCount() != 30 {
		t.Errorf("total after growth = %d, want 30", f.store.TotalRowCount())
	}
	if diff := cmp.Diff(phs(5, 30), f.tracker.All()); diff != "" {
		t.Errorf("placeholders after growth (-want +got):\n%s", diff)
	}

	// The source shrank below fetched rows.
	f.events = nil
	req, _ = f.fetcher.RequestRange(Range{Start: 5, Stop: 10})
	_, _ = f.fetcher.Complete(serve(req, 3))
	if f.store.TotalRowCount() != 3 {
		t.Errorf("total after shrink = %d, want 3", f.store.TotalRowCount())
	}
	testutil.AssertEqualSlices(t, f.store.IDs(), "m0", "m1", "m2")
	if f.tracker.Count() != 0 {
		t.Errorf("placeholders after shrink = %v, want none", f.tracker.All())
	}
	if len(f.events) == 0 || f.events[0].Kind != RowsDropped {
		t.Errorf("events = %+v, want RowsDropped first", f.events)
	}
}

func TestRangeFetcher_SchemaRejectsRows(t *testing.T) {
	f := newFetchFixture(10, FetcherOptions{Schema: Schema{"read": KindBool}})
	req, _ := f.fetcher.RequestRange(Range{Start: 0, Stop: 2})
	bad := Row{ID: "x", Columns: map[string]Value{"read": Text("yes")}}
	res := FetchResult{Generation: req.Generation, Seq: req.Seq, Pages: []RangePage{{
		Range: req.Ranges[0],
		Page:  Page{Rows: []Row{bad}, TotalCount: 10},
	}}}

	_, err := f.fetcher.Complete(res)
	if !errors.Is(err, ErrInvalidRow) || !errors.Is(err, ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed wrapping ErrInvalidRow", err)
	}
	if f.store.RowCount() != 0 {
		t.Error("invalid row merged")
	}
}

func TestRangeFetcher_ViewportBiasedByVelocity(t *testing.T) {
	f := newFetchFixture(1000, FetcherOptions{MaxFetch: 500, Prefetch: 20, VelocityWindow: time.Second})

	req, _ := f.fetcher.RequestViewport(Viewport{Start: 100, Stop: 120, Velocity: 50})
	span := Range{Start: req.Ranges[0].Start, Stop: req.Ranges[len(req.Ranges)-1].Stop}
	if want := (Range{Start: 90, Stop: 190}); span != want {
		t.Errorf("downward span = %s, want %s", span, want)
	}

	f.fetcher.Reset(2, FolderView("inbox"))
	req, _ = f.fetcher.RequestViewport(Viewport{Start: 100, Stop: 120, Velocity: -50})
	span = Range{Start: req.Ranges[0].Start, Stop: req.Ranges[len(req.Ranges)-1].Stop}
	if want := (Range{Start: 30, Stop: 130}); span != want {
		t.Errorf("upward span = %s, want %s", span, want)
	}
}
