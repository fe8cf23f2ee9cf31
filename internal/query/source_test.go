package query_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
	"github.com/wesm/msgscroll/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	now   = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newSource(t *testing.T, st *store.Store) *query.Source {
	t.Helper()
	src := query.NewSource(st, quiet)
	src.Now = func() time.Time { return now }
	return src
}

// hoursAgo builds a message sent h hours before now, so smaller h sorts first.
func hoursAgo(subject string, h int) *testutil.MessageBuilder {
	return testutil.NewMessage(subject).WithSentAt(now.Add(-time.Duration(h) * time.Hour))
}

func insert(t *testing.T, st *store.Store, bs ...*testutil.MessageBuilder) map[string]*store.Message {
	t.Helper()
	out := make(map[string]*store.Message, len(bs))
	msgs := make([]*store.Message, len(bs))
	for i, b := range bs {
		msgs[i] = b.Build()
		out[msgs[i].Subject] = msgs[i]
	}
	testutil.MustNoErr(t, st.InsertMessages(context.Background(), msgs), "InsertMessages")
	return out
}

func subjects(rows []scrolltable.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Text("subject")
	}
	return out
}

// mailbox is a small fixture touching every view.
func mailbox(t *testing.T) (*store.Store, map[string]*store.Message) {
	t.Helper()
	st := testutil.NewTestStore(t)
	msgs := insert(t, st,
		hoursAgo("in-new", 1).WithTags("work"),
		hoursAgo("in-old", 5).WithRead(true),
		hoursAgo("archived", 2).WithFolder(store.FolderArchive).WithSender("alice@example.com"),
		hoursAgo("junk", 3).WithFolder(store.FolderSpam).WithTags("work"),
		hoursAgo("binned", 4).WithFolder(store.FolderTrash).WithSender("alice@example.com"),
		hoursAgo("outgoing", 6).WithFolder(store.FolderSent).WithSender("me@example.com").WithRecipients("alice@example.com"),
		hoursAgo("snoozed", 7).DeferredUntil(now.Add(time.Hour)),
		hoursAgo("woke", 8).DeferredUntil(now.Add(-time.Hour)),
	)
	return st, msgs
}

func TestFetchRange_Views(t *testing.T) {
	st, _ := mailbox(t)
	src := newSource(t, st)
	tests := []struct {
		view scrolltable.View
		want []string
	}{
		{scrolltable.FolderView(query.ViewInbox), []string{"in-new", "in-old", "woke"}},
		{scrolltable.FolderView(query.ViewArchive), []string{"archived"}},
		{scrolltable.FolderView(query.ViewSpam), []string{"junk"}},
		{scrolltable.FolderView(query.ViewTrash), []string{"binned"}},
		{scrolltable.FolderView(query.ViewSent), []string{"outgoing"}},
		{scrolltable.FolderView(query.ViewDeferred), []string{"snoozed"}},
		{scrolltable.FolderView(query.ViewAll), []string{"in-new", "archived", "in-old", "outgoing", "snoozed", "woke"}},
		{scrolltable.PersonView("alice@example.com"), []string{"archived", "outgoing"}},
		{scrolltable.TagView("work"), []string{"in-new"}},
		{scrolltable.TagView("nothing"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.view.String(), func(t *testing.T) {
			page, err := src.FetchRange(context.Background(), tt.view, 0, 100)
			testutil.MustNoErr(t, err, "FetchRange")
			if page.TotalCount != len(tt.want) {
				t.Errorf("TotalCount = %d, want %d", page.TotalCount, len(tt.want))
			}
			if diff := cmp.Diff(tt.want, subjects(page.Rows), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("subjects mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchRange_Window(t *testing.T) {
	for _, driver := range []string{store.DriverCGo, store.DriverPureGo} {
		t.Run(driver, func(t *testing.T) {
			st := testutil.NewTestStoreWithDriver(t, driver)
			var bs []*testutil.MessageBuilder
			for i, s := range []string{"a", "b", "c", "d", "e"} {
				bs = append(bs, hoursAgo(s, i))
			}
			msgs := insert(t, st, bs...)
			src := newSource(t, st)

			page, err := src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewInbox), 1, 3)
			testutil.MustNoErr(t, err, "FetchRange")
			if page.TotalCount != 5 {
				t.Errorf("TotalCount = %d, want 5", page.TotalCount)
			}
			testutil.AssertStrings(t, subjects(page.Rows), "b", "c")
			for i, r := range page.Rows {
				if r.Offset != 1+i {
					t.Errorf("row %d offset = %d", i, r.Offset)
				}
				if err := query.MessageSchema.Validate(r); err != nil {
					t.Errorf("row %d: %v", i, err)
				}
			}
			if got := page.Rows[0].ID; got != scrolltable.ID(msgs["b"].WebID) {
				t.Errorf("ID = %q, want web id %q", got, msgs["b"].WebID)
			}

			page, err = src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewInbox), 10, 20)
			testutil.MustNoErr(t, err, "FetchRange past end")
			if len(page.Rows) != 0 || page.TotalCount != 5 {
				t.Errorf("past end: %d rows, total %d", len(page.Rows), page.TotalCount)
			}
		})
	}
}

func TestFetchRange_SameTimestampOrdersByID(t *testing.T) {
	st := testutil.NewTestStore(t)
	insert(t, st, hoursAgo("first", 1), hoursAgo("second", 1), hoursAgo("third", 1))
	page, err := newSource(t, st).FetchRange(context.Background(), scrolltable.FolderView(query.ViewInbox), 0, 3)
	testutil.MustNoErr(t, err, "FetchRange")
	testutil.AssertStrings(t, subjects(page.Rows), "third", "second", "first")
}

func TestFetchRange_Errors(t *testing.T) {
	src := newSource(t, testutil.NewTestStore(t))
	ctx := context.Background()
	if _, err := src.FetchRange(ctx, scrolltable.FolderView("drafts"), 0, 1); !errors.Is(err, query.ErrUnknownView) {
		t.Errorf("unknown folder: err = %v", err)
	}
	if _, err := src.FetchRange(ctx, scrolltable.FolderView(query.ViewInbox), 3, 1); err == nil {
		t.Error("inverted range should fail")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := src.FetchRange(cancelled, scrolltable.FolderView(query.ViewInbox), 0, 1); err == nil {
		t.Error("cancelled context should fail")
	}
}

func TestMutate_ReportsRemovals(t *testing.T) {
	st, msgs := mailbox(t)
	src := newSource(t, st)
	ids := []scrolltable.ID{
		scrolltable.ID(msgs["in-new"].WebID),
		scrolltable.ID(msgs["archived"].WebID), // already out of the inbox
		scrolltable.ID(msgs["in-new"].WebID),
	}

	res, err := src.Mutate(context.Background(), scrolltable.FolderView(query.ViewInbox), "archive", ids)
	testutil.MustNoErr(t, err, "Mutate")
	if diff := cmp.Diff([]scrolltable.ID{ids[0]}, res.RemovedIDs); diff != "" {
		t.Errorf("RemovedIDs mismatch (-want +got):\n%s", diff)
	}
	if len(res.InsertedRows) != 0 {
		t.Errorf("InsertedRows = %v", res.InsertedRows)
	}

	page, err := src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewArchive), 0, 10)
	testutil.MustNoErr(t, err, "FetchRange archive")
	testutil.AssertStrings(t, subjects(page.Rows), "in-new", "archived")
}

func TestMutate_NonRemovingActionKeepsRows(t *testing.T) {
	st, msgs := mailbox(t)
	src := newSource(t, st)
	id := scrolltable.ID(msgs["in-new"].WebID)

	res, err := src.Mutate(context.Background(), scrolltable.FolderView(query.ViewInbox), "mark-read", []scrolltable.ID{id})
	testutil.MustNoErr(t, err, "Mutate")
	if len(res.RemovedIDs)+len(res.InsertedRows) != 0 {
		t.Errorf("mark-read changed view membership: %+v", res)
	}
	page, err := src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewInbox), 0, 1)
	testutil.MustNoErr(t, err, "FetchRange")
	if !page.Rows[0].Bool("read") {
		t.Error("row not read after mark-read")
	}
}

func TestMutate_DeferHidesFromInbox(t *testing.T) {
	st, msgs := mailbox(t)
	src := newSource(t, st)
	id := scrolltable.ID(msgs["in-old"].WebID)

	res, err := src.Mutate(context.Background(), scrolltable.FolderView(query.ViewInbox), "defer", []scrolltable.ID{id})
	testutil.MustNoErr(t, err, "Mutate")
	if diff := cmp.Diff([]scrolltable.ID{id}, res.RemovedIDs); diff != "" {
		t.Errorf("RemovedIDs mismatch (-want +got):\n%s", diff)
	}
	page, err := src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewDeferred), 0, 10)
	testutil.MustNoErr(t, err, "FetchRange deferred")
	testutil.AssertStrings(t, subjects(page.Rows), "in-old", "snoozed")
	if !page.Rows[0].Bool("deferred") {
		t.Error("deferred column not set")
	}
}

func TestMutate_ReportsInsertionsWithOffsets(t *testing.T) {
	st, msgs := mailbox(t)
	src := newSource(t, st)
	id := scrolltable.ID(msgs["junk"].WebID)

	// junk (3h ago) re-enters "all" after in-new and archived.
	res, err := src.Mutate(context.Background(), scrolltable.FolderView(query.ViewAll), "train-ham", []scrolltable.ID{id})
	testutil.MustNoErr(t, err, "Mutate")
	if len(res.RemovedIDs) != 0 {
		t.Errorf("RemovedIDs = %v", res.RemovedIDs)
	}
	if len(res.InsertedRows) != 1 {
		t.Fatalf("InsertedRows = %v, want one row", res.InsertedRows)
	}
	got := res.InsertedRows[0]
	if got.ID != id || got.Offset != 2 {
		t.Errorf("inserted %q at %d, want %q at 2", got.ID, got.Offset, id)
	}
	page, err := src.FetchRange(context.Background(), scrolltable.FolderView(query.ViewAll), 2, 3)
	testutil.MustNoErr(t, err, "FetchRange")
	if page.Rows[0].ID != id {
		t.Errorf("row at offset 2 is %q, want %q", page.Rows[0].ID, id)
	}
}

func TestMutate_Errors(t *testing.T) {
	st, msgs := mailbox(t)
	src := newSource(t, st)
	ids := []scrolltable.ID{scrolltable.ID(msgs["in-new"].WebID)}
	if _, err := src.Mutate(context.Background(), scrolltable.FolderView(query.ViewInbox), "explode", ids); !errors.Is(err, store.ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
	if _, err := src.Mutate(context.Background(), scrolltable.View{Kind: scrolltable.ByFolder, Value: "?"}, "archive", ids); !errors.Is(err, query.ErrUnknownView) {
		t.Errorf("err = %v, want ErrUnknownView", err)
	}
}

func TestViewCounts(t *testing.T) {
	st, _ := mailbox(t)
	counts, err := newSource(t, st).ViewCounts(context.Background())
	testutil.MustNoErr(t, err, "ViewCounts")
	want := []query.ViewCount{
		{View: query.ViewInbox, Total: 3, Unread: 2},
		{View: query.ViewArchive, Total: 1, Unread: 1},
		{View: query.ViewAll, Total: 6, Unread: 5},
		{View: query.ViewSpam, Total: 1, Unread: 1},
		{View: query.ViewDeferred, Total: 1, Unread: 1},
		{View: query.ViewSent, Total: 1, Unread: 1},
		{View: query.ViewTrash, Total: 1, Unread: 1},
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("ViewCounts mismatch (-want +got):\n%s", diff)
	}
}

func TestViewCounts_MatchFetchTotals(t *testing.T) {
	st := testutil.NewSeededStore(t, 400)
	src := query.NewSource(st, quiet)
	src.Now = func() time.Time { return testutil.SeedNow }
	counts, err := src.ViewCounts(context.Background())
	testutil.MustNoErr(t, err, "ViewCounts")
	for _, c := range counts {
		page, err := src.FetchRange(context.Background(), scrolltable.FolderView(c.View), 0, 0)
		testutil.MustNoErr(t, err, "FetchRange "+c.View)
		if int64(page.TotalCount) != c.Total {
			t.Errorf("%s: ViewCounts total %d, FetchRange total %d", c.View, c.Total, page.TotalCount)
		}
	}
}

// TestTable_OverSQLite drives a Table against the database end to end.
func TestTable_OverSQLite(t *testing.T) {
	st := testutil.NewSeededStore(t, 300)
	src := query.NewSource(st, quiet)
	src.Now = func() time.Time { return testutil.SeedNow }
	ctx := context.Background()

	opts := scrolltable.DefaultOptions()
	opts.Strict = true
	opts.Schema = query.MessageSchema
	opts.Logger = quiet
	opts.MaxFetch = 40
	tbl := scrolltable.New(src, opts)

	total, err := tbl.Open(ctx, scrolltable.FolderView(query.ViewInbox))
	testutil.MustNoErr(t, err, "Open")
	testutil.MustNoErr(t, tbl.Ensure(ctx, scrolltable.Range{Start: 0, Stop: total}), "Ensure")
	if tbl.Store().RowCount() != total {
		t.Fatalf("fetched %d of %d rows", tbl.Store().RowCount(), total)
	}

	tbl.Selection().ChangeBatchSelection(scrolltable.BatchUnread)
	unread := tbl.Selection().GroupSize()
	if unread == 0 {
		t.Fatal("seeded inbox has no unread rows")
	}
	res, err := tbl.Mutate(ctx, "archive", nil)
	testutil.MustNoErr(t, err, "Mutate")
	if len(res.RemovedIDs) != unread {
		t.Errorf("removed %d rows, want %d", len(res.RemovedIDs), unread)
	}
	if got := tbl.Store().TotalRowCount(); got != total-unread {
		t.Errorf("TotalRowCount = %d, want %d", got, total-unread)
	}
	for _, r := range tbl.Store().Rows() {
		if !r.Bool("read") {
			t.Errorf("unread row %q still in inbox", r.ID)
		}
	}
	testutil.MustNoErr(t, tbl.CheckInvariants(), "CheckInvariants")

	counts, err := src.ViewCounts(ctx)
	testutil.MustNoErr(t, err, "ViewCounts")
	if counts[0].Unread != 0 || counts[0].Total != int64(total-unread) {
		t.Errorf("inbox counts after archive = %+v", counts[0])
	}
}
