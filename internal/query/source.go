package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
)

// Source implements scrolltable.Source over a mailbox store. Views are
// ordered newest first. It is safe for concurrent use.
type Source struct {
	st     *store.Store
	db     *sql.DB
	logger *slog.Logger

	// Now is the clock used for deferrals; tests replace it.
	Now func() time.Time
}

// NewSource creates a Source reading from st.
func NewSource(st *store.Store, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{st: st, db: st.DB(), logger: logger, Now: time.Now}
}

const fromMessages = `FROM messages m JOIN people p ON p.id = m.sender_id`

const orderNewestFirst = `ORDER BY m.sent_at DESC, m.id DESC`

// FetchRange returns the rows of view at offsets [start, stop) and the
// view's total count, read in one transaction.
func (s *Source) FetchRange(ctx context.Context, view scrolltable.View, start, stop int) (scrolltable.Page, error) {
	if start < 0 || stop < start {
		return scrolltable.Page{}, fmt.Errorf("fetch %s: invalid range [%d,%d)", view, start, stop)
	}
	now := s.Now().Unix()
	cond, args, err := viewCondition(view, now)
	if err != nil {
		return scrolltable.Page{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scrolltable.Page{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) `+fromMessages+` WHERE `+cond, args...).Scan(&total); err != nil {
		return scrolltable.Page{}, fmt.Errorf("count %s: %w", view, err)
	}

	page := scrolltable.Page{TotalCount: total}
	if stop == start || start >= total {
		return page, nil
	}
	q := `SELECT ` + store.MessageColumns + ` ` + fromMessages + ` WHERE ` + cond + ` ` + orderNewestFirst + ` LIMIT ? OFFSET ?`
	rows, err := tx.QueryContext(ctx, q, append(args, stop-start, start)...)
	if err != nil {
		return scrolltable.Page{}, fmt.Errorf("list %s: %w", view, err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := store.ScanMessage(rows)
		if err != nil {
			return scrolltable.Page{}, fmt.Errorf("scan message: %w", err)
		}
		page.Rows = append(page.Rows, toRow(m, start+len(page.Rows), now))
	}
	if err := rows.Err(); err != nil {
		return scrolltable.Page{}, fmt.Errorf("iterate %s: %w", view, err)
	}
	s.logger.Debug("fetched range", "view", view.String(), "start", start, "stop", stop, "rows", len(page.Rows), "total", total)
	return page, nil
}

// Mutate applies action to ids and reports how view changed: IDs that were
// in the view and no longer are, and IDs that joined it with their new
// offsets.
func (s *Source) Mutate(ctx context.Context, view scrolltable.View, action scrolltable.Action, ids []scrolltable.ID) (scrolltable.MutationResult, error) {
	now := s.Now()
	cond, args, err := viewCondition(view, now.Unix())
	if err != nil {
		return scrolltable.MutationResult{}, err
	}
	webIDs := make([]string, len(ids))
	for i, id := range ids {
		webIDs[i] = string(id)
	}

	before, err := s.st.WebIDsWhere(ctx, cond, args, webIDs)
	if err != nil {
		return scrolltable.MutationResult{}, err
	}
	n, err := s.st.ApplyAction(ctx, store.Action(action), webIDs, now)
	if err != nil {
		return scrolltable.MutationResult{}, err
	}
	// Deferral moves the clock-relative boundary; re-evaluate with the same now.
	after, err := s.st.WebIDsWhere(ctx, cond, args, webIDs)
	if err != nil {
		return scrolltable.MutationResult{}, err
	}

	var res scrolltable.MutationResult
	var joined []string
	seen := make(map[string]bool, len(webIDs))
	for _, id := range webIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		switch {
		case before[id] && !after[id]:
			res.RemovedIDs = append(res.RemovedIDs, scrolltable.ID(id))
		case !before[id] && after[id]:
			joined = append(joined, id)
		}
	}
	if len(joined) > 0 {
		if res.InsertedRows, err = s.insertedRows(ctx, cond, args, joined, now.Unix()); err != nil {
			return scrolltable.MutationResult{}, err
		}
	}
	s.logger.Debug("mutation applied", "view", view.String(), "action", string(action),
		"changed", n, "removed", len(res.RemovedIDs), "inserted", len(res.InsertedRows))
	return res, nil
}

// insertedRows loads the joined messages and computes each one's offset in
// the view: the number of view messages ordered before it.
func (s *Source) insertedRows(ctx context.Context, cond string, args []any, webIDs []string, now int64) ([]scrolltable.Row, error) {
	msgs, err := s.st.MessagesByWebID(ctx, webIDs)
	if err != nil {
		return nil, err
	}
	q := `SELECT COUNT(*) ` + fromMessages + ` WHERE (` + cond + `) AND (m.sent_at > ? OR (m.sent_at = ? AND m.id > ?))`
	var rows []scrolltable.Row
	for _, id := range webIDs {
		m, ok := msgs[id]
		if !ok {
			continue
		}
		var offset int
		sent := m.SentAt.Unix()
		if err := s.db.QueryRowContext(ctx, q, append(append([]any{}, args...), sent, sent, m.ID)...).Scan(&offset); err != nil {
			return nil, fmt.Errorf("locate %s: %w", id, err)
		}
		rows = append(rows, toRow(m, offset, now))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Offset < rows[j].Offset })
	return rows, nil
}

// ViewCount is the size of one folder view.
type ViewCount struct {
	View   string
	Total  int64
	Unread int64
}

// ViewCounts returns the total and unread counts of every folder view, in
// Folders order. Counts are computed concurrently.
func (s *Source) ViewCounts(ctx context.Context) ([]ViewCount, error) {
	now := s.Now().Unix()
	results := make([]ViewCount, len(Folders))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range Folders {
		g.Go(func() error {
			cond, args, err := viewCondition(scrolltable.FolderView(name), now)
			if err != nil {
				return err
			}
			vc := ViewCount{View: name}
			err = s.db.QueryRowContext(ctx,
				`SELECT COUNT(*), COALESCE(SUM(CASE WHEN m.read = 0 THEN 1 ELSE 0 END), 0) `+fromMessages+` WHERE `+cond,
				args...).Scan(&vc.Total, &vc.Unread)
			if err != nil {
				return fmt.Errorf("count %s: %w", name, err)
			}
			results[i] = vc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
