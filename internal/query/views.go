// Package query implements scrolltable.Source over the SQLite mailbox.
package query

import (
	"errors"
	"fmt"

	"github.com/wesm/msgscroll/internal/scrolltable"
	"github.com/wesm/msgscroll/internal/store"
)

// ErrUnknownView is returned for a folder name that is not one of Folders.
var ErrUnknownView = errors.New("unknown view")

// Folder view names. "all" and "deferred" are derived from the stored folder
// and deferral time rather than stored themselves.
const (
	ViewInbox    = "inbox"
	ViewArchive  = "archive"
	ViewAll      = "all"
	ViewSpam     = "spam"
	ViewDeferred = "deferred"
	ViewSent     = "sent"
	ViewTrash    = "trash"
)

// Folders lists the folder views in display order.
var Folders = []string{ViewInbox, ViewArchive, ViewAll, ViewSpam, ViewDeferred, ViewSent, ViewTrash}

const notJunk = `m.folder NOT IN ('spam', 'trash')`

// viewCondition returns a WHERE fragment selecting the messages of v, over
// messages m joined with their sender p. now is the Unix time used to decide
// whether a deferral has expired.
func viewCondition(v scrolltable.View, now int64) (string, []any, error) {
	switch v.Kind {
	case scrolltable.ByFolder:
		switch v.Value {
		case ViewInbox:
			return `m.folder = 'inbox' AND (m.deferred_until IS NULL OR m.deferred_until <= ?)`, []any{now}, nil
		case ViewArchive, ViewSpam, ViewSent, ViewTrash:
			return `m.folder = ?`, []any{v.Value}, nil
		case ViewAll:
			return notJunk, nil, nil
		case ViewDeferred:
			return `m.deferred_until > ? AND ` + notJunk, []any{now}, nil
		}
		return "", nil, fmt.Errorf("%w: folder %q", ErrUnknownView, v.Value)
	case scrolltable.ByPerson:
		return notJunk + ` AND (p.address = ? OR EXISTS (
			SELECT 1 FROM message_recipients mr JOIN people rp ON rp.id = mr.person_id
			WHERE mr.message_id = m.id AND rp.address = ?))`, []any{v.Value, v.Value}, nil
	case scrolltable.ByTag:
		return notJunk + ` AND EXISTS (
			SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.tag = ?)`, []any{v.Value}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnknownView, v)
}

// MessageSchema describes the rows produced by Source.
var MessageSchema = scrolltable.Schema{
	"subject":     scrolltable.KindText,
	"snippet":     scrolltable.KindText,
	"sender":      scrolltable.KindText,
	"sender_name": scrolltable.KindText,
	"folder":      scrolltable.KindText,
	"read":        scrolltable.KindBool,
	"deferred":    scrolltable.KindBool,
	"sent_at":     scrolltable.KindTime,
	"size":        scrolltable.KindNumber,
}

func toRow(m *store.Message, offset int, now int64) scrolltable.Row {
	return scrolltable.Row{
		ID:     scrolltable.ID(m.WebID),
		Offset: offset,
		Columns: map[string]scrolltable.Value{
			"subject":     scrolltable.Text(m.Subject),
			"snippet":     scrolltable.Text(m.Snippet),
			"sender":      scrolltable.Text(m.SenderAddress),
			"sender_name": scrolltable.Text(m.SenderName),
			"folder":      scrolltable.Text(m.Folder),
			"read":        scrolltable.Bool(m.Read),
			"deferred":    scrolltable.Bool(m.DeferredUntil.Valid && m.DeferredUntil.Time.Unix() > now),
			"sent_at":     scrolltable.Timestamp(m.SentAt),
			"size":        scrolltable.Number(float64(m.Size)),
		},
	}
}
