package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Folders a message can be filed in. "deferred" is not a folder: a message
// with a future DeferredUntil is hidden from its folder until then.
const (
	FolderInbox   = "inbox"
	FolderArchive = "archive"
	FolderSpam    = "spam"
	FolderTrash   = "trash"
	FolderSent    = "sent"
)

// ErrUnknownAction is returned by ApplyAction for an unsupported action.
var ErrUnknownAction = errors.New("unknown action")

// Message represents a message in the database.
type Message struct {
	ID            int64
	WebID         string
	SenderAddress string
	SenderName    string
	Subject       string
	Snippet       string
	Folder        string
	Read          bool
	Trained       bool
	DeferredUntil sql.NullTime
	SentAt        time.Time
	Size          int64
	Recipients    []string
	Tags          []string
}

// Person is a message sender or recipient.
type Person struct {
	ID      int64
	Address string
	Name    string
}

func ensurePerson(ctx context.Context, tx *sql.Tx, address, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM people WHERE address = ?`, address).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO people (address, name) VALUES (?, ?)`, address, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertMessages stores msgs in one transaction, creating people as needed.
// Messages without a WebID get a random one. IDs and WebIDs are written back
// into msgs.
func (s *Store) InsertMessages(ctx context.Context, msgs []*Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range msgs {
			if err := insertMessage(ctx, tx, m); err != nil {
				return fmt.Errorf("insert message %q: %w", m.Subject, err)
			}
		}
		return nil
	})
}

func insertMessage(ctx context.Context, tx *sql.Tx, m *Message) error {
	if m.WebID == "" {
		m.WebID = uuid.NewString()
	}
	if m.Folder == "" {
		m.Folder = FolderInbox
	}
	senderID, err := ensurePerson(ctx, tx, m.SenderAddress, m.SenderName)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	var deferred any
	if m.DeferredUntil.Valid {
		deferred = m.DeferredUntil.Time.Unix()
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (web_id, sender_id, subject, snippet, folder, read, trained, deferred_until, sent_at, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.WebID, senderID, m.Subject, m.Snippet, m.Folder, m.Read, m.Trained, deferred, m.SentAt.Unix(), m.Size)
	if err != nil {
		return err
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	personIDs := make([]int64, 0, len(m.Recipients))
	for _, addr := range m.Recipients {
		pid, err := ensurePerson(ctx, tx, addr, "")
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
		personIDs = append(personIDs, pid)
	}
	if len(personIDs) > 0 {
		err := insertInChunks(ctx, tx, len(personIDs), 2,
			"INSERT OR IGNORE INTO message_recipients (message_id, person_id) VALUES ",
			func(start, end int) ([]string, []any) {
				values := make([]string, 0, end-start)
				args := make([]any, 0, 2*(end-start))
				for _, pid := range personIDs[start:end] {
					values = append(values, "(?, ?)")
					args = append(args, m.ID, pid)
				}
				return values, args
			})
		if err != nil {
			return fmt.Errorf("recipients: %w", err)
		}
	}
	if len(m.Tags) > 0 {
		err := insertInChunks(ctx, tx, len(m.Tags), 2,
			"INSERT OR IGNORE INTO message_tags (message_id, tag) VALUES ",
			func(start, end int) ([]string, []any) {
				values := make([]string, 0, end-start)
				args := make([]any, 0, 2*(end-start))
				for _, tag := range m.Tags[start:end] {
					values = append(values, "(?, ?)")
					args = append(args, m.ID, tag)
				}
				return values, args
			})
		if err != nil {
			return fmt.Errorf("tags: %w", err)
		}
	}
	return nil
}

// MessagesByWebID loads the messages with the given web IDs, keyed by web ID.
// Unknown IDs are absent from the result.
func (s *Store) MessagesByWebID(ctx context.Context, webIDs []string) (map[string]*Message, error) {
	out := make(map[string]*Message, len(webIDs))
	if len(webIDs) == 0 {
		return out, nil
	}
	err := queryInChunks(ctx, s.db, webIDs, nil, `
		SELECT `+MessageColumns+`
		FROM messages m JOIN people p ON p.id = m.sender_id
		WHERE m.web_id IN (%s)`,
		func(rows *sql.Rows) error {
			m, err := ScanMessage(rows)
			if err != nil {
				return err
			}
			out[m.WebID] = m
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return out, nil
}

// ScanMessage reads one row selected with MessageColumns.
func ScanMessage(sc interface{ Scan(dest ...any) error }) (*Message, error) {
	var (
		m        Message
		deferred sql.NullInt64
		sentAt   int64
	)
	if err := sc.Scan(&m.ID, &m.WebID, &m.SenderAddress, &m.SenderName, &m.Subject, &m.Snippet,
		&m.Folder, &m.Read, &m.Trained, &deferred, &sentAt, &m.Size); err != nil {
		return nil, err
	}
	m.SentAt = time.Unix(sentAt, 0).UTC()
	if deferred.Valid {
		m.DeferredUntil = sql.NullTime{Time: time.Unix(deferred.Int64, 0).UTC(), Valid: true}
	}
	return &m, nil
}

// MessageColumns is the select list ScanMessage expects, for a query that
// aliases messages as m and people (the sender) as p.
const MessageColumns = `m.id, m.web_id, p.address, p.name, m.subject, m.snippet, m.folder,
	m.read, m.trained, m.deferred_until, m.sent_at, m.size`

// Action is a batch operation on messages.
type Action string

const (
	ActionArchive   Action = "archive"
	ActionUnarchive Action = "unarchive"
	ActionDelete    Action = "delete"
	ActionUndelete  Action = "undelete"
	ActionTrainSpam Action = "train-spam"
	ActionTrainHam  Action = "train-ham"
	ActionDefer     Action = "defer"
	ActionMarkRead  Action = "mark-read"
	ActionUnread    Action = "mark-unread"
)

// Actions lists every supported action.
var Actions = []Action{
	ActionArchive, ActionUnarchive, ActionDelete, ActionUndelete,
	ActionTrainSpam, ActionTrainHam, ActionDefer, ActionMarkRead, ActionUnread,
}

// DeferPeriod is how long ActionDefer hides a message.
const DeferPeriod = 24 * time.Hour

// ApplyAction applies action to the messages with the given web IDs and
// returns the number of messages changed. now anchors ActionDefer.
func (s *Store) ApplyAction(ctx context.Context, action Action, webIDs []string, now time.Time) (int64, error) {
	var stmt string
	var prefix []any
	switch action {
	case ActionArchive:
		stmt = `UPDATE messages SET folder = 'archive', deferred_until = NULL WHERE web_id IN (%s)`
	case ActionUnarchive, ActionUndelete:
		stmt = `UPDATE messages SET folder = 'inbox' WHERE web_id IN (%s)`
	case ActionDelete:
		stmt = `UPDATE messages SET folder = 'trash', deferred_until = NULL WHERE web_id IN (%s)`
	case ActionTrainSpam:
		stmt = `UPDATE messages SET folder = 'spam', trained = 1, deferred_until = NULL WHERE web_id IN (%s)`
	case ActionTrainHam:
		stmt = `UPDATE messages SET folder = 'inbox', trained = 1 WHERE web_id IN (%s)`
	case ActionDefer:
		stmt = `UPDATE messages SET deferred_until = ? WHERE web_id IN (%s)`
		prefix = []any{now.Add(DeferPeriod).Unix()}
	case ActionMarkRead:
		stmt = `UPDATE messages SET read = 1 WHERE web_id IN (%s)`
	case ActionUnread:
		stmt = `UPDATE messages SET read = 0 WHERE web_id IN (%s)`
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownAction, action)
	}
	if len(webIDs) == 0 {
		return 0, nil
	}
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = execInChunks(ctx, tx, webIDs, prefix, stmt)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", action, err)
	}
	return n, nil
}

// AddTag attaches tag to the message with the given web ID.
func (s *Store) AddTag(ctx context.Context, webID, tag string) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_tags (message_id, tag)
		SELECT id, ? FROM messages WHERE web_id = ?
	`, tag, webID)
	if err != nil {
		return fmt.Errorf("add tag %q: %w", tag, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE web_id = ?`, webID).Scan(&exists); err != nil {
			return fmt.Errorf("add tag %q: %w", tag, err)
		}
		if exists == 0 {
			return fmt.Errorf("add tag %q: no message %q", tag, webID)
		}
	}
	return nil
}

// ListTags returns every tag in use with its message count, by name.
func (s *Store) ListTags(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag, COUNT(*) FROM message_tags GROUP BY tag ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var tag string
		var n int64
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		out[tag] = n
	}
	return out, rows.Err()
}

// ListPeople returns everyone who has sent or received a message, by address.
func (s *Store) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, address, name FROM people ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()
	var out []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Address, &p.Name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WebIDsWhere returns the subset of webIDs whose messages satisfy cond, a
// WHERE fragment over messages m joined with their sender p. condArgs bind
// the placeholders in cond.
func (s *Store) WebIDsWhere(ctx context.Context, cond string, condArgs []any, webIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(webIDs) == 0 {
		return out, nil
	}
	err := queryInChunks(ctx, s.db, webIDs, condArgs, `
		SELECT m.web_id FROM messages m JOIN people p ON p.id = m.sender_id
		WHERE (`+cond+`) AND m.web_id IN (%s)`,
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out[id] = true
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("filter web ids: %w", err)
	}
	return out, nil
}
