package testutil

import (
	"database/sql"
	"time"

	"github.com/wesm/msgscroll/internal/store"
)

// MessageBuilder provides a fluent API for constructing store.Message in tests.
type MessageBuilder struct {
	m store.Message
}

// NewMessage creates a builder with sensible defaults: an unread inbox
// message from sender@example.com to me@example.com.
func NewMessage(subject string) *MessageBuilder {
	return &MessageBuilder{
		m: store.Message{
			Subject:       subject,
			SenderAddress: "sender@example.com",
			SenderName:    "Sender",
			Folder:        store.FolderInbox,
			Recipients:    []string{"me@example.com"},
			SentAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Size:          1000,
		},
	}
}

func (b *MessageBuilder) WithFolder(f string) *MessageBuilder {
	b.m.Folder = f
	return b
}

func (b *MessageBuilder) WithSender(addr string) *MessageBuilder {
	b.m.SenderAddress = addr
	return b
}

func (b *MessageBuilder) WithRecipients(addrs ...string) *MessageBuilder {
	b.m.Recipients = addrs
	return b
}

func (b *MessageBuilder) WithSentAt(t time.Time) *MessageBuilder {
	b.m.SentAt = t
	return b
}

func (b *MessageBuilder) WithRead(read bool) *MessageBuilder {
	b.m.Read = read
	return b
}

func (b *MessageBuilder) WithTags(tags ...string) *MessageBuilder {
	b.m.Tags = tags
	return b
}

func (b *MessageBuilder) WithWebID(id string) *MessageBuilder {
	b.m.WebID = id
	return b
}

func (b *MessageBuilder) DeferredUntil(t time.Time) *MessageBuilder {
	b.m.DeferredUntil = sql.NullTime{Time: t, Valid: true}
	return b
}

// Build returns a pointer to a copy of the message.
func (b *MessageBuilder) Build() *store.Message {
	m := b.m
	m.Recipients = append([]string(nil), b.m.Recipients...)
	m.Tags = append([]string(nil), b.m.Tags...)
	return &m
}
