package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

var (
	seedPeople = []struct{ addr, name string }{
		{"alice@example.com", "Alice Example"},
		{"bob@example.org", "Bob Builder"},
		{"carol@example.net", "Carol Danvers"},
		{"dave@example.com", "Dave Grohl"},
		{"erin@example.org", "Erin Brockovich"},
		{"frank@example.net", "Frank Ocean"},
		{"grace@example.com", "Grace Hopper"},
		{"heidi@example.org", "Heidi Klum"},
	}
	seedTopics = []string{
		"quarterly report", "lunch on friday", "build is broken", "invoice #%d",
		"re: travel plans", "design review", "your order has shipped", "weekly digest",
		"meeting notes", "password reset", "conference tickets", "fwd: photos",
	}
	seedTags = []string{"work", "family", "receipts", "travel", "later"}
)

// SeedOptions controls Seed.
type SeedOptions struct {
	Count int
	// Me is the mailbox owner; sent messages come from this address.
	Me   string
	Seed uint64
	Now  time.Time
}

// Seed fills the database with Count synthetic messages spread across every
// folder, newest first by one message per ten minutes before Now. The same
// options always produce the same mailbox apart from web IDs.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	if opts.Count <= 0 {
		return nil
	}
	if opts.Me == "" {
		opts.Me = "me@example.com"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	msgs := make([]*Message, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		msgs = append(msgs, seedMessage(rng, opts, i))
	}

	const batch = 500
	for start := 0; start < len(msgs); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := msgs[start:min(start+batch, len(msgs))]
		if err := s.InsertMessages(ctx, chunk); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

func seedMessage(rng *rand.Rand, opts SeedOptions, i int) *Message {
	sender := seedPeople[rng.IntN(len(seedPeople))]
	topic := seedTopics[rng.IntN(len(seedTopics))]
	if strings.Contains(topic, "%d") {
		topic = fmt.Sprintf(topic, 1000+i)
	}
	m := &Message{
		SenderAddress: sender.addr,
		SenderName:    sender.name,
		Subject:       topic,
		Snippet:       fmt.Sprintf("Message %d about %s", i, topic),
		Recipients:    []string{opts.Me},
		SentAt:        opts.Now.Add(-time.Duration(i) * 10 * time.Minute),
		Size:          int64(500 + rng.IntN(50_000)),
		Read:          rng.IntN(3) > 0,
	}

	switch r := rng.IntN(100); {
	case r < 45:
		m.Folder = FolderInbox
	case r < 75:
		m.Folder = FolderArchive
	case r < 83:
		m.Folder = FolderSpam
	case r < 90:
		m.Folder = FolderTrash
	default:
		m.Folder = FolderSent
		m.SenderAddress, m.SenderName = opts.Me, "Me"
		m.Recipients = []string{sender.addr}
		m.Read = true
	}
	if m.Folder == FolderInbox && rng.IntN(20) == 0 {
		m.DeferredUntil = sql.NullTime{Time: opts.Now.Add(DeferPeriod), Valid: true}
	}
	if rng.IntN(4) == 0 {
		m.Tags = append(m.Tags, seedTags[rng.IntN(len(seedTags))])
	}
	if rng.IntN(5) == 0 {
		extra := seedPeople[rng.IntN(len(seedPeople))].addr
		if extra != m.SenderAddress {
			m.Recipients = append(m.Recipients, extra)
		}
	}
	return m
}
