package scrolltable

import (
	"context"
	"fmt"
	"strings"
)

// FilterKind selects which family of views a View belongs to.
type FilterKind int

const (
	ByFolder FilterKind = iota
	ByPerson
	ByTag
)

func (k FilterKind) String() string {
	switch k {
	case ByFolder:
		return "folder"
	case ByPerson:
		return "person"
	case ByTag:
		return "tag"
	default:
		return "unknown"
	}
}

// View describes one logical sequence: a mailbox folder, the messages
// exchanged with a person, or the messages carrying a tag. Views are
// mutually exclusive; each has its own offsets.
type View struct {
	Kind  FilterKind
	Value string
}

// FolderView, PersonView and TagView are shorthand constructors.
func FolderView(name string) View { return View{Kind: ByFolder, Value: name} }

func PersonView(addr string) View { return View{Kind: ByPerson, Value: addr} }

func TagView(tag string) View { return View{Kind: ByTag, Value: tag} }

func (v View) String() string { return v.Kind.String() + ":" + v.Value }

// ParseView parses "folder:inbox", "person:alice@example.com" or "tag:work".
// A bare name is taken as a folder.
func ParseView(s string) (View, error) {
	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		kind, value = "folder", s
	}
	if value == "" {
		return View{}, fmt.Errorf("parse view %q: empty value", s)
	}
	switch kind {
	case "folder":
		return FolderView(value), nil
	case "person":
		return PersonView(value), nil
	case "tag":
		return TagView(value), nil
	default:
		return View{}, fmt.Errorf("parse view %q: unknown kind %q", s, kind)
	}
}

// Action names a batch mutation such as "archive". The set of actions is
// defined by the Source.
type Action string

// Page is one fetched slice of a view. Rows[i] sits at offset start+i.
// TotalCount is the view's logical length when the page was read; a negative
// value means the source did not report it.
type Page struct {
	Rows       []Row
	TotalCount int
}

// MutationResult reports how a mutation changed the view it was issued
// against. InsertedRows carry their post-mutation offsets in Row.Offset.
type MutationResult struct {
	RemovedIDs   []ID
	InsertedRows []Row
}

// Source is the upstream data source. Both calls may block; they are the
// only suspension points of a Table.
type Source interface {
	FetchRange(ctx context.Context, view View, start, stop int) (Page, error)
	Mutate(ctx context.Context, view View, action Action, ids []ID) (MutationResult, error)
}
