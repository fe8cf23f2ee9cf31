// Package scrolltable implements the data side of a virtualized scrolling
// table: a bounded working set of rows fetched on demand from an unbounded,
// server-backed sequence, the placeholder ranges that stand in for rows not
// yet fetched, and the active/group selection layered on top.
//
// Nothing in this package is safe for concurrent use. A Table is driven from
// a single event loop; only the Execute methods on request values may run on
// other goroutines, because they touch nothing but the Source.
package scrolltable

import (
	"fmt"
	"strconv"
	"time"
)

// ID identifies a row within a view. IDs are opaque to this package.
type ID string

// NoID is the zero ID, used for "no active row".
const NoID ID = ""

// Kind is the type of a column value.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindTime
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindTime:
		return "timestamp"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a single column value. The zero Value is empty text.
type Value struct {
	kind Kind
	text string
	num  float64
	ts   time.Time
	b    bool
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Timestamp returns a time value.
func Timestamp(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind reports the value's type.
func (v Value) Kind() Kind { return v.kind }

// Text returns the text and whether v holds text.
func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }

func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) Time() (time.Time, bool) { return v.ts, v.kind == KindTime }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.text == o.text && v.num == o.num && v.ts.Equal(o.ts) && v.b == o.b
}

func (v Value) isZeroText() bool { return v.kind == KindText && v.text == "" }

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindTime:
		if v.ts.IsZero() {
			return ""
		}
		return v.ts.Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.text
	}
}

// Row is an immutable snapshot of one item at fetch time. Offset is the
// row's position when it was fetched, or its current position when the row
// was read back from a RowStore. Columns must not be modified once the row has
// been handed to a RowStore.
type Row struct {
	ID      ID
	Offset  int
	Columns map[string]Value
}

// Text returns the text column col, or "" when absent or not text.
func (r Row) Text(col string) string {
	s, _ := r.Columns[col].Text()
	return s
}

// Bool returns the boolean column col, or false when absent or not boolean.
func (r Row) Bool(col string) bool {
	b, _ := r.Columns[col].Bool()
	return b
}

// Time returns the timestamp column col, or the zero time.
func (r Row) Time(col string) time.Time {
	t, _ := r.Columns[col].Time()
	return t
}

// Number returns the numeric column col, or 0.
func (r Row) Number(col string) float64 {
	f, _ := r.Columns[col].Number()
	return f
}

// Schema maps column names to their expected kinds. Rows are validated
// against it once, when a fetch result is merged.
type Schema map[string]Kind

// Validate checks that every column of r is declared with the matching kind.
// A nil schema accepts any row. Missing columns are allowed; an empty text
// value is accepted for any column so sources can leave a column blank.
func (s Schema) Validate(r Row) error {
	if r.ID == NoID {
		return fmt.Errorf("%w: empty id", ErrInvalidRow)
	}
	if s == nil {
		return nil
	}
	for name, v := range r.Columns {
		want, ok := s[name]
		if !ok {
			return fmt.Errorf("%w: row %q: unknown column %q", ErrInvalidRow, r.ID, name)
		}
		if v.kind != want && !v.isZeroText() {
			return fmt.Errorf("%w: row %q: column %q is %s, want %s", ErrInvalidRow, r.ID, name, v.kind, want)
		}
	}
	return nil
}

// Range is the half-open interval [Start, Stop) over logical offsets.
type Range struct {
	Start int
	Stop  int
}

// Len returns the number of offsets in r.
func (r Range) Len() int {
	if r.Stop <= r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Empty reports whether r contains no offsets.
func (r Range) Empty() bool { return r.Stop <= r.Start }

// Contains reports whether offset lies within r.
func (r Range) Contains(offset int) bool { return offset >= r.Start && offset < r.Stop }

// Intersect returns the overlap of r and o, which may be empty.
func (r Range) Intersect(o Range) Range {
	out := Range{Start: max(r.Start, o.Start), Stop: min(r.Stop, o.Stop)}
	if out.Stop < out.Start {
		out.Stop = out.Start
	}
	return out
}

// Clamp restricts r to [0, total).
func (r Range) Clamp(total int) Range {
	return r.Intersect(Range{Start: 0, Stop: total})
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.Stop) }
