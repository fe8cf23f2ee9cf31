package scrolltable

import "sort"

// Placeholder is a contiguous unfetched range [Start, Stop).
type Placeholder struct {
	Start int
	Stop  int
}

// Range returns p as a Range.
func (p Placeholder) Range() Range { return Range{Start: p.Start, Stop: p.Stop} }

// Len returns the number of unfetched offsets p covers.
func (p Placeholder) Len() int { return p.Range().Len() }

// PlaceholderTracker records which parts of the logical sequence have not
// been fetched. Gaps are stored as ranges so memory grows with the number of
// fragments, not with the total row count.
type PlaceholderTracker struct {
	ph []Placeholder // sorted, non-overlapping, non-adjacent, non-empty
}

// NewPlaceholderTracker returns a tracker with no placeholders.
func NewPlaceholderTracker() *PlaceholderTracker {
	return &PlaceholderTracker{}
}

// Reset replaces every placeholder with a single one covering [0, total).
func (t *PlaceholderTracker) Reset(total int) {
	t.ph = t.ph[:0]
	if total > 0 {
		t.ph = append(t.ph, Placeholder{Start: 0, Stop: total})
	}
}

// MarkFetched subtracts r from the placeholder set, splitting placeholders at
// r's boundaries.
func (t *PlaceholderTracker) MarkFetched(r Range) {
	if r.Empty() {
		return
	}
	out := make([]Placeholder, 0, len(t.ph)+1)
	for _, p := range t.ph {
		if p.Stop <= r.Start || p.Start >= r.Stop {
			out = append(out, p)
			continue
		}
		if p.Start < r.Start {
			out = append(out, Placeholder{Start: p.Start, Stop: r.Start})
		}
		if p.Stop > r.Stop {
			out = append(out, Placeholder{Start: r.Stop, Stop: p.Stop})
		}
	}
	t.ph = out
}

// MarkRemoved mirrors the offset shift a RowStore performs after removing the
// row at offset: placeholders starting after it move down by one. A
// placeholder containing offset (an unfetched removal) shrinks by one.
func (t *PlaceholderTracker) MarkRemoved(offset int) {
	out := t.ph[:0]
	for _, p := range t.ph {
		switch {
		case p.Start > offset:
			p.Start--
			p.Stop--
		case offset < p.Stop:
			p.Stop--
		}
		if p.Stop > p.Start {
			out = append(out, p)
		}
	}
	t.ph = out
	t.normalize()
}

// MarkInserted mirrors RowStore.InsertAt: a fetched row now sits at offset,
// so placeholders at or after it move up by one and a placeholder spanning
// offset is split around it.
func (t *PlaceholderTracker) MarkInserted(offset int) {
	out := make([]Placeholder, 0, len(t.ph)+1)
	for _, p := range t.ph {
		switch {
		case p.Start >= offset:
			out = append(out, Placeholder{Start: p.Start + 1, Stop: p.Stop + 1})
		case offset < p.Stop:
			out = append(out,
				Placeholder{Start: p.Start, Stop: offset},
				Placeholder{Start: offset + 1, Stop: p.Stop + 1})
		default:
			out = append(out, p)
		}
	}
	t.ph = out
}

// Add marks r as unfetched again, merging with neighbouring placeholders.
func (t *PlaceholderTracker) Add(r Range) {
	if r.Empty() {
		return
	}
	t.ph = append(t.ph, Placeholder{Start: r.Start, Stop: r.Stop})
	sort.Slice(t.ph, func(i, j int) bool { return t.ph[i].Start < t.ph[j].Start })
	t.normalize()
}

// Truncate drops the parts of placeholders at or beyond total.
func (t *PlaceholderTracker) Truncate(total int) {
	out := t.ph[:0]
	for _, p := range t.ph {
		if p.Start >= total {
			continue
		}
		if p.Stop > total {
			p.Stop = total
		}
		out = append(out, p)
	}
	t.ph = out
}

func (t *PlaceholderTracker) normalize() {
	if len(t.ph) < 2 {
		return
	}
	out := t.ph[:1]
	for _, p := range t.ph[1:] {
		last := &out[len(out)-1]
		if p.Start <= last.Stop {
			if p.Stop > last.Stop {
				last.Stop = p.Stop
			}
			continue
		}
		out = append(out, p)
	}
	t.ph = out
}

// Covering returns the placeholder containing offset.
func (t *PlaceholderTracker) Covering(offset int) (Placeholder, bool) {
	i := sort.Search(len(t.ph), func(i int) bool { return t.ph[i].Stop > offset })
	if i < len(t.ph) && t.ph[i].Start <= offset {
		return t.ph[i], true
	}
	return Placeholder{}, false
}

// Missing returns the unfetched sub-ranges of r, ascending.
func (t *PlaceholderTracker) Missing(r Range) []Range {
	var out []Range
	i := sort.Search(len(t.ph), func(i int) bool { return t.ph[i].Stop > r.Start })
	for ; i < len(t.ph) && t.ph[i].Start < r.Stop; i++ {
		if part := t.ph[i].Range().Intersect(r); !part.Empty() {
			out = append(out, part)
		}
	}
	return out
}

// Count returns the number of placeholder fragments.
func (t *PlaceholderTracker) Count() int { return len(t.ph) }

// Unfetched returns the number of offsets covered by placeholders.
func (t *PlaceholderTracker) Unfetched() int {
	n := 0
	for _, p := range t.ph {
		n += p.Len()
	}
	return n
}

// All returns a copy of the placeholders, ascending.
func (t *PlaceholderTracker) All() []Placeholder {
	out := make([]Placeholder, len(t.ph))
	copy(out, t.ph)
	return out
}

func (t *PlaceholderTracker) restore(ph []Placeholder) {
	t.ph = append(t.ph[:0], ph...)
}
