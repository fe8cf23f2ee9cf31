package scrolltable

import (
	"fmt"
	"sort"
)

type entry struct {
	row    Row
	offset int
}

// RowStore holds the fetched rows of the current view, keyed by ID and kept
// in offset order. Offsets of fetched rows are dense with respect to the
// placeholders around them: removing a row shifts every later row down by one.
type RowStore struct {
	byID  map[ID]*entry
	order []*entry // sorted by offset, no duplicates
	total int
	guard *guard
}

func newRowStore(g *guard) *RowStore {
	return &RowStore{byID: make(map[ID]*entry), guard: g}
}

// NewRowStore returns an empty store. A strict store panics on invariant
// violations instead of logging them.
func NewRowStore(strict bool) *RowStore {
	return newRowStore(newGuard(strict, nil))
}

func (s *RowStore) search(offset int) int {
	return sort.Search(len(s.order), func(i int) bool { return s.order[i].offset >= offset })
}

func (s *RowStore) indexOf(e *entry) int {
	i := s.search(e.offset)
	if i < len(s.order) && s.order[i] == e {
		return i
	}
	return -1
}

func (e *entry) snapshot() Row {
	r := e.row
	r.Offset = e.offset
	return r
}

// Insert stores row at offset, overwriting any row with the same ID. A row
// whose ID is already present at another offset is moved; the caller is
// responsible for re-marking the vacated offset as a placeholder.
//
// Inserting at an offset held by a different ID returns a
// *DuplicateOffsetError and leaves the store unchanged.
func (s *RowStore) Insert(row Row, offset int) error {
	if offset < 0 || offset >= s.total {
		err := invariantf("insert %q at offset %d outside [0,%d)", string(row.ID), offset, s.total)
		s.guard.violate(err)
		return err
	}

	i := s.search(offset)
	if i < len(s.order) && s.order[i].offset == offset {
		occupant := s.order[i]
		if occupant.row.ID != row.ID {
			err := &DuplicateOffsetError{Offset: offset, Existing: occupant.row.ID, Incoming: row.ID}
			s.guard.violate(err)
			return err
		}
		occupant.row = row
		return nil
	}

	if e, ok := s.byID[row.ID]; ok {
		s.removeAt(s.indexOf(e))
		i = s.search(offset)
	}

	e := &entry{row: row, offset: offset}
	s.order = append(s.order, nil)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = e
	s.byID[row.ID] = e
	return nil
}

func (s *RowStore) removeAt(i int) {
	e := s.order[i]
	delete(s.byID, e.row.ID)
	s.order = append(s.order[:i], s.order[i+1:]...)
}

// Remove deletes the row with the given ID, shifts every later row down by
// one and shrinks the total count. It returns the offset the row held.
func (s *RowStore) Remove(id ID) (int, error) {
	e, ok := s.byID[id]
	if !ok {
		return 0, &NoSuchIDError{ID: id}
	}
	i := s.indexOf(e)
	offset := e.offset
	s.removeAt(i)
	for _, later := range s.order[i:] {
		later.offset--
	}
	s.total--
	return offset, nil
}

// Collapse removes an unfetched offset from the sequence: later rows shift
// down by one and the total shrinks. It fails if a row is stored at offset.
func (s *RowStore) Collapse(offset int) error {
	if offset < 0 || offset >= s.total {
		return fmt.Errorf("collapse offset %d outside [0,%d)", offset, s.total)
	}
	i := s.search(offset)
	if i < len(s.order) && s.order[i].offset == offset {
		return fmt.Errorf("collapse offset %d: row %q is fetched", offset, string(s.order[i].row.ID))
	}
	for _, later := range s.order[i:] {
		later.offset--
	}
	s.total--
	return nil
}

// InsertAt inserts a new row at offset, shifting the row there and every
// later row up by one. The total count grows by one. The ID must not
// already be stored.
func (s *RowStore) InsertAt(row Row, offset int) error {
	if _, ok := s.byID[row.ID]; ok {
		return fmt.Errorf("insert %q: already stored", string(row.ID))
	}
	if offset < 0 || offset > s.total {
		err := invariantf("insert %q at offset %d outside [0,%d]", string(row.ID), offset, s.total)
		s.guard.violate(err)
		return err
	}
	i := s.search(offset)
	for _, later := range s.order[i:] {
		later.offset++
	}
	e := &entry{row: row, offset: offset}
	s.order = append(s.order, nil)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = e
	s.byID[row.ID] = e
	s.total++
	return nil
}

// Get returns the row with the given ID, with its current offset.
func (s *RowStore) Get(id ID) (Row, bool) {
	e, ok := s.byID[id]
	if !ok {
		return Row{}, false
	}
	return e.snapshot(), true
}

// Has reports whether id is stored.
func (s *RowStore) Has(id ID) bool {
	_, ok := s.byID[id]
	return ok
}

// GetByOffset returns the row at offset. A miss may mean the offset is a
// placeholder rather than absent from the sequence.
func (s *RowStore) GetByOffset(offset int) (Row, bool) {
	i := s.search(offset)
	if i < len(s.order) && s.order[i].offset == offset {
		return s.order[i].snapshot(), true
	}
	return Row{}, false
}

// FindOffset returns the current offset of id, or a *NoSuchIDError.
func (s *RowStore) FindOffset(id ID) (int, error) {
	e, ok := s.byID[id]
	if !ok {
		return 0, &NoSuchIDError{ID: id}
	}
	return e.offset, nil
}

// NextFrom returns the first stored row at or after offset.
func (s *RowStore) NextFrom(offset int) (Row, bool) {
	i := s.search(offset)
	if i < len(s.order) {
		return s.order[i].snapshot(), true
	}
	return Row{}, false
}

// PrevBefore returns the last stored row strictly before offset.
func (s *RowStore) PrevBefore(offset int) (Row, bool) {
	i := s.search(offset)
	if i > 0 {
		return s.order[i-1].snapshot(), true
	}
	return Row{}, false
}

// RowCount returns the number of fetched rows.
func (s *RowStore) RowCount() int { return len(s.order) }

// TotalRowCount returns the logical length of the sequence as last reported
// by the source, adjusted for local removals and insertions.
func (s *RowStore) TotalRowCount() int { return s.total }

// SetTotalRowCount sets the logical length. Rows at or beyond a shrunk total
// are dropped and their IDs returned.
func (s *RowStore) SetTotalRowCount(n int) []ID {
	if n < 0 {
		n = 0
	}
	s.total = n
	i := s.search(n)
	if i == len(s.order) {
		return nil
	}
	dropped := make([]ID, 0, len(s.order)-i)
	for _, e := range s.order[i:] {
		dropped = append(dropped, e.row.ID)
		delete(s.byID, e.row.ID)
	}
	s.order = s.order[:i]
	return dropped
}

// Rows returns the fetched rows in offset order.
func (s *RowStore) Rows() []Row {
	out := make([]Row, len(s.order))
	for i, e := range s.order {
		out[i] = e.snapshot()
	}
	return out
}

// RowsIn returns the fetched rows whose offsets fall within r.
func (s *RowStore) RowsIn(r Range) []Row {
	var out []Row
	for i := s.search(r.Start); i < len(s.order) && s.order[i].offset < r.Stop; i++ {
		out = append(out, s.order[i].snapshot())
	}
	return out
}

// IDs returns the fetched IDs in offset order.
func (s *RowStore) IDs() []ID {
	out := make([]ID, len(s.order))
	for i, e := range s.order {
		out[i] = e.row.ID
	}
	return out
}

// Clear drops every row and resets the total to zero.
func (s *RowStore) Clear() {
	s.byID = make(map[ID]*entry)
	s.order = nil
	s.total = 0
}

// EvictOutside drops rows whose offsets fall outside keep, except pinned.
// It returns the freed offsets coalesced into ranges, ascending.
func (s *RowStore) EvictOutside(keep Range, pinned ID) []Range {
	var freed []Range
	kept := s.order[:0]
	for _, e := range s.order {
		if keep.Contains(e.offset) || (pinned != NoID && e.row.ID == pinned) {
			kept = append(kept, e)
			continue
		}
		delete(s.byID, e.row.ID)
		if n := len(freed); n > 0 && freed[n-1].Stop == e.offset {
			freed[n-1].Stop++
		} else {
			freed = append(freed, Range{Start: e.offset, Stop: e.offset + 1})
		}
	}
	for i := len(kept); i < len(s.order); i++ {
		s.order[i] = nil
	}
	s.order = kept
	return freed
}

type rowStoreState struct {
	entries []entry
	total   int
}

func (s *RowStore) snapshot() rowStoreState {
	st := rowStoreState{entries: make([]entry, len(s.order)), total: s.total}
	for i, e := range s.order {
		st.entries[i] = *e
	}
	return st
}

func (s *RowStore) restore(st rowStoreState) {
	s.Clear()
	s.total = st.total
	s.order = make([]*entry, len(st.entries))
	for i := range st.entries {
		e := st.entries[i]
		s.order[i] = &e
		s.byID[e.row.ID] = &e
	}
}
