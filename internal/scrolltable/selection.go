package scrolltable

import "sort"

// GroupState is a row's membership in the group selection.
type GroupState int

const (
	GroupOff GroupState = iota
	GroupOn
)

func (g GroupState) String() string {
	if g == GroupOn {
		return "on"
	}
	return "off"
}

// BatchMode selects which fetched rows ChangeBatchSelection puts in the group.
type BatchMode int

const (
	BatchNone BatchMode = iota
	BatchAll
	BatchRead
	BatchUnread
)

// ParseBatchMode parses "all", "read", "unread" or "none".
func ParseBatchMode(s string) (BatchMode, bool) {
	switch s {
	case "none":
		return BatchNone, true
	case "all":
		return BatchAll, true
	case "read":
		return BatchRead, true
	case "unread":
		return BatchUnread, true
	}
	return BatchNone, false
}

// ReadColumn is the boolean column consulted by BatchRead and BatchUnread.
const ReadColumn = "read"

// Removal records a removed row and the offset it held before its batch was
// applied.
type Removal struct {
	ID     ID
	Offset int
}

// SelectionController tracks the active row, shown in the detail pane, and
// an independent group selection used as the target of batch actions.
type SelectionController struct {
	store  *RowStore
	active ID
	group  map[ID]struct{}
}

// NewSelectionController returns a controller with nothing selected.
func NewSelectionController(store *RowStore) *SelectionController {
	return &SelectionController{store: store, group: make(map[ID]struct{})}
}

// Active returns the active row ID, or NoID.
func (s *SelectionController) Active() ID { return s.active }

// SelectActive makes id the active row and returns the previous one. NoID
// clears the active selection. Selecting an ID the store does not hold fails
// with a *NoSuchIDError and changes nothing.
func (s *SelectionController) SelectActive(id ID) (ID, error) {
	if id != NoID && !s.store.Has(id) {
		return s.active, &NoSuchIDError{ID: id}
	}
	prev := s.active
	s.active = id
	return prev, nil
}

// SelectFirst activates the lowest-offset fetched row, if any.
func (s *SelectionController) SelectFirst() ID {
	if r, ok := s.store.NextFrom(0); ok {
		s.active = r.ID
	} else {
		s.active = NoID
	}
	return s.active
}

// ToggleGroup flips id's group membership and returns the new state.
func (s *SelectionController) ToggleGroup(id ID) (GroupState, error) {
	if _, ok := s.group[id]; ok {
		delete(s.group, id)
		return GroupOff, nil
	}
	if !s.store.Has(id) {
		return GroupOff, &NoSuchIDError{ID: id}
	}
	s.group[id] = struct{}{}
	return GroupOn, nil
}

// InGroup reports whether id is group-selected.
func (s *SelectionController) InGroup(id ID) bool {
	_, ok := s.group[id]
	return ok
}

// GroupSize returns the number of group-selected IDs.
func (s *SelectionController) GroupSize() int { return len(s.group) }

// GroupIDs returns the group selection ordered by current offset. IDs that
// are not stored (kept across a view switch, or evicted) sort last, by ID.
func (s *SelectionController) GroupIDs() []ID {
	ids := make([]ID, 0, len(s.group))
	for id := range s.group {
		ids = append(ids, id)
	}
	pos := func(id ID) (int, bool) {
		off, err := s.store.FindOffset(id)
		return off, err == nil
	}
	sort.Slice(ids, func(i, j int) bool {
		oi, iok := pos(ids[i])
		oj, jok := pos(ids[j])
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

// ClearGroup empties the group selection.
func (s *SelectionController) ClearGroup() {
	s.group = make(map[ID]struct{})
}

// SelectGroupWhere replaces the group with the fetched rows matching pred.
func (s *SelectionController) SelectGroupWhere(pred func(Row) bool) int {
	s.group = make(map[ID]struct{})
	for _, r := range s.store.Rows() {
		if pred(r) {
			s.group[r.ID] = struct{}{}
		}
	}
	return len(s.group)
}

// ChangeBatchSelection replaces the group according to mode and returns its
// new size.
func (s *SelectionController) ChangeBatchSelection(mode BatchMode) int {
	switch mode {
	case BatchAll:
		return s.SelectGroupWhere(func(Row) bool { return true })
	case BatchRead:
		return s.SelectGroupWhere(func(r Row) bool { return r.Bool(ReadColumn) })
	case BatchUnread:
		return s.SelectGroupWhere(func(r Row) bool { return !r.Bool(ReadColumn) })
	default:
		s.ClearGroup()
		return 0
	}
}

// Targets returns the IDs a batch action applies to: the group when it is
// non-empty, otherwise the active row.
func (s *SelectionController) Targets() []ID {
	if len(s.group) > 0 {
		return s.GroupIDs()
	}
	if s.active != NoID {
		return []ID{s.active}
	}
	return nil
}

// RowRemoved updates the selection after the store removed id from offset.
// If id was active, the row that slid into offset becomes active, else the
// row just before it, else nothing.
func (s *SelectionController) RowRemoved(id ID, offset int) {
	s.BatchRemoved([]Removal{{ID: id, Offset: offset}})
}

// BatchRemoved updates the selection once for a whole batch of removals
// that the store has already applied. Offsets are those held before the
// batch. The replacement for a removed active row is resolved in the
// post-removal offset space: the row now at the active row's former
// position. Failing that, a single removal falls back to the row just
// before it; a larger batch falls back to the next fetched row after it,
// then the nearest fetched row before it. Removed IDs leave the group
// silently.
func (s *SelectionController) BatchRemoved(removed []Removal) {
	activeOffset := -1
	for _, r := range removed {
		delete(s.group, r.ID)
		if r.ID == s.active {
			activeOffset = r.Offset
		}
	}
	if activeOffset < 0 {
		return
	}
	below := 0
	for _, r := range removed {
		if r.Offset < activeOffset {
			below++
		}
	}
	pos := activeOffset - below
	s.active = NoID
	if row, ok := s.store.GetByOffset(pos); ok {
		s.active = row.ID
		return
	}
	if len(removed) == 1 {
		if row, ok := s.store.GetByOffset(pos - 1); ok {
			s.active = row.ID
		}
		return
	}
	if next, ok := s.store.NextFrom(pos); ok {
		s.active = next.ID
		return
	}
	if prev, ok := s.store.PrevBefore(pos); ok {
		s.active = prev.ID
	}
}

// dropped handles rows that vanished from the tail of the sequence.
func (s *SelectionController) dropped(ids []ID) {
	activeGone := false
	for _, id := range ids {
		delete(s.group, id)
		if id == s.active {
			activeGone = true
		}
	}
	if !activeGone {
		return
	}
	if prev, ok := s.store.PrevBefore(s.store.TotalRowCount()); ok {
		s.active = prev.ID
	} else {
		s.active = NoID
	}
}

// SelectionSnapshot is a saved selection for rollback.
type SelectionSnapshot struct {
	Active ID
	Group  []ID
}

// Snapshot captures the current selection.
func (s *SelectionController) Snapshot() SelectionSnapshot {
	snap := SelectionSnapshot{Active: s.active, Group: make([]ID, 0, len(s.group))}
	for id := range s.group {
		snap.Group = append(snap.Group, id)
	}
	return snap
}

// Restore reinstates a snapshot taken with Snapshot.
func (s *SelectionController) Restore(snap SelectionSnapshot) {
	s.active = snap.Active
	s.group = make(map[ID]struct{}, len(snap.Group))
	for _, id := range snap.Group {
		s.group[id] = struct{}{}
	}
}
