package scrolltable

import (
	"testing"

	"github.com/wesm/msgscroll/internal/testutil"
)

// removeBatch removes ids from s the way a Table does: descending offset
// order, then one BatchRemoved call with pre-batch offsets.
func removeBatch(t *testing.T, s *RowStore, sel *SelectionController, ids ...ID) {
	t.Helper()
	var removed []Removal
	for _, id := range ids {
		off, err := s.FindOffset(id)
		testutil.MustNoErr(t, err, "FindOffset "+string(id))
		removed = append(removed, Removal{ID: id, Offset: off})
	}
	for i := len(removed) - 1; i >= 0; i-- {
		// callers pass ids in ascending offset order
		_, err := s.Remove(removed[i].ID)
		testutil.MustNoErr(t, err, "Remove")
	}
	sel.BatchRemoved(removed)
}

func TestSelection_SelectActiveReturnsPrevious(t *testing.T) {
	s := newFilledStore(t, "A", "B")
	sel := NewSelectionController(s)

	prev, err := sel.SelectActive("A")
	testutil.MustNoErr(t, err, "select A")
	if prev != NoID {
		t.Errorf("prev = %q, want none", prev)
	}
	prev, _ = sel.SelectActive("B")
	if prev != "A" {
		t.Errorf("prev = %q, want A", prev)
	}
	if _, err := sel.SelectActive("Z"); !IsNoSuchID(err) {
		t.Errorf("select unknown err = %v, want NoSuchIDError", err)
	}
	if sel.Active() != "B" {
		t.Errorf("active changed by failed select: %q", sel.Active())
	}
}

func TestSelection_SurvivesUnrelatedRemoval(t *testing.T) {
	s := newFilledStore(t, "X", "Y", "Z")
	sel := NewSelectionController(s)
	_, _ = sel.SelectActive("Y")

	removeBatch(t, s, sel, "X")
	if sel.Active() != "Y" {
		t.Errorf("active = %q, want Y", sel.Active())
	}
}

func TestSelection_ReassignOnActiveRemoval(t *testing.T) {
	tests := []struct {
		name   string
		active ID
		remove []ID
		want   ID
	}{
		{"first removed, next slides in", "A", []ID{"A"}, "B"},
		{"last removed, previous takes over", "D", []ID{"D"}, "C"},
		{"middle removed", "B", []ID{"B"}, "C"},
		{"active and both neighbours removed", "B", []ID{"A", "B", "C"}, "D"},
		{"active and everything after removed", "C", []ID{"C", "D"}, "B"},
		{"everything removed", "B", []ID{"A", "B", "C", "D"}, NoID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFilledStore(t, "A", "B", "C", "D")
			sel := NewSelectionController(s)
			_, _ = sel.SelectActive(tt.active)

			removeBatch(t, s, sel, tt.remove...)
			if sel.Active() != tt.want {
				t.Errorf("active = %q, want %q", sel.Active(), tt.want)
			}
		})
	}
}

func TestSelection_ReassignNextToPlaceholders(t *testing.T) {
	// Fetched: A@0 B@1 C@2, D@5, J@9; everything else is a placeholder.
	tests := []struct {
		name   string
		active ID
		remove []ID
		want   ID
	}{
		{"single removal takes the row before", "C", []ID{"C"}, "B"},
		{"single removal without fetched neighbours", "D", []ID{"D"}, NoID},
		{"batch takes the next fetched row", "C", []ID{"B", "C"}, "D"},
		{"batch at the tail takes the previous row", "J", []ID{"D", "J"}, "C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newRowStore(quietGuard())
			s.SetTotalRowCount(10)
			for id, off := range map[ID]int{"A": 0, "B": 1, "C": 2, "D": 5, "J": 9} {
				testutil.MustNoErr(t, s.Insert(row(string(id)), off), "insert "+string(id))
			}
			sel := NewSelectionController(s)
			_, _ = sel.SelectActive(tt.active)

			removeBatch(t, s, sel, tt.remove...)
			if sel.Active() != tt.want {
				t.Errorf("active = %q, want %q", sel.Active(), tt.want)
			}
		})
	}
}

func TestSelection_GroupPurgeOnRemoval(t *testing.T) {
	s := newFilledStore(t, "A", "B", "C", "D")
	sel := NewSelectionController(s)
	for _, id := range []ID{"A", "D"} {
		state, err := sel.ToggleGroup(id)
		testutil.MustNoErr(t, err, "toggle")
		if state != GroupOn || state.String() != "on" {
			t.Errorf("toggle %s = %v, want on", id, state)
		}
	}

	removeBatch(t, s, sel, "A")
	testutil.AssertEqualSlices(t, sel.GroupIDs(), "D")
	if sel.InGroup("A") {
		t.Error("removed id still in group")
	}
}

func TestSelection_ToggleGroup(t *testing.T) {
	s := newFilledStore(t, "A")
	sel := NewSelectionController(s)

	if st, _ := sel.ToggleGroup("A"); st != GroupOn {
		t.Errorf("first toggle = %v", st)
	}
	if st, _ := sel.ToggleGroup("A"); st != GroupOff || st.String() != "off" {
		t.Errorf("second toggle = %v", st)
	}
	if _, err := sel.ToggleGroup("missing"); !IsNoSuchID(err) {
		t.Errorf("toggle unknown err = %v", err)
	}
}

func TestSelection_TargetsPreferGroup(t *testing.T) {
	s := newFilledStore(t, "A", "B", "C")
	sel := NewSelectionController(s)

	if got := sel.Targets(); len(got) != 0 {
		t.Errorf("targets with empty selection = %v", got)
	}
	_, _ = sel.SelectActive("B")
	testutil.AssertEqualSlices(t, sel.Targets(), "B")

	_, _ = sel.ToggleGroup("C")
	_, _ = sel.ToggleGroup("A")
	testutil.AssertEqualSlices(t, sel.Targets(), "A", "C")
}

func TestSelection_ChangeBatchSelection(t *testing.T) {
	s := newRowStore(quietGuard())
	s.SetTotalRowCount(4)
	for i, id := range []ID{"r0", "r1", "r2", "r3"} {
		r := Row{ID: id, Columns: map[string]Value{ReadColumn: Bool(i%2 == 0)}}
		testutil.MustNoErr(t, s.Insert(r, i), "insert")
	}
	sel := NewSelectionController(s)

	tests := []struct {
		mode BatchMode
		want []ID
	}{
		{BatchAll, []ID{"r0", "r1", "r2", "r3"}},
		{BatchRead, []ID{"r0", "r2"}},
		{BatchUnread, []ID{"r1", "r3"}},
		{BatchNone, []ID{}},
	}
	for _, tt := range tests {
		n := sel.ChangeBatchSelection(tt.mode)
		if n != len(tt.want) {
			t.Errorf("mode %d: size = %d, want %d", tt.mode, n, len(tt.want))
		}
		testutil.AssertEqualSlices(t, sel.GroupIDs(), tt.want...)
	}
	if _, ok := ParseBatchMode("unread"); !ok {
		t.Error("ParseBatchMode(unread) failed")
	}
	if _, ok := ParseBatchMode("some"); ok {
		t.Error("ParseBatchMode(some) should fail")
	}
}

func TestSelection_DroppedTailMovesActive(t *testing.T) {
	s := newFilledStore(t, "A", "B", "C", "D")
	sel := NewSelectionController(s)
	_, _ = sel.SelectActive("D")

	dropped := s.SetTotalRowCount(2)
	sel.dropped(dropped)
	if sel.Active() != "B" {
		t.Errorf("active = %q, want B", sel.Active())
	}
}

func TestSelection_SnapshotRestore(t *testing.T) {
	s := newFilledStore(t, "A", "B")
	sel := NewSelectionController(s)
	_, _ = sel.SelectActive("A")
	_, _ = sel.ToggleGroup("B")
	snap := sel.Snapshot()

	_, _ = sel.SelectActive(NoID)
	sel.ClearGroup()
	sel.Restore(snap)

	if sel.Active() != "A" || !sel.InGroup("B") || sel.GroupSize() != 1 {
		t.Errorf("restore mismatch: active=%q group=%v", sel.Active(), sel.GroupIDs())
	}
}
