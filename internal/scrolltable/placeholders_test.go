package scrolltable

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func phs(pairs ...int) []Placeholder {
	out := make([]Placeholder, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Placeholder{Start: pairs[i], Stop: pairs[i+1]})
	}
	return out
}

func TestPlaceholderTracker_ResetThenMarkFetched(t *testing.T) {
	tr := NewPlaceholderTracker()
	tr.Reset(100)
	tr.MarkFetched(Range{Start: 10, Stop: 20})

	if diff := cmp.Diff(phs(0, 10, 20, 100), tr.All()); diff != "" {
		t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
	}
	if tr.Unfetched() != 90 {
		t.Errorf("Unfetched = %d, want 90", tr.Unfetched())
	}
}

func TestPlaceholderTracker_Operations(t *testing.T) {
	tests := []struct {
		name  string
		start []Placeholder
		op    func(*PlaceholderTracker)
		want  []Placeholder
	}{
		{
			name:  "fetch whole placeholder",
			start: phs(0, 10),
			op:    func(tr *PlaceholderTracker) { tr.MarkFetched(Range{Start: 0, Stop: 10}) },
			want:  phs(),
		},
		{
			name:  "fetch spanning two placeholders",
			start: phs(0, 10, 20, 30),
			op:    func(tr *PlaceholderTracker) { tr.MarkFetched(Range{Start: 5, Stop: 25}) },
			want:  phs(0, 5, 25, 30),
		},
		{
			name:  "remove fetched row before placeholder",
			start: phs(10, 20),
			op:    func(tr *PlaceholderTracker) { tr.MarkRemoved(3) },
			want:  phs(9, 19),
		},
		{
			name:  "remove fetched row after placeholder",
			start: phs(10, 20),
			op:    func(tr *PlaceholderTracker) { tr.MarkRemoved(25) },
			want:  phs(10, 20),
		},
		{
			name:  "remove fetched row between placeholders merges them",
			start: phs(0, 5, 6, 10),
			op:    func(tr *PlaceholderTracker) { tr.MarkRemoved(5) },
			want:  phs(0, 9),
		},
		{
			name:  "remove unfetched offset shrinks placeholder",
			start: phs(0, 5),
			op:    func(tr *PlaceholderTracker) { tr.MarkRemoved(4) },
			want:  phs(0, 4),
		},
		{
			name:  "remove last unfetched offset drops placeholder",
			start: phs(3, 4),
			op:    func(tr *PlaceholderTracker) { tr.MarkRemoved(3) },
			want:  phs(),
		},
		{
			name:  "insert before placeholder shifts it",
			start: phs(10, 20),
			op:    func(tr *PlaceholderTracker) { tr.MarkInserted(10) },
			want:  phs(11, 21),
		},
		{
			name:  "insert inside placeholder splits it",
			start: phs(10, 20),
			op:    func(tr *PlaceholderTracker) { tr.MarkInserted(15) },
			want:  phs(10, 15, 16, 21),
		},
		{
			name:  "insert after placeholder leaves it",
			start: phs(10, 20),
			op:    func(tr *PlaceholderTracker) { tr.MarkInserted(20) },
			want:  phs(10, 20),
		},
		{
			name:  "add merges adjacent",
			start: phs(0, 5, 10, 15),
			op:    func(tr *PlaceholderTracker) { tr.Add(Range{Start: 5, Stop: 10}) },
			want:  phs(0, 15),
		},
		{
			name:  "truncate",
			start: phs(0, 5, 10, 15, 20, 25),
			op:    func(tr *PlaceholderTracker) { tr.Truncate(12) },
			want:  phs(0, 5, 10, 12),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewPlaceholderTracker()
			tr.restore(tt.start)
			tt.op(tr)
			if diff := cmp.Diff(tt.want, tr.All()); diff != "" {
				t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaceholderTracker_CoveringAndMissing(t *testing.T) {
	tr := NewPlaceholderTracker()
	tr.restore(phs(0, 10, 20, 30))

	if p, ok := tr.Covering(25); !ok || p != (Placeholder{Start: 20, Stop: 30}) {
		t.Errorf("Covering(25) = %v, %v", p, ok)
	}
	if _, ok := tr.Covering(10); ok {
		t.Error("Covering(10) should miss")
	}
	want := []Range{{Start: 5, Stop: 10}, {Start: 20, Stop: 22}}
	if diff := cmp.Diff(want, tr.Missing(Range{Start: 5, Stop: 22})); diff != "" {
		t.Errorf("Missing mismatch (-want +got):\n%s", diff)
	}
	if got := tr.Missing(Range{Start: 10, Stop: 20}); len(got) != 0 {
		t.Errorf("Missing over fetched span = %v, want none", got)
	}
}
