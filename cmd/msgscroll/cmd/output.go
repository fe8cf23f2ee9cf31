package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/wesm/msgscroll/internal/scrolltable"
)

// truncate collapses whitespace and shortens s to maxWidth terminal cells.
func truncate(s string, maxWidth int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// outputRowsTable prints the offsets [start, stop) of the table's current
// view. Offsets that are still placeholders print as such.
func outputRowsTable(out io.Writer, t *scrolltable.Table, start, stop int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tFROM\tSUBJECT\tDATE\tREAD")
	fmt.Fprintln(w, "─\t──\t────\t───────\t────\t────")

	for offset := start; offset < stop; offset++ {
		row, ok := t.Store().GetByOffset(offset)
		if !ok {
			fmt.Fprintf(w, "%d\t-\t(not loaded)\t\t\t\n", offset)
			continue
		}
		read := "no"
		if row.Bool(scrolltable.ReadColumn) {
			read = "yes"
		}
		from := row.Text("sender_name")
		if from == "" {
			from = row.Text("sender")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			offset,
			row.ID,
			truncate(from, 24),
			truncate(row.Text("subject"), 50),
			row.Time("sent_at").Local().Format("2006-01-02 15:04"),
			read,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\nShowing %d-%d of %d in %s\n",
		min(start+1, stop), stop, t.Store().TotalRowCount(), t.View())
}

// outputRowsJSON prints the fetched rows in [start, stop) as JSON.
func outputRowsJSON(out io.Writer, t *scrolltable.Table, start, stop int) error {
	rows := t.Store().RowsIn(scrolltable.Range{Start: start, Stop: stop})
	output := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		obj := map[string]any{
			"id":     string(row.ID),
			"offset": row.Offset,
		}
		for name, v := range row.Columns {
			obj[name] = jsonValue(v)
		}
		output = append(output, obj)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func jsonValue(v scrolltable.Value) any {
	switch v.Kind() {
	case scrolltable.KindNumber:
		n, _ := v.Number()
		return n
	case scrolltable.KindTime:
		ts, _ := v.Time()
		return ts.UTC().Format(time.RFC3339)
	case scrolltable.KindBool:
		b, _ := v.Bool()
		return b
	default:
		s, _ := v.Text()
		return s
	}
}
