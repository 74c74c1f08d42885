package table

import (
	"fmt"
	"strings"
)

// RenderSchema returns a one-line-per-column description used in prompts:
//
//	amount (INTEGER)
//	customer (TEXT)
func (t *Table) RenderSchema() string {
	var b strings.Builder
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "%s (%s)\n", c.Name, c.Type)
	}
	return b.String()
}

// RenderSample returns a pipe-delimited header plus up to maxRows rows.
// Cell values containing the delimiter are escaped the same way the wire
// format escapes them.
func (t *Table) RenderSample(maxRows int) string {
	var b strings.Builder
	b.WriteString(strings.Join(escapeAll(t.ColumnNames()), "|"))
	b.WriteByte('\n')
	n := maxRows
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	for i := 0; i < n; i++ {
		b.WriteString(strings.Join(escapeAll(t.Rows[i]), "|"))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderReference dumps column list, counts and the first row. Retry
// prompts include it so the generator can cross-check against the ground
// truth instead of compounding a previous mistake.
func (t *Table) RenderReference() string {
	var b strings.Builder
	fmt.Fprintf(&b, "columns: %s\n", strings.Join(t.ColumnNames(), ", "))
	fmt.Fprintf(&b, "rows: %d, cols: %d\n", t.NumRows(), t.NumCols())
	if len(t.Rows) > 0 {
		fmt.Fprintf(&b, "first row: %s\n", strings.Join(t.Rows[0], " | "))
	}
	return b.String()
}

func escapeAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ReplaceAll(v, "|", `\|`)
	}
	return out
}
