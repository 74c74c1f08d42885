package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderTable() *Table {
	return New("orders", []Column{
		{Name: "customer", Type: TypeText},
		{Name: "amount", Type: TypeInteger, Width: 16},
	}, [][]string{
		{"ACME", "100"},
		{"Globex | Sons", "250"},
		{"Initech", "75"},
	})
}

func TestRenderSchema(t *testing.T) {
	got := renderTable().RenderSchema()
	assert.Equal(t, "customer (TEXT)\namount (INTEGER)\n", got)
}

func TestRenderSample(t *testing.T) {
	got := renderTable().RenderSample(2)
	require.Equal(t, "customer|amount\nACME|100\nGlobex \\| Sons|250\n", got)

	// Cap beyond the row count renders everything.
	all := renderTable().RenderSample(10)
	assert.Contains(t, all, "Initech|75")
}

func TestRenderReference(t *testing.T) {
	got := renderTable().RenderReference()
	assert.Contains(t, got, "columns: customer, amount")
	assert.Contains(t, got, "rows: 3, cols: 2")
	assert.Contains(t, got, "first row: ACME | 100")
}

func TestRenderReference_EmptyTable(t *testing.T) {
	empty := New("empty", []Column{{Name: "a", Type: TypeText}}, nil)
	got := empty.RenderReference()
	assert.Contains(t, got, "rows: 0, cols: 1")
	assert.NotContains(t, got, "first row")
}
