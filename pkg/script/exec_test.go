package script

import (
	"context"
	"strings"
	"testing"

	"github.com/ruslano69/datachat/pkg/table"
)

func salesTable() *table.Table {
	return table.New("sales", []table.Column{
		{Name: "region", Type: table.TypeText},
		{Name: "product", Type: table.TypeText},
		{Name: "amount", Type: table.TypeInteger, Width: 16},
	}, [][]string{
		{"north", "widget", "100"},
		{"south", "widget", "200"},
		{"north", "gadget", "300"},
		{"south", "gadget", ""},
	})
}

func run(t *testing.T, code string, tbl *table.Table, mode Mode) *ExecResult {
	t.Helper()
	return NewExecutor(Options{}).Execute(context.Background(), code, tbl, mode)
}

func TestExecute_TransformBindsResult(t *testing.T) {
	res := run(t, "result = head(df, 2)", salesTable(), ModeTransform)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if res.Table.NumRows() != 2 {
		t.Fatalf("result rows = %d, want 2", res.Table.NumRows())
	}
	if res.Diagnostic != "" {
		t.Fatalf("unexpected diagnostic %q", res.Diagnostic)
	}
}

func TestExecute_FallbackWhenResultUnbound(t *testing.T) {
	res := run(t, "cleaned = dropna(df)", salesTable(), ModeTransform)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if res.Table.NumRows() != 3 {
		t.Fatalf("fallback rows = %d, want 3", res.Table.NumRows())
	}
	if !strings.Contains(res.Diagnostic, "cleaned") {
		t.Fatalf("diagnostic %q does not name the fallback binding", res.Diagnostic)
	}
}

func TestExecute_NoTableReturnsInputUnchanged(t *testing.T) {
	in := salesTable()
	res := run(t, "x = 1 + 2", in, ModeTransform)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if !res.Table.Equal(in) {
		t.Fatal("input table should come back unchanged")
	}
	if res.Diagnostic == "" {
		t.Fatal("expected a diagnostic for missing table output")
	}
}

func TestExecute_DangerousCodeRejected(t *testing.T) {
	res := run(t, "result = read_csv(\"other.csv\")", salesTable(), ModeTransform)
	if res.Err == nil || res.Err.Kind != FailDangerous {
		t.Fatalf("Err = %v, want dangerous_code", res.Err)
	}
}

func TestExecute_SyntaxErrorClassified(t *testing.T) {
	res := run(t, "result = head(df", salesTable(), ModeTransform)
	if res.Err == nil || res.Err.Kind != FailSyntax {
		t.Fatalf("Err = %v, want syntax", res.Err)
	}
	if !strings.Contains(res.Err.Message, "line 1") {
		t.Fatalf("syntax error %q should carry the line", res.Err.Message)
	}
}

func TestExecute_ColumnNotFoundListsAvailable(t *testing.T) {
	res := run(t, "result = select(df, \"revenue\")", salesTable(), ModeTransform)
	if res.Err == nil || res.Err.Kind != FailColumnNotFound {
		t.Fatalf("Err = %v, want column_not_found", res.Err)
	}
	msg := res.Err.Error()
	for _, want := range []string{"region", "product", "amount"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing available column %q", msg, want)
		}
	}
	if res.Table.NumCols() != 3 {
		t.Fatal("failed execution must return the input table")
	}
}

func TestExecute_CallerTableIsolated(t *testing.T) {
	in := salesTable()
	res := run(t, "result = fillna(df, 0, \"amount\")\nresult = rename(result, \"amount\", \"total\")", in, ModeTransform)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if in.Rows[3][2] != "" || in.Columns[2].Name != "amount" {
		t.Fatal("caller's table was mutated by the script")
	}
	if res.Table.Columns[2].Name != "total" || res.Table.Rows[3][2] != "0" {
		t.Fatalf("transform output wrong: %+v", res.Table.Columns)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewExecutor(Options{}).Execute(ctx, "result = head(df)", salesTable(), ModeTransform)
	if res.Err == nil || res.Err.Kind != FailExecution {
		t.Fatalf("Err = %v, want execution failure on cancelled context", res.Err)
	}
}

func TestExecute_AnswerModeSkipsGuard(t *testing.T) {
	// The forbidden patterns target transform scripts; answer scripts
	// may mention them in printed text.
	res := run(t, "print(\"no import needed\")", salesTable(), ModeAnswer)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if res.Output != "no import needed\n" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestExecute_DisplayTablePreviewCapped(t *testing.T) {
	rows := make([][]string, 80)
	for i := range rows {
		rows[i] = []string{"r", "p", "1"}
	}
	big := table.New("big", salesTable().Columns, rows)
	res := run(t, "display(df)", big, ModeAnswer)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if len(res.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(res.Components))
	}
	c := res.Components[0]
	if c.Kind != ComponentPreview {
		t.Fatalf("component kind = %q", c.Kind)
	}
	if len(c.Rows) != previewRowCap || c.TotalRows != 80 {
		t.Fatalf("preview rows = %d total = %d, want %d and 80", len(c.Rows), c.TotalRows, previewRowCap)
	}
}

func TestExecute_DisplayMetric(t *testing.T) {
	res := run(t, "display(sum(df, \"amount\"), \"total sales\")", salesTable(), ModeAnswer)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if len(res.Components) != 1 || res.Components[0].Kind != ComponentMetric {
		t.Fatalf("components = %+v", res.Components)
	}
	if res.Components[0].Value != 600 || res.Components[0].Label != "total sales" {
		t.Fatalf("metric = %+v", res.Components[0])
	}
	if res.Output != "600\n" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestExecute_Clarify(t *testing.T) {
	res := run(t, "clarify(\"Which year?\", [\"2024\", \"2025\"])", salesTable(), ModeAnswer)
	if res.Err != nil {
		t.Fatalf("Execute() error = %v", res.Err)
	}
	if len(res.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(res.Components))
	}
	c := res.Components[0]
	if c.Kind != ComponentClarification || c.Question != "Which year?" || len(c.Options) != 2 {
		t.Fatalf("clarification = %+v", c)
	}
}

func TestExecute_UndefinedVariable(t *testing.T) {
	res := run(t, "result = head(frame)", salesTable(), ModeTransform)
	if res.Err == nil || res.Err.Kind != FailExecution {
		t.Fatalf("Err = %v, want execution", res.Err)
	}
	if !strings.Contains(res.Err.Message, "frame") {
		t.Fatalf("error %q should name the variable", res.Err.Message)
	}
}
