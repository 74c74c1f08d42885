package transform

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ruslano69/datachat/pkg/script"
	"github.com/ruslano69/datachat/pkg/table"
)

type fakeClient struct {
	responses []string
	calls     int
	prompts   []string
}

func (f *fakeClient) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, user)
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

type countingRunner struct {
	inner script.Runner
	calls int
}

func (c *countingRunner) Execute(ctx context.Context, code string, t *table.Table, mode script.Mode) *script.ExecResult {
	c.calls++
	return c.inner.Execute(ctx, code, t, mode)
}

func genResponse(t *testing.T, needs bool, code string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"needs_transform": needs,
		"issues":          []string{"messy headers"},
		"summary":         "test summary",
		"explanation":     "test explanation",
		"code":            code,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func rawTable() *table.Table {
	return table.New("raw", []table.Column{
		{Name: "name", Type: table.TypeText},
		{Name: "amount", Type: table.TypeInteger, Width: 16},
	}, [][]string{
		{"a", "1"},
		{"b", "2"},
		{"c", "3"},
		{"d", "4"},
	})
}

func newEngine(client *fakeClient, runner script.Runner) *Engine {
	if runner == nil {
		runner = script.NewExecutor(script.Options{})
	}
	return NewEngine(client, runner, zerolog.Nop())
}

func TestGenerate_NoTransformNeededPreviewIsHead(t *testing.T) {
	client := &fakeClient{responses: []string{genResponse(t, false, "")}}
	tbl := rawTable()

	res := newEngine(client, nil).Generate(context.Background(), tbl, Options{Filename: "raw.csv"})

	if res.HasError || res.NeedsTransform {
		t.Fatalf("HasError=%v NeedsTransform=%v, want clean no-op", res.HasError, res.NeedsTransform)
	}
	if !res.Preview.Equal(tbl.Head(20)) {
		t.Fatal("no-op preview must be identical to head(20)")
	}
	if res.Iterations != 1 || client.calls != 1 {
		t.Fatalf("iterations=%d calls=%d, want 1/1", res.Iterations, client.calls)
	}
}

func TestGenerate_ConvergesWithValidCode(t *testing.T) {
	client := &fakeClient{responses: []string{genResponse(t, true, `result = rename(df, "amount", "total")`)}}

	res := newEngine(client, nil).Generate(context.Background(), rawTable(), Options{Filename: "raw.csv"})

	if res.HasError {
		t.Fatalf("unexpected error, notes: %v", res.ValidationNotes)
	}
	if !res.NeedsTransform {
		t.Fatal("NeedsTransform should hold")
	}
	if res.Preview.Columns[1].Name != "total" {
		t.Fatalf("preview column = %q, want total", res.Preview.Columns[1].Name)
	}
	if res.Summary != "test summary" || res.Explanation != "test explanation" {
		t.Fatalf("metadata not carried: %q / %q", res.Summary, res.Explanation)
	}
}

func TestGenerate_DuplicateColumnsNeverConverge(t *testing.T) {
	// rename collides with an existing column on every attempt.
	bad := genResponse(t, true, `result = rename(df, "name", "amount")`)
	client := &fakeClient{responses: []string{bad}}

	res := newEngine(client, nil).Generate(context.Background(), rawTable(), Options{})

	if !res.HasError {
		t.Fatal("duplicate columns must end in exhaustion")
	}
	if res.NeedsTransform {
		t.Fatal("exhaustion must force NeedsTransform off")
	}
	if res.TransformCode != passthroughCode {
		t.Fatalf("TransformCode = %q, want the safe passthrough", res.TransformCode)
	}
	if res.FailedCode == "" || res.FailedCode == passthroughCode {
		t.Fatalf("FailedCode = %q, want the offending script", res.FailedCode)
	}
	if client.calls != 3 {
		t.Fatalf("generator calls = %d, want 3", client.calls)
	}
}

func TestGenerate_ForbiddenCodeNeverReachesExecutor(t *testing.T) {
	client := &fakeClient{responses: []string{genResponse(t, true, `result = read_csv("other.csv")`)}}
	runner := &countingRunner{inner: script.NewExecutor(script.Options{})}

	res := newEngine(client, runner).Generate(context.Background(), rawTable(), Options{})

	if runner.calls != 0 {
		t.Fatalf("executor calls = %d, want 0 for dangerous code", runner.calls)
	}
	if !res.HasError {
		t.Fatal("dangerous code on every attempt must end in exhaustion")
	}
	found := false
	for _, n := range res.ValidationNotes {
		if strings.Contains(n, "rejected before execution") {
			found = true
		}
	}
	if !found {
		t.Fatalf("notes %v missing the rejection record", res.ValidationNotes)
	}
}

func TestGenerate_RetryBoundExactlyThree(t *testing.T) {
	// Always fails: the column does not exist.
	client := &fakeClient{responses: []string{genResponse(t, true, `result = select(df, "revenue")`)}}

	res := newEngine(client, nil).Generate(context.Background(), rawTable(), Options{})

	if client.calls != 3 {
		t.Fatalf("generator calls = %d, want exactly 3", client.calls)
	}
	if !res.HasError || res.Iterations != 3 {
		t.Fatalf("HasError=%v Iterations=%d, want exhaustion after 3", res.HasError, res.Iterations)
	}
}

func TestGenerate_RetryPromptCarriesFailureContext(t *testing.T) {
	failing := genResponse(t, true, `result = select(df, "revenue")`)
	fixed := genResponse(t, true, `result = trim_columns(df)`)
	client := &fakeClient{responses: []string{failing, fixed}}

	res := newEngine(client, nil).Generate(context.Background(), rawTable(), Options{})

	if res.HasError {
		t.Fatalf("second attempt should converge, notes: %v", res.ValidationNotes)
	}
	if res.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", res.Iterations)
	}
	retry := client.prompts[1]
	for _, want := range []string{`select(df, "revenue")`, "revenue", "Original data reference"} {
		if !strings.Contains(retry, want) {
			t.Fatalf("retry prompt missing %q:\n%s", want, retry)
		}
	}
	// The column error should trigger the column-name hint.
	if !strings.Contains(retry, "exactly as written") {
		t.Fatalf("retry prompt missing the column hint:\n%s", retry)
	}
}

func TestRegenerate_SingleCycle(t *testing.T) {
	client := &fakeClient{responses: []string{genResponse(t, true, `result = select(df, "revenue")`)}}

	res := newEngine(client, nil).Regenerate(context.Background(), rawTable(),
		`result = df`, "drop the name column", RegenOptions{})

	if client.calls != 1 {
		t.Fatalf("generator calls = %d, want exactly 1 (no internal retries)", client.calls)
	}
	if !res.HasError {
		t.Fatal("failed execution must surface HasError")
	}
	if res.TransformCode != passthroughCode {
		t.Fatalf("TransformCode = %q, want passthrough", res.TransformCode)
	}
}

func TestRegenerate_Success(t *testing.T) {
	client := &fakeClient{responses: []string{genResponse(t, true, `result = drop(df, "name")`)}}

	res := newEngine(client, nil).Regenerate(context.Background(), rawTable(),
		`result = df`, "drop the name column", RegenOptions{})

	if res.HasError {
		t.Fatalf("unexpected error: %v", res.ValidationNotes)
	}
	if res.Preview.NumCols() != 1 {
		t.Fatalf("preview cols = %d, want 1", res.Preview.NumCols())
	}
}

func TestCompareStructure(t *testing.T) {
	base := func(rows, cols int) *table.Table {
		columns := make([]table.Column, cols)
		for i := range columns {
			columns[i] = table.Column{Name: string(rune('a' + i)), Type: table.TypeText}
		}
		data := make([][]string, rows)
		for i := range data {
			data[i] = make([]string, cols)
		}
		return table.New("t", columns, data)
	}

	tests := []struct {
		name         string
		orig, next   *table.Table
		wantCritical bool
		wantAny      bool
	}{
		{"90 percent row loss", base(10, 10), base(1, 10), true, true},
		{"10 percent row loss", base(10, 10), base(9, 10), false, false},
		{"empty result", base(10, 10), base(0, 10), true, true},
		{"zero columns", base(10, 10), base(0, 0), true, true},
		{"unpivot column loss with row growth", base(10, 10), base(16, 4), false, true},
		{"column loss without row growth", base(10, 10), base(10, 4), true, true},
		{"benign cleanup", base(10, 10), base(8, 9), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := CompareStructure(tt.orig, tt.next)
			if got := HasCritical(issues); got != tt.wantCritical {
				t.Errorf("HasCritical() = %v, want %v (issues %v)", got, tt.wantCritical, issues)
			}
			if got := len(issues) > 0; got != tt.wantAny {
				t.Errorf("issues = %v, want any=%v", issues, tt.wantAny)
			}
		})
	}
}

func TestHintsFor(t *testing.T) {
	hints := hintsFor(`line 1: column "revenue" not found (available columns: name, amount)`)
	if len(hints) == 0 || !strings.Contains(hints[0], "exactly as written") {
		t.Fatalf("hints = %v", hints)
	}
	if got := hintsFor("something unrecognizable"); got != nil {
		t.Fatalf("hints for unknown text = %v, want none", got)
	}
}
