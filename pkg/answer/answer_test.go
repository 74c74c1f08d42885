package answer

import (
	"context"
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

func salesTable() *table.Table {
	return table.New("sales", []table.Column{
		{Name: "sales", Type: table.TypeInteger, Width: 16},
	}, [][]string{{"100"}, {"200"}, {"300"}})
}

func newEngine(client, judge *fakeClient) *Engine {
	return NewEngine(client, judge, script.NewExecutor(script.Options{}), zerolog.Nop())
}

func fenced(code string) string {
	return "```\n" + code + "\n```"
}

func TestAnswer_EndToEndScalar(t *testing.T) {
	client := &fakeClient{responses: []string{
		fenced(`display(sum(df, "sales"), "total")`),
		"The total sales are 600.",
	}}
	judge := &fakeClient{responses: []string{`{"accept": true}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "what is the total?", Options{})

	if res.HasError {
		t.Fatalf("HasError = true, notes: %v", res.ValidationNotes)
	}
	if res.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", res.Iterations)
	}
	if len(res.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(res.Components))
	}
	c := res.Components[0]
	if c.Kind != script.ComponentMetric || c.Value != 600 {
		t.Fatalf("component = %+v, want scalar 600", c)
	}
	if res.GeneratedCode != `display(sum(df, "sales"), "total")` {
		t.Fatalf("GeneratedCode = %q", res.GeneratedCode)
	}
	if res.Explanation != "The total sales are 600." {
		t.Fatalf("Explanation = %q", res.Explanation)
	}
}

func TestAnswer_JudgeShortCircuitOnEmptyOutput(t *testing.T) {
	// The script runs cleanly but shows nothing. The judge must never
	// be called for it.
	client := &fakeClient{responses: []string{fenced("x = 1")}}
	judge := &fakeClient{responses: []string{`{"accept": true}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "what is the total?", Options{})

	if judge.calls != 0 {
		t.Fatalf("judge calls = %d, want 0", judge.calls)
	}
	if !res.HasError {
		t.Fatal("silent scripts on every attempt must exhaust the loop")
	}
	if res.ResponseText != apologyTemplate {
		t.Fatalf("ResponseText = %q, want the apology template", res.ResponseText)
	}
}

func TestAnswer_RetryBoundExactlyThree(t *testing.T) {
	client := &fakeClient{responses: []string{fenced(`print(col(df, "revenue"))`)}}
	judge := &fakeClient{responses: []string{`{"accept": true}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "total revenue?", Options{})

	if client.calls != 3 {
		t.Fatalf("generator calls = %d, want exactly 3", client.calls)
	}
	if !res.HasError || res.Iterations != 3 {
		t.Fatalf("HasError=%v Iterations=%d, want exhaustion after 3", res.HasError, res.Iterations)
	}
	if res.FailedCode == "" {
		t.Fatal("FailedCode must carry the last failing script")
	}
	if len(res.ValidationNotes) != 3 {
		t.Fatalf("notes = %v, want one per attempt", res.ValidationNotes)
	}
}

func TestAnswer_JudgeRejectionFoldsAdviceIntoRetry(t *testing.T) {
	client := &fakeClient{responses: []string{
		fenced(`print("rows:", nrows(df))`),
		fenced(`print("total:", sum(df, "sales"))`),
	}}
	judge := &fakeClient{responses: []string{
		`{"accept": false, "advice": "sum the sales column instead of counting rows"}`,
		`{"accept": true}`,
	}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "what is the total?", Options{})

	if res.HasError {
		t.Fatalf("HasError = true, notes: %v", res.ValidationNotes)
	}
	if res.Iterations != 2 || judge.calls != 2 {
		t.Fatalf("iterations=%d judge calls=%d, want 2/2", res.Iterations, judge.calls)
	}
	if res.ResponseText != "total: 600\n" {
		t.Fatalf("ResponseText = %q", res.ResponseText)
	}
	retry := client.prompts[1]
	if !strings.Contains(retry, "sum the sales column") {
		t.Fatalf("retry prompt missing judge advice:\n%s", retry)
	}
	if !strings.Contains(retry, "nrows(df)") {
		t.Fatalf("retry prompt missing the rejected code:\n%s", retry)
	}
}

func TestAnswer_ForcedAcceptOnLastAttempt(t *testing.T) {
	client := &fakeClient{responses: []string{fenced(`print("rows:", nrows(df))`)}}
	judge := &fakeClient{responses: []string{`{"accept": false, "advice": "wrong"}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "what is the total?", Options{})

	if res.HasError {
		t.Fatal("forced acceptance must not be an error")
	}
	if res.Iterations != 3 {
		t.Fatalf("Iterations = %d, want 3", res.Iterations)
	}
	if res.ResponseText != "rows: 3\n" {
		t.Fatalf("ResponseText = %q", res.ResponseText)
	}
	forced := false
	for _, n := range res.ValidationNotes {
		if strings.Contains(n, "without judge verification") {
			forced = true
		}
	}
	if !forced {
		t.Fatalf("notes %v missing the forced-acceptance record", res.ValidationNotes)
	}
}

func TestAnswer_ExplanationSkippedForShortOutput(t *testing.T) {
	client := &fakeClient{responses: []string{fenced(`print("total: 600")`)}}
	judge := &fakeClient{responses: []string{`{"accept": true}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "total?", Options{})

	if res.HasError {
		t.Fatalf("unexpected error: %v", res.ValidationNotes)
	}
	if client.calls != 1 {
		t.Fatalf("generator calls = %d, want 1 (no explanation call)", client.calls)
	}
	if res.Explanation != "" {
		t.Fatalf("Explanation = %q, want empty", res.Explanation)
	}
}

func TestAnswer_BareCodeWithoutFences(t *testing.T) {
	client := &fakeClient{responses: []string{
		`display(mean(df, "sales"), "average")`,
	}}
	judge := &fakeClient{responses: []string{`{"accept": true}`}}

	res := newEngine(client, judge).Answer(context.Background(), salesTable(), "average sales?", Options{})

	if res.HasError {
		t.Fatalf("unexpected error: %v", res.ValidationNotes)
	}
	if len(res.Components) != 1 || res.Components[0].Value != 200 {
		t.Fatalf("components = %+v", res.Components)
	}
}

func TestBuildUserPrompt_HistoryBounds(t *testing.T) {
	history := make([]Turn, 12)
	for i := range history {
		history[i] = Turn{Role: "user", Content: strings.Repeat("x", 600)}
	}
	history[0].Content = "FIRST"
	history[1].Content = "SECOND"

	got := buildUserPrompt("q", history, nil)

	if strings.Contains(got, "FIRST") || strings.Contains(got, "SECOND") {
		t.Fatal("prompt must carry only the last 10 turns")
	}
	if strings.Contains(got, strings.Repeat("x", 501)) {
		t.Fatal("turn content must be truncated to 500 characters")
	}
	if !strings.Contains(got, strings.Repeat("x", 500)+"...") {
		t.Fatal("truncated turns should end with an ellipsis")
	}
}

func TestObviousFailure(t *testing.T) {
	if _, bad := obviousFailure("", nil); !bad {
		t.Fatal("empty output with no components must be rejected locally")
	}
	if _, bad := obviousFailure("execution error: boom", nil); !bad {
		t.Fatal("error-bearing output must be rejected locally")
	}
	if _, bad := obviousFailure("", []script.Component{{Kind: script.ComponentPreview}}); bad {
		t.Fatal("components without stdout are a valid answer")
	}
	if _, bad := obviousFailure("total: 600", nil); bad {
		t.Fatal("plain output must pass")
	}
}
