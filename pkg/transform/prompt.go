package transform

import (
	"fmt"
	"strings"

	"github.com/ruslano69/datachat/pkg/table"
)

// scriptReference documents the sandbox language for the generator. It
// is shared verbatim between the transform and retry prompts so the
// generator never sees two dialects.
const scriptReference = `The script language is a small DSL, one statement per line:
  name = expression
There are no loops, conditionals, imports or function definitions.
The input table is bound as df. Bind the final table to result.
Available functions:
  head(df, n), tail(df, n), filter(df, col, op, value), filter_fuzzy(df, col, query, threshold),
  select(df, cols...), drop(df, cols...), rename(df, old, new), sort(df, col, "asc"|"desc"),
  dropna(df, cols...), fillna(df, value, cols...), unique(df, col),
  group_sum(df, key, val), group_count(df, key), group_mean(df, key, val),
  melt(df, [id_cols], var_name, value_name), add_column(df, name, value),
  cast(df, col, "integer"|"real"|"text"|"date"), replace(df, col, old, new), trim_columns(df),
  columns(df), nrows(df), ncols(df), col(df, name), row(df, i),
  sum(x), mean(x), min(x), max(x), count(x), round(x, d), abs(x),
  lower(s), upper(s), trim(s), concat(a, b, ...), contains(s, sub),
  regex_match(s, p), regex_extract(s, p), split(s, sep),
  to_date(s), date_format(s, fmt), year(s), month(s), today(),
  display(x, label), print(x), clarify(question, [options]),
  len(x), str(x), num(x)
Filter operators: ==, !=, >, >=, <, <=, contains.`

const transformSystemPrompt = `You are a data normalization assistant. You inspect a raw spreadsheet sample and decide whether it needs cleaning before analysis.

` + scriptReference + `

Respond with a single JSON object, no prose outside it:
{
  "needs_transform": true|false,
  "issues": ["short description of each problem found"],
  "summary": "one sentence on what the transform does",
  "explanation": "short plain-language explanation for the user",
  "code": "the script, or empty when needs_transform is false"
}
Only set needs_transform when the data genuinely needs fixing: messy headers, wide month columns that should be unpivoted, mixed types, padding rows. Clean data needs no transform.`

// buildGeneratePrompt renders the first-attempt user prompt.
func buildGeneratePrompt(t *table.Table, filename, sheet, userDescription string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", filename)
	if sheet != "" {
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)
	}
	if userDescription != "" {
		fmt.Fprintf(&b, "User description: %s\n", userDescription)
	}
	fmt.Fprintf(&b, "Rows in sample: %d (of %d total)\n\n", min(sampleRows, t.NumRows()), t.NumRows())
	b.WriteString("Columns:\n")
	b.WriteString(t.RenderSchema())
	b.WriteString("\nSample:\n")
	b.WriteString(t.RenderSample(sampleRows))
	return b.String()
}

// buildRetryPrompt renders a retry prompt carrying the failing code,
// the accumulated failure history (capped at the last two entries), a
// reference dump of the untouched original, and pattern-matched hints.
func buildRetryPrompt(original *table.Table, failedCode string, failures []string) string {
	var b strings.Builder
	b.WriteString("The previous transform script failed. Fix it.\n\n")
	b.WriteString("Failing code:\n")
	b.WriteString(failedCode)
	b.WriteString("\n\nFailure history:\n")
	recent := failures
	if len(recent) > historyCap {
		recent = recent[len(recent)-historyCap:]
	}
	for i, f := range recent {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f)
	}

	allErrors := strings.Join(failures, "\n")
	if hints := hintsFor(allErrors); len(hints) > 0 {
		b.WriteString("\nHints:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	// Ground truth from the original data, so the generator corrects
	// against reality instead of compounding its own errors.
	b.WriteString("\nOriginal data reference:\n")
	b.WriteString(original.RenderReference())
	return b.String()
}

// buildFeedbackPrompt renders the human-critique regeneration prompt.
func buildFeedbackPrompt(original *table.Table, previousCode, feedback string, preview *table.Table, previousError string) string {
	var b strings.Builder
	b.WriteString("The user reviewed a proposed transform and wants changes.\n\n")
	b.WriteString("Current code:\n")
	b.WriteString(previousCode)
	fmt.Fprintf(&b, "\n\nUser feedback: %s\n", feedback)
	if previousError != "" {
		fmt.Fprintf(&b, "\nLast execution error: %s\n", previousError)
	}
	if preview != nil {
		b.WriteString("\nCurrent transformed preview:\n")
		b.WriteString(preview.RenderSample(5))
	}
	b.WriteString("\nOriginal data reference:\n")
	b.WriteString(original.RenderReference())
	b.WriteString("\nSample:\n")
	b.WriteString(original.RenderSample(sampleRows))
	return b.String()
}
