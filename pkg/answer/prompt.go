package answer

import (
	"fmt"
	"strings"

	"github.com/ruslano69/datachat/pkg/table"
)

const answerSystemPreamble = `You are a data analysis assistant. You answer questions about one table by writing a short script.

The script language is a small DSL, one statement per line:
  name = expression
There are no loops, conditionals, imports or function definitions.
The table is bound as df. Show results with display(value, label) or print(...).
Available functions:
  head(df, n), tail(df, n), filter(df, col, op, value), filter_fuzzy(df, col, query, threshold),
  select(df, cols...), drop(df, cols...), rename(df, old, new), sort(df, col, "asc"|"desc"),
  dropna(df, cols...), fillna(df, value, cols...), unique(df, col),
  group_sum(df, key, val), group_count(df, key), group_mean(df, key, val),
  melt(df, [id_cols], var_name, value_name), add_column(df, name, value),
  cast(df, col, type), replace(df, col, old, new), trim_columns(df),
  columns(df), nrows(df), ncols(df), col(df, name), row(df, i),
  sum(x), mean(x), min(x), max(x), count(x), round(x, d), abs(x),
  lower(s), upper(s), trim(s), concat(a, b, ...), contains(s, sub),
  regex_match(s, p), regex_extract(s, p), split(s, sep),
  to_date(s), date_format(s, fmt), year(s), month(s), today(),
  clarify(question, [options]), len(x), str(x), num(x)
Filter operators: ==, !=, >, >=, <, <=, contains.
Use filter_fuzzy() when matching human-typed names against text columns.
If the question is ambiguous, call clarify() instead of guessing.
Reply with one fenced code block and nothing else.`

// buildSystemPrompt embeds the schema, row count, a small sample and
// any human descriptions.
func buildSystemPrompt(t *table.Table, opts Options) string {
	var b strings.Builder
	b.WriteString(answerSystemPreamble)
	b.WriteString("\n\nTable schema:\n")
	b.WriteString(t.RenderSchema())
	fmt.Fprintf(&b, "Total rows: %d\n", t.NumRows())
	if opts.TableDescription != "" {
		fmt.Fprintf(&b, "Table description: %s\n", opts.TableDescription)
	}
	if len(opts.ColumnDescriptions) > 0 {
		b.WriteString("Column descriptions:\n")
		for _, c := range t.Columns {
			if d, ok := opts.ColumnDescriptions[c.Name]; ok {
				fmt.Fprintf(&b, "  %s: %s\n", c.Name, d)
			}
		}
	}
	b.WriteString("\nSample:\n")
	b.WriteString(t.RenderSample(promptSampleRows))
	return b.String()
}

// buildUserPrompt embeds recent conversation history and the retry
// context from prior failed attempts.
func buildUserPrompt(question string, history []Turn, failures []attemptFailure) string {
	var b strings.Builder

	if len(history) > 0 {
		recent := history
		if len(recent) > historyTurns {
			recent = recent[len(recent)-historyTurns:]
		}
		b.WriteString("Recent conversation:\n")
		for _, turn := range recent {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, truncate(turn.Content, turnCharCap))
		}
		b.WriteString("\n")
	}

	if len(failures) > 0 {
		recent := failures
		if len(recent) > failureHistoryCap {
			recent = recent[len(recent)-failureHistoryCap:]
		}
		b.WriteString("Previous attempts failed. Do not repeat these mistakes:\n")
		for i, f := range recent {
			fmt.Fprintf(&b, "Attempt %d code:\n%s\nProblem: %s\n", i+1, f.code, f.reason)
			if f.advice != "" {
				fmt.Fprintf(&b, "Advice: %s\n", f.advice)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
