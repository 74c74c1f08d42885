package transform

import "strings"

// hint pairs a recognizable error substring with corrective guidance
// for the retry prompt. Order matters: earlier entries win when several
// patterns appear, and every matching hint is included once.
type hint struct {
	pattern string
	advice  string
}

var hintTable = []hint{
	{
		pattern: "column",
		advice:  "Use only column names from the reference column list, exactly as written, including case and spacing.",
	},
	{
		pattern: "duplicate",
		advice:  "Every column name in the result must be unique. Use rename() before combining tables that share names.",
	},
	{
		pattern: "values, table has",
		advice:  "add_column() with a list needs exactly one value per row. Compute the list from the table itself, e.g. col().",
	},
	{
		pattern: "unknown function",
		advice:  "Only the documented builtin functions exist. There is no pandas, numpy or method-call syntax.",
	},
	{
		pattern: "is not defined",
		advice:  "The input table is bound as df. Define every other variable before use.",
	},
	{
		pattern: "syntax error",
		advice:  "Write one statement per line: name = expression. There are no loops, if-blocks or function definitions.",
	},
	{
		pattern: "cannot parse",
		advice:  "Check the raw cell format in the sample before casting. Use cast(df, col, \"text\") when values are irregular.",
	},
	{
		pattern: "division by zero",
		advice:  "Guard denominators: filter out zero values before dividing.",
	},
}

// hintsFor scans accumulated error text and returns the matched advice,
// de-duplicated, in table order.
func hintsFor(errText string) []string {
	lower := strings.ToLower(errText)
	var out []string
	for _, h := range hintTable {
		if strings.Contains(lower, strings.ToLower(h.pattern)) {
			out = append(out, h.advice)
		}
	}
	return out
}
