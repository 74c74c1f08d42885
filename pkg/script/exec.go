package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ruslano69/datachat/pkg/table"
)

// Mode selects the execution contract.
type Mode int

const (
	// ModeTransform expects the script to bind the normalized table to
	// the result variable; forbidden-pattern scanning applies.
	ModeTransform Mode = iota
	// ModeAnswer expects display calls and/or printed text.
	ModeAnswer
)

// FailKind classifies a script failure.
type FailKind string

const (
	FailSyntax         FailKind = "syntax"
	FailColumnNotFound FailKind = "column_not_found"
	FailExecution      FailKind = "execution"
	FailDangerous      FailKind = "dangerous_code"
)

// ScriptError is the classified failure record. It never propagates as
// a raw error past the executor; loops read it off the ExecResult.
type ScriptError struct {
	Kind    FailKind
	Message string
	// Columns holds the available column names for column_not_found,
	// so retry prompts can show the generator the ground truth.
	Columns []string
}

func (e *ScriptError) Error() string {
	if e.Kind == FailColumnNotFound && len(e.Columns) > 0 {
		return fmt.Sprintf("%s (available columns: %s)", e.Message, strings.Join(e.Columns, ", "))
	}
	return e.Message
}

// ComponentKind enumerates the structured output shapes a script can
// surface through the display side-channel.
type ComponentKind string

const (
	ComponentPreview       ComponentKind = "tabular-preview"
	ComponentMetric        ComponentKind = "scalar-metric"
	ComponentRaw           ComponentKind = "raw-structure"
	ComponentClarification ComponentKind = "clarification-request"
)

// Component is one structured unit of result emitted via display(...) or
// clarify(...).
type Component struct {
	Kind      ComponentKind
	Label     string
	Columns   []string
	Rows      [][]string
	TotalRows int
	Value     float64
	Raw       string
	Question  string
	Options   []string
}

// ExecResult is the always-well-formed outcome of one execution.
type ExecResult struct {
	// Table is the transform-mode output; on any failure it is the
	// input, unchanged.
	Table *table.Table
	// Output is everything the script printed.
	Output string
	// Components are the structured display outputs in emission order.
	Components []Component
	// Diagnostic notes a non-fatal oddity (e.g. the result-variable
	// fallback scan).
	Diagnostic string
	// Err is nil on success.
	Err *ScriptError
}

const (
	// InputVar is the name the input table is bound under.
	InputVar = "df"
	// ResultVar is the canonical transform output binding.
	ResultVar = "result"
	// previewRowCap bounds tabular-preview components; the true row
	// count is reported separately.
	previewRowCap = 50
	// defaultBudget bounds one execution's wall clock.
	defaultBudget = 10 * time.Second
)

// Options tunes the executor.
type Options struct {
	// Budget is the wall-clock limit per execution; 0 means the
	// default.
	Budget time.Duration
}

// Runner is the execution interface the generation loops depend on;
// tests substitute counting fakes.
type Runner interface {
	Execute(ctx context.Context, code string, t *table.Table, mode Mode) *ExecResult
}

// Executor runs scripts in-process against a private table copy.
type Executor struct {
	budget time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(opts Options) *Executor {
	budget := opts.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	return &Executor{budget: budget}
}

// Execute runs code against a deep copy of t. It never returns a Go
// error and never panics outward: every failure mode lands in
// ExecResult.Err, classified.
func (e *Executor) Execute(ctx context.Context, code string, t *table.Table, mode Mode) (res *ExecResult) {
	res = &ExecResult{Table: t}

	// Untrusted code: a builtin bug must not take the loop down.
	defer func() {
		if r := recover(); r != nil {
			res.Err = &ScriptError{Kind: FailExecution, Message: fmt.Sprintf("internal error: %v", r)}
			res.Table = t
		}
	}()

	if mode == ModeTransform {
		if err := CheckForbidden(code); err != nil {
			res.Err = &ScriptError{Kind: FailDangerous, Message: err.Error()}
			return res
		}
	}

	prog, err := NewParser(code).Parse()
	if err != nil {
		res.Err = &ScriptError{Kind: FailSyntax, Message: "syntax error: " + err.Error()}
		return res
	}

	in := &interp{
		ctx:      ctx,
		deadline: time.Now().Add(e.budget),
		env:      map[string]Value{InputVar: TableVal(t.Clone())},
	}

	for _, stmt := range prog.Statements {
		if err := in.checkBudget(); err != nil {
			res.Err = classify(err, stmt.Line)
			return res
		}
		v, err := in.eval(stmt.Expr)
		if err != nil {
			res.Err = classify(err, stmt.Line)
			return res
		}
		if stmt.Target != "" {
			in.env[stmt.Target] = v
		}
	}

	res.Output = in.out.String()
	res.Components = in.components

	if mode == ModeTransform {
		res.Table, res.Diagnostic = selectResult(in.env, t)
	}
	return res
}

// classify maps an evaluation error to its failure kind, attaching the
// source line.
func classify(err error, line int) *ScriptError {
	var se *ScriptError
	if errors.As(err, &se) {
		if !strings.Contains(se.Message, "line ") {
			se.Message = fmt.Sprintf("line %d: %s", line, se.Message)
		}
		return se
	}
	return &ScriptError{
		Kind:    FailExecution,
		Message: fmt.Sprintf("line %d: %s", line, err.Error()),
	}
}

// selectResult resolves the transform output. The canonical binding
// wins; otherwise every table-typed binding is a candidate, preferring
// one whose shape or columns differ from the input. With no candidate
// at all the input comes back unchanged with a diagnostic.
func selectResult(env map[string]Value, input *table.Table) (*table.Table, string) {
	if v, ok := env[ResultVar]; ok && v.Kind == KindTable {
		return v.Table, ""
	}

	names := make([]string, 0, len(env))
	for name, v := range env {
		if v.Kind == KindTable {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var fallback *table.Table
	var fallbackName string
	for _, name := range names {
		cand := env[name].Table
		if differsFrom(cand, input) {
			return cand, fmt.Sprintf("script did not bind %q; using table %q", ResultVar, name)
		}
		if fallback == nil && name != InputVar {
			fallback, fallbackName = cand, name
		}
	}
	if fallback != nil {
		return fallback, fmt.Sprintf("script did not bind %q; using table %q", ResultVar, fallbackName)
	}
	return input, "script did not produce a table; returning input unchanged"
}

// differsFrom reports a shape or column-name difference.
func differsFrom(cand, input *table.Table) bool {
	if cand.NumRows() != input.NumRows() || cand.NumCols() != input.NumCols() {
		return true
	}
	for i, c := range cand.Columns {
		if c.Name != input.Columns[i].Name {
			return true
		}
	}
	return false
}
