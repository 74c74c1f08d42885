// Package script implements the sandbox that runs generator-produced
// analysis scripts against a table.
//
// The script language is a small imperative DSL: newline-separated
// statements, assignments, arithmetic/comparison/logic expressions and
// calls into a fixed builtin registry. The registry is the entire
// capability surface — there is no filesystem, network, process or
// import reachable from a script, and the language has no loop
// construct, so execution cost is bounded by the data size.
//
// Every script runs against a deep copy of the input table; the
// caller's table is never mutated. Failures never escape as Go panics
// or raw errors: execution always yields an ExecResult with a
// classified ScriptError at worst.
package script

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ruslano69/datachat/pkg/table"
)

// Kind enumerates script value types.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindTable
)

// Value is a tagged union of the script runtime types.
type Value struct {
	Kind  Kind
	Bool  bool
	Num   float64
	Str   string
	List  []Value
	Map   *MapValue
	Table *table.Table
}

// MapValue is an insertion-ordered string-keyed mapping.
type MapValue struct {
	Keys  []string
	Items map[string]Value
}

// NewMap creates an empty ordered map value.
func NewMap() *MapValue {
	return &MapValue{Items: make(map[string]Value)}
}

// Set inserts or replaces a key, preserving first-insertion order.
func (m *MapValue) Set(key string, v Value) {
	if _, ok := m.Items[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Items[key] = v
}

func Null() Value                       { return Value{Kind: KindNull} }
func BoolVal(b bool) Value              { return Value{Kind: KindBool, Bool: b} }
func Num(f float64) Value               { return Value{Kind: KindNumber, Num: f} }
func Str(s string) Value                { return Value{Kind: KindString, Str: s} }
func ListVal(items []Value) Value       { return Value{Kind: KindList, List: items} }
func MapVal(m *MapValue) Value          { return Value{Kind: KindMap, Map: m} }
func TableVal(t *table.Table) Value     { return Value{Kind: KindTable, Table: t} }

// TypeName returns the script-visible type name for error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Truthy reports the boolean interpretation used by and/or/not.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	case KindList:
		return len(v.List) > 0
	case KindMap:
		return v.Map != nil && len(v.Map.Keys) > 0
	case KindTable:
		return v.Table != nil && v.Table.NumRows() > 0
	default:
		return false
	}
}

// Render returns the printable form of a value. Numbers print without a
// trailing ".0" when integral; tables render as a short shape summary
// (full previews go through the display side-channel instead).
func (v Value) Render() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return FormatNumber(v.Num)
	case KindString:
		return v.Str
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Render()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, len(v.Map.Keys))
		for _, k := range v.Map.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, v.Map.Items[k].Render()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindTable:
		return fmt.Sprintf("<table %dx%d>", v.Table.NumRows(), v.Table.NumCols())
	default:
		return ""
	}
}

// FormatNumber renders a float the way cells are written back to tables.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// asNumber attempts the numeric view of a value (numbers themselves,
// numeric strings, bools as 0/1).
func asNumber(v Value) (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
