package script

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ruslano69/datachat/pkg/table"
)

// series resolves the (list) or (table, column) argument shapes the
// aggregate builtins accept, returning the raw values.
func series(args []Value, fname string) ([]Value, error) {
	switch args[0].Kind {
	case KindList:
		if len(args) != 1 {
			return nil, fmt.Errorf("type error: %s() over a list takes no further arguments", fname)
		}
		return args[0].List, nil
	case KindTable:
		if len(args) != 2 {
			return nil, fmt.Errorf("type error: %s() over a table needs a column name", fname)
		}
		name, err := argString(args, 1, fname)
		if err != nil {
			return nil, err
		}
		v, err := columnValues(args[0].Table, name)
		if err != nil {
			return nil, err
		}
		return v.List, nil
	default:
		return nil, fmt.Errorf("type error: %s() argument 1 must be a list or table, got %s",
			fname, args[0].TypeName())
	}
}

// numericSeries keeps only the values with a numeric view; nulls and
// unparsable text are skipped, matching how aggregates treat missing
// cells.
func numericSeries(args []Value, fname string) ([]float64, error) {
	values, err := series(args, fname)
	if err != nil {
		return nil, err
	}
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Kind == KindNull {
			continue
		}
		if f, ok := asNumber(v); ok {
			nums = append(nums, f)
		}
	}
	return nums, nil
}

func builtinSum(in *interp, args []Value) (Value, error) {
	nums, err := numericSeries(args, "sum")
	if err != nil {
		return Null(), err
	}
	var total float64
	for _, f := range nums {
		total += f
	}
	return Num(total), nil
}

func builtinMean(in *interp, args []Value) (Value, error) {
	nums, err := numericSeries(args, "mean")
	if err != nil {
		return Null(), err
	}
	if len(nums) == 0 {
		return Null(), fmt.Errorf("value error: mean of empty series")
	}
	var total float64
	for _, f := range nums {
		total += f
	}
	return Num(total / float64(len(nums))), nil
}

func builtinMin(in *interp, args []Value) (Value, error) {
	return extremum(args, "min", func(cmp int) bool { return cmp < 0 })
}

func builtinMax(in *interp, args []Value) (Value, error) {
	return extremum(args, "max", func(cmp int) bool { return cmp > 0 })
}

// extremum is numeric when every non-null value has a numeric view,
// lexicographic otherwise.
func extremum(args []Value, fname string, better func(int) bool) (Value, error) {
	values, err := series(args, fname)
	if err != nil {
		return Null(), err
	}
	var present []Value
	allNumeric := true
	for _, v := range values {
		if v.Kind == KindNull {
			continue
		}
		present = append(present, v)
		if _, ok := asNumber(v); !ok {
			allNumeric = false
		}
	}
	if len(present) == 0 {
		return Null(), fmt.Errorf("value error: %s of empty series", fname)
	}
	best := present[0]
	for _, v := range present[1:] {
		var cmp int
		if allNumeric {
			fv, _ := asNumber(v)
			fb, _ := asNumber(best)
			cmp = compareFloats(fv, fb)
		} else {
			cmp = strings.Compare(v.Render(), best.Render())
		}
		if better(cmp) {
			best = v
		}
	}
	if allNumeric {
		f, _ := asNumber(best)
		return Num(f), nil
	}
	return best, nil
}

// builtinCount counts non-null values.
func builtinCount(in *interp, args []Value) (Value, error) {
	values, err := series(args, "count")
	if err != nil {
		return Null(), err
	}
	n := 0
	for _, v := range values {
		if v.Kind != KindNull && !(v.Kind == KindString && v.Str == "") {
			n++
		}
	}
	return Num(float64(n)), nil
}

func builtinRound(in *interp, args []Value) (Value, error) {
	f, err := argNumber(args, 0, "round")
	if err != nil {
		return Null(), err
	}
	digits := 0.0
	if len(args) == 2 {
		if digits, err = argNumber(args, 1, "round"); err != nil {
			return Null(), err
		}
	}
	pow := math.Pow(10, digits)
	return Num(math.Round(f*pow) / pow), nil
}

func builtinAbs(in *interp, args []Value) (Value, error) {
	f, err := argNumber(args, 0, "abs")
	if err != nil {
		return Null(), err
	}
	return Num(math.Abs(f)), nil
}

func builtinLower(in *interp, args []Value) (Value, error) {
	return mapText(args, "lower", strings.ToLower)
}

func builtinUpper(in *interp, args []Value) (Value, error) {
	return mapText(args, "upper", strings.ToUpper)
}

func builtinTrim(in *interp, args []Value) (Value, error) {
	return mapText(args, "trim", strings.TrimSpace)
}

// mapText applies a string transform to a string or element-wise to a
// list.
func mapText(args []Value, fname string, f func(string) string) (Value, error) {
	switch args[0].Kind {
	case KindString:
		return Str(f(args[0].Str)), nil
	case KindList:
		items := make([]Value, len(args[0].List))
		for i, v := range args[0].List {
			if v.Kind == KindNull {
				items[i] = v
				continue
			}
			items[i] = Str(f(v.Render()))
		}
		return ListVal(items), nil
	default:
		return Null(), fmt.Errorf("type error: %s() argument 1 must be a string or list, got %s",
			fname, args[0].TypeName())
	}
}

func builtinConcat(in *interp, args []Value) (Value, error) {
	var b strings.Builder
	for _, v := range args {
		b.WriteString(v.Render())
	}
	return Str(b.String()), nil
}

func builtinContains(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "contains")
	if err != nil {
		return Null(), err
	}
	sub, err := argString(args, 1, "contains")
	if err != nil {
		return Null(), err
	}
	return BoolVal(strings.Contains(s, sub)), nil
}

func builtinRegexMatch(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "regex_match")
	if err != nil {
		return Null(), err
	}
	pattern, err := argString(args, 1, "regex_match")
	if err != nil {
		return Null(), err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Null(), fmt.Errorf("value error: bad pattern %q: %v", pattern, err)
	}
	return BoolVal(re.MatchString(s)), nil
}

// builtinRegexExtract returns the first match; with a capture group, the
// first group. No match yields null.
func builtinRegexExtract(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "regex_extract")
	if err != nil {
		return Null(), err
	}
	pattern, err := argString(args, 1, "regex_extract")
	if err != nil {
		return Null(), err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Null(), fmt.Errorf("value error: bad pattern %q: %v", pattern, err)
	}
	m := re.FindStringSubmatch(s)
	switch {
	case m == nil:
		return Null(), nil
	case len(m) > 1:
		return Str(m[1]), nil
	default:
		return Str(m[0]), nil
	}
}

func builtinSplit(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "split")
	if err != nil {
		return Null(), err
	}
	sep, err := argString(args, 1, "split")
	if err != nil {
		return Null(), err
	}
	parts := strings.Split(s, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = Str(p)
	}
	return ListVal(items), nil
}

func builtinToDate(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "to_date")
	if err != nil {
		return Null(), err
	}
	d, ok := table.ParseDate(s)
	if !ok {
		return Null(), fmt.Errorf("value error: cannot parse %q as a date", s)
	}
	return Str(d.Format("2006-01-02")), nil
}

// strftimeTokens maps the generator-facing date tokens onto Go layouts.
var strftimeTokens = strings.NewReplacer(
	"%Y", "2006",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%B", "January",
	"%b", "Jan",
)

func builtinDateFormat(in *interp, args []Value) (Value, error) {
	s, err := argString(args, 0, "date_format")
	if err != nil {
		return Null(), err
	}
	layout, err := argString(args, 1, "date_format")
	if err != nil {
		return Null(), err
	}
	d, ok := table.ParseDate(s)
	if !ok {
		return Null(), fmt.Errorf("value error: cannot parse %q as a date", s)
	}
	return Str(d.Format(strftimeTokens.Replace(layout))), nil
}

func builtinYear(in *interp, args []Value) (Value, error) {
	return datePart(args, "year", func(d time.Time) int { return d.Year() })
}

func builtinMonth(in *interp, args []Value) (Value, error) {
	return datePart(args, "month", func(d time.Time) int { return int(d.Month()) })
}

func datePart(args []Value, fname string, part func(time.Time) int) (Value, error) {
	s, err := argString(args, 0, fname)
	if err != nil {
		return Null(), err
	}
	d, ok := table.ParseDate(s)
	if !ok {
		return Null(), fmt.Errorf("value error: cannot parse %q as a date", s)
	}
	return Num(float64(part(d))), nil
}

func builtinToday(in *interp, args []Value) (Value, error) {
	return Str(time.Now().Format("2006-01-02")), nil
}

// builtinDisplay routes a value to the structured output channel by its
// kind: tables become a capped preview, numbers a scalar metric, strings
// go to plain output, everything else a raw rendering.
func builtinDisplay(in *interp, args []Value) (Value, error) {
	label := ""
	if len(args) == 2 {
		l, err := argString(args, 1, "display")
		if err != nil {
			return Null(), err
		}
		label = l
	}
	v := args[0]
	switch v.Kind {
	case KindTable:
		t := v.Table
		preview := t.Head(previewRowCap)
		in.components = append(in.components, Component{
			Kind:      ComponentPreview,
			Label:     label,
			Columns:   t.ColumnNames(),
			Rows:      preview.Rows,
			TotalRows: t.NumRows(),
		})
	case KindNumber:
		in.components = append(in.components, Component{
			Kind:  ComponentMetric,
			Label: label,
			Value: v.Num,
		})
		in.out.WriteString(v.Render() + "\n")
	case KindString:
		if label != "" {
			in.out.WriteString(label + ": ")
		}
		in.out.WriteString(v.Str + "\n")
	default:
		in.components = append(in.components, Component{
			Kind:  ComponentRaw,
			Label: label,
			Raw:   v.Render(),
		})
		in.out.WriteString(v.Render() + "\n")
	}
	return Null(), nil
}

func builtinPrint(in *interp, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = v.Render()
	}
	in.out.WriteString(strings.Join(parts, " ") + "\n")
	return Null(), nil
}

// builtinClarify surfaces an ambiguity back to the user instead of
// guessing.
func builtinClarify(in *interp, args []Value) (Value, error) {
	question, err := argString(args, 0, "clarify")
	if err != nil {
		return Null(), err
	}
	var options []string
	if len(args) == 2 {
		if args[1].Kind != KindList {
			return Null(), fmt.Errorf("type error: clarify() options must be a list, got %s", args[1].TypeName())
		}
		for _, v := range args[1].List {
			options = append(options, v.Render())
		}
	}
	in.components = append(in.components, Component{
		Kind:     ComponentClarification,
		Question: question,
		Options:  options,
	})
	return Null(), nil
}

func builtinLen(in *interp, args []Value) (Value, error) {
	v := args[0]
	switch v.Kind {
	case KindString:
		return Num(float64(utf8.RuneCountInString(v.Str))), nil
	case KindList:
		return Num(float64(len(v.List))), nil
	case KindMap:
		return Num(float64(len(v.Map.Keys))), nil
	case KindTable:
		return Num(float64(v.Table.NumRows())), nil
	default:
		return Null(), fmt.Errorf("type error: len() of %s", v.TypeName())
	}
}

func builtinStr(in *interp, args []Value) (Value, error) {
	return Str(args[0].Render()), nil
}

func builtinNum(in *interp, args []Value) (Value, error) {
	f, ok := asNumber(args[0])
	if !ok {
		return Null(), fmt.Errorf("value error: cannot convert %q to a number", args[0].Render())
	}
	return Num(f), nil
}
