package script

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ruslano69/datachat/pkg/fuzzy"
	"github.com/ruslano69/datachat/pkg/table"
)

// builtin is one registry entry. maxArgs of -1 means variadic.
type builtin struct {
	minArgs int
	maxArgs int
	fn      func(in *interp, args []Value) (Value, error)
}

func (b builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %d", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("exactly %d", b.minArgs)
	default:
		return fmt.Sprintf("%d to %d", b.minArgs, b.maxArgs)
	}
}

// builtins is the complete capability surface of the language.
var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		// Table shaping.
		"head":         {1, 2, builtinHead},
		"tail":         {1, 2, builtinTail},
		"filter":       {4, 4, builtinFilter},
		"filter_fuzzy": {3, 4, builtinFilterFuzzy},
		"select":       {2, -1, builtinSelect},
		"drop":         {2, -1, builtinDrop},
		"rename":       {3, 3, builtinRename},
		"sort":         {2, 3, builtinSort},
		"dropna":       {1, -1, builtinDropNA},
		"fillna":       {2, -1, builtinFillNA},
		"unique":       {2, 2, builtinUnique},
		"group_sum":    {3, 3, builtinGroupSum},
		"group_count":  {2, 2, builtinGroupCount},
		"group_mean":   {3, 3, builtinGroupMean},
		"melt":         {2, 4, builtinMelt},
		"add_column":   {3, 3, builtinAddColumn},
		"cast":         {3, 3, builtinCast},
		"replace":      {4, 4, builtinReplace},
		"trim_columns": {1, 1, builtinTrimColumns},

		// Table introspection.
		"columns": {1, 1, builtinColumns},
		"nrows":   {1, 1, builtinNRows},
		"ncols":   {1, 1, builtinNCols},
		"col":     {2, 2, builtinCol},
		"row":     {2, 2, builtinRow},

		// Numeric.
		"sum":   {1, 2, builtinSum},
		"mean":  {1, 2, builtinMean},
		"min":   {1, 2, builtinMin},
		"max":   {1, 2, builtinMax},
		"count": {1, 2, builtinCount},
		"round": {1, 2, builtinRound},
		"abs":   {1, 1, builtinAbs},

		// Text.
		"lower":         {1, 1, builtinLower},
		"upper":         {1, 1, builtinUpper},
		"trim":          {1, 1, builtinTrim},
		"concat":        {1, -1, builtinConcat},
		"contains":      {2, 2, builtinContains},
		"regex_match":   {2, 2, builtinRegexMatch},
		"regex_extract": {2, 2, builtinRegexExtract},
		"split":         {2, 2, builtinSplit},

		// Dates.
		"to_date":     {1, 1, builtinToDate},
		"date_format": {2, 2, builtinDateFormat},
		"year":        {1, 1, builtinYear},
		"month":       {1, 1, builtinMonth},
		"today":       {0, 0, builtinToday},

		// Output.
		"display": {1, 2, builtinDisplay},
		"print":   {1, -1, builtinPrint},
		"clarify": {1, 2, builtinClarify},

		// Conversion.
		"len": {1, 1, builtinLen},
		"str": {1, 1, builtinStr},
		"num": {1, 1, builtinNum},
	}
}

// Argument extraction helpers. Each returns a classified error so the
// retry prompt carries a concrete type mismatch.

func argTable(args []Value, i int, fname string) (*table.Table, error) {
	if args[i].Kind != KindTable {
		return nil, fmt.Errorf("type error: %s() argument %d must be a table, got %s",
			fname, i+1, args[i].TypeName())
	}
	return args[i].Table, nil
}

func argString(args []Value, i int, fname string) (string, error) {
	if args[i].Kind != KindString {
		return "", fmt.Errorf("type error: %s() argument %d must be a string, got %s",
			fname, i+1, args[i].TypeName())
	}
	return args[i].Str, nil
}

func argNumber(args []Value, i int, fname string) (float64, error) {
	f, ok := asNumber(args[i])
	if !ok {
		return 0, fmt.Errorf("type error: %s() argument %d must be a number, got %s",
			fname, i+1, args[i].TypeName())
	}
	return f, nil
}

// columnIndex resolves a column name, yielding the classified
// column_not_found error with the available names attached.
func columnIndex(t *table.Table, name string) (int, error) {
	if idx, ok := t.ColumnIndex(name); ok {
		return idx, nil
	}
	return 0, &ScriptError{
		Kind:    FailColumnNotFound,
		Message: fmt.Sprintf("column %q not found", name),
		Columns: t.ColumnNames(),
	}
}

// columnValues returns the cells of one column as a list value. Used by
// both col() and the df["name"] index sugar.
func columnValues(t *table.Table, name string) (Value, error) {
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	items := make([]Value, t.NumRows())
	for i, row := range t.Rows {
		items[i] = cellValue(row[idx], t.Columns[idx].Type)
	}
	return ListVal(items), nil
}

// cellValue lifts a raw cell into a script value according to the
// column's inferred type; missing cells become null.
func cellValue(cell string, dt table.DataType) Value {
	if cell == "" {
		return Null()
	}
	if table.IsNumericType(dt) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return Num(f)
		}
	}
	return Str(cell)
}

// cellNumber is the numeric view of a raw cell.
func cellNumber(cell string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	return f, err == nil
}

// nameList flattens trailing arguments that may be strings or a single
// list of strings into column names.
func nameList(args []Value, fname string) ([]string, error) {
	var names []string
	for i, a := range args {
		switch a.Kind {
		case KindString:
			names = append(names, a.Str)
		case KindList:
			for _, item := range a.List {
				if item.Kind != KindString {
					return nil, fmt.Errorf("type error: %s() column list must contain strings, got %s",
						fname, item.TypeName())
				}
				names = append(names, item.Str)
			}
		default:
			return nil, fmt.Errorf("type error: %s() argument %d must be a column name or list, got %s",
				fname, i+2, a.TypeName())
		}
	}
	return names, nil
}

func builtinHead(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "head")
	if err != nil {
		return Null(), err
	}
	n := 10.0
	if len(args) == 2 {
		if n, err = argNumber(args, 1, "head"); err != nil {
			return Null(), err
		}
	}
	return TableVal(t.Head(int(n))), nil
}

func builtinTail(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "tail")
	if err != nil {
		return Null(), err
	}
	n := 10
	if len(args) == 2 {
		f, err := argNumber(args, 1, "tail")
		if err != nil {
			return Null(), err
		}
		n = int(f)
	}
	if n < 0 {
		n = 0
	}
	if n > t.NumRows() {
		n = t.NumRows()
	}
	out := table.New(t.Name, cloneColumns(t.Columns), nil)
	for _, row := range t.Rows[t.NumRows()-n:] {
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	return TableVal(out), nil
}

func builtinFilter(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "filter")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "filter")
	if err != nil {
		return Null(), err
	}
	op, err := argString(args, 2, "filter")
	if err != nil {
		return Null(), err
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	pred, err := cellPredicate(op, args[3])
	if err != nil {
		return Null(), err
	}
	out := table.New(t.Name, cloneColumns(t.Columns), nil)
	for _, row := range t.Rows {
		if pred(row[idx]) {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return TableVal(out), nil
}

// cellPredicate compiles a filter condition. Comparison is numeric when
// both the cell and the operand parse as numbers, string otherwise.
func cellPredicate(op string, operand Value) (func(string) bool, error) {
	rhsNum, rhsIsNum := asNumber(operand)
	rhsStr := operand.Render()

	cmp := func(cell string) (int, bool) {
		if rhsIsNum {
			if f, ok := cellNumber(cell); ok {
				return compareFloats(f, rhsNum), true
			}
		}
		return strings.Compare(cell, rhsStr), true
	}

	switch op {
	case "==", "=":
		return func(cell string) bool { c, _ := cmp(cell); return c == 0 }, nil
	case "!=":
		return func(cell string) bool { c, _ := cmp(cell); return c != 0 }, nil
	case ">":
		return func(cell string) bool { c, _ := cmp(cell); return c > 0 }, nil
	case ">=":
		return func(cell string) bool { c, _ := cmp(cell); return c >= 0 }, nil
	case "<":
		return func(cell string) bool { c, _ := cmp(cell); return c < 0 }, nil
	case "<=":
		return func(cell string) bool { c, _ := cmp(cell); return c <= 0 }, nil
	case "contains":
		needle := strings.ToLower(rhsStr)
		return func(cell string) bool {
			return strings.Contains(strings.ToLower(cell), needle)
		}, nil
	default:
		return nil, fmt.Errorf("value error: unknown filter operator %q", op)
	}
}

func builtinFilterFuzzy(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "filter_fuzzy")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "filter_fuzzy")
	if err != nil {
		return Null(), err
	}
	query, err := argString(args, 2, "filter_fuzzy")
	if err != nil {
		return Null(), err
	}
	threshold := fuzzy.DefaultThreshold
	if len(args) == 4 {
		f, err := argNumber(args, 3, "filter_fuzzy")
		if err != nil {
			return Null(), err
		}
		threshold = int(f)
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	out := table.New(t.Name, cloneColumns(t.Columns), nil)
	for _, row := range t.Rows {
		if fuzzy.Matches(row[idx], query, threshold) {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return TableVal(out), nil
}

func builtinSelect(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "select")
	if err != nil {
		return Null(), err
	}
	names, err := nameList(args[1:], "select")
	if err != nil {
		return Null(), err
	}
	indices := make([]int, len(names))
	cols := make([]table.Column, len(names))
	for i, name := range names {
		idx, err := columnIndex(t, name)
		if err != nil {
			return Null(), err
		}
		indices[i] = idx
		cols[i] = t.Columns[idx]
	}
	out := table.New(t.Name, cols, nil)
	for _, row := range t.Rows {
		newRow := make([]string, len(indices))
		for i, idx := range indices {
			newRow[i] = row[idx]
		}
		out.Rows = append(out.Rows, newRow)
	}
	return TableVal(out), nil
}

func builtinDrop(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "drop")
	if err != nil {
		return Null(), err
	}
	names, err := nameList(args[1:], "drop")
	if err != nil {
		return Null(), err
	}
	dropped := make(map[int]bool, len(names))
	for _, name := range names {
		idx, err := columnIndex(t, name)
		if err != nil {
			return Null(), err
		}
		dropped[idx] = true
	}
	var cols []table.Column
	var keep []int
	for i, c := range t.Columns {
		if !dropped[i] {
			cols = append(cols, c)
			keep = append(keep, i)
		}
	}
	out := table.New(t.Name, cols, nil)
	for _, row := range t.Rows {
		newRow := make([]string, len(keep))
		for i, idx := range keep {
			newRow[i] = row[idx]
		}
		out.Rows = append(out.Rows, newRow)
	}
	return TableVal(out), nil
}

func builtinRename(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "rename")
	if err != nil {
		return Null(), err
	}
	from, err := argString(args, 1, "rename")
	if err != nil {
		return Null(), err
	}
	to, err := argString(args, 2, "rename")
	if err != nil {
		return Null(), err
	}
	idx, err := columnIndex(t, from)
	if err != nil {
		return Null(), err
	}
	out := t.Clone()
	out.Columns[idx].Name = to
	return TableVal(out), nil
}

func builtinSort(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "sort")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "sort")
	if err != nil {
		return Null(), err
	}
	descending := false
	if len(args) == 3 {
		order, err := argString(args, 2, "sort")
		if err != nil {
			return Null(), err
		}
		switch strings.ToLower(order) {
		case "asc":
		case "desc":
			descending = true
		default:
			return Null(), fmt.Errorf("value error: sort order must be \"asc\" or \"desc\", got %q", order)
		}
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	out := t.Clone()
	numeric := table.IsNumericType(t.Columns[idx].Type)
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, b := out.Rows[i][idx], out.Rows[j][idx]
		// Missing cells sort last regardless of direction.
		if a == "" || b == "" {
			return b == "" && a != ""
		}
		var less bool
		if numeric {
			fa, okA := cellNumber(a)
			fb, okB := cellNumber(b)
			if okA && okB {
				less = fa < fb
			} else {
				less = a < b
			}
		} else {
			less = a < b
		}
		if descending {
			return !less && a != b
		}
		return less
	})
	return TableVal(out), nil
}

func builtinDropNA(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "dropna")
	if err != nil {
		return Null(), err
	}
	indices, err := columnSubset(t, args[1:], "dropna")
	if err != nil {
		return Null(), err
	}
	out := table.New(t.Name, cloneColumns(t.Columns), nil)
	for _, row := range t.Rows {
		complete := true
		for _, idx := range indices {
			if row[idx] == "" {
				complete = false
				break
			}
		}
		if complete {
			out.Rows = append(out.Rows, append([]string(nil), row...))
		}
	}
	return TableVal(out), nil
}

func builtinFillNA(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "fillna")
	if err != nil {
		return Null(), err
	}
	fill := args[1].Render()
	indices, err := columnSubset(t, args[2:], "fillna")
	if err != nil {
		return Null(), err
	}
	out := t.Clone()
	for _, row := range out.Rows {
		for _, idx := range indices {
			if row[idx] == "" {
				row[idx] = fill
			}
		}
	}
	return TableVal(out), nil
}

// columnSubset resolves trailing column-name arguments; empty means
// every column.
func columnSubset(t *table.Table, args []Value, fname string) ([]int, error) {
	if len(args) == 0 {
		indices := make([]int, t.NumCols())
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}
	names, err := nameList(args, fname)
	if err != nil {
		return nil, err
	}
	indices := make([]int, len(names))
	for i, name := range names {
		idx, err := columnIndex(t, name)
		if err != nil {
			return nil, err
		}
		indices[i] = idx
	}
	return indices, nil
}

func builtinUnique(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "unique")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "unique")
	if err != nil {
		return Null(), err
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	seen := make(map[string]bool)
	var items []Value
	for _, row := range t.Rows {
		cell := row[idx]
		if seen[cell] {
			continue
		}
		seen[cell] = true
		items = append(items, cellValue(cell, t.Columns[idx].Type))
	}
	return ListVal(items), nil
}

// groupBy collects row indices per distinct key cell, in first-seen
// order.
func groupBy(t *table.Table, keyIdx int) ([]string, map[string][]int) {
	var keys []string
	groups := make(map[string][]int)
	for i, row := range t.Rows {
		k := row[keyIdx]
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	return keys, groups
}

func builtinGroupSum(in *interp, args []Value) (Value, error) {
	return groupAggregate(args, "group_sum", "sum", func(values []float64) float64 {
		var total float64
		for _, v := range values {
			total += v
		}
		return total
	})
}

func builtinGroupMean(in *interp, args []Value) (Value, error) {
	return groupAggregate(args, "group_mean", "mean", func(values []float64) float64 {
		if len(values) == 0 {
			return 0
		}
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	})
}

func groupAggregate(args []Value, fname, resultCol string, agg func([]float64) float64) (Value, error) {
	t, err := argTable(args, 0, fname)
	if err != nil {
		return Null(), err
	}
	keyName, err := argString(args, 1, fname)
	if err != nil {
		return Null(), err
	}
	valName, err := argString(args, 2, fname)
	if err != nil {
		return Null(), err
	}
	keyIdx, err := columnIndex(t, keyName)
	if err != nil {
		return Null(), err
	}
	valIdx, err := columnIndex(t, valName)
	if err != nil {
		return Null(), err
	}
	keys, groups := groupBy(t, keyIdx)
	out := table.New(t.Name, []table.Column{
		t.Columns[keyIdx],
		{Name: valName + "_" + resultCol, Type: table.TypeReal},
	}, nil)
	for _, k := range keys {
		var values []float64
		for _, i := range groups[k] {
			if f, ok := cellNumber(t.Rows[i][valIdx]); ok {
				values = append(values, f)
			}
		}
		out.Rows = append(out.Rows, []string{k, FormatNumber(agg(values))})
	}
	return TableVal(out), nil
}

func builtinGroupCount(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "group_count")
	if err != nil {
		return Null(), err
	}
	keyName, err := argString(args, 1, "group_count")
	if err != nil {
		return Null(), err
	}
	keyIdx, err := columnIndex(t, keyName)
	if err != nil {
		return Null(), err
	}
	keys, groups := groupBy(t, keyIdx)
	out := table.New(t.Name, []table.Column{
		t.Columns[keyIdx],
		{Name: "count", Type: table.TypeInteger, Width: 64},
	}, nil)
	for _, k := range keys {
		out.Rows = append(out.Rows, []string{k, strconv.Itoa(len(groups[k]))})
	}
	return TableVal(out), nil
}

// builtinMelt unpivots value columns into variable/value pairs, keeping
// the id columns on every emitted row.
func builtinMelt(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "melt")
	if err != nil {
		return Null(), err
	}
	idNames, err := nameList(args[1:2], "melt")
	if err != nil {
		return Null(), err
	}
	varName, valueName := "variable", "value"
	if len(args) >= 3 {
		if varName, err = argString(args, 2, "melt"); err != nil {
			return Null(), err
		}
	}
	if len(args) == 4 {
		if valueName, err = argString(args, 3, "melt"); err != nil {
			return Null(), err
		}
	}
	idIdx := make([]int, len(idNames))
	isID := make(map[int]bool, len(idNames))
	for i, name := range idNames {
		idx, err := columnIndex(t, name)
		if err != nil {
			return Null(), err
		}
		idIdx[i] = idx
		isID[idx] = true
	}
	var valueIdx []int
	for i := range t.Columns {
		if !isID[i] {
			valueIdx = append(valueIdx, i)
		}
	}
	cols := make([]table.Column, 0, len(idNames)+2)
	for _, idx := range idIdx {
		cols = append(cols, t.Columns[idx])
	}
	cols = append(cols,
		table.Column{Name: varName, Type: table.TypeText},
		table.Column{Name: valueName, Type: table.TypeText},
	)
	out := table.New(t.Name, cols, nil)
	for _, row := range t.Rows {
		for _, vi := range valueIdx {
			newRow := make([]string, 0, len(cols))
			for _, idx := range idIdx {
				newRow = append(newRow, row[idx])
			}
			newRow = append(newRow, t.Columns[vi].Name, row[vi])
			out.Rows = append(out.Rows, newRow)
		}
	}
	return TableVal(out), nil
}

func builtinAddColumn(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "add_column")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "add_column")
	if err != nil {
		return Null(), err
	}
	out := t.Clone()
	switch args[2].Kind {
	case KindList:
		if len(args[2].List) != t.NumRows() {
			return Null(), fmt.Errorf("value error: add_column list has %d values, table has %d rows",
				len(args[2].List), t.NumRows())
		}
		for i, row := range out.Rows {
			out.Rows[i] = append(row, args[2].List[i].Render())
		}
	default:
		cell := args[2].Render()
		for i, row := range out.Rows {
			out.Rows[i] = append(row, cell)
		}
	}
	values := make([]string, out.NumRows())
	for i, row := range out.Rows {
		values[i] = row[len(row)-1]
	}
	dt, mixed := table.InferColumnType(values)
	out.Columns = append(out.Columns, table.Column{Name: name, Type: dt, Mixed: mixed})
	return TableVal(out), nil
}

func builtinCast(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "cast")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "cast")
	if err != nil {
		return Null(), err
	}
	typeName, err := argString(args, 2, "cast")
	if err != nil {
		return Null(), err
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	var target table.DataType
	switch strings.ToLower(typeName) {
	case "integer", "int":
		target = table.TypeInteger
	case "real", "float", "number":
		target = table.TypeReal
	case "text", "string":
		target = table.TypeText
	case "date":
		target = table.TypeDate
	default:
		return Null(), fmt.Errorf("value error: unknown type %q (integer, real, text, date)", typeName)
	}
	out := t.Clone()
	for _, row := range out.Rows {
		cell := strings.TrimSpace(row[idx])
		if cell == "" {
			row[idx] = ""
			continue
		}
		switch target {
		case table.TypeInteger:
			f, ok := cellNumber(cell)
			if !ok {
				return Null(), fmt.Errorf("value error: cannot cast %q to integer", cell)
			}
			row[idx] = strconv.FormatInt(int64(f), 10)
		case table.TypeReal:
			f, ok := cellNumber(cell)
			if !ok {
				return Null(), fmt.Errorf("value error: cannot cast %q to real", cell)
			}
			row[idx] = FormatNumber(f)
		case table.TypeDate:
			d, ok := table.ParseDate(cell)
			if !ok {
				return Null(), fmt.Errorf("value error: cannot cast %q to date", cell)
			}
			row[idx] = d.Format("2006-01-02")
		case table.TypeText:
			row[idx] = cell
		}
	}
	out.Columns[idx].Type = target
	out.Columns[idx].Mixed = false
	if target == table.TypeInteger {
		values := make([]string, out.NumRows())
		for i, row := range out.Rows {
			values[i] = row[idx]
		}
		out.Columns[idx].Width = table.IntegerWidth(values)
	} else {
		out.Columns[idx].Width = 0
	}
	return TableVal(out), nil
}

func builtinReplace(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "replace")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "replace")
	if err != nil {
		return Null(), err
	}
	idx, err := columnIndex(t, name)
	if err != nil {
		return Null(), err
	}
	old := args[2].Render()
	repl := args[3].Render()
	out := t.Clone()
	for _, row := range out.Rows {
		if row[idx] == old {
			row[idx] = repl
		}
	}
	return TableVal(out), nil
}

// builtinTrimColumns strips surrounding whitespace from column names and
// every cell.
func builtinTrimColumns(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "trim_columns")
	if err != nil {
		return Null(), err
	}
	out := t.Clone()
	for i := range out.Columns {
		out.Columns[i].Name = strings.TrimSpace(out.Columns[i].Name)
	}
	for _, row := range out.Rows {
		for j, cell := range row {
			row[j] = strings.TrimSpace(cell)
		}
	}
	return TableVal(out), nil
}

func builtinColumns(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "columns")
	if err != nil {
		return Null(), err
	}
	items := make([]Value, t.NumCols())
	for i, name := range t.ColumnNames() {
		items[i] = Str(name)
	}
	return ListVal(items), nil
}

func builtinNRows(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "nrows")
	if err != nil {
		return Null(), err
	}
	return Num(float64(t.NumRows())), nil
}

func builtinNCols(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "ncols")
	if err != nil {
		return Null(), err
	}
	return Num(float64(t.NumCols())), nil
}

func builtinCol(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "col")
	if err != nil {
		return Null(), err
	}
	name, err := argString(args, 1, "col")
	if err != nil {
		return Null(), err
	}
	return columnValues(t, name)
}

func builtinRow(in *interp, args []Value) (Value, error) {
	t, err := argTable(args, 0, "row")
	if err != nil {
		return Null(), err
	}
	f, err := argNumber(args, 1, "row")
	if err != nil {
		return Null(), err
	}
	i := int(f)
	if i < 0 {
		i += t.NumRows()
	}
	if i < 0 || i >= t.NumRows() {
		return Null(), fmt.Errorf("value error: row index %d out of range (%d rows)", int(f), t.NumRows())
	}
	m := NewMap()
	for j, c := range t.Columns {
		m.Set(c.Name, cellValue(t.Rows[i][j], c.Type))
	}
	return MapVal(m), nil
}

func cloneColumns(cols []table.Column) []table.Column {
	return append([]table.Column(nil), cols...)
}
