package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the formats recognised during type inference, tried in
// order. Layouts with time components come last so plain dates win.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// InferColumnType inspects raw cell values and returns the narrowest type
// that accepts every non-missing value, plus a mixed flag when numeric and
// non-numeric values coexist in the same column.
func InferColumnType(values []string) (dt DataType, mixed bool) {
	var total, ints, reals, dates int
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		total++
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			ints++
			reals++ // every integer is also a valid real
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			reals++
			continue
		}
		if parseDate(v) != nil {
			dates++
		}
	}
	switch {
	case total == 0:
		return TypeText, false
	case ints == total:
		return TypeInteger, false
	case reals == total:
		return TypeReal, false
	case dates == total:
		return TypeDate, false
	default:
		// Heterogeneous column: numbers mixed with free text must be
		// flagged so the cache write coerces it to TEXT.
		return TypeText, reals > 0 || dates > 0
	}
}

// IntegerWidth returns the smallest bit width (8, 16, 32, 64) that holds
// every value of an INTEGER column.
func IntegerWidth(values []string) int {
	width := 8
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 64
		}
		switch {
		case n >= math.MinInt8 && n <= math.MaxInt8:
		case n >= math.MinInt16 && n <= math.MaxInt16:
			if width < 16 {
				width = 16
			}
		case n >= math.MinInt32 && n <= math.MaxInt32:
			if width < 32 {
				width = 32
			}
		default:
			return 64
		}
	}
	return width
}

// parseDate returns the parsed time for a recognised date string, nil
// otherwise.
func parseDate(v string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// ParseDate parses a cell using the same layouts type inference accepts.
func ParseDate(v string) (time.Time, bool) {
	if t := parseDate(strings.TrimSpace(v)); t != nil {
		return *t, true
	}
	return time.Time{}, false
}

// InferSchema builds the typed schema for raw rows under the given header.
func InferSchema(header []string, rows [][]string) []Column {
	cols := make([]Column, len(header))
	for i, name := range header {
		values := make([]string, 0, len(rows))
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		dt, mixed := InferColumnType(values)
		col := Column{Name: name, Type: dt, Mixed: mixed}
		if dt == TypeInteger {
			col.Width = IntegerWidth(values)
		}
		cols[i] = col
	}
	return cols
}
