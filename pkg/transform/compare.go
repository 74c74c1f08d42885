package transform

import (
	"fmt"

	"github.com/ruslano69/datachat/pkg/table"
)

// Severity grades a structural issue. Critical issues block
// convergence; warnings are recorded and accepted.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Issue is one finding from the before/after comparison.
type Issue struct {
	Severity Severity
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
}

// CompareStructure checks a transform output against its input. The
// policy is permissive on purpose: legitimate cleaning drops some rows
// and columns, so only catastrophic data loss is critical. A column
// drop over half the original is downgraded to a warning when the row
// count grew by more than 1.5x, which signals a wide-to-long reshape
// rather than loss.
func CompareStructure(original, transformed *table.Table) []Issue {
	var issues []Issue

	if transformed.NumRows() == 0 {
		issues = append(issues, Issue{SeverityCritical, "transform produced an empty table"})
	}
	if transformed.NumCols() == 0 {
		issues = append(issues, Issue{SeverityCritical, "transform produced a table with no columns"})
		return issues
	}

	origCols, newCols := original.NumCols(), transformed.NumCols()
	if origCols > 0 && newCols < origCols {
		dropped := float64(origCols-newCols) / float64(origCols)
		if dropped > 0.5 {
			severity := SeverityCritical
			if original.NumRows() > 0 &&
				float64(transformed.NumRows()) > 1.5*float64(original.NumRows()) {
				// Row growth alongside the column drop signals an
				// unpivot, not data loss.
				severity = SeverityWarning
			}
			issues = append(issues, Issue{
				severity,
				fmt.Sprintf("column count dropped from %d to %d", origCols, newCols),
			})
		}
	}

	origRows, newRows := original.NumRows(), transformed.NumRows()
	if origRows > 0 && newRows < origRows {
		lost := float64(origRows-newRows) / float64(origRows)
		if lost > 0.8 {
			issues = append(issues, Issue{
				SeverityCritical,
				fmt.Sprintf("row count dropped from %d to %d (over 80%% lost)", origRows, newRows),
			})
		}
	}

	return issues
}

// HasCritical reports whether any issue blocks convergence.
func HasCritical(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
