package script

import (
	"fmt"
	"strings"
)

// forbiddenPatterns are scanned for in transform-mode scripts before
// execution. None of these are functions the interpreter knows — the
// registry is the real capability boundary — but an untrusted generator
// that emits them is either confused or probing, and either way the
// script must be rejected without running anything, not failed at
// runtime.
var forbiddenPatterns = []string{
	"read_csv",
	"read_excel",
	"read_table",
	"read_file",
	"load_file",
	"open(",
	"import ",
	"exec(",
	"eval(",
}

// CheckForbidden scans code for denylisted file-read and escape
// primitives. A non-nil error means dangerous-code rejection: the
// script must never reach the executor.
func CheckForbidden(code string) error {
	folded := strings.ToLower(code)
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(folded, pattern) {
			return fmt.Errorf("forbidden operation %q in generated code", strings.TrimSuffix(pattern, "("))
		}
	}
	return nil
}
