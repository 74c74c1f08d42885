// Package loader reads tabular source files (CSV/TSV/TXT/XLS/XLSX) into
// typed tables, with a content-keyed cache fast path.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/datachat/pkg/table"
	"github.com/ruslano69/datachat/pkg/tablecache"
)

// ErrUnsupportedFormat is returned before any I/O when the file extension
// is not on the allow-list.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// allowedExtensions is the full set of loadable source formats.
var allowedExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xls":  true,
	".xlsx": true,
}

// Loader parses source files and keeps the results in a table cache.
type Loader struct {
	cache  *tablecache.Store
	logger zerolog.Logger
}

// New creates a Loader. cache may be nil, which disables the fast path
// and the write-through.
func New(cache *tablecache.Store, logger zerolog.Logger) *Loader {
	return &Loader{cache: cache, logger: logger}
}

// Load reads the file at path (sheet selects the worksheet for Excel
// sources; ignored otherwise). When a cache entry exists and is newer
// than the source file, the cached table is returned without parsing.
// Cache writes are best-effort: a persist failure is logged, never
// returned.
func (l *Loader) Load(path, sheet string) (*table.Table, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %q (supported: csv, tsv, txt, xls, xlsx)",
			ErrUnsupportedFormat, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loader: stat %q: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	key := tablecache.FileKey(abs, sheet)

	if l.cache != nil {
		if cachedAt := l.cache.CachedAt(key); !cachedAt.IsZero() && cachedAt.After(info.ModTime()) {
			t, _, err := l.cache.Load(key)
			if err == nil {
				l.logger.Debug().Str("path", path).Str("key", key).Msg("cache hit")
				return t, nil
			}
			l.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, reparsing source")
		}
	}

	var t *table.Table
	switch ext {
	case ".csv":
		t, err = l.loadDelimited(path, ',')
	case ".tsv", ".txt":
		t, err = l.loadDelimited(path, '\t')
	default:
		t, err = l.loadExcel(path, sheet)
	}
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		meta := tablecache.Metadata{
			DisplayName: displayName(path),
			SourceFile:  filepath.Base(path),
			Sheet:       sheet,
		}
		if err := l.cache.Store(key, t, meta); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return t, nil
}

// loadDelimited parses CSV/TSV with ragged-row tolerance. The first row
// is the header; missing cells become the empty sentinel.
func (l *Loader) loadDelimited(path string, delim rune) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = delim
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("loader: parse %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("loader: %q is empty", path)
	}
	return buildTable(displayName(path), records[0], records[1:]), nil
}

// loadExcel parses a workbook sheet via excelize. Legacy .xls files that
// excelize cannot open surface a parse error here, after the allow-list
// check.
func (l *Loader) loadExcel(path, sheet string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open workbook %q: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("loader: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("loader: sheet %q is empty", sheet)
	}
	return buildTable(sheet, rows[0], rows[1:]), nil
}

// buildTable normalizes the header, trims cells, infers the schema and
// assembles the table. Blank header cells get positional names so the
// unique-column invariant holds from the start.
func buildTable(name string, header []string, rows [][]string) *table.Table {
	cleanHeader := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		base := h
		if n := seen[base]; n > 0 {
			h = fmt.Sprintf("%s_%d", base, n+1)
		}
		seen[base]++
		cleanHeader[i] = h
	}

	cleanRows := make([][]string, len(rows))
	for i, row := range rows {
		clean := make([]string, len(cleanHeader))
		for j := range cleanHeader {
			if j < len(row) {
				clean[j] = strings.TrimSpace(row[j])
			}
		}
		cleanRows[i] = clean
	}

	cols := table.InferSchema(cleanHeader, cleanRows)
	return table.New(name, cols, cleanRows)
}

func displayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
