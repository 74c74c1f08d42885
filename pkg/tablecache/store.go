// Package tablecache persists materialized tables in a compressed
// column-major on-disk format with a YAML metadata sidecar per entry.
//
// Keys are content-derived: file-backed entries hash (path, sheet),
// transform-derived entries hash the table data plus the code that
// produced it, so the same display name can have multiple cached
// variants. Access is serialized per key; distinct keys are safely
// parallel.
package tablecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/datachat/pkg/table"
)

const (
	blockExt = ".dcc"
	metaExt  = ".meta.yaml"
)

// Metadata is the sidecar record written next to each cache block.
type Metadata struct {
	DisplayName        string            `yaml:"display_name"`
	SourceFile         string            `yaml:"source_file,omitempty"`
	Sheet              string            `yaml:"sheet,omitempty"`
	Rows               int               `yaml:"rows"`
	Cols               int               `yaml:"cols"`
	CachedAt           time.Time         `yaml:"cached_at"`
	Description        string            `yaml:"description,omitempty"`
	ColumnDescriptions map[string]string `yaml:"column_descriptions,omitempty"`
	TransformCode      string            `yaml:"transform_code,omitempty"`
	TransformNote      string            `yaml:"transform_note,omitempty"`
	FromTransform      bool              `yaml:"from_transform,omitempty"`
}

// Store is the on-disk table cache.
type Store struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens (creating if needed) a cache directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tablecache: create dir %q: %w", dir, err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("tablecache: create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("tablecache: create zstd decoder: %w", err)
	}
	return &Store{
		dir:     dir,
		encoder: encoder,
		decoder: decoder,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the compressor resources.
func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

// FileKey derives the cache key for a (source path, sheet) pair.
func FileKey(path, sheet string) string {
	h := xxh3.HashString(path + "\x00" + sheet)
	return fmt.Sprintf("f-%016x", h)
}

// TableKey derives a content key for a transform-derived table: hash of
// the cell data plus the producing code, so re-running a different
// transform over the same source forks a new entry instead of
// overwriting.
func TableKey(t *table.Table, transformCode string) string {
	h := xxh3.New()
	for _, c := range t.Columns {
		_, _ = h.WriteString(c.Name)
		_, _ = h.WriteString("\x1f")
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			_, _ = h.WriteString(cell)
			_, _ = h.WriteString("\x1f")
		}
		_, _ = h.WriteString("\x1e")
	}
	_, _ = h.WriteString(transformCode)
	return fmt.Sprintf("t-%016x", h.Sum64())
}

// keyLock returns the per-key mutex, creating it on first use.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Store writes the table block and metadata sidecar under key,
// overwriting any previous entry. The table is sanitized first: mixed
// columns become TEXT so the columnar encoding never sees a
// heterogeneous column. Row/column counts in the metadata are taken from
// the materialized table at write time.
func (s *Store) Store(key string, t *table.Table, meta Metadata) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	sanitized := Sanitize(t)
	meta.Rows = sanitized.NumRows()
	meta.Cols = sanitized.NumCols()
	if meta.CachedAt.IsZero() {
		meta.CachedAt = time.Now().UTC()
	}

	block, err := encodeColumnar(sanitized)
	if err != nil {
		return fmt.Errorf("tablecache: encode %q: %w", key, err)
	}
	compressed := s.encoder.EncodeAll(block, nil)

	blockPath := filepath.Join(s.dir, key+blockExt)
	if err := writeAtomic(blockPath, compressed); err != nil {
		return fmt.Errorf("tablecache: write block %q: %w", key, err)
	}

	metaBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("tablecache: marshal metadata %q: %w", key, err)
	}
	if err := writeAtomic(filepath.Join(s.dir, key+metaExt), metaBytes); err != nil {
		return fmt.Errorf("tablecache: write metadata %q: %w", key, err)
	}
	return nil
}

// Load reads the table and metadata stored under key.
func (s *Store) Load(key string) (*table.Table, *Metadata, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	compressed, err := os.ReadFile(filepath.Join(s.dir, key+blockExt))
	if err != nil {
		return nil, nil, fmt.Errorf("tablecache: read block %q: %w", key, err)
	}
	block, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("tablecache: decompress %q: %w", key, err)
	}
	t, err := decodeColumnar(block)
	if err != nil {
		return nil, nil, fmt.Errorf("tablecache: decode %q: %w", key, err)
	}

	meta := &Metadata{}
	metaBytes, err := os.ReadFile(filepath.Join(s.dir, key+metaExt))
	if err == nil {
		if err := yaml.Unmarshal(metaBytes, meta); err != nil {
			return nil, nil, fmt.Errorf("tablecache: parse metadata %q: %w", key, err)
		}
	}
	return t, meta, nil
}

// CachedAt returns the write time of the entry, or zero when absent.
// The loader compares it against the source file's mtime for the fast
// path.
func (s *Store) CachedAt(key string) time.Time {
	info, err := os.Stat(filepath.Join(s.dir, key+blockExt))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Delete evicts an entry. Missing entries are not an error.
func (s *Store) Delete(key string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	for _, ext := range []string{blockExt, metaExt} {
		if err := os.Remove(filepath.Join(s.dir, key+ext)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("tablecache: delete %q: %w", key, err)
		}
	}
	return nil
}

// BuildFromTable caches a transform result under a fresh content-derived
// key and returns the key. Used when the source of truth is a transform
// rather than a file.
func (s *Store) BuildFromTable(t *table.Table, displayName string, meta Metadata) (string, error) {
	key := TableKey(t, meta.TransformCode)
	meta.DisplayName = displayName
	meta.FromTransform = true
	if err := s.Store(key, t, meta); err != nil {
		return "", err
	}
	return key, nil
}

// Sanitize returns a copy safe for columnar serialization: every column
// whose runtime type is heterogeneous is coerced to TEXT. Missing values
// stay the empty sentinel and are written with a null marker, never a
// literal "None".
func Sanitize(t *table.Table) *table.Table {
	out := t.Clone()
	for i := range out.Columns {
		if out.Columns[i].Mixed {
			out.Columns[i].Type = table.TypeText
			out.Columns[i].Width = 0
			out.Columns[i].Mixed = false
		}
	}
	return out
}

// writeAtomic writes via a temp file + rename so a reader under the same
// key lock never observes a half-written entry after a crash.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
