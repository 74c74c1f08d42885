package tablecache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/datachat/pkg/table"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func sampleTable() *table.Table {
	return table.New("sales",
		[]table.Column{
			{Name: "id", Type: table.TypeInteger, Width: 8},
			{Name: "region", Type: table.TypeText},
			{Name: "amount", Type: table.TypeReal},
		},
		[][]string{
			{"1", "north", "10.5"},
			{"2", "", "20.0"},
			{"3", "south", ""},
		})
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	orig := sampleTable()

	key := FileKey("/data/sales.csv", "Sheet1")
	if err := store.Store(key, orig, Metadata{DisplayName: "Sales"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	loaded, meta, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.Equal(orig) {
		t.Error("loaded table differs from stored table")
	}
	if loaded.Columns[0].Type != table.TypeInteger || loaded.Columns[0].Width != 8 {
		t.Errorf("schema not preserved: %+v", loaded.Columns[0])
	}
	if meta.Rows != 3 || meta.Cols != 3 {
		t.Errorf("metadata counts = %d/%d, want 3/3", meta.Rows, meta.Cols)
	}
	if meta.DisplayName != "Sales" {
		t.Errorf("display name = %q", meta.DisplayName)
	}
}

func TestStore_MetadataCountsMatchTableAtWriteTime(t *testing.T) {
	store := newTestStore(t)
	key := FileKey("/data/x.csv", "")

	// Caller-supplied counts are ignored; the materialized table wins.
	err := store.Store(key, sampleTable(), Metadata{Rows: 999, Cols: 999})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	_, meta, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.Rows != 3 || meta.Cols != 3 {
		t.Errorf("metadata counts = %d/%d, want table's 3/3", meta.Rows, meta.Cols)
	}
}

func TestSanitize_CoercesMixedColumnsToText(t *testing.T) {
	tbl := table.New("t",
		[]table.Column{{Name: "v", Type: table.TypeText, Mixed: true, Width: 0}},
		[][]string{{"100"}, {"n/a"}})

	clean := Sanitize(tbl)
	if clean.Columns[0].Type != table.TypeText || clean.Columns[0].Mixed {
		t.Errorf("sanitized column = %+v, want plain TEXT", clean.Columns[0])
	}
	// Sanitize never mutates the caller's table.
	if !tbl.Columns[0].Mixed {
		t.Error("Sanitize mutated its input")
	}
}

func TestRoundTrip_PreservesMissingAsEmpty(t *testing.T) {
	store := newTestStore(t)
	key := FileKey("/data/m.csv", "")
	if err := store.Store(key, sampleTable(), Metadata{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	loaded, _, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Rows[1][1] != "" || loaded.Rows[2][2] != "" {
		t.Errorf("missing cells = %q, %q; want empty sentinel, never \"None\"",
			loaded.Rows[1][1], loaded.Rows[2][2])
	}
}

func TestKeys_FileAndTableKeysAreDistinct(t *testing.T) {
	fk := FileKey("/data/sales.csv", "Sheet1")
	tk := TableKey(sampleTable(), "result = df")
	if !strings.HasPrefix(fk, "f-") {
		t.Errorf("file key %q lacks f- prefix", fk)
	}
	if !strings.HasPrefix(tk, "t-") {
		t.Errorf("table key %q lacks t- prefix", tk)
	}
	if FileKey("/data/sales.csv", "Sheet1") != fk {
		t.Error("FileKey not deterministic")
	}
	// Different transform code over the same data forks a new key.
	if TableKey(sampleTable(), "other code") == tk {
		t.Error("TableKey ignores the producing code")
	}
}

func TestBuildFromTable_ForksFreshEntry(t *testing.T) {
	store := newTestStore(t)
	key, err := store.BuildFromTable(sampleTable(), "Sales (cleaned)", Metadata{
		TransformCode: "result = dropna(df, \"region\")",
		TransformNote: "dropped empty regions",
	})
	if err != nil {
		t.Fatalf("BuildFromTable() error = %v", err)
	}
	_, meta, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !meta.FromTransform {
		t.Error("FromTransform marker not set")
	}
	if meta.DisplayName != "Sales (cleaned)" {
		t.Errorf("display name = %q", meta.DisplayName)
	}
}

func TestCachedAt_ZeroWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	if !store.CachedAt("f-0000000000000000").IsZero() {
		t.Error("CachedAt for missing entry is not zero")
	}
}

func TestDelete_Evicts(t *testing.T) {
	store := newTestStore(t)
	key := FileKey("/data/del.csv", "")
	if err := store.Store(key, sampleTable(), Metadata{}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, err := store.Load(key); err == nil {
		t.Error("Load() after Delete() succeeded")
	}
	// Deleting again is not an error.
	if err := store.Delete(key); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestRunPublisher_PublishesStateWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := NewRunPublisher(client, time.Minute)

	started := time.Now().Add(-2 * time.Second)
	err := pub.Publish(context.Background(), RunResult{
		RunID:      "run-1",
		Kind:       "answer",
		Dataset:    "sales",
		Iterations: 2,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, nil)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	raw, err := mr.Get("datachat:run:run-1")
	if err != nil {
		t.Fatalf("redis GET error = %v", err)
	}
	var result RunResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal published result: %v", err)
	}
	if result.Status != "success" {
		t.Errorf("status = %q, want success", result.Status)
	}
	if result.DurationMs <= 0 {
		t.Errorf("duration = %d, want positive", result.DurationMs)
	}
	if mr.TTL("datachat:run:run-1") <= 0 {
		t.Error("state key has no TTL")
	}
}

func TestRunPublisher_FailedRunCarriesError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pub := NewRunPublisher(client, time.Minute)

	err := pub.Publish(context.Background(), RunResult{
		RunID:      "run-2",
		Kind:       "transform",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}, context.DeadlineExceeded)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	raw, _ := mr.Get("datachat:run:run-2")
	var result RunResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Status != "failed" || result.Error == nil {
		t.Errorf("result = %+v, want failed with error", result)
	}
}
