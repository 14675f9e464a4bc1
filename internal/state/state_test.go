package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/pkg/models"
)

func newRecord(id string) models.RunRecord {
	return models.RunRecord{
		ID:          id,
		RequestText: "request " + id,
		Status:      models.RunStatusDone,
		Outcomes: []models.SubtaskOutcome{
			{Index: 1, Title: "A", Routing: models.RoutingDelegated, Output: "a"},
		},
		Trace:           []models.TraceEntry{{Role: models.RoleDecomposer, Content: "[]"}},
		Artifacts:       &models.ArtifactRefs{SourceRef: "/files/" + id + ".adoc", RenderedRef: "/files/" + id + ".pdf"},
		StartedAt:       time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		DurationSeconds: 1.5,
	}
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := OpenSQL(context.Background(), "sqlite", filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// stores returns every store implementation that runs without external services.
func stores(t *testing.T) map[string]HistoryStore {
	return map[string]HistoryStore{
		"memory": NewMemoryStore(),
		"sqlite": openSQLite(t),
	}
}

func TestHistoryStore_AppendListClear(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.List(ctx, "alice")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("unknown identity should have an empty, non-nil history: %#v", got)
			}

			want := []models.RunRecord{newRecord("r1"), newRecord("r2"), newRecord("r3")}
			for _, rec := range want {
				if err := s.Append(ctx, "alice", rec); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			if err := s.Append(ctx, "bob", newRecord("b1")); err != nil {
				t.Fatalf("Append: %v", err)
			}

			got, err = s.List(ctx, "alice")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}

			if err := s.Clear(ctx, "alice"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			got, err = s.List(ctx, "alice")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("cleared history has %d records", len(got))
			}

			other, err := s.List(ctx, "bob")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(other) != 1 {
				t.Errorf("clearing alice must not touch bob, got %d records", len(other))
			}

			if err := s.Ping(ctx); err != nil {
				t.Errorf("Ping: %v", err)
			}
		})
	}
}

func TestHistoryStore_InvalidIdentity(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Append(ctx, " ", newRecord("x")); !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("Append: expected ErrInvalidIdentity, got %v", err)
			}
			if _, err := s.List(ctx, ""); !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("List: expected ErrInvalidIdentity, got %v", err)
			}
			if err := s.Clear(ctx, ""); !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("Clear: expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestHistoryStore_ConcurrentAppend(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const writers = 20

			var wg sync.WaitGroup
			errs := make(chan error, writers*2)
			for i := 0; i < writers; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					errs <- s.Append(ctx, "shared", newRecord(fmt.Sprintf("s%d", i)))
				}(i)
				go func(i int) {
					defer wg.Done()
					errs <- s.Append(ctx, fmt.Sprintf("user-%d", i), newRecord("own"))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("Append: %v", err)
				}
			}

			got, err := s.List(ctx, "shared")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != writers {
				t.Errorf("got %d records, want %d: appends were lost", len(got), writers)
			}
		})
	}
}

func TestHistoryStore_ConcurrentClearAndAppend(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					if err := s.Append(ctx, "u", newRecord(fmt.Sprintf("r%d", i))); err != nil {
						t.Errorf("Append: %v", err)
					}
				}(i)
				go func() {
					defer wg.Done()
					if err := s.Clear(ctx, "u"); err != nil {
						t.Errorf("Clear: %v", err)
					}
				}()
			}
			wg.Wait()

			got, err := s.List(ctx, "u")
			if err != nil {
				t.Fatalf("history corrupted: %v", err)
			}
			if len(got) > 10 {
				t.Errorf("got %d records, at most 10 were appended", len(got))
			}
			for _, rec := range got {
				if rec.ID == "" || rec.Status != models.RunStatusDone {
					t.Errorf("partial record in history: %+v", rec)
				}
			}
		})
	}
}

func TestDB_ReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := OpenSQL(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	if err := db.Append(ctx, "alice", newRecord("r1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	db.Close()

	db, err = OpenSQL(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" {
		t.Errorf("unexpected history after reopen: %+v", got)
	}

	var version int
	if err := db.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestDB_PurgeStale(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	if err := db.Append(ctx, "fresh", newRecord("f")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := db.conn.Exec(`INSERT INTO run_history (identity, records, updated_at) VALUES ('old', '[]', '2000-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := db.PurgeStale(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeStale: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	got, err := db.List(ctx, "fresh")
	if err != nil || len(got) != 1 {
		t.Errorf("fresh history should survive: %v %+v", err, got)
	}
}

func TestDB_SQLite3Driver(t *testing.T) {
	db, err := OpenSQL(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "cgo.db"))
	if err != nil {
		t.Skipf("sqlite3 driver unavailable: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Append(ctx, "u", newRecord("r")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := db.List(ctx, "u")
	if err != nil || len(got) != 1 {
		t.Errorf("List: %v %+v", err, got)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialects["postgres"]}
	got := pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	if got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("rebind() = %q", got)
	}

	lite := &DB{dialect: dialects["sqlite"]}
	if q := "SELECT ? FROM t"; lite.rebind(q) != q {
		t.Error("sqlite queries should not be rewritten")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.HistoryConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}

	s, err = Open(ctx, config.HistoryConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "h.db")})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	s.Close()

	if _, err := Open(ctx, config.HistoryConfig{Driver: "mongo"}); err == nil {
		t.Error("unknown driver should fail")
	}
	if _, err := Open(ctx, config.HistoryConfig{Driver: "sqlite"}); err == nil {
		t.Error("missing dsn should fail")
	}
}

func TestKeyedMutex_ForgetsReleasedKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.size() != 2 {
		t.Errorf("size = %d, want 2", k.size())
	}
	unlockA()
	unlockB()
	if k.size() != 0 {
		t.Errorf("released keys should be forgotten, size = %d", k.size())
	}
}
