package sandbox

import (
  "context"
  "path/filepath"
  "strings"
  "testing"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
  t.Helper()
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("Failed to create logger: %v", err)
  }
  return log
}

func testHandle(t *testing.T) *Handle {
  t.Helper()
  path := filepath.Join(t.TempDir(), "workspace.db")
  h, err := openHandle(path, testLogger(t))
  if err != nil {
    t.Fatalf("Failed to open handle: %v", err)
  }
  t.Cleanup(func() { h.Close() })
  return h
}

func TestHandleExecAndQuery(t *testing.T) {
  ctx := context.Background()
  h := testHandle(t)

  if err := h.Exec(ctx, "CREATE TABLE fruit (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
    t.Fatalf("Failed to create table: %v", err)
  }
  if err := h.Exec(ctx, "INSERT INTO fruit (name) VALUES (?), (?)", "apple", "pear"); err != nil {
    t.Fatalf("Failed to insert rows: %v", err)
  }

  result, err := h.Query(ctx, "SELECT name FROM fruit ORDER BY id")
  if err != nil {
    t.Fatalf("Query failed: %v", err)
  }
  if len(result.Columns) != 1 || result.Columns[0] != "name" {
    t.Fatalf("unexpected columns: %v", result.Columns)
  }
  if len(result.Rows) != 2 {
    t.Fatalf("expected 2 rows, got %d", len(result.Rows))
  }
  if result.Rows[0][0] != "apple" {
    t.Fatalf("expected first row apple, got %v", result.Rows[0][0])
  }
  if result.Truncated {
    t.Fatal("small result should not be marked truncated")
  }
}

func TestHandleQueryRowCap(t *testing.T) {
  ctx := context.Background()
  h := testHandle(t)

  if err := h.Exec(ctx, "CREATE TABLE n (v INTEGER)"); err != nil {
    t.Fatalf("Failed to create table: %v", err)
  }
  for i := 0; i < PreviewRowLimit+5; i++ {
    if err := h.Exec(ctx, "INSERT INTO n (v) VALUES (?)", i); err != nil {
      t.Fatalf("Failed to insert row %d: %v", i, err)
    }
  }

  result, err := h.Query(ctx, "SELECT v FROM n ORDER BY v")
  if err != nil {
    t.Fatalf("Query failed: %v", err)
  }
  if len(result.Rows) != PreviewRowLimit {
    t.Fatalf("expected %d rows, got %d", PreviewRowLimit, len(result.Rows))
  }
  if !result.Truncated {
    t.Fatal("oversized result should be marked truncated")
  }
}

func TestHandleListTablesAndCountRows(t *testing.T) {
  ctx := context.Background()
  h := testHandle(t)

  if err := h.Exec(ctx, "CREATE TABLE b (v INTEGER)"); err != nil {
    t.Fatalf("Failed to create table: %v", err)
  }
  if err := h.Exec(ctx, "CREATE TABLE a (v INTEGER)"); err != nil {
    t.Fatalf("Failed to create table: %v", err)
  }
  if err := h.Exec(ctx, "INSERT INTO a (v) VALUES (1), (2), (3)"); err != nil {
    t.Fatalf("Failed to insert: %v", err)
  }

  tables, err := h.ListTables(ctx)
  if err != nil {
    t.Fatalf("ListTables failed: %v", err)
  }
  if len(tables) != 2 || tables[0] != "a" || tables[1] != "b" {
    t.Fatalf("unexpected tables: %v", tables)
  }

  count, err := h.CountRows(ctx, "a")
  if err != nil {
    t.Fatalf("CountRows failed: %v", err)
  }
  if count != 3 {
    t.Fatalf("expected 3 rows, got %d", count)
  }

  if _, err := h.CountRows(ctx, `a"; DROP TABLE a; --`); err == nil {
    t.Fatal("expected error for hostile table name")
  }
}

func TestHandleDropAllTables(t *testing.T) {
  ctx := context.Background()
  h := testHandle(t)

  for _, stmt := range []string{
    "CREATE TABLE x (v INTEGER)",
    "CREATE TABLE y (v INTEGER)",
  } {
    if err := h.Exec(ctx, stmt); err != nil {
      t.Fatalf("Failed to create table: %v", err)
    }
  }

  if err := h.DropAllTables(ctx); err != nil {
    t.Fatalf("DropAllTables failed: %v", err)
  }

  tables, err := h.ListTables(ctx)
  if err != nil {
    t.Fatalf("ListTables failed: %v", err)
  }
  if len(tables) != 0 {
    t.Fatalf("expected empty workspace, got tables %v", tables)
  }
}

func TestRenderPreview(t *testing.T) {
  r := &QueryResult{
    Columns:   []string{"id", "name"},
    Rows:      [][]interface{}{{int64(1), "apple"}, {int64(2), nil}},
    Truncated: true,
  }
  out := r.RenderPreview()
  if !strings.Contains(out, "id | name") {
    t.Fatalf("missing header in preview: %q", out)
  }
  if !strings.Contains(out, "2 | NULL") {
    t.Fatalf("missing NULL rendering in preview: %q", out)
  }
  if !strings.Contains(out, "...") {
    t.Fatalf("missing truncation marker in preview: %q", out)
  }
}
