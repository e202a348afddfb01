package sandbox

import (
  "context"
  "fmt"
  "strings"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
)

// PreviewRowLimit caps how many result rows a query returns to callers.
// Learners only ever see a preview of their result set.
const PreviewRowLimit = 10

// Handle wraps one open scratch database file. All statements a learner or
// the population code runs against a workspace go through a Handle.
type Handle struct {
  db   *gorm.DB
  path string
  log  *logger.Logger
}

// QueryResult is the row-capped outcome of a read query.
type QueryResult struct {
  Columns   []string        `json:"columns"`
  Rows      [][]interface{} `json:"rows"`
  Truncated bool            `json:"truncated"`
}

func openHandle(path string, log *logger.Logger) (*Handle, error) {
  db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
    Logger: gormlogger.Default.LogMode(gormlogger.Silent),
  })
  if err != nil {
    return nil, fmt.Errorf("Failed to open workspace database %s: %w", path, err)
  }
  return &Handle{db: db, path: path, log: log}, nil
}

func (h *Handle) Path() string {
  return h.path
}

// Ping runs a trivial statement to confirm the underlying connection is
// still usable.
func (h *Handle) Ping(ctx context.Context) error {
  var one int
  return h.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

// Exec runs a statement that returns no rows (DDL, INSERT, UPDATE, DELETE).
func (h *Handle) Exec(ctx context.Context, query string, args ...interface{}) error {
  return h.db.WithContext(ctx).Exec(query, args...).Error
}

// Query runs a read statement and returns at most PreviewRowLimit rows.
// Values are decoded into JSON-friendly types.
func (h *Handle) Query(ctx context.Context, query string, args ...interface{}) (*QueryResult, error) {
  return h.QueryN(ctx, PreviewRowLimit, query, args...)
}

// QueryN is Query with a caller-chosen row cap.
func (h *Handle) QueryN(ctx context.Context, limit int, query string, args ...interface{}) (*QueryResult, error) {
  rows, err := h.db.WithContext(ctx).Raw(query, args...).Rows()
  if err != nil {
    return nil, err
  }
  defer rows.Close()

  columns, err := rows.Columns()
  if err != nil {
    return nil, err
  }

  result := &QueryResult{
    Columns: columns,
    Rows:    [][]interface{}{},
  }

  for rows.Next() {
    if len(result.Rows) >= limit {
      result.Truncated = true
      break
    }
    values := make([]interface{}, len(columns))
    pointers := make([]interface{}, len(columns))
    for i := range values {
      pointers[i] = &values[i]
    }
    if err := rows.Scan(pointers...); err != nil {
      return nil, err
    }
    decoded := make([]interface{}, len(columns))
    for i, v := range values {
      switch value := v.(type) {
      case []byte:
        decoded[i] = string(value)
      default:
        decoded[i] = value
      }
    }
    result.Rows = append(result.Rows, decoded)
  }
  if err := rows.Err(); err != nil {
    return nil, err
  }

  return result, nil
}

// ListTables returns the user tables in the workspace, excluding sqlite
// internals.
func (h *Handle) ListTables(ctx context.Context) ([]string, error) {
  var tables []string
  if err := h.db.WithContext(ctx).
    Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name").
    Scan(&tables).Error; err != nil {
    return nil, err
  }
  return tables, nil
}

// CountRows returns the row count of one table. The table name is quoted,
// not interpolated as a bind parameter, because sqlite does not allow
// parameters in identifier position.
func (h *Handle) CountRows(ctx context.Context, table string) (int, error) {
  if strings.ContainsAny(table, "\"';") {
    return 0, fmt.Errorf("invalid table name: %s", table)
  }
  var count int
  query := fmt.Sprintf("SELECT COUNT(*) FROM \"%s\"", table)
  if err := h.db.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

// DropAllTables clears every user table so a fresh set of DDL can be
// applied. Per-table drop failures are logged and skipped so one stubborn
// table cannot wedge a reset.
func (h *Handle) DropAllTables(ctx context.Context) error {
  tables, err := h.ListTables(ctx)
  if err != nil {
    return err
  }
  for _, table := range tables {
    if strings.ContainsAny(table, "\"';") {
      continue
    }
    stmt := fmt.Sprintf("DROP TABLE IF EXISTS \"%s\"", table)
    if err := h.db.WithContext(ctx).Exec(stmt).Error; err != nil {
      h.log.Warn("Failed to drop table during reset", "table", table, "error", err)
    }
  }
  return nil
}

// RenderPreview formats a QueryResult as a compact text table for use in
// model prompts and judgment records.
func (r *QueryResult) RenderPreview() string {
  if r == nil || len(r.Columns) == 0 {
    return "(no columns)"
  }
  var b strings.Builder
  b.WriteString(strings.Join(r.Columns, " | "))
  b.WriteString("\n")
  for _, row := range r.Rows {
    cells := make([]string, len(row))
    for i, v := range row {
      if v == nil {
        cells[i] = "NULL"
      } else {
        cells[i] = fmt.Sprintf("%v", v)
      }
    }
    b.WriteString(strings.Join(cells, " | "))
    b.WriteString("\n")
  }
  if r.Truncated {
    b.WriteString("...\n")
  }
  return b.String()
}

func (h *Handle) Close() error {
  sqlDB, err := h.db.DB()
  if err != nil {
    return err
  }
  return sqlDB.Close()
}
