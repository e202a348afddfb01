package sandbox

import (
  "context"
  "fmt"
  "strings"
  "github.com/traefik/yaegi/interp"
  "github.com/traefik/yaegi/stdlib"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
)

// ExecFunc is the single capability handed to generated population code: it
// runs one write statement against the workspace the code is populating.
type ExecFunc func(query string, args ...interface{}) error

// allowedImports is the closed set of packages population code may import.
// Everything with I/O, OS, or network reach is excluded.
var allowedImports = map[string]bool{
  "fmt":       true,
  "strings":   true,
  "strconv":   true,
  "math":      true,
  "math/rand": true,
  "time":      true,
}

// Runner executes model-generated population programs inside an
// interpreter whose symbol table only contains the allowed packages. The
// program must define:
//
//	func Populate(exec func(query string, args ...interface{}) error) error
//
// and may only touch the workspace through the exec argument.
type Runner struct {
  log *logger.Logger
}

func NewRunner(baseLog *logger.Logger) *Runner {
  return &Runner{log: baseLog.With("component", "sandbox_runner")}
}

func restrictedSymbols() interp.Exports {
  filtered := make(interp.Exports, len(allowedImports))
  for path, symbols := range stdlib.Symbols {
    // stdlib.Symbols keys look like "fmt/fmt" or "math/rand/rand".
    idx := strings.LastIndex(path, "/")
    if idx < 0 {
      continue
    }
    if allowedImports[path[:idx]] {
      filtered[path] = symbols
    }
  }
  return filtered
}

// Run evaluates the program and invokes its Populate function with exec.
// The context bounds the whole evaluation; a program that loops forever is
// abandoned when the context expires.
func (r *Runner) Run(ctx context.Context, code string, exec ExecFunc) error {
  if err := checkImports(code); err != nil {
    return err
  }

  i := interp.New(interp.Options{})
  if err := i.Use(restrictedSymbols()); err != nil {
    return fmt.Errorf("Failed to load interpreter symbols: %w", err)
  }

  if _, err := i.EvalWithContext(ctx, code); err != nil {
    return fmt.Errorf("population code failed to evaluate: %w", err)
  }

  v, err := i.EvalWithContext(ctx, "main.Populate")
  if err != nil {
    return fmt.Errorf("population code does not define Populate: %w", err)
  }
  populate, ok := v.Interface().(func(func(query string, args ...interface{}) error) error)
  if !ok {
    return fmt.Errorf("Populate has wrong signature: %T", v.Interface())
  }

  done := make(chan error, 1)
  go func() {
    defer func() {
      if rec := recover(); rec != nil {
        done <- fmt.Errorf("population code panicked: %v", rec)
      }
    }()
    done <- populate(exec)
  }()

  select {
  case err := <-done:
    return err
  case <-ctx.Done():
    return fmt.Errorf("population code timed out: %w", ctx.Err())
  }
}

// checkImports rejects programs naming packages outside the allow list
// before evaluation. The interpreter would fail on them anyway because the
// symbols are absent, but a direct error message is clearer in repair
// prompts.
func checkImports(code string) error {
  inBlock := false
  for _, line := range strings.Split(code, "\n") {
    trimmed := strings.TrimSpace(line)
    var path string
    switch {
    case strings.HasPrefix(trimmed, "import ("):
      inBlock = true
      continue
    case inBlock && trimmed == ")":
      inBlock = false
      continue
    case strings.HasPrefix(trimmed, `import "`):
      path = strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
    case inBlock && strings.HasPrefix(trimmed, `"`):
      path = strings.Trim(trimmed, `"`)
    default:
      continue
    }
    if path == "" {
      continue
    }
    if !allowedImports[path] {
      return fmt.Errorf("population code imports forbidden package %q", path)
    }
  }
  return nil
}
