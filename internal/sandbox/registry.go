package sandbox

import (
  "context"
  "fmt"
  "os"
  "path/filepath"
  "sync"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
)

// Registry owns the live workspace handles, keyed by (user, session). It
// hands out an open Handle per key, probes cached handles for liveness,
// and quietly replaces any that have gone stale. The mutex guards only the
// map; it is never held across database I/O, so a slow open or probe on
// one workspace does not block acquisition of another.
type Registry struct {
  mu      sync.Mutex
  handles map[string]*Handle
  dir     string
  log     *logger.Logger
}

func NewRegistry(dir string, baseLog *logger.Logger) (*Registry, error) {
  if err := os.MkdirAll(dir, 0o755); err != nil {
    return nil, fmt.Errorf("Failed to create workspace directory %s: %w", dir, err)
  }
  return &Registry{
    handles: make(map[string]*Handle),
    dir:     dir,
    log:     baseLog.With("component", "sandbox_registry"),
  }, nil
}

func key(userID uuid.UUID, sessionID string) string {
  return userID.String() + ":" + sessionID
}

// FilePath returns where the workspace file for a key lives on disk.
func (r *Registry) FilePath(userID uuid.UUID, sessionID string) string {
  return filepath.Join(r.dir, fmt.Sprintf("sandbox_%s_%s.db", userID, sessionID))
}

// Acquire returns an open, live Handle for the key, opening or reopening
// the workspace file as needed. A cached handle that fails its liveness
// probe is closed and replaced rather than returned.
func (r *Registry) Acquire(ctx context.Context, userID uuid.UUID, sessionID string) (*Handle, error) {
  k := key(userID, sessionID)

  r.mu.Lock()
  cached := r.handles[k]
  r.mu.Unlock()

  if cached != nil {
    if err := cached.Ping(ctx); err == nil {
      return cached, nil
    }
    r.log.Warn("Cached workspace handle failed liveness probe, reopening", "key", k)
    cached.Close()
  }

  handle, err := openHandle(r.FilePath(userID, sessionID), r.log)
  if err != nil {
    return nil, err
  }

  r.mu.Lock()
  // Another goroutine may have opened the same key while we were off the
  // lock. Keep the winner, close the loser.
  if existing, ok := r.handles[k]; ok && existing != cached {
    r.mu.Unlock()
    handle.Close()
    return existing, nil
  }
  r.handles[k] = handle
  r.mu.Unlock()

  return handle, nil
}

// Release closes the handle for a key and removes its storage file.
// Everything is best-effort; failures are logged and swallowed so release
// can be called from cleanup paths unconditionally.
func (r *Registry) Release(userID uuid.UUID, sessionID string) {
  k := key(userID, sessionID)

  r.mu.Lock()
  handle := r.handles[k]
  delete(r.handles, k)
  r.mu.Unlock()

  if handle != nil {
    if err := handle.Close(); err != nil {
      r.log.Warn("Failed to close workspace handle on release", "key", k, "error", err)
    }
  }

  path := r.FilePath(userID, sessionID)
  if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
    r.log.Warn("Failed to remove workspace file on release", "path", path, "error", err)
  }
}

// ReleaseUser releases every workspace belonging to one user.
func (r *Registry) ReleaseUser(userID uuid.UUID) {
  prefix := userID.String() + ":"

  r.mu.Lock()
  victims := make(map[string]*Handle)
  for k, h := range r.handles {
    if len(k) > len(prefix) && k[:len(prefix)] == prefix {
      victims[k] = h
      delete(r.handles, k)
    }
  }
  r.mu.Unlock()

  for k, h := range victims {
    h.Close()
    sessionID := k[len(prefix):]
    path := r.FilePath(userID, sessionID)
    if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
      r.log.Warn("Failed to remove workspace file on release", "path", path, "error", err)
    }
  }
}

// Reset clears every table in the workspace so fresh DDL can be applied.
func (r *Registry) Reset(ctx context.Context, userID uuid.UUID, sessionID string) error {
  handle, err := r.Acquire(ctx, userID, sessionID)
  if err != nil {
    return err
  }
  return handle.DropAllTables(ctx)
}

// Close releases every live handle. Used on shutdown.
func (r *Registry) Close() {
  r.mu.Lock()
  handles := r.handles
  r.handles = make(map[string]*Handle)
  r.mu.Unlock()

  for _, h := range handles {
    h.Close()
  }
}
