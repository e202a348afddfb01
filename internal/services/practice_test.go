package services

import (
  "context"
  "encoding/json"
  "errors"
  "strings"
  "testing"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/sandbox"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

const booksSchema = `CREATE TABLE authors (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);
CREATE TABLE books (
  id INTEGER PRIMARY KEY,
  author_id INTEGER REFERENCES authors(id),
  title TEXT NOT NULL
);`

type practiceDeps struct {
  registry    *sandbox.Registry
  generation  *fakeGeneration
  usageRepo   *fakeUsageRepo
  subRepo     *fakeSubscriptionRepo
  schemaRepo  *fakeSchemaRepo
  sessionRepo *fakeSessionRepo
  userRepo    *fakeUserRepo
  subs        SubscriptionService
}

func newTestPractice(t *testing.T) (PracticeService, *practiceDeps) {
  t.Helper()
  log := testLogger(t)

  registry, err := sandbox.NewRegistry(t.TempDir(), log)
  if err != nil {
    t.Fatalf("Failed to create registry: %v", err)
  }
  t.Cleanup(registry.Close)

  deps := &practiceDeps{
    registry:    registry,
    generation:  newFakeGeneration(),
    usageRepo:   newFakeUsageRepo(),
    subRepo:     &fakeSubscriptionRepo{},
    schemaRepo:  newFakeSchemaRepo(),
    sessionRepo: newFakeSessionRepo(),
    userRepo:    newFakeUserRepo(),
  }
  deps.subs = NewSubscriptionService(log, deps.subRepo, deps.usageRepo, defaultPlanCatalog(), PlanFree)

  ps := NewPracticeService(
    log,
    registry,
    sandbox.NewRunner(log),
    deps.generation,
    deps.subs,
    deps.schemaRepo,
    deps.sessionRepo,
    deps.userRepo,
  )
  return ps, deps
}

func TestPointsForDifficulty(t *testing.T) {
  cases := map[string]int{
    "basic":        5,
    "Basic":        5,
    "intermediate": 10,
    "advanced":     20,
    "expert":       0,
    "":             0,
  }
  for difficulty, want := range cases {
    if got := PointsForDifficulty(difficulty); got != want {
      t.Errorf("PointsForDifficulty(%q) = %d, want %d", difficulty, got, want)
    }
  }
}

func TestCheckPopulationHeuristic(t *testing.T) {
  pass := map[string]int{"a": 0, "b": 2, "c": 2, "d": 2}
  if err := checkPopulation(pass); err != nil {
    t.Fatalf("expected 3 of 4 populated tables to pass, got %v", err)
  }

  fail := map[string]int{"a": 0, "b": 0, "c": 2, "d": 2}
  err := checkPopulation(fail)
  if !errors.Is(err, ErrPopulationInsufficient) {
    t.Fatalf("expected insufficient population, got %v", err)
  }
  var pi *PopulationInsufficientError
  if !errors.As(err, &pi) {
    t.Fatalf("expected PopulationInsufficientError, got %T", err)
  }
  if pi.TotalTables != 4 || pi.PopulatedTables != 2 {
    t.Fatalf("unexpected counts: %+v", pi)
  }

  if err := checkPopulation(map[string]int{}); !errors.Is(err, ErrPopulationInsufficient) {
    t.Fatalf("empty workspace must fail the heuristic, got %v", err)
  }
}

func TestGenerateSchemaProvisionsWorkspace(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  deps.generation.schemaScript = booksSchema

  artifact, err := ps.GenerateSchema(ctx, userID, "s1", "books and authors", "basic")
  if err != nil {
    t.Fatalf("GenerateSchema failed: %v", err)
  }
  if artifact.SchemaID == uuid.Nil || artifact.UserID != userID {
    t.Fatalf("unexpected artifact: %+v", artifact)
  }
  if !strings.Contains(artifact.SchemaScript, "CREATE TABLE books") {
    t.Fatalf("artifact missing schema text: %q", artifact.SchemaScript)
  }
  if len(deps.schemaRepo.artifacts) != 1 {
    t.Fatalf("expected 1 persisted artifact, got %d", len(deps.schemaRepo.artifacts))
  }

  handle, err := deps.registry.Acquire(ctx, userID, "s1")
  if err != nil {
    t.Fatalf("Acquire failed: %v", err)
  }
  tables, err := handle.ListTables(ctx)
  if err != nil {
    t.Fatalf("ListTables failed: %v", err)
  }
  if len(tables) != 2 || tables[0] != "authors" || tables[1] != "books" {
    t.Fatalf("unexpected tables: %v", tables)
  }

  year, month := currentPeriod()
  usage, _ := deps.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  if usage.SchemasGenerated != 1 {
    t.Fatalf("expected usage recorded once, got %d", usage.SchemasGenerated)
  }
}

func TestGenerateSchemaRepairSucceeds(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  deps.generation.schemaScript = "CREATE TABLEE broken (id INTEGER)"
  deps.generation.repairedSchema = "CREATE TABLE fixed (id INTEGER PRIMARY KEY)"

  artifact, err := ps.GenerateSchema(ctx, userID, "s1", "anything", "basic")
  if err != nil {
    t.Fatalf("expected repair to recover, got %v", err)
  }
  if !strings.Contains(artifact.SchemaScript, "CREATE TABLE fixed") {
    t.Fatalf("artifact must carry the repaired script, got %q", artifact.SchemaScript)
  }
  if deps.generation.calls["generate_schema"] != 1 || deps.generation.calls["repair_schema"] != 1 {
    t.Fatalf("unexpected capability calls: %v", deps.generation.calls)
  }
}

func TestGenerateSchemaRepairBound(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  deps.generation.schemaScript = "CREATE TABLEE broken (id INTEGER)"
  deps.generation.repairedSchema = "CREATE TABLEE still broken (id INTEGER)"

  _, err := ps.GenerateSchema(ctx, userID, "s1", "anything", "basic")
  if !errors.Is(err, ErrApplicationFailed) {
    t.Fatalf("expected ErrApplicationFailed, got %v", err)
  }
  // The generation capability is called at most twice per provisioning run.
  if deps.generation.calls["generate_schema"] != 1 || deps.generation.calls["repair_schema"] != 1 {
    t.Fatalf("unexpected capability calls: %v", deps.generation.calls)
  }
  if len(deps.schemaRepo.artifacts) != 0 {
    t.Fatal("no artifact may be persisted after a failed provisioning run")
  }
  year, month := currentPeriod()
  usage, _ := deps.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  if usage.SchemasGenerated != 0 {
    t.Fatalf("usage must not be recorded on failure, got %d", usage.SchemasGenerated)
  }
}

func TestGenerateSchemaQuotaDenied(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  year, month := currentPeriod()
  usage, _ := deps.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  usage.SchemasGenerated = defaultPlanCatalog()[PlanFree].Limits.MaxSchemasPerMonth

  _, err := ps.GenerateSchema(ctx, userID, "s1", "anything", "basic")
  if !errors.Is(err, ErrQuotaExceeded) {
    t.Fatalf("expected ErrQuotaExceeded, got %v", err)
  }
  if deps.generation.calls["generate_schema"] != 0 {
    t.Fatal("denied requests must not invoke the generation capability")
  }
}

const countingPopulation = `package main

func Populate(exec func(query string, args ...interface{}) error) error {
  inserts := []string{
    "INSERT INTO authors (id, name) VALUES (1, 'Ursula K. Le Guin')",
    "INSERT INTO authors (id, name) VALUES (2, 'Octavia Butler')",
    "INSERT INTO books (id, author_id, title) VALUES (1, 1, 'The Dispossessed')",
    "INSERT INTO books (id, author_id, title) VALUES (2, 1, 'The Left Hand of Darkness')",
    "INSERT INTO books (id, author_id, title) VALUES (3, 2, 'Kindred')",
  }
  for _, q := range inserts {
    if err := exec(q); err != nil {
      return err
    }
  }
  return nil
}
`

func (d *practiceDeps) seedSchema(t *testing.T, userID uuid.UUID) uuid.UUID {
  t.Helper()
  schemaID := uuid.New()
  d.schemaRepo.artifacts[schemaID] = &types.SchemaArtifact{
    SchemaID:     schemaID,
    UserID:       userID,
    SchemaScript: booksSchema,
  }
  return schemaID
}

func TestPopulateTables(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  schemaID := deps.seedSchema(t, userID)

  deps.generation.populationCode = countingPopulation

  counts, err := ps.PopulateTables(ctx, userID, "s1", schemaID)
  if err != nil {
    t.Fatalf("PopulateTables failed: %v", err)
  }
  if counts["authors"] != 2 || counts["books"] != 3 {
    t.Fatalf("unexpected row counts: %v", counts)
  }
}

func TestPopulateTablesRepairBound(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  schemaID := deps.seedSchema(t, userID)

  deps.generation.populationCode = "package main\n\nfunc Fill() {}\n"
  deps.generation.repairedCode = countingPopulation

  counts, err := ps.PopulateTables(ctx, userID, "s1", schemaID)
  if err != nil {
    t.Fatalf("expected repaired code to succeed, got %v", err)
  }
  if counts["books"] != 3 {
    t.Fatalf("unexpected row counts after repair: %v", counts)
  }
  if deps.generation.calls["generate_population_code"] != 1 ||
    deps.generation.calls["repair_population_code"] != 1 {
    t.Fatalf("unexpected capability calls: %v", deps.generation.calls)
  }
}

func TestPopulateTablesInsufficient(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  schemaID := deps.seedSchema(t, userID)

  // Only one of two tables gets more than one row.
  deps.generation.populationCode = `package main

func Populate(exec func(query string, args ...interface{}) error) error {
  if err := exec("INSERT INTO authors (id, name) VALUES (1, 'A')"); err != nil {
    return err
  }
  return exec("INSERT INTO authors (id, name) VALUES (2, 'B')")
}
`

  _, err := ps.PopulateTables(ctx, userID, "s1", schemaID)
  if !errors.Is(err, ErrPopulationInsufficient) {
    t.Fatalf("expected ErrPopulationInsufficient, got %v", err)
  }
}

func (d *practiceDeps) seedSession(t *testing.T, ps PracticeService, userID uuid.UUID, sessionID, difficulty string) uuid.UUID {
  t.Helper()
  ctx := context.Background()
  schemaID := d.seedSchema(t, userID)
  if _, err := ps.CreateSession(ctx, userID, sessionID, schemaID, difficulty); err != nil {
    t.Fatalf("CreateSession failed: %v", err)
  }
  handle, err := d.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    t.Fatalf("Acquire failed: %v", err)
  }
  if err := handle.Exec(ctx, booksSchema); err != nil {
    t.Fatalf("Failed to apply schema: %v", err)
  }
  return schemaID
}

func TestCheckAnswerSelectOne(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  deps.seedSession(t, ps, userID, "s1", "basic")

  deps.generation.judgeCorrect = true
  deps.generation.judgeExplain = "Right: the constant projection returns a single row."

  result, err := ps.CheckAnswer(ctx, userID, "s1", "Select the constant 1.", "SELECT 1", "basic")
  if err != nil {
    t.Fatalf("CheckAnswer failed: %v", err)
  }
  if !result.IsCorrect || result.Points != 5 {
    t.Fatalf("expected a correct basic answer worth 5 points, got %+v", result)
  }
  if !result.Persisted || result.TotalScore != 5 {
    t.Fatalf("expected persisted total of 5, got %+v", result)
  }

  session := deps.sessionRepo.sessions["s1"]
  var attempts []types.QueryAttempt
  if err := json.Unmarshal(session.Queries, &attempts); err != nil {
    t.Fatalf("Failed to decode attempts: %v", err)
  }
  if len(attempts) != 1 {
    t.Fatalf("expected exactly one attempt, got %d", len(attempts))
  }
  if attempts[0].SQL != "SELECT 1" || attempts[0].Points != 5 || attempts[0].CheckedAt.IsZero() {
    t.Fatalf("unexpected attempt record: %+v", attempts[0])
  }
  if deps.userRepo.points[userID] != 5 {
    t.Fatalf("expected 5 user points, got %d", deps.userRepo.points[userID])
  }
}

func TestCheckAnswerScoreIsRecomputed(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  deps.seedSession(t, ps, userID, "s1", "intermediate")

  deps.generation.judgeCorrect = true

  if _, err := ps.CheckAnswer(ctx, userID, "s1", "q1", "SELECT 1", "intermediate"); err != nil {
    t.Fatalf("CheckAnswer failed: %v", err)
  }

  // Corrupt the stored total; the next grade must recompute from the log,
  // not increment the stored value.
  deps.sessionRepo.sessions["s1"].TotalScore = 999

  result, err := ps.CheckAnswer(ctx, userID, "s1", "q2", "SELECT 2", "intermediate")
  if err != nil {
    t.Fatalf("CheckAnswer failed: %v", err)
  }
  if result.TotalScore != 20 {
    t.Fatalf("expected recomputed total 20, got %d", result.TotalScore)
  }
  if deps.sessionRepo.sessions["s1"].TotalScore != 20 {
    t.Fatalf("expected stored total 20, got %d", deps.sessionRepo.sessions["s1"].TotalScore)
  }
}

func TestCheckAnswerMissingSession(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  deps.generation.judgeCorrect = true

  result, err := ps.CheckAnswer(ctx, userID, "ghost", "q", "SELECT 1", "basic")
  if err != nil {
    t.Fatalf("CheckAnswer failed: %v", err)
  }
  if result.Persisted {
    t.Fatal("grading a missing session must not persist anything")
  }
  if len(deps.sessionRepo.sessions) != 0 {
    t.Fatal("no session row may appear as a side effect of grading")
  }
}

func TestCheckAnswerSQLError(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()
  deps.seedSession(t, ps, userID, "s1", "advanced")

  deps.generation.errorExplain = "The table novels does not exist; the schema has books."

  result, err := ps.CheckAnswer(ctx, userID, "s1", "q", "SELECT * FROM novels", "advanced")
  if err != nil {
    t.Fatalf("CheckAnswer failed: %v", err)
  }
  if result.IsCorrect || result.Points != 0 {
    t.Fatalf("a failing query must grade incorrect for 0 points, got %+v", result)
  }
  if result.Explanation != deps.generation.errorExplain {
    t.Fatalf("unexpected explanation: %q", result.Explanation)
  }
  if deps.generation.calls["judge_answer"] != 0 {
    t.Fatal("judgment must not run for a failing query")
  }
  if deps.generation.calls["explain_query_error"] != 1 {
    t.Fatalf("expected one error explanation call, got %d", deps.generation.calls["explain_query_error"])
  }
}

func TestExecuteQueryRowCap(t *testing.T) {
  ctx := context.Background()
  ps, deps := newTestPractice(t)
  userID := uuid.New()

  handle, err := deps.registry.Acquire(ctx, userID, "s1")
  if err != nil {
    t.Fatalf("Acquire failed: %v", err)
  }
  if err := handle.Exec(ctx, "CREATE TABLE n (v INTEGER)"); err != nil {
    t.Fatalf("Exec failed: %v", err)
  }
  for i := 0; i < 30; i++ {
    if err := handle.Exec(ctx, "INSERT INTO n (v) VALUES (?)", i); err != nil {
      t.Fatalf("insert failed: %v", err)
    }
  }

  result, err := ps.ExecuteQuery(ctx, userID, "s1", "SELECT v FROM n")
  if err != nil {
    t.Fatalf("ExecuteQuery failed: %v", err)
  }
  if len(result.Rows) != freeFormRowLimit || !result.Truncated {
    t.Fatalf("expected %d truncated rows, got %d (truncated=%v)", freeFormRowLimit, len(result.Rows), result.Truncated)
  }
}
