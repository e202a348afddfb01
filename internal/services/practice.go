package services

import (
  "context"
  "encoding/json"
  "fmt"
  "strings"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/normalization"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/sandbox"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

// Difficulty weights for graded answers. Unknown difficulties score zero.
const (
  PointsBasic        = 5
  PointsIntermediate = 10
  PointsAdvanced     = 20
)

// PointsForDifficulty maps a difficulty label to the points a correct
// answer earns.
func PointsForDifficulty(difficulty string) int {
  switch strings.ToLower(strings.TrimSpace(difficulty)) {
  case "basic":
    return PointsBasic
  case "intermediate":
    return PointsIntermediate
  case "advanced":
    return PointsAdvanced
  default:
    return 0
  }
}

// minRowsPerTable is the row threshold a table must exceed to count as
// populated.
const minRowsPerTable = 1

// freeFormRowLimit caps the result preview on the free-form execute path.
const freeFormRowLimit = 20

// AnswerResult is the grading outcome returned to the caller.
type AnswerResult struct {
  IsCorrect     bool   `json:"is_correct"`
  Explanation   string `json:"explanation"`
  Points        int    `json:"points"`
  ResultPreview string `json:"result_preview"`
  TotalScore    int    `json:"total_score"`
  Persisted     bool   `json:"persisted"`
}

type PracticeService interface {
  // GenerateSchema runs the provisioning protocol: quota gate, workspace
  // reset, generation, at most one repair, then the immutable artifact
  // row. Usage is recorded only after everything succeeded.
  GenerateSchema(ctx context.Context, userID uuid.UUID, sessionID, topic, difficulty string) (*types.SchemaArtifact, error)

  // PopulateTables fills the session workspace with synthetic data via
  // generated code, with at most one repair attempt, and verifies the
  // outcome against the population heuristic. Returns per-table counts.
  PopulateTables(ctx context.Context, userID uuid.UUID, sessionID string, schemaID uuid.UUID) (map[string]int, error)

  CreateSession(ctx context.Context, userID uuid.UUID, sessionID string, schemaID uuid.UUID, difficulty string) (*types.PracticeSession, error)

  // GenerateQuestions produces up to count fresh questions for the
  // session's schema, avoiding repeats of earlier questions.
  GenerateQuestions(ctx context.Context, userID uuid.UUID, sessionID string, count int) ([]string, error)

  // CheckAnswer runs the grading engine for one answer.
  CheckAnswer(ctx context.Context, userID uuid.UUID, sessionID, question, sqlText, difficulty string) (*AnswerResult, error)

  // ExecuteQuery is the free-form execute path with a wider row cap and
  // no grading.
  ExecuteQuery(ctx context.Context, userID uuid.UUID, sessionID, sqlText string) (*sandbox.QueryResult, error)

  // Teardown releases the session workspace.
  Teardown(ctx context.Context, userID uuid.UUID, sessionID string)

  ListSessions(ctx context.Context, userID uuid.UUID) ([]*types.PracticeSession, error)
  ListSchemas(ctx context.Context, userID uuid.UUID) ([]*types.SchemaArtifact, error)
}

type practiceService struct {
  log          *logger.Logger
  registry     *sandbox.Registry
  runner       *sandbox.Runner
  generation   GenerationService
  subscription SubscriptionService
  schemaRepo   repos.SchemaArtifactRepo
  sessionRepo  repos.PracticeSessionRepo
  userRepo     repos.UserRepo
}

func NewPracticeService(
  log *logger.Logger,
  registry *sandbox.Registry,
  runner *sandbox.Runner,
  generation GenerationService,
  subscription SubscriptionService,
  schemaRepo repos.SchemaArtifactRepo,
  sessionRepo repos.PracticeSessionRepo,
  userRepo repos.UserRepo,
) PracticeService {
  serviceLog := log.With("service", "PracticeService")
  return &practiceService{
    log:          serviceLog,
    registry:     registry,
    runner:       runner,
    generation:   generation,
    subscription: subscription,
    schemaRepo:   schemaRepo,
    sessionRepo:  sessionRepo,
    userRepo:     userRepo,
  }
}

func (ps *practiceService) GenerateSchema(ctx context.Context, userID uuid.UUID, sessionID, topic, difficulty string) (*types.SchemaArtifact, error) {
  check, err := ps.subscription.CanUseFeature(ctx, userID, FeatureGenerateSchema)
  if err != nil {
    return nil, err
  }
  if !check.Allowed {
    return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, check.Reason)
  }

  handle, err := ps.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }
  if err := handle.DropAllTables(ctx); err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }

  script, err := ps.generation.GenerateSchema(ctx, userID, topic, difficulty)
  if err != nil {
    return nil, err
  }
  script = normalization.ParseSQLInput(script)

  if applyErr := handle.Exec(ctx, script); applyErr != nil {
    ps.log.Warn("Schema apply failed, attempting one repair",
      "user_id", userID, "session_id", sessionID, "error", applyErr)

    repaired, repErr := ps.generation.RepairSchema(ctx, userID, script, applyErr.Error())
    if repErr != nil {
      return nil, repErr
    }
    repaired = normalization.ParseSQLInput(repaired)

    if err := handle.DropAllTables(ctx); err != nil {
      return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
    }
    if applyErr2 := handle.Exec(ctx, repaired); applyErr2 != nil {
      return nil, fmt.Errorf("%w: %v", ErrApplicationFailed, applyErr2)
    }
    script = repaired
  }

  artifact := &types.SchemaArtifact{
    SchemaID:     uuid.New(),
    UserID:       userID,
    SchemaScript: script,
    CreatedAt:    time.Now().UTC(),
  }
  if _, err := ps.schemaRepo.Create(ctx, nil, []*types.SchemaArtifact{artifact}); err != nil {
    return nil, fmt.Errorf("Failed to persist schema artifact: %w", err)
  }

  if err := ps.subscription.IncrementUsage(ctx, userID, FeatureGenerateSchema); err != nil {
    // The schema exists; losing the count is better than losing the work.
    ps.log.Warn("Failed to record schema generation usage", "user_id", userID, "error", err)
  }

  return artifact, nil
}

func (ps *practiceService) loadSchema(ctx context.Context, schemaID uuid.UUID) (*types.SchemaArtifact, error) {
  artifacts, err := ps.schemaRepo.GetByIDs(ctx, nil, []uuid.UUID{schemaID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load schema artifact: %w", err)
  }
  if len(artifacts) == 0 {
    return nil, fmt.Errorf("%w: schema %s", ErrNotFound, schemaID)
  }
  return artifacts[0], nil
}

func (ps *practiceService) PopulateTables(ctx context.Context, userID uuid.UUID, sessionID string, schemaID uuid.UUID) (map[string]int, error) {
  artifact, err := ps.loadSchema(ctx, schemaID)
  if err != nil {
    return nil, err
  }

  handle, err := ps.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }

  // A fresh workspace (server restart, new session) has no tables yet.
  tables, err := handle.ListTables(ctx)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }
  if len(tables) == 0 {
    if err := handle.Exec(ctx, artifact.SchemaScript); err != nil {
      return nil, fmt.Errorf("%w: %v", ErrApplicationFailed, err)
    }
  }

  code, err := ps.generation.GeneratePopulationCode(ctx, userID, artifact.SchemaScript)
  if err != nil {
    return nil, err
  }

  exec := func(query string, args ...interface{}) error {
    return handle.Exec(ctx, query, args...)
  }

  if runErr := ps.runner.Run(ctx, code, exec); runErr != nil {
    ps.log.Warn("Population run failed, attempting one repair",
      "user_id", userID, "session_id", sessionID, "error", runErr)

    repaired, repErr := ps.generation.RepairPopulationCode(ctx, userID, code, runErr.Error())
    if repErr != nil {
      return nil, repErr
    }

    // Clear partial inserts before the second run.
    if err := handle.DropAllTables(ctx); err != nil {
      return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
    }
    if err := handle.Exec(ctx, artifact.SchemaScript); err != nil {
      return nil, fmt.Errorf("%w: %v", ErrApplicationFailed, err)
    }
    if runErr2 := ps.runner.Run(ctx, repaired, exec); runErr2 != nil {
      return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, runErr2)
    }
  }

  counts, err := ps.tableRowCounts(ctx, handle)
  if err != nil {
    return nil, err
  }
  if err := checkPopulation(counts); err != nil {
    return counts, err
  }
  return counts, nil
}

func (ps *practiceService) tableRowCounts(ctx context.Context, handle *sandbox.Handle) (map[string]int, error) {
  tables, err := handle.ListTables(ctx)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }
  counts := make(map[string]int, len(tables))
  for _, table := range tables {
    n, err := handle.CountRows(ctx, table)
    if err != nil {
      return nil, fmt.Errorf("Failed to count rows in %s: %w", table, err)
    }
    counts[table] = n
  }
  return counts, nil
}

// checkPopulation applies the acceptance heuristic: strictly more than
// half of the tables must hold more than minRowsPerTable rows.
func checkPopulation(counts map[string]int) error {
  total := len(counts)
  if total == 0 {
    return &PopulationInsufficientError{RowCounts: counts}
  }
  populated := 0
  for _, n := range counts {
    if n > minRowsPerTable {
      populated++
    }
  }
  if populated*2 > total {
    return nil
  }
  return &PopulationInsufficientError{
    TotalTables:     total,
    PopulatedTables: populated,
    RowCounts:       counts,
  }
}

func (ps *practiceService) CreateSession(ctx context.Context, userID uuid.UUID, sessionID string, schemaID uuid.UUID, difficulty string) (*types.PracticeSession, error) {
  if strings.TrimSpace(sessionID) == "" {
    return nil, fmt.Errorf("session id required")
  }
  if _, err := ps.loadSchema(ctx, schemaID); err != nil {
    return nil, err
  }

  session := &types.PracticeSession{
    ID:         sessionID,
    UserID:     userID,
    SchemaID:   schemaID,
    Difficulty: strings.ToLower(strings.TrimSpace(difficulty)),
    Queries:    datatypes.JSON([]byte("[]")),
    TotalScore: 0,
    CreatedAt:  time.Now().UTC(),
  }
  if _, err := ps.sessionRepo.Create(ctx, nil, []*types.PracticeSession{session}); err != nil {
    return nil, fmt.Errorf("Failed to create practice session: %w", err)
  }
  return session, nil
}

func (ps *practiceService) loadSession(ctx context.Context, sessionID string) (*types.PracticeSession, error) {
  sessions, err := ps.sessionRepo.GetByIDs(ctx, nil, []string{sessionID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load practice session: %w", err)
  }
  if len(sessions) == 0 {
    return nil, nil
  }
  return sessions[0], nil
}

func decodeAttempts(raw datatypes.JSON) ([]types.QueryAttempt, error) {
  var attempts []types.QueryAttempt
  if len(raw) == 0 {
    return attempts, nil
  }
  if err := json.Unmarshal(raw, &attempts); err != nil {
    return nil, fmt.Errorf("Failed to decode query log: %w", err)
  }
  return attempts, nil
}

func (ps *practiceService) GenerateQuestions(ctx context.Context, userID uuid.UUID, sessionID string, count int) ([]string, error) {
  session, err := ps.loadSession(ctx, sessionID)
  if err != nil {
    return nil, err
  }
  if session == nil {
    return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
  }
  artifact, err := ps.loadSchema(ctx, session.SchemaID)
  if err != nil {
    return nil, err
  }

  if count <= 0 {
    count = 1
  }
  if count > 10 {
    count = 10
  }

  attempts, err := decodeAttempts(session.Queries)
  if err != nil {
    return nil, err
  }
  previous := make([]string, 0, len(attempts)+count)
  for _, a := range attempts {
    previous = append(previous, a.Question)
  }

  questions := make([]string, 0, count)
  for i := 0; i < count; i++ {
    q, err := ps.generation.GenerateQuestion(ctx, userID, artifact.SchemaScript, session.Difficulty, previous)
    if err != nil {
      return nil, err
    }
    questions = append(questions, q)
    previous = append(previous, q)
  }
  return questions, nil
}

func (ps *practiceService) CheckAnswer(ctx context.Context, userID uuid.UUID, sessionID, question, sqlText, difficulty string) (*AnswerResult, error) {
  sqlText = normalization.ParseSQLInput(sqlText)

  handle, err := ps.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }

  result := &AnswerResult{}

  queryResult, execErr := handle.Query(ctx, sqlText)
  if execErr != nil {
    explanation, expErr := ps.generation.ExplainQueryError(ctx, userID, sqlText, execErr.Error())
    if expErr != nil {
      explanation = execErr.Error()
    }
    result.Explanation = explanation
  } else {
    result.ResultPreview = queryResult.RenderPreview()
    judgment, jErr := ps.generation.JudgeAnswer(ctx, userID, question, sqlText, result.ResultPreview)
    if jErr != nil {
      return nil, jErr
    }
    result.IsCorrect = judgment.IsCorrect
    result.Explanation = judgment.Explanation
    if judgment.IsCorrect {
      result.Points = PointsForDifficulty(difficulty)
    }
  }

  session, err := ps.loadSession(ctx, sessionID)
  if err != nil {
    return nil, err
  }
  if session == nil {
    // Grading still answers, but there is nothing to record against.
    return result, nil
  }

  attempts, err := decodeAttempts(session.Queries)
  if err != nil {
    return nil, err
  }
  attempts = append(attempts, types.QueryAttempt{
    Question:      question,
    SQL:           sqlText,
    IsCorrect:     result.IsCorrect,
    Explanation:   result.Explanation,
    ResultPreview: result.ResultPreview,
    Points:        result.Points,
    Difficulty:    difficulty,
    CheckedAt:     time.Now().UTC(),
  })

  // The total is always the sum over the log, never an increment on the
  // stored value.
  total := 0
  for _, a := range attempts {
    total += a.Points
  }

  encoded, err := json.Marshal(attempts)
  if err != nil {
    return nil, fmt.Errorf("Failed to encode query log: %w", err)
  }
  if err := ps.sessionRepo.UpdateQueriesAndScore(ctx, nil, session.ID, datatypes.JSON(encoded), total); err != nil {
    return nil, fmt.Errorf("Failed to persist query log: %w", err)
  }

  if result.Points > 0 {
    if err := ps.userRepo.AddPoints(ctx, nil, userID, result.Points); err != nil {
      ps.log.Warn("Failed to add user points", "user_id", userID, "error", err)
    }
  }

  result.TotalScore = total
  result.Persisted = true
  return result, nil
}

func (ps *practiceService) ExecuteQuery(ctx context.Context, userID uuid.UUID, sessionID, sqlText string) (*sandbox.QueryResult, error) {
  handle, err := ps.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }
  return handle.QueryN(ctx, freeFormRowLimit, normalization.ParseSQLInput(sqlText))
}

func (ps *practiceService) Teardown(ctx context.Context, userID uuid.UUID, sessionID string) {
  ps.registry.Release(userID, sessionID)
}

func (ps *practiceService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*types.PracticeSession, error) {
  return ps.sessionRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
}

func (ps *practiceService) ListSchemas(ctx context.Context, userID uuid.UUID) ([]*types.SchemaArtifact, error) {
  return ps.schemaRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
}
