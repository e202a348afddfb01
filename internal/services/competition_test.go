package services

import (
  "context"
  "errors"
  "testing"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/sandbox"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type competitionDeps struct {
  registry   *sandbox.Registry
  generation *fakeGeneration
  usageRepo  *fakeUsageRepo
  schemaRepo *fakeSchemaRepo
  submissions *fakeSubmissionRepo
  userRepo   *fakeUserRepo
}

func newTestCompetition(t *testing.T) (CompetitionService, *competitionDeps) {
  t.Helper()
  log := testLogger(t)

  registry, err := sandbox.NewRegistry(t.TempDir(), log)
  if err != nil {
    t.Fatalf("Failed to create registry: %v", err)
  }
  t.Cleanup(registry.Close)

  deps := &competitionDeps{
    registry:    registry,
    generation:  newFakeGeneration(),
    usageRepo:   newFakeUsageRepo(),
    schemaRepo:  newFakeSchemaRepo(),
    submissions: newFakeSubmissionRepo(),
    userRepo:    newFakeUserRepo(),
  }
  subs := NewSubscriptionService(log, &fakeSubscriptionRepo{}, deps.usageRepo, defaultPlanCatalog(), PlanFree)

  cs := NewCompetitionService(
    log,
    registry,
    deps.generation,
    subs,
    deps.schemaRepo,
    deps.submissions,
    deps.userRepo,
  )
  return cs, deps
}

func (d *competitionDeps) seedWorkspace(t *testing.T, userID uuid.UUID, sessionID string) uuid.UUID {
  t.Helper()
  ctx := context.Background()

  schemaID := uuid.New()
  d.schemaRepo.artifacts[schemaID] = &types.SchemaArtifact{
    SchemaID:     schemaID,
    UserID:       userID,
    SchemaScript: booksSchema,
  }

  handle, err := d.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    t.Fatalf("Acquire failed: %v", err)
  }
  if err := handle.Exec(ctx, booksSchema); err != nil {
    t.Fatalf("Failed to apply schema: %v", err)
  }
  if err := handle.Exec(ctx, "INSERT INTO authors (id, name) VALUES (1, 'A')"); err != nil {
    t.Fatalf("Failed to seed rows: %v", err)
  }
  return schemaID
}

func TestCompetitionStart(t *testing.T) {
  ctx := context.Background()
  cs, deps := newTestCompetition(t)
  userID := uuid.New()
  schemaID := deps.seedWorkspace(t, userID, "s1")

  deps.generation.questions = []string{"q1", "q2", "q3"}

  submission, err := cs.Start(ctx, userID, schemaID, "basic", 3)
  if err != nil {
    t.Fatalf("Start failed: %v", err)
  }
  if submission.TotalRounds != 3 {
    t.Fatalf("expected 3 rounds, got %d", submission.TotalRounds)
  }
  if deps.generation.calls["generate_question"] != 3 {
    t.Fatalf("expected 3 question calls, got %d", deps.generation.calls["generate_question"])
  }

  year, month := currentPeriod()
  usage, _ := deps.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  if usage.CompetitionsEntered != 1 {
    t.Fatalf("expected 1 competition recorded, got %d", usage.CompetitionsEntered)
  }
}

func TestCompetitionQuotaDenied(t *testing.T) {
  ctx := context.Background()
  cs, deps := newTestCompetition(t)
  userID := uuid.New()
  schemaID := deps.seedWorkspace(t, userID, "s1")

  year, month := currentPeriod()
  usage, _ := deps.usageRepo.GetOrCreate(ctx, nil, userID, year, month)
  usage.CompetitionsEntered = defaultPlanCatalog()[PlanFree].Limits.MaxCompetitionsPerMonth

  _, err := cs.Start(ctx, userID, schemaID, "basic", 1)
  if !errors.Is(err, ErrQuotaExceeded) {
    t.Fatalf("expected ErrQuotaExceeded, got %v", err)
  }
}

func TestCompetitionSingleRoundWin(t *testing.T) {
  ctx := context.Background()
  cs, deps := newTestCompetition(t)
  userID := uuid.New()
  schemaID := deps.seedWorkspace(t, userID, "s1")

  deps.generation.questions = []string{"How many authors are there?"}
  // The user's query runs; the opponent's query fails, scoring zero.
  deps.generation.answerSQL = "SELECT * FROM missing_table"
  deps.generation.judgeCorrect = true

  submission, err := cs.Start(ctx, userID, schemaID, "basic", 1)
  if err != nil {
    t.Fatalf("Start failed: %v", err)
  }

  outcome, err := cs.SubmitRound(ctx, userID, submission.ID, "s1", 0, "SELECT COUNT(*) FROM authors")
  if err != nil {
    t.Fatalf("SubmitRound failed: %v", err)
  }
  if !outcome.UserCorrect || outcome.UserPoints != 5 {
    t.Fatalf("expected correct user round worth 5, got %+v", outcome)
  }
  if outcome.AICorrect || outcome.AIPoints != 0 {
    t.Fatalf("opponent's failing query must score zero, got %+v", outcome)
  }
  if !outcome.Finished || outcome.Result != "win" {
    t.Fatalf("single-round competition must settle as a win, got %+v", outcome)
  }

  stored := deps.submissions.submissions[submission.ID]
  if stored.Result != "win" || stored.UserScore != 5 || stored.AIScore != 0 {
    t.Fatalf("unexpected stored submission: %+v", stored)
  }
  if deps.userRepo.points[userID] != 5 {
    t.Fatalf("winner must bank their score, got %d points", deps.userRepo.points[userID])
  }
}

func TestCompetitionRoundReplayRejected(t *testing.T) {
  ctx := context.Background()
  cs, deps := newTestCompetition(t)
  userID := uuid.New()
  schemaID := deps.seedWorkspace(t, userID, "s1")

  deps.generation.questions = []string{"q1", "q2"}
  deps.generation.answerSQL = "SELECT 1"
  deps.generation.judgeCorrect = true

  submission, err := cs.Start(ctx, userID, schemaID, "basic", 2)
  if err != nil {
    t.Fatalf("Start failed: %v", err)
  }
  if _, err := cs.SubmitRound(ctx, userID, submission.ID, "s1", 0, "SELECT 1"); err != nil {
    t.Fatalf("SubmitRound failed: %v", err)
  }
  if _, err := cs.SubmitRound(ctx, userID, submission.ID, "s1", 0, "SELECT 1"); err == nil {
    t.Fatal("replaying a round must be rejected")
  }
}

func TestCompetitionForeignSubmission(t *testing.T) {
  ctx := context.Background()
  cs, deps := newTestCompetition(t)
  userID := uuid.New()
  schemaID := deps.seedWorkspace(t, userID, "s1")

  deps.generation.questions = []string{"q1"}
  submission, err := cs.Start(ctx, userID, schemaID, "basic", 1)
  if err != nil {
    t.Fatalf("Start failed: %v", err)
  }

  _, err = cs.SubmitRound(ctx, uuid.New(), submission.ID, "s1", 0, "SELECT 1")
  if !errors.Is(err, ErrNotFound) {
    t.Fatalf("another user's submission must read as not found, got %v", err)
  }
}
