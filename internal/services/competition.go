package services

import (
  "context"
  "encoding/json"
  "fmt"
  "time"
  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/datatypes"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/normalization"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/sandbox"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

const defaultCompetitionRounds = 5

// RoundOutcome is what one submitted round reports back to the caller.
type RoundOutcome struct {
  Round       int    `json:"round"`
  Question    string `json:"question"`
  UserCorrect bool   `json:"user_correct"`
  UserPoints  int    `json:"user_points"`
  AISQL       string `json:"ai_sql"`
  AICorrect   bool   `json:"ai_correct"`
  AIPoints    int    `json:"ai_points"`
  Explanation string `json:"explanation"`
  Finished    bool   `json:"finished"`
  Result      string `json:"result,omitempty"`
}

type CompetitionService interface {
  // Start gates on the competition quota, generates the round questions
  // for the schema, creates the submission row and records the usage.
  Start(ctx context.Context, userID uuid.UUID, schemaID uuid.UUID, difficulty string, rounds int) (*types.CompetitionSubmission, error)

  // SubmitRound grades the user's answer and the AI opponent's answer
  // for one round, concurrently, and updates the running score. The last
  // round settles the result.
  SubmitRound(ctx context.Context, userID uuid.UUID, submissionID uuid.UUID, sessionID string, round int, userSQL string) (*RoundOutcome, error)

  History(ctx context.Context, userID uuid.UUID) ([]*types.CompetitionSubmission, error)
}

type competitionService struct {
  log          *logger.Logger
  registry     *sandbox.Registry
  generation   GenerationService
  subscription SubscriptionService
  schemaRepo   repos.SchemaArtifactRepo
  submissionRepo repos.CompetitionSubmissionRepo
  userRepo     repos.UserRepo
}

func NewCompetitionService(
  log *logger.Logger,
  registry *sandbox.Registry,
  generation GenerationService,
  subscription SubscriptionService,
  schemaRepo repos.SchemaArtifactRepo,
  submissionRepo repos.CompetitionSubmissionRepo,
  userRepo repos.UserRepo,
) CompetitionService {
  serviceLog := log.With("service", "CompetitionService")
  return &competitionService{
    log:            serviceLog,
    registry:       registry,
    generation:     generation,
    subscription:   subscription,
    schemaRepo:     schemaRepo,
    submissionRepo: submissionRepo,
    userRepo:       userRepo,
  }
}

func (cs *competitionService) Start(ctx context.Context, userID uuid.UUID, schemaID uuid.UUID, difficulty string, rounds int) (*types.CompetitionSubmission, error) {
  check, err := cs.subscription.CanUseFeature(ctx, userID, FeatureCompetition)
  if err != nil {
    return nil, err
  }
  if !check.Allowed {
    return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, check.Reason)
  }

  artifacts, err := cs.schemaRepo.GetByIDs(ctx, nil, []uuid.UUID{schemaID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load schema artifact: %w", err)
  }
  if len(artifacts) == 0 {
    return nil, fmt.Errorf("%w: schema %s", ErrNotFound, schemaID)
  }
  artifact := artifacts[0]

  if rounds <= 0 {
    rounds = defaultCompetitionRounds
  }
  if rounds > 10 {
    rounds = 10
  }

  roundData := make([]types.CompetitionRound, 0, rounds)
  previous := make([]string, 0, rounds)
  for i := 0; i < rounds; i++ {
    q, err := cs.generation.GenerateQuestion(ctx, userID, artifact.SchemaScript, difficulty, previous)
    if err != nil {
      return nil, err
    }
    roundData = append(roundData, types.CompetitionRound{Question: q})
    previous = append(previous, q)
  }

  encoded, err := json.Marshal(roundData)
  if err != nil {
    return nil, fmt.Errorf("Failed to encode rounds: %w", err)
  }

  submission := &types.CompetitionSubmission{
    ID:          uuid.New(),
    UserID:      userID,
    SchemaID:    schemaID,
    Difficulty:  difficulty,
    TotalRounds: rounds,
    RoundsData:  datatypes.JSON(encoded),
    SubmittedAt: time.Now().UTC(),
  }
  if _, err := cs.submissionRepo.Create(ctx, nil, []*types.CompetitionSubmission{submission}); err != nil {
    return nil, fmt.Errorf("Failed to create competition submission: %w", err)
  }

  if err := cs.subscription.IncrementUsage(ctx, userID, FeatureCompetition); err != nil {
    cs.log.Warn("Failed to record competition usage", "user_id", userID, "error", err)
  }

  return submission, nil
}

type gradedAnswer struct {
  sql     string
  correct bool
  points  int
  explain string
}

func (cs *competitionService) gradeAnswer(ctx context.Context, userID uuid.UUID, handle *sandbox.Handle, question, sqlText, difficulty string) (*gradedAnswer, error) {
  out := &gradedAnswer{sql: sqlText}

  queryResult, execErr := handle.Query(ctx, sqlText)
  if execErr != nil {
    out.explain = Truncate(execErr.Error(), gradingErrorLimit)
    return out, nil
  }

  judgment, err := cs.generation.JudgeAnswer(ctx, userID, question, sqlText, queryResult.RenderPreview())
  if err != nil {
    return nil, err
  }
  out.correct = judgment.IsCorrect
  out.explain = judgment.Explanation
  if judgment.IsCorrect {
    out.points = PointsForDifficulty(difficulty)
  }
  return out, nil
}

func (cs *competitionService) SubmitRound(ctx context.Context, userID uuid.UUID, submissionID uuid.UUID, sessionID string, round int, userSQL string) (*RoundOutcome, error) {
  submissions, err := cs.submissionRepo.GetByIDs(ctx, nil, []uuid.UUID{submissionID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load submission: %w", err)
  }
  if len(submissions) == 0 || submissions[0].UserID != userID {
    return nil, fmt.Errorf("%w: submission %s", ErrNotFound, submissionID)
  }
  submission := submissions[0]

  if submission.Result != "" {
    return nil, fmt.Errorf("competition already settled: %s", submission.Result)
  }

  var rounds []types.CompetitionRound
  if err := json.Unmarshal(submission.RoundsData, &rounds); err != nil {
    return nil, fmt.Errorf("Failed to decode rounds: %w", err)
  }
  if round < 0 || round >= len(rounds) {
    return nil, fmt.Errorf("%w: round %d", ErrNotFound, round)
  }
  if !rounds[round].PlayedAt.IsZero() {
    return nil, fmt.Errorf("round %d already played", round)
  }
  question := rounds[round].Question

  artifacts, err := cs.schemaRepo.GetByIDs(ctx, nil, []uuid.UUID{submission.SchemaID})
  if err != nil {
    return nil, fmt.Errorf("Failed to load schema artifact: %w", err)
  }
  if len(artifacts) == 0 {
    return nil, fmt.Errorf("%w: schema %s", ErrNotFound, submission.SchemaID)
  }
  artifact := artifacts[0]

  handle, err := cs.registry.Acquire(ctx, userID, sessionID)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
  }

  userSQL = normalization.ParseSQLInput(userSQL)

  var userGrade, aiGrade *gradedAnswer
  g, gctx := errgroup.WithContext(ctx)
  g.Go(func() error {
    grade, err := cs.gradeAnswer(gctx, userID, handle, question, userSQL, submission.Difficulty)
    if err != nil {
      return err
    }
    userGrade = grade
    return nil
  })
  g.Go(func() error {
    aiSQL, err := cs.generation.GenerateAnswerSQL(gctx, userID, artifact.SchemaScript, question)
    if err != nil {
      return err
    }
    grade, err := cs.gradeAnswer(gctx, userID, handle, question, aiSQL, submission.Difficulty)
    if err != nil {
      return err
    }
    aiGrade = grade
    return nil
  })
  if err := g.Wait(); err != nil {
    return nil, err
  }

  rounds[round] = types.CompetitionRound{
    Question:    question,
    UserSQL:     userSQL,
    UserCorrect: userGrade.correct,
    UserPoints:  userGrade.points,
    AISQL:       aiGrade.sql,
    AICorrect:   aiGrade.correct,
    AIPoints:    aiGrade.points,
    Explanation: userGrade.explain,
    PlayedAt:    time.Now().UTC(),
  }

  submission.UserScore += userGrade.points
  submission.AIScore += aiGrade.points
  if userGrade.correct {
    submission.UserCorrectAnswers++
  }
  if aiGrade.correct {
    submission.AICorrectAnswers++
  }

  outcome := &RoundOutcome{
    Round:       round,
    Question:    question,
    UserCorrect: userGrade.correct,
    UserPoints:  userGrade.points,
    AISQL:       aiGrade.sql,
    AICorrect:   aiGrade.correct,
    AIPoints:    aiGrade.points,
    Explanation: userGrade.explain,
  }

  played := 0
  for _, r := range rounds {
    if !r.PlayedAt.IsZero() {
      played++
    }
  }
  if played == submission.TotalRounds {
    switch {
    case submission.UserScore > submission.AIScore:
      submission.Result = "win"
    case submission.UserScore < submission.AIScore:
      submission.Result = "lose"
    default:
      submission.Result = "tie"
    }
    outcome.Finished = true
    outcome.Result = submission.Result

    if submission.UserScore > 0 {
      if err := cs.userRepo.AddPoints(ctx, nil, userID, submission.UserScore); err != nil {
        cs.log.Warn("Failed to add competition points", "user_id", userID, "error", err)
      }
    }
  }

  encoded, err := json.Marshal(rounds)
  if err != nil {
    return nil, fmt.Errorf("Failed to encode rounds: %w", err)
  }
  submission.RoundsData = datatypes.JSON(encoded)
  if err := cs.submissionRepo.Update(ctx, nil, submission); err != nil {
    return nil, fmt.Errorf("Failed to persist round: %w", err)
  }

  return outcome, nil
}

func (cs *competitionService) History(ctx context.Context, userID uuid.UUID) ([]*types.CompetitionSubmission, error) {
  return cs.submissionRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
}
