package services

import (
  "context"
  "fmt"
  "time"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

func testLogger(t interface{ Fatalf(string, ...interface{}) }) *logger.Logger {
  log, err := logger.New("development")
  if err != nil {
    t.Fatalf("Failed to create logger: %v", err)
  }
  return log
}

// ---- repos ----

type fakeUserRepo struct {
  users  map[uuid.UUID]*types.User
  points map[uuid.UUID]int
}

func newFakeUserRepo() *fakeUserRepo {
  return &fakeUserRepo{users: map[uuid.UUID]*types.User{}, points: map[uuid.UUID]int{}}
}

func (f *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
  for _, u := range users {
    f.users[u.ID] = u
  }
  return users, nil
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
  var out []*types.User
  for _, id := range userIDs {
    if u, ok := f.users[id]; ok {
      out = append(out, u)
    }
  }
  return out, nil
}

func (f *fakeUserRepo) GetByEmails(ctx context.Context, tx *gorm.DB, userEmails []string) ([]*types.User, error) {
  var out []*types.User
  for _, email := range userEmails {
    for _, u := range f.users {
      if u.Email == email {
        out = append(out, u)
      }
    }
  }
  return out, nil
}

func (f *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, userEmail string) (bool, error) {
  for _, u := range f.users {
    if u.Email == userEmail {
      return true, nil
    }
  }
  return false, nil
}

func (f *fakeUserRepo) AddPoints(ctx context.Context, tx *gorm.DB, userID uuid.UUID, delta int) error {
  f.points[userID] += delta
  if u, ok := f.users[userID]; ok {
    u.Points += delta
  }
  return nil
}

type fakeSchemaRepo struct {
  artifacts map[uuid.UUID]*types.SchemaArtifact
}

func newFakeSchemaRepo() *fakeSchemaRepo {
  return &fakeSchemaRepo{artifacts: map[uuid.UUID]*types.SchemaArtifact{}}
}

func (f *fakeSchemaRepo) Create(ctx context.Context, tx *gorm.DB, artifacts []*types.SchemaArtifact) ([]*types.SchemaArtifact, error) {
  for _, a := range artifacts {
    f.artifacts[a.SchemaID] = a
  }
  return artifacts, nil
}

func (f *fakeSchemaRepo) GetByIDs(ctx context.Context, tx *gorm.DB, schemaIDs []uuid.UUID) ([]*types.SchemaArtifact, error) {
  var out []*types.SchemaArtifact
  for _, id := range schemaIDs {
    if a, ok := f.artifacts[id]; ok {
      out = append(out, a)
    }
  }
  return out, nil
}

func (f *fakeSchemaRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.SchemaArtifact, error) {
  var out []*types.SchemaArtifact
  for _, a := range f.artifacts {
    for _, id := range userIDs {
      if a.UserID == id {
        out = append(out, a)
      }
    }
  }
  return out, nil
}

type fakeSessionRepo struct {
  sessions map[string]*types.PracticeSession
}

func newFakeSessionRepo() *fakeSessionRepo {
  return &fakeSessionRepo{sessions: map[string]*types.PracticeSession{}}
}

func (f *fakeSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.PracticeSession) ([]*types.PracticeSession, error) {
  for _, s := range sessions {
    f.sessions[s.ID] = s
  }
  return sessions, nil
}

func (f *fakeSessionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]*types.PracticeSession, error) {
  var out []*types.PracticeSession
  for _, id := range sessionIDs {
    if s, ok := f.sessions[id]; ok {
      out = append(out, s)
    }
  }
  return out, nil
}

func (f *fakeSessionRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.PracticeSession, error) {
  var out []*types.PracticeSession
  for _, s := range f.sessions {
    for _, id := range userIDs {
      if s.UserID == id {
        out = append(out, s)
      }
    }
  }
  return out, nil
}

func (f *fakeSessionRepo) UpdateQueriesAndScore(ctx context.Context, tx *gorm.DB, sessionID string, queries datatypes.JSON, totalScore int) error {
  s, ok := f.sessions[sessionID]
  if !ok {
    return fmt.Errorf("session %s not found", sessionID)
  }
  s.Queries = queries
  s.TotalScore = totalScore
  return nil
}

type fakeUsageRepo struct {
  usage   map[string]*types.UserUsage
  failErr error
}

func newFakeUsageRepo() *fakeUsageRepo {
  return &fakeUsageRepo{usage: map[string]*types.UserUsage{}}
}

func usageKey(userID uuid.UUID, year, month int) string {
  return fmt.Sprintf("%s-%d-%d", userID, year, month)
}

func (f *fakeUsageRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int) (*types.UserUsage, error) {
  if f.failErr != nil {
    return nil, f.failErr
  }
  k := usageKey(userID, year, month)
  if u, ok := f.usage[k]; ok {
    return u, nil
  }
  u := &types.UserUsage{ID: uuid.New(), UserID: userID, Year: year, Month: month}
  f.usage[k] = u
  return u, nil
}

func (f *fakeUsageRepo) IncrementCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int, column string) error {
  if f.failErr != nil {
    return f.failErr
  }
  u, err := f.GetOrCreate(ctx, tx, userID, year, month)
  if err != nil {
    return err
  }
  switch column {
  case "schemas_generated":
    u.SchemasGenerated++
  case "competitions_entered":
    u.CompetitionsEntered++
  default:
    return fmt.Errorf("unknown column %s", column)
  }
  return nil
}

type fakeSubscriptionRepo struct {
  subs    []*types.Subscription
  failErr error
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, tx *gorm.DB, subscriptions []*types.Subscription) ([]*types.Subscription, error) {
  if f.failErr != nil {
    return nil, f.failErr
  }
  f.subs = append(f.subs, subscriptions...)
  return subscriptions, nil
}

func (f *fakeSubscriptionRepo) GetActiveByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, now time.Time) ([]*types.Subscription, error) {
  if f.failErr != nil {
    return nil, f.failErr
  }
  var out []*types.Subscription
  for _, s := range f.subs {
    for _, id := range userIDs {
      if s.UserID == id && s.Status == "active" && s.CurrentPeriodEnd.After(now) {
        out = append(out, s)
      }
    }
  }
  return out, nil
}

func (f *fakeSubscriptionRepo) GetByStripeIDs(ctx context.Context, tx *gorm.DB, stripeIDs []string) ([]*types.Subscription, error) {
  if f.failErr != nil {
    return nil, f.failErr
  }
  var out []*types.Subscription
  for _, s := range f.subs {
    for _, id := range stripeIDs {
      if s.StripeSubscriptionID == id {
        out = append(out, s)
      }
    }
  }
  return out, nil
}

func (f *fakeSubscriptionRepo) Update(ctx context.Context, tx *gorm.DB, subscription *types.Subscription) error {
  if f.failErr != nil {
    return f.failErr
  }
  return nil
}

type fakeSubmissionRepo struct {
  submissions map[uuid.UUID]*types.CompetitionSubmission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
  return &fakeSubmissionRepo{submissions: map[uuid.UUID]*types.CompetitionSubmission{}}
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, submissions []*types.CompetitionSubmission) ([]*types.CompetitionSubmission, error) {
  for _, s := range submissions {
    f.submissions[s.ID] = s
  }
  return submissions, nil
}

func (f *fakeSubmissionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, submissionIDs []uuid.UUID) ([]*types.CompetitionSubmission, error) {
  var out []*types.CompetitionSubmission
  for _, id := range submissionIDs {
    if s, ok := f.submissions[id]; ok {
      out = append(out, s)
    }
  }
  return out, nil
}

func (f *fakeSubmissionRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.CompetitionSubmission, error) {
  var out []*types.CompetitionSubmission
  for _, s := range f.submissions {
    for _, id := range userIDs {
      if s.UserID == id {
        out = append(out, s)
      }
    }
  }
  return out, nil
}

func (f *fakeSubmissionRepo) Update(ctx context.Context, tx *gorm.DB, submission *types.CompetitionSubmission) error {
  f.submissions[submission.ID] = submission
  return nil
}

type fakeAILogRepo struct {
  entries []*types.AICallLog
}

func (f *fakeAILogRepo) Create(ctx context.Context, tx *gorm.DB, logs []*types.AICallLog) ([]*types.AICallLog, error) {
  f.entries = append(f.entries, logs...)
  return logs, nil
}

// ---- generation ----

// fakeGeneration scripts every capability and counts calls.
type fakeGeneration struct {
  schemaScript   string
  schemaErr      error
  repairedSchema string
  repairErr      error

  populationCode   string
  populationErr    error
  repairedCode     string
  repairCodeErr    error

  questions []string
  answerSQL string

  judgeCorrect bool
  judgeExplain string
  judgeErr     error

  errorExplain string

  calls map[string]int
}

func newFakeGeneration() *fakeGeneration {
  return &fakeGeneration{calls: map[string]int{}}
}

func (f *fakeGeneration) GenerateSchema(ctx context.Context, userID uuid.UUID, topic, difficulty string) (string, error) {
  f.calls["generate_schema"]++
  return f.schemaScript, f.schemaErr
}

func (f *fakeGeneration) RepairSchema(ctx context.Context, userID uuid.UUID, script, applyError string) (string, error) {
  f.calls["repair_schema"]++
  return f.repairedSchema, f.repairErr
}

func (f *fakeGeneration) GeneratePopulationCode(ctx context.Context, userID uuid.UUID, schemaScript string) (string, error) {
  f.calls["generate_population_code"]++
  return f.populationCode, f.populationErr
}

func (f *fakeGeneration) RepairPopulationCode(ctx context.Context, userID uuid.UUID, code, runError string) (string, error) {
  f.calls["repair_population_code"]++
  return f.repairedCode, f.repairCodeErr
}

func (f *fakeGeneration) GenerateQuestion(ctx context.Context, userID uuid.UUID, schemaScript, difficulty string, previousQuestions []string) (string, error) {
  f.calls["generate_question"]++
  if len(f.questions) == 0 {
    return "question", nil
  }
  q := f.questions[0]
  if len(f.questions) > 1 {
    f.questions = f.questions[1:]
  }
  return q, nil
}

func (f *fakeGeneration) GenerateAnswerSQL(ctx context.Context, userID uuid.UUID, schemaScript, question string) (string, error) {
  f.calls["generate_answer_sql"]++
  return f.answerSQL, nil
}

func (f *fakeGeneration) JudgeAnswer(ctx context.Context, userID uuid.UUID, question, sqlText, resultPreview string) (*Judgment, error) {
  f.calls["judge_answer"]++
  if f.judgeErr != nil {
    return nil, f.judgeErr
  }
  return &Judgment{IsCorrect: f.judgeCorrect, Explanation: f.judgeExplain}, nil
}

func (f *fakeGeneration) ExplainQueryError(ctx context.Context, userID uuid.UUID, sqlText, dbError string) (string, error) {
  f.calls["explain_query_error"]++
  return f.errorExplain, nil
}
