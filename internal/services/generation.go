package services

import (
  "context"
  "fmt"
  "strings"
  "github.com/google/uuid"
  "github.com/sqlmentor/sqlmentor-backend/internal/clients/openai"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/repos"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

// Judgment is the model's verdict on one answer.
type Judgment struct {
  IsCorrect   bool
  Explanation string
}

// GenerationService wraps every model call the product makes. Each call
// writes an audit row so model spend and failure rates are attributable.
type GenerationService interface {
  GenerateSchema(ctx context.Context, userID uuid.UUID, topic, difficulty string) (string, error)
  RepairSchema(ctx context.Context, userID uuid.UUID, script, applyError string) (string, error)
  GeneratePopulationCode(ctx context.Context, userID uuid.UUID, schemaScript string) (string, error)
  RepairPopulationCode(ctx context.Context, userID uuid.UUID, code, runError string) (string, error)
  GenerateQuestion(ctx context.Context, userID uuid.UUID, schemaScript, difficulty string, previousQuestions []string) (string, error)
  GenerateAnswerSQL(ctx context.Context, userID uuid.UUID, schemaScript, question string) (string, error)
  JudgeAnswer(ctx context.Context, userID uuid.UUID, question, sqlText, resultPreview string) (*Judgment, error)
  ExplainQueryError(ctx context.Context, userID uuid.UUID, sqlText, dbError string) (string, error)
}

type generationService struct {
  log       *logger.Logger
  client    openai.Client
  aiLogRepo repos.AICallLogRepo
}

func NewGenerationService(log *logger.Logger, client openai.Client, aiLogRepo repos.AICallLogRepo) GenerationService {
  serviceLog := log.With("service", "GenerationService")
  return &generationService{log: serviceLog, client: client, aiLogRepo: aiLogRepo}
}

// Truncation bounds for text fed back into repair and grading prompts.
// Long driver errors add noise without helping the model.
const (
  repairErrorLimit  = 200
  gradingErrorLimit = 300
)

func Truncate(s string, limit int) string {
  if len(s) <= limit {
    return s
  }
  return s[:limit]
}

func (gs *generationService) audit(ctx context.Context, userID uuid.UUID, callType string, callErr error) {
  entry := &types.AICallLog{
    ID:       uuid.New(),
    UserID:   &userID,
    CallType: callType,
    Model:    gs.client.Model(),
    Success:  callErr == nil,
  }
  if callErr != nil {
    entry.Error = Truncate(callErr.Error(), 500)
  }
  if _, err := gs.aiLogRepo.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
    gs.log.Warn("Failed to write model call audit row", "call_type", callType, "error", err)
  }
}

const schemaSystemPrompt = `You design practice databases for SQL learners.
Respond with sqlite-compatible DDL only: CREATE TABLE statements separated by
semicolons. Use realistic table and column names, foreign keys between
tables, and no comments or markdown.`

func (gs *generationService) GenerateSchema(ctx context.Context, userID uuid.UUID, topic, difficulty string) (string, error) {
  user := fmt.Sprintf(
    "Create a practice database about %q for a learner at %s level. "+
      "Between 3 and 6 related tables.",
    topic, difficulty,
  )
  text, err := gs.client.GenerateText(ctx, schemaSystemPrompt, user)
  gs.audit(ctx, userID, "generate_schema", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return openai.StripCodeFences(text), nil
}

func (gs *generationService) RepairSchema(ctx context.Context, userID uuid.UUID, script, applyError string) (string, error) {
  user := fmt.Sprintf(
    "This DDL failed to apply on sqlite.\n\nDDL:\n%s\n\nError:\n%s\n\n"+
      "Return corrected sqlite-compatible DDL only.",
    script, Truncate(applyError, repairErrorLimit),
  )
  text, err := gs.client.GenerateText(ctx, schemaSystemPrompt, user)
  gs.audit(ctx, userID, "repair_schema", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return openai.StripCodeFences(text), nil
}

const populationSystemPrompt = `You write Go programs that fill practice
databases with synthetic rows. Respond with a single Go file, package main,
defining exactly:

	func Populate(exec func(query string, args ...interface{}) error) error

The program may import only fmt, strings, strconv, math, math/rand and time.
All database writes go through the exec argument as INSERT statements.
Insert at least 5 rows per table. No markdown.`

func (gs *generationService) GeneratePopulationCode(ctx context.Context, userID uuid.UUID, schemaScript string) (string, error) {
  user := fmt.Sprintf("Write the population program for this schema:\n\n%s", schemaScript)
  text, err := gs.client.GenerateText(ctx, populationSystemPrompt, user)
  gs.audit(ctx, userID, "generate_population_code", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return openai.StripCodeFences(text), nil
}

func (gs *generationService) RepairPopulationCode(ctx context.Context, userID uuid.UUID, code, runError string) (string, error) {
  user := fmt.Sprintf(
    "This population program failed.\n\nProgram:\n%s\n\nError:\n%s\n\n"+
      "Return the corrected program only.",
    code, Truncate(runError, repairErrorLimit),
  )
  text, err := gs.client.GenerateText(ctx, populationSystemPrompt, user)
  gs.audit(ctx, userID, "repair_population_code", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return openai.StripCodeFences(text), nil
}

func (gs *generationService) GenerateQuestion(ctx context.Context, userID uuid.UUID, schemaScript, difficulty string, previousQuestions []string) (string, error) {
  system := `You write SQL practice questions. Respond with a single
question in plain English that can be answered with one SELECT statement
against the given schema. No SQL, no markdown.`
  var sb strings.Builder
  fmt.Fprintf(&sb, "Schema:\n%s\n\nDifficulty: %s\n", schemaScript, difficulty)
  if len(previousQuestions) > 0 {
    sb.WriteString("\nAlready asked, do not repeat:\n")
    for _, q := range previousQuestions {
      fmt.Fprintf(&sb, "- %s\n", q)
    }
  }
  text, err := gs.client.GenerateText(ctx, system, sb.String())
  gs.audit(ctx, userID, "generate_question", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return text, nil
}

func (gs *generationService) GenerateAnswerSQL(ctx context.Context, userID uuid.UUID, schemaScript, question string) (string, error) {
  system := `You answer SQL practice questions. Respond with exactly one
sqlite SELECT statement and nothing else.`
  user := fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schemaScript, question)
  text, err := gs.client.GenerateText(ctx, system, user)
  gs.audit(ctx, userID, "generate_answer_sql", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return openai.StripCodeFences(text), nil
}

var judgmentSchema = map[string]any{
  "type": "object",
  "properties": map[string]any{
    "is_correct": map[string]any{
      "type": "boolean",
    },
    "explanation": map[string]any{
      "type": "string",
    },
  },
  "required":             []string{"is_correct", "explanation"},
  "additionalProperties": false,
}

func (gs *generationService) JudgeAnswer(ctx context.Context, userID uuid.UUID, question, sqlText, resultPreview string) (*Judgment, error) {
  system := `You grade SQL answers. Judge whether the learner's query
answers the question, using the query text and a preview of its result.
Explain briefly in language a learner can follow.`
  user := fmt.Sprintf(
    "Question: %s\n\nLearner's query:\n%s\n\nResult preview:\n%s",
    question, sqlText, resultPreview,
  )
  out, err := gs.client.GenerateJSON(ctx, system, user, "answer_judgment", judgmentSchema)
  gs.audit(ctx, userID, "judge_answer", err)
  if err != nil {
    return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }

  judgment := &Judgment{}
  if v, ok := out["is_correct"].(bool); ok {
    judgment.IsCorrect = v
  }
  if v, ok := out["explanation"].(string); ok {
    judgment.Explanation = v
  }
  return judgment, nil
}

func (gs *generationService) ExplainQueryError(ctx context.Context, userID uuid.UUID, sqlText, dbError string) (string, error) {
  system := `You help SQL learners understand database errors. Explain in
two or three sentences what went wrong and how to fix it. No markdown.`
  user := fmt.Sprintf("Query:\n%s\n\nError:\n%s", sqlText, Truncate(dbError, gradingErrorLimit))
  text, err := gs.client.GenerateText(ctx, system, user)
  gs.audit(ctx, userID, "explain_query_error", err)
  if err != nil {
    return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
  }
  return text, nil
}
