package types

import (
  "time"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type CompetitionSubmission struct {
  gorm.Model
  ID                  uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID              uuid.UUID       `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  User                *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  SchemaID            uuid.UUID       `gorm:"type:uuid;column:schema_id" json:"schema_id"`
  Difficulty          string          `gorm:"not null;column:difficulty" json:"difficulty"`
  TotalRounds         int             `gorm:"not null;default:5;column:total_rounds" json:"total_rounds"`
  UserScore           int             `gorm:"not null;default:0;column:user_score" json:"user_score"`
  UserCorrectAnswers  int             `gorm:"not null;default:0;column:user_correct_answers" json:"user_correct_answers"`
  AIScore             int             `gorm:"not null;default:0;column:ai_score" json:"ai_score"`
  AICorrectAnswers    int             `gorm:"not null;default:0;column:ai_correct_answers" json:"ai_correct_answers"`
  Result              string          `gorm:"column:result" json:"result"`
  RoundsData          datatypes.JSON  `gorm:"type:jsonb;column:rounds_data" json:"rounds_data"`
  SubmittedAt         time.Time       `gorm:"not null;default:now();column:submitted_at" json:"submitted_at"`
  CreatedAt           time.Time       `gorm:"not null;default:now()" json:"-"`
  UpdatedAt           time.Time       `gorm:"not null;default:now()" json:"-"`
}

func (CompetitionSubmission) TableName() string {
  return "competition_submission"
}

// CompetitionRound is one entry of CompetitionSubmission.RoundsData.
type CompetitionRound struct {
  Question        string    `json:"question"`
  UserSQL         string    `json:"user_sql"`
  UserCorrect     bool      `json:"user_correct"`
  UserPoints      int       `json:"user_points"`
  AISQL           string    `json:"ai_sql"`
  AICorrect       bool      `json:"ai_correct"`
  AIPoints        int       `json:"ai_points"`
  Explanation     string    `json:"explanation"`
  PlayedAt        time.Time `json:"played_at"`
}
