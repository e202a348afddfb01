package types

import (
  "time"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

// PracticeSession is a bounded sequence of graded query attempts against one
// schema. Queries is an append-only JSON log of QueryAttempt records;
// TotalScore is always recomputed from that log, never incremented in place.
type PracticeSession struct {
  gorm.Model
  ID            string          `gorm:"primaryKey;column:id" json:"id"`
  UserID        uuid.UUID       `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  User          *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  SchemaID      uuid.UUID       `gorm:"type:uuid;index;not null;column:schema_id" json:"schema_id"`
  Difficulty    string          `gorm:"column:difficulty" json:"difficulty"`
  Queries       datatypes.JSON  `gorm:"type:jsonb;column:queries" json:"queries"`
  TotalScore    int             `gorm:"not null;default:0;column:total_score" json:"total_score"`
  CreatedAt     time.Time       `gorm:"not null;default:now()" json:"created_at"`
  CompletedAt   *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
  UpdatedAt     time.Time       `gorm:"not null;default:now()" json:"-"`
}

func (PracticeSession) TableName() string {
  return "practice_session"
}

// QueryAttempt is one immutable entry of PracticeSession.Queries.
type QueryAttempt struct {
  Question        string    `json:"question"`
  SQL             string    `json:"sql"`
  IsCorrect       bool      `json:"is_correct"`
  Explanation     string    `json:"explanation"`
  ResultPreview   string    `json:"result_preview"`
  Points          int       `json:"points"`
  Difficulty      string    `json:"difficulty"`
  CheckedAt       time.Time `json:"checked_at"`
}
