package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

// UserUsage tracks per-user monthly counters for quota-limited features.
// One row per (user, year, month); counters are monotonically non-decreasing
// within a period and a new period starts from a fresh zero row.
type UserUsage struct {
  gorm.Model
  ID                    uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID                uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_usage_period;column:user_id" json:"user_id"`
  Year                  int         `gorm:"not null;uniqueIndex:idx_user_usage_period;column:year" json:"year"`
  Month                 int         `gorm:"not null;uniqueIndex:idx_user_usage_period;column:month" json:"month"`
  SchemasGenerated      int         `gorm:"not null;default:0;column:schemas_generated" json:"schemas_generated"`
  CompetitionsEntered   int         `gorm:"not null;default:0;column:competitions_entered" json:"competitions_entered"`
  CreatedAt             time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt             time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserUsage) TableName() string {
  return "user_usage"
}
