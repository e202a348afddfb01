package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

// SchemaArtifact is the persisted record of a generated schema. Once applied
// successfully to a sandbox it is immutable and outlives the sandbox itself.
type SchemaArtifact struct {
  gorm.Model
  SchemaID      uuid.UUID       `gorm:"type:uuid;primaryKey;column:schema_id" json:"schema_id"`
  UserID        uuid.UUID       `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  User          *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  SchemaScript  string          `gorm:"type:text;not null;column:schema_script" json:"schema_script"`
  CreatedAt     time.Time       `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt     time.Time       `gorm:"not null;default:now()" json:"-"`
}

func (SchemaArtifact) TableName() string {
  return "schema_artifact"
}
