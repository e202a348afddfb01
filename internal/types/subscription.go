package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

type Subscription struct {
  gorm.Model
  ID                    uuid.UUID   `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
  UserID                uuid.UUID   `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  User                  *User       `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  StripeSubscriptionID  string      `gorm:"uniqueIndex;column:stripe_subscription_id" json:"stripe_subscription_id"`
  Plan                  string      `gorm:"not null;column:plan" json:"plan"`
  Status                string      `gorm:"not null;column:status" json:"status"`
  CurrentPeriodEnd      time.Time   `gorm:"not null;column:current_period_end" json:"current_period_end"`
  CancelAtPeriodEnd     bool        `gorm:"not null;default:false;column:cancel_at_period_end" json:"cancel_at_period_end"`
  CreatedAt             time.Time   `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt             time.Time   `gorm:"not null;default:now()" json:"updated_at"`
}

func (Subscription) TableName() string {
  return "subscription"
}
