package repos

import (
  "context"
  "fmt"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type UserUsageRepo interface {
  GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int) (*types.UserUsage, error)
  IncrementCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int, column string) error
}

type userUsageRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserUsageRepo(db *gorm.DB, baseLog *logger.Logger) UserUsageRepo {
  repoLog := baseLog.With("repo", "UserUsageRepo")
  return &userUsageRepo{db: db, log: repoLog}
}

func (uur *userUsageRepo) GetOrCreate(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int) (*types.UserUsage, error) {
  transaction := tx
  if transaction == nil {
    transaction = uur.db
  }

  usage := types.UserUsage{
    UserID: userID,
    Year:   year,
    Month:  month,
  }

  if err := transaction.WithContext(ctx).
    Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
    FirstOrCreate(&usage).Error; err != nil {
    return nil, err
  }

  return &usage, nil
}

// IncrementCounter bumps one usage column by 1 with a single UPDATE so that
// concurrent increments for the same period cannot lose updates. The column
// name is restricted to the known counters.
func (uur *userUsageRepo) IncrementCounter(ctx context.Context, tx *gorm.DB, userID uuid.UUID, year, month int, column string) error {
  transaction := tx
  if transaction == nil {
    transaction = uur.db
  }

  switch column {
  case "schemas_generated", "competitions_entered":
  default:
    return fmt.Errorf("unknown usage counter column: %s", column)
  }

  res := transaction.WithContext(ctx).
    Model(&types.UserUsage{}).
    Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
    UpdateColumn(column, gorm.Expr(column+" + 1"))
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected > 0 {
    return nil
  }

  // No row yet for this period: create the zero row, then bump it.
  if _, err := uur.GetOrCreate(ctx, transaction, userID, year, month); err != nil {
    return err
  }
  return transaction.WithContext(ctx).
    Model(&types.UserUsage{}).
    Where("user_id = ? AND year = ? AND month = ?", userID, year, month).
    UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}
