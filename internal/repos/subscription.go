package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type SubscriptionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, subscriptions []*types.Subscription) ([]*types.Subscription, error)
  GetActiveByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, now time.Time) ([]*types.Subscription, error)
  GetByStripeIDs(ctx context.Context, tx *gorm.DB, stripeIDs []string) ([]*types.Subscription, error)
  Update(ctx context.Context, tx *gorm.DB, subscription *types.Subscription) error
}

type subscriptionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
  repoLog := baseLog.With("repo", "SubscriptionRepo")
  return &subscriptionRepo{db: db, log: repoLog}
}

func (sr *subscriptionRepo) Create(ctx context.Context, tx *gorm.DB, subscriptions []*types.Subscription) ([]*types.Subscription, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  if len(subscriptions) == 0 {
    return []*types.Subscription{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&subscriptions).Error; err != nil {
    return nil, err
  }

  return subscriptions, nil
}

func (sr *subscriptionRepo) GetActiveByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID, now time.Time) ([]*types.Subscription, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  var results []*types.Subscription

  if len(userIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("user_id IN ? AND status = ? AND current_period_end > ?", userIDs, "active", now).
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (sr *subscriptionRepo) GetByStripeIDs(ctx context.Context, tx *gorm.DB, stripeIDs []string) ([]*types.Subscription, error) {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  var results []*types.Subscription

  if len(stripeIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("stripe_subscription_id IN ?", stripeIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (sr *subscriptionRepo) Update(ctx context.Context, tx *gorm.DB, subscription *types.Subscription) error {
  transaction := tx
  if transaction == nil {
    transaction = sr.db
  }

  return transaction.WithContext(ctx).Save(subscription).Error
}
