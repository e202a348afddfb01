package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type PracticeSessionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, sessions []*types.PracticeSession) ([]*types.PracticeSession, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]*types.PracticeSession, error)
  GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.PracticeSession, error)
  UpdateQueriesAndScore(ctx context.Context, tx *gorm.DB, sessionID string, queries datatypes.JSON, totalScore int) error
}

type practiceSessionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPracticeSessionRepo(db *gorm.DB, baseLog *logger.Logger) PracticeSessionRepo {
  repoLog := baseLog.With("repo", "PracticeSessionRepo")
  return &practiceSessionRepo{db: db, log: repoLog}
}

func (psr *practiceSessionRepo) Create(ctx context.Context, tx *gorm.DB, sessions []*types.PracticeSession) ([]*types.PracticeSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = psr.db
  }

  if len(sessions) == 0 {
    return []*types.PracticeSession{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&sessions).Error; err != nil {
    return nil, err
  }

  return sessions, nil
}

func (psr *practiceSessionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, sessionIDs []string) ([]*types.PracticeSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = psr.db
  }

  var results []*types.PracticeSession

  if len(sessionIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", sessionIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (psr *practiceSessionRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.PracticeSession, error) {
  transaction := tx
  if transaction == nil {
    transaction = psr.db
  }

  var results []*types.PracticeSession

  if len(userIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("user_id IN ?", userIDs).
    Order("created_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (psr *practiceSessionRepo) UpdateQueriesAndScore(ctx context.Context, tx *gorm.DB, sessionID string, queries datatypes.JSON, totalScore int) error {
  transaction := tx
  if transaction == nil {
    transaction = psr.db
  }

  return transaction.WithContext(ctx).
    Model(&types.PracticeSession{}).
    Where("id = ?", sessionID).
    Updates(map[string]interface{}{
      "queries":     queries,
      "total_score": totalScore,
    }).Error
}
