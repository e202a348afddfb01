package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type CompetitionSubmissionRepo interface {
  Create(ctx context.Context, tx *gorm.DB, submissions []*types.CompetitionSubmission) ([]*types.CompetitionSubmission, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, submissionIDs []uuid.UUID) ([]*types.CompetitionSubmission, error)
  GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.CompetitionSubmission, error)
  Update(ctx context.Context, tx *gorm.DB, submission *types.CompetitionSubmission) error
}

type competitionSubmissionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewCompetitionSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) CompetitionSubmissionRepo {
  repoLog := baseLog.With("repo", "CompetitionSubmissionRepo")
  return &competitionSubmissionRepo{db: db, log: repoLog}
}

func (csr *competitionSubmissionRepo) Create(ctx context.Context, tx *gorm.DB, submissions []*types.CompetitionSubmission) ([]*types.CompetitionSubmission, error) {
  transaction := tx
  if transaction == nil {
    transaction = csr.db
  }

  if len(submissions) == 0 {
    return []*types.CompetitionSubmission{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&submissions).Error; err != nil {
    return nil, err
  }

  return submissions, nil
}

func (csr *competitionSubmissionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, submissionIDs []uuid.UUID) ([]*types.CompetitionSubmission, error) {
  transaction := tx
  if transaction == nil {
    transaction = csr.db
  }

  var results []*types.CompetitionSubmission

  if len(submissionIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", submissionIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (csr *competitionSubmissionRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.CompetitionSubmission, error) {
  transaction := tx
  if transaction == nil {
    transaction = csr.db
  }

  var results []*types.CompetitionSubmission

  if len(userIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("user_id IN ?", userIDs).
    Order("submitted_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (csr *competitionSubmissionRepo) Update(ctx context.Context, tx *gorm.DB, submission *types.CompetitionSubmission) error {
  transaction := tx
  if transaction == nil {
    transaction = csr.db
  }

  return transaction.WithContext(ctx).Save(submission).Error
}
