package repos

import (
  "context"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/sqlmentor/sqlmentor-backend/internal/logger"
  "github.com/sqlmentor/sqlmentor-backend/internal/types"
)

type SchemaArtifactRepo interface {
  Create(ctx context.Context, tx *gorm.DB, artifacts []*types.SchemaArtifact) ([]*types.SchemaArtifact, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, schemaIDs []uuid.UUID) ([]*types.SchemaArtifact, error)
  GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.SchemaArtifact, error)
}

type schemaArtifactRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewSchemaArtifactRepo(db *gorm.DB, baseLog *logger.Logger) SchemaArtifactRepo {
  repoLog := baseLog.With("repo", "SchemaArtifactRepo")
  return &schemaArtifactRepo{db: db, log: repoLog}
}

func (sar *schemaArtifactRepo) Create(ctx context.Context, tx *gorm.DB, artifacts []*types.SchemaArtifact) ([]*types.SchemaArtifact, error) {
  transaction := tx
  if transaction == nil {
    transaction = sar.db
  }

  if len(artifacts) == 0 {
    return []*types.SchemaArtifact{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&artifacts).Error; err != nil {
    return nil, err
  }

  return artifacts, nil
}

func (sar *schemaArtifactRepo) GetByIDs(ctx context.Context, tx *gorm.DB, schemaIDs []uuid.UUID) ([]*types.SchemaArtifact, error) {
  transaction := tx
  if transaction == nil {
    transaction = sar.db
  }

  var results []*types.SchemaArtifact

  if len(schemaIDs) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("schema_id IN ?", schemaIDs).
    Find(&results).Error; err != nil {
    return nil, err
  }

  return results, nil
}

func (sar *schemaArtifactRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.SchemaArtifact, error) {
  transaction := tx
  if transaction == nil {
    transaction = sar.db
  }

  var results []*types.SchemaArtifact

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
