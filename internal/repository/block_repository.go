package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/did-node/internal/model"
)

// BlockRepository 区块锚点缓存表
type BlockRepository interface {
	Insert(ctx context.Context, block *model.Block) error
	Get(ctx context.Context, hash string) (*model.Block, error)
}

type blockRepository struct{ db *gorm.DB }

func NewBlockRepository(db *gorm.DB) BlockRepository { return &blockRepository{db: db} }

// Insert 幂等：重复写入不报错
func (r *blockRepository) Insert(ctx context.Context, block *model.Block) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(block).Error
}

func (r *blockRepository) Get(ctx context.Context, hash string) (*model.Block, error) {
	var b model.Block
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
