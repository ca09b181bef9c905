package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/did-node/internal/model"
)

// PostRepository 签名声明仓储；signature 唯一约束由存储层保证
type PostRepository interface {
	Insert(ctx context.Context, post *model.Post) error
	GetBySignature(ctx context.Context, signature string) (*model.Post, error)
	Exists(ctx context.Context, signature string) (bool, error)
	ListByBlock(ctx context.Context, blockHash string, offset, limit int) ([]*model.Post, error)
	MarkDead(ctx context.Context, signature string, at time.Time) error
	Count(ctx context.Context) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

// Insert 原子插入；签名已存在时返回 ErrDuplicate（并发插入同理）
func (r *postRepository) Insert(ctx context.Context, post *model.Post) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(post)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *postRepository) GetBySignature(ctx context.Context, signature string) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).Where("signature = ?", signature).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, signature string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("signature = ?", signature).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *postRepository) ListByBlock(ctx context.Context, blockHash string, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).
		Where("block = ?", blockHash).
		Order("inserted_at, signature").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	return res, err
}

// MarkDead 设置 dead_at；已失效的记录保持原时间
func (r *postRepository) MarkDead(ctx context.Context, signature string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("signature = ? AND dead_at IS NULL", signature).
		Update("dead_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	exists, err := r.Exists(ctx, signature)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *postRepository) Count(ctx context.Context) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Count(&cnt).Error
	return cnt, err
}
