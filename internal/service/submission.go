package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/metrics"
	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/repository"
)

// PostStore 帖子写入
type PostStore interface {
	Insert(ctx context.Context, post *model.Post) error
}

// SubmissionService HTTP 提交入口：校验（含内容）-> 入库 -> 广播
type SubmissionService struct {
	validator *Validator
	posts     PostStore
	publisher *Publisher
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewSubmissionService(v *Validator, posts PostStore, pub *Publisher, log *zap.Logger, m *metrics.Metrics) *SubmissionService {
	return &SubmissionService{validator: v, posts: posts, publisher: pub, log: log, metrics: m}
}

// Submit 返回入库的规范提交；发布失败时帖子已入库，错误为 PublishFailed
func (s *SubmissionService) Submit(ctx context.Context, in model.Submission) (*model.Submission, error) {
	out, err := s.submit(ctx, in)
	s.record("http", err)
	return out, err
}

func (s *SubmissionService) submit(ctx context.Context, in model.Submission) (*model.Submission, error) {
	out, err := s.validator.ValidateSubmission(ctx, in, true)
	if err != nil {
		return nil, err
	}
	if err := store(ctx, s.posts, out, ""); err != nil {
		return nil, err
	}
	s.log.Info("post accepted",
		zap.String("domain", out.OwnerDomain),
		zap.String("location", out.PostDomain+"/"+out.Path),
		zap.String("block", out.BlockHash))

	if s.publisher == nil {
		return out, nil
	}
	if err := s.publisher.Publish(ctx, out); err != nil {
		s.log.Warn("publish failed", zap.String("signature", out.SignatureHex), zap.Error(err))
		s.metrics.Gossip("out", "error")
		return out, reject(ReasonPublishFailed, "post stored but gossip publish failed", err)
	}
	s.metrics.Gossip("out", "ok")
	return out, nil
}

func (s *SubmissionService) record(origin string, err error) {
	if err == nil {
		s.metrics.Submission(origin, "accepted", "")
		return
	}
	s.metrics.Submission(origin, "rejected", string(ReasonOf(err)))
}

// store 唯一约束冲突转为 DuplicateSubmission
func store(ctx context.Context, posts PostStore, sub *model.Submission, source string) error {
	err := posts.Insert(ctx, sub.Post(source))
	if errors.Is(err, repository.ErrDuplicate) {
		return reject(ReasonDuplicate, "signature already recorded", err)
	}
	if err != nil {
		return reject(ReasonStorageFailed, "could not store post", err)
	}
	return nil
}
