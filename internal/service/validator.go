package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/sanitize"
	"github.com/d60-Lab/did-node/pkg/didkey"
)

// KeySource 获取域名公钥
type KeySource interface {
	GetPublicKey(ctx context.Context, domain string) (*secp256k1.PublicKey, error)
}

// ContentSource 获取被声明的页面
type ContentSource interface {
	GetContent(ctx context.Context, domain, path string) ([]byte, error)
}

// BlockResolver 确认区块锚点
type BlockResolver interface {
	GetOrFetch(ctx context.Context, hash string) (*model.Block, error)
}

// SignatureIndex 按签名查重
type SignatureIndex interface {
	Exists(ctx context.Context, signature string) (bool, error)
}

// Validator 唯一的提交校验路径，HTTP 与 gossip 共用
type Validator struct {
	keys       KeySource
	content    ContentSource
	blocks     BlockResolver
	posts      SignatureIndex
	concurrent bool
	log        *zap.Logger
}

// ValidatorOption 可选项
type ValidatorOption func(*Validator)

// WithConcurrentLookups 区块确认与公钥获取并行
func WithConcurrentLookups(on bool) ValidatorOption {
	return func(v *Validator) { v.concurrent = on }
}

func NewValidator(keys KeySource, content ContentSource, blocks BlockResolver, posts SignatureIndex, log *zap.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{keys: keys, content: content, blocks: blocks, posts: posts, log: log}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ContentDigest 页面内容的 sha256 小写十六进制
func ContentDigest(page []byte) string {
	sum := sha256.Sum256(page)
	return hex.EncodeToString(sum[:])
}

// ValidateSubmission 按固定顺序校验，返回规范化后的提交或 *Rejection
func (v *Validator) ValidateSubmission(ctx context.Context, in model.Submission, validateContent bool) (*model.Submission, error) {
	owner, err := sanitize.ValidateDomainName(in.OwnerDomain)
	if err != nil {
		return nil, reject(ReasonInvalidOwnerDomain, "invalid owner domain", err)
	}
	postDomain, err := sanitize.ValidateDomainName(in.PostDomain)
	if err != nil {
		return nil, reject(ReasonInvalidPostDomain, "invalid post domain", err)
	}
	path, err := sanitize.ValidatePath(in.Path)
	if err != nil {
		return nil, reject(ReasonInvalidPath, "invalid path", err)
	}

	blockLookup := v.startBlockLookup(ctx, in.BlockHash)
	defer blockLookup.stop()

	pub, err := v.keys.GetPublicKey(ctx, owner)
	if err != nil {
		return nil, keyRejection(err)
	}

	sig, err := hex.DecodeString(in.SignatureHex)
	if err != nil || len(sig) == 0 {
		return nil, reject(ReasonMalformedSignature, "signature is not a hex string", err)
	}

	if validateContent {
		page, err := v.content.GetContent(ctx, postDomain, path)
		if err != nil {
			return nil, reject(ReasonContentNotFound, "could not fetch post content", err)
		}
		if !sanitize.ValidatePostContent(string(page)) {
			return nil, reject(ReasonContentNotFound, "post content carries no did:content marker", nil)
		}
		if ContentDigest(page) != in.Hash {
			return nil, reject(ReasonContentHashMismatch, "content hash does not match", nil)
		}
	}

	out := &model.Submission{
		OwnerDomain:  owner,
		PostDomain:   postDomain,
		Path:         path,
		Hash:         in.Hash,
		BlockHash:    in.BlockHash,
		SignatureHex: hex.EncodeToString(sig),
	}
	if err := didkey.Verify(pub, out.SignedMessage(), sig); err != nil {
		return nil, reject(ReasonInvalidSignature, "signature does not match", err)
	}

	if _, err := blockLookup.wait(); err != nil {
		return nil, reject(ReasonInvalidBlockHash, "block hash is not confirmed", err)
	}

	exists, err := v.posts.Exists(ctx, out.SignatureHex)
	if err != nil {
		return nil, reject(ReasonStorageFailed, "signature lookup failed", err)
	}
	if exists {
		return nil, reject(ReasonDuplicate, "signature already recorded", nil)
	}
	return out, nil
}

// blockLookup 顺序模式下在 wait 时才查询
type blockLookup struct {
	run    func(context.Context) (*model.Block, error)
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	block  *model.Block
	err    error
}

func (v *Validator) startBlockLookup(ctx context.Context, hash string) *blockLookup {
	l := &blockLookup{run: func(ctx context.Context) (*model.Block, error) {
		return v.blocks.GetOrFetch(ctx, hash)
	}, ctx: ctx}
	if !v.concurrent {
		return l
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.g = new(errgroup.Group)
	l.g.Go(func() error {
		l.block, l.err = l.run(l.ctx)
		return nil
	})
	return l
}

func (l *blockLookup) wait() (*model.Block, error) {
	if l.g == nil {
		return l.run(l.ctx)
	}
	_ = l.g.Wait()
	return l.block, l.err
}

// stop 提前返回时取消并回收后台查询
func (l *blockLookup) stop() {
	if l.g == nil {
		return
	}
	l.cancel()
	_ = l.g.Wait()
}
