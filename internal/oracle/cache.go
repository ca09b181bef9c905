package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/metrics"
	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/repository"
)

var blockHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// BlockSource resolves a block hash against the chain.
type BlockSource interface {
	GetBlock(ctx context.Context, hash string) (*BlockInfo, error)
}

// CachedBlocks resolves block anchors through redis (optional), the blocks
// table and finally the block oracle. Once cached a block is trusted forever.
type CachedBlocks struct {
	repo    repository.BlockRepository
	cache   *redis.Client
	source  BlockSource
	log     *zap.Logger
	metrics *metrics.Metrics

	redisHits   atomic.Int64
	storeHits   atomic.Int64
	oracleCalls atomic.Int64
}

// BlockCounters summarises where lookups were answered.
type BlockCounters struct {
	RedisHits   int64
	StoreHits   int64
	OracleCalls int64
}

// NewCachedBlocks builds the cache. cache may be nil.
func NewCachedBlocks(repo repository.BlockRepository, cache *redis.Client, source BlockSource, log *zap.Logger, m *metrics.Metrics) *CachedBlocks {
	return &CachedBlocks{repo: repo, cache: cache, source: source, log: log, metrics: m}
}

func blockKey(hash string) string { return "block:" + hash }

// GetOrFetch returns the cached block or confirms it with the oracle and
// remembers it. Hashes that are not 64 lowercase hex characters are reported
// as not found without any lookup.
func (c *CachedBlocks) GetOrFetch(ctx context.Context, hash string) (*model.Block, error) {
	if !blockHashPattern.MatchString(hash) {
		return nil, fmt.Errorf("%w: malformed hash %q", ErrBlockNotFound, hash)
	}

	if b := c.fromRedis(ctx, hash); b != nil {
		c.redisHits.Add(1)
		c.metrics.BlockLookup("redis")
		return b, nil
	}

	b, err := c.repo.Get(ctx, hash)
	if err == nil {
		c.storeHits.Add(1)
		c.metrics.BlockLookup("store")
		c.toRedis(ctx, b)
		return b, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: read blocks table: %v", ErrBlockLookup, err)
	}

	c.oracleCalls.Add(1)
	c.metrics.BlockLookup("oracle")
	info, err := c.source.GetBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	b = &model.Block{Hash: info.Hash, Time: info.Time}
	if err := c.Remember(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Remember stores a confirmed block in both layers if absent.
func (c *CachedBlocks) Remember(ctx context.Context, b *model.Block) error {
	if err := c.repo.Insert(ctx, b); err != nil {
		return fmt.Errorf("%w: write blocks table: %v", ErrBlockLookup, err)
	}
	c.toRedis(ctx, b)
	return nil
}

// Counters reports lookup counts since creation.
func (c *CachedBlocks) Counters() BlockCounters {
	return BlockCounters{
		RedisHits:   c.redisHits.Load(),
		StoreHits:   c.storeHits.Load(),
		OracleCalls: c.oracleCalls.Load(),
	}
}

// redis 故障只记日志，回落到数据库
func (c *CachedBlocks) fromRedis(ctx context.Context, hash string) *model.Block {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, blockKey(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis block lookup failed", zap.String("hash", hash), zap.Error(err))
		}
		return nil
	}
	var b model.Block
	if err := json.Unmarshal(data, &b); err != nil || b.Hash != hash {
		return nil
	}
	return &b
}

func (c *CachedBlocks) toRedis(ctx context.Context, b *model.Block) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.cache.SetNX(ctx, blockKey(b.Hash), payload, 0).Err(); err != nil {
		c.log.Warn("redis block write failed", zap.String("hash", b.Hash), zap.Error(err))
	}
}
