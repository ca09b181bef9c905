package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/oracle"
)

// defaultBackfillMaxBytes 单个区块帖子列表响应体上限
const defaultBackfillMaxBytes = 32 << 20

// DayLister 列出某天的区块
type DayLister interface {
	BlocksForDay(ctx context.Context, ms int64) ([]oracle.BlockInfo, error)
}

// BackfillStats 一次回填的统计
type BackfillStats struct {
	Blocks   int            `json:"blocks"`
	Fetched  int            `json:"fetched"`
	Stored   int            `json:"stored"`
	Rejected map[Reason]int `json:"rejected"`
	Failed   []string       `json:"failed"` // 拉取失败的区块
}

// Backfiller 从其它实例按天拉取帖子，逐条校验（不取内容）后入库
type Backfiller struct {
	days       DayLister
	validator  *Validator
	posts      PostStore
	client     *http.Client
	maxRetries uint64
	maxBytes   int64
	log        *zap.Logger
}

// BackfillOption 可选项
type BackfillOption func(*Backfiller)

// WithBackfillMaxBytes 限制每个响应体大小
func WithBackfillMaxBytes(n int64) BackfillOption {
	return func(b *Backfiller) { b.maxBytes = n }
}

func NewBackfiller(days DayLister, v *Validator, posts PostStore, client *http.Client, log *zap.Logger, opts ...BackfillOption) *Backfiller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	b := &Backfiller{days: days, validator: v, posts: posts, client: client, maxRetries: 3,
		maxBytes: defaultBackfillMaxBytes, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run 拉取 dayMs 所在日期的全部区块下 source 实例的帖子
func (b *Backfiller) Run(ctx context.Context, source string, dayMs int64) (*BackfillStats, error) {
	source = strings.TrimRight(source, "/")
	blocks, err := b.days.BlocksForDay(ctx, dayMs)
	if err != nil {
		return nil, fmt.Errorf("list blocks for %d: %w", dayMs, err)
	}
	hashes := lo.Uniq(lo.Map(blocks, func(bi oracle.BlockInfo, _ int) string { return bi.Hash }))
	stats := &BackfillStats{Blocks: len(hashes), Rejected: make(map[Reason]int)}

	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entries, err := b.fetch(ctx, source, hash)
		if err != nil {
			b.log.Warn("fetch posts failed", zap.String("block", hash), zap.Error(err))
			stats.Failed = append(stats.Failed, hash)
			continue
		}
		stats.Fetched += len(entries)
		for _, e := range entries {
			err := b.ingest(ctx, e, source)
			if err == nil {
				stats.Stored++
				continue
			}
			reason := ReasonOf(err)
			stats.Rejected[reason]++
			b.log.Info("backfill entry rejected", zap.String("signature", e.Signature),
				zap.String("reason", string(reason)), zap.Error(err))
		}
	}
	return stats, nil
}

func (b *Backfiller) ingest(ctx context.Context, e model.LedgerEntry, source string) error {
	out, err := b.validator.ValidateSubmission(ctx, e.Submission(), false)
	if err != nil {
		return err
	}
	return store(ctx, b.posts, out, source)
}

// fetch GET {source}/posts/{hash}；兼容裸数组与统一响应包装
func (b *Backfiller) fetch(ctx context.Context, source, hash string) ([]model.LedgerEntry, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source+"/posts/"+hash, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, b.maxBytes+1))
		if err != nil {
			return err
		}
		if int64(len(body)) > b.maxBytes {
			return backoff.Permanent(fmt.Errorf("response for %s exceeds %d bytes", hash, b.maxBytes))
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	var entries []model.LedgerEntry
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("decode posts: %w", err)
		}
		return entries, nil
	}
	var env struct {
		Data []model.LedgerEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return env.Data, nil
}
