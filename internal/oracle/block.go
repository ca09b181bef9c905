package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/config"
	"github.com/d60-Lab/did-node/internal/metrics"
)

// BlockInfo is the subset of a block explorer record the node relies on.
type BlockInfo struct {
	Hash   string `json:"hash"`
	Time   int64  `json:"time"`
	Height int64  `json:"height"`
}

// BlockClient talks to a blockchain.info compatible explorer API.
type BlockClient struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

// BlockOption customises a BlockClient.
type BlockOption func(*BlockClient)

// WithBlockHTTPClient replaces the HTTP client. Its Timeout is forced to the
// configured block timeout.
func WithBlockHTTPClient(c *http.Client) BlockOption {
	return func(b *BlockClient) { b.client = c }
}

// WithBlockMetrics attaches collectors.
func WithBlockMetrics(m *metrics.Metrics) BlockOption {
	return func(b *BlockClient) { b.metrics = m }
}

func NewBlockClient(cfg config.OracleConfig, log *zap.Logger, opts ...BlockOption) *BlockClient {
	b := &BlockClient{
		client:  &http.Client{},
		baseURL: strings.TrimRight(cfg.BlockAPIURL, "/"),
		timeout: cfg.BlockTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.client.Timeout = b.timeout
	return b
}

// GetBlock confirms hash with GET /rawblock/{hash}. The answer is accepted
// only when the returned record names the same hash.
func (c *BlockClient) GetBlock(ctx context.Context, hash string) (*BlockInfo, error) {
	var info BlockInfo
	status, err := c.getJSON(ctx, "/rawblock/"+hash, &info)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, err
	}
	if info.Hash != hash {
		return nil, fmt.Errorf("%w: asked for %s, explorer returned %q", ErrBlockNotFound, hash, info.Hash)
	}
	return &info, nil
}

// Latest returns the current chain tip via GET /latestblock.
func (c *BlockClient) Latest(ctx context.Context) (*BlockInfo, error) {
	var info BlockInfo
	if _, err := c.getJSON(ctx, "/latestblock", &info); err != nil {
		return nil, err
	}
	if info.Hash == "" {
		return nil, fmt.Errorf("%w: latest block without hash", ErrBlockLookup)
	}
	return &info, nil
}

// BlocksForDay lists the blocks mined on the day containing ms (unix millis)
// via GET /blocks/{ms}?format=json. Both the bare array and the
// {"blocks": [...]} envelope are accepted.
func (c *BlockClient) BlocksForDay(ctx context.Context, ms int64) ([]BlockInfo, error) {
	var raw json.RawMessage
	if _, err := c.getJSON(ctx, fmt.Sprintf("/blocks/%d?format=json", ms), &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	var blocks []BlockInfo
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBlockLookup, err)
		}
		return blocks, nil
	}
	var env struct {
		Blocks []BlockInfo `json:"blocks"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlockLookup, err)
	}
	return env.Blocks, nil
}

func (c *BlockClient) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	start := time.Now()
	status, err := c.fetch(ctx, path, out)
	label := "ok"
	if err != nil {
		label = "error"
		c.log.Debug("block api request failed", zap.String("path", path), zap.Int("status", status), zap.Error(err))
	}
	c.metrics.Oracle("block", label, time.Since(start))
	return status, err
}

func (c *BlockClient) fetch(ctx context.Context, path string, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBlockLookup, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBlockLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrBlockLookup, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: decode: %v", ErrBlockLookup, err)
	}
	return resp.StatusCode, nil
}
