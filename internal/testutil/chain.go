package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// ChainBlock 模拟区块浏览器中的一条记录
type ChainBlock struct {
	Hash   string `json:"hash"`
	Time   int64  `json:"time"`
	Height int64  `json:"height"`
}

// Chain 模拟 blockchain.info 的 rawblock / latestblock / blocks 接口
type Chain struct {
	Server *httptest.Server

	mu     sync.RWMutex
	blocks []ChainBlock
	calls  atomic.Int64
	hung   atomic.Bool
}

func NewChain(t testing.TB, blocks ...ChainBlock) *Chain {
	t.Helper()
	c := &Chain{blocks: blocks}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	t.Cleanup(c.Server.Close)
	return c
}

func (c *Chain) Add(b ChainBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = append(c.blocks, b)
}

// Hang 为 true 时所有请求挂起到客户端超时
func (c *Chain) Hang(on bool) { c.hung.Store(on) }

// Calls 请求次数
func (c *Chain) Calls() int64 { return c.calls.Load() }

// URL 作为 block_api_url 使用
func (c *Chain) URL() string { return c.Server.URL }

func (c *Chain) serve(w http.ResponseWriter, r *http.Request) {
	c.calls.Add(1)
	if c.hung.Load() {
		<-r.Context().Done()
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case r.URL.Path == "/latestblock":
		if len(c.blocks) == 0 {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(c.blocks[len(c.blocks)-1])
	case strings.HasPrefix(r.URL.Path, "/rawblock/"):
		hash := strings.TrimPrefix(r.URL.Path, "/rawblock/")
		for _, b := range c.blocks {
			if b.Hash == hash {
				_ = json.NewEncoder(w).Encode(b)
				return
			}
		}
		http.Error(w, "Block Not Found", http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, "/blocks/"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"blocks": c.blocks})
	default:
		http.NotFound(w, r)
	}
}
