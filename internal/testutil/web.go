package testutil

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Web 用一个 httptest 服务器模拟多个域名，按 Host 分发
type Web struct {
	Server *httptest.Server

	mu    sync.RWMutex
	sites map[string]map[string]string // host -> path -> body
	hung  map[string]bool
	hits  atomic.Int64
}

// NewWeb 启动服务器，测试结束自动关闭
func NewWeb(t testing.TB) *Web {
	t.Helper()
	w := &Web{sites: make(map[string]map[string]string), hung: make(map[string]bool)}
	w.Server = httptest.NewServer(http.HandlerFunc(w.serve))
	t.Cleanup(w.Server.Close)
	return w
}

// Put 设置 host 上 path 的响应体
func (w *Web) Put(host, path, body string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sites[host] == nil {
		w.sites[host] = make(map[string]string)
	}
	w.sites[host]["/"+strings.TrimPrefix(path, "/")] = body
}

// Hang 让 host 的请求一直挂起，直到客户端放弃
func (w *Web) Hang(host string, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hung[host] = on
}

// Hits 已处理的请求数
func (w *Web) Hits() int64 { return w.hits.Load() }

// Client 返回的客户端把所有连接都拨到测试服务器
func (w *Web) Client() *http.Client {
	addr := w.Server.Listener.Addr().String()
	dialer := &net.Dialer{}
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}}
}

func (w *Web) serve(rw http.ResponseWriter, r *http.Request) {
	w.hits.Add(1)
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	w.mu.RLock()
	body, ok := w.sites[host][r.URL.Path]
	hung := w.hung[host]
	w.mu.RUnlock()
	if hung {
		<-r.Context().Done()
		return
	}
	if !ok {
		http.NotFound(rw, r)
		return
	}
	_, _ = rw.Write([]byte(body))
}
