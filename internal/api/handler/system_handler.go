package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/pkg/response"
)

var timeNow = time.Now

type banner struct {
	Name  string   `json:"name"`
	Topic string   `json:"topic"`
	Addrs []string `json:"addrs"`
}

// Index 节点信息
// @Summary 节点信息
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response{data=banner}
// @Router / [get]
func (h *Handler) Index(c *gin.Context) {
	b := banner{Name: "did-node", Topic: h.topic}
	if h.node != nil {
		b.Addrs = h.node.Addrs()
	}
	response.Success(c, b)
}

// Healthz 存储可用即健康
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	if h.store != nil {
		if err := h.store.PingContext(c.Request.Context()); err != nil {
			response.Error(c, http.StatusServiceUnavailable, err.Error(), nil)
			return
		}
	}
	response.Success(c, gin.H{"status": "ok"})
}

// LatestBlock 最新区块（同时写入区块缓存）
// @Summary 最新区块
// @Tags 区块
// @Produce json
// @Success 200 {object} response.Response{data=oracle.BlockInfo}
// @Failure 502 {object} response.Response
// @Router /block/latest [get]
func (h *Handler) LatestBlock(c *gin.Context) {
	ctx := c.Request.Context()
	info, err := h.tip.Latest(ctx)
	if err != nil {
		response.Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if err := h.blocks.Remember(ctx, &model.Block{Hash: info.Hash, Time: info.Time}); err != nil {
		h.log.Sugar().Warnw("could not cache latest block", "hash", info.Hash, "error", err)
	}
	response.Success(c, info)
}
