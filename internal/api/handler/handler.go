package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/pkg/response"
)

// Submitter HTTP 提交入口
type Submitter interface {
	Submit(ctx context.Context, in model.Submission) (*model.Submission, error)
}

// IdentityChecker 身份与内容页检查
type IdentityChecker interface {
	CheckIdentity(ctx context.Context, domain, message, signatureHex string) (*service.Identity, error)
	CheckPath(ctx context.Context, domain, path string) (*service.PathCheck, error)
}

// ChainTip 最新区块
type ChainTip interface {
	Latest(ctx context.Context) (*oracle.BlockInfo, error)
}

// BlockCache 写入已确认区块
type BlockCache interface {
	Remember(ctx context.Context, b *model.Block) error
}

// NodeInfo 本节点的 p2p 信息
type NodeInfo interface {
	Addrs() []string
}

// Pinger 存储健康检查
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler HTTP 处理器集合
type Handler struct {
	submissions Submitter
	identity    IdentityChecker
	tip         ChainTip
	blocks      BlockCache
	posts       repository.PostRepository
	node        NodeInfo
	store       Pinger
	topic       string
	log         *zap.Logger
}

// Deps 构造 Handler 所需依赖；Node 与 Store 可为空
type Deps struct {
	Submissions Submitter
	Identity    IdentityChecker
	Tip         ChainTip
	Blocks      BlockCache
	Posts       repository.PostRepository
	Node        NodeInfo
	Store       Pinger
	Topic       string
	Log         *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		submissions: d.Submissions,
		identity:    d.Identity,
		tip:         d.Tip,
		blocks:      d.Blocks,
		posts:       d.Posts,
		node:        d.Node,
		store:       d.Store,
		topic:       d.Topic,
		log:         d.Log,
	}
}

// reject 将 *service.Rejection 转为统一响应，其它错误按 500 处理
func (h *Handler) reject(c *gin.Context, err error) {
	r, ok := service.AsRejection(err)
	if !ok {
		h.log.Error("unexpected handler error", zap.Error(err))
		response.InternalError(c, err)
		return
	}
	if r.Status() >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.String("reason", string(r.Reason)), zap.Error(err))
	}
	response.Reject(c, r.Status(), string(r.Reason), string(r.Kind), r.Error())
}

func rejectInput(c *gin.Context, reason service.Reason, msg string) {
	response.Reject(c, http.StatusBadRequest, string(reason), string(service.KindInput), msg)
}

// bindJSON 解析请求体；失败时已写出拒绝响应。字段校验失败用 invalid 作原因
func bindJSON(c *gin.Context, out interface{}, invalid service.Reason) bool {
	err := c.ShouldBindJSON(out)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	var fields validator.ValidationErrors
	switch {
	case errors.As(err, &tooLarge):
		response.Reject(c, http.StatusRequestEntityTooLarge, string(service.ReasonMalformedPayload),
			string(service.KindInput), fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.As(err, &fields):
		rejectInput(c, invalid, err.Error())
	default:
		rejectInput(c, service.ReasonMalformedPayload, "malformed JSON body: "+err.Error())
	}
	return false
}
