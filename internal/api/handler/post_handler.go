package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/repository"
	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/pkg/response"
)

const maxPageSize = 1000

// SubmitPost 提交一条签名声明
// @Summary 提交帖子声明
// @Description 校验（含内容页）后入库并通过 gossip 广播
// @Tags 帖子
// @Accept json
// @Produce json
// @Param domain path string true "所有者域名"
// @Param request body model.Submission true "签名提交"
// @Success 201 {object} response.Response{data=model.Submission}
// @Failure 400 {object} response.Response{data=response.Rejection}
// @Failure 409 {object} response.Response{data=response.Rejection}
// @Failure 413 {object} response.Response{data=response.Rejection}
// @Failure 422 {object} response.Response{data=response.Rejection}
// @Failure 424 {object} response.Response{data=response.Rejection}
// @Failure 502 {object} response.Response{data=response.Rejection}
// @Router /users/{domain}/post [post]
func (h *Handler) SubmitPost(c *gin.Context) {
	var uri domainURI
	if err := c.ShouldBindUri(&uri); err != nil {
		rejectInput(c, service.ReasonInvalidOwnerDomain, "invalid domain in URL")
		return
	}
	var req model.Submission
	if !bindJSON(c, &req, service.ReasonMalformedPayload) {
		return
	}
	if req.OwnerDomain == "" {
		req.OwnerDomain = uri.Domain
	} else if !strings.EqualFold(strings.TrimSpace(req.OwnerDomain), strings.TrimSpace(uri.Domain)) {
		rejectInput(c, service.ReasonInvalidOwnerDomain, "ownerDomain does not match URL domain")
		return
	}

	out, err := h.submissions.Submit(c.Request.Context(), req)
	if err != nil {
		h.reject(c, err)
		return
	}
	response.Created(c, out)
}

// ListBlockPosts 按区块列出帖子（实例间回填使用）
// @Summary 按区块查询帖子
// @Tags 帖子
// @Produce json
// @Param blockHash path string true "区块哈希"
// @Param offset query int false "偏移" default(0)
// @Param limit query int false "数量" default(1000)
// @Success 200 {object} response.Response{data=[]model.LedgerEntry}
// @Router /posts/{blockHash} [get]
func (h *Handler) ListBlockPosts(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(maxPageSize)))
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	posts, err := h.posts.ListByBlock(c.Request.Context(), c.Param("blockHash"), offset, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, lo.Map(posts, func(p *model.Post, _ int) model.LedgerEntry { return p.Entry() }))
}

// RevokePost 运营方撤销帖子（设置 dead_at）
// @Summary 撤销帖子
// @Tags 管理
// @Security BearerAuth
// @Produce json
// @Param signature path string true "签名十六进制"
// @Success 200 {object} response.Response{data=model.LedgerEntry}
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /admin/posts/{signature} [delete]
func (h *Handler) RevokePost(c *gin.Context) {
	ctx := c.Request.Context()
	sig := strings.ToLower(c.Param("signature"))
	if err := h.posts.MarkDead(ctx, sig, timeNow()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(c, "post not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	post, err := h.posts.GetBySignature(ctx, sig)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Response{Code: 0, Message: "revoked", Data: post.Entry()})
}
