package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/did-node/internal/service"
	"github.com/d60-Lab/did-node/pkg/didkey"
	"github.com/d60-Lab/did-node/pkg/response"
)

type identityRequest struct {
	Message      string `json:"message"`
	SignatureHex string `json:"signatureHex" binding:"omitempty,hexadecimal"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type keyPair struct {
	PrivateKey string `json:"privateKey"`
	PublicKey  string `json:"publicKey"`
}

// ValidateIdentity 检查域名公钥，可选验签
// @Summary 校验域名身份
// @Tags 用户
// @Accept json
// @Produce json
// @Param domain path string true "域名"
// @Param request body identityRequest false "待验证的消息与签名"
// @Success 200 {object} response.Response{data=service.Identity}
// @Failure 400 {object} response.Response{data=response.Rejection}
// @Failure 422 {object} response.Response{data=response.Rejection}
// @Failure 424 {object} response.Response{data=response.Rejection}
// @Router /users/{domain}/validate [post]
func (h *Handler) ValidateIdentity(c *gin.Context) {
	var uri domainURI
	if err := c.ShouldBindUri(&uri); err != nil {
		rejectInput(c, service.ReasonInvalidOwnerDomain, "invalid domain in URL")
		return
	}
	var req identityRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req, service.ReasonMalformedSignature) {
			return
		}
	}
	id, err := h.identity.CheckIdentity(c.Request.Context(), uri.Domain, req.Message, req.SignatureHex)
	if err != nil {
		h.reject(c, err)
		return
	}
	response.Success(c, id)
}

// ValidatePath 检查内容页标记并返回内容哈希
// @Summary 校验内容页
// @Tags 用户
// @Accept json
// @Produce json
// @Param domain path string true "域名"
// @Param request body pathRequest true "页面路径"
// @Success 200 {object} response.Response{data=service.PathCheck}
// @Failure 400 {object} response.Response{data=response.Rejection}
// @Failure 424 {object} response.Response{data=response.Rejection}
// @Router /users/{domain}/path/validate [post]
func (h *Handler) ValidatePath(c *gin.Context) {
	var uri domainURI
	if err := c.ShouldBindUri(&uri); err != nil {
		rejectInput(c, service.ReasonInvalidPostDomain, "invalid domain in URL")
		return
	}
	var req pathRequest
	if !bindJSON(c, &req, service.ReasonMalformedPayload) {
		return
	}
	res, err := h.identity.CheckPath(c.Request.Context(), uri.Domain, req.Path)
	if err != nil {
		h.reject(c, err)
		return
	}
	response.Success(c, res)
}

// GenerateKeys 生成 secp256k1 密钥对
// @Summary 生成密钥对
// @Description 私钥 PKCS#8 PEM，公钥 SPKI PEM（放到 /did.pem）
// @Tags 用户
// @Produce json
// @Success 200 {object} response.Response{data=keyPair}
// @Router /keys [post]
func (h *Handler) GenerateKeys(c *gin.Context) {
	priv, pub, err := didkey.GenerateKeyPair()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, keyPair{PrivateKey: string(priv), PublicKey: string(pub)})
}
