package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/did-node/pkg/response"
)

const adminSubjectKey = "admin_subject"

// AdminAuth 校验 HS256 Bearer token；未配置密钥时拒绝所有请求
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.Unauthorized(c, "admin API disabled")
			return
		}
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Unauthorized(c, "missing bearer token")
			return
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			if err == nil {
				err = errors.New("invalid token")
			}
			response.Unauthorized(c, err.Error())
			return
		}
		if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok {
			c.Set(adminSubjectKey, claims.Subject)
		}
		c.Next()
	}
}

// AdminSubject token 中的 sub
func AdminSubject(c *gin.Context) string { return c.GetString(adminSubjectKey) }
