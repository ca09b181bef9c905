package handler

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/did-node/internal/sanitize"
)

// RegisterValidators 注册自定义校验 tag：domainname
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("domainname", func(fl validator.FieldLevel) bool {
		_, err := sanitize.ValidateDomainName(fl.Field().String())
		return err == nil
	})
}

type domainURI struct {
	Domain string `uri:"domain" binding:"required,domainname"`
}
