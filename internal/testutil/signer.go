package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/pkg/didkey"
)

// Signer 模拟一个持有私钥的域名所有者
type Signer struct {
	Domain string
	Priv   *secp256k1.PrivateKey
	PubPEM []byte
}

func NewSigner(t testing.TB, domain string) *Signer {
	t.Helper()
	privPEM, pubPEM, err := didkey.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	priv, err := didkey.ParsePrivateKeyPEM(privPEM)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	return &Signer{Domain: domain, Priv: priv, PubPEM: pubPEM}
}

// Serve 在 web 上发布 did.pem
func (s *Signer) Serve(web *Web) { web.Put(s.Domain, "did.pem", string(s.PubPEM)) }

// Sign 对规范字段签名并填入 SignatureHex
func (s *Signer) Sign(sub model.Submission) model.Submission {
	sub.SignatureHex = hex.EncodeToString(didkey.Sign(s.Priv, sub.SignedMessage()))
	return sub
}

// Attest 在 postDomain/path 发布带标记的页面并返回签好名的提交
func (s *Signer) Attest(web *Web, postDomain, path, blockHash string) model.Submission {
	page := Page(s.Domain + ":" + path)
	web.Put(postDomain, path, page)
	return s.Sign(model.Submission{
		OwnerDomain: s.Domain,
		PostDomain:  postDomain,
		Path:        path,
		Hash:        Digest(page),
		BlockHash:   blockHash,
	})
}

// Page 带 did:content 标记的页面
func Page(marker string) string {
	return `<!doctype html><html><head><meta name="did:content" content="` + marker + `"><title>post</title></head><body>hello</body></html>`
}

// Digest sha256 小写十六进制
func Digest(page string) string {
	sum := sha256.Sum256([]byte(page))
	return hex.EncodeToString(sum[:])
}
