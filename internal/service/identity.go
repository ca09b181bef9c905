package service

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/d60-Lab/did-node/internal/oracle"
	"github.com/d60-Lab/did-node/internal/sanitize"
	"github.com/d60-Lab/did-node/pkg/didkey"
)

// Identity 域名身份绑定检查结果
type Identity struct {
	Domain            string `json:"domain"`
	PublicKeyPEM      string `json:"publicKey"`
	SignatureVerified bool   `json:"signatureVerified"`
}

// PathCheck 内容页检查结果
type PathCheck struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Marker string `json:"marker"`
	Hash   string `json:"hash"`
}

// CheckIdentity 确认域名提供可解析的公钥；给出 message 与签名时一并验签
func (v *Validator) CheckIdentity(ctx context.Context, domain, message, signatureHex string) (*Identity, error) {
	domain, err := sanitize.ValidateDomainName(domain)
	if err != nil {
		return nil, reject(ReasonInvalidOwnerDomain, "invalid domain", err)
	}
	pub, err := v.keys.GetPublicKey(ctx, domain)
	if err != nil {
		return nil, keyRejection(err)
	}
	pemBytes, err := didkey.MarshalPublicKeyPEM(pub)
	if err != nil {
		return nil, reject(ReasonInvalidPublicKey, "could not encode public key", err)
	}
	out := &Identity{Domain: domain, PublicKeyPEM: string(pemBytes)}
	if signatureHex == "" {
		return out, nil
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) == 0 {
		return nil, reject(ReasonMalformedSignature, "signature is not a hex string", err)
	}
	if err := didkey.Verify(pub, []byte(message), sig); err != nil {
		return nil, reject(ReasonInvalidSignature, "signature does not match", err)
	}
	out.SignatureVerified = true
	return out, nil
}

// CheckPath 确认页面带 did:content 标记并返回其 sha256
func (v *Validator) CheckPath(ctx context.Context, domain, path string) (*PathCheck, error) {
	domain, err := sanitize.ValidateDomainName(domain)
	if err != nil {
		return nil, reject(ReasonInvalidPostDomain, "invalid domain", err)
	}
	path, err = sanitize.ValidatePath(path)
	if err != nil {
		return nil, reject(ReasonInvalidPath, "invalid path", err)
	}
	page, err := v.content.GetContent(ctx, domain, path)
	if err != nil {
		return nil, reject(ReasonContentNotFound, "could not fetch post content", err)
	}
	marker, ok := sanitize.ContentMarker(string(page))
	if !ok {
		return nil, reject(ReasonContentNotFound, "post content carries no did:content marker", nil)
	}
	return &PathCheck{Domain: domain, Path: path, Marker: marker, Hash: ContentDigest(page)}, nil
}

func keyRejection(err error) *Rejection {
	if errors.Is(err, oracle.ErrInvalidKey) {
		return reject(ReasonInvalidPublicKey, "domain serves no usable public key", err)
	}
	return reject(ReasonKeyFetchFailed, "could not fetch domain public key", err)
}
