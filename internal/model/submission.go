package model

import "strings"

// Submission 规范提交载荷，HTTP 请求体与 gossip 消息共用
type Submission struct {
	OwnerDomain  string `json:"ownerDomain"`
	PostDomain   string `json:"postDomain"`
	Path         string `json:"path"`
	Hash         string `json:"hash"`
	BlockHash    string `json:"blockHash"`
	SignatureHex string `json:"signatureHex"`
}

// SignedMessage 被签名的原始字节：blockHash/postDomain/path/hash
func (s Submission) SignedMessage() []byte {
	return []byte(strings.Join([]string{s.BlockHash, s.PostDomain, s.Path, s.Hash}, "/"))
}

// Post 转为待入库记录
func (s Submission) Post(source string) *Post {
	return &Post{
		Signature:  s.SignatureHex,
		Domain:     s.OwnerDomain,
		PostDomain: s.PostDomain,
		Path:       s.Path,
		Hash:       s.Hash,
		Block:      s.BlockHash,
		Source:     source,
	}
}
