package model

import (
	"strings"
	"time"
)

// Post 域名所有者对内容的签名声明（只追加的账本行）
type Post struct {
	Signature  string     `json:"signature" gorm:"primaryKey;type:varchar(160)"`
	Domain     string     `json:"domain" gorm:"type:varchar(253);index:idx_post_domain;not null"` // owner domain
	PostDomain string     `json:"post_domain" gorm:"type:varchar(253);not null"`
	Path       string     `json:"path" gorm:"type:text;not null"`
	Hash       string     `json:"hash" gorm:"type:varchar(64);not null"`
	Block      string     `json:"block" gorm:"type:varchar(64);index:idx_post_block;not null"`
	Source     string     `json:"source" gorm:"type:varchar(128)"` // 仅作参考，不可信
	InsertedAt time.Time  `json:"inserted_at" gorm:"autoCreateTime;not null"`
	DeadAt     *time.Time `json:"dead_at"`
}

func (Post) TableName() string { return "posts" }

// Location 对外展示的 postDomain/path
func (p *Post) Location() string {
	if p.Path == "" {
		return p.PostDomain
	}
	return p.PostDomain + "/" + p.Path
}

// Submission 返回还原出的规范提交
func (p *Post) Submission() Submission {
	return Submission{
		OwnerDomain:  p.Domain,
		PostDomain:   p.PostDomain,
		Path:         p.Path,
		Hash:         p.Hash,
		BlockHash:    p.Block,
		SignatureHex: p.Signature,
	}
}

// LedgerEntry 与其它实例交换的行格式（path 为 postDomain/path，时间为毫秒）
type LedgerEntry struct {
	Signature  string `json:"signature"`
	Domain     string `json:"domain"`
	Path       string `json:"path"`
	Hash       string `json:"hash"`
	Block      string `json:"block"`
	Source     string `json:"source"`
	InsertedAt int64  `json:"inserted_at"`
	DeadAt     *int64 `json:"dead_at"`
}

// Entry 转为交换格式
func (p *Post) Entry() LedgerEntry {
	e := LedgerEntry{
		Signature:  p.Signature,
		Domain:     p.Domain,
		Path:       p.Location(),
		Hash:       p.Hash,
		Block:      p.Block,
		Source:     p.Source,
		InsertedAt: p.InsertedAt.UnixMilli(),
	}
	if p.DeadAt != nil {
		ms := p.DeadAt.UnixMilli()
		e.DeadAt = &ms
	}
	return e
}

// Submission 拆分 path 得到候选提交
func (e LedgerEntry) Submission() Submission {
	postDomain, path, _ := strings.Cut(e.Path, "/")
	return Submission{
		OwnerDomain:  e.Domain,
		PostDomain:   postDomain,
		Path:         path,
		Hash:         e.Hash,
		BlockHash:    e.Block,
		SignatureHex: e.Signature,
	}
}
