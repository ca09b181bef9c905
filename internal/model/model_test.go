package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignedMessage(t *testing.T) {
	s := Submission{BlockHash: "00ab", PostDomain: "example.com", Path: "a/b", Hash: "ff"}
	assert.Equal(t, "00ab/example.com/a/b/ff", string(s.SignedMessage()))
}

func TestLedgerEntryRoundTrip(t *testing.T) {
	dead := time.UnixMilli(1700000000123)
	p := &Post{
		Signature:  "3045",
		Domain:     "owner.com",
		PostDomain: "blog.com",
		Path:       "first-post",
		Hash:       "f47b",
		Block:      "0000",
		Source:     "QmPeer",
		InsertedAt: time.UnixMilli(1694290654290),
		DeadAt:     &dead,
	}
	e := p.Entry()
	assert.Equal(t, "blog.com/first-post", e.Path)
	assert.Equal(t, int64(1694290654290), e.InsertedAt)
	assert.Equal(t, int64(1700000000123), *e.DeadAt)
	assert.Equal(t, p.Submission(), e.Submission())
}

func TestLocationWithEmptyPath(t *testing.T) {
	p := &Post{PostDomain: "blog.com"}
	assert.Equal(t, "blog.com", p.Location())
	assert.Equal(t, "", LedgerEntry{Path: "blog.com"}.Submission().Path)
}
