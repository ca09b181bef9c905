package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/testutil"
)

// flakyStore 前 failures 次写入失败
type flakyStore struct {
	PostStore
	failures atomic.Int32
}

func (s *flakyStore) Insert(ctx context.Context, post *model.Post) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("disk full")
	}
	return s.PostStore.Insert(ctx, post)
}

type result struct {
	msg Message
	err error
}

func startIngester(t *testing.T, n *node, queue int) (*Ingester, <-chan result) {
	t.Helper()
	done := make(chan result, 16)
	ing := NewIngester(n.validator, n.posts, queue, 5*time.Second, zap.NewNop(), nil,
		WithIngestHook(func(m Message, err error) { done <- result{m, err} }))
	stop := ing.Start(2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stop(ctx)
	})
	return ing, done
}

func waitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("ingester did not process message")
		return result{}
	}
}

func TestGossipReplicatesAcrossNodes(t *testing.T) {
	w := newWorld(t)
	a := w.newNode(t)
	b := w.newNode(t)
	ing, done := startIngester(t, b, 16)
	a.bus.subs = append(a.bus.subs, func(data []byte) {
		ing.Enqueue(Message{Data: data, From: "peer-a"})
	})

	alice := testutil.NewSigner(t, "alice.com")
	alice.Serve(w.web)
	sub := alice.Attest(w.web, "alice.com", "news/today", blockA)

	_, err := a.service.Submit(context.Background(), sub)
	require.NoError(t, err)

	r := waitResult(t, done)
	require.NoError(t, r.err)

	stored, err := b.posts.GetBySignature(context.Background(), sub.SignatureHex)
	require.NoError(t, err)
	assert.Equal(t, "peer-a", stored.Source)
	assert.Equal(t, sub, stored.Submission())

	// 重复投递只被判为重复
	ing.Enqueue(Message{Data: a.bus.msgs[0], From: "peer-c"})
	r = waitResult(t, done)
	assert.Equal(t, ReasonDuplicate, ReasonOf(r.err))

	count, err := b.posts.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngesterSurvivesBadMessages(t *testing.T) {
	w := newWorld(t)
	n := w.newNode(t)
	ing, done := startIngester(t, n, 16)

	alice := testutil.NewSigner(t, "alice.com")
	alice.Serve(w.web)
	forged := alice.Attest(w.web, "alice.com", "x", blockA)
	forged.Hash = flipLast(forged.Hash)
	good := alice.Attest(w.web, "alice.com", "y", blockA)
	goodData, err := EncodeSubmission(&good)
	require.NoError(t, err)
	forgedData, err := EncodeSubmission(&forged)
	require.NoError(t, err)

	require.True(t, ing.Enqueue(Message{Data: []byte("{not json"), From: "p1"}))
	assert.Equal(t, ReasonMalformedPayload, ReasonOf(waitResult(t, done).err))

	require.True(t, ing.Enqueue(Message{Data: forgedData, From: "p1"}))
	assert.Equal(t, ReasonInvalidSignature, ReasonOf(waitResult(t, done).err))

	require.True(t, ing.Enqueue(Message{Data: goodData, From: "p2"}))
	require.NoError(t, waitResult(t, done).err)

	exists, err := n.posts.Exists(context.Background(), good.SignatureHex)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngesterContinuesAfterStorageError(t *testing.T) {
	w := newWorld(t)
	n := w.newNode(t)
	store := &flakyStore{PostStore: n.posts}
	store.failures.Store(1)
	done := make(chan result, 4)
	ing := NewIngester(n.validator, store, 16, 5*time.Second, zap.NewNop(), nil,
		WithIngestHook(func(m Message, err error) { done <- result{m, err} }))
	stop := ing.Start(1)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stop(ctx)
	})

	alice := testutil.NewSigner(t, "alice.com")
	alice.Serve(w.web)
	first := alice.Attest(w.web, "alice.com", "one", blockA)
	second := alice.Attest(w.web, "alice.com", "two", blockA)
	firstData, err := EncodeSubmission(&first)
	require.NoError(t, err)
	secondData, err := EncodeSubmission(&second)
	require.NoError(t, err)

	require.True(t, ing.Enqueue(Message{Data: firstData, From: "p1"}))
	r := waitResult(t, done)
	assert.Equal(t, ReasonStorageFailed, ReasonOf(r.err))
	assert.True(t, IsKind(r.err, KindStorage))

	require.True(t, ing.Enqueue(Message{Data: secondData, From: "p1"}))
	require.NoError(t, waitResult(t, done).err)

	exists, err := n.posts.Exists(context.Background(), second.SignatureHex)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = n.posts.Exists(context.Background(), first.SignatureHex)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIngesterDropsWhenFull(t *testing.T) {
	w := newWorld(t)
	n := w.newNode(t)
	ing := NewIngester(n.validator, n.posts, 1, time.Second, zap.NewNop(), nil)

	assert.True(t, ing.Enqueue(Message{Data: []byte("{}")}))
	assert.False(t, ing.Enqueue(Message{Data: []byte("{}")}))
	assert.Equal(t, 1, ing.QueueLen())
}
