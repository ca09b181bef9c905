package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/testutil"
)

func newPost(sig, block string) *model.Post {
	return &model.Post{
		Signature:  sig,
		Domain:     "owner.com",
		PostDomain: "blog.com",
		Path:       "first-post",
		Hash:       "f47b92e3ef005ff463cc823ea367c945aab825349a521b75c4373b9643cd44dc",
		Block:      block,
		Source:     "local",
	}
}

func TestPostInsertAndGet(t *testing.T) {
	repo := NewPostRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newPost("aa01", "b1")))

	got, err := repo.GetBySignature(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, "owner.com", got.Domain)
	assert.Equal(t, "blog.com/first-post", got.Location())
	assert.False(t, got.InsertedAt.IsZero())
	assert.Nil(t, got.DeadAt)

	_, err = repo.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostInsertDuplicate(t *testing.T) {
	repo := NewPostRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newPost("aa01", "b1")))
	assert.ErrorIs(t, repo.Insert(ctx, newPost("aa01", "b2")), ErrDuplicate)

	cnt, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	got, err := repo.GetBySignature(ctx, "aa01")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.Block)
}

func TestPostInsertConcurrentDuplicate(t *testing.T) {
	repo := NewPostRepository(testutil.NewDB(t))
	ctx := context.Background()

	const writers = 8
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := repo.Insert(ctx, newPost("cafe", "b1")); err {
			case nil:
				ok.Add(1)
			case ErrDuplicate:
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(writers-1), dup.Load())
}

func TestPostListByBlock(t *testing.T) {
	repo := NewPostRepository(testutil.NewDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, newPost(fmt.Sprintf("s%02d", i), "b1")))
	}
	require.NoError(t, repo.Insert(ctx, newPost("other", "b2")))

	page, err := repo.ListByBlock(ctx, "b1", 0, 3)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	page, err = repo.ListByBlock(ctx, "b1", 3, 3)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestPostMarkDead(t *testing.T) {
	repo := NewPostRepository(testutil.NewDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, newPost("aa01", "b1")))

	first := time.Unix(1700000000, 0)
	require.NoError(t, repo.MarkDead(ctx, "aa01", first))
	// 再次标记不覆盖
	require.NoError(t, repo.MarkDead(ctx, "aa01", first.Add(time.Hour)))

	got, err := repo.GetBySignature(ctx, "aa01")
	require.NoError(t, err)
	require.NotNil(t, got.DeadAt)
	assert.True(t, got.DeadAt.Equal(first))

	assert.ErrorIs(t, repo.MarkDead(ctx, "missing", first), ErrNotFound)
}
