package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/did-node/internal/model"
	"github.com/d60-Lab/did-node/internal/testutil"
)

func TestBlockInsertIdempotent(t *testing.T) {
	repo := NewBlockRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &model.Block{Hash: "0000aa", Time: 100}))
	require.NoError(t, repo.Insert(ctx, &model.Block{Hash: "0000aa", Time: 200}))

	b, err := repo.Get(ctx, "0000aa")
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Time)

	_, err = repo.Get(ctx, "ffff")
	assert.ErrorIs(t, err, ErrNotFound)
}
