package projects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/vowsock"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(vowsock.Project{ID: "1", Name: "demo"})
	ctx := context.Background()

	p, err := store.FindByName(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)

	_, err = store.FindByName(ctx, "other")
	assert.ErrorIs(t, err, vowsock.ErrNonexistentProject)

	require.NoError(t, store.Put(vowsock.Project{ID: "2", Name: "other"}))
	p, err = store.FindByName(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "2", p.ID)

	assert.Error(t, store.Put(vowsock.Project{ID: "3"}))

	store.Delete("demo")
	_, err = store.FindByName(ctx, "demo")
	assert.ErrorIs(t, err, vowsock.ErrNonexistentProject)
}

func TestMemoryStoreCancelled(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(vowsock.Project{ID: "1", Name: "demo"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.FindByName(ctx, "demo")
	assert.ErrorIs(t, err, context.Canceled)
}
