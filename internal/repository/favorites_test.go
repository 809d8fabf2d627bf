package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *FavoritesService {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	repo := NewRepo(db)
	t.Cleanup(func() { _ = repo.Close() })
	return NewFavoritesService(repo)
}

func TestFavoritesLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, "g1", "alice", " chill ", "lofi hip hop radio"))
	require.NoError(t, svc.Create(ctx, "g1", "bob", "anthem", "never gonna give you up"))
	require.NoError(t, svc.Create(ctx, "g2", "alice", "chill", "something else"))

	err := svc.Create(ctx, "g1", "bob", "chill", "dup")
	assert.ErrorIs(t, err, ErrFavoriteExists)

	fav, err := svc.Use(ctx, "g1", "chill")
	require.NoError(t, err)
	assert.Equal(t, "lofi hip hop radio", fav.Query)
	assert.Equal(t, "alice", fav.Author)

	list, err := svc.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "anthem", list[0].Name)

	names, err := svc.Suggest(ctx, "g1", "ch")
	require.NoError(t, err)
	assert.Equal(t, []string{"chill"}, names)

	assert.ErrorIs(t, svc.Remove(ctx, "g1", "bob", "chill"), ErrNotOwner)
	require.NoError(t, svc.Remove(ctx, "g1", "alice", "chill"))
	_, err = svc.Use(ctx, "g1", "chill")
	assert.ErrorIs(t, err, ErrFavoriteNotFound)

	// other guilds are untouched
	_, err = svc.Use(ctx, "g2", "chill")
	assert.NoError(t, err)
}

func TestFavoritesValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Create(ctx, "g", "a", "", "q"), ErrInvalidFavorite)
	assert.ErrorIs(t, svc.Create(ctx, "g", "a", "n", "   "), ErrInvalidFavorite)
	assert.ErrorIs(t, svc.Remove(ctx, "g", "a", "missing"), ErrFavoriteNotFound)
}

func TestSuggestEscapesWildcards(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, "g", "a", "100%", "q"))
	require.NoError(t, svc.Create(ctx, "g", "a", "100x", "q"))

	names, err := svc.Suggest(ctx, "g", "100%")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%"}, names)
}
