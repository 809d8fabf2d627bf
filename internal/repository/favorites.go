package repository

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

const maxFavoriteName = 64

var (
	ErrInvalidFavorite = errors.New("favorite name and query are required")
	ErrNotOwner        = errors.New("you can only remove your own favorites")
)

type FavoritesService struct {
	repo *Repo
}

func NewFavoritesService(repo *Repo) *FavoritesService {
	return &FavoritesService{repo: repo}
}

func (f *FavoritesService) Create(ctx context.Context, guild, author, name, query string) error {
	name = strings.TrimSpace(name)
	query = strings.TrimSpace(query)
	if name == "" || query == "" || utf8.RuneCountInString(name) > maxFavoriteName {
		return ErrInvalidFavorite
	}
	return f.repo.AddFavorite(ctx, &Favorite{
		GuildID: guild, Author: author, Name: name, Query: query,
	})
}

// Remove deletes a favorite. Only its author may remove it.
func (f *FavoritesService) Remove(ctx context.Context, guild, userID, name string) error {
	name = strings.TrimSpace(name)
	fav, err := f.repo.FindFavorite(ctx, guild, name)
	if err != nil {
		return err
	}
	if fav.Author != userID {
		return ErrNotOwner
	}
	n, err := f.repo.RemoveFavorite(ctx, guild, name)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

func (f *FavoritesService) Use(ctx context.Context, guild, name string) (*Favorite, error) {
	return f.repo.FindFavorite(ctx, guild, strings.TrimSpace(name))
}

func (f *FavoritesService) List(ctx context.Context, guild string) ([]Favorite, error) {
	return f.repo.ListFavorites(ctx, guild)
}

func (f *FavoritesService) Suggest(ctx context.Context, guild, prefix string) ([]string, error) {
	return f.repo.SearchFavoriteNames(ctx, guild, strings.TrimSpace(prefix), 25)
}
