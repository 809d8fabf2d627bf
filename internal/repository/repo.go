package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrFavoriteExists   = errors.New("a favorite with that name already exists")
	ErrFavoriteNotFound = errors.New("no favorite with that name exists")
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) AddFavorite(ctx context.Context, f *Favorite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites(guild_id, author_id, name, query) VALUES (?,?,?,?)`,
		f.GuildID, f.Author, f.Name, f.Query,
	)
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrFavoriteExists
	}
	return err
}

func (r *Repo) RemoveFavorite(ctx context.Context, guild, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE guild_id=? AND name=?`, guild, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const favoriteColumns = `id, guild_id, author_id, name, query`

type scanner interface {
	Scan(dest ...any) error
}

func scanFavorite(s scanner) (Favorite, error) {
	var f Favorite
	err := s.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query)
	return f, err
}

func (r *Repo) FindFavorite(ctx context.Context, guild, name string) (*Favorite, error) {
	f, err := scanFavorite(r.db.QueryRowContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorites WHERE guild_id=? AND name=?`, guild, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFavoriteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repo) ListFavorites(ctx context.Context, guild string) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorites WHERE guild_id=? ORDER BY name ASC`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Favorite
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchFavoriteNames returns names starting with prefix, for autocomplete.
func (r *Repo) SearchFavoriteNames(ctx context.Context, guild, prefix string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM favorites WHERE guild_id=? AND name LIKE ? ESCAPE '\' ORDER BY name ASC LIMIT ?`,
		guild, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
