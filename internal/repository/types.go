package repository

import "database/sql"

type Repo struct {
	db *sql.DB
}

type Favorite struct {
	ID      int64
	GuildID string
	Author  string
	Name    string
	Query   string
}
