// Package sqlite implements the persistence surface over a sqlite
// database via sqlx.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

// Ensure Repo implements the Repository interface
var _ feedz.Repository = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}
