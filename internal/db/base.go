// Package db holds the shared repository embed used by both the shared
// and model database packages, plus each database's DDL/repositories.
package db

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// BaseRepository holds the connection and logger every concrete
// repository in internal/db/shared and internal/db/model embeds.
type BaseRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewBase creates a new base repository
func NewBase(db *sql.DB, log zerolog.Logger) *BaseRepository {
	return &BaseRepository{
		db:  db,
		log: log,
	}
}

// DB returns the database connection
func (r *BaseRepository) DB() *sql.DB {
	return r.db
}

// Log returns the repository's logger.
func (r *BaseRepository) Log() zerolog.Logger {
	return r.log
}
