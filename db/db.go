// Package db persists users, sessions, digests, marks, sources,
// subscriptions and packs in a single SQLite database. One DB handle is
// constructed at process start and passed explicitly to every component.
package db

import (
	"database/sql"
)

type DB struct {
	db *sql.DB
}

func New(database string) (*DB, error) {
	conn, err := connection(database)
	if err != nil {
		return nil, err
	}
	return &DB{db: conn}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// nullableRef maps a zero id to NULL for optional foreign keys.
func nullableRef(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
