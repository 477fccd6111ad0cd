package sqliteutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// remote reports whether `path` points at a libsql server instead of a local file.
func remote(path string) bool {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}

// OpenDB opens the database at `path` and applies `schema` to it. `path` is
// either a local sqlite file (created if missing), ":memory:" or a libsql url.
func OpenDB(schema, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("a path was not specified")
	}

	var db *sql.DB
	var err error
	if remote(path) {
		db, err = sql.Open("libsql", path)
		if err != nil {
			return nil, err
		}
	} else {
		if path != ":memory:" {
			err = os.MkdirAll(filepath.Dir(path), 0755)
			if err != nil {
				return nil, err
			}
		}
		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		// sqlite only allows a single writer, see
		// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		db.SetMaxOpenConns(1)
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}
