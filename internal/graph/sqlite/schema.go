// Package sqlite provides an embedded graph.Store on top of SQLite, for
// single-user setups without a Neo4j server and for tests.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mnemo/internal/graph"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL,
	name       TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS relationships (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	source_id  INTEGER NOT NULL REFERENCES entities(id),
	target_id  INTEGER NOT NULL REFERENCES entities(id),
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_label_name ON entities(label, name);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
`

// Store implements graph.Store backed by a SQLite file.
type Store struct {
	conn *sql.DB
}

var _ graph.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database and applies the schema.
// Foreign keys are enforced, so deleting a connected entity without detach
// fails the same way a constraint violation does on Neo4j.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
