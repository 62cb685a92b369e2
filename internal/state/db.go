package state

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB persists per-profile UI state: the last visited route, the chosen
// model, and the input history. Nothing here is authoritative; the backend
// owns the conversations themselves.
type DB struct {
	conn *sql.DB
}

func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "prpo", "state.db")
}

func Connect(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS last_routes (
		profile TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		updated_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS model_choices (
		profile TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		updated_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS input_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_input_history_profile
		ON input_history (profile, id);`
	_, err := db.Exec(schema)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}
