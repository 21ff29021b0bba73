package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLStore persists plugin states and the admin list as a namespaced
// key-value table in a SQLite database, grounded on the
// namespace/key/value schema idiom used for operational state
// elsewhere in the stack. modernc.org/sqlite is used in place of a
// cgo-based driver so the store backend stays cross-compile-friendly.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS kovi_state (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
);
`

// OpenSQL opens (creating if absent) a SQLite database at path.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate sqlite schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) LoadPluginStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kovi_state WHERE namespace = ?`, "plugin_state")
	if err != nil {
		return nil, fmt.Errorf("store: load plugin states: %w", err)
	}
	defer rows.Close()

	states := map[string]bool{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan plugin state: %w", err)
		}
		states[k] = v == "1"
	}
	return states, rows.Err()
}

func (s *SQLStore) SavePluginStates(ctx context.Context, states map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM kovi_state WHERE namespace = ?`, "plugin_state"); err != nil {
		return fmt.Errorf("store: clear plugin states: %w", err)
	}
	for name, enabled := range states {
		val := "0"
		if enabled {
			val = "1"
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kovi_state (namespace, key, value) VALUES (?, ?, ?)
			 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
			"plugin_state", name, val)
		if err != nil {
			return fmt.Errorf("store: save plugin state %q: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit plugin states: %w", err)
	}
	return nil
}

func (s *SQLStore) LoadAdminList(ctx context.Context) (AdminList, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kovi_state WHERE namespace = ? AND key = ?`, "admin_list", "current").Scan(&value)
	if err == sql.ErrNoRows {
		return AdminList{}, false, nil
	}
	if err != nil {
		return AdminList{}, false, fmt.Errorf("store: load admin list: %w", err)
	}
	var list AdminList
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return AdminList{}, false, fmt.Errorf("store: unmarshal admin list: %w", err)
	}
	return list, true, nil
}

func (s *SQLStore) SaveAdminList(ctx context.Context, list AdminList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("store: marshal admin list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kovi_state (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
		"admin_list", "current", string(data))
	if err != nil {
		return fmt.Errorf("store: save admin list: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
