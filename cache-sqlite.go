package darkrecon

import (
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"
)

// sqliteBackend stores cache entries in a single SQLite file. The UPSERT
// runs in an implicit transaction which provides the atomic-replace
// guarantee for refreshed entries.
type sqliteBackend struct {
	db *sql.DB
}

var _ CacheBackend = (*sqliteBackend)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache (
	key      TEXT PRIMARY KEY,
	target   TEXT NOT NULL,
	provider TEXT NOT NULL,
	entry    BLOB NOT NULL
);
`

func NewSQLiteBackend(path string) (*sqliteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Concurrent writers serialize on a single connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Store(key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = b.db.Exec(
		`INSERT INTO cache (key, target, provider, entry) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET target=excluded.target, provider=excluded.provider, entry=excluded.entry`,
		key, e.Target, e.Provider, data,
	)
	return err
}

func (b *sqliteBackend) Lookup(key string) (*Entry, bool) {
	var data []byte
	err := b.db.QueryRow(`SELECT entry FROM cache WHERE key = ?`, key).Scan(&data)
	if err != nil {
		return nil, false
	}
	e := new(Entry)
	if err := json.Unmarshal(data, e); err != nil {
		Log.WithField("key", key).WithError(err).Debug("corrupt sqlite cache entry treated as miss")
		return nil, false
	}
	return e, true
}

func (b *sqliteBackend) Evict(key string) {
	b.db.Exec(`DELETE FROM cache WHERE key = ?`, key)
}

func (b *sqliteBackend) DeleteFunc(fn func(e *Entry) bool) int {
	rows, err := b.db.Query(`SELECT key, entry FROM cache`)
	if err != nil {
		return 0
	}
	var keys []string
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			continue
		}
		e := new(Entry)
		if err := json.Unmarshal(data, e); err != nil || fn(e) {
			keys = append(keys, key)
		}
	}
	rows.Close()
	var removed int
	for _, key := range keys {
		if res, err := b.db.Exec(`DELETE FROM cache WHERE key = ?`, key); err == nil {
			if n, _ := res.RowsAffected(); n > 0 {
				removed++
			}
		}
	}
	return removed
}

func (b *sqliteBackend) Size() int {
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (b *sqliteBackend) Bytes() int64 {
	var n sql.NullInt64
	if err := b.db.QueryRow(`SELECT SUM(LENGTH(entry)) FROM cache`).Scan(&n); err != nil {
		return 0
	}
	return n.Int64
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
