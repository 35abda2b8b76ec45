package kvstore

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Keys and values live in BLOB columns so byte strings with embedded NUL
// bytes bypass sqlite's text handling entirely, and so keys sort by memcmp.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key BLOB NOT NULL PRIMARY KEY,
    value BLOB NOT NULL
) WITHOUT ROWID;
`

type sqliteStore struct {
	db *sqlx.DB
}

type sqliteIterator struct {
	rows *sql.Rows
}

type sqliteKeyIterator struct {
	rows *sql.Rows
}

// NewSqliteStore opens or creates a sqlite backed store at the file named by
// path. Each iterator reads live rows on its own connection rather than a
// snapshot: reads may interleave with an open iterator, but mutating the
// store while one is open is outside the single-writer contract. Lock
// contention between connections is bounded by a busy timeout rather than
// blocking forever.
func NewSqliteStore(path string) (Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	_, err = db.Exec(sqliteSchema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create table: %w", err)
	}

	return &sqliteStore{
		db: db,
	}, nil
}

// blob normalizes a byte string for binding and for results: a nil slice
// would bind as NULL, and the empty key and empty value are real values
// here, never NULL.
func blob(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (sst *sqliteStore) Get(key, def []byte) ([]byte, error) {
	if sst.db == nil {
		return nil, ErrClosed
	}

	var val []byte
	err := sst.db.QueryRow("SELECT value FROM kv WHERE key = ?", blob(key)).Scan(&val)
	if err == sql.ErrNoRows {
		return def, nil
	} else if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	return blob(val), nil
}

func (sst *sqliteStore) Put(key, val []byte) error {
	if sst.db == nil {
		return ErrClosed
	}

	_, err := sst.db.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)",
		blob(key), blob(val))
	if err != nil {
		return fmt.Errorf("sqlite: put: %w", err)
	}
	return nil
}

func (sst *sqliteStore) PutMany(entries []Entry) error {
	if sst.db == nil {
		return ErrClosed
	}

	tx, err := sst.db.Beginx()
	if err != nil {
		return fmt.Errorf("sqlite: begin failed: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: put many: %w", err)
	}

	for _, ent := range entries {
		_, err = stmt.Exec(blob(ent.Key), blob(ent.Value))
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("sqlite: put many: %w", err)
		}
	}
	stmt.Close()

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (sst *sqliteStore) query(cols string, from, to []byte) (*sql.Rows, error) {
	if sst.db == nil {
		return nil, ErrClosed
	}

	q := "SELECT " + cols + " FROM kv"
	var args []interface{}
	if from != nil {
		q += " WHERE key >= ?"
		args = append(args, blob(from))
	}
	if to != nil {
		if from != nil {
			q += " AND key <= ?"
		} else {
			q += " WHERE key <= ?"
		}
		args = append(args, blob(to))
	}
	q += " ORDER BY key"

	rows, err := sst.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return rows, nil
}

func (sst *sqliteStore) Keys(from, to []byte) (KeyIterator, error) {
	rows, err := sst.query("key", from, to)
	if err != nil {
		return nil, err
	}
	return sqliteKeyIterator{rows: rows}, nil
}

func (sst *sqliteStore) Items(from, to []byte) (Iterator, error) {
	rows, err := sst.query("key, value", from, to)
	if err != nil {
		return nil, err
	}
	return sqliteIterator{rows: rows}, nil
}

func (sit sqliteIterator) Item(fn func(key, val []byte) error) error {
	if !sit.rows.Next() {
		err := sit.rows.Err()
		if err != nil {
			return fmt.Errorf("sqlite: items: %w", err)
		}
		return io.EOF
	}

	var key, val []byte
	err := sit.rows.Scan(&key, &val)
	if err != nil {
		return fmt.Errorf("sqlite: items: %w", err)
	}
	return fn(blob(key), blob(val))
}

func (sit sqliteIterator) Close() {
	sit.rows.Close()
}

func (sit sqliteKeyIterator) Key(fn func(key []byte) error) error {
	if !sit.rows.Next() {
		err := sit.rows.Err()
		if err != nil {
			return fmt.Errorf("sqlite: keys: %w", err)
		}
		return io.EOF
	}

	var key []byte
	err := sit.rows.Scan(&key)
	if err != nil {
		return fmt.Errorf("sqlite: keys: %w", err)
	}
	return fn(blob(key))
}

func (sit sqliteKeyIterator) Close() {
	sit.rows.Close()
}

func (sst *sqliteStore) Sync() error {
	if sst.db == nil {
		return ErrClosed
	}
	// Every statement commits before returning; there is nothing buffered.
	return nil
}

func (sst *sqliteStore) Close() error {
	if sst.db == nil {
		return ErrClosed
	}
	err := sst.db.Close()
	sst.db = nil
	if err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}
