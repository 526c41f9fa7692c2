package store

import (
	"database/sql"
	"sync"
	"time"
	"unicode/utf8"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists origin storage profiles, so that a sweep can be
// rehearsed against a recorded browser state.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore opens the store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, err
	}
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS storage (
			key TEXT PRIMARY KEY,
			stored_at INTEGER,
			bytes BLOB
		)`,
		"PRAGMA journal_mode=WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteStore{}, err
		}
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStore) All(prefix string) ([]Entry, error) {
	entries := make([]Entry, 0)
	// keys may contain LIKE wildcards, so match the prefix with substr instead
	rows, err := s.db.Query(`SELECT key, stored_at, bytes FROM storage
		WHERE substr(key, 1, ?) = ? ORDER BY key`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return entries, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		var stored int64
		if err := rows.Scan(&entry.Key, &stored, &entry.Bytes); err != nil {
			return entries, err
		}
		entry.StoredAt = time.Unix(stored, 0)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s SQLiteStore) Put(e Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO storage (key, stored_at, bytes) VALUES (?, ?, ?)",
		e.Key, e.StoredAt.Unix(), e.Bytes)
	return err
}

func (s SQLiteStore) Purge(key string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM storage WHERE key = ?", key)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s SQLiteStore) Has(key string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM storage WHERE key = ?", key).Scan(&one)
	return err == nil
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}
