// Package journal persists applied restrictions to SQLite so rules left
// behind by a run that died without unwinding (SIGKILL, panic before the
// shutdown hook) can be found and deleted by `netctrl recover`.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	"netctrl-go/pkg/ledger"

	_ "modernc.org/sqlite"
)

// Record is one journaled restriction.
type Record struct {
	Direction ledger.Direction
	Kind      string
	Key       string
	CreatedAt time.Time
}

type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode=wal&_pragma=busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db %s: %w", path, err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal db %s: %w", path, err)
	}

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS restrictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        direction TEXT NOT NULL,
        kind TEXT NOT NULL,
        key TEXT NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP NOT NULL,
        UNIQUE(direction, key)
    );`
	if _, err = db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create restrictions table: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record stores an applied restriction. Re-recording the same
// (direction, key) replaces the old row.
func (j *Journal) Record(dir ledger.Direction, kind, key string) error {
	_, err := j.db.Exec(
		`INSERT OR REPLACE INTO restrictions (direction, kind, key) VALUES (?, ?, ?)`,
		dir.String(), kind, key)
	if err != nil {
		return fmt.Errorf("failed to journal restriction: %w", err)
	}
	return nil
}

// Forget drops a restriction after its undo ran (whether or not the undo
// succeeded; the entry is attempted once, same as the ledger).
func (j *Journal) Forget(dir ledger.Direction, key string) error {
	_, err := j.db.Exec(`DELETE FROM restrictions WHERE direction = ? AND key = ?`, dir.String(), key)
	if err != nil {
		return fmt.Errorf("failed to remove journal row: %w", err)
	}
	return nil
}

// Orphans lists every journaled restriction. On a clean shutdown the table
// is empty, so anything here was leaked by a dead run.
func (j *Journal) Orphans() ([]Record, error) {
	rows, err := j.db.Query(`SELECT direction, kind, key, created_at FROM restrictions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var dirStr, createdAt string
		var r Record
		if err := rows.Scan(&dirStr, &r.Kind, &r.Key, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		dir, err := ledger.ParseDirection(dirStr)
		if err != nil {
			return nil, err
		}
		r.Direction = dir
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			r.CreatedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Clear empties the journal.
func (j *Journal) Clear() error {
	_, err := j.db.Exec(`DELETE FROM restrictions`)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}
