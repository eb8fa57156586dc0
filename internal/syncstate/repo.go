package syncstate

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Record is one row of the imported table. Path is relative to the local
// import directory; RemotePath is the contents path it was saved to.
type Record struct {
	Path       string
	Checksum   string
	RemotePath string
	UpdatedAt  time.Time
}

// Upsert inserts or replaces a record. A zero UpdatedAt is stamped with now.
func (db *DB) Upsert(r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO imported (path, checksum, remote_path, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			remote_path = excluded.remote_path,
			updated_at  = excluded.updated_at
	`, r.Path, r.Checksum, r.RemotePath, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("syncstate: upsert %s: %w", r.Path, err)
	}
	return nil
}

// Delete removes the record for path. Deleting an unknown path is not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM imported WHERE path = ?`, path); err != nil {
		return fmt.Errorf("syncstate: delete %s: %w", path, err)
	}
	return nil
}

// Get returns the record for path, or nil when it was never imported.
func (db *DB) Get(path string) (*Record, error) {
	var r Record
	err := db.conn.QueryRow(
		`SELECT path, checksum, remote_path, updated_at FROM imported WHERE path = ?`, path,
	).Scan(&r.Path, &r.Checksum, &r.RemotePath, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncstate: get %s: %w", path, err)
	}
	return &r, nil
}

// All returns every record keyed by local path.
func (db *DB) All() (map[string]Record, error) {
	rows, err := db.conn.Query(`SELECT path, checksum, remote_path, updated_at FROM imported`)
	if err != nil {
		return nil, fmt.Errorf("syncstate: all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Path, &r.Checksum, &r.RemotePath, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out[r.Path] = r
	}
	return out, rows.Err()
}
