package status

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/glebarez/sqlite"
)

// SQLiteKV persists the history snapshot in a sqlite table under the data
// root. Save replaces the table contents in one transaction so the snapshot
// on disk is always consistent.
type SQLiteKV struct {
	SQL  *sql.DB
	Path string
}

func OpenSQLiteKV(dataRoot string) (*SQLiteKV, error) {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dataRoot, "history.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=journal_mode(WAL)", path)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	kv := &SQLiteKV{SQL: sqldb, Path: path}
	if err := kv.initSchema(); err != nil {
		return nil, err
	}
	return kv, nil
}

func (kv *SQLiteKV) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			invoice_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			ever_downloaded INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, s := range stmts {
		if _, err := kv.SQL.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (kv *SQLiteKV) Load() (*Snapshot, error) {
	rows, err := kv.SQL.Query(`SELECT invoice_id, state, timestamp,
		COALESCE(attempts, 0),
		COALESCE(last_error, ''),
		COALESCE(ever_downloaded, 0)
	  FROM history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	snap := &Snapshot{Entries: map[string]Entry{}}
	for rows.Next() {
		var e Entry
		var st string
		var ever int
		if err := rows.Scan(&e.InvoiceID, &st, &e.Timestamp, &e.Attempts, &e.LastError, &ever); err != nil {
			return nil, err
		}
		e.State = State(st)
		snap.Entries[e.InvoiceID] = e
		if ever != 0 {
			snap.Downloaded = append(snap.Downloaded, e.InvoiceID)
		}
	}
	return snap, rows.Err()
}

func (kv *SQLiteKV) Save(snap Snapshot) error {
	tx, err := kv.SQL.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM history`); err != nil {
		return err
	}
	ever := make(map[string]bool, len(snap.Downloaded))
	for _, id := range snap.Downloaded {
		ever[id] = true
	}
	for id, e := range snap.Entries {
		everFlag := 0
		if ever[id] {
			everFlag = 1
			delete(ever, id)
		}
		if _, err := tx.Exec(`INSERT INTO history(invoice_id, state, timestamp, attempts, last_error, ever_downloaded)
			VALUES(?,?,?,?,?,?)`,
			id, string(e.State), e.Timestamp, e.Attempts, e.LastError, everFlag); err != nil {
			return err
		}
	}
	// Downloaded ids with no entry (imported history) still need a row.
	for id := range ever {
		if _, err := tx.Exec(`INSERT INTO history(invoice_id, state, timestamp, attempts, last_error, ever_downloaded)
			VALUES(?,?,0,0,'',1)`, id, string(Downloaded)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (kv *SQLiteKV) Clear() error {
	_, err := kv.SQL.Exec(`DELETE FROM history`)
	return err
}

func (kv *SQLiteKV) Close() error { return kv.SQL.Close() }
