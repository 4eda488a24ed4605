package sqlite

import (
	"database/sql"
	"errors"

	"txstatus/internal/infrastructure/storage"

	_ "modernc.org/sqlite"
)

var Dialect = storage.Dialect{
	Name: "sqlite",
	UpsertBlock: `INSERT INTO blocks (block_number, block_hash, parent_hash, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(block_number) DO UPDATE SET
			block_hash = excluded.block_hash,
			parent_hash = excluded.parent_hash,
			timestamp = excluded.timestamp`,
	InsertTransaction: `INSERT INTO transactions (tx_hash, block_hash, block_number, tx_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO NOTHING`,
	UpsertL1Head: `INSERT INTO l1_state (id, block_number) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET block_number = excluded.block_number`,
}

// NewLedger opens (creating if needed) an embedded ledger database.
func NewLedger(dsn string) (*storage.Ledger, error) {
	if dsn == "" {
		return nil, errors.New("ledger dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return storage.NewLedger(db, Dialect)
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS blocks (
			block_number INTEGER PRIMARY KEY,
			block_hash TEXT NOT NULL UNIQUE,
			parent_hash TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			tx_hash TEXT PRIMARY KEY,
			block_hash TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			tx_index INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS transactions_block_idx ON transactions (block_number)`,
		`CREATE TABLE IF NOT EXISTS l1_state (
			id INTEGER PRIMARY KEY,
			block_number INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
