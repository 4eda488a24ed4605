package mysql

import (
	"database/sql"
	"errors"
	"fmt"

	"txstatus/internal/infrastructure/storage"

	_ "github.com/go-sql-driver/mysql"
)

var Dialect = storage.Dialect{
	Name:       "mysql",
	ReadOnlyTx: true,
	UpsertBlock: `INSERT INTO blocks (block_number, block_hash, parent_hash, timestamp)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			block_hash = VALUES(block_hash),
			parent_hash = VALUES(parent_hash),
			timestamp = VALUES(timestamp)`,
	InsertTransaction: `INSERT IGNORE INTO transactions (tx_hash, block_hash, block_number, tx_index)
		VALUES (?, ?, ?, ?)`,
	UpsertL1Head: `INSERT INTO l1_state (id, block_number) VALUES (1, ?)
		ON DUPLICATE KEY UPDATE block_number = VALUES(block_number)`,
}

// NewLedger connects to a MySQL ledger and makes sure its schema exists.
func NewLedger(dsn string) (*storage.Ledger, error) {
	if dsn == "" {
		return nil, errors.New("ledger dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
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
		`CREATE TABLE IF NOT EXISTS blocks (
			block_number BIGINT UNSIGNED NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			parent_hash VARCHAR(66) NOT NULL,
			timestamp BIGINT UNSIGNED NOT NULL DEFAULT 0,
			PRIMARY KEY (block_number),
			UNIQUE KEY blocks_hash_unique (block_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			tx_hash VARCHAR(66) NOT NULL,
			block_hash VARCHAR(66) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			tx_index BIGINT UNSIGNED NOT NULL,
			PRIMARY KEY (tx_hash),
			KEY transactions_block_idx (block_number)
		)`,
		`CREATE TABLE IF NOT EXISTS l1_state (
			id TINYINT UNSIGNED NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			PRIMARY KEY (id)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating ledger schema: %w", err)
		}
	}
	return nil
}
