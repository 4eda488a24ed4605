package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"txstatus/internal/application"
	"txstatus/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dialect carries the statements that differ between SQL engines.
type Dialect struct {
	Name              string
	ReadOnlyTx        bool
	UpsertBlock       string
	InsertTransaction string
	UpsertL1Head      string
}

// Ledger is the persistent record of blocks, the transactions they contain
// and how far the settlement layer has accepted them.
type Ledger struct {
	db      *sql.DB
	dialect Dialect
}

var _ application.Ledger = (*Ledger)(nil)

func NewLedger(db *sql.DB, dialect Dialect) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dialect.Name == "" {
		return nil, errors.New("dialect name is required")
	}
	return &Ledger{db: db, dialect: dialect}, nil
}

// View acquires a dedicated connection and a transaction, runs fn and
// releases both. The transaction is never committed.
func (l *Ledger) View(ctx context.Context, fn func(application.LedgerReader) error) error {
	ctx, span := l.startSpan(ctx, "ledger.View")
	defer span.End()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return recordError(span, fmt.Errorf("opening database connection: %w: %w", application.ErrLedgerConnection, err))
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: l.dialect.ReadOnlyTx})
	if err != nil {
		return recordError(span, fmt.Errorf("creating database transaction: %w: %w", application.ErrLedgerTransaction, err))
	}
	defer tx.Rollback()

	if err := fn(ledgerReader{tx: tx}); err != nil {
		return recordError(span, err)
	}
	return nil
}

type ledgerReader struct {
	tx *sql.Tx
}

func (r ledgerReader) BlockContaining(ctx context.Context, hash domain.TransactionHash) (domain.BlockReference, bool, error) {
	var (
		number  uint64
		hashRaw string
	)
	err := r.tx.QueryRowContext(ctx, `SELECT b.block_number, b.block_hash
		FROM transactions t
		JOIN blocks b ON b.block_hash = t.block_hash
		WHERE t.tx_hash = ?`, hash.String()).Scan(&number, &hashRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BlockReference{}, false, nil
		}
		return domain.BlockReference{}, false, fmt.Errorf("%w: %w", application.ErrLedgerQuery, err)
	}
	blockHash, err := domain.ParseBlockHash(hashRaw)
	if err != nil {
		return domain.BlockReference{}, false, fmt.Errorf("%w: stored block hash %q: %w", application.ErrLedgerQuery, hashRaw, err)
	}
	return domain.BlockReference{Number: number, Hash: blockHash}, true, nil
}

func (r ledgerReader) IsL1Accepted(ctx context.Context, block domain.BlockReference) (bool, error) {
	head, ok, err := queryL1Head(ctx, r.tx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", application.ErrLedgerQuery, err)
	}
	return ok && block.Number <= head, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryL1Head(ctx context.Context, q rowQuerier) (uint64, bool, error) {
	var head uint64
	if err := q.QueryRowContext(ctx, `SELECT block_number FROM l1_state WHERE id = 1`).Scan(&head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return head, true, nil
}

// StoreBlock records a block and its transaction hashes atomically.
func (l *Ledger) StoreBlock(ctx context.Context, block domain.Block) error {
	ctx, span := l.startSpan(ctx, "ledger.StoreBlock",
		attribute.Int64("block.number", int64(block.Number)),
		attribute.Int("tx.count", len(block.Transactions)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return recordError(span, err)
	}
	if _, err := tx.ExecContext(ctx, l.dialect.UpsertBlock,
		block.Number, block.Hash.String(), block.ParentHash.String(), block.Timestamp,
	); err != nil {
		_ = tx.Rollback()
		return recordError(span, err)
	}

	stmt, err := tx.PrepareContext(ctx, l.dialect.InsertTransaction)
	if err != nil {
		_ = tx.Rollback()
		return recordError(span, err)
	}
	defer stmt.Close()

	for index, hash := range block.Transactions {
		if _, err := stmt.ExecContext(ctx, hash.String(), block.Hash.String(), block.Number, index); err != nil {
			_ = tx.Rollback()
			return recordError(span, err)
		}
	}
	return recordError(span, tx.Commit())
}

func (l *Ledger) LatestBlock(ctx context.Context) (domain.BlockReference, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		number  uint64
		hashRaw string
	)
	err := l.db.QueryRowContext(ctx, `SELECT block_number, block_hash FROM blocks ORDER BY block_number DESC LIMIT 1`).Scan(&number, &hashRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BlockReference{}, false, nil
		}
		return domain.BlockReference{}, false, err
	}
	hash, err := domain.ParseBlockHash(hashRaw)
	if err != nil {
		return domain.BlockReference{}, false, err
	}
	return domain.BlockReference{Number: number, Hash: hash}, true, nil
}

func (l *Ledger) L1Head(ctx context.Context) (uint64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return queryL1Head(ctx, l.db)
}

func (l *Ledger) SetL1Head(ctx context.Context, number uint64) error {
	ctx, span := l.startSpan(ctx, "ledger.SetL1Head", attribute.Int64("block.number", int64(number)))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := l.db.ExecContext(ctx, l.dialect.UpsertL1Head, number)
	return recordError(span, err)
}

func (l *Ledger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.db.PingContext(ctx)
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", l.dialect.Name))
	return otel.Tracer("txstatus/storage").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func recordError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
