package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"txstatus/internal/application"
	"txstatus/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTx(t *testing.T, raw string) domain.TransactionHash {
	t.Helper()
	hash, err := domain.ParseTransactionHash(raw)
	require.NoError(t, err)
	return hash
}

func mustBlock(t *testing.T, raw string) domain.BlockHash {
	t.Helper()
	hash, err := domain.ParseBlockHash(raw)
	require.NoError(t, err)
	return hash
}

func lookup(t *testing.T, ledger application.Ledger, hash domain.TransactionHash) (domain.BlockReference, bool, bool) {
	t.Helper()
	var (
		ref        domain.BlockReference
		found      bool
		l1Accepted bool
	)
	err := ledger.View(context.Background(), func(tx application.LedgerReader) error {
		var err error
		ref, found, err = tx.BlockContaining(context.Background(), hash)
		if err != nil || !found {
			return err
		}
		l1Accepted, err = tx.IsL1Accepted(context.Background(), ref)
		return err
	})
	require.NoError(t, err)
	return ref, found, l1Accepted
}

func TestLedger_StoreAndLookup(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	genesis := domain.Block{
		Number:       0,
		Hash:         mustBlock(t, "0xb10c0"),
		Timestamp:    1700000000,
		Transactions: []domain.TransactionHash{mustTx(t, "0x10"), mustTx(t, "0x11")},
	}
	next := domain.Block{
		Number:       1,
		Hash:         mustBlock(t, "0xb10c1"),
		ParentHash:   genesis.Hash,
		Timestamp:    1700000030,
		Transactions: []domain.TransactionHash{mustTx(t, "0x20")},
	}
	require.NoError(t, ledger.StoreBlock(ctx, genesis))
	require.NoError(t, ledger.StoreBlock(ctx, next))

	latest, ok, err := ledger.LatestBlock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.BlockReference{Number: 1, Hash: next.Hash}, latest)

	// No L1 state yet: everything is L2 only.
	ref, found, l1 := lookup(t, ledger, mustTx(t, "0x11"))
	require.True(t, found)
	assert.Equal(t, genesis.Hash, ref.Hash)
	assert.False(t, l1)

	require.NoError(t, ledger.SetL1Head(ctx, 0))
	head, ok, err := ledger.L1Head(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), head)

	_, found, l1 = lookup(t, ledger, mustTx(t, "0x10"))
	require.True(t, found)
	assert.True(t, l1)

	_, found, l1 = lookup(t, ledger, mustTx(t, "0x20"))
	require.True(t, found)
	assert.False(t, l1)

	_, found, _ = lookup(t, ledger, mustTx(t, "0x99"))
	assert.False(t, found)
}

func TestLedger_StoreBlockIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger, err := NewLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	block := domain.Block{
		Number:       7,
		Hash:         mustBlock(t, "0x77"),
		Transactions: []domain.TransactionHash{mustTx(t, "0x1")},
	}
	require.NoError(t, ledger.StoreBlock(ctx, block))
	require.NoError(t, ledger.StoreBlock(ctx, block))

	ref, found, _ := lookup(t, ledger, mustTx(t, "0x1"))
	require.True(t, found)
	assert.Equal(t, uint64(7), ref.Number)
}

func TestLedger_Empty(t *testing.T) {
	ledger, err := NewLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	_, ok, err := ledger.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = ledger.L1Head(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, ledger.Ping(context.Background()))
}
