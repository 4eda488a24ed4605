package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"txstatus/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakePending struct {
	block domain.PendingBlock
	ok    bool
	calls atomic.Int32
}

func (f *fakePending) PendingBlock(ctx context.Context) (domain.PendingBlock, bool) {
	f.calls.Add(1)
	return f.block, f.ok
}

type fakeLedger struct {
	blocks     map[domain.TransactionHash]domain.BlockReference
	l1Head     *uint64
	viewErr    error
	lookupErr  error
	statusErr  error
	views      atomic.Int32
	released   atomic.Int32
	statusRuns atomic.Int32
}

func (f *fakeLedger) View(ctx context.Context, fn func(LedgerReader) error) error {
	f.views.Add(1)
	if f.viewErr != nil {
		return f.viewErr
	}
	defer f.released.Add(1)
	return fn(f)
}

func (f *fakeLedger) BlockContaining(ctx context.Context, hash domain.TransactionHash) (domain.BlockReference, bool, error) {
	if f.lookupErr != nil {
		return domain.BlockReference{}, false, f.lookupErr
	}
	block, ok := f.blocks[hash]
	return block, ok, nil
}

func (f *fakeLedger) IsL1Accepted(ctx context.Context, block domain.BlockReference) (bool, error) {
	f.statusRuns.Add(1)
	if f.statusErr != nil {
		return false, f.statusErr
	}
	return f.l1Head != nil && block.Number <= *f.l1Head, nil
}

type fakeGateway struct {
	statuses map[domain.TransactionHash]domain.GatewayStatus
	err      error
	calls    atomic.Int32
}

func (f *fakeGateway) Transaction(ctx context.Context, hash domain.TransactionHash) (domain.GatewayTransaction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return domain.GatewayTransaction{}, f.err
	}
	status, ok := f.statuses[hash]
	if !ok {
		status = domain.GatewayNotReceived
	}
	return domain.GatewayTransaction{Hash: hash, Status: status}, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	resolved []Stage
	failed   []Stage
}

func (o *recordingObserver) OnResolved(stage Stage, status domain.TransactionStatus, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved = append(o.resolved, stage)
}

func (o *recordingObserver) OnResolutionFailed(stage Stage, err error, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, stage)
}

func txHash(t *testing.T, raw string) domain.TransactionHash {
	t.Helper()
	hash, err := domain.ParseTransactionHash(raw)
	require.NoError(t, err)
	return hash
}

func uint64Ptr(v uint64) *uint64 {
	return &v
}

// testFixture has block 0 accepted on L1 and block 1 accepted on L2 only.
func testFixture(t *testing.T) (*fakePending, *fakeLedger, *fakeGateway) {
	pending := &fakePending{
		ok: true,
		block: domain.PendingBlock{Transactions: []domain.TransactionHash{
			txHash(t, "0xaa01"),
			txHash(t, "0xaa02"),
		}},
	}
	ledger := &fakeLedger{
		blocks: map[domain.TransactionHash]domain.BlockReference{
			txHash(t, "0xb0"): {Number: 0},
			txHash(t, "0xb1"): {Number: 1},
		},
		l1Head: uint64Ptr(0),
	}
	gateway := &fakeGateway{statuses: map[domain.TransactionHash]domain.GatewayStatus{
		txHash(t, "0xdead"): domain.GatewayRejected,
	}}
	return pending, ledger, gateway
}

func TestResolver_PendingShortCircuits(t *testing.T) {
	pending, ledger, gateway := testFixture(t)
	resolver, err := NewResolver(pending, ledger, gateway, nil)
	require.NoError(t, err)

	status, err := resolver.Resolve(context.Background(), txHash(t, "0xaa02"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)
	assert.Zero(t, ledger.views.Load())
	assert.Zero(t, gateway.calls.Load())
}

func TestResolver_LedgerAcceptance(t *testing.T) {
	cases := []struct {
		name string
		hash string
		want domain.TransactionStatus
	}{
		{name: "l1 accepted block", hash: "0xb0", want: domain.StatusAcceptedOnL1},
		{name: "l2 only block", hash: "0xb1", want: domain.StatusAcceptedOnL2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pending, ledger, gateway := testFixture(t)
			resolver, err := NewResolver(pending, ledger, gateway, nil)
			require.NoError(t, err)

			status, err := resolver.Resolve(context.Background(), txHash(t, tc.hash))
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, int32(1), pending.calls.Load())
			assert.Equal(t, int32(1), ledger.released.Load())
			assert.Zero(t, gateway.calls.Load())
		})
	}
}

func TestResolver_GatewayRejected(t *testing.T) {
	pending, ledger, gateway := testFixture(t)
	resolver, err := NewResolver(pending, ledger, gateway, nil)
	require.NoError(t, err)

	status, err := resolver.Resolve(context.Background(), txHash(t, "0xdead"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, status)
	assert.Equal(t, int32(1), ledger.views.Load())
	assert.Zero(t, ledger.statusRuns.Load())
	assert.Equal(t, int32(1), gateway.calls.Load())
}

func TestResolver_GatewayStatusesPassThrough(t *testing.T) {
	statuses := map[domain.GatewayStatus]domain.TransactionStatus{
		domain.GatewayNotReceived:  domain.StatusNotReceived,
		domain.GatewayReceived:     domain.StatusReceived,
		domain.GatewayPending:      domain.StatusPending,
		domain.GatewayRejected:     domain.StatusRejected,
		domain.GatewayAcceptedOnL1: domain.StatusAcceptedOnL1,
		domain.GatewayAcceptedOnL2: domain.StatusAcceptedOnL2,
		domain.GatewayReverted:     domain.StatusReverted,
		domain.GatewayAborted:      domain.StatusAborted,
	}
	for gatewayStatus, want := range statuses {
		t.Run(string(gatewayStatus), func(t *testing.T) {
			_, ledger, _ := testFixture(t)
			hash := txHash(t, "0x77")
			gateway := &fakeGateway{statuses: map[domain.TransactionHash]domain.GatewayStatus{hash: gatewayStatus}}
			resolver, err := NewResolver(nil, ledger, gateway, nil)
			require.NoError(t, err)

			status, err := resolver.Resolve(context.Background(), hash)
			require.NoError(t, err)
			assert.Equal(t, want, status)
		})
	}
}

func TestResolver_UnknownEverywhereIsNotAnError(t *testing.T) {
	pending, ledger, gateway := testFixture(t)
	resolver, err := NewResolver(pending, ledger, gateway, nil)
	require.NoError(t, err)

	status, err := resolver.Resolve(context.Background(), txHash(t, "0x1234"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNotReceived, status)
}

func TestResolver_PendingUnavailableFallsThrough(t *testing.T) {
	t.Run("no snapshot", func(t *testing.T) {
		pending, ledger, gateway := testFixture(t)
		pending.ok = false
		resolver, err := NewResolver(pending, ledger, gateway, nil)
		require.NoError(t, err)

		// 0xaa01 is in the snapshot contents but the snapshot is unavailable.
		status, err := resolver.Resolve(context.Background(), txHash(t, "0xaa01"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNotReceived, status)
		assert.Equal(t, int32(1), gateway.calls.Load())
	})
	t.Run("not configured", func(t *testing.T) {
		_, ledger, gateway := testFixture(t)
		resolver, err := NewResolver(nil, ledger, gateway, nil)
		require.NoError(t, err)

		status, err := resolver.Resolve(context.Background(), txHash(t, "0xb0"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAcceptedOnL1, status)
	})
}

func TestResolver_LedgerFailureIsFatal(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(*fakeLedger)
		target error
	}{
		{
			name:   "connection",
			setup:  func(l *fakeLedger) { l.viewErr = fmt.Errorf("opening database connection: %w", ErrLedgerConnection) },
			target: ErrLedgerConnection,
		},
		{
			name:   "transaction",
			setup:  func(l *fakeLedger) { l.viewErr = fmt.Errorf("creating database transaction: %w", ErrLedgerTransaction) },
			target: ErrLedgerTransaction,
		},
		{
			name:   "block lookup",
			setup:  func(l *fakeLedger) { l.lookupErr = fmt.Errorf("select: %w", ErrLedgerQuery) },
			target: ErrLedgerQuery,
		},
		{
			name:   "l1 status",
			setup:  func(l *fakeLedger) { l.statusErr = fmt.Errorf("select: %w", ErrLedgerQuery) },
			target: ErrLedgerQuery,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pending, ledger, gateway := testFixture(t)
			tc.setup(ledger)
			observer := &recordingObserver{}
			resolver, err := NewResolver(pending, ledger, gateway, observer)
			require.NoError(t, err)

			status, err := resolver.Resolve(context.Background(), txHash(t, "0xb1"))
			require.Error(t, err)
			assert.Empty(t, status)
			assert.ErrorIs(t, err, ErrInternal)
			assert.ErrorIs(t, err, tc.target)

			var resErr *ResolutionError
			require.ErrorAs(t, err, &resErr)
			assert.Equal(t, StageLedger, resErr.Stage)
			assert.Zero(t, gateway.calls.Load())
			assert.Equal(t, []Stage{StageLedger}, observer.failed)
		})
	}
}

func TestResolver_GatewayFailureIsFatal(t *testing.T) {
	transportErr := errors.New("connection reset")
	pending, ledger, gateway := testFixture(t)
	gateway.err = transportErr
	resolver, err := NewResolver(pending, ledger, gateway, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), txHash(t, "0xdead"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, transportErr)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, StageGateway, resErr.Stage)
}

func TestResolver_UnknownGatewayStatusIsFatal(t *testing.T) {
	_, ledger, _ := testFixture(t)
	hash := txHash(t, "0x99")
	gateway := &fakeGateway{statuses: map[domain.TransactionHash]domain.GatewayStatus{hash: "SOMETHING_NEW"}}
	resolver, err := NewResolver(nil, ledger, gateway, nil)
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), hash)
	assert.ErrorIs(t, err, ErrUnknownGatewayStatus)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestResolver_ObserverSeesStage(t *testing.T) {
	pending, ledger, gateway := testFixture(t)
	observer := &recordingObserver{}
	resolver, err := NewResolver(pending, ledger, gateway, observer)
	require.NoError(t, err)

	for _, raw := range []string{"0xaa01", "0xb0", "0xdead"} {
		_, err := resolver.Resolve(context.Background(), txHash(t, raw))
		require.NoError(t, err)
	}
	assert.Equal(t, []Stage{StagePending, StageLedger, StageGateway}, observer.resolved)
	assert.Empty(t, observer.failed)
}

func TestResolver_ConcurrentCallsAgree(t *testing.T) {
	pending, ledger, gateway := testFixture(t)
	resolver, err := NewResolver(pending, ledger, gateway, nil)
	require.NoError(t, err)

	hashes := []domain.TransactionHash{
		txHash(t, "0xaa01"), txHash(t, "0xb0"), txHash(t, "0xb1"), txHash(t, "0xdead"),
	}
	const rounds = 16
	results := make([][]domain.TransactionStatus, len(hashes))
	for i := range results {
		results[i] = make([]domain.TransactionStatus, rounds)
	}

	var group errgroup.Group
	for i, hash := range hashes {
		for round := 0; round < rounds; round++ {
			group.Go(func() error {
				status, err := resolver.Resolve(context.Background(), hash)
				results[i][round] = status
				return err
			})
		}
	}
	require.NoError(t, group.Wait())

	for i := range hashes {
		for round := 1; round < rounds; round++ {
			assert.Equal(t, results[i][0], results[i][round])
		}
	}
}

func TestNewResolver_RequiresLedgerAndGateway(t *testing.T) {
	_, err := NewResolver(nil, nil, &fakeGateway{}, nil)
	assert.Error(t, err)
	_, err = NewResolver(nil, &fakeLedger{}, nil, nil)
	assert.Error(t, err)
}

func TestMapGatewayStatus_CoversEveryStatus(t *testing.T) {
	for _, status := range domain.TransactionStatuses {
		mapped, err := MapGatewayStatus(domain.GatewayStatus(status))
		require.NoError(t, err)
		assert.Equal(t, status, mapped)
	}
}
