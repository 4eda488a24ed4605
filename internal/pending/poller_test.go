package pending

import (
	"context"
	"errors"
	"testing"

	"txstatus/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	blocks []domain.PendingBlock
	errs   []error
	calls  int
}

func (s *scriptedSource) PendingBlock(ctx context.Context) (domain.PendingBlock, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return domain.PendingBlock{}, s.errs[i]
	}
	if i < len(s.blocks) {
		return s.blocks[i], nil
	}
	return domain.PendingBlock{}, nil
}

type recordingSink struct {
	published []domain.PendingBlock
	cleared   int
}

func (s *recordingSink) PublishPending(ctx context.Context, block domain.PendingBlock) error {
	s.published = append(s.published, block)
	return nil
}

func (s *recordingSink) ClearPending(ctx context.Context) error {
	s.cleared++
	return nil
}

type countingObserver struct {
	sizes []int
}

func (o *countingObserver) OnPendingSnapshot(transactions int) {
	o.sizes = append(o.sizes, transactions)
}

func TestPoller_FansOutToSinks(t *testing.T) {
	block := pendingBlock(t, "0x1", "0x2")
	source := &scriptedSource{blocks: []domain.PendingBlock{block}}
	first, second := &recordingSink{}, &recordingSink{}
	observer := &countingObserver{}
	poller, err := NewPoller(source, []Sink{first, second}, observer, PollerConfig{})
	require.NoError(t, err)

	poller.Poll(context.Background())

	assert.Equal(t, []domain.PendingBlock{block}, first.published)
	assert.Equal(t, []domain.PendingBlock{block}, second.published)
	assert.Equal(t, []int{2}, observer.sizes)
}

func TestPoller_ClearsAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("gateway down")
	source := &scriptedSource{
		errs:   []error{boom, boom, nil, boom, boom, boom},
		blocks: make([]domain.PendingBlock, 6),
	}
	sink := &recordingSink{}
	poller, err := NewPoller(source, []Sink{sink}, nil, PollerConfig{MaxFailures: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		poller.Poll(context.Background())
	}
	assert.Zero(t, sink.cleared, "a success resets the failure count")
	assert.Len(t, sink.published, 1)

	for i := 0; i < 3; i++ {
		poller.Poll(context.Background())
	}
	assert.Equal(t, 1, sink.cleared)
}

func TestPoller_FeedsData(t *testing.T) {
	block := pendingBlock(t, "0xfeed")
	data := NewData(DataConfig{})
	poller, err := NewPoller(&scriptedSource{blocks: []domain.PendingBlock{block}}, []Sink{data}, nil, PollerConfig{})
	require.NoError(t, err)

	poller.Poll(context.Background())

	got, ok := data.PendingBlock(context.Background())
	require.True(t, ok)
	assert.True(t, got.Contains(block.Transactions[0]))
}

func TestNewPoller_Validation(t *testing.T) {
	_, err := NewPoller(nil, []Sink{&recordingSink{}}, nil, PollerConfig{})
	assert.Error(t, err)
	_, err = NewPoller(&scriptedSource{}, nil, nil, PollerConfig{})
	assert.Error(t, err)
}
