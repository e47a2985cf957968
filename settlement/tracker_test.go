package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lava-payment/lavapay-go/types"
)

const (
	testTxID    = "0x" + "ab" + "cdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	testChainID = int64(9745)
)

// fakeReader serves a scripted sequence of receipt results; the last
// entry repeats once the script is exhausted.
type fakeReader struct {
	mu       sync.Mutex
	receipts []*types.Receipt
	errs     []error
	latest   uint64

	calls int

	// When set, Receipt blocks until released.
	started chan struct{}
	release chan struct{}
}

func (f *fakeReader) Receipt(ctx context.Context, chainID int64, txID string) (*types.Receipt, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.receipts) == 0 {
		return nil, nil
	}
	if i >= len(f.receipts) {
		i = len(f.receipts) - 1
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.receipts[i], err
}

func (f *fakeReader) LatestBlock(ctx context.Context, chainID int64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastIntervals() Option {
	return WithIntervals(2*time.Millisecond, 30*time.Second, 5*time.Minute)
}

func successReceipt(block uint64) *types.Receipt {
	return &types.Receipt{
		TxID:        testTxID,
		Status:      types.TxStatusSuccess,
		BlockNumber: block,
		GasUsed:     60_000,
	}
}

func waitForStatus(t *testing.T, updates <-chan types.SettlementRecord, status types.SettlementStatus) types.SettlementRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case rec := <-updates:
			if rec.Status == status {
				return rec
			}
		case <-deadline:
			t.Fatalf("no %s update within deadline", status)
		}
	}
}

func TestTrackerConfirms(t *testing.T) {
	reader := &fakeReader{
		receipts: []*types.Receipt{nil, nil, nil, successReceipt(100)},
		latest:   105,
	}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())
	rec := waitForStatus(t, updates, types.StatusConfirmed)

	assert.Equal(t, testTxID, rec.TxID)
	assert.Equal(t, uint64(100), rec.BlockNumber)
	assert.Equal(t, uint64(60_000), rec.GasUsed)
	assert.Equal(t, uint64(5), rec.Confirmations)
	assert.False(t, rec.VerifyingTimeout)

	// Polling stops at a terminal status.
	settled := reader.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, reader.callCount())
	assert.Equal(t, types.StatusConfirmed, tracker.Snapshot().Status)
}

func TestTrackerPendingUpdatesBeforeReceipt(t *testing.T) {
	reader := &fakeReader{
		receipts: []*types.Receipt{nil, nil, successReceipt(50)},
		latest:   50,
	}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())

	rec := <-updates
	assert.Equal(t, types.StatusPending, rec.Status)
	assert.NotZero(t, rec.LastPolledAt)
	assert.Zero(t, rec.BlockNumber)

	waitForStatus(t, updates, types.StatusConfirmed)
}

func TestTrackerFailedReceipt(t *testing.T) {
	reverted := &types.Receipt{TxID: testTxID, Status: 0, BlockNumber: 70, GasUsed: 21_000}
	reader := &fakeReader{receipts: []*types.Receipt{reverted}, latest: 71}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())
	rec := waitForStatus(t, updates, types.StatusFailed)
	assert.Equal(t, uint64(70), rec.BlockNumber)
	assert.Equal(t, uint64(1), rec.Confirmations)

	settled := reader.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, reader.callCount())
}

func TestTrackerWarningAnnotation(t *testing.T) {
	reader := &fakeReader{}
	tracker := NewTracker(reader, testTxID, testChainID,
		WithIntervals(2*time.Millisecond, 10*time.Millisecond, time.Minute))
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		var rec types.SettlementRecord
		select {
		case rec = <-updates:
		case <-deadline:
			t.Fatal("warning annotation never appeared")
		}
		if rec.VerifyingTimeout {
			// Still pending: the warning is an annotation, not a state.
			assert.Equal(t, types.StatusPending, rec.Status)
			break
		}
	}

	// Polling continues past the warning horizon.
	before := reader.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Greater(t, reader.callCount(), before)
}

func TestTrackerGiveUp(t *testing.T) {
	reader := &fakeReader{}
	tracker := NewTracker(reader, testTxID, testChainID,
		WithIntervals(2*time.Millisecond, 5*time.Millisecond, 15*time.Millisecond))
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())
	waitForStatus(t, updates, types.StatusGiveUp)

	settled := reader.callCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, reader.callCount())
	assert.Equal(t, types.StatusGiveUp, tracker.Snapshot().Status)
}

func TestTrackerReaderErrorsStayPending(t *testing.T) {
	reader := &fakeReader{
		receipts: []*types.Receipt{nil, successReceipt(10)},
		errs:     []error{errors.New("rpc timeout"), nil},
		latest:   12,
	}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())
	rec := <-updates
	assert.Equal(t, types.StatusPending, rec.Status)

	rec = waitForStatus(t, updates, types.StatusConfirmed)
	assert.Equal(t, uint64(2), rec.Confirmations)
}

func TestTrackerDetachDiscardsInFlightRead(t *testing.T) {
	reader := &fakeReader{
		receipts: []*types.Receipt{successReceipt(10)},
		latest:   12,
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())

	tracker.Attach(context.Background())

	// Wait for a poll to be in flight, detach, then let the read finish.
	<-reader.started
	tracker.Detach()
	close(reader.release)

	time.Sleep(20 * time.Millisecond)
	snap := tracker.Snapshot()
	assert.Equal(t, types.StatusPending, snap.Status)
	assert.Zero(t, snap.LastPolledAt)
	assert.Zero(t, snap.BlockNumber)

	// Idempotent.
	tracker.Detach()
}

func TestTrackerRefreshConfirmations(t *testing.T) {
	reader := &fakeReader{
		receipts: []*types.Receipt{successReceipt(100)},
		latest:   101,
	}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	updates := tracker.Attach(context.Background())
	rec := waitForStatus(t, updates, types.StatusConfirmed)
	assert.Equal(t, uint64(1), rec.Confirmations)

	// The chain advances after the terminal transition; autonomous
	// polling has stopped, so depth is refreshed on demand.
	reader.mu.Lock()
	reader.latest = 110
	reader.mu.Unlock()

	confirmations, err := tracker.RefreshConfirmations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), confirmations)
	assert.Equal(t, uint64(10), tracker.Snapshot().Confirmations)
}

func TestTrackerRefreshWithoutReceipt(t *testing.T) {
	reader := &fakeReader{}
	tracker := NewTracker(reader, testTxID, testChainID, fastIntervals())
	defer tracker.Detach()

	_, err := tracker.RefreshConfirmations(context.Background())
	require.Error(t, err)
}
