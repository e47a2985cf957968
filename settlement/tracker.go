// Package settlement reconciles a submitted transfer against chain
// state. One Tracker instance watches one transaction: it polls for the
// receipt on a fixed interval, annotates slow confirmations, gives up
// after a hard horizon and guarantees that nothing fires after detach.
package settlement

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lava-payment/lavapay-go/logger"
	"github.com/lava-payment/lavapay-go/metrics"
	"github.com/lava-payment/lavapay-go/types"
)

// ChainReader is the read-only chain capability the tracker consumes.
// A nil receipt with a nil error means the transaction is not mined yet.
type ChainReader interface {
	Receipt(ctx context.Context, chainID int64, txID string) (*types.Receipt, error)
	LatestBlock(ctx context.Context, chainID int64) (uint64, error)
}

// Default horizons, matching the reference client: poll every 3s, warn
// after 30s, stop watching after 5 minutes.
const (
	DefaultPollInterval   = 3 * time.Second
	DefaultWarningHorizon = 30 * time.Second
	DefaultGiveupHorizon  = 5 * time.Minute
)

type Option func(*Tracker)

// WithIntervals overrides the poll interval and the warning/giveup
// horizons. Zero values keep the defaults.
func WithIntervals(poll, warning, giveup time.Duration) Option {
	return func(t *Tracker) {
		if poll > 0 {
			t.pollInterval = poll
		}
		if warning > 0 {
			t.warningHorizon = warning
		}
		if giveup > 0 {
			t.giveupHorizon = giveup
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(t *Tracker) {
		if r != nil {
			t.rec = r
		}
	}
}

// Tracker is the per-transaction settlement state machine.
//
// States: Pending -> {Confirmed, Failed}; VerifyingTimeout is a
// non-terminal annotation while Pending; GiveUp stops watching without
// resolving. Terminal transitions and Detach both stop polling; an
// in-flight read finishing after Detach is discarded without touching
// the record.
type Tracker struct {
	reader ChainReader
	log    logger.Logger
	rec    metrics.Recorder

	pollInterval   time.Duration
	warningHorizon time.Duration
	giveupHorizon  time.Duration
	now            func() time.Time

	mu     sync.Mutex
	record types.SettlementRecord

	updates  chan types.SettlementRecord
	done     chan struct{}
	attachFn sync.Once
	detachFn sync.Once
}

// NewTracker creates a tracker for a submitted transaction. Polling
// starts on Attach.
func NewTracker(reader ChainReader, txID string, chainID int64, opts ...Option) *Tracker {
	t := &Tracker{
		reader:         reader,
		log:            logger.NoopLogger{},
		rec:            metrics.NoopRecorder{},
		pollInterval:   DefaultPollInterval,
		warningHorizon: DefaultWarningHorizon,
		giveupHorizon:  DefaultGiveupHorizon,
		now:            time.Now,
		updates:        make(chan types.SettlementRecord, 16),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.record = types.SettlementRecord{
		TxID:         txID,
		ChainID:      chainID,
		WatchedSince: t.now().UnixMilli(),
		Status:       types.StatusPending,
	}
	return t
}

// Attach starts the poll loop (once) and returns the update stream.
// The stream carries a snapshot after every state change; it is never
// closed, so consumers stop on a terminal status or on their own
// context. The loop also stops when ctx is cancelled.
func (t *Tracker) Attach(ctx context.Context) <-chan types.SettlementRecord {
	t.attachFn.Do(func() {
		go t.run(ctx)
	})
	return t.updates
}

// Detach stops the tracker immediately and deterministically: no poll
// fires afterwards and no state mutation is applied, including from
// reads already in flight. Idempotent.
func (t *Tracker) Detach() {
	t.detachFn.Do(func() {
		close(t.done)
	})
}

// Snapshot returns a copy of the current settlement record.
func (t *Tracker) Snapshot() types.SettlementRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

// RefreshConfirmations re-reads the latest block and updates the
// confirmation depth. Intended for consumers that stay attached after a
// Confirmed transition, since autonomous polling stops on terminal
// states.
func (t *Tracker) RefreshConfirmations(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	chainID, blockNumber := t.record.ChainID, t.record.BlockNumber
	t.mu.Unlock()

	if blockNumber == 0 {
		return 0, fmt.Errorf("no receipt recorded for %s yet", t.record.TxID)
	}
	latest, err := t.reader.LatestBlock(ctx, chainID)
	if err != nil {
		return 0, err
	}
	var confirmations uint64
	if latest >= blockNumber {
		confirmations = latest - blockNumber
	}
	t.mutate(func(r *types.SettlementRecord) {
		r.Confirmations = confirmations
	})
	return confirmations, nil
}

func (t *Tracker) run(ctx context.Context) {
	// First poll is immediate; each subsequent tick is scheduled only
	// after the previous tick's reads resolve, so polls never overlap.
	timer := time.NewTimer(0)
	defer timer.Stop()

	start := t.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-timer.C:
		}
		if t.detached() {
			return
		}
		if stop := t.poll(ctx, t.now().Sub(start)); stop {
			return
		}
		timer.Reset(t.pollInterval)
	}
}

// poll runs one tick and reports whether polling should stop.
func (t *Tracker) poll(ctx context.Context, elapsed time.Duration) bool {
	receipt, err := t.reader.Receipt(ctx, t.record.ChainID, t.record.TxID)
	if t.detached() {
		return true
	}
	if err != nil {
		// RPC latency or a flaky endpoint, not a transaction failure:
		// stay Pending and let the horizons decide.
		t.log.Warn("receipt query failed", map[string]any{
			"txId":  t.record.TxID,
			"error": err.Error(),
		})
		receipt = nil
	}

	nowMillis := t.now().UnixMilli()

	if receipt == nil {
		if elapsed >= t.giveupHorizon {
			t.mutate(func(r *types.SettlementRecord) {
				r.LastPolledAt = nowMillis
				r.Status = types.StatusGiveUp
			})
			t.log.Warn("giving up on settlement watch", map[string]any{
				"txId":    t.record.TxID,
				"elapsed": elapsed.String(),
			})
			t.rec.IncCounter("settlement_giveup", t.labels())
			return true
		}
		warn := elapsed >= t.warningHorizon
		t.mutate(func(r *types.SettlementRecord) {
			r.LastPolledAt = nowMillis
			if warn {
				r.VerifyingTimeout = true
			}
		})
		return false
	}

	latest, latestErr := t.reader.LatestBlock(ctx, t.record.ChainID)
	if t.detached() {
		return true
	}
	var confirmations uint64
	if latestErr == nil && latest >= receipt.BlockNumber {
		confirmations = latest - receipt.BlockNumber
	}

	confirmed := receipt.Succeeded()
	t.mutate(func(r *types.SettlementRecord) {
		r.LastPolledAt = nowMillis
		r.BlockNumber = receipt.BlockNumber
		r.GasUsed = receipt.GasUsed
		r.Confirmations = confirmations
		r.VerifyingTimeout = false
		if confirmed {
			r.Status = types.StatusConfirmed
		} else {
			r.Status = types.StatusFailed
		}
	})

	if confirmed {
		t.rec.IncCounter("settlement_confirmed", t.labels())
	} else {
		t.rec.IncCounter("settlement_failed", t.labels())
	}
	t.log.Info("settlement resolved", map[string]any{
		"txId":          t.record.TxID,
		"block":         receipt.BlockNumber,
		"confirmations": confirmations,
		"confirmed":     confirmed,
	})
	return true
}

// mutate applies fn to the record and publishes a snapshot, unless the
// tracker has been detached.
func (t *Tracker) mutate(fn func(*types.SettlementRecord)) {
	if t.detached() {
		return
	}
	t.mu.Lock()
	fn(&t.record)
	snapshot := t.record
	t.mu.Unlock()

	select {
	case t.updates <- snapshot:
	default:
		// A slow consumer must not stall polling; Snapshot always has
		// the latest state.
	}
}

func (t *Tracker) detached() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Tracker) labels() map[string]string {
	return map[string]string{"network": strconv.FormatInt(t.record.ChainID, 10)}
}
