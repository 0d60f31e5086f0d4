// Package voting implements the consensus core's Direct Voting Engine
// (spec §4.3): voting-period lifecycle, quadratic-weighted vote
// admission, per-block vote validation, and chain-fork resolution by
// quadratic tally. Grounded on the teacher's long-lived, config-and-
// view-holding engine shape (mirroring mining.Engine), with the
// vote_mutex/period_mutex nesting order and periodic-checker goroutine
// the spec's concurrency model requires.
package voting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/ledger"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/retry"
	"github.com/h3tag-core/consensus/util/breaker"
	"github.com/h3tag-core/consensus/wire"
)

// Engine is the consensus core's quadratic-voting and fork-resolution
// engine (spec §2 "V").
type Engine struct {
	cfg   *consensusconfig.Config
	view  ledger.View
	peers network.Peers
	store ledger.Store // optional; nil disables persistence
	sink  audit.Sink

	// voteMu (outer) then periodMu (inner) is the fixed acquisition order
	// spec §5 requires for any write to currentPeriod or its votes map.
	voteMu   sync.RWMutex
	periodMu sync.RWMutex

	currentPeriod *wire.VotingPeriod
	history       map[uint64]*wire.VotingPeriod

	networkBreaker      *breaker.Breaker
	networkFailureCount int

	participationRateMu sync.RWMutex
	participationRate   float64

	nextVotingHeight uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds an Engine. store may be nil, in which case periods are kept
// in memory only (spec §6's storage interface is an external
// collaborator; an embedder that hasn't wired one yet still gets a
// functioning engine).
func New(cfg *consensusconfig.Config, view ledger.View, peers network.Peers, store ledger.Store, sink audit.Sink) *Engine {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Engine{
		cfg:     cfg,
		view:    view,
		peers:   peers,
		store:   store,
		sink:    sink,
		history: make(map[uint64]*wire.VotingPeriod),
		networkBreaker: breaker.New(
			cfg.NetworkBreakerFailureThreshold,
			5*time.Minute,
			time.Duration(cfg.NetworkBreakerCooldownSeconds)*time.Second,
		),
	}
}

// Initialize recovers the latest persisted period (if a store is wired),
// computes next_voting_height, starts (or resumes) the current period,
// and launches the periodic period-transition checker (spec §4.3
// initialize).
func (e *Engine) Initialize(ctx context.Context) error {
	height, err := e.view.CurrentHeight(ctx)
	if err != nil {
		return err
	}
	e.nextVotingHeight = ceilToMultiple(height, e.cfg.VotingPeriodBlocks)

	recovered, err := e.recoverLatestPeriod(ctx)
	if err != nil {
		return err
	}

	e.voteMu.Lock()
	e.periodMu.Lock()
	if recovered != nil && recovered.Status == wire.PeriodActive {
		e.currentPeriod = recovered
	} else {
		e.currentPeriod = e.newPeriodLocked(wire.PeriodNodeSelection, height)
	}
	e.periodMu.Unlock()
	e.voteMu.Unlock()

	e.stopCh = make(chan struct{})
	e.wg.Add(1)
	go e.periodChecker()
	return nil
}

// recoverLatestPeriod loads the most recently persisted period from the
// store, or returns nil if no store is wired or none exists yet.
func (e *Engine) recoverLatestPeriod(ctx context.Context) (*wire.VotingPeriod, error) {
	if e.store == nil {
		return nil, nil
	}

	var latest *wire.VotingPeriod
	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		it, err := e.store.Iterator(ctx, []byte(ledger.NSVotingPeriod), []byte(ledger.NSVotingPeriod+"\xff"))
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		defer it.Close()

		latest = nil
		for it.Next() {
			var period wire.VotingPeriod
			if err := ledger.Decode(it.Value(), &period); err != nil {
				continue
			}
			if latest == nil || period.PeriodID > latest.PeriodID {
				latest = &period
			}
		}
		if err := it.Error(); err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		return nil
	})
	return latest, err
}

// newPeriodLocked creates a fresh active period starting at height;
// callers must hold voteMu and periodMu.
func (e *Engine) newPeriodLocked(periodType wire.VotingPeriodType, height uint64) *wire.VotingPeriod {
	periodID := uint64(1)
	if e.currentPeriod != nil {
		periodID = e.currentPeriod.PeriodID + 1
	}
	now := time.Now()
	return &wire.VotingPeriod{
		PeriodID:   periodID,
		Type:       periodType,
		StartBlock: height,
		EndBlock:   height + e.cfg.VotingPeriodBlocks,
		StartTime:  now,
		EndTime:    now.Add(time.Duration(e.cfg.VotingPeriodMillis) * time.Millisecond),
		Status:     wire.PeriodActive,
		Votes:      make(map[string]*wire.Vote),
		CreatedAt:  now,
	}
}

// persistPeriodLocked writes period to the store, if wired. Callers must
// hold periodMu.
func (e *Engine) persistPeriodLocked(ctx context.Context, period *wire.VotingPeriod) error {
	if e.store == nil {
		return nil
	}
	encoded, err := ledger.Encode(period)
	if err != nil {
		return err
	}
	return retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		if err := e.store.Put(ctx, ledger.VotingPeriodKey(period.PeriodID), encoded); err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		return nil
	})
}

// updateVotingState is the spec §4.3 "atomic state update" transaction
// pattern: snapshot the current period, let mutate decide the new period
// (or abort by returning false), and only on success overwrite in-memory
// state and persist. Failures leave currentPeriod untouched. Callers
// must already hold voteMu; updateVotingState itself acquires periodMu.
func (e *Engine) updateVotingState(ctx context.Context, mutate func(current *wire.VotingPeriod) (*wire.VotingPeriod, bool)) (*wire.VotingPeriod, bool, error) {
	e.periodMu.Lock()
	defer e.periodMu.Unlock()

	next, ok := mutate(e.currentPeriod)
	if !ok {
		return e.currentPeriod, false, nil
	}
	if err := e.persistPeriodLocked(ctx, next); err != nil {
		return e.currentPeriod, false, err
	}
	e.currentPeriod = next
	e.history[next.PeriodID] = next
	return next, true, nil
}

// periodChecker runs the periodic transition check (spec §4.3 "state
// machine"), firing every PeriodCheckIntervalMillis until Dispose.
func (e *Engine) periodChecker() {
	defer e.wg.Done()
	interval := time.Duration(e.cfg.PeriodCheckIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.checkPeriodTransition(context.Background())
		case <-e.stopCh:
			return
		}
	}
}

// checkPeriodTransition closes the current period if it has ended and
// opens the next one, atomically (spec §4.3 S6).
func (e *Engine) checkPeriodTransition(ctx context.Context) {
	e.voteMu.Lock()
	defer e.voteMu.Unlock()

	e.periodMu.RLock()
	current := e.currentPeriod
	e.periodMu.RUnlock()
	if current == nil || current.Status != wire.PeriodActive || time.Now().Before(current.EndTime) {
		return
	}

	height, err := e.view.CurrentHeight(ctx)
	if err != nil {
		return
	}

	_, _, _ = e.updateVotingState(ctx, func(_ *wire.VotingPeriod) (*wire.VotingPeriod, bool) {
		completed := *current
		completed.Status = wire.PeriodCompleted
		e.persistPeriodLocked(ctx, &completed)
		e.history[completed.PeriodID] = &completed

		next := e.newPeriodLocked(wire.PeriodNodeSelection, height)
		return next, true
	})

	e.sink.LogEvent(audit.Event{
		Type:      "period_transitioned",
		Severity:  audit.SeverityInfo,
		Source:    "voting",
		Details:   map[string]interface{}{"closed_period": current.PeriodID, "event_id": uuid.NewString()},
		Timestamp: time.Now(),
	})
}

// Dispose idempotently stops the period checker and releases state
// (spec §9 control surface).
func (e *Engine) Dispose() {
	e.voteMu.Lock()
	defer e.voteMu.Unlock()
	if e.stopCh != nil {
		close(e.stopCh)
		e.wg.Wait()
		e.stopCh = nil
	}
}

func ceilToMultiple(value, multiple uint64) uint64 {
	if multiple == 0 {
		return value
	}
	if value%multiple == 0 {
		return value
	}
	return (value/multiple + 1) * multiple
}
