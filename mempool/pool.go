// Package mempool implements the consensus core's transaction mempool
// (spec §4.1): admission, deduplication, replace-by-fee, ancestor/
// descendant accounting, fee-rate bucketing, vote-eligibility gating,
// validator-absence handling, and the dynamic minimum fee.
package mempool

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/ledger"
	"github.com/h3tag-core/consensus/logs"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/ratelimit"
	"github.com/h3tag-core/consensus/util/concurrency"
	"github.com/h3tag-core/consensus/wire"
)

var log, _ = logs.Get(logs.SubsystemTags.MPOL)

// HealthChecker reports whether the network collaborator is currently
// healthy enough to accept new transactions (spec §4.1 step 2).
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// networkHealthChecker is the default HealthChecker, built on the network
// collaborator's peer count and sync state.
type networkHealthChecker struct {
	peers          network.Peers
	minPeerCount   int
}

func (h *networkHealthChecker) Healthy(ctx context.Context) bool {
	if h.peers == nil {
		return true
	}
	state, err := h.peers.SyncState(ctx)
	if err != nil || state != network.Synced {
		return false
	}
	count, err := h.peers.PeerCount(ctx)
	return err == nil && count >= h.minPeerCount
}

// Pool is the consensus core's mempool (spec §2 "Mempool (M)").
type Pool struct {
	cfg    *consensusconfig.Config
	view   ledger.View
	health HealthChecker
	sink   audit.Sink

	txMutex *concurrency.KeyedMutex

	mu          sync.RWMutex
	entries     map[string]*wire.MempoolEntry // tx.ID -> entry
	byOutpoint  map[wire.Outpoint]string       // outpoint -> spending tx.ID, conflict detection
	feeBuckets  map[int64]map[string]struct{}  // bucketKey -> set of tx.ID
	bytesTotal  int
	lastValidFee int64

	validators     map[string]*validatorState
	voteTracker    *voteEligibilityTracker
	submitLimiter  *ratelimit.Limiter
}

// New builds an empty Pool.
func New(cfg *consensusconfig.Config, view ledger.View, peers network.Peers, sink audit.Sink) *Pool {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Pool{
		cfg:    cfg,
		view:   view,
		health: &networkHealthChecker{peers: peers, minPeerCount: 0},
		sink:   sink,

		txMutex: concurrency.NewKeyedMutex(),

		entries:    make(map[string]*wire.MempoolEntry),
		byOutpoint: make(map[wire.Outpoint]string),
		feeBuckets: make(map[int64]map[string]struct{}),

		validators:  make(map[string]*validatorState),
		voteTracker: newVoteEligibilityTracker(),
		submitLimiter: ratelimit.New(
			cfg.SubmitMaxPerWindow,
			time.Duration(cfg.SubmitWindowSeconds)*time.Second,
			time.Duration(cfg.SubmitBlockSeconds)*time.Second,
			cfg.SubmitBanThreshold,
		),
	}
}

// AddTransaction admits tx into the pool, applying the admission algorithm
// from spec §4.1 in full: structural checks, size, UTXO validation,
// type-specific validation, fee floor, RBF, and ancestry bounds.
func (p *Pool) AddTransaction(ctx context.Context, tx *wire.Transaction) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.MempoolTimeoutSeconds)*time.Second)
	defer cancel()

	if err := p.txMutex.Lock(timeoutCtx, tx.ID); err != nil {
		return err
	}
	defer p.txMutex.Unlock(tx.ID)

	if !p.health.Healthy(timeoutCtx) {
		return consensuserrors.New(consensuserrors.CodeNetworkUnhealthy, "network unhealthy, rejecting admission")
	}

	actor := voterAddressOf(tx)
	if !p.submitLimiter.Allow("add_transaction", actor, time.Now()) {
		return consensuserrors.New(consensuserrors.CodeRateLimited, "submitter %s exceeded add_transaction rate limit", actor)
	}

	if err := p.validateStructure(tx); err != nil {
		return err
	}

	size := wire.SerializedSize(tx)
	maxSize := p.cfg.MaxTxSize
	if p.view != nil {
		if m, err := p.view.MaxTransactionSize(timeoutCtx); err == nil && m > 0 {
			maxSize = m
		}
	}
	if size > maxSize {
		return consensuserrors.New(consensuserrors.CodeTxTooLarge, "tx %s size %d exceeds max %d", tx.ID, size, maxSize)
	}

	if err := p.validateUTXOs(timeoutCtx, tx); err != nil {
		return err
	}

	if err := p.validateByType(timeoutCtx, tx); err != nil {
		return err
	}

	feeRate := fixedPointRate(tx.Fee, size)
	if err := p.enforceFeeFloor(timeoutCtx, tx, feeRate); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[tx.ID]; exists {
		return consensuserrors.New(consensuserrors.CodeDuplicateTx, "tx %s already in mempool", tx.ID)
	}

	conflicts := p.conflictSetLocked(tx)
	if len(conflicts) > 0 {
		if err := p.applyRBFLocked(tx, feeRate, conflicts); err != nil {
			return err
		}
	}

	ancestors, descendants := p.ancestryLocked(tx)
	if len(ancestors) > p.cfg.MaxAncestors {
		return consensuserrors.New(consensuserrors.CodeAncestryExceeded, "tx %s has %d ancestors, max %d", tx.ID, len(ancestors), p.cfg.MaxAncestors)
	}
	if len(descendants) > p.cfg.MaxDescendants {
		return consensuserrors.New(consensuserrors.CodeAncestryExceeded, "tx %s has %d descendants, max %d", tx.ID, len(descendants), p.cfg.MaxDescendants)
	}

	entry := &wire.MempoolEntry{
		Tx:          tx,
		ReceivedAt:  time.Now(),
		FeeRate:     feeRate,
		Ancestors:   ancestors,
		Descendants: descendants,
	}
	p.insertLocked(entry)

	if tx.Type == wire.TxQuadraticVote {
		p.voteTracker.recordVote(voterAddressOf(tx), time.Now())
	}

	p.sink.LogEvent(audit.Event{
		Type:     "transaction_admitted",
		Severity: audit.SeverityInfo,
		Source:   "mempool",
		Details:  map[string]interface{}{"txid": tx.ID, "fee_rate": feeRate, "size": size},
		Timestamp: time.Now(),
	})
	return nil
}

func (p *Pool) insertLocked(entry *wire.MempoolEntry) {
	p.entries[entry.Tx.ID] = entry
	for _, op := range entry.Tx.Outpoints() {
		p.byOutpoint[op] = entry.Tx.ID
	}
	bucket := bucketKey(entry.FeeRate)
	set, ok := p.feeBuckets[bucket]
	if !ok {
		set = make(map[string]struct{})
		p.feeBuckets[bucket] = set
	}
	set[entry.Tx.ID] = struct{}{}
	p.bytesTotal += wire.SerializedSize(entry.Tx)
	p.mergeSmallBucketsLocked()
}

// RemoveTransactions idempotently evicts txs from the pool, cleaning fee
// buckets and ancestry bookkeeping (spec §4.1).
func (p *Pool) RemoveTransactions(txs []*wire.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		p.removeLocked(tx.ID)
	}
}

func (p *Pool) removeLocked(txID string) {
	entry, ok := p.entries[txID]
	if !ok {
		return
	}
	delete(p.entries, txID)
	for _, op := range entry.Tx.Outpoints() {
		if p.byOutpoint[op] == txID {
			delete(p.byOutpoint, op)
		}
	}
	bucket := bucketKey(entry.FeeRate)
	if set, ok := p.feeBuckets[bucket]; ok {
		delete(set, txID)
		if len(set) == 0 {
			delete(p.feeBuckets, bucket)
		}
	}
	p.bytesTotal -= wire.SerializedSize(entry.Tx)
	if p.bytesTotal < 0 {
		p.bytesTotal = 0
	}
	p.txMutex.Forget(txID)
}

// Size returns the live transaction count, part of the mempool size
// invariant (spec property 5): size == |tx map|.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Bytes returns the total serialized size of every live transaction, the
// other half of the mempool size invariant: bytes == sum(size(tx)).
func (p *Pool) Bytes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytesTotal
}

// Has reports whether txID is currently in the pool.
func (p *Pool) Has(txID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.entries[txID]
	return ok
}

func (p *Pool) conflictSetLocked(tx *wire.Transaction) []*wire.MempoolEntry {
	seen := make(map[string]struct{})
	var conflicts []*wire.MempoolEntry
	for _, op := range tx.Outpoints() {
		if conflictID, ok := p.byOutpoint[op]; ok && conflictID != tx.ID {
			if _, dup := seen[conflictID]; dup {
				continue
			}
			seen[conflictID] = struct{}{}
			if entry, ok := p.entries[conflictID]; ok {
				conflicts = append(conflicts, entry)
			}
		}
	}
	return conflicts
}

func (p *Pool) applyRBFLocked(tx *wire.Transaction, feeRate int64, conflicts []*wire.MempoolEntry) error {
	var conflictRateSum int64
	for _, c := range conflicts {
		conflictRateSum += c.FeeRate
	}
	threshold := int64(float64(conflictRateSum) * p.cfg.RBFIncrement)
	if feeRate <= threshold {
		return consensuserrors.New(consensuserrors.CodeFeeTooLow,
			"rbf: tx %s fee rate %d does not exceed %v x conflict sum %d", tx.ID, feeRate, p.cfg.RBFIncrement, conflictRateSum)
	}
	for _, c := range conflicts {
		p.removeLocked(c.Tx.ID)
	}
	return nil
}

func (p *Pool) ancestryLocked(tx *wire.Transaction) (ancestors, descendants map[string]struct{}) {
	ancestors = make(map[string]struct{})
	for _, op := range tx.Outpoints() {
		if parentID, ok := p.byOutpoint[op]; ok {
			ancestors[parentID] = struct{}{}
			if parent, ok := p.entries[parentID]; ok {
				for a := range parent.Ancestors {
					ancestors[a] = struct{}{}
				}
			}
		}
	}
	descendants = make(map[string]struct{})
	return ancestors, descendants
}

func (p *Pool) mergeSmallBucketsLocked() {
	for key, set := range p.feeBuckets {
		if len(set) >= p.cfg.MinBucketSize || len(set) == 0 {
			continue
		}
		// Merge into the nearest existing neighbour bucket, if any.
		var nearestKey int64
		nearestDist := int64(-1)
		for otherKey := range p.feeBuckets {
			if otherKey == key {
				continue
			}
			dist := otherKey - key
			if dist < 0 {
				dist = -dist
			}
			if nearestDist == -1 || dist < nearestDist {
				nearestDist = dist
				nearestKey = otherKey
			}
		}
		if nearestDist == -1 {
			continue
		}
		for id := range set {
			p.feeBuckets[nearestKey][id] = struct{}{}
		}
		delete(p.feeBuckets, key)
	}
}

func bucketKey(feeRate int64) int64 {
	return wire.FeeRateBucketKey(feeRate)
}

// fixedPointRate computes fee/size as a fixed-point integer scaled by
// 1e5, the bucket-identity encoding spec §9 mandates to avoid float
// tolerance hazards.
func fixedPointRate(fee *big.Int, size int) int64 {
	if size <= 0 {
		return 0
	}
	return (feeAsInt64(fee) * 100000) / int64(size)
}

// feeAsInt64 safely extracts an int64 from a possibly-nil fee amount.
func feeAsInt64(fee *big.Int) int64 {
	if fee == nil {
		return 0
	}
	return fee.Int64()
}

func (p *Pool) validateStructure(tx *wire.Transaction) error {
	if tx.ID == "" {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "transaction id is empty")
	}
	if tx.Version != 1 && tx.Version != 2 {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s version %d not in {1,2}", tx.ID, tx.Version)
	}
	if !tx.IsCoinbase() {
		if len(tx.Inputs) == 0 {
			return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s has no inputs", tx.ID)
		}
	}
	if len(tx.Outputs) == 0 {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s has no outputs", tx.ID)
	}
	if len(tx.Inputs) > p.cfg.MaxInputs {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s exceeds max inputs %d", tx.ID, p.cfg.MaxInputs)
	}
	if len(tx.Outputs) > p.cfg.MaxOutputs {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s exceeds max outputs %d", tx.ID, p.cfg.MaxOutputs)
	}
	if !wire.WitnessStackMatchesInputs(tx) {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s witness stack count mismatches input count", tx.ID)
	}
	now := time.Now()
	drift := tx.Timestamp.Unix() - now.Unix()
	if drift < 0 {
		drift = -drift
	}
	if drift > p.cfg.MaxTimeDriftSeconds {
		return consensuserrors.New(consensuserrors.CodeTimestampOutOfRange, "tx %s timestamp drift %ds exceeds max %ds", tx.ID, drift, p.cfg.MaxTimeDriftSeconds)
	}
	for _, in := range tx.Inputs {
		if !recognisedScript(in.Script) {
			return consensuserrors.New(consensuserrors.CodeStructureInvalid, "tx %s input script not a recognised type", tx.ID)
		}
	}
	return nil
}

func (p *Pool) validateUTXOs(ctx context.Context, tx *wire.Transaction) error {
	if tx.IsCoinbase() || p.view == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, in := range tx.Inputs {
		op := wire.Outpoint{TxID: in.PrevTxID, Index: in.OutputIndex}
		utxo, err := p.view.UTXOByOutpoint(ctx, op)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if utxo == nil {
			return consensuserrors.New(consensuserrors.CodeSpentUTXO, "tx %s spends unknown outpoint", tx.ID)
		}
		spent, err := p.view.IsSpent(ctx, op)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if spent {
			return consensuserrors.New(consensuserrors.CodeSpentUTXO, "tx %s spends an already-spent outpoint", tx.ID)
		}
		if conflictID, ok := p.byOutpoint[op]; ok && conflictID != tx.ID {
			// A conflicting in-mempool spend is not itself an error here;
			// RBF resolution (step 8) decides whether it is permitted.
			continue
		}
	}
	return nil
}

func (p *Pool) enforceFeeFloor(ctx context.Context, tx *wire.Transaction, feeRate int64) error {
	size := wire.SerializedSize(tx)
	minRate := int64(p.cfg.MinFeeRate * 100000)
	if feeAsInt64(tx.Fee)*100000 < minRate*int64(size) {
		return consensuserrors.New(consensuserrors.CodeFeeTooLow, "tx %s fee below floor", tx.ID)
	}
	if p.Size() > p.cfg.HighCongestionThreshold {
		dynMin := p.DynamicMinFee()
		if feeRate < dynMin {
			return consensuserrors.New(consensuserrors.CodeFeeTooLow, "tx %s fee rate %d below dynamic minimum %d", tx.ID, feeRate, dynMin)
		}
	}
	return nil
}

func recognisedScript(script []byte) bool {
	// A script is recognised if it is non-empty; detailed opcode
	// classification lives in classify.go.
	return len(script) > 0
}
