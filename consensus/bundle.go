// Package consensus wires the Ledger View (L), Mempool (M), Proof-of-
// Work engine (P) and Direct Voting Engine (V) into the single Bundle
// the embedder talks to (spec §2, §9). Grounded on the teacher's
// top-level server wiring (daglabs-btcd's server.go assembling its
// blockManager/mempool/miner/rpcServer from shared config and a
// database handle), generalised to this module's L/M/P/V collaborator
// shape and its weak-handle ownership model.
package consensus

import (
	"context"
	"sync"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/ledger"
	"github.com/h3tag-core/consensus/mempool"
	"github.com/h3tag-core/consensus/mining"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/voting"
	"github.com/h3tag-core/consensus/wire"
)

// Bundle owns M outright and hands P only a non-owning weak handle into
// it (spec §9); V holds no reference to M. L is supplied by the embedder
// and referenced read-only by every collaborator, never owned here.
type Bundle struct {
	cfg *consensusconfig.Config

	mempool *mempool.Pool
	mining  *mining.Engine
	voting  *voting.Engine
	handle  *mempoolHandle

	disposeOnce sync.Once
}

// New wires the Bundle from its external collaborators: a read-only
// ledger view, a peer/network handle, an optional persistence store, and
// an audit sink. It performs no I/O; call Start to recover state and
// begin background work.
func New(cfg *consensusconfig.Config, view ledger.View, peers network.Peers, store ledger.Store, sink audit.Sink) *Bundle {
	if sink == nil {
		sink = audit.NopSink{}
	}

	pool := mempool.New(cfg, view, peers, sink)
	handle := newMempoolHandle(pool)

	return &Bundle{
		cfg:     cfg,
		mempool: pool,
		mining:  mining.New(cfg, view, handle, sink, handle),
		voting:  voting.New(cfg, view, peers, store, sink),
		handle:  handle,
	}
}

// Start recovers the voting engine's latest period and begins mining
// (spec §4.3 initialize, §4.2 "control surface").
func (b *Bundle) Start(ctx context.Context) error {
	if err := b.voting.Initialize(ctx); err != nil {
		return err
	}
	b.mining.StartMining()
	return nil
}

// StopMining halts the PoW worker pool without tearing down voting state
// or releasing storage handles (spec §4.2's distinct stop_mining,
// as opposed to the full control-surface Dispose).
func (b *Bundle) StopMining() { b.mining.StopMining() }

// InterruptMining cancels any in-flight nonce search (e.g. a new
// template became available).
func (b *Bundle) InterruptMining() { b.mining.InterruptMining() }

// ResumeMining restarts the worker pool after a StopMining/Interrupt.
func (b *Bundle) ResumeMining() { b.mining.StartMining() }

// SubmitBlock validates and accepts a mined block, then evicts its
// transactions from the mempool (spec §4.2 submit_block).
func (b *Bundle) SubmitBlock(ctx context.Context, block *wire.Block) (bool, error) {
	accepted, err := b.mining.SubmitBlock(ctx, block)
	if err != nil {
		return false, err
	}
	b.mempool.RemoveTransactions(block.Transactions)
	return accepted, nil
}

// SubmitVote admits a quadratic-weighted ballot (spec §4.3 submit_vote).
func (b *Bundle) SubmitVote(ctx context.Context, vote *wire.Vote) error {
	return b.voting.SubmitVote(ctx, vote)
}

// SubmitTransaction admits a transaction into the mempool (spec §4.1).
func (b *Bundle) SubmitTransaction(ctx context.Context, tx *wire.Transaction) error {
	return b.mempool.AddTransaction(ctx, tx)
}

// MineBlock runs the nonce search for block (spec §4.2 mine_block),
// normally called with the template GetBlockTemplate just returned.
func (b *Bundle) MineBlock(ctx context.Context, block *wire.Block) (*wire.Block, error) {
	return b.mining.MineBlock(ctx, block)
}

// GetBlockTemplate assembles a block template for minerAddress (spec
// §4.2 get_block_template).
func (b *Bundle) GetBlockTemplate(ctx context.Context, minerAddress string) (*mining.Template, error) {
	return b.mining.GetBlockTemplate(ctx, minerAddress)
}

// GetMiningInfo reports the PoW engine's operational state, including
// the mempool summary it pulls from (spec §4.2 get_mining_info).
func (b *Bundle) GetMiningInfo(ctx context.Context) mining.MiningInfo {
	return b.mining.GetMiningInfo(ctx, b.mempool)
}

// HandleChainFork resolves a chain fork by quadratic vote tally (spec
// §4.3 handle_chain_fork).
func (b *Bundle) HandleChainFork(ctx context.Context, oldChainID, newChainID string, forkHeight uint64, validators []string) (string, error) {
	return b.voting.HandleChainFork(ctx, oldChainID, newChainID, forkHeight, validators)
}

// ValidateVotes checks a vote-carrying block against the active voting
// period (spec §4.2 "Validation of vote-carrying blocks" / §4.3
// validate_votes), in addition to the PoW-only checks ValidateBlock
// already ran as part of SubmitBlock.
func (b *Bundle) ValidateVotes(block *wire.Block) (bool, error) {
	return b.voting.ValidateVotes(block)
}

// GetVotingSchedule reports the active/next voting period window (spec
// §4.3 get_voting_schedule).
func (b *Bundle) GetVotingSchedule(ctx context.Context) voting.VotingSchedule {
	return b.voting.GetVotingSchedule(ctx)
}

// GetParticipationRate reports the current period's validator
// participation fraction (spec §4.3 get_participation_rate).
func (b *Bundle) GetParticipationRate(ctx context.Context) float64 {
	return b.voting.GetParticipationRate(ctx)
}

// HealthCheck reports the voting engine's health (spec §6 health_check);
// the mining engine's state is not consulted.
func (b *Bundle) HealthCheck(ctx context.Context) (bool, string) {
	if ok, reason := b.voting.HealthCheck(ctx); !ok {
		return false, reason
	}
	return true, "ok"
}

// Dispose idempotently stops mining and the voting period checker, drops
// the PoW engine's solution cache and in-flight table, and expires the
// weak mempool handle P holds so any further call through it fails with
// InvariantViolated (spec §9, §4.4 dispose). The store passed to New is
// not closed.
func (b *Bundle) Dispose() {
	b.disposeOnce.Do(func() {
		b.mining.Dispose()
		b.voting.Dispose()
		b.handle.expire()
	})
}
