// Package ledger declares the consensus core's read-only chain-state view
// and its key/value persistence interface (spec §6). Both are external
// collaborators: the core consumes them, never implements the database
// file format or the chain-selection logic that populates them.
package ledger

import (
	"context"
	"math/big"

	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

// View is the read-only snapshot interface the PoW and voting engines
// pull chain state from (spec §2 "Ledger View (L)").
type View interface {
	// CurrentHeight returns the tip height of the canonical chain.
	CurrentHeight(ctx context.Context) (uint64, error)
	// BlockByHeight returns the block at height, or nil if none exists.
	BlockByHeight(ctx context.Context, height uint64) (*wire.Block, error)
	// BlockByHash returns the block with the given hash, or nil.
	BlockByHash(ctx context.Context, h hash.Hash) (*wire.Block, error)
	// UTXOByOutpoint returns the UTXO at (txid, index), or nil if it does
	// not exist.
	UTXOByOutpoint(ctx context.Context, op wire.Outpoint) (*wire.UTXO, error)
	// IsSpent reports whether the UTXO at op has been marked spent by a
	// committed block.
	IsSpent(ctx context.Context, op wire.Outpoint) (bool, error)
	// TransactionExists reports whether a transaction with the given hash
	// has been committed to the chain.
	TransactionExists(ctx context.Context, h hash.Hash) (bool, error)
	// ValidatorSet returns the active validator set at the current tip.
	ValidatorSet(ctx context.Context) ([]*wire.Validator, error)
	// Validator returns a single validator record, or nil if unknown.
	Validator(ctx context.Context, address string) (*wire.Validator, error)
	// RewardSchedule returns the block subsidy at height, before fees.
	RewardSchedule(ctx context.Context, height uint64) (*big.Int, error)
	// MaxTransactionSize returns the chain's current transaction size
	// policy (may be tuned by governance over time; spec §3).
	MaxTransactionSize(ctx context.Context) (int, error)
	// MedianTimePast returns the median timestamp of the last 11 blocks
	// ending at height, used for the timestamp invariant (spec §3).
	MedianTimePast(ctx context.Context, height uint64) (int64, error)
	// AccountAge returns how many blocks ago address's earliest known
	// activity was recorded, used by the vote-eligibility gate.
	AccountAge(ctx context.Context, address string) (uint64, error)
	// PoWContribution returns address's cumulative recognised PoW
	// contribution score, used by the vote-eligibility gate and
	// POW_REWARD admission.
	PoWContribution(ctx context.Context, address string) (float64, error)
}
