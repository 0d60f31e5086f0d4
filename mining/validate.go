package mining

import (
	"context"
	"math"
	"time"

	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"

	"github.com/h3tag-core/consensus/consensuserrors"
)

// ValidateBlock runs the full seven-step block validation order from
// spec §4.2, timeout-bounded by ValidateBlockTimeoutSeconds, grounded on
// the teacher's checkBlockSanity/checkBlockHeaderContext/
// checkConnectToPastUTXO sequence (blockdag/validate.go), generalised
// from DAG blue-score context checks to this module's linear-chain PoW
// and quorum checks.
func (e *Engine) ValidateBlock(ctx context.Context, block *wire.Block) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.ValidateBlockTimeoutSeconds)*time.Second)
	defer cancel()

	if err := e.validateStructure(block); err != nil {
		return err
	}
	if err := e.validateHash(block); err != nil {
		return err
	}
	if err := e.validateDifficultySchedule(timeoutCtx, block); err != nil {
		return err
	}
	if err := e.validateCoinbase(timeoutCtx, block); err != nil {
		return err
	}
	if err := e.validateTransactions(timeoutCtx, block); err != nil {
		return err
	}
	if err := e.validateMerkleRoot(block); err != nil {
		return err
	}
	if err := e.validateQuorum(timeoutCtx, block); err != nil {
		return err
	}
	return nil
}

// 1. Structural.
func (e *Engine) validateStructure(block *wire.Block) error {
	if len(block.Transactions) == 0 {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "block has no transactions")
	}
	size := blockSize(block)
	if size > e.cfg.MaxBlockSize {
		return consensuserrors.New(consensuserrors.CodeStructureInvalid, "block size %d exceeds max %d", size, e.cfg.MaxBlockSize)
	}
	if block.Header.Version < uint32(e.cfg.MinVersion) || block.Header.Version > uint32(e.cfg.MaxVersion) {
		return consensuserrors.New(consensuserrors.CodeHeaderInvalid, "block version %d out of range [%d,%d]", block.Header.Version, e.cfg.MinVersion, e.cfg.MaxVersion)
	}
	return nil
}

// blockSize computes header + sum(tx sizes) + metadata, identically
// between producer and validator (spec §4.2 step 1).
func blockSize(block *wire.Block) int {
	size := len(wire.CanonicalHeaderBytes(block.Header))
	for _, tx := range block.Transactions {
		size += wire.SerializedSize(tx)
	}
	size += len(block.Metadata.Locator) * hash.Size
	return size
}

// 2. Hash.
func (e *Engine) validateHash(block *wire.Block) error {
	computed := wire.ComputeHash(block.Header)
	if computed != block.Hash {
		return consensuserrors.New(consensuserrors.CodeHeaderInvalid, "block hash mismatch: computed %s, claimed %s", computed, block.Hash)
	}
	target := TargetFromDifficulty(block.Header.Difficulty)
	if computed.Cmp(target) > 0 {
		return consensuserrors.New(consensuserrors.CodeTargetNotMet, "block hash %s exceeds target %s", computed, target)
	}
	return nil
}

// 3. Difficulty schedule.
func (e *Engine) validateDifficultySchedule(ctx context.Context, block *wire.Block) error {
	previous, err := e.view.BlockByHeight(ctx, block.Header.Height-1)
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	expected, err := e.CalculateNextDifficulty(ctx, previous)
	if err != nil {
		return err
	}
	if block.Header.Difficulty != expected {
		return consensuserrors.New(consensuserrors.CodeDifficultyOutOfRange, "block difficulty %v does not match expected %v", block.Header.Difficulty, expected)
	}
	return nil
}

// 4. Coinbase.
func (e *Engine) validateCoinbase(ctx context.Context, block *wire.Block) error {
	if !block.Transactions[0].IsCoinbase() {
		return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid, "first transaction is not a coinbase")
	}
	for i, tx := range block.Transactions[1:] {
		if tx.IsCoinbase() {
			return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid, "tx %d: coinbase in non-first position", i+1)
		}
	}
	coinbase := block.Transactions[0]
	reward, err := e.view.RewardSchedule(ctx, block.Header.Height)
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	if coinbase.Outputs[0].Amount.Cmp(reward) > 0 {
		return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid, "coinbase amount %s exceeds reward schedule %s", coinbase.Outputs[0].Amount, reward)
	}
	if len(coinbase.Outputs[0].Script) < 8 {
		return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid, "coinbase script shorter than 8 bytes")
	}
	return nil
}

// 5. Per-tx.
func (e *Engine) validateTransactions(ctx context.Context, block *wire.Block) error {
	for i, tx := range block.Transactions[1:] {
		exists, err := e.view.TransactionExists(ctx, tx.Hash)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if exists {
			return consensuserrors.New(consensuserrors.CodeTxInvalid, "tx %d: already committed", i+1)
		}
		for _, in := range tx.Inputs {
			op := wire.Outpoint{TxID: in.PrevTxID, Index: in.OutputIndex}
			spent, err := e.view.IsSpent(ctx, op)
			if err != nil {
				return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
			}
			if spent {
				return consensuserrors.New(consensuserrors.CodeTxInvalid, "tx %d: spends an already-spent outpoint", i+1)
			}
		}
		if len(tx.Signature) == 0 && !tx.IsCoinbase() {
			return consensuserrors.New(consensuserrors.CodeTxInvalid, "tx %d: missing signature", i+1)
		}
		maxSize, err := e.view.MaxTransactionSize(ctx)
		if err == nil && maxSize > 0 && wire.SerializedSize(tx) > maxSize {
			return consensuserrors.New(consensuserrors.CodeTxTooLarge, "tx %d exceeds max transaction size %d", i+1, maxSize)
		}
	}
	return nil
}

// 6. Merkle root.
func (e *Engine) validateMerkleRoot(block *wire.Block) error {
	if !hash.VerifyMerkleRoot(block.Header.MerkleRoot, block.TxHashes()) {
		return consensuserrors.New(consensuserrors.CodeMerkleMismatch, "merkle root does not match transaction hashes")
	}
	return nil
}

// 7. Quorum.
func (e *Engine) validateQuorum(ctx context.Context, block *wire.Block) error {
	if e.absence == nil {
		return nil
	}
	expected, err := e.absence.GetExpectedValidators(ctx)
	if err != nil || len(expected) == 0 {
		return nil
	}
	live := make(map[string]struct{}, len(block.Validators))
	for _, v := range block.Validators {
		live[v] = struct{}{}
	}
	required := int(math.Ceil(e.cfg.QuorumFraction * float64(len(expected))))
	liveCount := 0
	for _, addr := range expected {
		if _, ok := live[addr]; ok {
			liveCount++
		} else {
			e.absence.HandleValidationFailure(ctx, block.Hash.String(), addr)
		}
	}
	if liveCount < required {
		return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator, "quorum not met: %d/%d live, need %d", liveCount, len(expected), required)
	}
	return nil
}

// ValidateVoteCarryingBlock implements spec §4.2's "Validation of
// vote-carrying blocks": validator_merkle_root must match, each vote's
// timestamp must be within +/-5 minutes of now and within the active
// period's window, and each voter must be in block.Validators.
func (e *Engine) ValidateVoteCarryingBlock(block *wire.Block, periodStart, periodEnd time.Time) error {
	leaves := wire.VotesMerkleLeaves(votesByVoter(block.Votes))
	if !hash.VerifyMerkleRoot(block.Header.ValidatorMerkleRoot, leaves) {
		return consensuserrors.New(consensuserrors.CodeMerkleMismatch, "validator merkle root does not match block votes")
	}

	validators := make(map[string]struct{}, len(block.Validators))
	for _, v := range block.Validators {
		validators[v] = struct{}{}
	}

	now := time.Now()
	for _, vote := range block.Votes {
		drift := now.Sub(vote.Timestamp)
		if drift < 0 {
			drift = -drift
		}
		if drift > 5*time.Minute {
			return consensuserrors.New(consensuserrors.CodeStructureInvalid, "vote %s timestamp drift %s exceeds 5m", vote.VoteID, drift)
		}
		if _, ok := validators[vote.VoterAddress]; !ok {
			return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator, "vote %s voter %s not in block.validators", vote.VoteID, vote.VoterAddress)
		}
		if vote.Timestamp.Before(periodStart) || vote.Timestamp.After(periodEnd) {
			return consensuserrors.New(consensuserrors.CodeOutsidePeriodWindow, "vote %s timestamp outside period window", vote.VoteID)
		}
		if len(vote.Signature) == 0 {
			return consensuserrors.New(consensuserrors.CodeStructureInvalid, "vote %s missing signature", vote.VoteID)
		}
	}
	return nil
}

func votesByVoter(votes []*wire.Vote) map[string]*wire.Vote {
	out := make(map[string]*wire.Vote, len(votes))
	for _, v := range votes {
		out[v.VoterAddress] = v
	}
	return out
}
