package mining

import (
	"context"
	"time"

	"github.com/h3tag-core/consensus/wire"
)

// SubmitBlock runs ValidateBlock and reports whether block was accepted,
// returning the specific failure the caller's ValidateBlock step raised
// (StructureInvalid, TargetNotMet, HeaderInvalid, CoinbaseInvalid,
// TxInvalid, MerkleMismatch, UnauthorizedValidator) rather than a bare
// bool, grounded on the teacher's ProcessBlock acceptance/rejection
// split (blockdag/process.go).
func (e *Engine) SubmitBlock(ctx context.Context, block *wire.Block) (bool, error) {
	if err := e.ValidateBlock(ctx, block); err != nil {
		return false, err
	}

	key := solutionKey{previousHash: block.Header.PreviousHash, merkleRoot: block.Header.MerkleRoot}
	e.cacheSolution(key.previousHash, key.merkleRoot, solution{nonce: block.Header.Nonce, hash: block.Hash})

	e.mu.Lock()
	e.lastBlockAt = time.Now()
	e.mu.Unlock()

	e.inflight.release(key)
	e.InterruptMining()
	return true, nil
}
