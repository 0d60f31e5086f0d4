// Package mining implements the consensus core's Proof-of-Work engine
// (spec §4.2): block template assembly, nonce search, block validation,
// difficulty retargeting, and in-flight block tracking. Template
// assembly is grounded on the teacher's BlkTmplGenerator.NewBlockTemplate
// (mining/mining.go), generalised from DAG coinbase construction and its
// fee-priority tx queue to this module's UTXO-chain block shape and
// mempool, which already returns fee-rate-sorted candidates.
package mining

import (
	"context"
	"math/big"
	"time"

	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

const (
	// defaultVersion is the block version this engine templates; the
	// accepted range is cfg.MinVersion..cfg.MaxVersion.
	defaultVersion = 1
)

// TxSource is the subset of the mempool the PoW engine pulls candidate
// transactions from when assembling a template (spec §4.2), the
// generalisation of the teacher's TxSource interface to this module's
// transaction shape.
type TxSource interface {
	GetPendingTransactions(limit int, minFeeRate int64) []*wire.Transaction
}

// Template is the block template returned by GetBlockTemplate (spec
// §4.2).
type Template struct {
	Version      uint32
	Height       uint64
	PreviousHash hash.Hash
	Timestamp    uint64
	Difficulty   float64
	Transactions []*wire.Transaction
	MerkleRoot   hash.Hash
	Target       hash.Hash
	MinTime      uint64
	MaxTime      uint64
	MinVersion   int
	MaxVersion   int
	DefaultVersion int
}

// GetBlockTemplate assembles a Template for minerAddress: a coinbase
// transaction paying the reward schedule at height, followed by the
// highest fee-rate pending transactions the mempool offers that fit
// within MaxBlockSize (spec §4.2).
func (e *Engine) GetBlockTemplate(ctx context.Context, minerAddress string) (*Template, error) {
	height, err := e.view.CurrentHeight(ctx)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	nextHeight := height + 1

	reward, err := e.view.RewardSchedule(ctx, nextHeight)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}

	tip, err := e.view.BlockByHeight(ctx, height)
	if err != nil {
		return nil, consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	previousHash := hash.ZeroHash
	if tip != nil {
		previousHash = tip.Hash
	}

	difficulty, err := e.CalculateNextDifficulty(ctx, tip)
	if err != nil {
		return nil, err
	}

	coinbase := buildCoinbase(minerAddress, reward, nextHeight)

	pending := e.txSource.GetPendingTransactions(0, 0)
	txs := selectTransactions(pending, e.cfg.MaxBlockSize-wire.SerializedSize(coinbase))

	all := make([]*wire.Transaction, 0, len(txs)+1)
	all = append(all, coinbase)
	all = append(all, txs...)

	leaves := make([]hash.Hash, len(all))
	for i, tx := range all {
		leaves[i] = tx.Hash
	}
	merkleRoot := hash.CreateMerkleRoot(leaves)

	now := uint64(time.Now().Unix())
	return &Template{
		Version:        defaultVersion,
		Height:         nextHeight,
		PreviousHash:   previousHash,
		Timestamp:      now,
		Difficulty:     difficulty,
		Transactions:   all,
		MerkleRoot:     merkleRoot,
		Target:         TargetFromDifficulty(difficulty),
		MinTime:        now - uint64(e.cfg.MaxTimeDriftSeconds),
		MaxTime:        now + uint64(e.cfg.MaxTimeDriftSeconds),
		MinVersion:     e.cfg.MinVersion,
		MaxVersion:     e.cfg.MaxVersion,
		DefaultVersion: defaultVersion,
	}, nil
}

func buildCoinbase(minerAddress string, reward *big.Int, height uint64) *wire.Transaction {
	tx := &wire.Transaction{
		ID:      coinbaseID(minerAddress, height),
		Version: defaultVersion,
		Type:    wire.TxCoinbase,
		Outputs: []*wire.TxOutput{
			{Address: minerAddress, Amount: new(big.Int).Set(reward), Script: []byte("coinbase-claim-script")},
		},
		Fee:       big.NewInt(0),
		Timestamp: time.Now(),
	}
	tx.Hash = hash.Sum256([]byte(tx.ID))
	return tx
}

func coinbaseID(minerAddress string, height uint64) string {
	buf := make([]byte, 0, len(minerAddress)+8)
	buf = append(buf, minerAddress...)
	buf = hash.PutUint64LE(buf, height)
	return hash.Sum256(buf).String()
}

// selectTransactions greedily packs pending (already fee-rate sorted by
// the mempool) transactions into budget bytes, mirroring the teacher's
// priority-by-fee template assembly without needing its heap: the
// mempool already returns a fee-rate-descending, arrival-time-tie-broken
// slice (spec §4.1 get_pending_transactions).
func selectTransactions(pending []*wire.Transaction, budget int) []*wire.Transaction {
	var selected []*wire.Transaction
	used := 0
	for _, tx := range pending {
		size := wire.SerializedSize(tx)
		if used+size > budget {
			continue
		}
		if tx.Hash.IsZero() {
			tx.Hash = hash.Sum256([]byte(tx.ID))
		}
		selected = append(selected, tx)
		used += size
	}
	return selected
}
