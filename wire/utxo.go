package wire

import (
	"math/big"

	"github.com/h3tag-core/consensus/hash"
)

// UTXO is an unspent (or formerly-unspent, retained-for-proofs) output
// (spec §3). It is never destroyed once created; pruning is out of scope.
type UTXO struct {
	TxID          hash.Hash
	OutputIndex   uint32
	Address       string
	Amount        *big.Int
	Script        []byte
	Spent         bool
	Confirmations uint64
	CurrencyTag   string
}

// UTXOKey identifies a UTXO by its (txid, output_index) pair, the
// persistence key from spec §6.
type UTXOKey struct {
	TxID  hash.Hash
	Index uint32
}

// Key returns u's UTXOKey.
func (u *UTXO) Key() UTXOKey {
	return UTXOKey{TxID: u.TxID, Index: u.OutputIndex}
}
