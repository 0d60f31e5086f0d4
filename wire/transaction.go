package wire

import (
	"math/big"
	"time"

	"github.com/h3tag-core/consensus/hash"
)

// TxType discriminates the handful of transaction shapes the consensus
// core knows about (spec §3).
type TxType string

// Recognised transaction types.
const (
	TxStandard     TxType = "STANDARD"
	TxTransfer     TxType = "TRANSFER"
	TxRegular      TxType = "REGULAR"
	TxCoinbase     TxType = "COINBASE"
	TxPowReward    TxType = "POW_REWARD"
	TxQuadraticVote TxType = "QUADRATIC_VOTE"
)

// TxStatus is a transaction's lifecycle state.
type TxStatus string

// Recognised transaction statuses.
const (
	TxPending   TxStatus = "PENDING"
	TxConfirmed TxStatus = "CONFIRMED"
	TxFailed    TxStatus = "FAILED"
)

// ScriptType is the small, recognised set of script shapes the mempool
// classifies scripts into (spec §4.1 step 3). Admission does not check
// it: any non-empty script is accepted.
type ScriptType string

// Recognised script types.
const (
	ScriptP2PKH ScriptType = "P2PKH"
	ScriptP2SH  ScriptType = "P2SH"
	ScriptP2WPKH ScriptType = "P2WPKH"
	ScriptP2WSH ScriptType = "P2WSH"
	ScriptP2TR  ScriptType = "P2TR"
)

// TxInput spends a previous output.
type TxInput struct {
	PrevTxID    hash.Hash
	OutputIndex uint32
	Script      []byte
	Signature   []byte
	PublicKey   []byte
	Amount      *big.Int
}

// TxOutput creates a new spendable output.
type TxOutput struct {
	Address       string
	Amount        *big.Int
	Script        []byte
	CurrencyTag   string
	Index         uint32
	Confirmations uint64
}

// Transaction is the consensus core's transaction shape (spec §3).
type Transaction struct {
	ID        string
	Hash      hash.Hash
	Version   uint32
	Type      TxType
	Inputs    []*TxInput
	Outputs   []*TxOutput
	Fee       *big.Int
	Timestamp time.Time
	Signature []byte
	Witness   [][]byte
	Status    TxStatus
}

// IsCoinbase reports whether tx is positioned and shaped as a coinbase
// transaction (zero inputs; exactly one output).
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 0 && len(tx.Outputs) == 1
}

// Outpoints returns the (prevTxID, index) pairs tx spends, the mempool's
// conflict-detection key (spec §4.1 step 8).
func (tx *Transaction) Outpoints() []Outpoint {
	out := make([]Outpoint, len(tx.Inputs))
	for i, in := range tx.Inputs {
		out[i] = Outpoint{TxID: in.PrevTxID, Index: in.OutputIndex}
	}
	return out
}

// Outpoint identifies a spendable output.
type Outpoint struct {
	TxID  hash.Hash
	Index uint32
}

// SerializedSize computes a transaction's wire size exactly as spec §4.1
// step 4 specifies: var-int counts, fixed-width outpoints/values, and an
// optional witness section whose stack-item count must equal the input
// count.
func SerializedSize(tx *Transaction) int {
	size := 4 + 4 // version + locktime
	size += varIntSize(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		size += 36 // outpoint: 32-byte txid + 4-byte index
		size += varIntSize(uint64(len(in.Script))) + len(in.Script)
		size += len(in.Signature) + len(in.PublicKey)
		size += 4 // sequence
	}
	size += varIntSize(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		size += 8 // value
		size += varIntSize(uint64(len(out.Script))) + len(out.Script)
	}
	if len(tx.Witness) > 0 {
		size += 2 // segwit marker+flag
		size += varIntSize(uint64(len(tx.Witness)))
		for _, item := range tx.Witness {
			size += varIntSize(uint64(len(item))) + len(item)
		}
	}
	return size
}

// BaseSerializedSize computes a transaction's size excluding the witness
// section, the "base" term spec §4.1's weight formula (weight =
// base*3 + total) is built from.
func BaseSerializedSize(tx *Transaction) int {
	size := 4 + 4 // version + locktime
	size += varIntSize(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		size += 36
		size += varIntSize(uint64(len(in.Script))) + len(in.Script)
		size += len(in.Signature) + len(in.PublicKey)
		size += 4
	}
	size += varIntSize(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		size += 8
		size += varIntSize(uint64(len(out.Script))) + len(out.Script)
	}
	return size
}

// WitnessStackMatchesInputs reports whether the witness section, if
// present, carries exactly one stack item per input.
func WitnessStackMatchesInputs(tx *Transaction) bool {
	if len(tx.Witness) == 0 {
		return true
	}
	return len(tx.Witness) == len(tx.Inputs)
}

// varIntSize returns the number of bytes a Bitcoin-style variable-length
// integer encoding of v occupies.
func varIntSize(v uint64) int {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
