// Package wire defines the consensus core's on-the-wire entity types:
// Block, Transaction, Vote, VotingPeriod, UTXO and Validator, laid out one
// type per file in the style of this lineage's wire package of message
// types.
package wire

import (
	"math/big"

	"github.com/h3tag-core/consensus/hash"
)

// BlockHeader is the fixed-size portion of a block that is hashed to
// produce the block's identity (spec §3, §6).
type BlockHeader struct {
	// Version is the block format version.
	Version uint32
	// Height is the block's position in the canonical chain.
	Height uint64
	// PreviousHash is the hash of the immediate parent block.
	PreviousHash hash.Hash
	// MerkleRoot is the Merkle root over the block's transaction hashes.
	MerkleRoot hash.Hash
	// ValidatorMerkleRoot is the Merkle root over the block's votes.
	ValidatorMerkleRoot hash.Hash
	// Timestamp is the block's creation time, seconds since epoch.
	Timestamp uint64
	// Difficulty is the PoW difficulty this block was mined under.
	Difficulty float64
	// Nonce is the value the miner searched for; bounded to 2^53 for
	// cross-ecosystem float safety (spec §3).
	Nonce uint64
	// Target is MAX_TARGET / Difficulty, the block hash's upper bound.
	Target hash.Hash
}

// MaxNonce bounds the nonce search space to 2^53, preserving exact integer
// representation in float64-based cross-ecosystem tooling (spec §3).
const MaxNonce uint64 = 1 << 53

// ConsensusData carries the per-block scoring the voting and PoW engines
// each contribute.
type ConsensusData struct {
	PowScore          float64
	VotingScore       float64
	ParticipationRate float64
	PeriodID          uint64
}

// BlockMetadata carries the sync hints (locator and hash-stop) that ride
// along with a block but are not part of the hashed header.
type BlockMetadata struct {
	Locator  []hash.Hash
	HashStop hash.Hash
}

// Block is a full block: header, transactions, votes, the validator set
// that participated, and metadata (spec §3).
type Block struct {
	Header               BlockHeader
	Transactions         []*Transaction
	Votes                []*Vote
	Validators           []string
	Metadata             BlockMetadata
	MinerAddress         string
	MinerPublicKey       []byte
	Signature            []byte
	Hash                 hash.Hash
	Fees                 *big.Int
	BlockReward          *big.Int
	TotalSupplyAtHeight  *big.Int
	ConsensusData        ConsensusData
}

// CanonicalHeaderBytes returns the deterministic concatenation of header
// fields used as the hashing input (spec §6): version, previous_hash,
// merkle_root, timestamp, difficulty, nonce, in that fixed order.
func CanonicalHeaderBytes(h BlockHeader) []byte {
	buf := make([]byte, 0, 4+hash.Size+hash.Size+8+8+8)
	buf = hash.PutUint32LE(buf, h.Version)
	buf = append(buf, h.PreviousHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = hash.PutUint64LE(buf, h.Timestamp)
	buf = hash.PutUint64LE(buf, difficultyBits(h.Difficulty))
	buf = hash.PutUint64LE(buf, h.Nonce)
	return buf
}

// difficultyBits fixes the float-vs-integer hazard flagged in spec §9 by
// hashing a deterministic fixed-point encoding of difficulty rather than
// the IEEE-754 bit pattern (which differs across producer/validator FPUs
// in edge cases).
func difficultyBits(difficulty float64) uint64 {
	return uint64(difficulty * 1e8)
}

// ComputeHash hashes h via CanonicalHeaderBytes; this is the single
// definition of "the" block hash, used identically by the miner and the
// validator (spec invariant 1).
func ComputeHash(h BlockHeader) hash.Hash {
	return hash.Sum256(CanonicalHeaderBytes(h))
}

// TxHashes returns the ordered transaction hashes of a block, the Merkle
// leaf set.
func (b *Block) TxHashes() []hash.Hash {
	out := make([]hash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		out[i] = tx.Hash
	}
	return out
}
