package wire

import (
	"math/big"
	"sort"
	"time"

	"github.com/h3tag-core/consensus/hash"
)

// ChainVoteData carries the fork the vote expresses an opinion about.
type ChainVoteData struct {
	TargetChainID string
	ForkHeight    uint64
	Amount        *big.Int
}

// Vote is a single quadratic-weighted ballot (spec §3).
type Vote struct {
	VoteID          string
	PeriodID        uint64
	VoterAddress    string
	VoterPublicKey  []byte
	ChainVoteData   ChainVoteData
	Approve         bool
	Timestamp       time.Time
	Signature       []byte
	Height          uint64
	Balance         *big.Int
	VotingPower     *big.Int
}

// VotingPeriodType discriminates the two kinds of voting period spec §3
// names.
type VotingPeriodType string

// Recognised voting period types.
const (
	PeriodNodeSelection  VotingPeriodType = "node_selection"
	PeriodChainSelection VotingPeriodType = "chain_selection"
)

// VotingPeriodStatus is a period's lifecycle state.
type VotingPeriodStatus string

// Recognised voting period statuses.
const (
	PeriodActive    VotingPeriodStatus = "active"
	PeriodCompleted VotingPeriodStatus = "completed"
)

// ForkDecision records the finalized outcome of a chain_selection period
// (spec §4.3).
type ForkDecision struct {
	Selected   string
	Powers     map[string]*big.Int
	DecidedAt  time.Time
	ForkHeight uint64
}

// VotingPeriod is the voting engine's unit of work (spec §3).
type VotingPeriod struct {
	PeriodID         uint64
	Type             VotingPeriodType
	StartBlock       uint64
	EndBlock         uint64
	StartTime        time.Time
	EndTime          time.Time
	Status           VotingPeriodStatus
	Votes            map[string]*Vote // voter address -> vote
	VotesMerkleRoot  hash.Hash
	IsAudited        bool
	ForkDecision     *ForkDecision
	CompetingChains  []string
	CreatedAt        time.Time
}

// VoteLeafBytes returns the canonical {vote_id, voter, timestamp} tuple
// that feeds validator_merkle_root (spec §4.2, "Validation of
// vote-carrying blocks").
func VoteLeafBytes(v *Vote) []byte {
	buf := make([]byte, 0, len(v.VoteID)+len(v.VoterAddress)+8)
	buf = append(buf, v.VoteID...)
	buf = append(buf, v.VoterAddress...)
	buf = hash.PutUint64LE(buf, uint64(v.Timestamp.Unix()))
	return buf
}

// VotesMerkleLeaves hashes each vote in a stable (voter-address-sorted)
// order so the Merkle root is deterministic regardless of map iteration.
func VotesMerkleLeaves(votes map[string]*Vote) []hash.Hash {
	addrs := make([]string, 0, len(votes))
	for addr := range votes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	leaves := make([]hash.Hash, len(addrs))
	for i, addr := range addrs {
		leaves[i] = hash.Sum256(VoteLeafBytes(votes[addr]))
	}
	return leaves
}
