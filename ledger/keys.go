package ledger

import (
	"fmt"

	"github.com/h3tag-core/consensus/hash"
)

// BlockHeightKey builds the `block:height:{H}` key.
func BlockHeightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", NSBlockHeight, height))
}

// BlockHashKey builds the `block:hash:{H}` key.
func BlockHashKey(h hash.Hash) []byte {
	return []byte(NSBlockHash + h.String())
}

// TransactionKey builds the `tx:{hash}` key.
func TransactionKey(h hash.Hash) []byte {
	return []byte(NSTransaction + h.String())
}

// UTXOKey builds the `utxo:{txid}:{idx}` key.
func UTXOKey(txID hash.Hash, index uint32) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", NSUTXO, txID.String(), index))
}

// ValidatorKey builds the `validator:{address}` key.
func ValidatorKey(address string) []byte {
	return []byte(NSValidator + address)
}

// VotingPeriodKey builds the `voting:period:{id}` key.
func VotingPeriodKey(periodID uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", NSVotingPeriod, periodID))
}

// VotingVoteKey builds the `voting:vote:{period}:{voter}` key.
func VotingVoteKey(periodID uint64, voter string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s", NSVotingVote, periodID, voter))
}

// ChainHeadKey is the fixed `chain:head` key.
func ChainHeadKey() []byte { return []byte(NSChainHead) }

// DifficultyKey builds the `difficulty:{hash}` key.
func DifficultyKey(h hash.Hash) []byte {
	return []byte(NSDifficulty + h.String())
}

// PowSolutionKey builds the `pow:solution:{hash}` key.
func PowSolutionKey(h hash.Hash) []byte {
	return []byte(NSPowSolution + h.String())
}
