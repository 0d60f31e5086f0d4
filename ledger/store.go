package ledger

import "context"

// Op is one operation within a Batch: a Put (Value != nil) or a Delete
// (Value == nil).
type Op struct {
	Key   []byte
	Value []byte
}

// Iterator walks a key range in the Store. Namespaces are delimited with
// ':' as documented on Store (spec §6).
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Store is the key/value persistence interface the consensus core
// consumes (spec §6): atomic batch writes and snapshot reads, with the
// namespaces `block:height:{H}`, `block:hash:{H}`, `tx:{hash}`,
// `utxo:{txid}:{idx}`, `validator:{address}`, `voting:period:{id}`,
// `voting:vote:{period}:{voter}`, `chain:head`, `difficulty:{hash}`,
// `pow:solution:{hash}`. Values are canonical-CBOR encoded entities of
// spec §3. This is an external collaborator: the consensus core never
// implements the on-disk file format (Non-goal).
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	Batch(ctx context.Context, ops []Op) error
	Iterator(ctx context.Context, start, end []byte) (Iterator, error)
}

// Namespace key prefixes, spelled out once so every package building keys
// agrees on the same layout.
const (
	NSBlockHeight   = "block:height:"
	NSBlockHash     = "block:hash:"
	NSTransaction   = "tx:"
	NSUTXO          = "utxo:"
	NSValidator     = "validator:"
	NSVotingPeriod  = "voting:period:"
	NSVotingVote    = "voting:vote:"
	NSChainHead     = "chain:head"
	NSDifficulty    = "difficulty:"
	NSPowSolution   = "pow:solution:"
)
