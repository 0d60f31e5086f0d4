package mempool

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

// fakeView is a minimal ledger.View stub for mempool tests: enough state
// to exercise UTXO lookups, coinbase maturity, and vote eligibility
// without pulling in a real storage backend.
type fakeView struct {
	height       uint64
	utxos        map[wire.Outpoint]*wire.UTXO
	spent        map[wire.Outpoint]bool
	validators   map[string]*wire.Validator
	accountAges  map[string]uint64
	powContrib   map[string]float64
	maxTxSize    int
}

func newFakeView() *fakeView {
	return &fakeView{
		utxos:       make(map[wire.Outpoint]*wire.UTXO),
		spent:       make(map[wire.Outpoint]bool),
		validators:  make(map[string]*wire.Validator),
		accountAges: make(map[string]uint64),
		powContrib:  make(map[string]float64),
		maxTxSize:   100000,
	}
}

func (f *fakeView) CurrentHeight(ctx context.Context) (uint64, error) { return f.height, nil }
func (f *fakeView) BlockByHeight(ctx context.Context, height uint64) (*wire.Block, error) {
	return nil, nil
}
func (f *fakeView) BlockByHash(ctx context.Context, h hash.Hash) (*wire.Block, error) {
	return nil, nil
}
func (f *fakeView) UTXOByOutpoint(ctx context.Context, op wire.Outpoint) (*wire.UTXO, error) {
	return f.utxos[op], nil
}
func (f *fakeView) IsSpent(ctx context.Context, op wire.Outpoint) (bool, error) {
	return f.spent[op], nil
}
func (f *fakeView) TransactionExists(ctx context.Context, h hash.Hash) (bool, error) {
	return false, nil
}
func (f *fakeView) ValidatorSet(ctx context.Context) ([]*wire.Validator, error) {
	out := make([]*wire.Validator, 0, len(f.validators))
	for _, v := range f.validators {
		out = append(out, v)
	}
	return out, nil
}
func (f *fakeView) Validator(ctx context.Context, address string) (*wire.Validator, error) {
	return f.validators[address], nil
}
func (f *fakeView) RewardSchedule(ctx context.Context, height uint64) (*big.Int, error) {
	return big.NewInt(50), nil
}
func (f *fakeView) MaxTransactionSize(ctx context.Context) (int, error) { return f.maxTxSize, nil }
func (f *fakeView) MedianTimePast(ctx context.Context, height uint64) (int64, error) {
	return time.Now().Unix(), nil
}
func (f *fakeView) AccountAge(ctx context.Context, address string) (uint64, error) {
	return f.accountAges[address], nil
}
func (f *fakeView) PoWContribution(ctx context.Context, address string) (float64, error) {
	return f.powContrib[address], nil
}

func testTx(id string, prevTxID hash.Hash, outIndex uint32, fee int64) *wire.Transaction {
	return &wire.Transaction{
		ID:      id,
		Version: 1,
		Type:    wire.TxStandard,
		Inputs: []*wire.TxInput{
			{PrevTxID: prevTxID, OutputIndex: outIndex, Script: []byte("p2pkh-script"), Signature: []byte("sig")},
		},
		Outputs: []*wire.TxOutput{
			{Address: "addr1", Amount: big.NewInt(1000), Script: []byte("p2pkh-out")},
		},
		Fee:       big.NewInt(fee),
		Timestamp: time.Now(),
	}
}

func newTestPool(t *testing.T, view *fakeView) *Pool {
	t.Helper()
	cfg := consensusconfig.Default()
	return New(cfg, view, nil, nil)
}

func seedUTXO(view *fakeView, prevTxID hash.Hash, index uint32) {
	op := wire.Outpoint{TxID: prevTxID, Index: index}
	view.utxos[op] = &wire.UTXO{TxID: prevTxID, OutputIndex: index, Address: "addr0", Amount: big.NewInt(10000)}
}

// S1 — RBF acceptance: B's fee rate exceeds 1.1x A's, A is evicted and B
// admitted.
func TestRBFAcceptance(t *testing.T) {
	view := newFakeView()
	prevTxID := hash.Sum256([]byte("shared-input"))
	seedUTXO(view, prevTxID, 0)
	p := newTestPool(t, view)

	txA := testTx("A", prevTxID, 0, 400) // 84-byte tx, fee 400
	if err := p.AddTransaction(context.Background(), txA); err != nil {
		t.Fatalf("add A: %v", err)
	}

	txB := testTx("B", prevTxID, 0, 500)
	if err := p.AddTransaction(context.Background(), txB); err != nil {
		t.Fatalf("add B (rbf): %v", err)
	}

	if p.Has("A") {
		t.Fatalf("expected A to be evicted by RBF")
	}
	if !p.Has("B") {
		t.Fatalf("expected B to be present after RBF")
	}
}

// S2 — RBF rejection: B's fee rate does not strictly exceed 1.1x A's, B
// is rejected and A remains.
func TestRBFRejection(t *testing.T) {
	view := newFakeView()
	prevTxID := hash.Sum256([]byte("shared-input-2"))
	seedUTXO(view, prevTxID, 0)
	p := newTestPool(t, view)

	txA := testTx("A", prevTxID, 0, 400)
	if err := p.AddTransaction(context.Background(), txA); err != nil {
		t.Fatalf("add A: %v", err)
	}

	txB := testTx("B", prevTxID, 0, 440) // same fee rate ratio as A's feerate*1.1, not exceeding
	err := p.AddTransaction(context.Background(), txB)
	if err == nil {
		t.Fatalf("expected B to be rejected by RBF law")
	}
	code, ok := consensuserrors.CodeOf(err)
	if !ok || code != consensuserrors.CodeFeeTooLow {
		t.Fatalf("expected CodeFeeTooLow, got %v", err)
	}
	if !p.Has("A") {
		t.Fatalf("expected A to remain after rejected RBF")
	}
}

// S3 — Dynamic fee: once the pool is above HighCongestionThreshold, a low
// fee-rate transaction is rejected by the dynamic minimum.
func TestDynamicFeeRejectsLowRate(t *testing.T) {
	view := newFakeView()
	p := newTestPool(t, view)
	p.cfg.HighCongestionThreshold = 0 // force the dynamic gate to engage immediately
	p.cfg.MaxMempoolSize = 100

	// Push the pool's apparent size above the congestion ratio the curve
	// needs to produce a multiplier > 1.
	for i := 0; i < 92; i++ {
		id := hash.Sum256([]byte{byte(i), byte(i >> 8)})
		p.entries[id.String()] = &wire.MempoolEntry{
			Tx:         &wire.Transaction{ID: id.String()},
			ReceivedAt: time.Now(),
			FeeRate:    100000,
		}
	}

	prevTxID := hash.Sum256([]byte("s3-input"))
	seedUTXO(view, prevTxID, 0)
	lowFeeTx := testTx("low-fee", prevTxID, 0, 0)
	// Fee rate 3 per byte: clears the static floor, below the dynamic minimum.
	lowFeeTx.Fee = big.NewInt(3 * int64(wire.SerializedSize(lowFeeTx)))

	err := p.AddTransaction(context.Background(), lowFeeTx)
	if err == nil {
		t.Fatalf("expected low fee rate to be rejected under congestion")
	}
}

// S5 — Coinbase maturity: a POW_REWARD spend is rejected below
// MinBlocksMined and accepted at or above it.
func TestCoinbaseMaturity(t *testing.T) {
	view := newFakeView()
	view.height = 50
	prevTxID := hash.Sum256([]byte("coinbase-s5"))
	seedUTXO(view, prevTxID, 0)
	view.powContrib["addr1"] = 10

	p := newTestPool(t, view)
	p.cfg.MinBlocksMined = 100

	tx := testTx("reward", prevTxID, 0, 400)
	tx.Type = wire.TxPowReward

	if err := p.AddTransaction(context.Background(), tx); err == nil {
		t.Fatalf("expected coinbase spend to be rejected below maturity")
	}

	view.height = 110
	tx2 := testTx("reward-2", prevTxID, 0, 400)
	tx2.Type = wire.TxPowReward
	if err := p.AddTransaction(context.Background(), tx2); err != nil {
		t.Fatalf("expected coinbase spend to be accepted at maturity: %v", err)
	}
}

// Property 5 — mempool size invariant: bytes == sum(size(tx)) and size
// == |tx map| after adds and removes.
func TestMempoolSizeInvariant(t *testing.T) {
	view := newFakeView()
	p := newTestPool(t, view)

	var added []*wire.Transaction
	for i := 0; i < 5; i++ {
		prevTxID := hash.Sum256([]byte{byte('a' + i)})
		seedUTXO(view, prevTxID, 0)
		tx := testTx(string(rune('A'+i)), prevTxID, 0, 1000)
		if err := p.AddTransaction(context.Background(), tx); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		added = append(added, tx)
	}

	if p.Size() != 5 {
		t.Fatalf("expected size 5, got %d", p.Size())
	}
	var wantBytes int
	for _, tx := range added {
		wantBytes += wire.SerializedSize(tx)
	}
	if p.Bytes() != wantBytes {
		t.Fatalf("expected bytes %d, got %d", wantBytes, p.Bytes())
	}

	p.RemoveTransactions(added[:2])
	if p.Size() != 3 {
		t.Fatalf("expected size 3 after removal, got %d", p.Size())
	}
	var wantBytesAfter int
	for _, tx := range added[2:] {
		wantBytesAfter += wire.SerializedSize(tx)
	}
	if p.Bytes() != wantBytesAfter {
		t.Fatalf("expected bytes %d after removal, got %d", wantBytesAfter, p.Bytes())
	}
}

// Property 6 — RBF law: on success the conflicting set is fully evicted
// and the replacement is present, already covered directly by
// TestRBFAcceptance; here we additionally check the conflict set is
// empty afterwards.
func TestRBFLawConflictSetEvicted(t *testing.T) {
	view := newFakeView()
	prevTxID := hash.Sum256([]byte("rbf-law"))
	seedUTXO(view, prevTxID, 0)
	p := newTestPool(t, view)

	txA := testTx("A", prevTxID, 0, 400)
	if err := p.AddTransaction(context.Background(), txA); err != nil {
		t.Fatalf("add A: %v", err)
	}
	txB := testTx("B", prevTxID, 0, 600)
	if err := p.AddTransaction(context.Background(), txB); err != nil {
		t.Fatalf("add B: %v", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.entries["A"]; ok {
		t.Fatalf("conflict set not fully evicted")
	}
	if _, ok := p.entries["B"]; !ok {
		t.Fatalf("replacement not present")
	}
}

// Property 7 — ancestry bounds: ancestryLocked walks the in-mempool
// parent chain recorded in byOutpoint, and AddTransaction rejects a tx
// whose resulting ancestor count exceeds MaxAncestors.
func TestAncestryBoundsExceeded(t *testing.T) {
	view := newFakeView()
	p := newTestPool(t, view)
	p.cfg.MaxAncestors = 1

	// Set up the pool's internal bookkeeping directly: "root" is recorded
	// in byOutpoint as the spender of sharedOp, and "tip" spends that same
	// outpoint, so ancestryLocked reports "root" as tip's one ancestor.
	sharedOp := wire.Outpoint{TxID: hash.Sum256([]byte("chain-root")), Index: 0}
	p.entries["root"] = &wire.MempoolEntry{
		Tx:         &wire.Transaction{ID: "root"},
		ReceivedAt: time.Now(),
		Ancestors:  map[string]struct{}{},
	}
	p.byOutpoint[sharedOp] = "root"

	tip := testTx("tip", sharedOp.TxID, sharedOp.Index, 1000)
	ancestors, descendants := p.ancestryLocked(tip)
	if len(ancestors) != 1 {
		t.Fatalf("expected 1 ancestor, got %d", len(ancestors))
	}
	if len(descendants) != 0 {
		t.Fatalf("expected 0 descendants, got %d", len(descendants))
	}
	if len(ancestors) > p.cfg.MaxAncestors {
		// matches the rejection AddTransaction would perform at this
		// MaxAncestors setting
		return
	}
	t.Fatalf("expected ancestor count to exceed MaxAncestors=%d", p.cfg.MaxAncestors)
}
