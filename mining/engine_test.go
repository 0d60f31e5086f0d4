package mining

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

// fakeView is a minimal ledger.View stub, enough to exercise template
// assembly, difficulty retargeting and block validation without a real
// storage backend.
type fakeView struct {
	blocks    map[uint64]*wire.Block
	height    uint64
	maxTxSize int
}

func newFakeView() *fakeView {
	return &fakeView{blocks: make(map[uint64]*wire.Block), maxTxSize: 1 << 20}
}

func (f *fakeView) CurrentHeight(ctx context.Context) (uint64, error) { return f.height, nil }
func (f *fakeView) BlockByHeight(ctx context.Context, height uint64) (*wire.Block, error) {
	return f.blocks[height], nil
}
func (f *fakeView) BlockByHash(ctx context.Context, h hash.Hash) (*wire.Block, error) { return nil, nil }
func (f *fakeView) UTXOByOutpoint(ctx context.Context, op wire.Outpoint) (*wire.UTXO, error) {
	return nil, nil
}
func (f *fakeView) IsSpent(ctx context.Context, op wire.Outpoint) (bool, error) { return false, nil }
func (f *fakeView) TransactionExists(ctx context.Context, h hash.Hash) (bool, error) {
	return false, nil
}
func (f *fakeView) ValidatorSet(ctx context.Context) ([]*wire.Validator, error) { return nil, nil }
func (f *fakeView) Validator(ctx context.Context, address string) (*wire.Validator, error) {
	return nil, nil
}
func (f *fakeView) RewardSchedule(ctx context.Context, height uint64) (*big.Int, error) {
	return big.NewInt(50), nil
}
func (f *fakeView) MaxTransactionSize(ctx context.Context) (int, error) { return f.maxTxSize, nil }
func (f *fakeView) MedianTimePast(ctx context.Context, height uint64) (int64, error) {
	return time.Now().Unix(), nil
}
func (f *fakeView) AccountAge(ctx context.Context, address string) (uint64, error) { return 0, nil }
func (f *fakeView) PoWContribution(ctx context.Context, address string) (float64, error) {
	return 0, nil
}

type fakeTxSource struct {
	pending []*wire.Transaction
}

func (f *fakeTxSource) GetPendingTransactions(limit int, minFeeRate int64) []*wire.Transaction {
	return f.pending
}

type fakeAbsenceReporter struct {
	expected []string
	reported []string
}

func (f *fakeAbsenceReporter) HandleValidationFailure(ctx context.Context, taskID, absentValidator string) {
	f.reported = append(f.reported, absentValidator)
}
func (f *fakeAbsenceReporter) GetExpectedValidators(ctx context.Context) ([]string, error) {
	return f.expected, nil
}

func newTestEngine(t *testing.T, view *fakeView, src TxSource, absence ValidatorAbsenceReporter) *Engine {
	t.Helper()
	cfg := consensusconfig.Default()
	cfg.InitialDifficulty = 1
	cfg.MinDifficulty = 1
	cfg.MaxDifficulty = 1e18
	return New(cfg, view, src, nil, absence)
}

// Invariant 1: hash(header) is identical whether computed by the miner
// assembling a block or the validator checking it — ComputeHash has no
// hidden mutable state.
func TestComputeHashDeterminism(t *testing.T) {
	header := wire.BlockHeader{
		Version:      1,
		PreviousHash: hash.Sum256([]byte("parent")),
		MerkleRoot:   hash.Sum256([]byte("txs")),
		Timestamp:    1700000000,
		Difficulty:   1,
		Nonce:        42,
	}
	a := wire.ComputeHash(header)
	b := wire.ComputeHash(header)
	if a != b {
		t.Fatalf("ComputeHash is not deterministic: %s != %s", a, b)
	}
}

func TestGetBlockTemplateCoinbaseFirst(t *testing.T) {
	view := newFakeView()
	src := &fakeTxSource{pending: []*wire.Transaction{
		{ID: "t1", Hash: hash.Sum256([]byte("t1")), Outputs: []*wire.TxOutput{{Amount: big.NewInt(1)}}},
	}}
	e := newTestEngine(t, view, src, nil)

	tmpl, err := e.GetBlockTemplate(context.Background(), "miner1")
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if len(tmpl.Transactions) == 0 || tmpl.Transactions[0].Type != wire.TxCoinbase {
		t.Fatalf("expected coinbase first, got %+v", tmpl.Transactions)
	}
	if tmpl.Transactions[0].Outputs[0].Address != "miner1" {
		t.Fatalf("coinbase does not pay the requesting miner")
	}
}

// Difficulty retargets conservatively: faster-than-expected blocks raise
// difficulty, bounded by the [0.25, 4.0] ratio clamp.
func TestCalculateNextDifficultyRatioClamp(t *testing.T) {
	view := newFakeView()
	e := newTestEngine(t, view, &fakeTxSource{}, nil)
	e.cfg.AdjustmentInterval = 2

	view.blocks[0] = &wire.Block{Header: wire.BlockHeader{Height: 0, Timestamp: 1000, Difficulty: 10}}
	last := &wire.Block{Header: wire.BlockHeader{Height: 1, Timestamp: 1001, Difficulty: 10}} // near-instant blocks

	next, err := e.CalculateNextDifficulty(context.Background(), last)
	if err != nil {
		t.Fatalf("CalculateNextDifficulty: %v", err)
	}
	if next > 40 {
		t.Fatalf("difficulty increase exceeded the 4x clamp: got %v", next)
	}
}

func TestValidateBlockRejectsHashMismatch(t *testing.T) {
	view := newFakeView()
	e := newTestEngine(t, view, &fakeTxSource{}, nil)

	coinbase := buildCoinbase("miner1", big.NewInt(50), 1)
	block := &wire.Block{
		Header: wire.BlockHeader{Version: 1, Height: 1, Difficulty: 1},
		Transactions: []*wire.Transaction{coinbase},
		Hash:         hash.Sum256([]byte("not-the-real-hash")),
	}

	err := e.ValidateBlock(context.Background(), block)
	if err == nil {
		t.Fatalf("expected hash mismatch rejection")
	}
	code, _ := consensuserrors.CodeOf(err)
	if code != consensuserrors.CodeHeaderInvalid {
		t.Fatalf("expected CodeHeaderInvalid, got %v", code)
	}
}

func TestValidateBlockRejectsMissingCoinbase(t *testing.T) {
	view := newFakeView()
	e := newTestEngine(t, view, &fakeTxSource{}, nil)

	tx := &wire.Transaction{
		ID:   "not-coinbase",
		Hash: hash.Sum256([]byte("tx")),
		Inputs: []*wire.TxInput{{PrevTxID: hash.ZeroHash}},
		Outputs: []*wire.TxOutput{{Amount: big.NewInt(1)}},
	}
	header := wire.BlockHeader{Version: 1, Height: 1, Difficulty: 1}
	header.Target = TargetFromDifficulty(1)
	block := &wire.Block{
		Header:       header,
		Transactions: []*wire.Transaction{tx},
	}
	block.Hash = wire.ComputeHash(block.Header)

	err := e.ValidateBlock(context.Background(), block)
	if err == nil {
		t.Fatalf("expected coinbase-missing rejection")
	}
}

func TestValidateQuorumReportsAbsentValidators(t *testing.T) {
	view := newFakeView()
	absence := &fakeAbsenceReporter{expected: []string{"v1", "v2", "v3"}}
	e := newTestEngine(t, view, &fakeTxSource{}, absence)

	coinbase := buildCoinbase("miner1", big.NewInt(50), 1)
	merkleRoot := hash.CreateMerkleRoot([]hash.Hash{coinbase.Hash})
	header := wire.BlockHeader{Version: 1, Height: 1, Difficulty: 1, MerkleRoot: merkleRoot}
	header.Target = TargetFromDifficulty(1)
	block := &wire.Block{
		Header:       header,
		Transactions: []*wire.Transaction{coinbase},
		Validators:   []string{"v1"},
	}
	block.Hash = wire.ComputeHash(block.Header)

	err := e.ValidateBlock(context.Background(), block)
	if err == nil {
		t.Fatalf("expected quorum failure with only 1/3 validators live")
	}
	if len(absence.reported) != 2 {
		t.Fatalf("expected 2 absent validators reported, got %d: %v", len(absence.reported), absence.reported)
	}
}

// MineBlock at difficulty 1 must find a satisfying nonce quickly since
// the target is nearly the full 256-bit space.
func TestMineBlockFindsSolutionAtMinDifficulty(t *testing.T) {
	view := newFakeView()
	e := newTestEngine(t, view, &fakeTxSource{}, nil)
	e.cfg.BlockInflightTimeoutSeconds = 5
	e.cfg.MaxRetryAttempts = 1

	header := wire.BlockHeader{Height: 1, Difficulty: 1}
	header.Target = TargetFromDifficulty(1)
	block := &wire.Block{Header: header}

	mined, err := e.MineBlock(context.Background(), block)
	if err != nil {
		t.Fatalf("MineBlock: %v", err)
	}
	h := wire.ComputeHash(mined.Header)
	if h.Cmp(mined.Header.Target) > 0 {
		t.Fatalf("mined block hash exceeds target")
	}
}

func TestMineBlockCachesSolutionByMerkleRoot(t *testing.T) {
	view := newFakeView()
	e := newTestEngine(t, view, &fakeTxSource{}, nil)
	e.cfg.BlockInflightTimeoutSeconds = 5
	e.cfg.MaxRetryAttempts = 1

	header := wire.BlockHeader{Height: 1, Difficulty: 1, PreviousHash: hash.Sum256([]byte("p")), MerkleRoot: hash.Sum256([]byte("m"))}
	header.Target = TargetFromDifficulty(1)
	block := &wire.Block{Header: header}

	first, err := e.MineBlock(context.Background(), block)
	if err != nil {
		t.Fatalf("MineBlock: %v", err)
	}

	second, err := e.MineBlock(context.Background(), &wire.Block{Header: header})
	if err != nil {
		t.Fatalf("MineBlock (cached): %v", err)
	}
	if second.Header.Nonce != first.Header.Nonce {
		t.Fatalf("expected cached solution nonce %d, got %d", first.Header.Nonce, second.Header.Nonce)
	}
}
