package consensus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/wire"
)

type fakeView struct {
	height    uint64
	blocks    map[uint64]*wire.Block
	utxos     map[wire.Outpoint]*wire.UTXO
	spent     map[wire.Outpoint]bool
	maxTxSize int
}

func newFakeView() *fakeView {
	return &fakeView{
		blocks:    make(map[uint64]*wire.Block),
		utxos:     make(map[wire.Outpoint]*wire.UTXO),
		spent:     make(map[wire.Outpoint]bool),
		maxTxSize: 1 << 20,
	}
}

func (f *fakeView) CurrentHeight(ctx context.Context) (uint64, error) { return f.height, nil }
func (f *fakeView) BlockByHeight(ctx context.Context, height uint64) (*wire.Block, error) {
	return f.blocks[height], nil
}
func (f *fakeView) BlockByHash(ctx context.Context, h hash.Hash) (*wire.Block, error) { return nil, nil }
func (f *fakeView) UTXOByOutpoint(ctx context.Context, op wire.Outpoint) (*wire.UTXO, error) {
	return f.utxos[op], nil
}
func (f *fakeView) IsSpent(ctx context.Context, op wire.Outpoint) (bool, error) {
	return f.spent[op], nil
}
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
func (f *fakeView) AccountAge(ctx context.Context, address string) (uint64, error) { return 1000, nil }
func (f *fakeView) PoWContribution(ctx context.Context, address string) (float64, error) {
	return 1, nil
}

type fakePeers struct {
	count      int
	validators []string
}

func (f *fakePeers) PeerCount(ctx context.Context) (int, error) { return f.count, nil }
func (f *fakePeers) ActiveValidators(ctx context.Context) ([]string, error) {
	return f.validators, nil
}
func (f *fakePeers) SyncState(ctx context.Context) (network.SyncState, error) {
	return network.Synced, nil
}

func newTestBundle(t *testing.T, view *fakeView, peers network.Peers) *Bundle {
	t.Helper()
	cfg := consensusconfig.Default()
	cfg.InitialDifficulty = 1
	cfg.MinDifficulty = 1
	cfg.MaxDifficulty = 1e18
	cfg.MaxRetryAttempts = 1
	cfg.BlockInflightTimeoutSeconds = 5
	cfg.VotingPeriodBlocks = 1000
	cfg.PeriodCheckIntervalMillis = 1000
	return New(cfg, view, peers, nil, nil)
}

// The whole pipeline, end to end: submit a transaction, template around
// it, mine the template, submit the mined block, and see the mempool
// drained as a result (spec §2's data-flow summary).
func TestBundleEndToEndBlockPipeline(t *testing.T) {
	view := newFakeView()
	prevTxID := hash.Sum256([]byte("shared-input"))
	view.utxos[wire.Outpoint{TxID: prevTxID, Index: 0}] = &wire.UTXO{TxID: prevTxID, OutputIndex: 0, Address: "addr0", Amount: big.NewInt(10000)}

	b := newTestBundle(t, view, &fakePeers{count: 5, validators: []string{"v1"}})
	require.NoError(t, b.Start(context.Background()))
	defer b.Dispose()

	tx := &wire.Transaction{
		ID:      "tx1",
		Version: 1,
		Type:    wire.TxStandard,
		Inputs: []*wire.TxInput{
			{PrevTxID: prevTxID, OutputIndex: 0, Script: []byte("p2pkh-script"), Signature: []byte("sig")},
		},
		Outputs:   []*wire.TxOutput{{Address: "addr1", Amount: big.NewInt(1000), Script: []byte("p2pkh-out")}},
		Fee:       big.NewInt(500),
		Timestamp: time.Now(),
		Signature: []byte("tx-sig"),
	}
	require.NoError(t, b.SubmitTransaction(context.Background(), tx))

	tmpl, err := b.GetBlockTemplate(context.Background(), "miner1")
	require.NoError(t, err)
	require.Len(t, tmpl.Transactions, 2, "expected coinbase plus the submitted transaction")

	block := &wire.Block{
		Header: wire.BlockHeader{
			Version:      uint32(tmpl.Version),
			Height:       tmpl.Height,
			PreviousHash: tmpl.PreviousHash,
			MerkleRoot:   tmpl.MerkleRoot,
			Timestamp:    tmpl.Timestamp,
			Difficulty:   tmpl.Difficulty,
			Target:       tmpl.Target,
		},
		Transactions: tmpl.Transactions,
	}

	mined, err := b.MineBlock(context.Background(), block)
	require.NoError(t, err)

	accepted, err := b.SubmitBlock(context.Background(), mined)
	require.NoError(t, err)
	assert.True(t, accepted)

	info := b.GetMiningInfo(context.Background())
	assert.Equal(t, 0, info.Mempool.Pending, "submitted block's transactions should be evicted from the mempool")
}

func TestBundleHandleChainForkAndDispose(t *testing.T) {
	view := newFakeView()
	view.height = 10
	b := newTestBundle(t, view, &fakePeers{count: 5, validators: []string{"v1"}})
	require.NoError(t, b.Start(context.Background()))

	selected, err := b.HandleChainFork(context.Background(), "old-chain", "new-chain", 5, []string{"v1"})
	require.NoError(t, err)
	assert.Contains(t, []string{"old-chain", "new-chain"}, selected)

	ok, _ := b.HealthCheck(context.Background())
	assert.True(t, ok)

	b.Dispose()

	_, err = b.handle.GetExpectedValidators(context.Background())
	require.Error(t, err)
	code, _ := consensuserrors.CodeOf(err)
	assert.Equal(t, consensuserrors.CodeInvariantViolated, code)

	// Dispose must be idempotent.
	assert.NotPanics(t, func() { b.Dispose() })
}
