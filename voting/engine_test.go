package voting

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/wire"
)

type fakeView struct {
	height uint64
}

func (f *fakeView) CurrentHeight(ctx context.Context) (uint64, error) { return f.height, nil }
func (f *fakeView) BlockByHeight(ctx context.Context, height uint64) (*wire.Block, error) {
	return nil, nil
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
	return big.NewInt(0), nil
}
func (f *fakeView) MaxTransactionSize(ctx context.Context) (int, error) { return 1 << 20, nil }
func (f *fakeView) MedianTimePast(ctx context.Context, height uint64) (int64, error) {
	return time.Now().Unix(), nil
}
func (f *fakeView) AccountAge(ctx context.Context, address string) (uint64, error) { return 0, nil }
func (f *fakeView) PoWContribution(ctx context.Context, address string) (float64, error) {
	return 0, nil
}

type fakePeers struct {
	count      int
	validators []string
	sync       network.SyncState
}

func (f *fakePeers) PeerCount(ctx context.Context) (int, error) { return f.count, nil }
func (f *fakePeers) ActiveValidators(ctx context.Context) ([]string, error) {
	return f.validators, nil
}
func (f *fakePeers) SyncState(ctx context.Context) (network.SyncState, error) { return f.sync, nil }

func newTestEngine(t *testing.T, view *fakeView, peers network.Peers) *Engine {
	t.Helper()
	cfg := consensusconfig.Default()
	cfg.VotingPeriodBlocks = 100
	cfg.VotingPeriodMillis = int64(time.Hour / time.Millisecond)
	cfg.PeriodCheckIntervalMillis = 50
	cfg.MaxForkDepth = 10
	cfg.MinPeerCount = 2
	cfg.NetworkBreakerFailureThreshold = 2
	return New(cfg, view, peers, nil, audit.NopSink{})
}

func voteFor(voter string, height uint64, amount int64, approve bool) *wire.Vote {
	return &wire.Vote{
		VoteID:         voter + "-vote",
		VoterAddress:   voter,
		VoterPublicKey: []byte("pub-" + voter),
		Height:         height,
		Timestamp:      time.Now(),
		Signature:      []byte("sig"),
		Approve:        approve,
		ChainVoteData:  wire.ChainVoteData{Amount: big.NewInt(amount)},
	}
}

// Property 4: quadratic power is floor(sqrt(amount)), with no float
// truncation ceiling.
func TestQuadraticPowerIsIntegerSqrt(t *testing.T) {
	assert.Equal(t, big.NewInt(10), QuadraticPower(big.NewInt(100)))
	assert.Equal(t, big.NewInt(0), QuadraticPower(big.NewInt(0)))
	assert.Equal(t, big.NewInt(0), QuadraticPower(nil))

	huge := new(big.Int).Exp(big.NewInt(2), big.NewInt(100), nil) // far beyond 2^53
	power := QuadraticPower(huge)
	assert.True(t, power.Sign() > 0, "expected a positive integer sqrt for a value beyond the float64 mantissa")
}

// submit_vote admits a well-formed ballot into the active period and
// computes its quadratic weight.
func TestSubmitVoteAdmitsWellFormedBallot(t *testing.T) {
	view := &fakeView{height: 10}
	e := newTestEngine(t, view, &fakePeers{})
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	vote := voteFor("validator-1", 10, 100, true)
	require.NoError(t, e.SubmitVote(context.Background(), vote))
	assert.Equal(t, big.NewInt(10), vote.VotingPower)
}

// Duplicate votes from the same voter in one period are rejected.
func TestSubmitVoteRejectsDuplicateVoter(t *testing.T) {
	view := &fakeView{height: 10}
	e := newTestEngine(t, view, &fakePeers{})
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	require.NoError(t, e.SubmitVote(context.Background(), voteFor("validator-1", 10, 100, true)))
	err := e.SubmitVote(context.Background(), voteFor("validator-1", 10, 50, true))
	require.Error(t, err)
	code, _ := consensuserrors.CodeOf(err)
	assert.Equal(t, consensuserrors.CodeDuplicateVote, code)
}

// A vote outside the active period's height window is rejected.
func TestSubmitVoteRejectsOutsideHeightWindow(t *testing.T) {
	view := &fakeView{height: 10}
	e := newTestEngine(t, view, &fakePeers{})
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	vote := voteFor("validator-1", 10_000, 100, true)
	err := e.SubmitVote(context.Background(), vote)
	require.Error(t, err)
	code, _ := consensuserrors.CodeOf(err)
	assert.Equal(t, consensuserrors.CodeOutsidePeriodWindow, code)
}

// S6: an expired period transitions to completed and a new one opens.
func TestCheckPeriodTransitionClosesExpiredPeriod(t *testing.T) {
	view := &fakeView{height: 10}
	e := newTestEngine(t, view, &fakePeers{})
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	e.periodMu.Lock()
	firstID := e.currentPeriod.PeriodID
	e.currentPeriod.EndTime = time.Now().Add(-time.Second)
	e.periodMu.Unlock()

	e.checkPeriodTransition(context.Background())

	e.periodMu.RLock()
	defer e.periodMu.RUnlock()
	require.NotNil(t, e.currentPeriod)
	assert.NotEqual(t, firstID, e.currentPeriod.PeriodID)
	assert.Equal(t, wire.PeriodActive, e.currentPeriod.Status)
	completed := e.history[firstID]
	require.NotNil(t, completed)
	assert.Equal(t, wire.PeriodCompleted, completed.Status)
}

// Property 9 / S4: the quadratic tally picks the chain with the larger
// floor(sqrt(amount)), ties going to the old chain.
func TestSelectChainQuadraticTally(t *testing.T) {
	selected, powers := selectChain("old-chain", "new-chain", big.NewInt(10000), big.NewInt(2500))
	assert.Equal(t, "new-chain", selected)
	assert.Equal(t, big.NewInt(100), powers["new-chain"])
	assert.Equal(t, big.NewInt(50), powers["old-chain"])

	tie, _ := selectChain("old-chain", "new-chain", big.NewInt(100), big.NewInt(100))
	assert.Equal(t, "old-chain", tie, "ties must favour the old chain")
}

// Fork resolution requires network stability; an unhealthy
// network (too few peers) rejects the fork attempt outright.
func TestHandleChainForkRejectsUnstableNetwork(t *testing.T) {
	view := &fakeView{height: 10}
	peers := &fakePeers{count: 0, sync: network.Synced}
	e := newTestEngine(t, view, peers)
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	_, err := e.HandleChainFork(context.Background(), "old-chain", "new-chain", 5, []string{"v1"})
	require.Error(t, err)
	code, _ := consensuserrors.CodeOf(err)
	assert.Equal(t, consensuserrors.CodeNetworkUnhealthy, code)
}

// A fork deeper than MaxForkDepth is rejected even with a healthy
// network.
func TestHandleChainForkRejectsExcessiveDepth(t *testing.T) {
	view := &fakeView{height: 100}
	peers := &fakePeers{count: 5, validators: []string{"v1", "v2", "v3"}, sync: network.Synced}
	e := newTestEngine(t, view, peers)
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	_, err := e.HandleChainFork(context.Background(), "old-chain", "new-chain", 0, []string{"v1"})
	require.Error(t, err)
	code, _ := consensuserrors.CodeOf(err)
	assert.Equal(t, consensuserrors.CodeForkTooDeep, code)
}

func TestGetParticipationRate(t *testing.T) {
	view := &fakeView{height: 10}
	peers := &fakePeers{validators: []string{"v1", "v2"}}
	e := newTestEngine(t, view, peers)
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	require.NoError(t, e.SubmitVote(context.Background(), voteFor("v1", 10, 100, true)))
	rate := e.GetParticipationRate(context.Background())
	assert.Equal(t, 0.5, rate)
}

func TestHealthCheckReportsBreakerState(t *testing.T) {
	view := &fakeView{height: 10}
	e := newTestEngine(t, view, &fakePeers{})
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Dispose()

	ok, _ := e.HealthCheck(context.Background())
	assert.True(t, ok)
}
