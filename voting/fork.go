package voting

import (
	"context"
	"math/big"
	"time"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/network"
	"github.com/h3tag-core/consensus/wire"
)

// CollectVotes tallies a chain_selection period's votes into approved and
// rejected staked-amount sums (spec §4.3 handle_chain_fork: "collects
// votes from participating validators"), the input the quadratic tally
// is computed from.
func CollectVotes(period *wire.VotingPeriod) (approved, rejected *big.Int) {
	approved = big.NewInt(0)
	rejected = big.NewInt(0)
	for _, vote := range period.Votes {
		amount := vote.ChainVoteData.Amount
		if amount == nil {
			continue
		}
		if vote.Approve {
			approved.Add(approved, amount)
		} else {
			rejected.Add(rejected, amount)
		}
	}
	return approved, rejected
}

// selectChain implements spec §4.3's quadratic tie-break directly
// (property 9 / S4): power(new) = floor(sqrt(approved)),
// power(old) = floor(sqrt(rejected)); ties go to the old chain.
func selectChain(oldChainID, newChainID string, approved, rejected *big.Int) (string, map[string]*big.Int) {
	newPower := QuadraticPower(approved)
	oldPower := QuadraticPower(rejected)
	powers := map[string]*big.Int{oldChainID: oldPower, newChainID: newPower}
	if newPower.Cmp(oldPower) > 0 {
		return newChainID, powers
	}
	return oldChainID, powers
}

// checkNetworkStability requires peer count >= MinPeerCount and
// sync_state == SYNCED, with a sticky failure counter that opens a
// circuit breaker after NetworkBreakerFailureThreshold consecutive
// failures (spec §4.3 handle_chain_fork precondition).
func (e *Engine) checkNetworkStability(ctx context.Context) error {
	if e.networkBreaker.Open(time.Now()) {
		return consensuserrors.New(consensuserrors.CodeNetworkUnhealthy, "voting: network circuit breaker open")
	}

	stable := false
	if e.peers != nil {
		count, err := e.peers.PeerCount(ctx)
		sync, syncErr := e.peers.SyncState(ctx)
		stable = err == nil && syncErr == nil && count >= e.cfg.MinPeerCount && sync == network.Synced
	}

	if !stable {
		e.networkBreaker.RecordFailure(time.Now())
		return consensuserrors.New(consensuserrors.CodeNetworkUnhealthy, "voting: network not stable for fork resolution")
	}
	e.networkBreaker.RecordSuccess()
	return nil
}

// HandleChainFork resolves a chain fork by quadratic vote tally (spec
// §4.3): network stability, fork-depth gate, a dedicated chain_selection
// period, vote collection, and the quadratic tie-break. The final
// decision is recorded on the period as fork_decision.
func (e *Engine) HandleChainFork(ctx context.Context, oldChainID, newChainID string, forkHeight uint64, validators []string) (string, error) {
	if err := e.checkNetworkStability(ctx); err != nil {
		return "", err
	}

	height, err := e.view.CurrentHeight(ctx)
	if err != nil {
		return "", err
	}
	if height < forkHeight || height-forkHeight > e.cfg.MaxForkDepth {
		return "", consensuserrors.New(consensuserrors.CodeForkTooDeep, "voting: fork depth %d exceeds max %d", height-forkHeight, e.cfg.MaxForkDepth)
	}

	e.voteMu.Lock()
	period, _, err := e.updateVotingState(ctx, func(_ *wire.VotingPeriod) (*wire.VotingPeriod, bool) {
		p := e.newPeriodLocked(wire.PeriodChainSelection, height)
		p.CompetingChains = []string{oldChainID, newChainID}
		return p, true
	})
	e.voteMu.Unlock()
	if err != nil {
		return "", err
	}

	approved, rejected := CollectVotes(period)
	selected, powers := selectChain(oldChainID, newChainID, approved, rejected)

	e.periodMu.Lock()
	period.ForkDecision = &wire.ForkDecision{
		Selected:   selected,
		Powers:     powers,
		DecidedAt:  time.Now(),
		ForkHeight: forkHeight,
	}
	persistErr := e.persistPeriodLocked(ctx, period)
	e.periodMu.Unlock()
	if persistErr != nil {
		return "", persistErr
	}

	e.sink.LogEvent(audit.Event{
		Type:     "chain_fork_resolved",
		Severity: audit.SeverityHigh,
		Source:   "voting",
		Details: map[string]interface{}{
			"old_chain_id": oldChainID,
			"new_chain_id": newChainID,
			"selected":     selected,
			"fork_height":  forkHeight,
			"validators":   validators,
		},
		Timestamp: time.Now(),
	})
	return selected, nil
}
