package mempool

import (
	"context"
	"time"

	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/wire"
)

// validateByType dispatches to the type-specific validation spec §4.1
// step 6 describes: QUADRATIC_VOTE eligibility, POW_REWARD maturity, and
// a pass-through default for everything else.
func (p *Pool) validateByType(ctx context.Context, tx *wire.Transaction) error {
	switch tx.Type {
	case wire.TxQuadraticVote:
		return p.checkVoteEligibility(ctx, tx)
	case wire.TxPowReward:
		return p.checkPowRewardMaturity(ctx, tx)
	default:
		return nil
	}
}

// checkPowRewardMaturity rejects a POW_REWARD spend unless the coinbase
// maturity rule is satisfied: current_height >= MIN_BLOCKS_MINED (spec §4.1
// step 6, scenario S5).
func (p *Pool) checkPowRewardMaturity(ctx context.Context, tx *wire.Transaction) error {
	if p.view == nil {
		return nil
	}
	height, err := p.view.CurrentHeight(ctx)
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	if height < p.cfg.MinBlocksMined {
		return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid,
			"tx %s: POW_REWARD spend requires height >= %d, current %d", tx.ID, p.cfg.MinBlocksMined, height)
	}
	miner := voterAddressOf(tx)
	contribution, err := p.view.PoWContribution(ctx, miner)
	if err != nil {
		return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
	}
	if contribution < p.cfg.MinPoWContribution {
		return consensuserrors.New(consensuserrors.CodeCoinbaseInvalid,
			"tx %s: insufficient PoW contribution %v, need %v", tx.ID, contribution, p.cfg.MinPoWContribution)
	}
	return nil
}

// checkVoteEligibility implements the vote-eligibility gate (spec §4.1):
// account age, PoW contribution, reputation, cooldown, and rate-limit
// window must all pass.
func (p *Pool) checkVoteEligibility(ctx context.Context, tx *wire.Transaction) error {
	addr := voterAddressOf(tx)
	if addr == "" {
		return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator, "tx %s: no voter address", tx.ID)
	}

	if p.view != nil {
		age, err := p.view.AccountAge(ctx, addr)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if age < p.cfg.MinAccountAgeBlocks {
			return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator,
				"voter %s account age %d below minimum %d", addr, age, p.cfg.MinAccountAgeBlocks)
		}

		contribution, err := p.view.PoWContribution(ctx, addr)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if contribution < p.cfg.MinPoWContribution {
			return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator,
				"voter %s PoW contribution %v below minimum %v", addr, contribution, p.cfg.MinPoWContribution)
		}

		validator, err := p.view.Validator(ctx, addr)
		if err != nil {
			return consensuserrors.Wrap(consensuserrors.CodeStorageUnavailable, err)
		}
		if validator != nil && validator.Reputation < p.cfg.ReputationThreshold {
			return consensuserrors.New(consensuserrors.CodeUnauthorizedValidator,
				"voter %s reputation %v below threshold %v", addr, validator.Reputation, p.cfg.ReputationThreshold)
		}

		height, err := p.view.CurrentHeight(ctx)
		if err == nil {
			p.voteTracker.setHeight(height)
			lastVoteHeight := p.voteTracker.lastVoteHeight(addr)
			if lastVoteHeight > 0 && height-lastVoteHeight < p.cfg.CooldownBlocks {
				return consensuserrors.New(consensuserrors.CodeRateLimited,
					"voter %s in cooldown: %d blocks since last vote, need %d", addr, height-lastVoteHeight, p.cfg.CooldownBlocks)
			}
		}
	}

	window := time.Duration(p.cfg.RateLimitWindowSeconds) * time.Second
	if p.voteTracker.votesInWindow(addr, time.Now(), window) >= p.cfg.MaxVotesPerWindow {
		return consensuserrors.New(consensuserrors.CodeRateLimited,
			"voter %s exceeded %d votes in the rate-limit window", addr, p.cfg.MaxVotesPerWindow)
	}

	return nil
}

// voterAddressOf extracts the address a transaction acts on behalf of:
// the first output's address for QUADRATIC_VOTE/POW_REWARD transactions,
// which this mempool treats as self-addressed claims.
func voterAddressOf(tx *wire.Transaction) string {
	if len(tx.Outputs) == 0 {
		return ""
	}
	return tx.Outputs[0].Address
}
