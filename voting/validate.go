package voting

import (
	"time"

	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

// ValidateVotes implements spec §4.2's "Validation of vote-carrying
// blocks" public operation (validate_votes(block) -> bool): the block's
// validator_merkle_root must match its carried votes, each vote's
// timestamp must be within +/-5 minutes of now and within the active
// period's window, and each voter must appear in block.Validators.
// Returns (true, nil) for an empty vote list — not every block carries
// votes.
func (e *Engine) ValidateVotes(block *wire.Block) (bool, error) {
	if len(block.Votes) == 0 {
		return true, nil
	}

	e.periodMu.RLock()
	period := e.currentPeriod
	e.periodMu.RUnlock()
	if period == nil {
		return false, consensuserrors.New(consensuserrors.CodeNoActivePeriod, "voting: no active period to validate against")
	}

	leaves := wire.VotesMerkleLeaves(votesByVoter(block.Votes))
	if !hash.VerifyMerkleRoot(block.Header.ValidatorMerkleRoot, leaves) {
		return false, consensuserrors.New(consensuserrors.CodeMerkleMismatch, "voting: validator merkle root does not match block votes")
	}

	validators := make(map[string]struct{}, len(block.Validators))
	for _, v := range block.Validators {
		validators[v] = struct{}{}
	}

	now := time.Now()
	for _, vote := range block.Votes {
		drift := now.Sub(vote.Timestamp)
		if drift < 0 {
			drift = -drift
		}
		if drift > 5*time.Minute {
			return false, consensuserrors.New(consensuserrors.CodeStructureInvalid, "voting: vote %s timestamp drift %s exceeds 5m", vote.VoteID, drift)
		}
		if _, ok := validators[vote.VoterAddress]; !ok {
			return false, consensuserrors.New(consensuserrors.CodeUnauthorizedValidator, "voting: vote %s voter %s not in block.validators", vote.VoteID, vote.VoterAddress)
		}
		if vote.Timestamp.Before(period.StartTime) || vote.Timestamp.After(period.EndTime) {
			return false, consensuserrors.New(consensuserrors.CodeOutsidePeriodWindow, "voting: vote %s timestamp outside period window", vote.VoteID)
		}
		if len(vote.Signature) == 0 {
			return false, consensuserrors.New(consensuserrors.CodeStructureInvalid, "voting: vote %s missing signature", vote.VoteID)
		}
	}
	return true, nil
}

func votesByVoter(votes []*wire.Vote) map[string]*wire.Vote {
	out := make(map[string]*wire.Vote, len(votes))
	for _, v := range votes {
		out[v.VoterAddress] = v
	}
	return out
}
