package voting

import (
	"context"
	"time"

	"github.com/h3tag-core/consensus/wire"
)

// VotingSchedule reports the boundaries of the current and next voting
// periods (spec §4.3 get_voting_schedule).
type VotingSchedule struct {
	CurrentPeriodID  uint64
	CurrentType      string
	StartBlock       uint64
	EndBlock         uint64
	StartTime        time.Time
	EndTime          time.Time
	NextVotingHeight uint64
}

// GetVotingSchedule reports the active period's window and the next
// scheduled transition height.
func (e *Engine) GetVotingSchedule(ctx context.Context) VotingSchedule {
	e.periodMu.RLock()
	defer e.periodMu.RUnlock()

	sched := VotingSchedule{NextVotingHeight: e.nextVotingHeight}
	if e.currentPeriod == nil {
		return sched
	}
	sched.CurrentPeriodID = e.currentPeriod.PeriodID
	sched.CurrentType = string(e.currentPeriod.Type)
	sched.StartBlock = e.currentPeriod.StartBlock
	sched.EndBlock = e.currentPeriod.EndBlock
	sched.StartTime = e.currentPeriod.StartTime
	sched.EndTime = e.currentPeriod.EndTime
	return sched
}

// GetParticipationRate reports the fraction of expected validators who
// cast a vote in the current period, recomputed on demand against the
// network collaborator's active validator list (spec §4.3
// get_participation_rate).
func (e *Engine) GetParticipationRate(ctx context.Context) float64 {
	e.periodMu.RLock()
	period := e.currentPeriod
	e.periodMu.RUnlock()
	if period == nil {
		return 0
	}

	voted := len(period.Votes)
	if e.peers == nil {
		e.participationRateMu.RLock()
		defer e.participationRateMu.RUnlock()
		return e.participationRate
	}

	validators, err := e.peers.ActiveValidators(ctx)
	if err != nil || len(validators) == 0 {
		return 0
	}

	rate := float64(voted) / float64(len(validators))
	e.participationRateMu.Lock()
	e.participationRate = rate
	e.participationRateMu.Unlock()
	return rate
}

// HealthCheck reports whether the voting engine is operating normally:
// a non-nil current period in the active state and a closed network
// circuit breaker (spec §6 health_check). The participation rate is not
// consulted.
func (e *Engine) HealthCheck(ctx context.Context) (bool, string) {
	e.periodMu.RLock()
	period := e.currentPeriod
	e.periodMu.RUnlock()

	if period == nil {
		return false, "no current voting period"
	}
	if period.Status != wire.PeriodActive {
		return false, "current voting period is not active"
	}
	if e.networkBreaker.Open(time.Now()) {
		return false, "network circuit breaker open"
	}
	return true, "ok"
}
