package mempool

import (
	"context"
	"math"
	"time"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/wire"
)

// validatorState is the mempool's own bookkeeping for a validator's
// missed-duty history (spec §4.1 "Validator-absence policy"). It rides
// alongside, not inside, wire.Validator: ConsecutiveMisses there reflects
// the last-known snapshot, while this struct tracks the compounding
// penalty and last-seen timestamp the mempool updates on every report.
type validatorState struct {
	consecutiveMisses int
	penalty           float64
	lastMissAt        time.Time
	suspended         bool
}

// ReportValidatorAbsence records a missed duty for addr, compounding the
// penalty per consecutive miss and flagging the validator for suspension
// once MaxConsecutiveMisses is reached. Failure is recorded via the audit
// sink and never propagated to the admitting client (spec §4.1 "Failure
// semantics").
func (p *Pool) ReportValidatorAbsence(ctx context.Context, addr string) {
	p.mu.Lock()
	st, ok := p.validators[addr]
	if !ok {
		st = &validatorState{}
		p.validators[addr] = st
	}
	st.consecutiveMisses++
	st.lastMissAt = time.Now()
	st.penalty = p.cfg.BasePenalty * math.Pow(p.cfg.PenaltyMultiplier, float64(st.consecutiveMisses-1))
	if st.consecutiveMisses >= p.cfg.MaxConsecutiveMisses {
		st.suspended = true
	}
	suspended := st.suspended
	penalty := st.penalty
	misses := st.consecutiveMisses
	p.mu.Unlock()

	p.sink.LogEvent(audit.Event{
		Type:     "validator_absence",
		Severity: audit.SeverityWarn,
		Source:   "mempool",
		Details: map[string]interface{}{
			"address":            addr,
			"consecutive_misses": misses,
			"penalty":            penalty,
			"suspended":          suspended,
		},
		Timestamp: time.Now(),
	})

	if p.view == nil {
		return
	}
	backup, err := p.SelectBackupValidator(ctx, addr)
	if err != nil || backup == nil {
		return
	}
	p.sink.LogEvent(audit.Event{
		Type:     "validator_absence",
		Severity: audit.SeverityInfo,
		Source:   "mempool",
		Details: map[string]interface{}{
			"address":          addr,
			"backup_validator": backup.Address,
			"backup_score":     backup.BackupScore(),
		},
		Timestamp: time.Now(),
	})
}

// ReportValidatorParticipation resets addr's consecutive-miss counter,
// the participation side of the validator-absence policy.
func (p *Pool) ReportValidatorParticipation(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.validators[addr]; ok {
		st.consecutiveMisses = 0
		st.penalty = 0
		st.suspended = false
	}
}

// SelectBackupValidator ranks the validator set by wire.Validator.BackupScore
// and returns the highest-scoring eligible candidate other than absent, per
// spec §4.1: ineligible if already handling >= 3 active tasks, or
// reputation < MinBackupReputation, or uptime < MinBackupUptime.
func (p *Pool) SelectBackupValidator(ctx context.Context, absent string) (*wire.Validator, error) {
	validators, err := p.view.ValidatorSet(ctx)
	if err != nil {
		return nil, err
	}
	var best *wire.Validator
	var bestScore float64
	for _, v := range validators {
		if v == nil || v.Address == absent || !v.IsActive || v.IsSuspended {
			continue
		}
		if v.ActiveTaskCount >= 3 {
			continue
		}
		if v.Reputation < p.cfg.MinBackupReputation {
			continue
		}
		if v.Uptime < p.cfg.MinBackupUptime {
			continue
		}
		score := v.BackupScore()
		if best == nil || score > bestScore {
			best = v
			bestScore = score
		}
	}
	return best, nil
}

// GetExpectedValidators returns the active, non-suspended validator
// addresses from the ledger view, the set the PoW engine's block
// validation checks its quorum fraction against.
func (p *Pool) GetExpectedValidators(ctx context.Context) ([]string, error) {
	if p.view == nil {
		return nil, nil
	}
	validators, err := p.view.ValidatorSet(ctx)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(validators))
	for _, v := range validators {
		if v != nil && v.IsActive && !v.IsSuspended {
			addrs = append(addrs, v.Address)
		}
	}
	return addrs, nil
}
