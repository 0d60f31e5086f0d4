package wire

import "time"

// ValidatorMetrics tracks the rolling performance figures the backup
// selection score (spec §4.1) and voting participation rate (spec §4.3)
// are computed from.
type ValidatorMetrics struct {
	Uptime            float64
	VoteParticipation float64
	BlockProduction   float64
}

// Validator is a participant in the validator set (spec §3).
type Validator struct {
	Address      string
	PublicKey    []byte
	LastActive   time.Time
	Reputation   float64
	IsActive     bool
	IsSuspended  bool
	IsAbsent     bool
	Uptime       float64
	Metrics      ValidatorMetrics
	ValidationData []byte

	// ConsecutiveMisses and ActiveTaskCount are mempool-owned bookkeeping
	// for the validator-absence policy (spec §4.1); they ride on the
	// Validator record because both M and P/V read and reason about them.
	ConsecutiveMisses int
	ActiveTaskCount   int
}

// BackupScore computes the backup-validator ranking score from spec §4.1:
// 0.4*reputation + 0.3*recent_performance + 0.2*uptime*100 + 0.1*(1-load)*100.
func (v *Validator) BackupScore() float64 {
	load := float64(v.ActiveTaskCount) / 3.0
	if load > 1 {
		load = 1
	}
	return 0.4*v.Reputation +
		0.3*v.Metrics.BlockProduction +
		0.2*v.Uptime*100 +
		0.1*(1-load)*100
}
