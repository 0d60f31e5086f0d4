// Package consensusconfig collects every tunable named in the consensus
// core's specification into a single go-flags struct, the same way every
// cmd/*/config.go in this lineage turns its CLI surface into one struct.
package consensusconfig

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// Config holds every threshold and policy constant the mempool, PoW engine
// and voting engine read at runtime. Fields are grouped by the component
// that owns them.
type Config struct {
	// Mempool policy.
	MaxAncestors             int     `long:"max-ancestors" description:"max in-mempool ancestors per transaction" default:"25"`
	MaxDescendants           int     `long:"max-descendants" description:"max in-mempool descendants per transaction" default:"25"`
	RBFIncrement              float64 `long:"rbf-increment" description:"replace-by-fee minimum fee-rate multiplier" default:"1.1"`
	MinFeeRate                float64 `long:"min-fee-rate" description:"minimum fee per byte accepted into the mempool" default:"1"`
	HighCongestionThreshold   int     `long:"high-congestion-threshold" description:"mempool tx count above which dynamic-min-fee additionally gates admission" default:"40000"`
	MaxMempoolSize            int     `long:"max-mempool-size" description:"mempool capacity used by the dynamic fee curve" default:"50000"`
	MinBucketSize              int     `long:"min-bucket-size" description:"fee buckets smaller than this are merged into a neighbour" default:"10"`
	MempoolTimeoutSeconds      int     `long:"mempool-timeout-seconds" description:"add_transaction mutex-acquisition hard timeout" default:"30"`
	MinAccountAgeBlocks        uint64  `long:"min-account-age-blocks" description:"minimum account age for vote-tx eligibility" default:"100"`
	MinPoWContribution         float64 `long:"min-pow-contribution" description:"minimum PoW contribution score for vote-tx eligibility" default:"1"`
	ReputationThreshold        float64 `long:"reputation-threshold" description:"minimum validator reputation for vote-tx eligibility" default:"50"`
	CooldownBlocks              uint64  `long:"cooldown-blocks" description:"blocks a voter must wait between votes" default:"10"`
	MaxVotesPerWindow            int     `long:"max-votes-per-window" description:"max votes per address within the rate-limit window" default:"5"`
	RateLimitWindowSeconds       int     `long:"rate-limit-window-seconds" description:"rolling window for the per-address vote counter" default:"3600"`
	MinBlocksMined                uint64  `long:"min-blocks-mined" description:"coinbase maturity in blocks before a POW_REWARD spend is admissible" default:"100"`
	BasePenalty                    float64 `long:"base-penalty" description:"base validator-absence penalty" default:"5"`
	PenaltyMultiplier                float64 `long:"penalty-multiplier" description:"compounding multiplier applied per consecutive miss" default:"1.5"`
	MaxConsecutiveMisses               int     `long:"max-consecutive-misses" description:"consecutive misses after which a validator is flagged for suspension" default:"5"`
	MinBackupReputation                   float64 `long:"min-backup-reputation" description:"minimum reputation for backup-validator eligibility" default:"40"`
	MinBackupUptime                         float64 `long:"min-backup-uptime" description:"minimum uptime for backup-validator eligibility" default:"0.8"`
	SubmitMaxPerWindow        int     `long:"submit-max-per-window" description:"max add_transaction calls per submitter within submit-window-seconds" default:"200"`
	SubmitWindowSeconds       int     `long:"submit-window-seconds" description:"token-bucket window for add_transaction DDoS throttling" default:"60"`
	SubmitBlockSeconds        int     `long:"submit-block-seconds" description:"cool-off once a submitter exceeds submit-max-per-window" default:"300"`
	SubmitBanThreshold        int     `long:"submit-ban-threshold" description:"cool-offs after which a submitter is permanently banned" default:"5"`

	// PoW engine policy.
	MinDifficulty          float64 `long:"min-difficulty" description:"lower difficulty bound" default:"1"`
	MaxDifficulty          float64 `long:"max-difficulty" description:"upper difficulty bound" default:"1e18"`
	InitialDifficulty      float64 `long:"initial-difficulty" description:"genesis difficulty" default:"1"`
	AdjustmentInterval     uint64  `long:"adjustment-interval" description:"blocks between difficulty retargets" default:"2016"`
	TargetBlockTimeSeconds int64   `long:"target-block-time-seconds" description:"expected seconds between blocks" default:"600"`
	MaxBlocksInFlight      int     `long:"max-blocks-in-flight" description:"in-flight mining attempt capacity" default:"16"`
	BlockInflightTimeoutSeconds int `long:"block-inflight-timeout-seconds" description:"per-attempt mining timeout" default:"60"`
	MaxRetryAttempts       int     `long:"max-retry-attempts" description:"mining retry attempts before block_failed" default:"3"`
	BatchSize              uint64  `long:"batch-size" description:"nonces searched per worker batch" default:"1000000"`
	SolutionCacheSize      int     `long:"solution-cache-size" description:"max entries in the (previous_hash, merkle_root) solution cache" default:"4096"`
	SolutionCacheTTLSeconds int    `long:"solution-cache-ttl-seconds" description:"solution cache entry lifetime" default:"600"`
	GpuBreakerFailureThreshold int `long:"gpu-breaker-failure-threshold" description:"GPU failures within the window that open the circuit breaker" default:"3"`
	GpuBreakerWindowSeconds    int `long:"gpu-breaker-window-seconds" description:"window over which GPU failures are counted" default:"300"`
	GpuBreakerCooldownSeconds  int `long:"gpu-breaker-cooldown-seconds" description:"GPU circuit-breaker auto-reset cooldown" default:"300"`
	ValidateBlockTimeoutSeconds int `long:"validate-block-timeout-seconds" description:"validate_block hard timeout" default:"30"`
	MaxBlockSize int `long:"max-block-size" description:"max serialised block size in bytes" default:"4000000"`
	MaxTxSize    int `long:"max-tx-size" description:"max serialised transaction size in bytes" default:"100000"`
	MaxVoteSize  int `long:"max-vote-size" description:"max serialised vote size in bytes" default:"2000"`
	MaxInputs    int `long:"max-inputs" description:"max transaction inputs" default:"1000"`
	MaxOutputs   int `long:"max-outputs" description:"max transaction outputs" default:"1000"`
	MaxTimeDriftSeconds int64 `long:"max-time-drift-seconds" description:"max |tx.timestamp-now| accepted" default:"7200"`
	MinVersion int `long:"min-version" description:"minimum accepted block/tx version" default:"1"`
	MaxVersion int `long:"max-version" description:"maximum accepted block/tx version" default:"2"`
	QuorumFraction float64 `long:"quorum-fraction" description:"fraction of expected validators required live" default:"0.67"`

	// Voting engine policy.
	VotingPeriodBlocks     uint64 `long:"voting-period-blocks" description:"blocks per voting period" default:"2880"`
	VotingPeriodMillis     int64  `long:"voting-period-millis" description:"milliseconds per voting period" default:"86400000"`
	PeriodCheckIntervalMillis int64 `long:"period-check-interval-millis" description:"period-transition checker cadence" default:"1000"`
	MaxForkDepth           uint64 `long:"max-fork-depth" description:"max blocks between tip and fork point" default:"100"`
	MinPeerCount           int    `long:"min-peer-count" description:"minimum peers required for fork resolution" default:"3"`
	NetworkBreakerFailureThreshold int `long:"network-breaker-failure-threshold" description:"consecutive network-stability failures that open the circuit breaker" default:"3"`
	NetworkBreakerCooldownSeconds  int `long:"network-breaker-cooldown-seconds" description:"network-stability circuit-breaker auto-reset cooldown" default:"300"`
	MinParticipation       float64 `long:"min-participation" description:"minimum participation rate (not consulted by health_check)" default:"0.1"`
	VoteVerifyTimeoutSeconds int   `long:"vote-verify-timeout-seconds" description:"per-vote signature verification timeout" default:"5"`

	// Logging / storage wiring.
	LogFile    string `long:"logfile" description:"path to the primary rotating log file" default:"consensus.log"`
	ErrLogFile string `long:"errlogfile" description:"path to the error rotating log file" default:"consensus_err.log"`
	DebugLevel string `long:"debuglevel" description:"logging level, or subsys=level,subsys=level pairs" default:"info"`
}

// Default returns a Config populated purely from struct-tag defaults,
// without touching argv — used by tests and library embedders that don't
// want CLI parsing.
func Default() *Config {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default&^flags.PrintErrors)
	if _, err := parser.ParseArgs([]string{}); err != nil {
		panic(errors.Wrap(err, "consensusconfig: failed to apply defaults"))
	}
	return cfg
}

// Parse parses argv into a Config, applying struct-tag defaults first.
func Parse(argv []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, errors.Wrap(err, "consensusconfig: failed to parse arguments")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that violate the spec's own invariants
// (e.g. MIN_DIFFICULTY <= MAX_DIFFICULTY), mirroring the cross-field checks
// every cmd/*/config.go in this lineage performs after flags.Parse.
func (c *Config) Validate() error {
	if c.MinDifficulty <= 0 || c.MaxDifficulty < c.MinDifficulty {
		return errors.Errorf("difficulty bounds invalid: min=%v max=%v", c.MinDifficulty, c.MaxDifficulty)
	}
	if c.MaxAncestors <= 0 || c.MaxDescendants <= 0 {
		return errors.New("ancestry limits must be positive")
	}
	if c.RBFIncrement <= 1 {
		return errors.New("rbf-increment must be greater than 1")
	}
	if c.QuorumFraction <= 0 || c.QuorumFraction > 1 {
		return errors.New("quorum-fraction must be in (0, 1]")
	}
	return nil
}
