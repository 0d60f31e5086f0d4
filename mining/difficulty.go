package mining

import (
	"context"
	"math/big"

	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

// maxTargetBig is the all-ones 256-bit target difficulty 1 maps to, the
// same role the teacher's dagParams.PowMax plays in checkProofOfWork
// (blockdag/validate.go): the upper difficulty bound a block hash must
// beat.
var maxTargetBig = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TargetFromDifficulty converts a difficulty figure into the 256-bit
// target a block hash must not exceed: target = MAX_TARGET / difficulty.
func TargetFromDifficulty(difficulty float64) hash.Hash {
	if difficulty <= 0 {
		difficulty = 1
	}
	scaled := new(big.Int).Set(maxTargetBig)
	denominator := big.NewInt(int64(difficulty * 1e8))
	if denominator.Sign() == 0 {
		denominator = big.NewInt(1)
	}
	scaled.Mul(scaled, big.NewInt(1e8))
	scaled.Div(scaled, denominator)
	return bigIntToHash(scaled)
}

func bigIntToHash(v *big.Int) hash.Hash {
	var h hash.Hash
	b := v.Bytes()
	if len(b) > hash.Size {
		b = b[len(b)-hash.Size:]
	}
	copy(h[hash.Size-len(b):], b)
	return h
}

// CalculateNextDifficulty implements spec §4.2's retarget rule: every
// AdjustmentInterval blocks, ratio = expected_time / actual_time * 0.75
// (conservative factor), clamped to [0.25, 4.0]; the resulting difficulty
// is clamped at or above InitialDifficulty/4 and within [MinDifficulty,
// MaxDifficulty]. Between retarget boundaries the previous block's
// difficulty carries forward unchanged, grounded on the teacher's
// checkProofOfWork bounds check (blockdag/validate.go).
func (e *Engine) CalculateNextDifficulty(ctx context.Context, lastBlock *wire.Block) (float64, error) {
	if lastBlock == nil {
		return e.cfg.InitialDifficulty, nil
	}
	nextHeight := lastBlock.Header.Height + 1
	if e.cfg.AdjustmentInterval == 0 || nextHeight%e.cfg.AdjustmentInterval != 0 {
		return clampDifficulty(lastBlock.Header.Difficulty, e.cfg), nil
	}

	windowStart := uint64(0)
	if nextHeight > e.cfg.AdjustmentInterval {
		windowStart = nextHeight - e.cfg.AdjustmentInterval
	}
	firstBlock, err := e.view.BlockByHeight(ctx, windowStart)
	if err != nil {
		return 0, err
	}
	if firstBlock == nil {
		return clampDifficulty(lastBlock.Header.Difficulty, e.cfg), nil
	}

	actualTime := int64(lastBlock.Header.Timestamp) - int64(firstBlock.Header.Timestamp)
	if actualTime <= 0 {
		actualTime = 1
	}
	expectedTime := int64(e.cfg.AdjustmentInterval) * e.cfg.TargetBlockTimeSeconds

	ratio := (float64(expectedTime) / float64(actualTime)) * 0.75
	if ratio < 0.25 {
		ratio = 0.25
	}
	if ratio > 4.0 {
		ratio = 4.0
	}

	next := lastBlock.Header.Difficulty * ratio
	floor := e.cfg.InitialDifficulty / 4
	if next < floor {
		next = floor
	}
	return clampDifficulty(next, e.cfg), nil
}

func clampDifficulty(difficulty float64, cfg *consensusconfig.Config) float64 {
	if difficulty < cfg.MinDifficulty {
		return cfg.MinDifficulty
	}
	if difficulty > cfg.MaxDifficulty {
		return cfg.MaxDifficulty
	}
	return difficulty
}

// ValidateWork reports whether SHA3-256(data) composed with the target
// derived from difficulty satisfies hash <= target (spec §4.2
// validate_work).
func ValidateWork(data []byte, difficulty float64) bool {
	h := hash.Sum256(data)
	target := TargetFromDifficulty(difficulty)
	return h.Cmp(target) <= 0
}
