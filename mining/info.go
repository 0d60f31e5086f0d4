package mining

import (
	"context"
	"math"
	"time"

	"github.com/h3tag-core/consensus/mempool"
)

// MiningInfo is the DTO returned by GetMiningInfo (spec §4.2
// get_mining_info).
type MiningInfo struct {
	PowEnabled      bool
	Mining          bool
	HashRate        float64
	Difficulty      float64
	NetworkHashRate float64
	BlockHeight     uint64
	LastBlockTime   time.Time
	Workers         WorkerInfo
	Hardware        HardwareInfo
	Mempool         MempoolSummary
	Performance     PerformanceInfo
	Network         NetworkInfo
}

// WorkerInfo reports the nonce-search worker pool's occupancy.
type WorkerInfo struct {
	Total  int
	Active int
	Idle   int
}

// HardwareInfo reports the mining hardware the engine believes it has
// available, including whether the GPU breaker (spec §4.2) is open.
type HardwareInfo struct {
	Gpu       bool
	GpuStatus string
	CpuThreads int
}

// MempoolSummary is the subset of mempool state GetMiningInfo surfaces.
type MempoolSummary struct {
	Pending int
	Size    int
}

// PerformanceInfo reports the engine's recent mining performance.
type PerformanceInfo struct {
	AvgBlockTime float64
	SuccessRate  float64
	CacheHitRate float64
}

// NetworkInfo reports network-wide mining participation, as estimated
// from local observations (spec §4.2: no peer-to-peer gossip in this
// module).
type NetworkInfo struct {
	ActiveMiners      int
	ParticipationRate float64
	TargetBlockTime   int64
}

// GetMiningInfo reports the engine's operational state (spec §4.2
// get_mining_info), grounded on the teacher's getmininginfo RPC handler
// shape (rpcserver in the wider daglabs-btcd tree) adapted to this
// module's single-engine, no-RPC-layer design.
func (e *Engine) GetMiningInfo(ctx context.Context, pool *mempool.Pool) MiningInfo {
	e.mu.Lock()
	mining := e.mining
	hashesTried := e.hashesTried
	lastBlockAt := e.lastBlockAt
	successCount := e.successCount
	attemptCount := e.attemptCount
	e.mu.Unlock()

	height, err := e.view.CurrentHeight(ctx)
	if err != nil {
		height = 0
	}
	tip, err := e.view.BlockByHeight(ctx, height)
	difficulty := e.cfg.InitialDifficulty
	if err == nil && tip != nil {
		difficulty = tip.Header.Difficulty
	}

	var elapsed float64
	if !lastBlockAt.IsZero() {
		elapsed = time.Since(lastBlockAt).Seconds()
	}
	hashRate := 0.0
	if elapsed > 0 {
		hashRate = float64(hashesTried) / elapsed
	}

	successRate := 1.0
	if attemptCount > 0 {
		successRate = float64(successCount) / float64(attemptCount)
	}

	cacheHitRate := 0.0
	if n := e.solutions.Len(); n > 0 && attemptCount > 0 {
		cacheHitRate = float64(n) / float64(attemptCount)
	}

	gpuStatus := "closed"
	if e.gpuBreaker.Open(time.Now()) {
		gpuStatus = "open"
	}

	info := MiningInfo{
		PowEnabled:      true,
		Mining:          mining,
		HashRate:        hashRate,
		Difficulty:      difficulty,
		NetworkHashRate: e.GetNetworkHashPS(ctx, 120, -1),
		BlockHeight:     height,
		LastBlockTime:   lastBlockAt,
		Workers: WorkerInfo{
			Total:  workerCountFor(e.cfg.MaxBlocksInFlight),
			Active: e.inflightCount(),
			Idle:   workerCountFor(e.cfg.MaxBlocksInFlight) - e.inflightCount(),
		},
		Hardware: HardwareInfo{
			Gpu:        false,
			GpuStatus:  gpuStatus,
			CpuThreads: workerCountFor(e.cfg.MaxBlocksInFlight),
		},
		Performance: PerformanceInfo{
			AvgBlockTime: float64(e.cfg.TargetBlockTimeSeconds),
			SuccessRate:  successRate,
			CacheHitRate: cacheHitRate,
		},
		Network: NetworkInfo{
			ActiveMiners:      1,
			ParticipationRate: 1.0,
			TargetBlockTime:   e.cfg.TargetBlockTimeSeconds,
		},
	}

	if pool != nil {
		mempoolInfo := pool.GetMempoolInfo(ctx)
		info.Mempool = MempoolSummary{Pending: mempoolInfo.Size, Size: mempoolInfo.Bytes}
	}

	return info
}

func (e *Engine) inflightCount() int {
	e.inflight.mu.Lock()
	defer e.inflight.mu.Unlock()
	return len(e.inflight.entries)
}

// GetNetworkHashPS estimates the network's aggregate hash rate from the
// last blocks blocks' difficulty and spacing (spec §4.2
// get_network_hash_ps): work per block is difficulty * 2^32, divided by
// the elapsed wall-clock time across the window. If fewer than two
// blocks exist in the window it falls back to a single-block estimate
// from the current difficulty and target block time.
func (e *Engine) GetNetworkHashPS(ctx context.Context, blocks int, height int64) float64 {
	if blocks <= 0 {
		blocks = 120
	}
	tipHeight, err := e.view.CurrentHeight(ctx)
	if err != nil {
		return 0
	}
	if height >= 0 {
		tipHeight = uint64(height)
	}

	tip, err := e.view.BlockByHeight(ctx, tipHeight)
	if err != nil || tip == nil {
		return 0
	}

	windowStart := uint64(0)
	if tipHeight > uint64(blocks) {
		windowStart = tipHeight - uint64(blocks)
	}
	if windowStart == tipHeight {
		return estimateFromDifficulty(tip.Header.Difficulty, e.cfg.TargetBlockTimeSeconds)
	}

	first, err := e.view.BlockByHeight(ctx, windowStart)
	if err != nil || first == nil {
		return estimateFromDifficulty(tip.Header.Difficulty, e.cfg.TargetBlockTimeSeconds)
	}

	elapsed := int64(tip.Header.Timestamp) - int64(first.Header.Timestamp)
	if elapsed <= 0 {
		return estimateFromDifficulty(tip.Header.Difficulty, e.cfg.TargetBlockTimeSeconds)
	}

	totalWork := 0.0
	for h := windowStart; h <= tipHeight; h++ {
		block, err := e.view.BlockByHeight(ctx, h)
		if err != nil || block == nil {
			continue
		}
		totalWork += block.Header.Difficulty * math.Pow(2, 32)
	}
	return totalWork / float64(elapsed)
}

func estimateFromDifficulty(difficulty float64, targetBlockTime int64) float64 {
	if targetBlockTime <= 0 {
		targetBlockTime = 1
	}
	return difficulty * math.Pow(2, 32) / float64(targetBlockTime)
}
