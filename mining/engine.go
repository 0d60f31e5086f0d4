package mining

import (
	"context"
	"sync"
	"time"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/cache"
	"github.com/h3tag-core/consensus/consensusconfig"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/ledger"
	"github.com/h3tag-core/consensus/util/breaker"
)

// ValidatorAbsenceReporter is the non-owning handle into the mempool the
// PoW engine reports missed validator duties through (spec §9: "a
// one-way call from P/V into M rather than a subscription").
type ValidatorAbsenceReporter interface {
	HandleValidationFailure(ctx context.Context, taskID, absentValidator string)
	GetExpectedValidators(ctx context.Context) ([]string, error)
}

// solutionKey identifies a cached nonce search result by the inputs that
// determine it (spec §4.2 "Mining strategy": "check solution cache by
// (previous_hash, merkle_root)").
type solutionKey struct {
	previousHash hash.Hash
	merkleRoot   hash.Hash
}

type solution struct {
	nonce uint64
	hash  hash.Hash
}

// Engine is the consensus core's Proof-of-Work engine (spec §2 "P").
type Engine struct {
	cfg      *consensusconfig.Config
	view     ledger.View
	txSource TxSource
	sink     audit.Sink
	absence  ValidatorAbsenceReporter

	mu           sync.Mutex
	solutions    *cache.Cache
	mining       bool
	interrupt    chan struct{}
	hashesTried  uint64
	lastBlockAt  time.Time
	successCount int
	attemptCount int

	gpuBreaker *breaker.Breaker

	inflight *inflightTable
}

// New builds an Engine.
func New(cfg *consensusconfig.Config, view ledger.View, txSource TxSource, sink audit.Sink, absence ValidatorAbsenceReporter) *Engine {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Engine{
		cfg:      cfg,
		view:     view,
		txSource: txSource,
		sink:     sink,
		absence:  absence,

		solutions: newSolutionCache(cfg, sink),

		gpuBreaker: breaker.New(
			cfg.GpuBreakerFailureThreshold,
			time.Duration(cfg.GpuBreakerWindowSeconds)*time.Second,
			time.Duration(cfg.GpuBreakerCooldownSeconds)*time.Second,
		),

		inflight: newInflightTable(cfg.MaxBlocksInFlight),
	}
}

// StartMining marks the engine as actively mining, part of the control
// surface spec §9 requires (start_mining/stop_mining/interrupt_mining/
// resume_mining/dispose).
func (e *Engine) StartMining() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mining = true
	e.interrupt = make(chan struct{})
}

// StopMining halts mining and releases the interrupt channel.
func (e *Engine) StopMining() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mining = false
	if e.interrupt != nil {
		close(e.interrupt)
		e.interrupt = nil
	}
}

// InterruptMining signals any in-progress nonce search to abandon its
// current attempt and rebuild (e.g. the mempool changed, or the block
// being mined is stale).
func (e *Engine) InterruptMining() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interrupt != nil {
		close(e.interrupt)
		e.interrupt = make(chan struct{})
	}
}

// ResumeMining is the idempotent counterpart to InterruptMining: it
// ensures an interrupt channel exists without tearing down one already
// in use.
func (e *Engine) ResumeMining() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interrupt == nil {
		e.interrupt = make(chan struct{})
	}
}

// Dispose idempotently stops mining, clears caches and in-flight state
// (spec §9).
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mining = false
	if e.interrupt != nil {
		close(e.interrupt)
		e.interrupt = nil
	}
	e.solutions = newSolutionCache(e.cfg, e.sink)
	e.inflight.clear()
}

func (e *Engine) interruptChan() chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupt
}

func (e *Engine) cachedSolution(previousHash, merkleRoot hash.Hash) (solution, bool) {
	v, ok := e.solutions.Get(solutionKey{previousHash, merkleRoot})
	if !ok {
		return solution{}, false
	}
	return v.(solution), true
}

func (e *Engine) cacheSolution(previousHash, merkleRoot hash.Hash, s solution) {
	e.solutions.Put(solutionKey{previousHash, merkleRoot}, s)
}

// newSolutionCache builds the bounded, TTL-evicting (previous_hash,
// merkle_root) -> solution cache (spec §4.2 "check solution cache"),
// logging whatever solved block falls out under capacity or TTL pressure
// rather than discarding it silently.
func newSolutionCache(cfg *consensusconfig.Config, sink audit.Sink) *cache.Cache {
	ttl := time.Duration(cfg.SolutionCacheTTLSeconds) * time.Second
	return cache.New(cfg.SolutionCacheSize, ttl, func(key, value interface{}) {
		k := key.(solutionKey)
		s := value.(solution)
		sink.LogEvent(audit.Event{
			Type:      "solution_cache_evicted",
			Severity:  audit.SeverityInfo,
			Source:    "mining",
			Details:   map[string]interface{}{"previous_hash": k.previousHash.String(), "merkle_root": k.merkleRoot.String(), "nonce": s.nonce},
			Timestamp: time.Now(),
		})
	})
}
