package mining

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/h3tag-core/consensus/audit"
	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/hash"
	"github.com/h3tag-core/consensus/wire"
)

// MineBlock searches for a nonce such that hash(header) <= target,
// caching the result keyed by (previous_hash, merkle_root) and
// registering the attempt in the in-flight table (spec §4.2
// mine_block, "Mining strategy"). It favours a parallel CPU worker
// pool built on golang.org/x/sync/errgroup for bounded fan-out (the
// teacher's cmd/kaspaminer uses an unbounded spawn loop per worker; this
// module bounds it to at most GOMAXPROCS workers via errgroup.SetLimit).
func (e *Engine) MineBlock(ctx context.Context, block *wire.Block) (*wire.Block, error) {
	key := solutionKey{previousHash: block.Header.PreviousHash, merkleRoot: block.Header.MerkleRoot}

	if cached, ok := e.cachedSolution(key.previousHash, key.merkleRoot); ok {
		block.Header.Nonce = cached.nonce
		block.Hash = cached.hash
		return block, nil
	}

	if _, ok := e.inflight.tryRegister(key); !ok {
		return nil, consensuserrors.New(consensuserrors.CodeBackpressure, "mining: in-flight capacity %d exhausted", e.cfg.MaxBlocksInFlight)
	}
	defer e.inflight.release(key)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetryAttempts; attempt++ {
		if !e.inflight.recordAttempt(key, e.cfg.MaxRetryAttempts) {
			break
		}
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.BlockInflightTimeoutSeconds)*time.Second)
		result, err := e.mineOnce(attemptCtx, block)
		cancel()
		if err == nil {
			e.cacheSolution(key.previousHash, key.merkleRoot, solution{nonce: result.Header.Nonce, hash: result.Hash})
			e.mu.Lock()
			e.successCount++
			e.lastBlockAt = time.Now()
			e.mu.Unlock()
			return result, nil
		}
		lastErr = err
		e.sink.LogEvent(audit.Event{
			Type:     "block_failed",
			Severity: audit.SeverityWarn,
			Source:   "mining",
			Details:  map[string]interface{}{"attempt": attempt, "error": err.Error()},
			Timestamp: time.Now(),
		})
		time.Sleep(retryBackoff(attempt, time.Duration(e.cfg.BlockInflightTimeoutSeconds)*time.Second))
	}
	return nil, consensuserrors.Wrap(consensuserrors.CodeWorkerError, lastErr)
}

// mineOnce runs a single attempt's worker pool over the nonce space
// (worker i starts i*BatchSize past a time-based seed below MaxNonce and
// steps by the worker count), returning as soon as any worker finds a
// solution or the context is cancelled (timeout, interrupt, or
// stop_mining).
func (e *Engine) mineOnce(ctx context.Context, block *wire.Block) (*wire.Block, error) {
	workerCount := workerCountFor(e.cfg.MaxBlocksInFlight)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workerCount)

	found := make(chan struct {
		nonce uint64
		hash  hash.Hash
	}, 1)

	interrupt := e.interruptChan()
	seed := uint64(time.Now().UnixNano()) % wire.MaxNonce

	for w := 0; w < workerCount; w++ {
		worker := w
		group.Go(func() error {
			start := seed + uint64(worker)*e.cfg.BatchSize
			for nonce := start; nonce < wire.MaxNonce; nonce += uint64(workerCount) {
				select {
				case <-groupCtx.Done():
					return nil
				case <-interrupt:
					return nil
				default:
				}
				header := block.Header
				header.Nonce = nonce
				h := wire.ComputeHash(header)
				e.mu.Lock()
				e.hashesTried++
				e.mu.Unlock()
				if h.Cmp(header.Target) <= 0 {
					select {
					case found <- struct {
						nonce uint64
						hash  hash.Hash
					}{nonce, h}:
					default:
					}
					return nil
				}
			}
			return nil
		})
	}

	doneChan := make(chan error, 1)
	go func() { doneChan <- group.Wait() }()

	select {
	case result := <-found:
		out := *block
		out.Header.Nonce = result.nonce
		out.Hash = result.hash
		return &out, nil
	case err := <-doneChan:
		if err != nil {
			return nil, consensuserrors.Wrap(consensuserrors.CodeWorkerError, err)
		}
		select {
		case result := <-found:
			out := *block
			out.Header.Nonce = result.nonce
			out.Hash = result.hash
			return &out, nil
		default:
			return nil, consensuserrors.New(consensuserrors.CodeWorkerError, "mining: nonce space exhausted without a solution")
		}
	case <-ctx.Done():
		return nil, consensuserrors.Wrap(consensuserrors.CodeBlockInflightTimeout, ctx.Err())
	}
}

// workerCountFor bounds the worker pool to GOMAXPROCS rather than the
// full in-flight capacity, since nonce search is CPU-bound and gains
// nothing from more workers than cores.
func workerCountFor(maxInflight int) int {
	if maxInflight <= 0 {
		return 1
	}
	if cores := runtime.GOMAXPROCS(0); maxInflight > cores {
		return cores
	}
	return maxInflight
}
