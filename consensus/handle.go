package consensus

import (
	"context"
	"sync/atomic"

	"github.com/h3tag-core/consensus/consensuserrors"
	"github.com/h3tag-core/consensus/mempool"
	"github.com/h3tag-core/consensus/wire"
)

// mempoolHandle is the non-owning, weak reference into M that P holds
// (spec §9 "Cyclic ownership and back-references"): the Bundle owns the
// *mempool.Pool outright, P only sees it through this narrow handle (V
// holds no reference to M), and any call made after Dispose fails with InvariantViolated
// instead of touching a pool that may be mid-teardown.
type mempoolHandle struct {
	pool     *mempool.Pool
	disposed int32
}

func newMempoolHandle(pool *mempool.Pool) *mempoolHandle {
	return &mempoolHandle{pool: pool}
}

func (h *mempoolHandle) expire() {
	atomic.StoreInt32(&h.disposed, 1)
}

func (h *mempoolHandle) checkLive() error {
	if atomic.LoadInt32(&h.disposed) != 0 {
		return consensuserrors.New(consensuserrors.CodeInvariantViolated, "consensus: mempool handle used after dispose")
	}
	return nil
}

// GetPendingTransactions implements mining.TxSource.
func (h *mempoolHandle) GetPendingTransactions(limit int, minFeeRate int64) []*wire.Transaction {
	if h.checkLive() != nil {
		return nil
	}
	return h.pool.GetPendingTransactions(limit, minFeeRate)
}

// HandleValidationFailure implements mining.ValidatorAbsenceReporter: a
// one-way call from P into M, never a subscription back into P (spec
// §9's cycle-avoidance rule).
func (h *mempoolHandle) HandleValidationFailure(ctx context.Context, taskID, absentValidator string) {
	if h.checkLive() != nil {
		return
	}
	h.pool.HandleValidationFailure(ctx, taskID, absentValidator)
}

// GetExpectedValidators implements mining.ValidatorAbsenceReporter.
func (h *mempoolHandle) GetExpectedValidators(ctx context.Context) ([]string, error) {
	if err := h.checkLive(); err != nil {
		return nil, err
	}
	return h.pool.GetExpectedValidators(ctx)
}
