package mempool

import (
	"context"
	"sort"
	"time"

	"github.com/h3tag-core/consensus/wire"
)

// GetPendingTransactions returns up to limit pending transactions with
// fee_rate >= minFeeRate, ordered by descending fee rate with arrival
// time as the stable tie-break (spec §4.1). limit <= 0 means unbounded.
func (p *Pool) GetPendingTransactions(limit int, minFeeRate int64) []*wire.Transaction {
	p.mu.RLock()
	entries := make([]*wire.MempoolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.FeeRate >= minFeeRate {
			entries = append(entries, e)
		}
	}
	p.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FeeRate != entries[j].FeeRate {
			return entries[i].FeeRate > entries[j].FeeRate
		}
		return entries[i].ReceivedAt.Before(entries[j].ReceivedAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	txs := make([]*wire.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = e.Tx
	}
	return txs
}

// EstimateFee returns a bucket-weighted average fee rate adjusted by
// (1 + 1/targetBlocks), floored at the configured minimum fee rate
// (spec §4.1).
func (p *Pool) EstimateFee(targetBlocks int) int64 {
	floor := int64(p.cfg.MinFeeRate * 100000)
	if targetBlocks <= 0 {
		return floor
	}

	p.mu.RLock()
	var weightedSum, totalCount int64
	for bucket, set := range p.feeBuckets {
		n := int64(len(set))
		weightedSum += bucket * n
		totalCount += n
	}
	p.mu.RUnlock()

	if totalCount == 0 {
		return floor
	}
	avg := weightedSum / totalCount
	adjusted := int64(float64(avg) * (1 + 1/float64(targetBlocks)))
	if adjusted < floor {
		return floor
	}
	return adjusted
}

// MempoolFees summarises the fee-rate distribution for GetMempoolInfo.
type MempoolFees struct {
	Base    int64
	Current int64
	Mean    int64
	Median  int64
	Min     int64
	Max     int64
}

// MempoolInfo is the DTO returned by GetMempoolInfo (spec §4.1).
type MempoolInfo struct {
	Size          int
	Bytes         int
	Usage         float64
	Max           int
	Fees          MempoolFees
	Distribution  map[wire.TxType]int
	Oldest        time.Time
	Youngest      time.Time
	Healthy       bool
	AcceptingNew  bool
}

// GetMempoolInfo reports the pool's current size, fee distribution, age
// span and health (spec §4.1).
func (p *Pool) GetMempoolInfo(ctx context.Context) MempoolInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	info := MempoolInfo{
		Size:         len(p.entries),
		Bytes:        p.bytesTotal,
		Max:          p.cfg.MaxMempoolSize,
		Distribution: make(map[wire.TxType]int),
	}
	if p.cfg.MaxMempoolSize > 0 {
		info.Usage = float64(len(p.entries)) / float64(p.cfg.MaxMempoolSize)
	}

	var rates []int64
	var sum int64
	first := true
	for _, e := range p.entries {
		rates = append(rates, e.FeeRate)
		sum += e.FeeRate
		info.Distribution[e.Tx.Type]++
		if first || e.ReceivedAt.Before(info.Oldest) {
			info.Oldest = e.ReceivedAt
		}
		if first || e.ReceivedAt.After(info.Youngest) {
			info.Youngest = e.ReceivedAt
		}
		first = false
	}

	info.Fees.Base = int64(p.cfg.MinFeeRate * 100000)
	if len(rates) > 0 {
		sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
		info.Fees.Min = rates[0]
		info.Fees.Max = rates[len(rates)-1]
		info.Fees.Mean = sum / int64(len(rates))
		info.Fees.Median = rates[len(rates)/2]
	}

	info.Healthy = p.health.Healthy(ctx)
	info.AcceptingNew = info.Healthy && (p.cfg.MaxMempoolSize <= 0 || len(p.entries) < p.cfg.MaxMempoolSize)
	if len(p.entries) > p.cfg.HighCongestionThreshold {
		info.Fees.Current = p.dynamicMinFeeLocked()
	} else {
		info.Fees.Current = info.Fees.Base
	}
	return info
}

// dynamicMinFeeLocked computes the same curve as DynamicMinFee but
// assumes the caller already holds p.mu for reading.
func (p *Pool) dynamicMinFeeLocked() int64 {
	base := int64(p.cfg.MinFeeRate * 100000)
	if p.cfg.MaxMempoolSize <= 0 {
		return base
	}
	c := float64(len(p.entries)) / float64(p.cfg.MaxMempoolSize)
	var m float64
	switch {
	case c <= 0.5:
		m = 1
	case c <= 0.75:
		m = 1 + 2*(c-0.5)
	case c <= 0.9:
		m = 2 + 8*(c-0.75)*(c-0.75)
	default:
		m = 4 + 16*(c-0.9)*(c-0.9)
	}
	fee := int64(float64(base) * m)
	if capped := 20 * base; fee > capped {
		fee = capped
	}
	return fee
}

// RawMempoolEntry is the DTO returned by GetRawMempool (spec §4.1).
type RawMempoolEntry struct {
	TxID            string
	Fee             int64
	VSize           int
	Weight          int
	Time            time.Time
	Height          uint64
	DescendantCount int
	DescendantSize  int
	AncestorCount   int
	AncestorSize    int
	Depends         []string
	ScriptType      wire.ScriptType
}

// GetRawMempool returns every pending transaction's RawMempoolEntry. When
// verbose is false, only the txids are populated.
func (p *Pool) GetRawMempool(verbose bool) []RawMempoolEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RawMempoolEntry, 0, len(p.entries))
	for id, e := range p.entries {
		if !verbose {
			out = append(out, RawMempoolEntry{TxID: id})
			continue
		}
		size := wire.SerializedSize(e.Tx)
		base := wire.BaseSerializedSize(e.Tx)
		depends := make([]string, 0, len(e.Ancestors))
		ancestorSize := 0
		for a := range e.Ancestors {
			depends = append(depends, a)
			if ancestor, ok := p.entries[a]; ok {
				ancestorSize += wire.SerializedSize(ancestor.Tx)
			}
		}
		sort.Strings(depends)
		descendantSize := 0
		for d := range e.Descendants {
			if descendant, ok := p.entries[d]; ok {
				descendantSize += wire.SerializedSize(descendant.Tx)
			}
		}
		var scriptType wire.ScriptType
		if len(e.Tx.Inputs) > 0 {
			scriptType, _ = classifyScript(e.Tx.Inputs[0].Script)
		}

		out = append(out, RawMempoolEntry{
			TxID:            id,
			Fee:             feeAsInt64(e.Tx.Fee),
			VSize:           size,
			Weight:          base*3 + size,
			Time:            e.ReceivedAt,
			DescendantCount: len(e.Descendants),
			DescendantSize:  descendantSize,
			AncestorCount:   len(e.Ancestors),
			AncestorSize:    ancestorSize,
			Depends:         depends,
			ScriptType:      scriptType,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxID < out[j].TxID })
	return out
}

// HandleValidationFailure records a missed duty for absentValidator
// against taskID, called by P during block validation (spec §4.1, §4.2
// step 7); the voting engine does not call it.
func (p *Pool) HandleValidationFailure(ctx context.Context, taskID, absentValidator string) {
	p.ReportValidatorAbsence(ctx, absentValidator)
}
