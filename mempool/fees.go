package mempool

import (
	"time"

	"github.com/h3tag-core/consensus/audit"
)

// DynamicMinFee implements spec §4.1's dynamic minimum fee curve: let
// c = |M| / MAX_SIZE be the congestion ratio. The multiplier m is:
//
//	c <= 0.5        : 1
//	0.5 < c <= 0.75 : 1 + 2(c - 0.5)
//	0.75 < c <= 0.9 : 2 + 8(c - 0.75)^2
//	c > 0.9         : 4 + 16(c - 0.9)^2
//
// The floor is min(floor(base * m), 20 * base). On any failure to read
// current state, it falls back to max(base, last_valid_fee).
func (p *Pool) DynamicMinFee() int64 {
	base := int64(p.cfg.MinFeeRate * 100000)

	maxSize := p.cfg.MaxMempoolSize
	if maxSize <= 0 {
		return p.fallbackMinFee(base)
	}

	size := p.Size()
	c := float64(size) / float64(maxSize)

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
	capped := 20 * base
	if fee > capped {
		fee = capped
	}

	p.mu.Lock()
	p.lastValidFee = fee
	p.mu.Unlock()

	p.sink.LogEvent(audit.Event{
		Type:     "dynamic_fee_updated",
		Severity: audit.SeverityInfo,
		Source:   "mempool",
		Details:   map[string]interface{}{"congestion": c, "multiplier": m, "fee_rate": fee},
		Timestamp: time.Now(),
	})

	return fee
}

// fallbackMinFee returns max(base, last_valid_fee), the spec's required
// degraded-state behaviour when current mempool state can't be read.
func (p *Pool) fallbackMinFee(base int64) int64 {
	p.mu.RLock()
	last := p.lastValidFee
	p.mu.RUnlock()
	if last > base {
		return last
	}
	return base
}
