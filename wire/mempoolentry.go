package wire

import "time"

// MempoolEntry is the mempool's internal record for a candidate
// transaction (spec §3). The mempool exclusively owns live entries; P and
// V observe them only via read-only handles.
type MempoolEntry struct {
	Tx         *Transaction
	ReceivedAt time.Time
	// FeeRate is fee-per-byte, fixed-point at 5 decimal places (rate *
	// 1e5), per spec §9's float-hazard fix.
	FeeRate     int64
	Ancestors   map[string]struct{}
	Descendants map[string]struct{}
}

// FeeRateBucketKey converts a fixed-point fee rate into its bucket
// identity (spec §4.1, §9): equality on this integer defines bucket
// membership.
func FeeRateBucketKey(feeRate int64) int64 {
	return feeRate
}
